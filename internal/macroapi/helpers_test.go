package macroapi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/upplang/upp/internal/diagnostics"
	"github.com/upplang/upp/internal/registry"
	"github.com/upplang/upp/internal/sourcetree"
)

func newTestHelpers(t *testing.T, source string) (*Helpers, *sourcetree.Tree) {
	t.Helper()
	tree, err := sourcetree.New(sexpParser{}, "sexp", source)
	require.NoError(t, err)
	h := &Helpers{
		Registry: registry.New(nil, nil, nil, nil, nil, "sexp"),
		Tree:     tree,
		Origin:   "test.sexp",
		Bag:      &diagnostics.Bag{},
	}
	return h, tree
}

func TestConsumeRemovesNextSiblingAndRecordsLastConsumed(t *testing.T) {
	h, tree := newTestHelpers(t, "(call a b c)")
	call := tree.Root()
	h.ContextNode = call.Children()[0] // "a"

	n, err := h.Consume(nil)
	require.NoError(t, err)
	require.Equal(t, "b", n.Text())
	require.Same(t, n, h.LastConsumedNode)
	require.Equal(t, "(call a  c)", tree.Source())
}

func TestConsumeTypeMismatchRaisesConsumeMismatch(t *testing.T) {
	h, tree := newTestHelpers(t, "(call a b c)")
	call := tree.Root()
	h.ContextNode = call.Children()[0]

	_, err := h.Consume(&TypeSpec{Types: []string{"call"}})
	require.Error(t, err)
	require.Len(t, h.Bag.Items(), 1)
	require.Equal(t, diagnostics.ConsumeMismatch, h.Bag.Items()[0].Kind)
}

func TestNextNodeDoesNotMutateSource(t *testing.T) {
	h, tree := newTestHelpers(t, "(call a b c)")
	call := tree.Root()
	h.ContextNode = call.Children()[0]

	n, err := h.NextNode(nil)
	require.NoError(t, err)
	require.Equal(t, "b", n.Text())
	require.Equal(t, "(call a b c)", tree.Source())
}

func TestReplaceWithStringResult(t *testing.T) {
	h, tree := newTestHelpers(t, "(call a b c)")
	target := tree.Root().Children()[1] // "b"

	nodes, err := h.Replace(target, registry.StringResult("replaced"))
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, "(call a replaced c)", tree.Source())
}

func TestReplaceAbsentIsNoop(t *testing.T) {
	h, tree := newTestHelpers(t, "(call a b c)")
	target := tree.Root().Children()[1]

	nodes, err := h.Replace(target, registry.Absent)
	require.NoError(t, err)
	require.Nil(t, nodes)
	require.Equal(t, "(call a b c)", tree.Source())
}

func TestHoistInsertsAtTopAfterLeadingComment(t *testing.T) {
	h, tree := newTestHelpers(t, "(block (comment x) (call a))")
	h.Tree = tree

	n, err := h.Hoist("(decl y)")
	require.NoError(t, err)
	require.Equal(t, "(decl y)", n.Text())
	require.Equal(t, "(block (comment x)(decl y) (call a))", tree.Source())
}

func TestCodeSplicesNodeByReferenceNotText(t *testing.T) {
	h, tree := newTestHelpers(t, "(call a b)")
	arg := tree.Root().Children()[0] // "a"

	frag, err := h.Code("(wrap ", arg, ")")
	require.NoError(t, err)
	require.Equal(t, "(wrap a)", frag.Text())
	require.Same(t, arg, frag.Children()[0])
}

package macroapi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/upplang/upp/internal/sourcetree"
)

func TestRewriteMetavarsRecognizesModes(t *testing.T) {
	rewritten, metas := rewriteMetavars("(if $c $t__NOT_compound_statement)")
	require.NotContains(t, rewritten, "$")
	require.Len(t, metas, 2)

	var plain, not *metaVar
	for _, mv := range metas {
		switch mv.name {
		case "c":
			plain = mv
		case "t":
			not = mv
		}
	}
	require.NotNil(t, plain)
	require.Equal(t, metaPlain, plain.mode)
	require.NotNil(t, not)
	require.Equal(t, metaNotType, not.mode)
	require.Equal(t, "compound_statement", not.constraint)
}

func TestRewriteMetavarsUntil(t *testing.T) {
	_, metas := rewriteMetavars("(call $rest__until__close)")
	require.Len(t, metas, 1)
	for _, mv := range metas {
		require.Equal(t, metaUntil, mv.mode)
		require.Equal(t, "close", mv.constraint)
	}
}

type fragParser struct{ tree *sourcetree.Tree }

func (f fragParser) Fragment(text string) (*sourcetree.Node, error) { return f.tree.Fragment(text) }

func TestPatternMatchBindsPlainAndTypeConstraint(t *testing.T) {
	tree, err := sourcetree.New(sexpParser{}, "sexp", "(if (cond x) (return y))")
	require.NoError(t, err)

	p, err := CompilePattern(fragParser{tree}, "(if $c $t__NOT_assignment)")
	require.NoError(t, err)

	root := tree.Root()
	b, ok := p.Match(root)
	require.True(t, ok)
	require.Equal(t, "cond", b.Nodes["c"].Type)
	require.Equal(t, "(cond x)", b.Nodes["c"].Text())
	require.Equal(t, "return", b.Nodes["t"].Type)
}

func TestPatternMatchFailsWhenConstraintViolated(t *testing.T) {
	tree, err := sourcetree.New(sexpParser{}, "sexp", "(if (cond x) (return y))")
	require.NoError(t, err)
	p, err := CompilePattern(fragParser{tree}, "(if $c $t__NOT_return)")
	require.NoError(t, err)

	_, ok := p.Match(tree.Root())
	require.False(t, ok)
}

func TestPatternMatchUntilCapturesVariadicChildren(t *testing.T) {
	tree, err := sourcetree.New(sexpParser{}, "sexp", "(call a b c)")
	require.NoError(t, err)
	p, err := CompilePattern(fragParser{tree}, "(call $args__until__done)")
	require.NoError(t, err)

	b, ok := p.Match(tree.Root())
	require.True(t, ok)
	require.Len(t, b.Variadic["args"], 3)
	require.Equal(t, "a", b.Variadic["args"][0].Text())
	require.Equal(t, "c", b.Variadic["args"][2].Text())
}

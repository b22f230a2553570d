package sourcetree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// flatParser is a minimal Parser test double that tokenizes on whitespace
// and wraps the whole thing in a synthetic "root" node, with one "word"
// child per token. It exists purely to exercise sourcetree's edit
// invariants without depending on a real grammar; internal/parseradapter
// has the integration-level tests against actual tree-sitter grammars.
type flatParser struct{}

func (flatParser) ParseFull(language, text string) (RawTree, error) {
	return tokenize(text), nil
}

func (flatParser) ParseFragment(language, text string) (RawTree, int, int, error) {
	raw := tokenize(text)
	return raw, 0, len(text), nil
}

func tokenize(text string) RawTree {
	var nodes []RawNode
	root := RawNode{Type: "root", Start: 0, End: len(text), Parent: -1}
	nodes = append(nodes, root)
	rootIdx := 0

	i := 0
	for i < len(text) {
		for i < len(text) && text[i] == ' ' {
			i++
		}
		if i >= len(text) {
			break
		}
		start := i
		for i < len(text) && text[i] != ' ' {
			i++
		}
		nodes = append(nodes, RawNode{Type: "word", Start: start, End: i, Parent: rootIdx})
		nodes[rootIdx].Children = append(nodes[rootIdx].Children, len(nodes)-1)
	}
	return RawTree{Nodes: nodes, Root: rootIdx}
}

func TestOffsetInvariantAfterEdits(t *testing.T) {
	tr, err := New(flatParser{}, "test", "alpha beta gamma")
	require.NoError(t, err)

	root := tr.Root()
	require.NotNil(t, root)
	words := root.Children()
	require.Len(t, words, 3)

	_, err = words[1].ReplaceWith("DELTA")
	require.NoError(t, err)

	require.Equal(t, "alpha DELTA gamma", tr.Source())

	// every live handle must still satisfy source[start:end] == text
	for _, n := range []*Node{words[0], words[2]} {
		require.NotEqual(t, -1, n.StartIndex())
		require.Equal(t, tr.Source()[n.StartIndex():n.EndIndex()], n.Text())
	}
}

func TestReplacedNodeInvalidated(t *testing.T) {
	tr, err := New(flatParser{}, "test", "one two")
	require.NoError(t, err)
	words := tr.Root().Children()

	stale := words[0]
	_, err = stale.ReplaceWith("ONE")
	require.NoError(t, err)

	require.Equal(t, -1, stale.StartIndex())
	require.Equal(t, -1, stale.EndIndex())

	_, err = stale.ReplaceWith("X")
	require.ErrorIs(t, err, ErrStaleHandle)
}

func TestInsertAfterShiftsFollowingSiblings(t *testing.T) {
	tr, err := New(flatParser{}, "test", "alpha gamma")
	require.NoError(t, err)
	words := tr.Root().Children()
	alpha, gamma := words[0], words[1]

	_, err = alpha.InsertAfter(" beta")
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(tr.Source(), "alpha beta "))
	require.Equal(t, "gamma", gamma.Text())
	require.Equal(t, tr.Source()[gamma.StartIndex():gamma.EndIndex()], gamma.Text())
}

func TestRemoveMovesNodeToHoldingTree(t *testing.T) {
	tr, err := New(flatParser{}, "test", "keep drop keep")
	require.NoError(t, err)
	words := tr.Root().Children()
	drop := words[1]

	holding, err := drop.Remove()
	require.NoError(t, err)
	require.Equal(t, "drop", holding.Source())
	require.Equal(t, holding, drop.Tree())
	require.Equal(t, "keep  keep", tr.Source())
}

func TestMigrationPreservesIdentity(t *testing.T) {
	src, err := New(flatParser{}, "test", "hello")
	require.NoError(t, err)
	dst, err := New(flatParser{}, "test", "world")
	require.NoError(t, err)

	n := src.Root().Children()[0]
	id := n.ID()

	_, err = dst.Root().Children()[0].ReplaceWith(n)
	require.NoError(t, err)

	require.Equal(t, id, n.ID())
	require.Equal(t, dst, n.Tree())
}

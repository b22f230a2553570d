package macroapi

import (
	"fmt"

	"github.com/upplang/upp/internal/sourcetree"
)

// QueryResult is one structural-query match: the pattern string plus its
// named captures resolved back to live node handles (spec.md §4.F:
// "query(pattern, node=root) — returns matches {pattern, captures: name→node}").
type QueryResult struct {
	Pattern  string
	Captures map[string]*sourcetree.Node
}

// Query runs an S-expression structural query against node's subtree
// (defaulting to the tree's root) and resolves each match's captures back
// to the stable handles already present in h.Tree.
func (h *Helpers) Query(pattern string, node *sourcetree.Node) ([]QueryResult, error) {
	if h.Queryer == nil {
		return nil, fmt.Errorf("macroapi: query: no Queryer configured")
	}
	if node == nil {
		node = h.Tree.Root()
	}
	if node == nil {
		return nil, nil
	}

	source := []byte(h.Tree.Source())
	matches, err := h.Queryer.Query(h.Tree.Language(), pattern, source, node.StartIndex(), node.EndIndex())
	if err != nil {
		return nil, fmt.Errorf("macroapi: query %q: %w", pattern, err)
	}

	out := make([]QueryResult, 0, len(matches))
	for _, m := range matches {
		captures := make(map[string]*sourcetree.Node, len(m.Captures))
		for name, span := range m.Captures {
			if n := h.Tree.NodeAt(span.Start, span.End); n != nil {
				captures[name] = n
			}
		}
		out = append(out, QueryResult{Pattern: pattern, Captures: captures})
	}
	return out, nil
}

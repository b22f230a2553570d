package macroapi

import "github.com/upplang/upp/internal/parseradapter"

// AdapterQueryer wraps *parseradapter.Adapter to satisfy Queryer, converting
// its Match/Span types to macroapi's own (macroapi stays decoupled from
// go-tree-sitter's presence one layer further up the stack).
type AdapterQueryer struct {
	Adapter *parseradapter.Adapter
}

func (a AdapterQueryer) Query(language, pattern string, source []byte, rootStart, rootEnd int) ([]QueryMatch, error) {
	matches, err := a.Adapter.Query(language, pattern, source, rootStart, rootEnd)
	if err != nil {
		return nil, err
	}
	out := make([]QueryMatch, len(matches))
	for i, m := range matches {
		captures := make(map[string]Span, len(m.Captures))
		for name, s := range m.Captures {
			captures[name] = Span{Start: s.Start, End: s.End}
		}
		out[i] = QueryMatch{Captures: captures}
	}
	return out, nil
}

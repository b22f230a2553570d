package parseradapter

import (
	"fmt"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// QueryLoader compiles and caches S-expression structural queries per
// (language, pattern) pair, used by the Helper API's query(pattern, node)
// (spec.md §4.F: "a structural query matching an S-expression pattern
// returning captures").
type QueryLoader struct {
	mu        sync.RWMutex
	languages map[string]*tree_sitter.Language
	compiled  map[string]*tree_sitter.Query
}

// NewQueryLoader creates an empty query loader.
func NewQueryLoader() *QueryLoader {
	return &QueryLoader{
		languages: make(map[string]*tree_sitter.Language),
		compiled:  make(map[string]*tree_sitter.Query),
	}
}

// RegisterLanguage associates a grammar with a language name so patterns in
// that language can later be compiled.
func (q *QueryLoader) RegisterLanguage(name string, language *tree_sitter.Language) {
	if language == nil || name == "" {
		return
	}
	q.mu.Lock()
	q.languages[name] = language
	q.mu.Unlock()
}

// Load compiles (or returns the cached compilation of) pattern for language.
func (q *QueryLoader) Load(language, pattern string) (*tree_sitter.Query, error) {
	key := language + "\x00" + pattern

	q.mu.RLock()
	if cached, ok := q.compiled[key]; ok {
		q.mu.RUnlock()
		return cached, nil
	}
	grammar, ok := q.languages[language]
	q.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("parseradapter: language %q not registered", language)
	}

	compiled, err := tree_sitter.NewQuery(grammar, pattern)
	if err != nil {
		return nil, fmt.Errorf("parseradapter: compile query: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if cached, ok := q.compiled[key]; ok {
		compiled.Close()
		return cached, nil
	}
	q.compiled[key] = compiled
	return compiled, nil
}

// Match is one query match: the capture name that matched, mapped to the
// byte span of the captured node. Spans (not live handles) are returned
// here; the macroapi layer resolves spans back to sourcetree.Node handles
// in the caller's own tree, since QueryLoader operates purely in terms of
// go-tree-sitter's immutable nodes and has no notion of sourcetree's
// mutable overlay.
type Match struct {
	Captures map[string]Span
}

// Span is a byte range, reused here rather than importing
// internal/diagnostics to keep this package dependency-light.
type Span struct {
	Start, End int
}

// Query runs pattern (in language) over the subtree rooted at
// [rootStart, rootEnd) of source, using a freshly re-parsed tree (query.go
// has no access to sourcetree's live handles, only raw text/offsets) and
// returns one Match per query match, each capture mapped by name to its
// byte span within source.
func (a *Adapter) Query(language, pattern string, source []byte, rootStart, rootEnd int) ([]Match, error) {
	compiled, err := a.queryCache.Load(language, pattern)
	if err != nil {
		return nil, err
	}

	grammar, ok := a.grammars[language]
	if !ok {
		return nil, fmt.Errorf("parseradapter: no grammar for %q", language)
	}

	lp, ok := a.pool.Acquire(nil, language)
	if !ok {
		return nil, ErrParserPoolClosed
	}
	defer a.pool.release(lp)

	if err := lp.parser.SetLanguage(grammar); err != nil {
		return nil, fmt.Errorf("parseradapter: set language: %w", err)
	}
	tree := lp.parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("parseradapter: parse failed")
	}
	defer tree.Close()

	root := tree.RootNode()
	target := root
	if rootStart != 0 || rootEnd != int(root.EndByte()) {
		target = narrowTo(root, uint(rootStart), uint(rootEnd))
	}
	if target == nil {
		return nil, nil
	}

	cursor := tree_sitter.NewQueryCursor()
	defer cursor.Close()

	names := compiled.CaptureNames()
	iter := cursor.Matches(compiled, target, source)

	var matches []Match
	for {
		match := iter.Next()
		if match == nil {
			break
		}
		captureNames := make(map[string]Span, len(match.Captures))
		for _, c := range match.Captures {
			if int(c.Index) >= len(names) {
				continue
			}
			captureNames[names[c.Index]] = Span{Start: int(c.Node.StartByte()), End: int(c.Node.EndByte())}
		}
		matches = append(matches, Match{Captures: captureNames})
	}
	return matches, nil
}

func narrowTo(n *tree_sitter.Node, start, end uint) *tree_sitter.Node {
	if n.StartByte() == start && n.EndByte() == end {
		return n
	}
	count := int(n.ChildCount())
	for i := 0; i < count; i++ {
		c := n.Child(uint(i))
		if c == nil {
			continue
		}
		if c.StartByte() <= start && end <= c.EndByte() {
			return narrowTo(c, start, end)
		}
	}
	return n
}

// Close releases compiled query resources.
func (q *QueryLoader) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, c := range q.compiled {
		if c != nil {
			c.Close()
		}
	}
	q.compiled = map[string]*tree_sitter.Query{}
	return nil
}

package parseradapter

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/upplang/upp/internal/sourcetree"
)

// ErrParserPoolClosed indicates parser acquisition failed because the pool
// is closed.
var ErrParserPoolClosed = errors.New("parseradapter: parser pool is closed")

// languageParser wraps a language-specific *tree_sitter.Parser instance.
type languageParser struct {
	lang      string
	parser    *tree_sitter.Parser
	closeOnce sync.Once
	closeFn   func()
}

func newLanguageParser() *languageParser {
	p := tree_sitter.NewParser()
	return &languageParser{parser: p, closeFn: p.Close}
}

func (lp *languageParser) close() {
	if lp == nil {
		return
	}
	lp.closeOnce.Do(func() {
		if lp.closeFn != nil {
			lp.closeFn()
		}
	})
}

// ParserPool manages a fixed set of reusable *tree_sitter.Parser instances,
// one per concurrent caller, so go-tree-sitter's cgo parser objects aren't
// recreated per parse (spec.md §5: the engine is otherwise single-threaded
// per file, but a CLI invocation may process several files/fragments
// concurrently against the same Adapter).
type ParserPool struct {
	poolSize int
	parsers  chan *languageParser
	closeCh  chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once

	lifecycleMu sync.RWMutex
	holders     sync.WaitGroup
	factory     func() *languageParser
}

// NewParserPool creates a parser pool sized to the number of CPUs.
func NewParserPool() *ParserPool {
	return NewParserPoolWithSize(defaultParserPoolSize())
}

// NewParserPoolWithSize creates a parser pool with explicit capacity.
func NewParserPoolWithSize(size int) *ParserPool {
	return newParserPoolWithFactory(size, nil)
}

func defaultParserPoolSize() int {
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}

func newParserPoolWithFactory(size int, factory func() *languageParser) *ParserPool {
	if size <= 0 {
		size = 1
	}
	if factory == nil {
		factory = newLanguageParser
	}
	pool := &ParserPool{
		poolSize: size,
		parsers:  make(chan *languageParser, size),
		closeCh:  make(chan struct{}),
		factory:  factory,
	}
	for range size {
		pool.parsers <- pool.factory()
	}
	return pool
}

// Capacity returns the configured pool size.
func (p *ParserPool) Capacity() int {
	if p == nil {
		return 0
	}
	return p.poolSize
}

// Acquire blocks for a free parser, or returns false if ctx is canceled or
// the pool is closed.
func (p *ParserPool) Acquire(ctx context.Context, lang string) (*languageParser, bool) {
	if p == nil {
		return nil, false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, false
		}
		if p.closed.Load() {
			return nil, false
		}
		select {
		case <-ctx.Done():
			return nil, false
		case <-p.closeCh:
			return nil, false
		case lp := <-p.parsers:
			if lp == nil {
				continue
			}
			if err := ctx.Err(); err != nil {
				p.returnOrClose(lp)
				return nil, false
			}
			p.lifecycleMu.RLock()
			if p.closed.Load() {
				p.lifecycleMu.RUnlock()
				lp.close()
				return nil, false
			}
			lp.lang = lang
			p.holders.Add(1)
			p.lifecycleMu.RUnlock()
			return lp, true
		}
	}
}

func (p *ParserPool) returnOrClose(lp *languageParser) {
	if p.closed.Load() {
		lp.close()
		return
	}
	select {
	case p.parsers <- lp:
	case <-p.closeCh:
		lp.close()
	}
}

func (p *ParserPool) release(lp *languageParser) {
	if p == nil || lp == nil {
		return
	}
	defer p.holders.Done()
	if p.closed.Load() {
		lp.close()
		return
	}
	select {
	case p.parsers <- lp:
	case <-p.closeCh:
		lp.close()
	}
}

// Close releases every parser resource in the pool.
func (p *ParserPool) Close() error {
	if p == nil {
		return nil
	}
	p.closeOnce.Do(func() {
		p.lifecycleMu.Lock()
		p.closed.Store(true)
		close(p.closeCh)
		p.lifecycleMu.Unlock()

		p.holders.Wait()

		for {
			select {
			case lp := <-p.parsers:
				if lp != nil {
					lp.close()
				}
			default:
				return
			}
		}
	})
	return nil
}

// Adapter is the Parser Adapter (spec.md §4.A): it wraps go-tree-sitter to
// expose full-source parse, fragment parse, and structural query, and
// implements sourcetree.Parser so a sourcetree.Tree can be built directly
// from it.
type Adapter struct {
	pool       *ParserPool
	treeCache  *Cache
	queryCache *QueryLoader
	grammars   map[string]*tree_sitter.Language

	initOnce sync.Once
}

// NewAdapter builds a Parser Adapter for every language SupportedLanguages
// names, with a pool sized to the host's CPU count.
func NewAdapter() *Adapter {
	return NewAdapterWithPoolSize(defaultParserPoolSize())
}

// NewAdapterWithPoolSize builds a Parser Adapter with an explicit pool size.
func NewAdapterWithPoolSize(poolSize int) *Adapter {
	a := &Adapter{
		pool:       NewParserPoolWithSize(poolSize),
		treeCache:  NewCache(0, 0),
		queryCache: NewQueryLoader(),
		grammars:   map[string]*tree_sitter.Language{},
	}
	a.initOnce.Do(func() {
		for _, lang := range SupportedLanguages() {
			if g := languageGrammar(lang); g != nil {
				a.grammars[lang] = g
				a.queryCache.RegisterLanguage(lang, g)
			}
		}
	})
	return a
}

// SupportsLanguage reports whether lang has a registered grammar.
func (a *Adapter) SupportsLanguage(lang string) bool {
	_, ok := a.grammars[lang]
	return ok
}

// ParseFull parses text as a complete source file.
//
// Per spec.md §4.A ("on parser exception, return an empty root; callers
// detect and degrade"), a grammar that isn't registered, or a parse that
// fails to produce a tree, yields an empty RawTree rather than an error —
// so callers see a degenerate single-node tree and can choose whether that
// is fatal.
func (a *Adapter) ParseFull(language, text string) (sourcetree.RawTree, error) {
	if !a.SupportsLanguage(language) {
		return emptyRawTree(), nil
	}
	tree, release, err := a.parseWithPool(context.Background(), language, []byte(text), treeCacheKey(language, []byte(text)))
	if err != nil {
		return emptyRawTree(), nil
	}
	defer release()
	return rawTreeFromTS(tree, text), nil
}

// ParseFragment wraps text in the language's minimal envelope, parses it,
// and returns the raw tree plus the byte range (within the *fragment* text,
// not the envelope) that the caller's own text occupies — so sourcetree can
// rebase the recovered inner node onto the host tree's offsets.
func (a *Adapter) ParseFragment(language, text string) (sourcetree.RawTree, int, int, error) {
	env, ok := envelopes[language]
	if !ok {
		return emptyRawTree(), 0, len(text), nil
	}
	wrapped := env.prefix + text + env.suffix
	if !a.SupportsLanguage(language) {
		return emptyRawTree(), 0, len(text), nil
	}
	tree, release, err := a.parseWithPool(context.Background(), language, []byte(wrapped), treeCacheKey(language, []byte(wrapped)))
	if err != nil {
		return emptyRawTree(), 0, len(text), nil
	}
	defer release()

	innerStart := len(env.prefix)
	innerEnd := innerStart + len(text)
	raw := rawTreeFromTS(tree, wrapped)
	return rebaseRawTree(raw, innerStart), 0, len(text), nilOrOK(raw)
}

func nilOrOK(raw sourcetree.RawTree) error {
	if len(raw.Nodes) == 0 {
		return fmt.Errorf("parseradapter: empty parse")
	}
	return nil
}

// rebaseRawTree shifts every node's offsets so the envelope's prefix length
// becomes offset 0, matching the caller's own fragment text coordinates.
// Nodes that fall entirely within the envelope's synthetic wrapper (prefix
// or suffix) keep negative/overflowing offsets; callers are expected to use
// sourcetree.Tree.Fragment's span-matching to pick the right inner node.
func rebaseRawTree(raw sourcetree.RawTree, shift int) sourcetree.RawTree {
	out := make([]sourcetree.RawNode, len(raw.Nodes))
	for i, n := range raw.Nodes {
		n.Start -= shift
		n.End -= shift
		out[i] = n
	}
	return sourcetree.RawTree{Nodes: out, Root: raw.Root}
}

func emptyRawTree() sourcetree.RawTree {
	return sourcetree.RawTree{
		Nodes: []sourcetree.RawNode{{Type: "ERROR", Start: 0, End: 0, Parent: -1}},
		Root:  0,
	}
}

// parseWithPool acquires a language parser, consults the tree cache, and
// returns a cloned tree plus a release func the caller must invoke.
func (a *Adapter) parseWithPool(ctx context.Context, language string, content []byte, cacheKey string) (*tree_sitter.Tree, func(), error) {
	grammar, ok := a.grammars[language]
	if !ok {
		return nil, func() {}, fmt.Errorf("parseradapter: no grammar for %q", language)
	}

	if tree, ok := a.treeCache.Get(cacheKey); ok {
		return tree, func() { tree.Close() }, nil
	}

	lp, ok := a.pool.Acquire(ctx, language)
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, func() {}, err
		}
		return nil, func() {}, ErrParserPoolClosed
	}
	defer a.pool.release(lp)

	if err := lp.parser.SetLanguage(grammar); err != nil {
		return nil, func() {}, fmt.Errorf("parseradapter: set language %q: %w", language, err)
	}

	tree := lp.parser.Parse(content, nil)
	if tree == nil {
		return nil, func() {}, fmt.Errorf("parseradapter: parse returned nil")
	}
	a.treeCache.Put(cacheKey, tree, content)

	clone := tree.Clone()
	return clone, func() { clone.Close() }, nil
}

// rawTreeFromTS walks a *tree_sitter.Tree in pre-order and builds the flat
// sourcetree.RawTree representation, recording field names and error/missing
// flags so Transformer/Registry can detect malformed fragments.
func rawTreeFromTS(tree *tree_sitter.Tree, source string) sourcetree.RawTree {
	root := tree.RootNode()
	if root == nil {
		return emptyRawTree()
	}
	src := []byte(source)

	var nodes []sourcetree.RawNode
	var build func(n *tree_sitter.Node, parent int) int
	build = func(n *tree_sitter.Node, parent int) int {
		idx := len(nodes)
		nodes = append(nodes, sourcetree.RawNode{
			Type:      n.Kind(),
			Start:     int(n.StartByte()),
			End:       int(n.EndByte()),
			Parent:    parent,
			IsError:   n.IsError(),
			IsMissing: n.IsMissing(),
		})

		childCount := int(n.ChildCount())
		var children []int
		fields := map[string]int{}
		for i := 0; i < childCount; i++ {
			child := n.Child(uint(i))
			if child == nil {
				continue
			}
			ci := build(child, idx)
			fieldPos := len(children)
			children = append(children, ci)
			if name := n.FieldNameForChild(uint32(i)); name != "" {
				fields[name] = fieldPos
			}
		}
		nodes[idx].Children = children
		nodes[idx].FieldNames = fields
		return idx
	}
	rootIdx := build(root, -1)
	_ = src
	return sourcetree.RawTree{Nodes: nodes, Root: rootIdx}
}

// Close releases pool, tree-cache, and query-cache resources.
func (a *Adapter) Close() error {
	if a.queryCache != nil {
		_ = a.queryCache.Close()
	}
	if a.treeCache != nil {
		_ = a.treeCache.Close()
	}
	if a.pool != nil {
		return a.pool.Close()
	}
	return nil
}

func treeCacheKey(language string, content []byte) string {
	h := fnv.New64a()
	_, _ = h.Write(content)
	hash := h.Sum64()
	buf := make([]byte, 0, len(language)+1+19+1+16)
	buf = append(buf, language...)
	buf = append(buf, ':')
	buf = strconv.AppendInt(buf, int64(len(content)), 10)
	buf = append(buf, ':')
	buf = strconv.AppendUint(buf, hash, 16)
	return string(buf)
}

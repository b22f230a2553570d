// Package sourcetree implements the mutable persistent syntax tree: an
// edit-aware overlay over an immutable parser tree (internal/parseradapter)
// that keeps string-level edits, node migration between trees, and offset
// repositioning consistent. See spec.md §3 and §4.B.
package sourcetree

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Parser is the subset of internal/parseradapter.Adapter the tree needs:
// full parses and fragment parses for a named language. Kept as an
// interface here so sourcetree has no import-time dependency on go-tree-sitter
// or any specific grammar — the Parser Adapter satisfies it.
type Parser interface {
	// ParseFull parses text as a complete source file and returns a RawTree.
	ParseFull(language string, text string) (RawTree, error)
	// ParseFragment parses text as the smallest grammatically valid wrapper
	// and returns the RawTree, with offsets already rebased to the fragment
	// text's own coordinates, plus the byte range the fragment occupies in
	// those coordinates.
	ParseFragment(language string, text string) (tree RawTree, innerStart, innerEnd int, err error)
}

// RawTree is the Parser Adapter's immutable output: a flat list of raw
// node records in pre-order, enough for SourceTree to build its handle
// table without importing go-tree-sitter types directly.
type RawTree struct {
	Nodes []RawNode
	// Root is the index into Nodes of the tree's root.
	Root int
}

// RawNode is one node as produced by a fresh parse.
type RawNode struct {
	Type        string
	Start       int
	End         int
	Parent      int // index into RawTree.Nodes, or -1 for the root
	Children    []int
	FieldNames  map[string]int // field name -> child index within Children
	IsError     bool
	IsMissing   bool
}

var nextHandleID int64

func allocID() int64 { return atomic.AddInt64(&nextHandleID, 1) }

// MutationKind identifies what changed during one edit, passed to onMutation
// listeners (spec.md §4.B: "fire onMutation").
type MutationKind int

const (
	MutationInsert MutationKind = iota
	MutationReplace
	MutationRemove
	MutationTextEdit
)

// Mutation describes one recorded edit.
type Mutation struct {
	Kind MutationKind
	Node *Node
}

// Listener is notified after every recorded edit.
type Listener func(Mutation)

// VirtualSpan records a string inserted into the tree's source that has not
// yet been reflected by a reparse (spec.md §3: "a list of virtual inserted
// spans not present in the last reparse").
type VirtualSpan struct {
	Start, End int
}

// Tree is the mutable overlay over one RawTree plus a live source string.
//
// Invariants (spec.md §3):
//   - for any live handle h, source[h.startIndex:h.endIndex] == h.text
//   - handles survive sibling edits that shift their offsets
//   - edits to the string are immediately reflected; listeners are notified
type Tree struct {
	mu sync.Mutex

	language string
	parser   Parser
	source   string

	// handles indexed by stable id; nodes never change identity even when
	// their startIndex is invalidated (set to -1).
	byID map[int64]*Node

	// all holds the id of every node built from the parsed RawTree, each
	// node after its children; Root and NodeAt scan it. Nodes added later by
	// insertion or migration are not appended.
	all []int64

	virtual []VirtualSpan

	listeners []Listener
}

// Node is a handle into a Tree: a stable reference whose (start, end)
// offsets are kept consistent across edits to sibling text. See spec.md §3.
type Node struct {
	id   int64
	tree *Tree

	Type string

	startIndex int
	endIndex   int

	parent   *Node
	children []*Node
	fields   map[string]int // field name -> index into children

	// invalid marks a handle invalidated by a structural replacement of its
	// parent (spec.md: "startIndex === -1 marks a handle invalidated").
	invalid bool
}

// ID returns the node's stable integer identity (spec.md §3: "Uniqueness by
// stable integer id").
func (n *Node) ID() int64 { return n.id }

// Tree returns the tree that currently owns this node. Migration updates
// this reference (spec.md §4.B: "Migration updates node.tree").
func (n *Node) Tree() *Tree { return n.tree }

// StartIndex returns -1 if the handle has been invalidated.
func (n *Node) StartIndex() int {
	if n.invalid {
		return -1
	}
	return n.startIndex
}

// EndIndex mirrors StartIndex's validity rule.
func (n *Node) EndIndex() int {
	if n.invalid {
		return -1
	}
	return n.endIndex
}

// Text returns the node's current source slice, or "" if invalidated.
func (n *Node) Text() string {
	if n.invalid {
		return ""
	}
	return n.tree.source[n.startIndex:n.endIndex]
}

// Parent returns the node's parent, or nil at the root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the node's ordered children. Callers that need a stable
// snapshot across mutation (spec.md §4.E step 3, "recurse into a snapshot
// of node.children") should copy the returned slice.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// ChildForFieldName returns the named field's child, or nil if absent.
func (n *Node) ChildForFieldName(name string) *Node {
	idx, ok := n.fields[name]
	if !ok || idx < 0 || idx >= len(n.children) {
		return nil
	}
	return n.children[idx]
}

// New builds a Tree by parsing text with the given language via parser,
// then constructing stable handles for every node in pre-order.
func New(parser Parser, language, text string) (*Tree, error) {
	raw, err := parser.ParseFull(language, text)
	if err != nil {
		return nil, fmt.Errorf("sourcetree: parse %s: %w", language, err)
	}
	t := &Tree{
		language: language,
		parser:   parser,
		source:   text,
		byID:     make(map[int64]*Node),
	}
	t.buildFrom(raw)
	return t, nil
}

func (t *Tree) buildFrom(raw RawTree) *Node {
	if len(raw.Nodes) == 0 {
		return nil
	}
	nodes := make([]*Node, len(raw.Nodes))
	var build func(i int) *Node
	build = func(i int) *Node {
		if nodes[i] != nil {
			return nodes[i]
		}
		rn := raw.Nodes[i]
		n := &Node{
			id:         allocID(),
			tree:       t,
			Type:       rn.Type,
			startIndex: rn.Start,
			endIndex:   rn.End,
			fields:     rn.FieldNames,
		}
		nodes[i] = n
		t.byID[n.id] = n
		for _, ci := range rn.Children {
			child := build(ci)
			child.parent = n
			n.children = append(n.children, child)
		}
		t.all = append(t.all, n.id)
		return n
	}
	return build(raw.Root)
}

// Source returns the tree's current canonical string (spec.md §4.B: "source
// getter returns the current canonical string").
func (t *Tree) Source() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.source
}

// Language returns the language this tree was parsed with.
func (t *Tree) Language() string { return t.language }

// Root returns the tree's root node, or nil for an empty tree.
func (t *Tree) Root() *Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range t.all {
		n := t.byID[id]
		if n != nil && n.parent == nil {
			return n
		}
	}
	return nil
}

// Node looks up a handle by stable id.
func (t *Tree) Node(id int64) (*Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.byID[id]
	return n, ok
}

// OnMutation registers a listener invoked after every recorded edit.
func (t *Tree) OnMutation(l Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

func (t *Tree) notify(m Mutation) {
	for _, l := range t.listeners {
		l(m)
	}
}

// Fragment parses text as the smallest grammatically-valid wrapper in the
// tree's language and returns the inner node, detached (no parent, not yet
// part of this tree's handle table) — ready to be spliced in via
// Node.ReplaceWith/InsertBefore/etc, which perform the actual migration.
func (t *Tree) Fragment(text string) (*Node, error) {
	raw, innerStart, innerEnd, err := t.parser.ParseFragment(t.language, text)
	if err != nil {
		return nil, fmt.Errorf("sourcetree: fragment parse: %w", err)
	}
	holding := &Tree{
		language: t.language,
		parser:   t.parser,
		source:   text,
		byID:     make(map[int64]*Node),
	}
	root := holding.buildFrom(raw)
	inner := findInnerNode(root, innerStart, innerEnd)
	if inner == nil {
		inner = root
	}
	return inner, nil
}

// NodeAt returns the smallest live node whose span exactly equals
// [start,end), searching from root. Used to resolve a query/match result's
// byte span back to the stable handle that already exists for it, rather
// than fabricating a new one.
func (t *Tree) NodeAt(start, end int) *Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range t.all {
		n := t.byID[id]
		if n == nil || n.invalid {
			continue
		}
		if n.startIndex == start && n.endIndex == end {
			return n
		}
	}
	return nil
}

// findInnerNode returns the smallest node whose span equals [start,end)
// exactly, preferring the deepest such match — this recovers "the
// expression/statement/declaration the envelope was built around" from the
// synthesized wrapper.
func findInnerNode(n *Node, start, end int) *Node {
	if n == nil {
		return nil
	}
	if n.startIndex == start && n.endIndex == end {
		for _, c := range n.children {
			if found := findInnerNode(c, start, end); found != nil {
				return found
			}
		}
		return n
	}
	for _, c := range n.children {
		if c.startIndex <= start && end <= c.endIndex {
			return findInnerNode(c, start, end)
		}
	}
	return nil
}

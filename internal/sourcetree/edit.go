package sourcetree

import (
	"errors"
	"fmt"
)

// ErrStaleHandle is returned when an edit targets a node whose startIndex is
// -1 (spec.md §4.B: "replacing a handle that has been invalidated is a
// no-op with a diagnostic"; callers surface this as diagnostics.StaleHandle).
var ErrStaleHandle = errors.New("sourcetree: stale handle")

// Insertable is anything InsertBefore/InsertAfter/Append/ReplaceWith accept:
// a string (parsed as a fragment in the target language), a *Node (migrated),
// or a *Tree (merged). See spec.md §4.B.
type Insertable interface{}

// asNode normalizes an Insertable into a detached *Node ready for splicing
// into host, migrating/parsing as needed. host is the tree the result will
// be attached to.
func (host *Tree) asNode(x Insertable) (*Node, error) {
	switch v := x.(type) {
	case string:
		return host.Fragment(v)
	case *Node:
		return v, nil // migration happens at the splice site
	case *Tree:
		root := v.Root()
		if root == nil {
			return nil, fmt.Errorf("sourcetree: cannot splice empty tree")
		}
		return root, nil
	default:
		return nil, fmt.Errorf("sourcetree: unsupported insertable type %T", x)
	}
}

// migrate transfers n (and its subtree) from its current tree into host,
// rewriting every descendant's tree pointer. Identity (n.id) is preserved —
// this is what makes `upp.code` interpolation identity-preserving (Testable
// Property 3: "n remains the same object reference and n.tree equals the
// receiving tree").
func migrate(n *Node, host *Tree) {
	if n == nil || n.tree == host {
		return
	}
	origin := n.tree
	var walk func(x *Node)
	walk = func(x *Node) {
		if origin != nil {
			delete(origin.byID, x.id)
		}
		x.tree = host
		host.byID[x.id] = x
		for _, c := range x.children {
			walk(c)
		}
	}
	walk(n)
}

// rebase shifts n's own span by delta and recurses into children, keeping
// relative offsets intact. Used after a sibling-affecting edit.
func rebase(n *Node, delta int) {
	if n == nil || n.invalid {
		return
	}
	n.startIndex += delta
	n.endIndex += delta
	for _, c := range n.children {
		rebase(c, delta)
	}
}

// shiftFollowing walks up from n to the root, and for every ancestor shifts
// all later siblings (and their subtrees) by delta, then grows each
// ancestor's own end by delta. This is how an edit to one node's text stays
// consistent for every other live handle (spec.md: "handles survive sibling
// edits that shift their offsets").
func shiftFollowing(n *Node, afterOffset int, delta int) {
	if delta == 0 {
		return
	}
	cur := n
	for cur != nil {
		parent := cur.parent
		if parent == nil {
			break
		}
		idx := indexOf(parent.children, cur)
		for i := idx + 1; i < len(parent.children); i++ {
			rebase(parent.children[i], delta)
		}
		parent.endIndex += delta
		cur = parent
	}
}

func indexOf(list []*Node, n *Node) int {
	for i, c := range list {
		if c == n {
			return i
		}
	}
	return -1
}

// setText replaces the tree's source in [start,end) with replacement and
// shifts every recorded virtual span accordingly.
func (t *Tree) setText(start, end int, replacement string) {
	t.source = t.source[:start] + replacement + t.source[end:]
	delta := len(replacement) - (end - start)
	if delta == 0 {
		return
	}
	for i, v := range t.virtual {
		if v.Start >= end {
			t.virtual[i].Start += delta
			t.virtual[i].End += delta
		}
	}
}

// Remove excises n's span from the tree's source, invalidates n's own
// handle ownership of that position, and returns a new holding Tree
// containing n and its text (spec.md §3: "remove() moves a node and its
// text to a new holding tree and returns that tree").
func (n *Node) Remove() (*Tree, error) {
	if n.invalid || n.startIndex < 0 {
		return nil, ErrStaleHandle
	}
	t := n.tree
	t.mu.Lock()
	defer t.mu.Unlock()

	text := t.source[n.startIndex:n.endIndex]
	start, end := n.startIndex, n.endIndex

	t.setText(start, end, "")
	shiftFollowing(n, end, -(end - start))

	if n.parent != nil {
		idx := indexOf(n.parent.children, n)
		if idx >= 0 {
			n.parent.children = append(n.parent.children[:idx], n.parent.children[idx+1:]...)
		}
	}

	holding := &Tree{
		language: t.language,
		parser:   t.parser,
		source:   text,
		byID:     map[int64]*Node{},
	}
	n.parent = nil
	migrate(n, holding)
	rebase(n, -start)

	t.notify(Mutation{Kind: MutationRemove, Node: n})
	return holding, nil
}

// ReplaceWith swaps n's textual span with x's text and rebinds n's handle to
// the new content. If x is a *Node or *Tree, that node is migrated into n's
// tree at n's former position; n itself becomes invalid (startIndex == -1)
// since its old identity no longer corresponds to any content — per
// spec.md: "replaceWith(x) swaps a node's textual span with x's text and
// rebinds the handle to the new content" is read, for structural x, as
// "callers use the returned node(s) going forward", matching the
// Transformer's replace() helper which always returns the new node(s).
func (n *Node) ReplaceWith(x Insertable) (*Node, error) {
	if n.invalid || n.startIndex < 0 {
		return nil, ErrStaleHandle
	}
	t := n.tree
	t.mu.Lock()
	defer t.mu.Unlock()

	repl, err := t.asNode(x)
	if err != nil {
		return nil, err
	}

	start, end := n.startIndex, n.endIndex
	newText := repl.Text()
	if s, ok := x.(string); ok && repl == nil {
		newText = s
	}

	migrate(repl, t)
	rebase(repl, start-repl.startIndex)

	repl.parent = n.parent
	if n.parent != nil {
		idx := indexOf(n.parent.children, n)
		if idx >= 0 {
			n.parent.children[idx] = repl
		}
	}

	t.setText(start, end, newText)
	delta := len(newText) - (end - start)
	shiftFollowing(repl, start+len(newText), delta)

	delete(t.byID, n.id)
	n.invalid = true
	n.startIndex, n.endIndex = -1, -1

	t.notify(Mutation{Kind: MutationReplace, Node: repl})
	return repl, nil
}

// InsertBefore splices x's text immediately before n's span.
func (n *Node) InsertBefore(x Insertable) (*Node, error) {
	return n.insertAt(n.startIndex, x, MutationInsert)
}

// InsertAfter splices x's text immediately after n's span.
func (n *Node) InsertAfter(x Insertable) (*Node, error) {
	return n.insertAt(n.endIndex, x, MutationInsert)
}

// Append splices x's text immediately after n's span and makes it n's next
// sibling, the same placement as InsertAfter; it does not insert x as a
// child of n.
func (n *Node) Append(x Insertable) (*Node, error) {
	return n.insertAt(n.endIndex, x, MutationInsert)
}

func (n *Node) insertAt(offset int, x Insertable, kind MutationKind) (*Node, error) {
	if n.invalid || n.startIndex < 0 {
		return nil, ErrStaleHandle
	}
	t := n.tree
	t.mu.Lock()
	defer t.mu.Unlock()

	ins, err := t.asNode(x)
	if err != nil {
		return nil, err
	}
	text := ins.Text()

	migrate(ins, t)
	rebase(ins, offset-ins.startIndex)

	ins.parent = n.parent
	if n.parent != nil {
		idx := indexOf(n.parent.children, n)
		if idx >= 0 {
			at := idx
			if offset >= n.endIndex {
				at = idx + 1
			}
			children := make([]*Node, 0, len(n.parent.children)+1)
			children = append(children, n.parent.children[:at]...)
			children = append(children, ins)
			children = append(children, n.parent.children[at:]...)
			n.parent.children = children
		}
	}

	t.setText(offset, offset, text)
	t.virtual = append(t.virtual, VirtualSpan{Start: offset, End: offset + len(text)})
	shiftFollowing(ins, offset+len(text), len(text))

	t.notify(Mutation{Kind: kind, Node: ins})
	return ins, nil
}

// SetText overwrites n's own text in place (read/write `text` accessor,
// spec.md §4.B: "For every handle: ... text (read/write)").
func (n *Node) SetText(s string) error {
	if n.invalid || n.startIndex < 0 {
		return ErrStaleHandle
	}
	t := n.tree
	t.mu.Lock()
	defer t.mu.Unlock()

	start, end := n.startIndex, n.endIndex
	t.setText(start, end, s)
	delta := len(s) - (end - start)
	n.endIndex = start + len(s)
	for _, c := range n.children {
		c.invalid = true
		c.startIndex, c.endIndex = -1, -1
	}
	n.children = nil
	shiftFollowing(n, end, delta)

	t.notify(Mutation{Kind: MutationTextEdit, Node: n})
	return nil
}

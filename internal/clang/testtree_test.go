package clang

import "github.com/upplang/upp/internal/sourcetree"

// fakeNode is a hand-built node description used to construct a RawTree
// directly, bypassing any real grammar: clang's algorithms only need
// node.Type, field names, and children, which this builder can assign
// exactly, including the field names (declarator/type/parameters/body)
// tree-sitter-c's grammar assigns.
type fakeNode struct {
	typ      string
	text     string // leaf-only; interior nodes derive Start/End from children
	fields   map[string]int // field name -> index within children
	children []*fakeNode
}

type fakeParser struct{ root *fakeNode }

func (p fakeParser) ParseFull(language, text string) (sourcetree.RawTree, error) {
	var nodes []sourcetree.RawNode
	cursor := 0

	var build func(n *fakeNode, parent int) int
	build = func(n *fakeNode, parent int) int {
		idx := len(nodes)
		nodes = append(nodes, sourcetree.RawNode{Type: n.typ, Parent: parent})
		if len(n.children) == 0 {
			start := cursor
			end := start + len(n.text)
			cursor = end + 1 // separator between leaves
			nodes[idx].Start = start
			nodes[idx].End = end
			return idx
		}
		var childIdx []int
		for _, c := range n.children {
			childIdx = append(childIdx, build(c, idx))
		}
		nodes[idx].Children = childIdx
		nodes[idx].FieldNames = n.fields
		nodes[idx].Start = nodes[childIdx[0]].Start
		nodes[idx].End = nodes[childIdx[len(childIdx)-1]].End
		return idx
	}

	root := build(p.root, -1)
	return sourcetree.RawTree{Nodes: nodes, Root: root}, nil
}

func (p fakeParser) ParseFragment(language, text string) (sourcetree.RawTree, int, int, error) {
	raw, err := p.ParseFull(language, text)
	return raw, 0, len(text), err
}

func leaf(typ, text string) *fakeNode { return &fakeNode{typ: typ, text: text} }

func node(typ string, fields map[string]int, children ...*fakeNode) *fakeNode {
	return &fakeNode{typ: typ, fields: fields, children: children}
}

// buildTree renders n's leaves into a matching source string (space-joined,
// in leaf order) and constructs the sourcetree.Tree over it.
func buildTree(n *fakeNode) *sourcetree.Tree {
	var text string
	var collectLeaves func(n *fakeNode)
	collectLeaves = func(n *fakeNode) {
		if len(n.children) == 0 {
			if text != "" {
				text += " "
			}
			text += n.text
			return
		}
		for _, c := range n.children {
			collectLeaves(c)
		}
	}
	collectLeaves(n)

	tree, err := sourcetree.New(fakeParser{root: n}, "c", text)
	if err != nil {
		panic(err)
	}
	return tree
}

// Package macroapi implements the Helper API (spec.md §4.F): the `upp`
// facade exposed to macro bodies, bound into a Risor script environment.
package macroapi

import (
	"fmt"

	"github.com/upplang/upp/internal/diagnostics"
	"github.com/upplang/upp/internal/registry"
	"github.com/upplang/upp/internal/sourcetree"
)

// TypeSpec constrains consume/nextNode: a single type name, a list of
// accepted type names, or a custom validator (spec.md §4.F: "consume(type)
// accepts a type string, an array of types, or an options object
// {type, validate(node)→bool, message}").
type TypeSpec struct {
	Types    []string
	Validate func(*sourcetree.Node) bool
	Message  string
}

// Helpers is the per-walk `upp` facade bound to the current context node. A
// Transformer creates one Helpers per Registry and mutates ContextNode/
// LastConsumedNode before each macro evaluation (spec.md §4.E:
// "helpers.contextNode = node; helpers.lastConsumedNode = null").
type Helpers struct {
	Registry *registry.Registry
	Tree     *sourcetree.Tree
	Origin   string
	Bag      *diagnostics.Bag

	ContextNode      *sourcetree.Node
	LastConsumedNode *sourcetree.Node

	Queryer Queryer

	// The four language-binding hooks back upp.getDefinition/findReferences/
	// getType/getFunctionSignature and withReferences's matcher (spec.md
	// §4.G); wired by internal/clang, nil until a language binding installs
	// them (a language with no binding simply can't call these).
	GetDefinitionFunc       func(*sourcetree.Node) *sourcetree.Node
	FindReferencesFunc      func(*sourcetree.Node) []*sourcetree.Node
	GetTypeFunc             func(*sourcetree.Node) string
	GetFunctionSignatureFunc func(*sourcetree.Node) FunctionSignature
}

// FunctionSignature mirrors clang.FunctionSignature without importing
// internal/clang, keeping macroapi language-agnostic at the type level.
type FunctionSignature struct {
	Name       string
	ReturnType string
	Params     []FunctionParam
	BodyNode   *sourcetree.Node
}

// FunctionParam mirrors clang.Parameter.
type FunctionParam struct {
	Name string
	Type string
	Node *sourcetree.Node
}

// Queryer is the subset of the Parser Adapter the Helper API needs for
// query()/match(): structural queries over a language's grammar. Kept as an
// interface so macroapi has no hard dependency on go-tree-sitter types.
type Queryer interface {
	Query(language, pattern string, source []byte, rootStart, rootEnd int) ([]QueryMatch, error)
}

// QueryMatch is one capture set from a structural query.
type QueryMatch struct {
	Captures map[string]Span
}

// Span is a byte range within a query's source.
type Span struct{ Start, End int }

// siblingsOf returns a node's parent's children and this node's index
// within them, or nil/-1 if n has no parent.
func siblingsOf(n *sourcetree.Node) ([]*sourcetree.Node, int) {
	if n == nil || n.Parent() == nil {
		return nil, -1
	}
	sibs := n.Parent().Children()
	for i, s := range sibs {
		if s == n {
			return sibs, i
		}
	}
	return sibs, -1
}

func isComment(n *sourcetree.Node) bool {
	return n != nil && n.Type == "comment"
}

func matchesTypeSpec(n *sourcetree.Node, spec *TypeSpec) bool {
	if spec == nil {
		return true
	}
	if spec.Validate != nil {
		return spec.Validate(n)
	}
	if len(spec.Types) == 0 {
		return true
	}
	for _, t := range spec.Types {
		if n.Type == t {
			return true
		}
	}
	return false
}

// NextNode returns the next sibling of ContextNode (skipping comments),
// without removing it (spec.md §4.F: "nextNode(typeSpec?) — like consume
// without removal").
func (h *Helpers) NextNode(spec *TypeSpec) (*sourcetree.Node, error) {
	sibs, idx := siblingsOf(h.ContextNode)
	if idx < 0 {
		return nil, nil
	}
	for i := idx + 1; i < len(sibs); i++ {
		if isComment(sibs[i]) {
			continue
		}
		if !matchesTypeSpec(sibs[i], spec) {
			if spec != nil {
				return nil, h.consumeMismatch(sibs[i], spec)
			}
			return nil, nil
		}
		return sibs[i], nil
	}
	if spec != nil {
		return nil, h.consumeMismatch(nil, spec)
	}
	return nil, nil
}

func (h *Helpers) consumeMismatch(found *sourcetree.Node, spec *TypeSpec) error {
	msg := spec.Message
	if msg == "" {
		msg = fmt.Sprintf("expected %v", spec.Types)
	}
	node := h.ContextNode
	if found != nil {
		node = found
	}
	d := h.diagnostic(diagnostics.ConsumeMismatch, node, msg)
	return d
}

// diagnostic builds and records a Diagnostic anchored at node's span (or a
// zero span if node is nil), computing line/col from the tree's source.
func (h *Helpers) diagnostic(kind diagnostics.Kind, node *sourcetree.Node, msg string) *diagnostics.Diagnostic {
	var span diagnostics.Span
	var line, col int
	if node != nil {
		span = diagnostics.Span{Start: node.StartIndex(), End: node.EndIndex()}
		if h.Tree != nil && span.Start >= 0 {
			line, col = diagnostics.LineCol(h.Tree.Source(), span.Start)
		}
	}
	d := diagnostics.New(kind, h.Origin, line, col, span, msg, nil)
	if h.Bag != nil {
		h.Bag.Add(d)
	}
	return d
}

// Consume returns the next sibling of ContextNode (skipping comments),
// excises it from the output by detaching it into a holding tree (so its
// span disappears from the surrounding source but its own subtree stays
// intact and inspectable), and records it as LastConsumedNode (spec.md
// §4.F). Uses Node.Remove rather than SetText(""), which would wipe the
// node's children along with its text.
func (h *Helpers) Consume(spec *TypeSpec) (*sourcetree.Node, error) {
	n, err := h.NextNode(spec)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, nil
	}
	if _, err := n.Remove(); err != nil {
		return nil, err
	}
	h.LastConsumedNode = n
	return n, nil
}

// Replace substitutes target's span with result and returns the new node(s)
// (spec.md §4.F: "replace(nodeOrRange, result)").
func (h *Helpers) Replace(target *sourcetree.Node, result registry.MacroResult) ([]*sourcetree.Node, error) {
	switch result.Kind {
	case registry.ResultAbsent:
		return nil, nil
	case registry.ResultString:
		n, err := target.ReplaceWith(result.Str)
		if err != nil {
			return nil, err
		}
		return []*sourcetree.Node{n}, nil
	case registry.ResultNode:
		n, err := target.ReplaceWith(result.Node)
		if err != nil {
			return nil, err
		}
		return []*sourcetree.Node{n}, nil
	case registry.ResultNodes:
		if len(result.Nodes) == 0 {
			return nil, nil
		}
		n, err := target.ReplaceWith(result.Nodes[0])
		if err != nil {
			return nil, err
		}
		out := []*sourcetree.Node{n}
		cur := n
		for _, next := range result.Nodes[1:] {
			ins, err := cur.InsertAfter(next)
			if err != nil {
				return nil, err
			}
			out = append(out, ins)
			cur = ins
		}
		return out, nil
	default:
		return nil, fmt.Errorf("macroapi: unknown MacroResult kind %d", result.Kind)
	}
}

// Code builds a synthesized fragment from alternating literal-string and
// value arguments, concatenating them positionally; *sourcetree.Node values
// are migrated into the new fragment by reference rather than stringified,
// so identity survives the splice (Testable Property 3; see SPEC_FULL.md
// §4.F for why this replaces JS-style tagged templates).
func (h *Helpers) Code(parts ...any) (*sourcetree.Node, error) {
	var text string
	var nodes []*sourcetree.Node
	var placeholderPositions []int

	for _, p := range parts {
		switch v := p.(type) {
		case string:
			text += v
		case *sourcetree.Node:
			placeholderPositions = append(placeholderPositions, len(text))
			nodes = append(nodes, v)
			text += v.Text()
		default:
			text += fmt.Sprintf("%v", v)
		}
	}

	frag, err := h.Tree.Fragment(text)
	if err != nil {
		return nil, err
	}
	for i, pos := range placeholderPositions {
		old := nodes[i]
		target := findBySpan(frag, pos, pos+len(old.Text()))
		if target == nil {
			continue
		}
		if _, err := target.ReplaceWith(old); err != nil {
			return nil, err
		}
	}
	return frag, nil
}

func findBySpan(n *sourcetree.Node, start, end int) *sourcetree.Node {
	if n == nil {
		return nil
	}
	if n.StartIndex() == start && n.EndIndex() == end {
		for _, c := range n.Children() {
			if f := findBySpan(c, start, end); f != nil {
				return f
			}
		}
		return n
	}
	for _, c := range n.Children() {
		if c.StartIndex() <= start && end <= c.EndIndex() {
			return findBySpan(c, start, end)
		}
	}
	return nil
}

// Fragment parses text in the tree's language, satisfying macroapi.Parser so
// Helpers can compile structural patterns directly (WithMatch, match/matchAll).
func (h *Helpers) Fragment(text string) (*sourcetree.Node, error) {
	return h.Tree.Fragment(text)
}

// Walk performs a pre-order traversal of node, calling cb on every node
// visited (spec.md §4.F: "walk(node, cb) — pre-order traversal").
func (h *Helpers) Walk(node *sourcetree.Node, cb func(*sourcetree.Node)) {
	if node == nil {
		return
	}
	cb(node)
	for _, c := range node.Children() {
		h.Walk(c, cb)
	}
}

// Hoist inserts text at the top of the file, immediately after any leading
// preprocessor/comment block (spec.md §4.F, GLOSSARY: "Hoist").
func (h *Helpers) Hoist(text string) (*sourcetree.Node, error) {
	root := h.Tree.Root()
	if root == nil {
		return nil, fmt.Errorf("macroapi: hoist: empty tree")
	}
	children := root.Children()
	var after *sourcetree.Node
	for _, c := range children {
		if c.Type == "comment" || isPreprocessor(c.Type) {
			after = c
			continue
		}
		break
	}
	if after != nil {
		return after.InsertAfter(text)
	}
	if len(children) == 0 {
		return nil, fmt.Errorf("macroapi: hoist: no insertion point")
	}
	return children[0].InsertBefore(text)
}

func isPreprocessor(t string) bool {
	return len(t) >= 7 && t[:7] == "preproc"
}

// LoadDependency imports macros and any parent-installed rules from another
// file (spec.md §4.F).
func (h *Helpers) LoadDependency(file string) error {
	return h.Registry.LoadDependency(file, h.Origin)
}

// CreateUniqueIdentifier delegates to the Registry (spec.md §4.F).
func (h *Helpers) CreateUniqueIdentifier(prefix string) string {
	return h.Registry.CreateUniqueIdentifier(prefix)
}

// Error throws a tagged error carrying node's span (spec.md §4.F).
func (h *Helpers) Error(node *sourcetree.Node, msg string) error {
	return h.diagnostic(diagnostics.MacroBodyError, node, msg)
}

package macroapi

import (
	"github.com/upplang/upp/internal/registry"
	"github.com/upplang/upp/internal/sourcetree"
)

// Callback is a pending-rule body: it receives the matching node and
// returns a MacroResult, exactly like a macro's own return value.
type Callback func(*sourcetree.Node) (registry.MacroResult, error)

// WithNode installs a rule matching node by identity (spec.md §4.F:
// "for withNode it is identity").
func (h *Helpers) WithNode(node *sourcetree.Node, cb Callback) *registry.PendingRule {
	return h.Registry.AddPendingRule(registry.ScopeNode, node, func(n *sourcetree.Node) bool {
		return n == node
	}, cb)
}

// WithRoot installs a rule that fires once, at the root, regardless of
// which node the walk is currently visiting.
func (h *Helpers) WithRoot(cb Callback) *registry.PendingRule {
	root := h.Tree.Root()
	return h.Registry.AddPendingRule(registry.ScopeRoot, root, func(n *sourcetree.Node) bool {
		return n == root
	}, cb)
}

// WithScope installs a rule that fires on any node within scope's subtree.
func (h *Helpers) WithScope(scope *sourcetree.Node, cb Callback) *registry.PendingRule {
	return h.Registry.AddPendingRule(registry.ScopeSpecific, scope, func(n *sourcetree.Node) bool {
		return isDescendant(scope, n)
	}, cb)
}

// WithPattern installs a rule whose matcher tests a candidate node's type
// and a caller-supplied predicate (spec.md §4.F: "withPattern(type, matcher, cb)").
func (h *Helpers) WithPattern(nodeType string, matcher func(*sourcetree.Node) bool, cb Callback) *registry.PendingRule {
	return h.Registry.AddPendingRule(registry.ScopeRoot, nil, func(n *sourcetree.Node) bool {
		if nodeType != "" && n.Type != nodeType {
			return false
		}
		if matcher != nil {
			return matcher(n)
		}
		return true
	}, cb)
}

// WithMatch installs a rule whose matcher pattern-matches the candidate
// against a structural pattern string within scope (spec.md §4.F:
// "withMatch(scope, pattern, cb) — A matcher for withMatch pattern-matches
// the candidate against pattern").
func (h *Helpers) WithMatch(scope *sourcetree.Node, pattern string, cb func(*sourcetree.Node, Bindings) (registry.MacroResult, error)) (*registry.PendingRule, error) {
	compiled, err := CompilePattern(h, pattern)
	if err != nil {
		return nil, err
	}
	return h.Registry.AddPendingRule(registry.ScopeSpecific, scope, func(n *sourcetree.Node) bool {
		if scope != nil && !isDescendant(scope, n) {
			return false
		}
		_, ok := compiled.Match(n)
		return ok
	}, func(n *sourcetree.Node) (registry.MacroResult, error) {
		b, _ := compiled.Match(n)
		return cb(n, b)
	}), nil
}

// WithReferences installs a rule whose matcher tests getDefinition(n) == def
// (spec.md §4.F/§4.G).
func (h *Helpers) WithReferences(def *sourcetree.Node, getDefinition func(*sourcetree.Node) *sourcetree.Node, cb Callback) *registry.PendingRule {
	return h.Registry.AddPendingRule(registry.ScopeSpecific, def, func(n *sourcetree.Node) bool {
		return getDefinition(n) == def
	}, cb)
}

func isDescendant(scope, n *sourcetree.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent() {
		if cur == scope {
			return true
		}
	}
	return false
}

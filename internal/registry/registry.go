// Package registry implements the Registry and preparation pass (spec.md
// §4.D): the macro table, the pending-rule list, and prepareSource, which
// extracts @define blocks, resolves @include directives, and absorbs
// @name(args) invocations into comment-wrapped placeholders in one
// comment/string-aware scan.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/upplang/upp/internal/depcache"
	"github.com/upplang/upp/internal/sourcetree"
)

// MacroRecord is a registered macro definition (spec.md §3: "Macro record").
type MacroRecord struct {
	Name     string
	Params   []string
	Body     string
	Language string
}

// IsTransformer reports whether the macro's first parameter is "node",
// marking it as a transformer macro that receives the following AST node
// (spec.md §3: "params[0] === 'node' marks a transformer macro").
func (m *MacroRecord) IsTransformer() bool {
	return len(m.Params) > 0 && m.Params[0] == "node"
}

// Variadic reports whether the macro accepts a trailing ...rest parameter.
func (m *MacroRecord) Variadic() bool {
	return len(m.Params) > 0 && len(m.Params[len(m.Params)-1]) > 3 &&
		m.Params[len(m.Params)-1][:3] == "..."
}

// Invocation is an absorbed @name(args) occurrence (spec.md §3).
type Invocation struct {
	Name           string
	Args           []string
	StartIndex     int
	EndIndex       int
	InvocationNode *sourcetree.Node
	Line, Col      int
}

// ResultKind tags MacroResult's sum type (spec.md §9: "{absent | string |
// node | nodes[]}").
type ResultKind int

const (
	ResultAbsent ResultKind = iota
	ResultString
	ResultNode
	ResultNodes
)

// MacroResult is the value a macro body or pending-rule callback returns.
type MacroResult struct {
	Kind  ResultKind
	Str   string
	Node  *sourcetree.Node
	Nodes []*sourcetree.Node
}

// Absent is the zero-value MacroResult: "no replacement".
var Absent = MacroResult{Kind: ResultAbsent}

// StringResult wraps a raw string result, re-parsed as a fragment by the
// Transformer.
func StringResult(s string) MacroResult { return MacroResult{Kind: ResultString, Str: s} }

// NodeResult wraps a single node migrated into place.
func NodeResult(n *sourcetree.Node) MacroResult { return MacroResult{Kind: ResultNode, Node: n} }

// NodesResult wraps an ordered sequence of nodes.
func NodesResult(ns []*sourcetree.Node) MacroResult { return MacroResult{Kind: ResultNodes, Nodes: ns} }

// RuleScope classifies a PendingRule's intended applicability (spec.md §3:
// "scope: root|node|specific").
type RuleScope int

const (
	ScopeRoot RuleScope = iota
	ScopeNode
	ScopeSpecific
)

// PendingRule is a deferred transformation installed by withNode/withRoot/
// withScope/withMatch/withPattern/withReferences (spec.md §4.F).
type PendingRule struct {
	ID          int64
	ContextNode *sourcetree.Node
	Scope       RuleScope
	Matcher     func(n *sourcetree.Node) bool
	Callback    func(n *sourcetree.Node) (MacroResult, error)
}

// DependencyRunner executes the full prepare+transform pipeline for an
// included file and returns its transformed output plus the populated child
// Registry, so exported macros/rules can be merged into the parent. Supplied
// by internal/transform at construction time: registry cannot import
// transform directly (transform already imports registry), so the pipeline
// entry point is injected as a function value instead.
type DependencyRunner func(source, path string, parent *Registry) (output string, child *Registry, err error)

// Loader abstracts reading include targets from disk, so tests can supply an
// in-memory filesystem without touching the real one.
type Loader interface {
	ReadFile(path string) (string, error)
	Abs(path string) (string, error)
	ModTime(path string) (time.Time, error)
}

// Registry holds one source's macro table, pending-rule list, loaded-
// dependency set, and parent-chain link (spec.md §3: "Registry state").
type Registry struct {
	mu sync.Mutex

	Macros             map[string]*MacroRecord
	PendingRules       []*PendingRule
	LoadedDependencies map[string]bool

	Parent       *Registry
	Cache        *depcache.Cache
	IncludePaths []string
	Core         []string
	Loader       Loader
	Runner       DependencyRunner
	Language     string

	MainTree *sourcetree.Tree
	Mutated  bool

	OriginPath string

	nextRuleID   int64
	nextUniqueID map[string]int
}

// New creates a top-level Registry.
func New(cache *depcache.Cache, includePaths []string, core []string, loader Loader, runner DependencyRunner, language string) *Registry {
	return &Registry{
		Macros:             make(map[string]*MacroRecord),
		LoadedDependencies: make(map[string]bool),
		Cache:              cache,
		IncludePaths:       includePaths,
		Core:               core,
		Loader:             loader,
		Runner:             runner,
		Language:           language,
		nextUniqueID:       make(map[string]int),
	}
}

// NewChild creates a Registry for an @include target, sharing the parent's
// cache, include paths, loader, and runner but owning its own macro table
// and tree (spec.md §4.D: "recursively load the dependency through a child
// Registry sharing the cache").
func (r *Registry) NewChild(originPath string) *Registry {
	child := New(r.Cache, r.IncludePaths, r.Core, r.Loader, r.Runner, r.Language)
	child.Parent = r
	child.OriginPath = originPath
	return child
}

// DefineMacro registers a macro in the local table.
func (r *Registry) DefineMacro(m *MacroRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Macros[m.Name] = m
}

// GetMacro searches the local table, then the parent chain, then reports
// absence; the configured core set is merged into the top Registry's table
// before the run starts (transform.Transformer.loadCore), so no separate
// core lookup is needed here (spec.md §4.D: "getMacro(name) searches local
// table, then parent registry chain, then a configured core set").
func (r *Registry) GetMacro(name string) (*MacroRecord, bool) {
	for cur := r; cur != nil; cur = cur.Parent {
		cur.mu.Lock()
		m, ok := cur.Macros[name]
		cur.mu.Unlock()
		if ok {
			return m, true
		}
	}
	return nil, false
}

// AddPendingRule appends a rule and returns its id.
func (r *Registry) AddPendingRule(scope RuleScope, ctx *sourcetree.Node, matcher func(*sourcetree.Node) bool, cb func(*sourcetree.Node) (MacroResult, error)) *PendingRule {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextRuleID++
	rule := &PendingRule{ID: r.nextRuleID, ContextNode: ctx, Scope: scope, Matcher: matcher, Callback: cb}
	r.PendingRules = append(r.PendingRules, rule)
	return rule
}

// AddPendingRuleOn installs a rule directly, used when a dependency's macro
// body registers a rule onto the including (parent) Registry's helpers
// (spec.md §4.D: "import ... any rules it registers on the parent's
// helpers").
func (r *Registry) AddPendingRuleOn(rule *PendingRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.PendingRules = append(r.PendingRules, rule)
}

// CreateUniqueIdentifier returns a monotonically increasing identifier with
// the given prefix, unique within this Registry (spec.md §4.F).
func (r *Registry) CreateUniqueIdentifier(prefix string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.nextUniqueID[prefix]
	r.nextUniqueID[prefix] = n + 1
	return fmt.Sprintf("%s%d", prefix, n)
}

// MergeDependency imports child's macro table into r (spec.md §4.D: "import
// its exported macros"). Existing names in r win, matching getMacro's
// local-table-first resolution order.
func (r *Registry) MergeDependency(child *Registry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, m := range child.Macros {
		if _, exists := r.Macros[name]; !exists {
			r.Macros[name] = m
		}
	}
}

// MarkLoaded records path as loaded (cycle guard and loadDependency memo).
func (r *Registry) MarkLoaded(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.LoadedDependencies[path] {
		return false
	}
	r.LoadedDependencies[path] = true
	return true
}

// Package transform implements the Transformer (spec.md §4.E): the
// pre-order walk that expands macro invocations in place, dispatches
// pending rules, and runs a bounded fixed-point sweep to let rules
// registered late in the walk still reach earlier nodes.
package transform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/upplang/upp/internal/depcache"
	"github.com/upplang/upp/internal/diagnostics"
	"github.com/upplang/upp/internal/macroapi"
	"github.com/upplang/upp/internal/parseradapter"
	"github.com/upplang/upp/internal/registry"
	"github.com/upplang/upp/internal/sourcetree"
)

// macroLookupError and arityError give evaluateMacro's two pre-evaluation
// failure modes a distinct Go type, so diagnose can classify them as
// diagnostics.MacroLookup/ArityError instead of lumping every macro/rule
// error under MacroBodyError (spec.md §7's error taxonomy).
type macroLookupError struct {
	name string
}

func (e *macroLookupError) Error() string {
	return fmt.Sprintf("unknown macro %q", e.name)
}

type arityError struct {
	name     string
	expected int
	atLeast  bool
	got      int
}

func (e *arityError) Error() string {
	if e.atLeast {
		return fmt.Sprintf("macro %q: expected at least %d arguments, got %d", e.name, e.expected, e.got)
	}
	return fmt.Sprintf("macro %q: expected %d arguments, got %d", e.name, e.expected, e.got)
}

// maxFixedPointIterations caps evaluatePendingRules (spec.md §4.E: "hard cap
// 5 iterations").
const maxFixedPointIterations = 5

// Transformer owns the resources shared across every file (and @include) one
// CLI invocation processes: the Parser Adapter, the Dependency Cache, and the
// diagnostics Bag every Registry's Helpers reports into.
type Transformer struct {
	Adapter       *parseradapter.Adapter
	Language      string
	IncludePaths  []string
	Core          []string
	Loader        registry.Loader
	Cache         *depcache.Cache
	Bag           *diagnostics.Bag

	// Bind installs a language binding (e.g. internal/clang.Bind) onto each
	// file's Helpers before the walk starts; nil for languages with no
	// binding (spec.md §4.G functions simply error out at macro-eval time).
	Bind func(*macroapi.Helpers)
}

// New builds a Transformer.
func New(adapter *parseradapter.Adapter, language string, includePaths, core []string, loader registry.Loader, cache *depcache.Cache, bag *diagnostics.Bag, bind func(*macroapi.Helpers)) *Transformer {
	return &Transformer{
		Adapter:      adapter,
		Language:     language,
		IncludePaths: includePaths,
		Core:         core,
		Loader:       loader,
		Cache:        cache,
		Bag:          bag,
		Bind:         bind,
	}
}

// Run is the Transformer's entry point (spec.md §4.E: "run(source,
// originPath, parentHelpers)"). parent is nil for a top-level file; an
// @include's dependency runner passes the including Registry so macros
// exported by the dependency resolve against the right parent chain.
func (tr *Transformer) Run(source, originPath string, parent *registry.Registry) (string, *registry.Registry, error) {
	reg := registry.New(tr.Cache, tr.IncludePaths, tr.Core, tr.Loader, tr.runDependency, tr.Language)
	reg.Parent = parent
	output, err := tr.run(reg, source, originPath)
	return output, reg, err
}

// runDependency adapts Run to registry.DependencyRunner's signature, letting
// Registry trigger the full prepare+transform pipeline for an @include
// target without importing this package (spec.md §4.D.2).
func (tr *Transformer) runDependency(source, path string, parent *registry.Registry) (string, *registry.Registry, error) {
	return tr.Run(source, path, parent)
}

// loadCore preloads every configured core file's macros into reg, so every
// file sees them through GetMacro's local-then-parent-chain lookup without
// a dedicated core table (spec.md §4.D: "a configured core set"). Only the
// genuine top-level Registry does this: an @include's child Registry already
// reaches the same macros by walking up to its parent.
func (tr *Transformer) loadCore(reg *registry.Registry) error {
	if reg.Parent != nil {
		return nil
	}
	for _, path := range tr.Core {
		if err := reg.LoadDependency(path, ""); err != nil {
			return fmt.Errorf("transform: loading core %q: %w", path, err)
		}
	}
	return nil
}

func (tr *Transformer) run(reg *registry.Registry, source, originPath string) (string, error) {
	if err := tr.loadCore(reg); err != nil {
		return "", err
	}

	prep, err := reg.PrepareSource(source, originPath)
	if err != nil {
		return "", err
	}

	tree, err := sourcetree.New(tr.Adapter, tr.Language, prep.CleanSource)
	if err != nil {
		return "", err
	}
	reg.MainTree = tree

	h := &macroapi.Helpers{
		Registry: reg,
		Tree:     tree,
		Origin:   originPath,
		Bag:      tr.Bag,
		Queryer:  macroapi.AdapterQueryer{Adapter: tr.Adapter},
	}
	if tr.Bind != nil {
		tr.Bind(h)
	}

	invByNode := make(map[int64]*registry.Invocation, len(prep.Invocations))
	for _, inv := range prep.Invocations {
		if n := tree.NodeAt(inv.StartIndex, inv.EndIndex); n != nil {
			inv.InvocationNode = n
			invByNode[n.ID()] = inv
		}
	}

	w := newWalkState()
	root := tree.Root()
	if root != nil {
		tr.transformNode(root, h, w, false, invByNode)
		// Final fixed-point sweep (spec.md §4.E ordering guarantee ii: rules
		// registered anywhere in the walk are visible "to the final
		// fixed-point sweep"); appliedRules already guards against a rule
		// re-firing on a node it fired on inline.
		tr.evaluatePendingRules([]*sourcetree.Node{tree.Root()}, h, w)
	}

	reg.Mutated = reg.Mutated || len(prep.Invocations) > 0
	return tree.Source(), nil
}

// walkState is the per-run bookkeeping spec.md §3 calls "a per-walk weak
// mapping node → set(ruleId)", plus the recursion guard and the
// already-settled set transformNode consults.
type walkState struct {
	stack       map[int64]bool
	transformed map[int64]bool
	applied     map[int64]map[int64]bool
}

func newWalkState() *walkState {
	return &walkState{
		stack:       map[int64]bool{},
		transformed: map[int64]bool{},
		applied:     map[int64]map[int64]bool{},
	}
}

func (w *walkState) hasApplied(nodeID, ruleID int64) bool {
	set := w.applied[nodeID]
	return set != nil && set[ruleID]
}

func (w *walkState) markApplied(nodeID, ruleID int64) {
	set := w.applied[nodeID]
	if set == nil {
		set = map[int64]bool{}
		w.applied[nodeID] = set
	}
	set[ruleID] = true
}

// transformNode implements spec.md §4.E's transformNode pseudocode: macro
// evaluation at a comment-wrapped invocation precedes rule dispatch
// precedes child recursion, in that order, for every node visited.
func (tr *Transformer) transformNode(node *sourcetree.Node, h *macroapi.Helpers, w *walkState, force bool, invByNode map[int64]*registry.Invocation) {
	if node == nil || node.StartIndex() == -1 {
		return
	}
	if w.stack[node.ID()] {
		return
	}
	if !force && w.transformed[node.ID()] {
		return
	}
	w.stack[node.ID()] = true
	defer delete(w.stack, node.ID())

	h.ContextNode = node
	h.LastConsumedNode = nil

	if node.Type == "comment" {
		if inv, ok := invByNode[node.ID()]; ok {
			tr.expandInvocation(node, inv, h, w, invByNode)
			w.transformed[node.ID()] = true
			return
		}
	}

	rules := append([]*registry.PendingRule(nil), h.Registry.PendingRules...)
	for _, r := range rules {
		if w.hasApplied(node.ID(), r.ID) {
			continue
		}
		if r.Matcher == nil || !r.Matcher(node) {
			continue
		}
		w.markApplied(node.ID(), r.ID)
		res, err := r.Callback(node)
		if err != nil {
			tr.diagnose(h, node, err)
			continue
		}
		if res.Kind == registry.ResultAbsent {
			continue
		}
		newNodes, rerr := h.Replace(node, res)
		if rerr != nil {
			tr.diagnose(h, node, rerr)
			continue
		}
		tr.markDescendantsApplied(newNodes, r.ID, w)
		for _, n := range newNodes {
			tr.transformNode(n, h, w, true, invByNode)
		}
		if node.StartIndex() == -1 {
			return
		}
	}

	for _, c := range node.Children() {
		tr.transformNode(c, h, w, false, invByNode)
	}
	// Post-walk rescan: children mutated by the recursion above (siblings
	// inserted by a callback) are picked up by re-reading node.Children().
	for _, c := range node.Children() {
		if c.StartIndex() != -1 && !w.transformed[c.ID()] && !w.stack[c.ID()] {
			tr.transformNode(c, h, w, false, invByNode)
		}
	}

	w.transformed[node.ID()] = true
}

func (tr *Transformer) expandInvocation(node *sourcetree.Node, inv *registry.Invocation, h *macroapi.Helpers, w *walkState, invByNode map[int64]*registry.Invocation) {
	result, err := tr.evaluateMacro(h, inv)
	if err != nil {
		tr.diagnose(h, node, err)
		return
	}
	if result.Kind == registry.ResultAbsent {
		return
	}
	if result.Kind == registry.ResultString && strings.Contains(result.Str, "@") {
		if prep, perr := h.Registry.PrepareSource(result.Str, h.Origin); perr == nil {
			result = registry.StringResult(prep.CleanSource)
		}
	}
	newNodes, rerr := h.Replace(node, result)
	if rerr != nil {
		tr.diagnose(h, node, rerr)
		return
	}
	tr.evaluatePendingRules(newNodes, h, w)
	for _, n := range newNodes {
		tr.transformNode(n, h, w, true, invByNode)
	}
}

// evaluateMacro looks up inv.Name, checks arity, and invokes the macro body
// (spec.md §4.E: "Arity mismatches and unknown macros raise MacroError
// before any tree mutation").
func (tr *Transformer) evaluateMacro(h *macroapi.Helpers, inv *registry.Invocation) (registry.MacroResult, error) {
	macro, ok := h.Registry.GetMacro(inv.Name)
	if !ok {
		return registry.MacroResult{}, &macroLookupError{name: inv.Name}
	}

	params := macro.Params
	if macro.IsTransformer() {
		params = params[1:]
	}
	variadic := macro.Variadic()
	required := len(params)
	if variadic {
		required--
	}
	if variadic {
		if len(inv.Args) < required {
			return registry.MacroResult{}, &arityError{name: inv.Name, expected: required, atLeast: true, got: len(inv.Args)}
		}
	} else if len(inv.Args) != required {
		return registry.MacroResult{}, &arityError{name: inv.Name, expected: required, got: len(inv.Args)}
	}

	return macroapi.Eval(context.Background(), macro, inv.Args, h)
}

// evaluatePendingRules performs the bounded fixed-point sweep (spec.md
// §4.E): each iteration walks roots' descendants in reverse source order,
// tries every not-yet-applied rule once per descendant, and feeds any
// replacement subtrees into the next iteration's frontier.
func (tr *Transformer) evaluatePendingRules(roots []*sourcetree.Node, h *macroapi.Helpers, w *walkState) {
	frontier := roots
	for iter := 0; iter < maxFixedPointIterations; iter++ {
		if len(frontier) == 0 {
			return
		}
		mutated, next := tr.sweepOnce(frontier, h, w)
		if !mutated {
			return
		}
		frontier = next
	}
	tr.diagnoseNonConvergence(h)
}

func (tr *Transformer) sweepOnce(frontier []*sourcetree.Node, h *macroapi.Helpers, w *walkState) (bool, []*sourcetree.Node) {
	descendants := collectDescendantsReverse(frontier)
	rules := append([]*registry.PendingRule(nil), h.Registry.PendingRules...)
	mutated := false
	var next []*sourcetree.Node

	for _, n := range descendants {
		if n.StartIndex() == -1 {
			continue
		}
		for _, r := range rules {
			if w.hasApplied(n.ID(), r.ID) {
				continue
			}
			if r.Matcher == nil || !r.Matcher(n) {
				continue
			}
			w.markApplied(n.ID(), r.ID)
			res, err := r.Callback(n)
			if err != nil {
				tr.diagnose(h, n, err)
				continue
			}
			if res.Kind == registry.ResultAbsent {
				continue
			}
			newNodes, rerr := h.Replace(n, res)
			if rerr != nil {
				tr.diagnose(h, n, rerr)
				continue
			}
			tr.markDescendantsApplied(newNodes, r.ID, w)
			next = append(next, newNodes...)
			mutated = true
		}
	}
	return mutated, next
}

// collectDescendantsReverse flattens roots' subtrees and orders them by
// descending start offset — "deeper/later first to stabilize offsets"
// (spec.md §4.E).
func collectDescendantsReverse(roots []*sourcetree.Node) []*sourcetree.Node {
	var all []*sourcetree.Node
	var walk func(n *sourcetree.Node)
	walk = func(n *sourcetree.Node) {
		if n == nil || n.StartIndex() == -1 {
			return
		}
		all = append(all, n)
		for _, c := range n.Children() {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].StartIndex() > all[j].StartIndex()
	})
	return all
}

// markDescendantsApplied marks ruleID applied across an entire replacement
// subtree, "prevents self-retriggering" (spec.md §4.E step 2).
func (tr *Transformer) markDescendantsApplied(newNodes []*sourcetree.Node, ruleID int64, w *walkState) {
	var walk func(n *sourcetree.Node)
	walk = func(n *sourcetree.Node) {
		if n == nil {
			return
		}
		w.markApplied(n.ID(), ruleID)
		for _, c := range n.Children() {
			walk(c)
		}
	}
	for _, n := range newNodes {
		walk(n)
	}
}

func (tr *Transformer) diagnose(h *macroapi.Helpers, node *sourcetree.Node, err error) {
	if h.Bag == nil {
		return
	}
	var span diagnostics.Span
	var line, col int
	if node != nil && node.StartIndex() >= 0 {
		span = diagnostics.Span{Start: node.StartIndex(), End: node.EndIndex()}
		line, col = diagnostics.LineCol(h.Tree.Source(), span.Start)
	}
	h.Bag.Add(diagnostics.New(diagnoseKind(err), h.Origin, line, col, span, err.Error(), err))
}

// diagnoseKind classifies err into the diagnostics.Kind spec.md §7 assigns
// it: an unknown macro name or argument-count mismatch is caught before
// evaluation (MacroLookup/ArityError), an edit against an invalidated
// handle surfaces as StaleHandle, and anything else is a genuine error
// raised by the macro body itself.
func diagnoseKind(err error) diagnostics.Kind {
	var lookup *macroLookupError
	var arity *arityError
	switch {
	case errors.As(err, &lookup):
		return diagnostics.MacroLookup
	case errors.As(err, &arity):
		return diagnostics.ArityError
	case errors.Is(err, sourcetree.ErrStaleHandle):
		return diagnostics.StaleHandle
	default:
		return diagnostics.MacroBodyError
	}
}

func (tr *Transformer) diagnoseNonConvergence(h *macroapi.Helpers) {
	if h.Bag == nil {
		return
	}
	msg := fmt.Sprintf("pending rules did not converge within %d iterations", maxFixedPointIterations)
	h.Bag.Add(diagnostics.New(diagnostics.RuleNonConvergence, h.Origin, 0, 0, diagnostics.Span{}, msg, nil))
}

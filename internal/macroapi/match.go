package macroapi

import (
	"fmt"
	"strings"

	"github.com/upplang/upp/internal/sourcetree"
)

// Bindings maps a pattern's metavariable names to the node(s) they captured.
// A plain `$name` binds one node; a `$name__until__...` binds the remaining
// matched siblings as a slice, recorded in Variadic.
type Bindings struct {
	Nodes    map[string]*sourcetree.Node
	Variadic map[string][]*sourcetree.Node
}

func newBindings() Bindings {
	return Bindings{Nodes: map[string]*sourcetree.Node{}, Variadic: map[string][]*sourcetree.Node{}}
}

// metaMode classifies a metavariable's type constraint (spec.md §4.F:
// "$name, type constraints $name__type, and until lists $name__until__…").
type metaMode int

const (
	metaPlain metaMode = iota
	metaType
	metaNotType
	metaUntil
)

type metaVar struct {
	name       string
	mode       metaMode
	constraint string
	placeholder string
}

// Pattern is a compiled structural pattern: a parsed template tree whose
// identifier leaves named after a recorded placeholder are metavariable
// holes, ready to be matched in lockstep against candidate subtrees
// (spec.md §9: "a small pattern tree parsed from a template string with
// $name holes").
type Pattern struct {
	root  *sourcetree.Node
	metas map[string]*metaVar // placeholder identifier -> metavar info
}

// Parser is the minimal parsing capability needed to compile a pattern:
// parse a fragment in a language and return its root node. *sourcetree.Tree
// and *Helpers (whose Fragment delegates to its Tree) both satisfy it
// directly.
type Parser interface {
	Fragment(text string) (*sourcetree.Node, error)
}

// CompilePattern rewrites pattern's metavariable holes into plain
// identifiers, parses the rewritten text with parser, and returns a Pattern
// ready for matching.
func CompilePattern(parser Parser, pattern string) (*Pattern, error) {
	rewritten, metas := rewriteMetavars(pattern)
	root, err := parser.Fragment(rewritten)
	if err != nil {
		return nil, fmt.Errorf("macroapi: compiling pattern %q: %w", pattern, err)
	}
	return &Pattern{root: root, metas: metas}, nil
}

// rewriteMetavars finds every $name[__suffix...] token and replaces it with
// a unique synthetic identifier the host grammar will accept, returning the
// rewritten text and a lookup from synthetic identifier to metavar info.
func rewriteMetavars(pattern string) (string, map[string]*metaVar) {
	var out strings.Builder
	metas := make(map[string]*metaVar)
	n := len(pattern)
	count := 0
	for i := 0; i < n; i++ {
		c := pattern[i]
		if c != '$' {
			out.WriteByte(c)
			continue
		}
		j := i + 1
		for j < n && isIdentByte(pattern[j]) {
			j++
		}
		if j == i+1 {
			out.WriteByte(c)
			continue
		}
		token := pattern[i+1 : j]
		parts := strings.Split(token, "__")
		name := parts[0]
		mv := &metaVar{name: name, mode: metaPlain}
		if len(parts) >= 2 {
			rest := strings.Join(parts[1:], "__")
			switch {
			case parts[1] == "until" && len(parts) >= 3:
				mv.mode = metaUntil
				mv.constraint = strings.Join(parts[2:], "__")
			case strings.HasPrefix(rest, "NOT_"):
				mv.mode = metaNotType
				mv.constraint = strings.TrimPrefix(rest, "NOT_")
			default:
				mv.mode = metaType
				mv.constraint = rest
			}
		}
		placeholder := fmt.Sprintf("uppmeta%d", count)
		count++
		mv.placeholder = placeholder
		metas[placeholder] = mv
		out.WriteString(placeholder)
		i = j - 1
	}
	return out.String(), metas
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// Match runs pattern against every node in scope's subtree (pre-order,
// including scope itself) and returns the bindings for the first match, or
// ok=false if none matched (spec.md §4.F: "match / matchAll — structural
// patterns over source fragments with metavariables").
func (h *Helpers) Match(scope *sourcetree.Node, pattern string) (*sourcetree.Node, Bindings, bool, error) {
	compiled, err := CompilePattern(h, pattern)
	if err != nil {
		return nil, Bindings{}, false, err
	}
	var found *sourcetree.Node
	var bindings Bindings
	var ok bool
	h.Walk(scope, func(n *sourcetree.Node) {
		if ok {
			return
		}
		if b, matched := compiled.Match(n); matched {
			found, bindings, ok = n, b, true
		}
	})
	return found, bindings, ok, nil
}

// MatchAll returns every node in scope's subtree that matches pattern, each
// with its own bindings.
func (h *Helpers) MatchAll(scope *sourcetree.Node, pattern string) ([]*sourcetree.Node, []Bindings, error) {
	compiled, err := CompilePattern(h, pattern)
	if err != nil {
		return nil, nil, err
	}
	var nodes []*sourcetree.Node
	var all []Bindings
	h.Walk(scope, func(n *sourcetree.Node) {
		if b, matched := compiled.Match(n); matched {
			nodes = append(nodes, n)
			all = append(all, b)
		}
	})
	return nodes, all, nil
}

// Match attempts to match candidate against p, returning bound captures. ok
// is false if the shapes don't line up.
func (p *Pattern) Match(candidate *sourcetree.Node) (Bindings, bool) {
	b := newBindings()
	if matchNode(p.root, candidate, p.metas, &b) {
		return b, true
	}
	return Bindings{}, false
}

func (p *Pattern) metaFor(n *sourcetree.Node) *metaVar {
	if n == nil || n.Type != "identifier" {
		return nil
	}
	return p.metas[n.Text()]
}

func matchNode(pat, cand *sourcetree.Node, metas map[string]*metaVar, b *Bindings) bool {
	if pat == nil || cand == nil {
		return pat == cand
	}
	if mv, ok := metaAt(pat, metas); ok {
		switch mv.mode {
		case metaType:
			if cand.Type != mv.constraint {
				return false
			}
		case metaNotType:
			if cand.Type == mv.constraint {
				return false
			}
		}
		b.Nodes[mv.name] = cand
		return true
	}

	if pat.Type != cand.Type {
		return false
	}
	patChildren := pat.Children()
	candChildren := cand.Children()
	if len(patChildren) == 0 && len(candChildren) == 0 {
		return pat.Text() == cand.Text()
	}
	return matchChildren(patChildren, candChildren, metas, b)
}

func metaAt(n *sourcetree.Node, metas map[string]*metaVar) (*metaVar, bool) {
	if n == nil || n.Type != "identifier" {
		return nil, false
	}
	mv, ok := metas[n.Text()]
	return mv, ok
}

// matchChildren walks pattern and candidate child lists in lockstep,
// honoring a single until-metavariable anywhere in the pattern list by
// greedily capturing candidate children until one has the metavariable's
// stop type, then matching the pattern's remaining suffix against the
// candidates from there (spec.md §9: "until lists capture variadic
// children up to a node of the given stop type").
func matchChildren(pat, cand []*sourcetree.Node, metas map[string]*metaVar, b *Bindings) bool {
	untilIdx := -1
	for i, p := range pat {
		if mv, ok := metaAt(p, metas); ok && mv.mode == metaUntil {
			untilIdx = i
			break
		}
	}
	if untilIdx < 0 {
		if len(pat) != len(cand) {
			return false
		}
		for i := range pat {
			if !matchNode(pat[i], cand[i], metas, b) {
				return false
			}
		}
		return true
	}

	prefix, suffix := pat[:untilIdx], pat[untilIdx+1:]
	if len(prefix)+len(suffix) > len(cand) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		if !matchNode(prefix[i], cand[i], metas, b) {
			return false
		}
	}

	// maxStop is the latest position the capture can end at and still leave
	// room for suffix to match what follows. If a candidate of the stop type
	// appears before that, the capture ends there instead — honoring the
	// constraint — and suffix is matched starting at that stop node. If the
	// stop type never appears in the capturable range, the capture simply
	// runs to maxStop, the same "capture the rest" behavior an untyped
	// until (no stop type found) has always had.
	mv, _ := metaAt(pat[untilIdx], metas)
	maxStop := len(cand) - len(suffix)
	suffixStart := maxStop
	for i := len(prefix); i < maxStop; i++ {
		if cand[i].Type == mv.constraint {
			suffixStart = i
			break
		}
	}
	for i := 0; i < len(suffix); i++ {
		if !matchNode(suffix[i], cand[suffixStart+i], metas, b) {
			return false
		}
	}
	captured := append([]*sourcetree.Node(nil), cand[len(prefix):suffixStart]...)
	b.Variadic[mv.name] = captured
	return true
}

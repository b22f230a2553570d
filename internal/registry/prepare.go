package registry

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/upplang/upp/internal/depcache"
)

// PrepareResult is prepareSource's return value (spec.md §4.D).
type PrepareResult struct {
	CleanSource string
	Invocations []*Invocation
}

// PrepareSource performs, in order, the three phases spec.md §4.D specifies:
// @define extraction, @include resolution, and @name(args) absorption.
// Phase 1 strictly precedes phase 3, so @define blocks are blanked before
// invocations are absorbed. Phase 3 absorbs every @name(args) outside
// comments and strings, whether or not a macro of that name is defined.
func (r *Registry) PrepareSource(text, originPath string) (*PrepareResult, error) {
	r.OriginPath = originPath

	afterDefines, err := r.extractDefines(text)
	if err != nil {
		return nil, err
	}

	afterIncludes, err := r.resolveIncludes(afterDefines, originPath)
	if err != nil {
		return nil, err
	}

	clean, invocations := r.absorbInvocations(afterIncludes)

	return &PrepareResult{CleanSource: clean, Invocations: invocations}, nil
}

// extractDefines discovers "@define NAME(params) { body }" blocks, registers
// each as a MacroRecord, and blanks the region in place.
func (r *Registry) extractDefines(src string) (string, error) {
	var firstErr error
	out := scanAt(src, func(i int, out *strings.Builder) (int, bool) {
		if firstErr != nil {
			return 0, false
		}
		if identAt(src, i+1) != "define" {
			return 0, false
		}
		j := skipSpace(src, i+1+len("define"))
		name := identAt(src, j)
		if name == "" {
			firstErr = fmt.Errorf("registry: @define missing macro name at offset %d", i)
			return 0, false
		}
		j = skipSpace(src, j+len(name))
		if j >= len(src) || src[j] != '(' {
			firstErr = fmt.Errorf("registry: @define %s missing parameter list", name)
			return 0, false
		}
		closeParen := strings.IndexByte(src[j:], ')')
		if closeParen < 0 {
			firstErr = fmt.Errorf("registry: @define %s: unterminated parameter list", name)
			return 0, false
		}
		paramList := src[j+1 : j+closeParen]
		j = j + closeParen + 1
		j = skipSpace(src, j)
		if j >= len(src) || src[j] != '{' {
			firstErr = fmt.Errorf("registry: @define %s missing body", name)
			return 0, false
		}
		bodyEnd, ok := braceBody(src, j)
		if !ok {
			firstErr = fmt.Errorf("registry: @define %s: unbalanced body braces", name)
			return 0, false
		}
		body := src[j+1 : bodyEnd-1]

		var params []string
		for _, p := range strings.Split(paramList, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				params = append(params, p)
			}
		}

		r.DefineMacro(&MacroRecord{Name: name, Params: params, Body: body, Language: r.Language})

		region := src[i:bodyEnd]
		out.WriteString(blank(region))
		return bodyEnd - i, true
	})
	return out, firstErr
}

// resolveIncludes discovers @include "path" / @include <path>, recursively
// loads the target through a child Registry sharing the cache, imports its
// macros, and replaces the directive with the language's native #include
// line (c, cpp) or blanks it when the language has none (spec.md §4.D.2).
func (r *Registry) resolveIncludes(src, originPath string) (string, error) {
	var firstErr error
	out := scanAt(src, func(i int, out *strings.Builder) (int, bool) {
		if firstErr != nil {
			return 0, false
		}
		if identAt(src, i+1) != "include" {
			return 0, false
		}
		j := skipSpace(src, i+1+len("include"))
		if j >= len(src) {
			return 0, false
		}

		var closer byte
		switch src[j] {
		case '"':
			closer = '"'
		case '<':
			closer = '>'
		default:
			return 0, false
		}
		end := strings.IndexByte(src[j+1:], closer)
		if end < 0 {
			firstErr = fmt.Errorf("registry: @include: unterminated path at offset %d", i)
			return 0, false
		}
		target := src[j+1 : j+1+end]
		full := j + 1 + end + 1

		if err := r.loadInclude(target, originPath); err != nil {
			firstErr = err
			return 0, false
		}

		if native, ok := nativeInclude(r.Language, src[j], target); ok {
			out.WriteString(native)
		} else {
			out.WriteString(blank(src[i:full]))
		}
		return full - i, true
	})
	return out, firstErr
}

// nativeInclude converts an @include directive to the target language's
// native include form when one exists (spec.md §4.D.2: "Convert the
// directive to the target language's native include form if applicable,
// otherwise blank"). C and C++ share the #include syntax.
func nativeInclude(language string, quoteByte byte, target string) (string, bool) {
	switch language {
	case "c", "cpp":
	default:
		return "", false
	}
	if quoteByte == '<' {
		return fmt.Sprintf("#include <%s>", target), true
	}
	return fmt.Sprintf("#include %q", target), true
}

func (r *Registry) resolvePath(target, originPath string) (string, error) {
	if filepath.IsAbs(target) {
		return r.Loader.Abs(target)
	}
	candidates := []string{filepath.Join(filepath.Dir(originPath), target)}
	for _, dir := range r.IncludePaths {
		candidates = append(candidates, filepath.Join(dir, target))
	}
	var lastErr error
	for _, c := range candidates {
		abs, err := r.Loader.Abs(c)
		if err != nil {
			lastErr = err
			continue
		}
		if _, err := r.Loader.ReadFile(abs); err == nil {
			return abs, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("registry: @include %q not found", target)
	}
	return "", fmt.Errorf("registry: @include %q: %w", target, lastErr)
}

// LoadDependency is loadInclude's public entry point, used by the Helper
// API's loadDependency(file) (spec.md §4.F) to import another file's macros
// and rules at macro-evaluation time, not just during preparation.
func (r *Registry) LoadDependency(target, originPath string) error {
	return r.loadInclude(target, originPath)
}

// loadInclude resolves target against originPath/IncludePaths, consults the
// Dependency Cache, and on a miss runs the full pipeline via r.Runner,
// merging the child Registry's exported macros into r, plus any rules the
// dependency registered on its own Helpers (spec.md §4.D: "import ... any
// rules it registers on the parent's helpers") re-homed onto r via
// AddPendingRuleOn so they fire against r's own tree walk.
func (r *Registry) loadInclude(target, originPath string) error {
	abs, err := r.resolvePath(target, originPath)
	if err != nil {
		return err
	}
	if !r.MarkLoaded(abs) {
		return nil // already loaded along this chain; avoid re-processing cycles
	}

	if entry, ok := r.Cache.Get(abs); ok {
		for name, raw := range entry.Macros {
			if m, ok := raw.(*MacroRecord); ok {
				if _, exists := r.Macros[name]; !exists {
					r.Macros[name] = m
				}
			}
		}
		for _, raw := range entry.PendingRules {
			if rule, ok := raw.(*PendingRule); ok {
				r.AddPendingRuleOn(rule)
			}
		}
		return nil
	}

	if r.Runner == nil {
		return fmt.Errorf("registry: no dependency runner configured for @include %q", target)
	}
	source, err := r.Loader.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("registry: reading include %q: %w", target, err)
	}

	_, child, err := r.Runner(source, abs, r)
	if err != nil {
		return fmt.Errorf("registry: processing include %q: %w", target, err)
	}
	r.MergeDependency(child)
	for _, rule := range child.PendingRules {
		r.AddPendingRuleOn(rule)
	}

	macros := make(map[string]any, len(child.Macros))
	for name, m := range child.Macros {
		macros[name] = m
	}
	rules := make([]any, len(child.PendingRules))
	for i, rule := range child.PendingRules {
		rules[i] = rule
	}
	mtime, _ := r.Loader.ModTime(abs)
	r.Cache.Set(abs, &depcache.Entry{Macros: macros, PendingRules: rules, ModTime: mtime})
	return nil
}

// absorbInvocations discovers @name(args?) occurrences outside comments and
// strings and replaces each with a comment-wrapped placeholder, recording an
// Invocation per occurrence (spec.md §4.D.3). The InvocationNode field is
// left nil here; the Transformer fills it in once the clean source has been
// parsed and the comment node located.
func (r *Registry) absorbInvocations(src string) (string, []*Invocation) {
	var invocations []*Invocation
	out := scanAt(src, func(i int, out *strings.Builder) (int, bool) {
		name := identAt(src, i+1)
		if name == "" {
			return 0, false
		}
		j := skipSpace(src, i+1+len(name))
		var argsRaw string
		consumedEnd := i + 1 + len(name)
		if j < len(src) && src[j] == '(' {
			closeParen := matchingParen(src, j)
			if closeParen < 0 {
				return 0, false
			}
			argsRaw = src[j+1 : closeParen]
			consumedEnd = closeParen + 1
		}

		args := splitTopLevelArgs(argsRaw)
		placeholder := fmt.Sprintf("/*@%s(%s)*/", name, strings.Join(args, ","))

		line, col := lineCol(src, i)
		start := out.Len()
		out.WriteString(placeholder)
		invocations = append(invocations, &Invocation{
			Name:       name,
			Args:       args,
			StartIndex: start,
			EndIndex:   start + len(placeholder),
			Line:       line,
			Col:        col,
		})
		return consumedEnd - i, true
	})
	return out, invocations
}

func matchingParen(src string, open int) int {
	depth := 0
	md := modeCode
	var quote byte
	for i := open; i < len(src); i++ {
		c := src[i]
		switch md {
		case modeString, modeChar:
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				md = modeCode
			}
			continue
		}
		switch c {
		case '"':
			md, quote = modeString, '"'
		case '\'':
			md, quote = modeChar, '\''
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func lineCol(src string, offset int) (line, col int) {
	line, col = 1, 1
	for i := 0; i < offset && i < len(src); i++ {
		if src[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}

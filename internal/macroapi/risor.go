package macroapi

import (
	"context"
	"fmt"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/object"

	"github.com/upplang/upp/internal/registry"
	"github.com/upplang/upp/internal/sourcetree"
)

// callRisor invokes a Risor closure value from Go, the direction the
// hostfuncs pattern doesn't need but withNode/withMatch/withPattern do: a
// macro body hands upp.withX a callback to run later, at transform time,
// against whatever node matches.
func callRisor(ctx context.Context, fn object.Object, args ...object.Object) (object.Object, error) {
	return risor.Call(ctx, fn, args)
}

func nodeProxy(n *sourcetree.Node) object.Object {
	if n == nil {
		return object.Nil
	}
	p, err := object.NewProxy(n)
	if err != nil {
		return object.Errorf("macroapi: proxying node: %v", err)
	}
	return p
}

func asNode(arg object.Object) (*sourcetree.Node, bool) {
	if arg == nil || arg == object.Nil {
		return nil, true
	}
	p, ok := arg.(*object.Proxy)
	if !ok {
		return nil, false
	}
	n, ok := p.Interface().(*sourcetree.Node)
	return n, ok
}

func asString(arg object.Object) (string, bool) {
	s, ok := arg.(*object.String)
	if !ok {
		return "", false
	}
	return s.Value(), true
}

// typeSpecFromArg converts a consume/nextNode argument — a string, a list of
// strings, or a map with type/validate/message — into a *TypeSpec (spec.md
// §4.F: "consume(type) accepts a type string, an array of types, or an
// options object").
func typeSpecFromArg(ctx context.Context, arg object.Object) (*TypeSpec, error) {
	if arg == nil || arg == object.Nil {
		return nil, nil
	}
	switch v := arg.(type) {
	case *object.String:
		return &TypeSpec{Types: []string{v.Value()}}, nil
	case *object.List:
		var types []string
		for _, item := range v.Value() {
			s, ok := asString(item)
			if !ok {
				return nil, fmt.Errorf("macroapi: consume: type list must contain only strings")
			}
			types = append(types, s)
		}
		return &TypeSpec{Types: types}, nil
	case *object.Map:
		m := v.Value()
		spec := &TypeSpec{}
		if t, ok := m["type"]; ok {
			if s, ok := asString(t); ok {
				spec.Types = []string{s}
			}
		}
		if msg, ok := m["message"]; ok {
			spec.Message, _ = asString(msg)
		}
		if validate, ok := m["validate"]; ok {
			spec.Validate = func(n *sourcetree.Node) bool {
				res, err := callRisor(ctx, validate, nodeProxy(n))
				if err != nil {
					return false
				}
				b, ok := res.(*object.Bool)
				return ok && b.Value()
			}
		}
		return spec, nil
	default:
		return nil, fmt.Errorf("macroapi: consume: unsupported typeSpec argument %s", arg.Type())
	}
}

// resultFromObject converts a macro body's (or pending-rule callback's)
// return value into a registry.MacroResult (spec.md §9: "{absent | string |
// node | nodes[]}").
func resultFromObject(obj object.Object) (registry.MacroResult, error) {
	if obj == nil || obj == object.Nil {
		return registry.Absent, nil
	}
	switch v := obj.(type) {
	case *object.String:
		return registry.StringResult(v.Value()), nil
	case *object.Proxy:
		n, ok := v.Interface().(*sourcetree.Node)
		if !ok {
			return registry.MacroResult{}, fmt.Errorf("macroapi: macro returned an unrecognized proxied value %T", v.Interface())
		}
		return registry.NodeResult(n), nil
	case *object.List:
		items := v.Value()
		nodes := make([]*sourcetree.Node, 0, len(items))
		for _, item := range items {
			n, ok := asNode(item)
			if !ok || n == nil {
				return registry.MacroResult{}, fmt.Errorf("macroapi: macro returned a list containing a non-node value")
			}
			nodes = append(nodes, n)
		}
		return registry.NodesResult(nodes), nil
	case *object.Error:
		return registry.MacroResult{}, fmt.Errorf("%s", v.Message())
	default:
		return registry.MacroResult{}, fmt.Errorf("macroapi: macro returned unsupported type %s", obj.Type())
	}
}

// bindingsObject converts pattern-match Bindings into a Risor map, keyed by
// metavariable name, the shape a withMatch/match callback destructures
// (spec.md §9, S2: "({c,t}) => ...").
func bindingsObject(b Bindings) object.Object {
	m := make(map[string]object.Object, len(b.Nodes)+len(b.Variadic))
	for name, n := range b.Nodes {
		m[name] = nodeProxy(n)
	}
	for name, ns := range b.Variadic {
		items := make([]object.Object, len(ns))
		for i, n := range ns {
			items[i] = nodeProxy(n)
		}
		m[name] = object.NewList(items)
	}
	return object.NewMap(m)
}

// callbackFromRisor adapts a Risor closure into a Go Callback, the shape
// every withX installer needs (spec.md §4.F).
func (h *Helpers) callbackFromRisor(fn object.Object) Callback {
	return func(n *sourcetree.Node) (registry.MacroResult, error) {
		res, err := callRisor(context.Background(), fn, nodeProxy(n))
		if err != nil {
			return registry.MacroResult{}, err
		}
		return resultFromObject(res)
	}
}

// Module builds the `upp` facade bound into a macro body's Risor
// environment: one object.NewBuiltin per Helper API method, plus `root` and
// `contextNode` as plain attributes reflecting this Helpers' current state
// at the moment the macro is invoked (spec.md §4.E: "helpers.contextNode =
// node" is set by the Transformer before each evaluation, so Module is
// rebuilt per-invocation rather than cached).
func (h *Helpers) Module() *object.Module {
	return object.NewModule("upp", map[string]object.Object{
		"root":             nodeProxy(h.Tree.Root()),
		"contextNode":      nodeProxy(h.ContextNode),
		"lastConsumedNode": nodeProxy(h.LastConsumedNode),

		"consume":  h.builtinConsume(),
		"nextNode": h.builtinNextNode(),
		"replace":  h.builtinReplace(),
		"code":     h.builtinCode(),
		"walk":     h.builtinWalk(),
		"query":    h.builtinQuery(),
		"match":    h.builtinMatch(),
		"matchAll": h.builtinMatchAll(),

		"withNode":       h.builtinWithNode(),
		"withRoot":       h.builtinWithRoot(),
		"withScope":      h.builtinWithScope(),
		"withMatch":      h.builtinWithMatch(),
		"withPattern":    h.builtinWithPattern(),
		"withReferences": h.builtinWithReferences(),

		"getDefinition":       h.builtinGetDefinition(),
		"findReferences":      h.builtinFindReferences(),
		"getType":             h.builtinGetType(),
		"getFunctionSignature": h.builtinGetFunctionSignature(),

		"hoist":                  h.builtinHoist(),
		"createUniqueIdentifier": h.builtinCreateUniqueIdentifier(),
		"loadDependency":         h.builtinLoadDependency(),
		"error":                  h.builtinError(),
	})
}

func (h *Helpers) builtinConsume() *object.Builtin {
	return object.NewBuiltin("consume", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) > 1 {
			return object.NewArgsError("consume", 1, len(args))
		}
		var arg object.Object
		if len(args) == 1 {
			arg = args[0]
		}
		spec, err := typeSpecFromArg(ctx, arg)
		if err != nil {
			return object.Errorf("consume: %v", err)
		}
		n, err := h.Consume(spec)
		if err != nil {
			return object.Errorf("consume: %v", err)
		}
		return nodeProxy(n)
	})
}

func (h *Helpers) builtinNextNode() *object.Builtin {
	return object.NewBuiltin("nextNode", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) > 1 {
			return object.NewArgsError("nextNode", 1, len(args))
		}
		var arg object.Object
		if len(args) == 1 {
			arg = args[0]
		}
		spec, err := typeSpecFromArg(ctx, arg)
		if err != nil {
			return object.Errorf("nextNode: %v", err)
		}
		n, err := h.NextNode(spec)
		if err != nil {
			return object.Errorf("nextNode: %v", err)
		}
		return nodeProxy(n)
	})
}

func (h *Helpers) builtinReplace() *object.Builtin {
	return object.NewBuiltin("replace", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("replace", 2, len(args))
		}
		target, ok := asNode(args[0])
		if !ok || target == nil {
			return object.Errorf("replace: first argument must be a node")
		}
		result, err := resultFromObject(args[1])
		if err != nil {
			return object.Errorf("replace: %v", err)
		}
		nodes, err := h.Replace(target, result)
		if err != nil {
			return object.Errorf("replace: %v", err)
		}
		items := make([]object.Object, len(nodes))
		for i, n := range nodes {
			items[i] = nodeProxy(n)
		}
		return object.NewList(items)
	})
}

// builtinCode implements upp.code as the variadic alternating-args builtin
// documented in SPEC_FULL.md §4.F in place of JS tagged templates.
func (h *Helpers) builtinCode() *object.Builtin {
	return object.NewBuiltin("code", func(ctx context.Context, args ...object.Object) object.Object {
		parts := make([]any, len(args))
		for i, a := range args {
			if s, ok := asString(a); ok {
				parts[i] = s
				continue
			}
			if n, ok := asNode(a); ok && n != nil {
				parts[i] = n
				continue
			}
			parts[i] = a.Inspect()
		}
		n, err := h.Code(parts...)
		if err != nil {
			return object.Errorf("code: %v", err)
		}
		return nodeProxy(n)
	})
}

func (h *Helpers) builtinWalk() *object.Builtin {
	return object.NewBuiltin("walk", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("walk", 2, len(args))
		}
		node, ok := asNode(args[0])
		if !ok {
			return object.Errorf("walk: first argument must be a node")
		}
		var walkErr error
		h.Walk(node, func(n *sourcetree.Node) {
			if walkErr != nil {
				return
			}
			if _, err := callRisor(ctx, args[1], nodeProxy(n)); err != nil {
				walkErr = err
			}
		})
		if walkErr != nil {
			return object.Errorf("walk: %v", walkErr)
		}
		return object.Nil
	})
}

func (h *Helpers) builtinQuery() *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 || len(args) > 2 {
			return object.NewArgsError("query", 1, len(args))
		}
		pattern, ok := asString(args[0])
		if !ok {
			return object.Errorf("query: pattern must be a string")
		}
		node := h.Tree.Root()
		if len(args) == 2 {
			n, ok := asNode(args[1])
			if !ok {
				return object.Errorf("query: node argument must be a node")
			}
			if n != nil {
				node = n
			}
		}
		results, err := h.Query(pattern, node)
		if err != nil {
			return object.Errorf("query: %v", err)
		}
		out := make([]object.Object, len(results))
		for i, r := range results {
			captures := make(map[string]object.Object, len(r.Captures))
			for name, n := range r.Captures {
				captures[name] = nodeProxy(n)
			}
			out[i] = object.NewMap(map[string]object.Object{
				"pattern":  object.NewString(r.Pattern),
				"captures": object.NewMap(captures),
			})
		}
		return object.NewList(out)
	})
}

func (h *Helpers) builtinMatch() *object.Builtin {
	return object.NewBuiltin("match", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("match", 2, len(args))
		}
		scope, ok := asNode(args[0])
		if !ok {
			return object.Errorf("match: first argument must be a node")
		}
		pattern, ok := asString(args[1])
		if !ok {
			return object.Errorf("match: second argument must be a pattern string")
		}
		n, b, matched, err := h.Match(scope, pattern)
		if err != nil {
			return object.Errorf("match: %v", err)
		}
		if !matched {
			return object.Nil
		}
		return object.NewMap(map[string]object.Object{
			"node":     nodeProxy(n),
			"bindings": bindingsObject(b),
		})
	})
}

func (h *Helpers) builtinMatchAll() *object.Builtin {
	return object.NewBuiltin("matchAll", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("matchAll", 2, len(args))
		}
		scope, ok := asNode(args[0])
		if !ok {
			return object.Errorf("matchAll: first argument must be a node")
		}
		pattern, ok := asString(args[1])
		if !ok {
			return object.Errorf("matchAll: second argument must be a pattern string")
		}
		nodes, bindings, err := h.MatchAll(scope, pattern)
		if err != nil {
			return object.Errorf("matchAll: %v", err)
		}
		out := make([]object.Object, len(nodes))
		for i, n := range nodes {
			out[i] = object.NewMap(map[string]object.Object{
				"node":     nodeProxy(n),
				"bindings": bindingsObject(bindings[i]),
			})
		}
		return object.NewList(out)
	})
}

func (h *Helpers) builtinWithNode() *object.Builtin {
	return object.NewBuiltin("withNode", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("withNode", 2, len(args))
		}
		node, ok := asNode(args[0])
		if !ok {
			return object.Errorf("withNode: first argument must be a node")
		}
		h.WithNode(node, h.callbackFromRisor(args[1]))
		return object.Nil
	})
}

func (h *Helpers) builtinWithRoot() *object.Builtin {
	return object.NewBuiltin("withRoot", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("withRoot", 1, len(args))
		}
		h.WithRoot(h.callbackFromRisor(args[0]))
		return object.Nil
	})
}

func (h *Helpers) builtinWithScope() *object.Builtin {
	return object.NewBuiltin("withScope", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("withScope", 2, len(args))
		}
		scope, ok := asNode(args[0])
		if !ok {
			return object.Errorf("withScope: first argument must be a node")
		}
		h.WithScope(scope, h.callbackFromRisor(args[1]))
		return object.Nil
	})
}

func (h *Helpers) builtinWithMatch() *object.Builtin {
	return object.NewBuiltin("withMatch", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 3 {
			return object.NewArgsError("withMatch", 3, len(args))
		}
		scope, ok := asNode(args[0])
		if !ok {
			return object.Errorf("withMatch: first argument must be a node")
		}
		pattern, ok := asString(args[1])
		if !ok {
			return object.Errorf("withMatch: second argument must be a pattern string")
		}
		fn := args[2]
		_, err := h.WithMatch(scope, pattern, func(n *sourcetree.Node, b Bindings) (registry.MacroResult, error) {
			res, err := callRisor(ctx, fn, nodeProxy(n), bindingsObject(b))
			if err != nil {
				return registry.MacroResult{}, err
			}
			return resultFromObject(res)
		})
		if err != nil {
			return object.Errorf("withMatch: %v", err)
		}
		return object.Nil
	})
}

func (h *Helpers) builtinWithPattern() *object.Builtin {
	return object.NewBuiltin("withPattern", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 3 {
			return object.NewArgsError("withPattern", 3, len(args))
		}
		nodeType, ok := asString(args[0])
		if !ok {
			return object.Errorf("withPattern: first argument must be a type string")
		}
		matcherFn := args[1]
		cbFn := args[2]
		matcher := func(n *sourcetree.Node) bool {
			res, err := callRisor(ctx, matcherFn, nodeProxy(n))
			if err != nil {
				return false
			}
			b, ok := res.(*object.Bool)
			return ok && b.Value()
		}
		h.WithPattern(nodeType, matcher, h.callbackFromRisor(cbFn))
		return object.Nil
	})
}

func (h *Helpers) builtinWithReferences() *object.Builtin {
	return object.NewBuiltin("withReferences", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("withReferences", 2, len(args))
		}
		def, ok := asNode(args[0])
		if !ok || def == nil {
			return object.Errorf("withReferences: first argument must be a node")
		}
		if h.GetDefinitionFunc == nil {
			return object.Errorf("withReferences: no language binding configured for getDefinition")
		}
		h.WithReferences(def, h.GetDefinitionFunc, h.callbackFromRisor(args[1]))
		return object.Nil
	})
}

func (h *Helpers) builtinGetDefinition() *object.Builtin {
	return object.NewBuiltin("getDefinition", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("getDefinition", 1, len(args))
		}
		n, ok := asNode(args[0])
		if !ok {
			return object.Errorf("getDefinition: argument must be a node")
		}
		if h.GetDefinitionFunc == nil {
			return object.Errorf("getDefinition: no language binding configured")
		}
		return nodeProxy(h.GetDefinitionFunc(n))
	})
}

func (h *Helpers) builtinFindReferences() *object.Builtin {
	return object.NewBuiltin("findReferences", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("findReferences", 1, len(args))
		}
		def, ok := asNode(args[0])
		if !ok {
			return object.Errorf("findReferences: argument must be a node")
		}
		if h.FindReferencesFunc == nil {
			return object.Errorf("findReferences: no language binding configured")
		}
		refs := h.FindReferencesFunc(def)
		items := make([]object.Object, len(refs))
		for i, r := range refs {
			items[i] = nodeProxy(r)
		}
		return object.NewList(items)
	})
}

func (h *Helpers) builtinGetType() *object.Builtin {
	return object.NewBuiltin("getType", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("getType", 1, len(args))
		}
		n, ok := asNode(args[0])
		if !ok {
			return object.Errorf("getType: argument must be a node")
		}
		if h.GetTypeFunc == nil {
			return object.Errorf("getType: no language binding configured")
		}
		return object.NewString(h.GetTypeFunc(n))
	})
}

func (h *Helpers) builtinGetFunctionSignature() *object.Builtin {
	return object.NewBuiltin("getFunctionSignature", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("getFunctionSignature", 1, len(args))
		}
		n, ok := asNode(args[0])
		if !ok {
			return object.Errorf("getFunctionSignature: argument must be a node")
		}
		if h.GetFunctionSignatureFunc == nil {
			return object.Errorf("getFunctionSignature: no language binding configured")
		}
		sig := h.GetFunctionSignatureFunc(n)
		params := make([]object.Object, len(sig.Params))
		for i, p := range sig.Params {
			params[i] = object.NewMap(map[string]object.Object{
				"name": object.NewString(p.Name),
				"type": object.NewString(p.Type),
				"node": nodeProxy(p.Node),
			})
		}
		return object.NewMap(map[string]object.Object{
			"name":       object.NewString(sig.Name),
			"returnType": object.NewString(sig.ReturnType),
			"params":     object.NewList(params),
			"bodyNode":   nodeProxy(sig.BodyNode),
		})
	})
}

func (h *Helpers) builtinHoist() *object.Builtin {
	return object.NewBuiltin("hoist", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("hoist", 1, len(args))
		}
		text, ok := asString(args[0])
		if !ok {
			return object.Errorf("hoist: argument must be a string")
		}
		n, err := h.Hoist(text)
		if err != nil {
			return object.Errorf("hoist: %v", err)
		}
		return nodeProxy(n)
	})
}

func (h *Helpers) builtinCreateUniqueIdentifier() *object.Builtin {
	return object.NewBuiltin("createUniqueIdentifier", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("createUniqueIdentifier", 1, len(args))
		}
		prefix, ok := asString(args[0])
		if !ok {
			return object.Errorf("createUniqueIdentifier: argument must be a string")
		}
		return object.NewString(h.CreateUniqueIdentifier(prefix))
	})
}

func (h *Helpers) builtinLoadDependency() *object.Builtin {
	return object.NewBuiltin("loadDependency", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("loadDependency", 1, len(args))
		}
		file, ok := asString(args[0])
		if !ok {
			return object.Errorf("loadDependency: argument must be a string")
		}
		if err := h.LoadDependency(file); err != nil {
			return object.Errorf("loadDependency: %v", err)
		}
		return object.Nil
	})
}

func (h *Helpers) builtinError() *object.Builtin {
	return object.NewBuiltin("error", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("error", 2, len(args))
		}
		node, ok := asNode(args[0])
		if !ok {
			return object.Errorf("error: first argument must be a node")
		}
		msg, ok := asString(args[1])
		if !ok {
			return object.Errorf("error: second argument must be a string")
		}
		return object.Errorf("%s", h.Error(node, msg).Error())
	})
}

// Eval runs a macro body (or dependency-installed rule body) against args —
// the invocation's textual arguments, or, for a transformer macro, the
// context node prepended ahead of them (spec.md §4.E: transformer macros
// "receive the subsequent AST node"). The script's final expression value
// becomes the macro's MacroResult.
func Eval(ctx context.Context, record *registry.MacroRecord, args []string, h *Helpers) (registry.MacroResult, error) {
	globals := map[string]any{"upp": h.Module()}

	params := record.Params
	if record.IsTransformer() {
		globals["node"] = nodeProxy(h.ContextNode)
		params = params[1:]
	}

	argIdx := 0
	for _, p := range params {
		if variadic := len(p) > 3 && p[:3] == "..."; variadic {
			name := p[3:]
			rest := make([]object.Object, 0, len(args)-argIdx)
			for ; argIdx < len(args); argIdx++ {
				rest = append(rest, object.NewString(args[argIdx]))
			}
			globals[name] = object.NewList(rest)
			continue
		}
		if argIdx < len(args) {
			globals[p] = object.NewString(args[argIdx])
			argIdx++
		} else {
			globals[p] = object.Nil
		}
	}

	result, err := risor.Eval(ctx, record.Body, risor.WithGlobals(globals))
	if err != nil {
		return registry.MacroResult{}, fmt.Errorf("macro %q: %w", record.Name, err)
	}
	return resultFromObject(result)
}

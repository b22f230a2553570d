// Package clang implements the C/C++ Helper API binding (spec.md §4.G):
// getDefinition, findReferences, getType, and getFunctionSignature, walking
// the tree-sitter-c/tree-sitter-cpp grammars' declaration and scope node
// types.
package clang

import (
	"strings"

	"github.com/upplang/upp/internal/sourcetree"
)

// enclosingScopes walks n's ancestors, returning every scope node from
// innermost to outermost: compound_statement and translation_unit as
// themselves, and a function_definition's parameter_list in the
// function_definition's place (spec.md §4.G: "walks enclosing scopes
// (compound_statement, function_definition, translation_unit,
// parameter_list)" — a function_definition contributes nothing of its own;
// only the names its parameter_list declares are visible to its body, which
// is why the parameter_list substitutes for it here rather than appearing
// as a separate, later entry).
func enclosingScopes(n *sourcetree.Node) []*sourcetree.Node {
	var scopes []*sourcetree.Node
	for cur := n.Parent(); cur != nil; cur = cur.Parent() {
		switch cur.Type {
		case "compound_statement", "translation_unit":
			scopes = append(scopes, cur)
		case "function_definition":
			if pl := functionParameterList(cur); pl != nil {
				scopes = append(scopes, pl)
			}
		}
	}
	return scopes
}

// functionParameterList finds a function_definition's parameter_list by
// unwrapping its declarator chain down to the function_declarator.
func functionParameterList(fn *sourcetree.Node) *sourcetree.Node {
	d := fn.ChildForFieldName("declarator")
	for d != nil && d.Type != "function_declarator" {
		d = d.ChildForFieldName("declarator")
	}
	if d == nil {
		return nil
	}
	return d.ChildForFieldName("parameters")
}

// GetDefinition resolves idNode (an identifier use) to the identifier node
// of its declaration, honoring shadowing by searching scopes innermost
// first. A function's own name belongs to the scope enclosing the
// function_definition, not to the function's body (spec.md §4.G).
func GetDefinition(idNode *sourcetree.Node) *sourcetree.Node {
	if idNode == nil {
		return nil
	}
	name := idNode.Text()
	if name == "" {
		return nil
	}

	for _, scope := range enclosingScopes(idNode) {
		if d := findDeclarationIn(scope, name, idNode); d != nil {
			return d
		}
	}
	return nil
}

// findDeclarationIn searches the direct (non-nested-scope) contents of
// scope for a declaration of name. In a compound_statement the search stops
// at the child that contains use, so only declarations textually before the
// use are found. A parameter_list and a translation_unit are searched in
// full, so a function's own name and file-scope declarations that follow
// the use both resolve.
func findDeclarationIn(scope *sourcetree.Node, name string, use *sourcetree.Node) *sourcetree.Node {
	switch scope.Type {
	case "parameter_list":
		for _, child := range scope.Children() {
			if child.Type != "parameter_declaration" {
				continue
			}
			if id := declaredIdentifier(child); id != nil && id.Text() == name {
				return id
			}
		}
		return nil

	case "compound_statement", "translation_unit":
		for _, child := range scope.Children() {
			if child == use || isDescendant(child, use) {
				// Declarations after the use point are not yet in scope at
				// block level (ordinary C shadowing rule); stop here. File
				// level keeps searching.
				if scope.Type == "compound_statement" {
					return nil
				}
			}
			switch child.Type {
			case "declaration":
				if id := declaredIdentifier(child); id != nil && id.Text() == name {
					return id
				}
			case "function_definition":
				if id := functionName(child); id != nil && id.Text() == name {
					return id
				}
			}
		}
		return nil

	default:
		return nil
	}
}

func isDescendant(ancestor, n *sourcetree.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent() {
		if cur == ancestor {
			return true
		}
	}
	return false
}

// declaredIdentifier finds the identifier a "declaration" or
// "parameter_declaration" node ultimately names, unwrapping
// pointer_declarator/array_declarator/init_declarator/function_declarator
// nesting.
func declaredIdentifier(decl *sourcetree.Node) *sourcetree.Node {
	d := decl.ChildForFieldName("declarator")
	if d == nil {
		return nil
	}
	return innermostIdentifier(d)
}

// functionName extracts a function_definition's declared name.
func functionName(fn *sourcetree.Node) *sourcetree.Node {
	d := fn.ChildForFieldName("declarator")
	if d == nil {
		return nil
	}
	return innermostIdentifier(d)
}

// innermostIdentifier unwraps declarator wrapper nodes
// (pointer_declarator/array_declarator/function_declarator/
// parenthesized_declarator/init_declarator) down to the identifier they
// ultimately name.
func innermostIdentifier(n *sourcetree.Node) *sourcetree.Node {
	for n != nil {
		switch n.Type {
		case "identifier", "field_identifier", "type_identifier":
			return n
		case "pointer_declarator", "array_declarator", "function_declarator",
			"parenthesized_declarator", "init_declarator", "reference_declarator":
			inner := n.ChildForFieldName("declarator")
			if inner == nil {
				inner = firstChildOfAny(n, "identifier", "field_identifier",
					"pointer_declarator", "array_declarator", "function_declarator",
					"parenthesized_declarator")
			}
			n = inner
		default:
			return nil
		}
	}
	return nil
}

func firstChildOfAny(n *sourcetree.Node, types ...string) *sourcetree.Node {
	for _, c := range n.Children() {
		for _, t := range types {
			if c.Type == t {
				return c
			}
		}
	}
	return nil
}

// ownerScope finds the subtree defNode's name is visible within: a
// parameter's visibility is its function's body, not the parameter_list
// itself; a local declaration's is its enclosing compound_statement; a
// global's is the whole translation_unit.
func ownerScope(defNode *sourcetree.Node) *sourcetree.Node {
	var last *sourcetree.Node
	for cur := defNode.Parent(); cur != nil; cur = cur.Parent() {
		last = cur
		switch cur.Type {
		case "compound_statement", "translation_unit":
			return cur
		case "parameter_list":
			if fn := functionDefinitionOwning(cur); fn != nil {
				if body := fn.ChildForFieldName("body"); body != nil {
					return body
				}
			}
			return cur
		}
	}
	if last != nil {
		return last
	}
	return defNode
}

func functionDefinitionOwning(n *sourcetree.Node) *sourcetree.Node {
	for cur := n.Parent(); cur != nil; cur = cur.Parent() {
		if cur.Type == "function_definition" {
			return cur
		}
	}
	return nil
}

// FindReferences returns every identifier in defNode's scope whose resolved
// definition is defNode (spec.md §4.G: "symmetric to getDefinition").
// Implemented generically against GetDefinition itself, which makes Testable
// Property 6 (scope fidelity) hold by construction rather than by keeping
// two algorithms in sync.
func FindReferences(defNode *sourcetree.Node) []*sourcetree.Node {
	if defNode == nil {
		return nil
	}
	root := ownerScope(defNode)

	var refs []*sourcetree.Node
	var walk func(n *sourcetree.Node)
	walk = func(n *sourcetree.Node) {
		if n == nil {
			return
		}
		if n.Type == "identifier" && n != defNode {
			if GetDefinition(n) == defNode {
				refs = append(refs, n)
			}
		}
		for _, c := range n.Children() {
			walk(c)
		}
	}
	walk(root)
	return refs
}

// GetType reconstructs defNode's declared type: qualifiers and the base
// type precede the name, pointer/array suffixes follow declarator nesting
// order (spec.md §4.G). Falls back to "void *" when the declarator chain
// can't be resolved.
func GetType(defNode *sourcetree.Node) string {
	if defNode == nil {
		return "void *"
	}
	decl := enclosingDeclaration(defNode)
	if decl == nil {
		return "void *"
	}

	base := baseType(decl)
	if base == "" {
		return "void *"
	}

	declarator := decl.ChildForFieldName("declarator")
	suffix := declaratorSuffix(declarator, defNode)
	if declarator == nil {
		return "void *"
	}
	return strings.TrimSpace(base + suffix)
}

// enclosingDeclaration walks up from an identifier to the nearest
// declaration/parameter_declaration/function_definition ancestor.
func enclosingDeclaration(n *sourcetree.Node) *sourcetree.Node {
	for cur := n; cur != nil; cur = cur.Parent() {
		switch cur.Type {
		case "declaration", "parameter_declaration", "function_definition":
			return cur
		}
	}
	return nil
}

// baseType concatenates a declaration's leading qualifiers/storage-class
// specifiers and its core type node's text.
func baseType(decl *sourcetree.Node) string {
	typeNode := decl.ChildForFieldName("type")
	if typeNode == nil {
		return ""
	}
	var qualifiers []string
	for _, c := range decl.Children() {
		if c == typeNode {
			break
		}
		switch c.Type {
		case "type_qualifier", "storage_class_specifier":
			qualifiers = append(qualifiers, c.Text())
		}
	}
	parts := append(qualifiers, typeNode.Text())
	return strings.Join(parts, " ")
}

// declaratorSuffix walks from declarator down to target, emitting "*" for
// each pointer_declarator level and "[]" for each array_declarator level,
// in the order the declarator nests them (spec.md §4.G: "appending */[]
// suffixes per declarator nesting").
func declaratorSuffix(declarator, target *sourcetree.Node) string {
	var b strings.Builder
	n := declarator
	for n != nil {
		switch n.Type {
		case "pointer_declarator":
			b.WriteString(" *")
			n = n.ChildForFieldName("declarator")
		case "array_declarator":
			b.WriteString("[]")
			n = n.ChildForFieldName("declarator")
		case "init_declarator", "parenthesized_declarator", "function_declarator":
			n = n.ChildForFieldName("declarator")
		default:
			return b.String()
		}
	}
	return b.String()
}

// FunctionSignature is getFunctionSignature's return value (spec.md §4.G:
// "{name, returnType, params, bodyNode}").
type FunctionSignature struct {
	Name       string
	ReturnType string
	Params     []Parameter
	BodyNode   *sourcetree.Node
}

// Parameter is one entry of a FunctionSignature's Params.
type Parameter struct {
	Name string
	Type string
	Node *sourcetree.Node
}

// GetFunctionSignature extracts name, return type, parameters, and body
// from a function_definition node.
func GetFunctionSignature(fn *sourcetree.Node) FunctionSignature {
	sig := FunctionSignature{BodyNode: fn.ChildForFieldName("body")}

	declarator := fn.ChildForFieldName("declarator")
	fnDeclarator := declarator
	for fnDeclarator != nil && fnDeclarator.Type != "function_declarator" {
		fnDeclarator = fnDeclarator.ChildForFieldName("declarator")
	}

	if id := innermostIdentifier(declarator); id != nil {
		sig.Name = id.Text()
	}

	base := baseType(fn)
	sig.ReturnType = strings.TrimSpace(base + declaratorSuffix(declarator, fnDeclarator))

	if fnDeclarator == nil {
		return sig
	}
	paramList := fnDeclarator.ChildForFieldName("parameters")
	if paramList == nil {
		return sig
	}
	for _, p := range paramList.Children() {
		if p.Type != "parameter_declaration" {
			continue
		}
		param := Parameter{Node: p}
		if id := declaredIdentifier(p); id != nil {
			param.Name = id.Text()
			param.Type = strings.TrimSpace(baseType(p) + declaratorSuffix(p.ChildForFieldName("declarator"), id))
		} else {
			param.Type = strings.TrimSpace(baseType(p))
		}
		sig.Params = append(sig.Params, param)
	}
	return sig
}

package clang

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// buildAddFunction constructs the AST shape for:
//
//	int add(int a, int b) { a ; b ; }
//
// (body simplified to two bare identifier statements referencing the
// parameters, which is all GetDefinition/FindReferences need to exercise).
func buildAddFunction() *fakeNode {
	paramA := node("parameter_declaration", map[string]int{"type": 0, "declarator": 1},
		leaf("primitive_type", "int"), leaf("identifier", "a"))
	paramB := node("parameter_declaration", map[string]int{"type": 0, "declarator": 1},
		leaf("primitive_type", "int"), leaf("identifier", "b"))
	paramList := node("parameter_list", nil, paramA, paramB)

	fnDeclarator := node("function_declarator", map[string]int{"declarator": 0, "parameters": 1},
		leaf("identifier", "add"), paramList)

	useA := leaf("identifier", "a")
	useB := leaf("identifier", "b")
	body := node("compound_statement", nil, useA, useB)

	return node("function_definition", map[string]int{"type": 0, "declarator": 1, "body": 2},
		leaf("primitive_type", "int"), fnDeclarator, body)
}

func TestGetDefinitionResolvesParameterFromFunctionBody(t *testing.T) {
	fn := buildAddFunction()
	tu := node("translation_unit", nil, fn)
	tree := buildTree(tu)

	fnNode := tree.Root().Children()[0]
	declarator := fnNode.ChildForFieldName("declarator")
	paramList := declarator.ChildForFieldName("parameters")
	defA := paramList.Children()[0].ChildForFieldName("declarator")
	defB := paramList.Children()[1].ChildForFieldName("declarator")

	body := fnNode.ChildForFieldName("body")
	useA, useB := body.Children()[0], body.Children()[1]

	require.Same(t, defA, GetDefinition(useA))
	require.Same(t, defB, GetDefinition(useB))
}

func TestGetDefinitionSearchesOuterScopeWhenInnerHasNoMatch(t *testing.T) {
	globalDecl := node("declaration", map[string]int{"type": 0, "declarator": 1},
		leaf("primitive_type", "int"), leaf("identifier", "counter"))

	useCounter := leaf("identifier", "counter")
	body := node("compound_statement", nil, useCounter)
	fn := node("function_definition", map[string]int{"type": 0, "declarator": 1, "body": 2},
		leaf("primitive_type", "void"),
		node("function_declarator", map[string]int{"declarator": 0, "parameters": 1},
			leaf("identifier", "tick"), node("parameter_list", nil)),
		body)

	tu := node("translation_unit", nil, globalDecl, fn)
	tree := buildTree(tu)

	decl := tree.Root().Children()[0].ChildForFieldName("declarator")
	fnNode := tree.Root().Children()[1]
	use := fnNode.ChildForFieldName("body").Children()[0]

	require.Same(t, decl, GetDefinition(use))
}

func TestFindReferencesIsSymmetricWithGetDefinition(t *testing.T) {
	fn := buildAddFunction()
	tu := node("translation_unit", nil, fn)
	tree := buildTree(tu)

	fnNode := tree.Root().Children()[0]
	paramList := fnNode.ChildForFieldName("declarator").ChildForFieldName("parameters")
	defA := paramList.Children()[0].ChildForFieldName("declarator")

	refs := FindReferences(defA)
	require.Len(t, refs, 1)
	require.Equal(t, "a", refs[0].Text())
	require.Same(t, defA, GetDefinition(refs[0]))
}

func TestGetTypeReconstructsPointerAndArraySuffixes(t *testing.T) {
	plainDecl := node("declaration", map[string]int{"type": 0, "declarator": 1},
		leaf("primitive_type", "int"), leaf("identifier", "x"))

	ptrDecl := node("declaration", map[string]int{"type": 0, "declarator": 1},
		leaf("primitive_type", "char"),
		node("pointer_declarator", map[string]int{"declarator": 0}, leaf("identifier", "name")))

	arrDecl := node("declaration", map[string]int{"type": 0, "declarator": 1},
		leaf("primitive_type", "int"),
		node("array_declarator", map[string]int{"declarator": 0}, leaf("identifier", "buf")))

	tu := node("translation_unit", nil, plainDecl, ptrDecl, arrDecl)
	tree := buildTree(tu)

	xID := tree.Root().Children()[0].ChildForFieldName("declarator")
	nameID := tree.Root().Children()[1].ChildForFieldName("declarator").ChildForFieldName("declarator")
	bufID := tree.Root().Children()[2].ChildForFieldName("declarator").ChildForFieldName("declarator")

	require.Equal(t, "int", GetType(xID))
	require.Equal(t, "char *", GetType(nameID))
	require.Equal(t, "int[]", GetType(bufID))
}

func TestGetTypeFallsBackToVoidPointerWithoutADeclaration(t *testing.T) {
	orphan := leaf("identifier", "mystery")
	tu := node("translation_unit", nil, orphan)
	tree := buildTree(tu)

	require.Equal(t, "void *", GetType(tree.Root().Children()[0]))
}

func TestGetFunctionSignatureExtractsNameReturnTypeAndParams(t *testing.T) {
	fn := buildAddFunction()
	tu := node("translation_unit", nil, fn)
	tree := buildTree(tu)

	sig := GetFunctionSignature(tree.Root().Children()[0])
	require.Equal(t, "add", sig.Name)
	require.Equal(t, "int", sig.ReturnType)
	require.Len(t, sig.Params, 2)
	require.Equal(t, "a", sig.Params[0].Name)
	require.Equal(t, "int", sig.Params[0].Type)
	require.Equal(t, "b", sig.Params[1].Name)
	require.NotNil(t, sig.BodyNode)
}

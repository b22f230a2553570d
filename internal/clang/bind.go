package clang

import (
	"github.com/upplang/upp/internal/macroapi"
	"github.com/upplang/upp/internal/sourcetree"
)

// Bind installs this package's four functions onto h, making
// upp.getDefinition/findReferences/getType/getFunctionSignature and
// withReferences available to macro bodies processing a C or C++ file
// (spec.md §4.G).
func Bind(h *macroapi.Helpers) {
	h.GetDefinitionFunc = GetDefinition
	h.FindReferencesFunc = FindReferences
	h.GetTypeFunc = GetType
	h.GetFunctionSignatureFunc = func(n *sourcetree.Node) macroapi.FunctionSignature {
		sig := GetFunctionSignature(n)
		params := make([]macroapi.FunctionParam, len(sig.Params))
		for i, p := range sig.Params {
			params[i] = macroapi.FunctionParam{Name: p.Name, Type: p.Type, Node: p.Node}
		}
		return macroapi.FunctionSignature{
			Name:       sig.Name,
			ReturnType: sig.ReturnType,
			Params:     params,
			BodyNode:   sig.BodyNode,
		}
	}
}

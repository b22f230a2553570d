package parseradapter

import (
	"path/filepath"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_c "github.com/tree-sitter/tree-sitter-c/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
)

// extensionLanguage maps a file extension (without the dot) to a language
// name understood by this adapter. spec.md §1 targets C; this port also
// wires C++ to demonstrate the Parser Adapter's language-descriptor
// genericity (SPEC_FULL.md §4.A) without adding a second semantic-helper
// binding (component G stays C/C++-shared, since C++'s syntax is a
// superset for the constructs this engine cares about).
var extensionLanguage = map[string]string{
	"c":   "c",
	"h":   "c",
	"cup": "c",
	"hup": "c",
	"cc":  "cpp",
	"cpp": "cpp",
	"cxx": "cpp",
	"hpp": "cpp",
	"hxx": "cpp",
}

// envelopeTemplate describes how Tree.Fragment wraps a bare fragment so the
// grammar accepts an expression, statement, or declaration indifferently
// (spec.md §4.A: "wraps a fragment in a minimal envelope"). The fragment
// text is inserted between prefix and suffix; Adapter.ParseFragment
// (parser.go) rebases the parsed envelope's offsets onto the fragment text.
type envelopeTemplate struct {
	prefix string
	suffix string
}

var envelopes = map[string]envelopeTemplate{
	// Wrapping in a function body lets the grammar accept expressions
	// (as expression-statements), statements, and local declarations all
	// through the same envelope — exactly the "indifferent to production
	// class" property spec.md §4.A requires.
	"c":   {prefix: "void __upp_fragment__(void){\n", suffix: "\n}\n"},
	"cpp": {prefix: "void __upp_fragment__(){\n", suffix: "\n}\n"},
}

// MapPath returns the language name for path's extension, or "" if unknown.
func MapPath(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	return extensionLanguage[ext]
}

// languageGrammar returns the compiled tree_sitter.Language for name, or
// nil if unsupported.
func languageGrammar(name string) *tree_sitter.Language {
	switch name {
	case "c":
		return tree_sitter.NewLanguage(tree_sitter_c.Language())
	case "cpp":
		return tree_sitter.NewLanguage(tree_sitter_cpp.Language())
	default:
		return nil
	}
}

// SupportedLanguages lists every language name this adapter can parse.
func SupportedLanguages() []string {
	return []string{"c", "cpp"}
}

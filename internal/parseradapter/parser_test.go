package parseradapter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFullBuildsTranslationUnit(t *testing.T) {
	a := NewAdapterWithPoolSize(1)
	defer a.Close()

	raw, err := a.ParseFull("c", "int x = 1;\n")
	require.NoError(t, err)
	require.NotEmpty(t, raw.Nodes)
	require.Equal(t, "translation_unit", raw.Nodes[raw.Root].Type)
}

func TestParseFullUnsupportedLanguageDegrades(t *testing.T) {
	a := NewAdapterWithPoolSize(1)
	defer a.Close()

	raw, err := a.ParseFull("rust", "fn main() {}")
	require.NoError(t, err)
	require.Equal(t, "ERROR", raw.Nodes[raw.Root].Type)
}

func TestParseFragmentRebasesToInnerOffsets(t *testing.T) {
	a := NewAdapterWithPoolSize(1)
	defer a.Close()

	text := "x + 1"
	raw, start, end, err := a.ParseFragment("c", text)
	require.NoError(t, err)
	require.Equal(t, 0, start)
	require.Equal(t, len(text), end)
	require.NotEmpty(t, raw.Nodes)
}

func TestQueryFindsFunctionDefinitions(t *testing.T) {
	a := NewAdapterWithPoolSize(1)
	defer a.Close()

	source := []byte("int add(int a, int b) { return a + b; }\nint sub(int a, int b) { return a - b; }\n")
	pattern := "(function_definition declarator: (function_declarator declarator: (identifier) @name))"

	matches, err := a.Query("c", pattern, source, 0, len(source))
	require.NoError(t, err)
	require.Len(t, matches, 2)

	var names []string
	for _, m := range matches {
		span, ok := m.Captures["name"]
		require.True(t, ok)
		names = append(names, string(source[span.Start:span.End]))
	}
	require.ElementsMatch(t, []string{"add", "sub"}, names)
}

func TestQueryCompiledPatternIsCached(t *testing.T) {
	a := NewAdapterWithPoolSize(1)
	defer a.Close()

	pattern := "(identifier) @id"
	source := []byte("int x;")

	first, err := a.queryCache.Load("c", pattern)
	require.NoError(t, err)
	second, err := a.queryCache.Load("c", pattern)
	require.NoError(t, err)
	require.Same(t, first, second)

	_, err = a.Query("c", pattern, source, 0, len(source))
	require.NoError(t, err)
}

func TestQueryRejectsUnregisteredLanguage(t *testing.T) {
	a := NewAdapterWithPoolSize(1)
	defer a.Close()

	_, err := a.Query("cobol", "(identifier) @x", []byte("x"), 0, 1)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "not registered"))
}

func TestMapPathRecognizesExtensions(t *testing.T) {
	require.Equal(t, "c", MapPath("foo.c"))
	require.Equal(t, "c", MapPath("foo.h"))
	require.Equal(t, "cpp", MapPath("foo.cpp"))
	require.Equal(t, "cpp", MapPath("foo.hpp"))
	require.Equal(t, "", MapPath("foo.rs"))
}

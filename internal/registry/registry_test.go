package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/upplang/upp/internal/depcache"
	"github.com/upplang/upp/internal/sourcetree"
)

type fakeLoader struct {
	files map[string]string
}

func (f *fakeLoader) ReadFile(path string) (string, error) {
	s, ok := f.files[path]
	if !ok {
		return "", &pathError{path}
	}
	return s, nil
}

func (f *fakeLoader) Abs(path string) (string, error) { return path, nil }

func (f *fakeLoader) ModTime(path string) (time.Time, error) { return time.Time{}, nil }

type pathError struct{ path string }

func (e *pathError) Error() string { return "no such file: " + e.path }

func newTestRegistry(loader Loader, runner DependencyRunner) *Registry {
	return New(depcache.New(), nil, nil, loader, runner, "c")
}

func TestExtractDefinesRegistersMacroAndBlanksRegion(t *testing.T) {
	r := newTestRegistry(&fakeLoader{}, nil)
	src := "@define double(node) { return upp.code`${node} * 2`; }\nint x = 1;\n"

	res, err := r.PrepareSource(src, "/main.cup")
	require.NoError(t, err)

	m, ok := r.GetMacro("double")
	require.True(t, ok)
	require.Equal(t, []string{"node"}, m.Params)
	require.True(t, m.IsTransformer())

	require.NotContains(t, res.CleanSource, "@define")
	require.Contains(t, res.CleanSource, "int x = 1;")
	require.Equal(t, len(src), len(res.CleanSource))
}

func TestExtractDefinesPreservesLineNumbers(t *testing.T) {
	r := newTestRegistry(&fakeLoader{}, nil)
	src := "@define noop() {\n  return \"\";\n}\nint after;\n"

	res, err := r.PrepareSource(src, "/main.cup")
	require.NoError(t, err)

	beforeLines := 0
	for _, c := range src {
		if c == '\n' {
			beforeLines++
		}
	}
	afterLines := 0
	for _, c := range res.CleanSource {
		if c == '\n' {
			afterLines++
		}
	}
	require.Equal(t, beforeLines, afterLines)
}

func TestAbsorbInvocationsWrapsInComment(t *testing.T) {
	r := newTestRegistry(&fakeLoader{}, nil)
	src := "int x = 1;\n@trace(foo, bar)\nint y;\n"

	res, err := r.PrepareSource(src, "/main.cup")
	require.NoError(t, err)
	require.Len(t, res.Invocations, 1)

	inv := res.Invocations[0]
	require.Equal(t, "trace", inv.Name)
	require.Equal(t, []string{"foo", "bar"}, inv.Args)
	require.Equal(t, "/*@trace(foo,bar)*/", res.CleanSource[inv.StartIndex:inv.EndIndex])
}

func TestInvocationsInsideStringsAndCommentsAreIgnored(t *testing.T) {
	r := newTestRegistry(&fakeLoader{}, nil)
	src := "// @notreal(x)\nconst char *s = \"@alsonotreal(y)\";\n@real(z)\n"

	res, err := r.PrepareSource(src, "/main.cup")
	require.NoError(t, err)
	require.Len(t, res.Invocations, 1)
	require.Equal(t, "real", res.Invocations[0].Name)
}

func TestIncludeResolvesAndMergesMacros(t *testing.T) {
	loader := &fakeLoader{files: map[string]string{
		"/lib.cup": "@define helper() { return 1; }\n",
	}}
	var runner DependencyRunner = func(source, path string, parent *Registry) (string, *Registry, error) {
		child := parent.NewChild(path)
		res, err := child.PrepareSource(source, path)
		if err != nil {
			return "", nil, err
		}
		return res.CleanSource, child, nil
	}
	r := newTestRegistry(loader, runner)

	src := "@include \"lib.cup\"\nint x;\n"
	res, err := r.PrepareSource(src, "/main.cup")
	require.NoError(t, err)

	_, ok := r.GetMacro("helper")
	require.True(t, ok)
	require.NotContains(t, res.CleanSource, "@include")
}

func TestIncludeExportsPendingRuleOntoParent(t *testing.T) {
	loader := &fakeLoader{files: map[string]string{
		"/lib.cup": "@define exportsRule() { return \"\"; }\n@exportsRule()\n",
	}}
	var exported *PendingRule
	var runner DependencyRunner = func(source, path string, parent *Registry) (string, *Registry, error) {
		child := parent.NewChild(path)
		res, err := child.PrepareSource(source, path)
		if err != nil {
			return "", nil, err
		}
		exported = child.AddPendingRule(ScopeRoot, nil, func(n *sourcetree.Node) bool { return false }, nil)
		return res.CleanSource, child, nil
	}
	r := newTestRegistry(loader, runner)

	_, err := r.PrepareSource("@include \"lib.cup\"\nint x;\n", "/main.cup")
	require.NoError(t, err)

	require.Len(t, r.PendingRules, 1)
	require.Same(t, exported, r.PendingRules[0])
}

func TestIncludeSecondTimeReHomesRuleFromCache(t *testing.T) {
	loader := &fakeLoader{files: map[string]string{
		"/lib.cup": "@define noop() { return \"\"; }\n",
	}}
	calls := 0
	var runner DependencyRunner = func(source, path string, parent *Registry) (string, *Registry, error) {
		calls++
		child := parent.NewChild(path)
		res, err := child.PrepareSource(source, path)
		if err != nil {
			return "", nil, err
		}
		child.AddPendingRule(ScopeRoot, nil, func(n *sourcetree.Node) bool { return false }, nil)
		return res.CleanSource, child, nil
	}
	r := newTestRegistry(loader, runner)

	require.NoError(t, r.LoadDependency("lib.cup", "/main.cup"))
	require.Equal(t, 1, calls)
	require.Len(t, r.PendingRules, 1)

	r2 := r.NewChild("/other.cup")
	require.NoError(t, r2.LoadDependency("lib.cup", "/other.cup"))
	require.Equal(t, 1, calls, "second include of the same path should hit the dependency cache, not rerun")
	require.Len(t, r2.PendingRules, 1)
}

func TestPrepareSourceIsIdempotent(t *testing.T) {
	r1 := newTestRegistry(&fakeLoader{}, nil)
	src := "@define trace() { return \"\"; }\n@trace()\nint x;\n"
	first, err := r1.PrepareSource(src, "/main.cup")
	require.NoError(t, err)

	r2 := newTestRegistry(&fakeLoader{}, nil)
	second, err := r2.PrepareSource(first.CleanSource, "/main.cup")
	require.NoError(t, err)

	require.Equal(t, first.CleanSource, second.CleanSource)
}

func TestCreateUniqueIdentifierIsMonotonic(t *testing.T) {
	r := newTestRegistry(&fakeLoader{}, nil)
	require.Equal(t, "tmp0", r.CreateUniqueIdentifier("tmp"))
	require.Equal(t, "tmp1", r.CreateUniqueIdentifier("tmp"))
	require.Equal(t, "other0", r.CreateUniqueIdentifier("other"))
}

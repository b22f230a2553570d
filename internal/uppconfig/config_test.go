package uppconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))
}

func TestDefaultEnablesComments(t *testing.T) {
	cfg := Default()
	require.True(t, cfg.CommentsEnabled())
	require.False(t, cfg.StrictConvergenceEnabled())
}

func TestLoadReadsPlainConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upp.json")
	writeJSON(t, path, map[string]any{
		"includePaths": []string{"vendor/"},
		"core":         []string{"core.upp"},
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"vendor/"}, cfg.IncludePaths)
	require.Equal(t, []string{"core.upp"}, cfg.Core)
	require.Nil(t, cfg.Comments)
	require.True(t, cfg.CommentsEnabled())
}

func TestLoadExpandsUPPEnvVar(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Setenv("UPP", dir))
	defer os.Unsetenv("UPP")

	path := filepath.Join(dir, "upp.json")
	writeJSON(t, path, map[string]any{
		"includePaths": []string{"$UPP/vendor"},
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{dir + "/vendor"}, cfg.IncludePaths)
}

func TestMergeChildCommentsFalseOverridesParentTrue(t *testing.T) {
	parent := Config{Comments: boolPtr(true)}
	child := Config{Comments: boolPtr(false)}

	merged := Merge(parent, child)
	require.False(t, merged.CommentsEnabled())
}

func TestMergeChildLeavesCommentsUnsetInheritsParent(t *testing.T) {
	parent := Config{Comments: boolPtr(false)}
	child := Config{}

	merged := Merge(parent, child)
	require.False(t, merged.CommentsEnabled())
}

func TestMergeStrictConvergenceChildOverridesParent(t *testing.T) {
	parent := Config{StrictConvergence: boolPtr(false)}
	child := Config{StrictConvergence: boolPtr(true)}

	merged := Merge(parent, child)
	require.True(t, merged.StrictConvergenceEnabled())
}

func TestMergeLangOverridesPerExtension(t *testing.T) {
	parent := Config{Lang: map[string]LangConfig{
		"c":   {Compile: "gcc -c $FILE", Run: "./a.out"},
		"cpp": {Compile: "g++ -c $FILE"},
	}}
	child := Config{Lang: map[string]LangConfig{
		"c": {Compile: "clang -c $FILE"},
	}}

	merged := Merge(parent, child)
	require.Equal(t, "clang -c $FILE", merged.Lang["c"].Compile)
	require.Equal(t, "g++ -c $FILE", merged.Lang["cpp"].Compile)
}

func TestLoadFollowsExtendsChain(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.json")
	writeJSON(t, basePath, map[string]any{
		"includePaths": []string{"base/"},
		"core":         []string{"base-core.upp"},
		"comments":     true,
	})

	childPath := filepath.Join(dir, "upp.json")
	writeJSON(t, childPath, map[string]any{
		"extends":      "base.json",
		"includePaths": []string{"child/"},
		"core":         []string{"child-core.upp"},
		"comments":     false,
	})

	cfg, err := Load(childPath)
	require.NoError(t, err)
	require.False(t, cfg.CommentsEnabled())
	require.Equal(t, []string{"child/", "base/"}, cfg.IncludePaths)
	require.Equal(t, []string{"base-core.upp", "child-core.upp"}, cfg.Core)
}

func TestLoadDetectsExtendsCycle(t *testing.T) {
	dir := t.TempDir()
	aPath := filepath.Join(dir, "a.json")
	bPath := filepath.Join(dir, "b.json")
	writeJSON(t, aPath, map[string]any{"extends": "b.json"})
	writeJSON(t, bPath, map[string]any{"extends": "a.json"})

	_, err := Load(aPath)
	require.Error(t, err)
}

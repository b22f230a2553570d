package uppconfig

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestIncludePathsChildFirstThenParentsOutward proves the Open Question
// resolution recorded in SPEC_FULL.md: when a chain of three configs
// extends one another, @include resolution walks the child's own
// includePaths first, then each ancestor's in turn outward from the child.
func TestIncludePathsChildFirstThenParentsOutward(t *testing.T) {
	dir := t.TempDir()

	grandparent := filepath.Join(dir, "grandparent.json")
	writeJSON(t, grandparent, map[string]any{
		"includePaths": []string{"gp/"},
	})

	parent := filepath.Join(dir, "parent.json")
	writeJSON(t, parent, map[string]any{
		"extends":      "grandparent.json",
		"includePaths": []string{"p/"},
	})

	child := filepath.Join(dir, "upp.json")
	writeJSON(t, child, map[string]any{
		"extends":      "parent.json",
		"includePaths": []string{"c/"},
	})

	cfg, err := Load(child)
	require.NoError(t, err)
	require.Equal(t, []string{"c/", "p/", "gp/"}, cfg.IncludePaths)
}

// TestCoreFilesLoadOutermostParentFirst proves core's merge order is the
// opposite of includePaths: core is auto-loaded before any user source, so
// an ancestor's core macros must be available before a descendant's own
// additions build on them.
func TestCoreFilesLoadOutermostParentFirst(t *testing.T) {
	dir := t.TempDir()

	parent := filepath.Join(dir, "parent.json")
	writeJSON(t, parent, map[string]any{
		"core": []string{"parent-core.upp"},
	})

	child := filepath.Join(dir, "upp.json")
	writeJSON(t, child, map[string]any{
		"extends": "parent.json",
		"core":    []string{"child-core.upp"},
	})

	cfg, err := Load(child)
	require.NoError(t, err)
	require.Equal(t, []string{"parent-core.upp", "child-core.upp"}, cfg.Core)
}

func TestIncludePathsWithNoExtendsIsJustItsOwn(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upp.json")
	writeJSON(t, path, map[string]any{
		"includePaths": []string{"only/"},
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"only/"}, cfg.IncludePaths)
}

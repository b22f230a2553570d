package main

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasGlobMetaDetectsWildcards(t *testing.T) {
	require.False(t, hasGlobMeta("core/macros.cup"))
	require.True(t, hasGlobMeta("core/*.cup"))
	require.True(t, hasGlobMeta("core/**/*.cup"))
	require.True(t, hasGlobMeta("core/[ab].cup"))
}

func TestExpandCorePatternsPassesLiteralsThrough(t *testing.T) {
	out, err := expandCorePatterns([]string{"core/a.cup", "core/b.cup"})
	require.NoError(t, err)
	require.Equal(t, []string{"core/a.cup", "core/b.cup"}, out)
}

func TestExpandCorePatternsWalksAndFiltersGlobs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cup"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.hup"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "c.cup"), []byte(""), 0o644))

	out, err := expandCorePatterns([]string{filepath.Join(dir, "**", "*.cup")})
	require.NoError(t, err)

	sort.Strings(out)
	require.Equal(t, []string{
		filepath.Join(dir, "a.cup"),
		filepath.Join(dir, "sub", "c.cup"),
	}, out)
}

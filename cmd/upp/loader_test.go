package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFSLoaderReadsRealFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.cup")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	var loader fsLoader
	content, err := loader.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "content", content)

	abs, err := loader.Abs(path)
	require.NoError(t, err)
	require.Equal(t, path, abs)

	mtime, err := loader.ModTime(path)
	require.NoError(t, err)
	require.False(t, mtime.IsZero())
}

func TestFSLoaderReadFileErrorsOnMissingFile(t *testing.T) {
	var loader fsLoader
	_, err := loader.ReadFile(filepath.Join(t.TempDir(), "missing.cup"))
	require.Error(t, err)
}

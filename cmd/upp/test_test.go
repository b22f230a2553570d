package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtOfLowercasesAndStripsDot(t *testing.T) {
	require.Equal(t, "cup", extOf("/a/b/foo.CUP"))
	require.Equal(t, "c", extOf("foo.c"))
}

func TestWriteTempOutputPreservesExtensionAndContent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "widget.cup")
	require.NoError(t, os.WriteFile(src, []byte("original"), 0o644))

	tmp, err := writeTempOutput(src, "transformed")
	require.NoError(t, err)
	defer os.Remove(tmp)

	require.Equal(t, ".cup", filepath.Ext(tmp))
	require.NotEqual(t, src, tmp)

	data, err := os.ReadFile(tmp)
	require.NoError(t, err)
	require.Equal(t, "transformed", string(data))
}

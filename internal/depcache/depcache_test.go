package depcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetSetRoundtrip(t *testing.T) {
	c := New()
	require.False(t, c.Has("/a.cup"))

	_, ok := c.Get("/a.cup")
	require.False(t, ok)

	c.Set("/a.cup", &Entry{Output: "int x;"})
	require.True(t, c.Has("/a.cup"))

	e, ok := c.Get("/a.cup")
	require.True(t, ok)
	require.Equal(t, "int x;", e.Output)
}

func TestStatsCountHitsAndMisses(t *testing.T) {
	c := New()
	c.Set("/a.cup", &Entry{Output: "a"})

	_, _ = c.Get("/a.cup")
	_, _ = c.Get("/a.cup")
	_, _ = c.Get("/missing.cup")

	stats := c.Stats()
	require.Equal(t, int64(2), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
	require.Equal(t, int64(0), stats.Evictions)
}

func TestSetOverwritesExistingEntry(t *testing.T) {
	c := New()
	c.Set("/a.cup", &Entry{Output: "old"})
	c.Set("/a.cup", &Entry{Output: "new"})

	e, ok := c.Get("/a.cup")
	require.True(t, ok)
	require.Equal(t, "new", e.Output)
	require.Equal(t, 1, c.Len())
}

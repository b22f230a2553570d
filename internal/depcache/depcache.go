// Package depcache implements the Dependency Cache: a keyed-by-absolute-path
// store of {macros, pending rules, output, mtime} consulted whenever
// @include resolves a path, so a file included from several places is parsed
// and transformed exactly once.
package depcache

import (
	"sync"
	"time"
)

// Entry is one cached dependency's prepared state.
type Entry struct {
	Macros       map[string]any
	PendingRules []any
	Output       string
	ModTime      time.Time
}

// Stats mirrors parseradapter.CacheStats' shape for operational parity, but
// Evictions stays permanently zero here: this cache has no eviction policy
// by contract (spec.md §4.C, "has/get/set only; no eviction").
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// Cache is the Dependency Cache. Keys are resolved absolute file paths.
// Access is sequential in the reference engine (spec.md §5: "the
// DependencyCache may be shared across Registries run for different source
// files; access is sequential"), but the mutex below keeps the type safe if
// a caller ever processes files concurrently.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Entry

	hits   int64
	misses int64
}

// New creates an empty Dependency Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*Entry)}
}

// Has reports whether path is cached.
func (c *Cache) Has(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[path]
	return ok
}

// Get returns the cached entry for path, tracking a hit or miss.
func (c *Cache) Get(path string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[path]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return e, ok
}

// Set stores or replaces the entry for path.
func (c *Cache) Set(path string, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = e
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses}
}

// Len returns the number of cached paths.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

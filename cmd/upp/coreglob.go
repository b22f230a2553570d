package main

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
)

// expandCorePatterns turns cfg.Core's literal paths and glob patterns into a
// flat, sorted list of concrete file paths (spec.md §6: "core: auto-loaded
// macro files, given as literal paths or glob patterns"). A literal entry
// (no glob metacharacters) passes through unchanged; a glob pattern is
// resolved by walking its non-magic base directory with fastwalk and
// keeping every regular file doublestar.Match accepts against the
// remaining pattern.
func expandCorePatterns(patterns []string) ([]string, error) {
	var out []string
	for _, p := range patterns {
		if !hasGlobMeta(p) {
			out = append(out, p)
			continue
		}
		base, rest := doublestar.SplitPattern(p)
		matches, err := globWalk(base, rest)
		if err != nil {
			return nil, fmt.Errorf("upp: expanding core pattern %q: %w", p, err)
		}
		out = append(out, matches...)
	}
	sort.Strings(out)
	return out, nil
}

func globWalk(base, pattern string) ([]string, error) {
	var matches []string
	conf := &fastwalk.Config{Follow: true}
	err := fastwalk.Walk(conf, base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(base, path)
		if rerr != nil {
			return rerr
		}
		matched, merr := doublestar.Match(pattern, filepath.ToSlash(rel))
		if merr != nil {
			return merr
		}
		if matched {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

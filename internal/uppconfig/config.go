// Package uppconfig loads and merges upp.json configuration: includePaths,
// core files, per-language test commands, and the comments/convergence
// policy toggles (spec.md §6 "Configuration").
package uppconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LangConfig is one `lang.<ext>` entry's compile/run commands, used by
// `upp --test` (spec.md §6: "lang.<ext>: { compile, run } — optional
// compile/run commands for tests (out of core)").
type LangConfig struct {
	Compile string `json:"compile,omitempty"`
	Run     string `json:"run,omitempty"`
}

// Config is the decoded, possibly-partial contents of one upp.json file (or
// the merge of a whole extends chain). Comments/StrictConvergence are
// pointers so an unset field can be told apart from an explicit false
// during merging, the same reason the teacher's Completions struct uses
// *int for MaxDepth/MaxItems.
type Config struct {
	Extends      string                `json:"extends,omitempty"`
	Comments     *bool                 `json:"comments,omitempty"`
	IncludePaths []string              `json:"includePaths,omitempty"`
	Core         []string              `json:"core,omitempty"`
	Lang         map[string]LangConfig `json:"lang,omitempty"`

	// StrictConvergence is a SPEC_FULL.md addition resolving spec.md §9's
	// open question ("whether to surface RuleNonConvergence as fatal or
	// warn-only is configuration-dependent"): unset/false (the reference's
	// behavior) reports non-convergence as a non-fatal diagnostic; true
	// marks it Fatal, failing the CLI run.
	StrictConvergence *bool `json:"strictConvergence,omitempty"`
}

func boolPtr(b bool) *bool { return &b }

// Default returns the configuration used when no upp.json is present.
func Default() Config {
	return Config{Comments: boolPtr(true)}
}

// CommentsEnabled resolves the comments toggle, defaulting to true when
// unset anywhere in the chain.
func (c Config) CommentsEnabled() bool {
	return c.Comments == nil || *c.Comments
}

// StrictConvergenceEnabled resolves the strictConvergence toggle,
// defaulting to false (warn-only) when unset anywhere in the chain.
func (c Config) StrictConvergenceEnabled() bool {
	return c.StrictConvergence != nil && *c.StrictConvergence
}

// Load reads path, expands `$UPP` in every path-valued field, follows an
// `extends` chain (parent-first: the extended file is loaded and merged
// first, then path's own fields are merged over it), and returns the
// flattened result.
func Load(path string) (*Config, error) {
	return load(path, map[string]bool{})
}

func load(path string, seen map[string]bool) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("uppconfig: %w", err)
	}
	if seen[abs] {
		return nil, fmt.Errorf("uppconfig: extends cycle at %q", abs)
	}
	seen[abs] = true

	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("uppconfig: reading %q: %w", abs, err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("uppconfig: parsing %q: %w", abs, err)
	}
	expandConfig(&cfg)

	dir := filepath.Dir(abs)

	if cfg.Extends == "" {
		return &cfg, nil
	}

	parentPath := cfg.Extends
	if !filepath.IsAbs(parentPath) {
		parentPath = filepath.Join(dir, parentPath)
	}
	parent, err := load(parentPath, seen)
	if err != nil {
		return nil, err
	}

	merged := Merge(*parent, cfg)
	return &merged, nil
}

// expandConfig substitutes the `$UPP` environment variable (spec.md §6:
// "Environment variable UPP is substituted in paths") across every
// path-valued field.
func expandConfig(cfg *Config) {
	expand := func(s string) string { return os.Expand(s, os.Getenv) }
	for i, p := range cfg.IncludePaths {
		cfg.IncludePaths[i] = expand(p)
	}
	for i, p := range cfg.Core {
		cfg.Core[i] = expand(p)
	}
	if cfg.Extends != "" {
		cfg.Extends = expand(cfg.Extends)
	}
	for ext, lc := range cfg.Lang {
		lc.Compile = expand(lc.Compile)
		lc.Run = expand(lc.Run)
		cfg.Lang[ext] = lc
	}
}

// Merge combines a parent and child configuration. Scalars (comments,
// strictConvergence) are last-wins: child's value if set, else parent's.
// includePaths puts the child's own directories first, with the parent's
// appended after (spec.md §9 Open Question: "each parent's resolved include
// directories appended after the child's own" — a child's includePaths are
// more specific to the file doing the including, so they're searched
// first). core is the opposite order, parent's files first: core is
// "auto-loaded before user sources", and a parent's core macros are meant
// to form the foundation a child's own core additions build on. lang
// entries merge key-wise, child overriding parent per extension.
func Merge(parent, child Config) Config {
	out := Config{
		Comments:          child.Comments,
		StrictConvergence: child.StrictConvergence,
	}
	if out.Comments == nil {
		out.Comments = parent.Comments
	}
	if out.StrictConvergence == nil {
		out.StrictConvergence = parent.StrictConvergence
	}

	out.IncludePaths = append(append([]string{}, child.IncludePaths...), parent.IncludePaths...)
	out.Core = append(append([]string{}, parent.Core...), child.Core...)

	out.Lang = make(map[string]LangConfig, len(parent.Lang)+len(child.Lang))
	for ext, lc := range parent.Lang {
		out.Lang[ext] = lc
	}
	for ext, lc := range child.Lang {
		out.Lang[ext] = lc
	}
	return out
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/upplang/upp/internal/clang"
	"github.com/upplang/upp/internal/depcache"
	"github.com/upplang/upp/internal/diagnostics"
	"github.com/upplang/upp/internal/macroapi"
	"github.com/upplang/upp/internal/parseradapter"
	"github.com/upplang/upp/internal/registry"
	"github.com/upplang/upp/internal/transform"
	"github.com/upplang/upp/internal/uppconfig"
)

// engine bundles the resources one `upp` invocation needs to process one or
// more files against the same configuration and language.
type engine struct {
	cfg      uppconfig.Config
	adapter  *parseradapter.Adapter
	cache    *depcache.Cache
	bag      *diagnostics.Bag
	language string
}

// bindFor resolves the Helper API language binding for language, or nil for
// a language with none (spec.md §4.G functions then simply error out at
// macro-eval time).
func bindFor(language string) func(*macroapi.Helpers) {
	switch language {
	case "c", "cpp":
		return clang.Bind
	default:
		return nil
	}
}

// loadConfigFor resolves upp.json starting from path's directory, walking
// up to the filesystem root, falling back to uppconfig.Default() if none is
// found.
func loadConfigFor(path string) (uppconfig.Config, error) {
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return uppconfig.Config{}, err
	}
	for {
		candidate := filepath.Join(dir, "upp.json")
		if _, err := os.Stat(candidate); err == nil {
			cfg, err := uppconfig.Load(candidate)
			if err != nil {
				return uppconfig.Config{}, err
			}
			return *cfg, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return uppconfig.Default(), nil
		}
		dir = parent
	}
}

// newEngine builds an engine for processing sourcePath.
func newEngine(sourcePath string) (*engine, error) {
	language := parseradapter.MapPath(sourcePath)
	if language == "" {
		return nil, fmt.Errorf("upp: %s: unrecognized language extension", sourcePath)
	}
	cfg, err := loadConfigFor(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("upp: loading configuration: %w", err)
	}
	cfg.Core, err = expandCorePatterns(cfg.Core)
	if err != nil {
		return nil, err
	}
	return &engine{
		cfg:      cfg,
		adapter:  parseradapter.NewAdapter(),
		cache:    depcache.New(),
		bag:      &diagnostics.Bag{},
		language: language,
	}, nil
}

// transformer builds a fresh Transformer sharing this engine's Adapter,
// Cache and Bag (so --stats/diagnostics reporting reflects one CLI
// invocation's whole run, include-expansions and all).
func (e *engine) transformer() *transform.Transformer {
	return transform.New(
		e.adapter,
		e.language,
		e.cfg.IncludePaths,
		e.cfg.Core,
		fsLoader{},
		e.cache,
		e.bag,
		bindFor(e.language),
	)
}

// run transpiles path's source through the full pipeline, returning the
// transformed output and the top-level Registry (for --ast/--stats callers
// that need the resulting tree, not just the text).
func (e *engine) run(path string) (string, *registry.Registry, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("upp: reading %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", nil, fmt.Errorf("upp: %w", err)
	}
	output, reg, err := e.transformer().Run(string(source), abs, nil)
	if err != nil {
		return "", nil, fmt.Errorf("upp: transforming %s: %w", path, err)
	}
	if e.cfg.StrictConvergenceEnabled() {
		for _, d := range e.bag.Items() {
			if d.Kind == diagnostics.RuleNonConvergence {
				d.Fatal = true
			}
		}
	}
	return output, reg, nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/upplang/upp/internal/shellrun"
)

// runTest implements `upp --test FILE`: transforms path, writes the result
// to a sibling temp file, then runs the configured lang.<ext>.compile/.run
// commands against it (SPEC_FULL.md's CLI boundary section).
func runTest(ctx context.Context, path string) error {
	eng, err := newEngine(path)
	if err != nil {
		return err
	}

	output, _, err := eng.run(path)
	if err != nil {
		return err
	}
	if err := printDiagnosticsText(eng); err != nil {
		return err
	}

	lang, ok := eng.cfg.Lang[extOf(path)]
	if !ok {
		return fmt.Errorf("upp: %s: no lang.%s.compile/.run configured in upp.json", path, extOf(path))
	}

	tmp, err := writeTempOutput(path, output)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	dir := filepath.Dir(tmp)
	compile, run, err := shellrun.Test(ctx, lang.Compile, lang.Run, dir, tmp)
	if err != nil {
		return fmt.Errorf("upp: running test for %s: %w", path, err)
	}

	if compile.Command != "" {
		fmt.Fprintf(stdoutWriter(), "$ %s\n%s", compile.Command, compile.Stdout)
		fmt.Fprint(stderrWriter(), compile.Stderr)
		if compile.ExitCode != 0 {
			return fmt.Errorf("upp: %s: compile exited %d", path, compile.ExitCode)
		}
	}
	if run.Command != "" {
		fmt.Fprintf(stdoutWriter(), "$ %s\n%s", run.Command, run.Stdout)
		fmt.Fprint(stderrWriter(), run.Stderr)
		if run.ExitCode != 0 {
			return fmt.Errorf("upp: %s: run exited %d", path, run.ExitCode)
		}
	}
	return nil
}

func extOf(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// writeTempOutput writes output to a sibling of path with the same
// extension, so a compiler invoked on it still recognizes the source
// language (a plain os.CreateTemp name would lose the extension). The name
// carries a random uuid so concurrent --test/wrapper runs over sources that
// share a basename (different directories notwithstanding) never collide on
// the same temp path.
func writeTempOutput(path, output string) (string, error) {
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.upp-test.%s%s", base, uuid.NewString(), filepath.Ext(path)))
	if err := os.WriteFile(tmp, []byte(output), 0o644); err != nil {
		return "", fmt.Errorf("upp: writing transformed output: %w", err)
	}
	return tmp, nil
}

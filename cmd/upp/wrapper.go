package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/upplang/upp/internal/parseradapter"
)

// runWrapper implements the drop-in compiler-wrapper mode (`upp COMPILER
// [args...]`): every argument that looks like a .cup/.hup source is
// transformed into a temp file and substituted in place before exec'ing
// compiler with the rewritten argument list.
func runWrapper(compiler string, args []string) error {
	rewritten := make([]string, len(args))
	var cleanup []string
	defer func() {
		for _, p := range cleanup {
			os.Remove(p)
		}
	}()

	for i, a := range args {
		if !isUPPSource(a) {
			rewritten[i] = a
			continue
		}
		eng, err := newEngine(a)
		if err != nil {
			return err
		}
		output, _, err := eng.run(a)
		if err != nil {
			return err
		}
		if err := printDiagnosticsText(eng); err != nil {
			return err
		}
		tmp, err := writeTempOutput(a, output)
		if err != nil {
			return err
		}
		cleanup = append(cleanup, tmp)
		rewritten[i] = tmp
	}

	cmd := exec.Command(compiler, rewritten...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("upp: %s %s: %w", compiler, strings.Join(rewritten, " "), err)
	}
	return nil
}

// isUPPSource reports whether path's extension is one of UPP's own source
// extensions (.cup/.hup), as opposed to a plain .c/.h the wrapped compiler
// should receive untouched.
func isUPPSource(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cup", ".hup":
		return parseradapter.MapPath(path) != ""
	default:
		return false
	}
}

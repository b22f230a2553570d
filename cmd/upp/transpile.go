package main

import "fmt"

// runTranspile implements `upp --transpile FILE [--stats]`: prints the
// transformed source to stdout, reports any accumulated diagnostics to
// stderr, and exits non-zero if any diagnostic was fatal.
func runTranspile(path string, showStats bool) error {
	eng, err := newEngine(path)
	if err != nil {
		return err
	}

	output, reg, err := eng.run(path)
	if err != nil {
		return err
	}

	fmt.Println(output)

	if showStats {
		stats := eng.cache.Stats()
		fmt.Fprintf(stderrWriter(), "dependency cache: %d hits, %d misses, %d evictions\n",
			stats.Hits, stats.Misses, stats.Evictions)
		fmt.Fprintf(stderrWriter(), "registry mutated: %t\n", reg.Mutated)
	}

	return printDiagnosticsText(eng)
}

// Command upp runs the UPP macro preprocessor: transpile, test, dump an
// AST, or act as a drop-in wrapper around a C/C++ compiler, rewriting
// .cup/.hup inputs on the fly (spec.md §6 "External Interfaces").
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/upplang/upp/internal/diagnostics"
)

func stdoutWriter() io.Writer { return os.Stdout }
func stderrWriter() io.Writer { return os.Stderr }

// ttyFd returns stderr's fd for diagnostics.NewReporter's isatty probe, or
// -1 to force plain text when stderr isn't a terminal.
func ttyFd() int {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return int(os.Stderr.Fd())
	}
	return -1
}

func printDiagnosticsText(eng *engine) error {
	reporter := diagnostics.NewReporter(stderrWriter(), ttyFd())
	reporter.ReportAll(eng.bag)
	if eng.bag.HasFatal() {
		return fmt.Errorf("upp: fatal diagnostics reported")
	}
	return nil
}

func newRootCmd() *cobra.Command {
	var (
		transpile bool
		test      bool
		ast       bool
		asJSON    bool
		stats     bool
	)

	root := &cobra.Command{
		Use:   "upp [flags] FILE | upp COMPILER [compiler-args...]",
		Short: "UPP macro preprocessor",
		Long: "upp transforms .cup/.hup sources through user-defined AST-level " +
			"macros before handing them to a C/C++ toolchain. With no mode " +
			"flag, the first argument is taken as the compiler and upp acts " +
			"as a drop-in compiler wrapper.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case transpile:
				return runTranspile(args[0], stats)
			case test:
				return runTest(cmd.Context(), args[0])
			case ast:
				return runAST(args[0], asJSON)
			default:
				return runWrapper(args[0], args[1:])
			}
		},
	}

	root.Flags().BoolVar(&transpile, "transpile", false, "transform FILE and print the result")
	root.Flags().BoolVar(&test, "test", false, "transform FILE and run its configured compile/run commands")
	root.Flags().BoolVar(&ast, "ast", false, "transform FILE and print its resulting AST")
	root.Flags().BoolVar(&asJSON, "json", false, "with --ast, print the AST and diagnostics as JSON")
	root.Flags().BoolVar(&stats, "stats", false, "with --transpile, print dependency cache statistics")

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Package shellrun executes a configured lang.<ext>.compile/.run command
// string (SPEC_FULL.md "CLI boundary": `upp --test FILE`) through
// mvdan.cc/sh/v3's POSIX interpreter instead of os/exec + "/bin/sh -c",
// so a malformed or malicious command string fails to parse rather than
// silently reaching a real shell.
package shellrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// Result is one command's captured output.
type Result struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
}

// Run parses command as POSIX shell and executes it in dir with FILE set to
// sourcePath in its environment, so a configured command like
// `gcc -o /tmp/out $FILE` resolves $FILE the same way a real shell would.
func Run(ctx context.Context, command, dir, sourcePath string) (Result, error) {
	res := Result{Command: command}
	if strings.TrimSpace(command) == "" {
		return res, fmt.Errorf("shellrun: empty command")
	}

	file, err := syntax.NewParser().Parse(strings.NewReader(command), "")
	if err != nil {
		return res, fmt.Errorf("shellrun: parsing %q: %w", command, err)
	}

	var stdout, stderr bytes.Buffer
	env := append(os.Environ(), "FILE="+sourcePath)
	runner, err := interp.New(
		interp.StdIO(nil, &stdout, &stderr),
		interp.Dir(dir),
		interp.Env(expand.ListEnviron(env...)),
	)
	if err != nil {
		return res, fmt.Errorf("shellrun: %w", err)
	}

	runErr := runner.Run(ctx, file)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	var status interp.ExitStatus
	if errors.As(runErr, &status) {
		res.ExitCode = int(status)
		return res, nil
	}
	if runErr != nil {
		return res, fmt.Errorf("shellrun: running %q: %w", command, runErr)
	}
	return res, nil
}

// Test runs compile (if set) then, only on a zero exit code, run (if set),
// matching `upp --test FILE`'s "don't try to execute a binary the compile
// step failed to produce" behavior. Either command may be empty, in which
// case its Result is the zero value and no error is returned for it.
func Test(ctx context.Context, compile, run, dir, sourcePath string) (compileResult, runResult Result, err error) {
	if strings.TrimSpace(compile) != "" {
		compileResult, err = Run(ctx, compile, dir, sourcePath)
		if err != nil {
			return compileResult, Result{}, err
		}
		if compileResult.ExitCode != 0 {
			return compileResult, Result{}, nil
		}
	}
	if strings.TrimSpace(run) == "" {
		return compileResult, Result{}, nil
	}
	runResult, err = Run(ctx, run, dir, sourcePath)
	return compileResult, runResult, err
}

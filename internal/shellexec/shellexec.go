// Package shellexec implements the bounded shell executor external
// collaborator (spec §6): exec(command_line) -> {stdout, stderr, exit_code},
// honoring a per-call timeout.
package shellexec

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

// Result is the outcome of one shell invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Exec runs commandLine through the platform shell, bounded by timeout via
// ctx. A non-zero ExitCode is a normal result, not an error; Exec only
// returns an error when the command could not be started at all (e.g. shell
// missing) or ctx was done before the command finished, in which case the
// command is killed and ctx's error is returned.
func Exec(ctx context.Context, commandLine string) (Result, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", commandLine)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Bound the wait for output pipes still held by children of a killed shell.
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return Result{}, err
		}
	}

	return Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}, nil
}

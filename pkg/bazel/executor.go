// Package bazel constructs and executes the two query shapes the server
// needs (configured-graph cquery, action-graph aquery) and memoizes their
// raw results.
package bazel

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Executor runs an external build-tool command in a working directory and
// returns its captured standard output. It is the only place the server
// touches the process environment.
type Executor interface {
	Run(ctx context.Context, workingDir string, args ...string) ([]byte, error)
}

// CommandError is an external-tool failure. It carries the exact command
// that failed so callers can surface it for diagnosis.
type CommandError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
	if e.Stderr != "" {
		msg += "\nstderr: " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// DefaultExecutor shells out to the bazel binary. Cancelling the context
// kills the subprocess, so in-flight queries honor request cancellation.
type DefaultExecutor struct {
	// BazelPath overrides the binary to invoke. Empty means "bazel" on PATH.
	BazelPath string
}

// NewExecutor creates the default bazel executor
func NewExecutor() Executor {
	return &DefaultExecutor{}
}

func (e *DefaultExecutor) Run(ctx context.Context, workingDir string, args ...string) ([]byte, error) {
	bin := e.BazelPath
	if bin == "" {
		bin = "bazel"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = workingDir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &CommandError{
			Command: bin + " " + strings.Join(args, " "),
			Stderr:  strings.TrimSpace(stderr.String()),
			Err:     err,
		}
	}
	return stdout.Bytes(), nil
}

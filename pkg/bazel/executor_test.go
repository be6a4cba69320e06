package bazel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutorCapturesStdout(t *testing.T) {
	exec := &DefaultExecutor{BazelPath: "/bin/sh"}

	out, err := exec.Run(context.Background(), t.TempDir(), "-c", "printf hello")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), out)
}

func TestExecutorWrapsFailures(t *testing.T) {
	exec := &DefaultExecutor{BazelPath: "/bin/sh"}

	_, err := exec.Run(context.Background(), t.TempDir(), "-c", "echo boom >&2; exit 3")
	require.Error(t, err)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "boom", cmdErr.Stderr)
	assert.Contains(t, cmdErr.Command, "/bin/sh")
	assert.NotNil(t, errors.Unwrap(cmdErr))
}

func TestExecutorMissingBinary(t *testing.T) {
	exec := &DefaultExecutor{BazelPath: "/nonexistent/bazel"}

	_, err := exec.Run(context.Background(), t.TempDir(), "info")
	var cmdErr *CommandError
	assert.ErrorAs(t, err, &cmdErr)
}

func TestExecutorHonorsCancellation(t *testing.T) {
	exec := &DefaultExecutor{BazelPath: "/bin/sh"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exec.Run(ctx, t.TempDir(), "-c", "sleep 10")
	require.Error(t, err)
}

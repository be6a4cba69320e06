package bazel

import (
	"context"
	"strings"
	"sync"
)

// MockExecutor is an Executor for tests. Outputs are keyed by a substring
// of the joined command line; the first match wins. Every invocation is
// recorded so tests can assert how often bazel was actually called.
type MockExecutor struct {
	mu       sync.Mutex
	Outputs  map[string][]byte
	Output   []byte // fallback when no key matches
	Err      error
	Commands []string
}

func (m *MockExecutor) Run(ctx context.Context, workingDir string, args ...string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmdline := strings.Join(args, " ")
	m.Commands = append(m.Commands, cmdline)
	if m.Err != nil {
		return nil, m.Err
	}
	for key, out := range m.Outputs {
		if strings.Contains(cmdline, key) {
			return out, nil
		}
	}
	return m.Output, nil
}

// CallCount returns the number of executed commands so far
func (m *MockExecutor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Commands)
}

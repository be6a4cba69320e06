package bazel

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/skdevtools/bazel-bsp/pkg/logging"
)

// QueryCache memoizes raw query output keyed by the semantic query
// parameters. It is owned by the server session and passed by reference to
// every component that reads or invalidates it; reads are concurrent,
// population is serialized per key through singleflight so identical
// concurrent requests trigger one bazel invocation.
type QueryCache struct {
	exec      Executor
	workspace string

	mu      sync.RWMutex
	entries map[string][]byte
	group   singleflight.Group
}

// NewQueryCache creates a cache executing queries in the given workspace
func NewQueryCache(exec Executor, workspace string) *QueryCache {
	return &QueryCache{
		exec:      exec,
		workspace: workspace,
		entries:   make(map[string][]byte),
	}
}

// ConfiguredQuery returns the raw streamed-proto output for the given
// configured-graph query, invoking bazel only on a cache miss.
func (c *QueryCache) ConfiguredQuery(ctx context.Context, spec ConfiguredQuerySpec) ([]byte, error) {
	expr, err := spec.Expr()
	if err != nil {
		return nil, err
	}
	return c.run(ctx, spec.CacheKey(), "cquery", expr, "--output=streamed_proto")
}

// ActionQuery returns the raw proto output for the given action-graph
// query, invoking bazel only on a cache miss.
func (c *QueryCache) ActionQuery(ctx context.Context, spec ActionQuerySpec) ([]byte, error) {
	expr, err := spec.Expr()
	if err != nil {
		return nil, err
	}
	return c.run(ctx, spec.CacheKey(), "aquery", expr, "--output=proto", "--include_commandline")
}

func (c *QueryCache) run(ctx context.Context, key string, args ...string) ([]byte, error) {
	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		logging.Debug("query cache hit", "kind", args[0])
		return cached, nil
	}

	out, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check: a racing caller may have populated the entry between
		// the read lock and Do.
		c.mu.RLock()
		cached, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		logging.Debug("running bazel query", "kind", args[0], "expr", args[1])
		data, err := c.exec.Run(ctx, c.workspace, args...)
		if err != nil {
			return nil, fmt.Errorf("query execution failed: %w", err)
		}

		c.mu.Lock()
		c.entries[key] = data
		c.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

// Clear drops all memoized results. Used after a mutation the server
// cannot express as an incremental patch, e.g. a BUILD file edit.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string][]byte)
	c.mu.Unlock()
	logging.Debug("query cache cleared")
}

// Len reports the number of cached entries, for the debug endpoints
func (c *QueryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

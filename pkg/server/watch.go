package server

import (
	"context"

	"github.com/skdevtools/bazel-bsp/pkg/logging"
	"github.com/skdevtools/bazel-bsp/pkg/watcher"
)

// RunWatchLoop consumes debounced watcher events and applies them to the
// session until the context is cancelled or the channel closes.
func (s *Session) RunWatchLoop(ctx context.Context, events <-chan watcher.ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			plan := watcher.PlanChanges([]watcher.ChangeEvent{ev}, s.cfg.Workspace)
			if plan.IsEmpty() {
				continue
			}
			if plan.FullReload {
				if err := s.Reload(ctx); err != nil {
					logging.Error("reload after BUILD change failed", "error", err)
				}
				continue
			}
			if err := s.ApplySourceChanges(ctx, plan.Created, plan.Deleted); err != nil {
				logging.Error("incremental graph update failed", "error", err)
			}
		}
	}
}

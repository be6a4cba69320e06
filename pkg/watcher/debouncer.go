package watcher

import (
	"context"
	"time"

	"github.com/skdevtools/bazel-bsp/pkg/logging"
)

// Debouncer batches rapid file system events so a burst of changes (branch
// switch, generated-code refresh) triggers one graph update instead of many
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer creates a new event debouncer
func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 10),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start begins processing events with debouncing
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

func (d *Debouncer) run(ctx context.Context) {
	quiet := time.NewTimer(d.quietPeriod)
	quiet.Stop()
	maxWait := time.NewTimer(d.maxWait)
	maxWait.Stop()

	accumulated := make(map[ChangeType]*ChangeEvent)
	eventCount := 0

	flush := func() {
		quiet.Stop()
		maxWait.Stop()
		if eventCount == 0 {
			return
		}

		logging.Debug("flushing accumulated events", "count", eventCount)

		// BUILD file events go first: a full reload subsumes any pending
		// source patches.
		for _, typ := range []ChangeType{ChangeTypeBuildFile, ChangeTypeSourceFile} {
			if ev, ok := accumulated[typ]; ok {
				ev.Timestamp = time.Now()
				d.output <- *ev
			}
		}

		accumulated = make(map[ChangeType]*ChangeEvent)
		eventCount = 0
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			close(d.output)
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				close(d.output)
				return
			}

			acc, exists := accumulated[event.Type]
			if !exists {
				acc = &ChangeEvent{Type: event.Type}
				accumulated[event.Type] = acc
			}
			acc.Created = append(acc.Created, event.Created...)
			acc.Deleted = append(acc.Deleted, event.Deleted...)
			acc.Modified = append(acc.Modified, event.Modified...)

			quiet.Reset(d.quietPeriod)
			if eventCount == 0 {
				maxWait.Reset(d.maxWait)
			}
			eventCount++

		case <-quiet.C:
			flush()

		case <-maxWait.C:
			flush()
		}
	}
}

// Output returns the channel of debounced events
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}

package pubsub

import (
	"context"
	"encoding/json"

	"github.com/skdevtools/bazel-bsp/pkg/model"
)

// Topics published by the session. The debug web UI subscribes to these
// over SSE.
const (
	TopicLoadStatus  = "load_status"
	TopicGraph       = "graph"
	TopicInvalidated = "invalidated"
)

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"` // e.g. "querying", "parsing", "ready", "targets_changed"
	Data    json.RawMessage `json:"data"`
	Version int             `json:"version"` // per-topic ordering
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic.
	// Context cancellation will close the subscription.
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data interface{}) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// LoadStatus reports where a project load currently is
type LoadStatus struct {
	State   string `json:"state"` // idle, querying, parsing, ready, failed
	Message string `json:"message,omitempty"`
}

// GraphSummary is the payload published when a graph is (re)built
type GraphSummary struct {
	Targets  int `json:"targets"`
	TopLevel int `json:"topLevel"`
	Sources  int `json:"sources"`
}

// InvalidationBatch is the payload published after an incremental graph
// patch
type InvalidationBatch struct {
	Targets []model.InvalidatedTarget `json:"targets"`
}

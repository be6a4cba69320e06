// Package protocol defines the value types that cross the boundary to the
// editor-facing transport layer, and the typed dispatch table the transport
// drives. The JSON-RPC plumbing itself lives outside this server; these
// types are its contract surface.
package protocol

import (
	"github.com/skdevtools/bazel-bsp/pkg/model"
)

// BuildTarget describes one buildable unit to the client
type BuildTarget struct {
	ID           string             `json:"id"`
	Label        string             `json:"label"`
	Language     string             `json:"language,omitempty"`
	Dependencies []string           `json:"dependencies,omitempty"`
	Capabilities TargetCapabilities `json:"capabilities"`
}

// TargetCapabilities are the flags clients use to decide what actions to
// offer for a target
type TargetCapabilities struct {
	CanCompile bool `json:"canCompile"`
	CanTest    bool `json:"canTest"`
}

// SourceDescriptor describes one file belonging to a target
type SourceDescriptor struct {
	URI       string `json:"uri"`
	Kind      string `json:"kind"` // "source" or "header"
	Language  string `json:"language,omitempty"`
	ShadowURI string `json:"shadowUri,omitempty"`
}

// CompileArguments is the response to a compile-arguments request
type CompileArguments struct {
	Target    string   `json:"target"`
	File      string   `json:"file,omitempty"`
	Arguments []string `json:"arguments"`
}

// InvalidatedTargetEvent notifies the client that a target's sources
// changed
type InvalidatedTargetEvent struct {
	ID   string `json:"id"`
	URI  string `json:"uri"`
	Kind string `json:"kind"` // "created" or "deleted"
}

// FileChange is one entry of a files-changed notification
type FileChange struct {
	URI  string `json:"uri"`
	Kind string `json:"kind"` // "created", "deleted" or "modified"
}

// DescribeTarget converts a graph target to its boundary descriptor
func DescribeTarget(t *model.Target) BuildTarget {
	deps := make([]string, len(t.Deps))
	for i, d := range t.Deps {
		deps[i] = string(d)
	}
	return BuildTarget{
		ID:           string(t.ID),
		Label:        t.Label,
		Language:     string(t.Language),
		Dependencies: deps,
		Capabilities: TargetCapabilities{
			CanCompile: true,
			CanTest:    t.IsTest,
		},
	}
}

// DescribeSource converts a graph source item to its boundary descriptor
func DescribeSource(item model.SourceItem) SourceDescriptor {
	kind := "source"
	if item.Kind == model.SourceKindHeader {
		kind = "header"
	}
	return SourceDescriptor{
		URI:       item.URI,
		Kind:      kind,
		Language:  string(item.Language),
		ShadowURI: item.ShadowURI,
	}
}

// DescribeInvalidation converts an invalidation event for the client
func DescribeInvalidation(ev model.InvalidatedTarget) InvalidatedTargetEvent {
	return InvalidatedTargetEvent{
		ID:   string(ev.ID),
		URI:  ev.URI,
		Kind: ev.Kind.String(),
	}
}

package model

import (
	"fmt"
	"sort"
)

// ProjectGraph is the fully cross-indexed snapshot of the build graph for
// one session. It is immutable once published; the invalidation engine
// patches it by building a new value via Clone, never in place.
type ProjectGraph struct {
	// Targets maps every kept dependency target by its stable ID.
	Targets map[TargetID]*Target `json:"targets"`

	// TopLevel lists the user-facing targets with their rule kind and
	// resolved configuration.
	TopLevel []TopLevelTarget `json:"topLevel"`

	// LabelsByID maps a target ID back to its bazel label.
	LabelsByID map[TargetID]string `json:"labelsById"`

	// SourcesByTarget and TargetsBySource are kept in lock step: a source
	// item appears under a target iff the target appears under the source.
	SourcesByTarget map[TargetID][]SourceItem `json:"sourcesByTarget"`
	TargetsBySource map[string][]TargetID     `json:"targetsBySource"`

	// TopLevelByConfig maps a configuration mnemonic to the top-level
	// labels built under it.
	TopLevelByConfig map[string][]string `json:"topLevelByConfig"`

	// Aliases maps alias and synthetic test-bundle labels to the label of
	// the real target they resolve to. Resolution is fully transitive.
	Aliases map[string]string `json:"aliases,omitempty"`

	// TestSourcesByLabel maps a test target's label to the URIs of its
	// test source files, with bundle indirection already unwrapped.
	TestSourcesByLabel map[string][]string `json:"testSourcesByLabel,omitempty"`
}

// NewProjectGraph creates an empty graph with all indices allocated
func NewProjectGraph() *ProjectGraph {
	return &ProjectGraph{
		Targets:            make(map[TargetID]*Target),
		LabelsByID:         make(map[TargetID]string),
		SourcesByTarget:    make(map[TargetID][]SourceItem),
		TargetsBySource:    make(map[string][]TargetID),
		TopLevelByConfig:   make(map[string][]string),
		Aliases:            make(map[string]string),
		TestSourcesByLabel: make(map[string][]string),
	}
}

// ResolveAlias follows the alias chain from label to its terminal target
// label. The chain is guaranteed acyclic by construction; a label that is
// not an alias resolves to itself.
func (g *ProjectGraph) ResolveAlias(label string) string {
	seen := 0
	for {
		next, ok := g.Aliases[label]
		if !ok {
			return label
		}
		label = next
		seen++
		if seen > len(g.Aliases) {
			// Defensive: construction rejects cycles, but never spin.
			return label
		}
	}
}

// TargetsForSource returns the IDs of targets owning the given source URI
func (g *ProjectGraph) TargetsForSource(uri string) []TargetID {
	return g.TargetsBySource[uri]
}

// CheckIndexSymmetry verifies the lock-step invariant between
// SourcesByTarget and TargetsBySource. It is cheap enough to run after
// every graph construction in tests.
func (g *ProjectGraph) CheckIndexSymmetry() error {
	for id, items := range g.SourcesByTarget {
		for _, item := range items {
			if !containsID(g.TargetsBySource[item.URI], id) {
				return fmt.Errorf("source %s listed under target %s but missing from reverse index", item.URI, id)
			}
		}
	}
	for uri, ids := range g.TargetsBySource {
		for _, id := range ids {
			if !containsSource(g.SourcesByTarget[id], uri) {
				return fmt.Errorf("target %s listed under source %s but does not own it", id, uri)
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the graph's mutable indices. Target values
// are shared since they are immutable.
func (g *ProjectGraph) Clone() *ProjectGraph {
	out := &ProjectGraph{
		Targets:            make(map[TargetID]*Target, len(g.Targets)),
		TopLevel:           append([]TopLevelTarget(nil), g.TopLevel...),
		LabelsByID:         make(map[TargetID]string, len(g.LabelsByID)),
		SourcesByTarget:    make(map[TargetID][]SourceItem, len(g.SourcesByTarget)),
		TargetsBySource:    make(map[string][]TargetID, len(g.TargetsBySource)),
		TopLevelByConfig:   make(map[string][]string, len(g.TopLevelByConfig)),
		Aliases:            make(map[string]string, len(g.Aliases)),
		TestSourcesByLabel: make(map[string][]string, len(g.TestSourcesByLabel)),
	}
	for id, t := range g.Targets {
		out.Targets[id] = t
	}
	for id, label := range g.LabelsByID {
		out.LabelsByID[id] = label
	}
	for id, items := range g.SourcesByTarget {
		out.SourcesByTarget[id] = append([]SourceItem(nil), items...)
	}
	for uri, ids := range g.TargetsBySource {
		out.TargetsBySource[uri] = append([]TargetID(nil), ids...)
	}
	for mnemonic, labels := range g.TopLevelByConfig {
		out.TopLevelByConfig[mnemonic] = append([]string(nil), labels...)
	}
	for alias, real := range g.Aliases {
		out.Aliases[alias] = real
	}
	for label, uris := range g.TestSourcesByLabel {
		out.TestSourcesByLabel[label] = append([]string(nil), uris...)
	}
	return out
}

// SortedTargetIDs returns the target IDs in stable order, for deterministic
// iteration in output paths.
func (g *ProjectGraph) SortedTargetIDs() []TargetID {
	ids := make([]TargetID, 0, len(g.Targets))
	for id := range g.Targets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func containsID(ids []TargetID, want TargetID) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}

func containsSource(items []SourceItem, uri string) bool {
	for _, item := range items {
		if item.URI == uri {
			return true
		}
	}
	return false
}

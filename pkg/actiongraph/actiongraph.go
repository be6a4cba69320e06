// Package actiongraph decodes action-query output into lookups from target
// label and configuration to the concrete compile actions, plus the
// platform info derived from each build variant's mnemonic.
package actiongraph

import (
	"fmt"
	"strings"

	"github.com/skdevtools/bazel-bsp/pkg/bazel/bazelpb"
	"github.com/skdevtools/bazel-bsp/pkg/model"
)

// Index is the cross-referenced view of one action-graph query result
type Index struct {
	targetsByLabel map[string]bazelpb.ActionTarget
	actionsByTID   map[uint32][]bazelpb.Action
	configsByID    map[uint32]model.Configuration

	// PlatformInfo maps each non-tool variant's normalized mnemonic to its
	// resolved platform configuration.
	PlatformInfo map[string]model.Configuration

	artifactPaths map[uint32]string
	depSets       map[uint32]bazelpb.DepSetOfFiles
}

// Parse decodes and indexes one aquery result
func Parse(data []byte) (*Index, error) {
	container, err := bazelpb.DecodeActionGraph(data)
	if err != nil {
		return nil, fmt.Errorf("action query: %w", err)
	}

	idx := &Index{
		targetsByLabel: make(map[string]bazelpb.ActionTarget, len(container.Targets)),
		actionsByTID:   make(map[uint32][]bazelpb.Action),
		configsByID:    make(map[uint32]model.Configuration, len(container.Configurations)),
		PlatformInfo:   make(map[string]model.Configuration),
		artifactPaths:  make(map[uint32]string, len(container.Artifacts)),
		depSets:        make(map[uint32]bazelpb.DepSetOfFiles, len(container.DepSetOfFiles)),
	}

	for _, t := range container.Targets {
		idx.targetsByLabel[t.Label] = t
	}
	for _, a := range container.Actions {
		idx.actionsByTID[a.TargetID] = append(idx.actionsByTID[a.TargetID], a)
	}
	for _, c := range container.Configurations {
		if c.IsTool {
			// Exec/tool configurations use host mnemonics that carry no
			// device platform; compile actions of interest never run
			// under them.
			continue
		}
		cfg, err := model.ParseConfiguration(c.Checksum, c.Mnemonic)
		if err != nil {
			return nil, err
		}
		idx.configsByID[c.ID] = cfg
		idx.PlatformInfo[cfg.NormalizedMnemonic] = cfg
	}

	fragments := make(map[uint32]bazelpb.PathFragment, len(container.PathFragments))
	for _, f := range container.PathFragments {
		fragments[f.ID] = f
	}
	for _, a := range container.Artifacts {
		if a.ExecPath != "" {
			idx.artifactPaths[a.ID] = a.ExecPath
		} else if a.PathFragmentID != 0 {
			idx.artifactPaths[a.ID] = resolveFragment(fragments, a.PathFragmentID)
		}
	}
	for _, d := range container.DepSetOfFiles {
		idx.depSets[d.ID] = d
	}
	return idx, nil
}

// Target looks up the action-graph target by bazel label
func (idx *Index) Target(label string) (bazelpb.ActionTarget, bool) {
	t, ok := idx.targetsByLabel[label]
	return t, ok
}

// Actions returns the actions recorded for a target ID. Multiple entries
// occur when the same logical target is built under more than one variant.
func (idx *Index) Actions(targetID uint32) []bazelpb.Action {
	return idx.actionsByTID[targetID]
}

// Configuration resolves an action's configuration ID
func (idx *Index) Configuration(configID uint32) (model.Configuration, bool) {
	c, ok := idx.configsByID[configID]
	return c, ok
}

// Outputs returns the exec paths of an action's outputs
func (idx *Index) Outputs(a bazelpb.Action) []string {
	paths := make([]string, 0, len(a.OutputIDs))
	for _, id := range a.OutputIDs {
		if p, ok := idx.artifactPaths[id]; ok {
			paths = append(paths, p)
		}
	}
	return paths
}

// Inputs flattens an action's input dep sets into exec paths. Dep sets
// form a DAG; visited sets are walked once.
func (idx *Index) Inputs(a bazelpb.Action) []string {
	var paths []string
	visited := make(map[uint32]bool)
	var walk func(id uint32)
	walk = func(id uint32) {
		if visited[id] {
			return
		}
		visited[id] = true
		ds, ok := idx.depSets[id]
		if !ok {
			return
		}
		for _, artID := range ds.DirectArtifactIDs {
			if p, ok := idx.artifactPaths[artID]; ok {
				paths = append(paths, p)
			}
		}
		for _, sub := range ds.TransitiveDepSetIDs {
			walk(sub)
		}
	}
	for _, id := range a.InputDepSetIDs {
		walk(id)
	}
	return paths
}

func resolveFragment(fragments map[uint32]bazelpb.PathFragment, id uint32) string {
	var parts []string
	for id != 0 {
		f, ok := fragments[id]
		if !ok {
			break
		}
		parts = append(parts, f.Label)
		id = f.ParentID
	}
	// Reverse: fragments chain child -> parent.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

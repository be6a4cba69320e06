package watcher

import (
	"path/filepath"
	"sort"
	"strings"
)

// ChangePlan describes how the project graph must react to a batch of
// changes
type ChangePlan struct {
	// FullReload means build definitions changed and the graph must be
	// rebuilt from a fresh configured query. Created and Deleted are empty
	// in that case.
	FullReload bool

	// Created and Deleted are workspace-relative paths of source files to
	// patch into and out of the graph.
	Created []string
	Deleted []string
}

// PlanChanges turns a debounced event batch into a change plan. Modified
// source files do not alter graph membership and are ignored; any BUILD
// change forces a full reload.
func PlanChanges(events []ChangeEvent, workspace string) ChangePlan {
	var plan ChangePlan
	created := make(map[string]bool)
	deleted := make(map[string]bool)

	for _, ev := range events {
		if ev.Type == ChangeTypeBuildFile {
			return ChangePlan{FullReload: true}
		}
		for _, p := range ev.Created {
			rel := relativize(p, workspace)
			created[rel] = true
			delete(deleted, rel)
		}
		for _, p := range ev.Deleted {
			rel := relativize(p, workspace)
			deleted[rel] = true
			delete(created, rel)
		}
	}

	plan.Created = sortedKeys(created)
	plan.Deleted = sortedKeys(deleted)
	return plan
}

// IsEmpty reports whether the plan requires no graph update
func (p ChangePlan) IsEmpty() bool {
	return !p.FullReload && len(p.Created) == 0 && len(p.Deleted) == 0
}

func relativize(path, workspace string) string {
	rel, err := filepath.Rel(workspace, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Package invalidation patches a project graph in response to watched file
// changes, without re-running the full configured query. Deleted files are
// dropped from the graph's source indices directly; created files arrive as
// pre-parsed additions from a restricted query over the affected packages.
package invalidation

import (
	"sort"

	"github.com/skdevtools/bazel-bsp/pkg/model"
)

// ApplyChanges builds a new graph with the deletions and additions applied
// and reports which targets were affected. The input graph is never
// mutated; callers swap the returned graph in atomically. When nothing
// actually changed the original graph is returned with changed false, so
// clients are not notified for no-op events.
func ApplyChanges(g *model.ProjectGraph, deleted []string, additions map[model.TargetID][]model.SourceItem) (*model.ProjectGraph, []model.InvalidatedTarget, bool) {
	next := g.Clone()
	var events []model.InvalidatedTarget
	changed := false

	for _, uri := range deleted {
		ids := next.TargetsBySource[uri]
		if len(ids) == 0 {
			continue
		}
		for _, id := range ids {
			next.SourcesByTarget[id] = removeSource(next.SourcesByTarget[id], uri)
			events = append(events, model.InvalidatedTarget{ID: id, URI: uri, Kind: model.FileDeleted})
		}
		delete(next.TargetsBySource, uri)
		changed = true
	}

	for id, items := range additions {
		// A target that vanished between the query and now cannot be
		// patched; it will come back on the next full load.
		if _, ok := next.Targets[id]; !ok {
			continue
		}
		for _, item := range items {
			if ownsSource(next.SourcesByTarget[id], item.URI) {
				continue
			}
			next.SourcesByTarget[id] = append(next.SourcesByTarget[id], item)
			next.TargetsBySource[item.URI] = append(next.TargetsBySource[item.URI], id)
			events = append(events, model.InvalidatedTarget{ID: id, URI: item.URI, Kind: model.FileCreated})
			changed = true
		}
	}

	if !changed {
		return g, nil, false
	}

	// Additions come from a map; order the events so notifications are
	// stable across runs.
	sort.Slice(events, func(i, j int) bool {
		if events[i].ID != events[j].ID {
			return events[i].ID < events[j].ID
		}
		return events[i].URI < events[j].URI
	})
	return next, events, true
}

func removeSource(items []model.SourceItem, uri string) []model.SourceItem {
	out := items[:0]
	for _, item := range items {
		if item.URI != uri {
			out = append(out, item)
		}
	}
	return out
}

func ownsSource(items []model.SourceItem, uri string) bool {
	for _, item := range items {
		if item.URI == uri {
			return true
		}
	}
	return false
}

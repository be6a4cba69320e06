package graph

import (
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/skdevtools/bazel-bsp/pkg/logging"
	"github.com/skdevtools/bazel-bsp/pkg/model"
)

// DepIndex is a directed view over a project graph's dependency edges.
// It backs cycle diagnostics and reverse-dependency lookups for the debug
// endpoints.
type DepIndex struct {
	g      *simple.DirectedGraph
	ids    map[model.TargetID]int64
	byID   map[int64]model.TargetID
	nextID int64
}

// NewDepIndex builds the dependency index for a project graph
func NewDepIndex(pg *model.ProjectGraph) *DepIndex {
	idx := &DepIndex{
		g:    simple.NewDirectedGraph(),
		ids:  make(map[model.TargetID]int64),
		byID: make(map[int64]model.TargetID),
	}
	for _, id := range pg.SortedTargetIDs() {
		idx.add(id)
	}
	for _, id := range pg.SortedTargetIDs() {
		for _, dep := range pg.Targets[id].Deps {
			idx.addEdge(id, dep)
		}
	}
	return idx
}

func (idx *DepIndex) add(id model.TargetID) {
	if _, exists := idx.ids[id]; exists {
		return
	}
	idx.ids[id] = idx.nextID
	idx.byID[idx.nextID] = id
	idx.g.AddNode(simple.Node(idx.nextID))
	idx.nextID++
}

func (idx *DepIndex) addEdge(from, to model.TargetID) {
	idx.add(from)
	idx.add(to)
	if from == to {
		return
	}
	f, t := idx.ids[from], idx.ids[to]
	if !idx.g.HasEdgeFromTo(f, t) {
		idx.g.SetEdge(idx.g.NewEdge(idx.g.Node(f), idx.g.Node(t)))
	}
}

// Cycles returns the dependency cycles (strongly connected components with
// more than one member) as target-ID groups.
func (idx *DepIndex) Cycles() [][]model.TargetID {
	var cycles [][]model.TargetID
	for _, scc := range topo.TarjanSCC(idx.g) {
		if len(scc) < 2 {
			continue
		}
		cycle := make([]model.TargetID, len(scc))
		for i, n := range scc {
			cycle[i] = idx.byID[n.ID()]
		}
		cycles = append(cycles, cycle)
	}
	return cycles
}

// ReverseDeps returns the targets that directly depend on the given target
func (idx *DepIndex) ReverseDeps(id model.TargetID) []model.TargetID {
	gid, ok := idx.ids[id]
	if !ok {
		return nil
	}
	var out []model.TargetID
	it := idx.g.To(gid)
	for it.Next() {
		out = append(out, idx.byID[it.Node().ID()])
	}
	return out
}

// diagnoseCycles logs dependency cycles after a graph build. Cycles are a
// project defect, not a parse error: the graph is still served.
func diagnoseCycles(pg *model.ProjectGraph) {
	for _, cycle := range NewDepIndex(pg).Cycles() {
		labels := make([]string, len(cycle))
		for i, id := range cycle {
			labels[i] = pg.LabelsByID[id]
		}
		logging.Warn("dependency cycle detected", "targets", labels)
	}
}

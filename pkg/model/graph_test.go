package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleGraph() *ProjectGraph {
	g := NewProjectGraph()
	id := MakeTargetID("//Lib:Lib", "ios_sim_arm64-dbg-min15.0")
	g.Targets[id] = &Target{ID: id, Label: "//Lib:Lib", Language: LanguageSwift}
	g.LabelsByID[id] = "//Lib:Lib"
	g.SourcesByTarget[id] = []SourceItem{
		{URI: "Lib/A.swift", Kind: SourceKindSource, Language: LanguageSwift},
	}
	g.TargetsBySource["Lib/A.swift"] = []TargetID{id}
	g.Aliases["//Alias:Lib"] = "//Lib:Lib"
	return g
}

func TestResolveAlias(t *testing.T) {
	g := sampleGraph()
	g.Aliases["//Outer:Outer"] = "//Alias:Lib"

	assert.Equal(t, "//Lib:Lib", g.ResolveAlias("//Alias:Lib"))
	assert.Equal(t, "//Lib:Lib", g.ResolveAlias("//Outer:Outer"))
	assert.Equal(t, "//Lib:Lib", g.ResolveAlias("//Lib:Lib"))
	assert.Equal(t, "//Other:Other", g.ResolveAlias("//Other:Other"))
}

func TestCheckIndexSymmetry(t *testing.T) {
	g := sampleGraph()
	require.NoError(t, g.CheckIndexSymmetry())

	// Forward entry without a reverse entry.
	broken := g.Clone()
	id := MakeTargetID("//Lib:Lib", "ios_sim_arm64-dbg-min15.0")
	broken.SourcesByTarget[id] = append(broken.SourcesByTarget[id],
		SourceItem{URI: "Lib/B.swift", Kind: SourceKindSource})
	assert.Error(t, broken.CheckIndexSymmetry())

	// Reverse entry pointing at a target that does not own the file.
	broken = g.Clone()
	broken.TargetsBySource["Lib/Ghost.swift"] = []TargetID{id}
	assert.Error(t, broken.CheckIndexSymmetry())
}

func TestCloneIsolatesIndices(t *testing.T) {
	g := sampleGraph()
	id := MakeTargetID("//Lib:Lib", "ios_sim_arm64-dbg-min15.0")

	clone := g.Clone()
	clone.SourcesByTarget[id] = append(clone.SourcesByTarget[id],
		SourceItem{URI: "Lib/B.swift", Kind: SourceKindSource})
	clone.TargetsBySource["Lib/B.swift"] = []TargetID{id}
	clone.Aliases["//New:New"] = "//Lib:Lib"

	assert.Len(t, g.SourcesByTarget[id], 1)
	assert.NotContains(t, g.TargetsBySource, "Lib/B.swift")
	assert.NotContains(t, g.Aliases, "//New:New")

	// Target values are immutable and shared.
	assert.Same(t, g.Targets[id], clone.Targets[id])
}

func TestSortedTargetIDs(t *testing.T) {
	g := NewProjectGraph()
	for _, label := range []string{"//A:A", "//B:B", "//C:C"} {
		id := MakeTargetID(label, "ios_sim_arm64-dbg-min15.0")
		g.Targets[id] = &Target{ID: id, Label: label}
	}

	ids := g.SortedTargetIDs()
	require.Len(t, ids, 3)
	assert.True(t, ids[0] < ids[1] && ids[1] < ids[2])
}

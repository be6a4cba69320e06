package invalidation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdevtools/bazel-bsp/pkg/model"
)

func testGraph() (*model.ProjectGraph, model.TargetID) {
	g := model.NewProjectGraph()
	id := model.MakeTargetID("//Lib:Lib", "ios_sim_arm64-dbg-min15.0")
	g.Targets[id] = &model.Target{ID: id, Label: "//Lib:Lib", Language: model.LanguageObjC}
	g.LabelsByID[id] = "//Lib:Lib"
	g.SourcesByTarget[id] = []model.SourceItem{
		{URI: "Lib/A.m", Kind: model.SourceKindSource, Language: model.LanguageObjC},
		{URI: "Lib/B.m", Kind: model.SourceKindSource, Language: model.LanguageObjC},
	}
	g.TargetsBySource["Lib/A.m"] = []model.TargetID{id}
	g.TargetsBySource["Lib/B.m"] = []model.TargetID{id}
	return g, id
}

func TestApplyChangesDeletion(t *testing.T) {
	g, id := testGraph()

	next, events, changed := ApplyChanges(g, []string{"Lib/B.m"}, nil)

	require.True(t, changed)
	assert.Equal(t, []model.InvalidatedTarget{
		{ID: id, URI: "Lib/B.m", Kind: model.FileDeleted},
	}, events)
	assert.Len(t, next.SourcesByTarget[id], 1)
	assert.Empty(t, next.TargetsBySource["Lib/B.m"])
	assert.NoError(t, next.CheckIndexSymmetry())

	// Original graph untouched.
	assert.Len(t, g.SourcesByTarget[id], 2)
	assert.Len(t, g.TargetsBySource["Lib/B.m"], 1)
}

func TestApplyChangesSoleSourceDeletionKeepsTarget(t *testing.T) {
	g, id := testGraph()

	next, _, changed := ApplyChanges(g, []string{"Lib/A.m", "Lib/B.m"}, nil)

	require.True(t, changed)
	assert.Empty(t, next.SourcesByTarget[id])
	// The target itself survives; only a configured re-query removes
	// targets.
	assert.Contains(t, next.Targets, id)
}

func TestApplyChangesAddition(t *testing.T) {
	g, id := testGraph()
	add := map[model.TargetID][]model.SourceItem{
		id: {{URI: "Lib/C.m", Kind: model.SourceKindSource, Language: model.LanguageObjC}},
	}

	next, events, changed := ApplyChanges(g, nil, add)

	require.True(t, changed)
	assert.Equal(t, []model.InvalidatedTarget{
		{ID: id, URI: "Lib/C.m", Kind: model.FileCreated},
	}, events)
	assert.Len(t, next.SourcesByTarget[id], 3)
	assert.Equal(t, []model.TargetID{id}, next.TargetsBySource["Lib/C.m"])
	assert.NoError(t, next.CheckIndexSymmetry())
}

func TestApplyChangesAdditionAlreadyKnownIsNoOp(t *testing.T) {
	g, id := testGraph()
	add := map[model.TargetID][]model.SourceItem{
		id: {{URI: "Lib/A.m", Kind: model.SourceKindSource}},
	}

	next, events, changed := ApplyChanges(g, nil, add)

	assert.False(t, changed)
	assert.Empty(t, events)
	assert.Same(t, g, next)
}

func TestApplyChangesUnknownTargetSkipped(t *testing.T) {
	g, _ := testGraph()
	ghost := model.MakeTargetID("//Gone:Gone", "ios_sim_arm64-dbg-min15.0")
	add := map[model.TargetID][]model.SourceItem{
		ghost: {{URI: "Gone/A.m", Kind: model.SourceKindSource}},
	}

	_, events, changed := ApplyChanges(g, nil, add)

	assert.False(t, changed)
	assert.Empty(t, events)
}

func TestApplyChangesDeleteThenReAdd(t *testing.T) {
	g, id := testGraph()

	afterDelete, _, changed := ApplyChanges(g, []string{"Lib/B.m"}, nil)
	require.True(t, changed)

	add := map[model.TargetID][]model.SourceItem{
		id: {{URI: "Lib/B.m", Kind: model.SourceKindSource, Language: model.LanguageObjC}},
	}
	afterReAdd, events, changed := ApplyChanges(afterDelete, nil, add)

	require.True(t, changed)
	assert.Equal(t, model.FileCreated, events[0].Kind)
	assert.ElementsMatch(t, g.SourcesByTarget[id], afterReAdd.SourcesByTarget[id])
	assert.NoError(t, afterReAdd.CheckIndexSymmetry())
}

func TestApplyChangesUnknownDeletionIsNoOp(t *testing.T) {
	g, _ := testGraph()

	next, events, changed := ApplyChanges(g, []string{"Elsewhere/X.m"}, nil)

	assert.False(t, changed)
	assert.Empty(t, events)
	assert.Same(t, g, next)
}

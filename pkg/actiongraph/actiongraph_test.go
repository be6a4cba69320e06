package actiongraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdevtools/bazel-bsp/pkg/bazel/bazelpb/bazelpbtest"
	"github.com/skdevtools/bazel-bsp/pkg/model"
)

const simMnemonic = "ios_sim_arm64-dbg-min15.0-applebin_ios-ST-5e2a1f09"

func TestParseIndexesActionsByTarget(t *testing.T) {
	data := bazelpbtest.ActionGraph(bazelpbtest.ActionGraphSpec{
		Targets: map[uint32]string{1: "//Lib:Lib"},
		Actions: []bazelpbtest.ActionSpec{
			{
				TargetID:        1,
				Mnemonic:        "SwiftCompile",
				ConfigurationID: 1,
				Arguments:       []string{"swiftc", "-module-name", "Lib"},
			},
		},
		Configurations: map[uint32]string{1: simMnemonic},
	})

	idx, err := Parse(data)
	require.NoError(t, err)

	target, ok := idx.Target("//Lib:Lib")
	require.True(t, ok)
	assert.Equal(t, uint32(1), target.ID)

	actions := idx.Actions(target.ID)
	require.Len(t, actions, 1)
	assert.Equal(t, "SwiftCompile", actions[0].Mnemonic)
	assert.Equal(t, []string{"swiftc", "-module-name", "Lib"}, actions[0].Arguments)

	cfg, ok := idx.Configuration(actions[0].ConfigurationID)
	require.True(t, ok)
	assert.Equal(t, "iphonesimulator", cfg.SDK)
	assert.Equal(t, "arm64", cfg.Architecture)
	assert.Contains(t, idx.PlatformInfo, "ios_sim_arm64-dbg-min15.0")
}

func TestParseSkipsToolConfigurations(t *testing.T) {
	// Exec configurations carry host mnemonics the platform parser would
	// reject; they must be skipped, not fatal.
	data := bazelpbtest.ActionGraph(bazelpbtest.ActionGraphSpec{
		Configurations: map[uint32]string{
			1: simMnemonic,
			2: "k8-opt-exec-ST-d57f47055a04",
		},
		ToolConfigIDs: []uint32{2},
	})

	idx, err := Parse(data)
	require.NoError(t, err)

	_, ok := idx.Configuration(2)
	assert.False(t, ok)
	_, ok = idx.Configuration(1)
	assert.True(t, ok)
	assert.Len(t, idx.PlatformInfo, 1)
}

func TestParseRejectsUnknownDevicePlatform(t *testing.T) {
	data := bazelpbtest.ActionGraph(bazelpbtest.ActionGraphSpec{
		Configurations: map[uint32]string{1: "fuchsia_arm64-dbg-min1.0"},
	})

	_, err := Parse(data)
	require.Error(t, err)
	var unknownPlatform *model.UnknownPlatformError
	assert.ErrorAs(t, err, &unknownPlatform)
}

func TestInputsWalksDepSetDAG(t *testing.T) {
	data := bazelpbtest.ActionGraph(bazelpbtest.ActionGraphSpec{
		Targets: map[uint32]string{1: "//Lib:Lib"},
		Actions: []bazelpbtest.ActionSpec{
			{TargetID: 1, Mnemonic: "ObjcCompile", ConfigurationID: 1, InputDepSetIDs: []uint32{5}},
		},
		Configurations: map[uint32]string{1: simMnemonic},
		Artifacts: map[uint32]string{
			10: "Lib/A.m",
			11: "Lib/B.m",
			12: "Lib/Hidden.h",
		},
		DepSets: map[uint32][]uint32{
			5: {10},
			6: {11},
			7: {12},
		},
	})

	idx, err := Parse(data)
	require.NoError(t, err)

	// Wire the transitive edges by hand: 5 -> {6, 7}, 7 -> {6} forms a DAG
	// with a shared member that must be visited once.
	ds5 := idx.depSets[5]
	ds5.TransitiveDepSetIDs = []uint32{6, 7}
	idx.depSets[5] = ds5
	ds7 := idx.depSets[7]
	ds7.TransitiveDepSetIDs = []uint32{6}
	idx.depSets[7] = ds7

	action := idx.Actions(1)[0]
	assert.Equal(t, []string{"Lib/A.m", "Lib/B.m", "Lib/Hidden.h"}, idx.Inputs(action))
}

func TestOutputsSkipsUnknownArtifacts(t *testing.T) {
	data := bazelpbtest.ActionGraph(bazelpbtest.ActionGraphSpec{
		Targets: map[uint32]string{1: "//Lib:Lib"},
		Actions: []bazelpbtest.ActionSpec{
			{TargetID: 1, Mnemonic: "SwiftCompile", ConfigurationID: 1, OutputIDs: []uint32{20, 99}},
		},
		Configurations: map[uint32]string{1: simMnemonic},
		Artifacts:      map[uint32]string{20: "bazel-out/Lib.swiftmodule"},
	})

	idx, err := Parse(data)
	require.NoError(t, err)

	action := idx.Actions(1)[0]
	assert.Equal(t, []string{"bazel-out/Lib.swiftmodule"}, idx.Outputs(action))
}

func TestArtifactPathFragmentsResolve(t *testing.T) {
	// Newer bazel emits artifact paths as fragment chains, child to parent.
	data := bazelpbtest.ActionGraph(bazelpbtest.ActionGraphSpec{
		Targets: map[uint32]string{1: "//Lib:Lib"},
		Actions: []bazelpbtest.ActionSpec{
			{TargetID: 1, Mnemonic: "SwiftCompile", ConfigurationID: 1, OutputIDs: []uint32{20}},
		},
		Configurations:    map[uint32]string{1: simMnemonic},
		FragmentArtifacts: map[uint32]uint32{20: 3},
		PathFragments: map[uint32]bazelpbtest.PathFragmentSpec{
			1: {Label: "bazel-out"},
			2: {Label: "gen", ParentID: 1},
			3: {Label: "Lib.swiftmodule", ParentID: 2},
		},
	})

	idx, err := Parse(data)
	require.NoError(t, err)

	action := idx.Actions(1)[0]
	assert.Equal(t, []string{"bazel-out/gen/Lib.swiftmodule"}, idx.Outputs(action))
}

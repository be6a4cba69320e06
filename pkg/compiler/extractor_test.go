package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdevtools/bazel-bsp/pkg/actiongraph"
	"github.com/skdevtools/bazel-bsp/pkg/bazel/bazelpb/bazelpbtest"
	"github.com/skdevtools/bazel-bsp/pkg/model"
)

const (
	simMnemonic    = "ios_sim_arm64-dbg-min15.0-applebin_ios-ST-5e2a1f09"
	deviceMnemonic = "ios_arm64-dbg-min15.0-applebin_ios-ST-9c41aa02"
)

func simConfig(t *testing.T) model.Configuration {
	t.Helper()
	cfg, err := model.ParseConfiguration(simMnemonic+"-checksum", simMnemonic)
	require.NoError(t, err)
	return cfg
}

func parseIndex(t *testing.T, spec bazelpbtest.ActionGraphSpec) *actiongraph.Index {
	t.Helper()
	idx, err := actiongraph.Parse(bazelpbtest.ActionGraph(spec))
	require.NoError(t, err)
	return idx
}

func TestExtractWholeModule(t *testing.T) {
	idx := parseIndex(t, bazelpbtest.ActionGraphSpec{
		Targets:        map[uint32]string{1: "//Lib:Lib"},
		Configurations: map[uint32]string{1: simMnemonic},
		Actions: []bazelpbtest.ActionSpec{
			{
				TargetID:        1,
				Mnemonic:        "SwiftCompile",
				ConfigurationID: 1,
				Arguments:       []string{"swiftc", "Lib/Sources/A.swift", "Lib/Sources/B.swift"},
			},
		},
	})

	action, err := Extract(idx, Request{
		TargetLabel:         "//Lib:Lib",
		ParentConfiguration: simConfig(t),
	})
	require.NoError(t, err)
	assert.Equal(t, "//Lib:Lib", action.TargetLabel)
	assert.Equal(t, simMnemonic, action.Mnemonic)
	assert.Equal(t, []string{"swiftc", "Lib/Sources/A.swift", "Lib/Sources/B.swift"}, action.Arguments)
}

func TestExtractTargetNotFound(t *testing.T) {
	idx := parseIndex(t, bazelpbtest.ActionGraphSpec{
		Targets: map[uint32]string{1: "//Lib:Lib"},
	})

	_, err := Extract(idx, Request{TargetLabel: "//Other:Other", ParentConfiguration: simConfig(t)})
	assert.ErrorIs(t, err, ErrTargetNotFound)
}

func TestExtractNoMatchingConfiguration(t *testing.T) {
	idx := parseIndex(t, bazelpbtest.ActionGraphSpec{
		Targets:        map[uint32]string{1: "//Lib:Lib"},
		Configurations: map[uint32]string{1: deviceMnemonic},
		Actions: []bazelpbtest.ActionSpec{
			{TargetID: 1, Mnemonic: "SwiftCompile", ConfigurationID: 1, Arguments: []string{"swiftc"}},
		},
	})

	_, err := Extract(idx, Request{TargetLabel: "//Lib:Lib", ParentConfiguration: simConfig(t)})
	assert.ErrorIs(t, err, ErrNoMatchingConfiguration)
}

func TestExtractToleratesTransitionSuffixDifference(t *testing.T) {
	// The dependency was built under a different transition hash than the
	// parent; the builds are still effectively the same.
	shifted := "ios_sim_arm64-dbg-min15.0-ST-00ffee11"
	idx := parseIndex(t, bazelpbtest.ActionGraphSpec{
		Targets:        map[uint32]string{1: "//Lib:Lib"},
		Configurations: map[uint32]string{1: shifted},
		Actions: []bazelpbtest.ActionSpec{
			{TargetID: 1, Mnemonic: "SwiftCompile", ConfigurationID: 1, Arguments: []string{"swiftc"}},
		},
	})

	action, err := Extract(idx, Request{TargetLabel: "//Lib:Lib", ParentConfiguration: simConfig(t)})
	require.NoError(t, err)
	assert.Equal(t, shifted, action.Mnemonic)
}

func TestExtractTopLevelRequiresExactMnemonic(t *testing.T) {
	shifted := "ios_sim_arm64-dbg-min15.0-ST-00ffee11"
	idx := parseIndex(t, bazelpbtest.ActionGraphSpec{
		Targets:        map[uint32]string{1: "//App:App"},
		Configurations: map[uint32]string{1: shifted},
		Actions: []bazelpbtest.ActionSpec{
			{TargetID: 1, Mnemonic: "SwiftCompile", ConfigurationID: 1, Arguments: []string{"swiftc"}},
		},
	})

	_, err := Extract(idx, Request{
		TargetLabel:         "//App:App",
		ParentConfiguration: simConfig(t),
		CompileAtTopLevel:   true,
	})
	assert.ErrorIs(t, err, ErrNoMatchingConfiguration)
}

func TestExtractAmbiguousConfiguration(t *testing.T) {
	// Two variants whose mnemonics normalize identically: whole-module
	// extraction cannot pick one.
	idx := parseIndex(t, bazelpbtest.ActionGraphSpec{
		Targets: map[uint32]string{1: "//Lib:Lib"},
		Configurations: map[uint32]string{
			1: "ios_sim_arm64-dbg-min15.0-ST-aaaa1111",
			2: "ios_sim_arm64-dbg-min15.0-applebin_ios-ST-bbbb2222",
		},
		Actions: []bazelpbtest.ActionSpec{
			{TargetID: 1, Mnemonic: "SwiftCompile", ConfigurationID: 1, Arguments: []string{"swiftc"}},
			{TargetID: 1, Mnemonic: "SwiftCompile", ConfigurationID: 2, Arguments: []string{"swiftc"}},
		},
	})

	_, err := Extract(idx, Request{TargetLabel: "//Lib:Lib", ParentConfiguration: simConfig(t)})
	assert.ErrorIs(t, err, ErrAmbiguousConfiguration)
}

func TestExtractPerFileMnemonicMatchesChosenAction(t *testing.T) {
	// Two transition variants of the same effective build, each compiling a
	// different file. The reported mnemonic must come from the action that
	// supplied the arguments, not from whichever variant was seen last.
	first := "ios_sim_arm64-dbg-min15.0-ST-aaaa1111"
	second := "ios_sim_arm64-dbg-min15.0-applebin_ios-ST-bbbb2222"
	idx := parseIndex(t, bazelpbtest.ActionGraphSpec{
		Targets: map[uint32]string{1: "//Lib:ObjcLib"},
		Configurations: map[uint32]string{
			1: first,
			2: second,
		},
		Actions: []bazelpbtest.ActionSpec{
			{TargetID: 1, Mnemonic: "ObjcCompile", ConfigurationID: 1, Arguments: []string{"clang", "-c", "Lib/A.m"}},
			{TargetID: 1, Mnemonic: "ObjcCompile", ConfigurationID: 2, Arguments: []string{"clang", "-c", "Lib/B.m"}},
		},
	})

	action, err := Extract(idx, Request{
		TargetLabel:         "//Lib:ObjcLib",
		ParentConfiguration: simConfig(t),
		File:                "Lib/A.m",
	})
	require.NoError(t, err)
	assert.Equal(t, first, action.Mnemonic)
	assert.Contains(t, action.Arguments, "Lib/A.m")
}

func TestExtractPerFileSelectsMatchingAction(t *testing.T) {
	idx := parseIndex(t, bazelpbtest.ActionGraphSpec{
		Targets:        map[uint32]string{1: "//Lib:ObjcLib"},
		Configurations: map[uint32]string{1: simMnemonic},
		Actions: []bazelpbtest.ActionSpec{
			{TargetID: 1, Mnemonic: "ObjcCompile", ConfigurationID: 1, Arguments: []string{"clang", "-c", "Lib/A.m"}},
			{TargetID: 1, Mnemonic: "ObjcCompile", ConfigurationID: 1, Arguments: []string{"clang", "-c", "Lib/B.m"}},
		},
	})

	action, err := Extract(idx, Request{
		TargetLabel:         "//Lib:ObjcLib",
		ParentConfiguration: simConfig(t),
		File:                "Lib/B.m",
	})
	require.NoError(t, err)
	assert.Contains(t, action.Arguments, "Lib/B.m")
}

func TestExtractPerFileMatchesThroughInputs(t *testing.T) {
	// The file only appears in the action's input dep set, not in its
	// argument list (response-file style invocations).
	idx := parseIndex(t, bazelpbtest.ActionGraphSpec{
		Targets:        map[uint32]string{1: "//Lib:ObjcLib"},
		Configurations: map[uint32]string{1: simMnemonic},
		Artifacts:      map[uint32]string{10: "Lib/Hidden.m"},
		DepSets:        map[uint32][]uint32{5: {10}},
		Actions: []bazelpbtest.ActionSpec{
			{TargetID: 1, Mnemonic: "ObjcCompile", ConfigurationID: 1, Arguments: []string{"clang", "@params"}, InputDepSetIDs: []uint32{5}},
		},
	})

	action, err := Extract(idx, Request{
		TargetLabel:         "//Lib:ObjcLib",
		ParentConfiguration: simConfig(t),
		File:                "Lib/Hidden.m",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"clang", "@params"}, action.Arguments)
}

func TestExtractNoActionForFile(t *testing.T) {
	idx := parseIndex(t, bazelpbtest.ActionGraphSpec{
		Targets:        map[uint32]string{1: "//Lib:ObjcLib"},
		Configurations: map[uint32]string{1: simMnemonic},
		Actions: []bazelpbtest.ActionSpec{
			{TargetID: 1, Mnemonic: "ObjcCompile", ConfigurationID: 1, Arguments: []string{"clang", "-c", "Lib/A.m"}},
		},
	})

	_, err := Extract(idx, Request{
		TargetLabel:         "//Lib:ObjcLib",
		ParentConfiguration: simConfig(t),
		File:                "Lib/Missing.m",
	})
	assert.ErrorIs(t, err, ErrNoActionForFile)
}

func TestPathMatchesWholeSegments(t *testing.T) {
	assert.True(t, pathMatches("Lib/A.m", "Lib/A.m"))
	assert.True(t, pathMatches("bazel-out/x/bin/Lib/A.m", "Lib/A.m"))
	assert.False(t, pathMatches("Lib/SubA.m", "A.m"))
	assert.False(t, pathMatches("OtherLib/A.m", "Lib/A.m"))
}

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdevtools/bazel-bsp/pkg/bazel/bazelpb/bazelpbtest"
	"github.com/skdevtools/bazel-bsp/pkg/model"
)

const (
	simMnemonic   = "ios_sim_arm64-dbg-min15.0-applebin_ios-ST-5e2a1f09"
	simNormalized = "ios_sim_arm64-dbg-min15.0"
)

func newTestParser() *Parser {
	return NewParser(ParseOptions{
		TopLevelRuleKinds:   []string{"ios_application", "ios_unit_test"},
		DependencyRuleKinds: []string{"swift_library", "objc_library"},
	})
}

func queryStream(configuredTargets [][]byte, configurations [][]byte) []byte {
	return bazelpbtest.Stream(bazelpbtest.CqueryResult(configuredTargets, configurations))
}

// fixtureStream is an app depending on a swift library which depends on an
// objc library, all built under the simulator configuration.
func fixtureStream() []byte {
	return queryStream([][]byte{
		bazelpbtest.ConfiguredTarget(bazelpbtest.RuleTarget(bazelpbtest.RuleSpec{
			Name:  "//App:App",
			Class: "ios_application",
			Attrs: []bazelpbtest.AttrSpec{bazelpbtest.StringListAttr("deps", "//Lib:Lib")},
		}), 1),
		bazelpbtest.ConfiguredTarget(bazelpbtest.RuleTarget(bazelpbtest.RuleSpec{
			Name:  "//Lib:Lib",
			Class: "swift_library",
			Attrs: []bazelpbtest.AttrSpec{
				bazelpbtest.StringListAttr("srcs", "//Lib:A.swift", "//Lib:B.swift"),
				bazelpbtest.StringListAttr("deps", "//Objc:Objc"),
			},
		}), 1),
		bazelpbtest.ConfiguredTarget(bazelpbtest.RuleTarget(bazelpbtest.RuleSpec{
			Name:  "//Objc:Objc",
			Class: "objc_library",
			Attrs: []bazelpbtest.AttrSpec{
				bazelpbtest.StringListAttr("srcs", "//Objc:impl.m"),
				bazelpbtest.StringListAttr("hdrs", "//Objc:impl.h"),
			},
		}), 1),
		bazelpbtest.ConfiguredTarget(bazelpbtest.SourceFileTarget("//Lib:A.swift", ""), 1),
		bazelpbtest.ConfiguredTarget(bazelpbtest.SourceFileTarget("//Lib:B.swift", ""), 1),
		bazelpbtest.ConfiguredTarget(bazelpbtest.SourceFileTarget("//Objc:impl.m", ""), 1),
		bazelpbtest.ConfiguredTarget(bazelpbtest.SourceFileTarget("//Objc:impl.h", ""), 1),
	}, [][]byte{
		bazelpbtest.Configuration(1, simMnemonic),
	})
}

func TestParseBuildsCrossIndexedGraph(t *testing.T) {
	g, err := newTestParser().Parse(fixtureStream())
	require.NoError(t, err)

	require.Len(t, g.TopLevel, 1)
	top := g.TopLevel[0]
	assert.Equal(t, "//App:App", top.Label)
	assert.Equal(t, "ios_application", top.RuleKind)
	assert.Equal(t, simNormalized, top.Configuration.NormalizedMnemonic)
	assert.Equal(t, "iphonesimulator", top.Configuration.SDK)
	assert.Equal(t, "15.0", top.Configuration.MinOSVersion)
	assert.Equal(t, []string{"//App:App"}, g.TopLevelByConfig[simMnemonic])

	require.Len(t, g.Targets, 2)
	libID := model.MakeTargetID("//Lib:Lib", simNormalized)
	objcID := model.MakeTargetID("//Objc:Objc", simNormalized)

	lib := g.Targets[libID]
	require.NotNil(t, lib)
	assert.Equal(t, model.LanguageSwift, lib.Language)
	assert.True(t, lib.IsLibrary)
	assert.False(t, lib.IsTest)
	assert.Equal(t, []model.TargetID{objcID}, lib.Deps)

	assert.Equal(t, []model.SourceItem{
		{URI: "Lib/A.swift", Kind: model.SourceKindSource, Language: model.LanguageSwift},
		{URI: "Lib/B.swift", Kind: model.SourceKindSource, Language: model.LanguageSwift},
	}, g.SourcesByTarget[libID])
	assert.Equal(t, []model.SourceItem{
		{URI: "Objc/impl.m", Kind: model.SourceKindSource, Language: model.LanguageObjC},
		{URI: "Objc/impl.h", Kind: model.SourceKindHeader, Language: model.LanguageObjC},
	}, g.SourcesByTarget[objcID])

	assert.Equal(t, []model.TargetID{objcID}, g.TargetsForSource("Objc/impl.h"))
	require.NoError(t, g.CheckIndexSymmetry())
}

func TestParseIsDeterministic(t *testing.T) {
	p := newTestParser()
	first, err := p.Parse(fixtureStream())
	require.NoError(t, err)
	second, err := p.Parse(fixtureStream())
	require.NoError(t, err)

	assert.Equal(t, first.SortedTargetIDs(), second.SortedTargetIDs())
	assert.Equal(t, first.SourcesByTarget, second.SourcesByTarget)
	assert.Equal(t, first.TopLevel, second.TopLevel)
}

func TestParseResolvesAliasDeps(t *testing.T) {
	stream := queryStream([][]byte{
		bazelpbtest.ConfiguredTarget(bazelpbtest.RuleTarget(bazelpbtest.RuleSpec{
			Name:  "//App:App",
			Class: "ios_application",
		}), 1),
		bazelpbtest.ConfiguredTarget(bazelpbtest.RuleTarget(bazelpbtest.RuleSpec{
			Name:  "//Lib:Lib",
			Class: "swift_library",
			Attrs: []bazelpbtest.AttrSpec{bazelpbtest.StringListAttr("deps", "//Alias:Objc")},
		}), 1),
		bazelpbtest.ConfiguredTarget(bazelpbtest.RuleTarget(bazelpbtest.RuleSpec{
			Name:  "//Alias:Objc",
			Class: "alias",
			Attrs: []bazelpbtest.AttrSpec{bazelpbtest.StringAttr("actual", "//Objc:Objc")},
		}), 1),
		bazelpbtest.ConfiguredTarget(bazelpbtest.RuleTarget(bazelpbtest.RuleSpec{
			Name:  "//Objc:Objc",
			Class: "objc_library",
		}), 1),
	}, [][]byte{
		bazelpbtest.Configuration(1, simMnemonic),
	})

	g, err := newTestParser().Parse(stream)
	require.NoError(t, err)

	objcID := model.MakeTargetID("//Objc:Objc", simNormalized)
	lib := g.Targets[model.MakeTargetID("//Lib:Lib", simNormalized)]
	require.NotNil(t, lib)
	assert.Equal(t, []model.TargetID{objcID}, lib.Deps)
	assert.Equal(t, "//Objc:Objc", g.ResolveAlias("//Alias:Objc"))
}

func TestParseDropsAliasCycles(t *testing.T) {
	stream := queryStream([][]byte{
		bazelpbtest.ConfiguredTarget(bazelpbtest.RuleTarget(bazelpbtest.RuleSpec{
			Name:  "//App:App",
			Class: "ios_application",
		}), 1),
		bazelpbtest.ConfiguredTarget(bazelpbtest.RuleTarget(bazelpbtest.RuleSpec{
			Name:  "//A:A",
			Class: "alias",
			Attrs: []bazelpbtest.AttrSpec{bazelpbtest.StringAttr("actual", "//B:B")},
		}), 1),
		bazelpbtest.ConfiguredTarget(bazelpbtest.RuleTarget(bazelpbtest.RuleSpec{
			Name:  "//B:B",
			Class: "alias",
			Attrs: []bazelpbtest.AttrSpec{bazelpbtest.StringAttr("actual", "//A:A")},
		}), 1),
	}, [][]byte{
		bazelpbtest.Configuration(1, simMnemonic),
	})

	g, err := newTestParser().Parse(stream)
	require.NoError(t, err)
	assert.Empty(t, g.Aliases)
	assert.Equal(t, "//A:A", g.ResolveAlias("//A:A"))
}

func TestParseUnwrapsTestBundle(t *testing.T) {
	stream := queryStream([][]byte{
		bazelpbtest.ConfiguredTarget(bazelpbtest.RuleTarget(bazelpbtest.RuleSpec{
			Name:  "//Tests:UnitTests",
			Class: "ios_unit_test",
		}), 1),
		bazelpbtest.ConfiguredTarget(bazelpbtest.RuleTarget(bazelpbtest.RuleSpec{
			Name:  "//Tests:UnitTests" + TestBundleSuffix,
			Class: "_ios_internal_unit_test_bundle",
			Attrs: []bazelpbtest.AttrSpec{bazelpbtest.StringListAttr("deps", "//Tests:TestsLib")},
		}), 1),
		bazelpbtest.ConfiguredTarget(bazelpbtest.RuleTarget(bazelpbtest.RuleSpec{
			Name:  "//Tests:TestsLib",
			Class: "swift_library",
			Attrs: []bazelpbtest.AttrSpec{bazelpbtest.StringListAttr("srcs", "//Tests:LibTests.swift")},
		}), 1),
		bazelpbtest.ConfiguredTarget(bazelpbtest.SourceFileTarget("//Tests:LibTests.swift", ""), 1),
	}, [][]byte{
		bazelpbtest.Configuration(1, simMnemonic),
	})

	g, err := newTestParser().Parse(stream)
	require.NoError(t, err)

	require.Len(t, g.TopLevel, 1)
	assert.Equal(t, "//Tests:UnitTests", g.TopLevel[0].Label)
	assert.Equal(t, "ios_unit_test", g.TopLevel[0].RuleKind)

	// Both the outer test label and the bundle resolve to the real library.
	assert.Equal(t, "//Tests:TestsLib", g.ResolveAlias("//Tests:UnitTests"))
	assert.Equal(t, "//Tests:TestsLib", g.ResolveAlias("//Tests:UnitTests"+TestBundleSuffix))
	assert.Equal(t, []string{"Tests/LibTests.swift"}, g.TestSourcesByLabel["//Tests:UnitTests"])

	lib := g.Targets[model.MakeTargetID("//Tests:TestsLib", simNormalized)]
	require.NotNil(t, lib)
	assert.False(t, lib.IsTest)
}

func TestParseRejectsUnexpectedEntryType(t *testing.T) {
	stream := queryStream([][]byte{
		bazelpbtest.ConfiguredTarget(bazelpbtest.PackageGroupTarget(), 1),
	}, [][]byte{
		bazelpbtest.Configuration(1, simMnemonic),
	})

	_, err := newTestParser().Parse(stream)
	assert.Error(t, err)
}

func TestParseToleratesToolConfigurations(t *testing.T) {
	// Real cquery output carries exec configurations for build-time tools
	// alongside the device ones. Their mnemonics have no device platform
	// and must not fail the parse.
	stream := queryStream([][]byte{
		bazelpbtest.ConfiguredTarget(bazelpbtest.RuleTarget(bazelpbtest.RuleSpec{
			Name:  "//App:App",
			Class: "ios_application",
			Attrs: []bazelpbtest.AttrSpec{bazelpbtest.StringListAttr("deps", "//Lib:Lib")},
		}), 1),
		bazelpbtest.ConfiguredTarget(bazelpbtest.RuleTarget(bazelpbtest.RuleSpec{
			Name:  "//Lib:Lib",
			Class: "swift_library",
		}), 1),
		// A protoc-style helper built for the exec platform.
		bazelpbtest.ConfiguredTarget(bazelpbtest.RuleTarget(bazelpbtest.RuleSpec{
			Name:  "//Tools:gen",
			Class: "swift_library",
		}), 2),
	}, [][]byte{
		bazelpbtest.Configuration(1, simMnemonic),
		bazelpbtest.ToolConfiguration(2, "k8-opt-exec-ST-d57f47055a04"),
	})

	g, err := newTestParser().Parse(stream)
	require.NoError(t, err)

	require.Len(t, g.TopLevel, 1)
	assert.Equal(t, "//App:App", g.TopLevel[0].Label)
	require.Len(t, g.Targets, 1)
	assert.NotNil(t, g.Targets[model.MakeTargetID("//Lib:Lib", simNormalized)])
}

func TestParseSkipsUnknownPlatformConfigurations(t *testing.T) {
	// A configuration whose platform cannot be inferred is dropped along
	// with everything built under it; targets under known configurations
	// survive.
	stream := queryStream([][]byte{
		bazelpbtest.ConfiguredTarget(bazelpbtest.RuleTarget(bazelpbtest.RuleSpec{
			Name:  "//App:App",
			Class: "ios_application",
		}), 1),
		bazelpbtest.ConfiguredTarget(bazelpbtest.RuleTarget(bazelpbtest.RuleSpec{
			Name:  "//Fuchsia:App",
			Class: "ios_application",
		}), 2),
	}, [][]byte{
		bazelpbtest.Configuration(1, simMnemonic),
		bazelpbtest.Configuration(2, "fuchsia_arm64-dbg-min1.0"),
	})

	g, err := newTestParser().Parse(stream)
	require.NoError(t, err)
	require.Len(t, g.TopLevel, 1)
	assert.Equal(t, "//App:App", g.TopLevel[0].Label)
}

func TestParseDropsTargetsOutsideRequestedConfigurations(t *testing.T) {
	stream := queryStream([][]byte{
		bazelpbtest.ConfiguredTarget(bazelpbtest.RuleTarget(bazelpbtest.RuleSpec{
			Name:  "//App:App",
			Class: "ios_application",
		}), 1),
		// Built under a configuration no requested top-level target uses.
		bazelpbtest.ConfiguredTarget(bazelpbtest.RuleTarget(bazelpbtest.RuleSpec{
			Name:  "//Tools:Tools",
			Class: "swift_library",
		}), 2),
	}, [][]byte{
		bazelpbtest.Configuration(1, simMnemonic),
		bazelpbtest.Configuration(2, "macos_arm64-opt-min13.0-ST-aa11bb22"),
	})

	g, err := newTestParser().Parse(stream)
	require.NoError(t, err)
	assert.Empty(t, g.Targets)
}

func TestParseSourceAdditions(t *testing.T) {
	p := newTestParser()
	g, err := p.Parse(fixtureStream())
	require.NoError(t, err)

	stream := queryStream([][]byte{
		bazelpbtest.ConfiguredTarget(bazelpbtest.RuleTarget(bazelpbtest.RuleSpec{
			Name:  "//Lib:Lib",
			Class: "swift_library",
			Attrs: []bazelpbtest.AttrSpec{
				bazelpbtest.StringListAttr("srcs", "//Lib:A.swift", "//Lib:B.swift", "//Lib:C.swift"),
			},
		}), 1),
		// Not in the current graph: patching cannot introduce targets.
		bazelpbtest.ConfiguredTarget(bazelpbtest.RuleTarget(bazelpbtest.RuleSpec{
			Name:  "//New:New",
			Class: "swift_library",
			Attrs: []bazelpbtest.AttrSpec{bazelpbtest.StringListAttr("srcs", "//New:Fresh.swift")},
		}), 1),
		bazelpbtest.ConfiguredTarget(bazelpbtest.SourceFileTarget("//Lib:A.swift", ""), 1),
		bazelpbtest.ConfiguredTarget(bazelpbtest.SourceFileTarget("//Lib:B.swift", ""), 1),
		bazelpbtest.ConfiguredTarget(bazelpbtest.SourceFileTarget("//Lib:C.swift", ""), 1),
		bazelpbtest.ConfiguredTarget(bazelpbtest.SourceFileTarget("//New:Fresh.swift", ""), 1),
	}, [][]byte{
		bazelpbtest.Configuration(1, simMnemonic),
	})

	additions, err := p.ParseSourceAdditions(stream, g)
	require.NoError(t, err)

	libID := model.MakeTargetID("//Lib:Lib", simNormalized)
	require.Len(t, additions, 1)
	uris := make([]string, 0, len(additions[libID]))
	for _, item := range additions[libID] {
		uris = append(uris, item.URI)
	}
	assert.Equal(t, []string{"Lib/A.swift", "Lib/B.swift", "Lib/C.swift"}, uris)
}

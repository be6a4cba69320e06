package model

import (
	"fmt"
	"strings"
)

// sdkByPlatform maps the platform prefix of an output-directory mnemonic to
// the SDK the compiler must be pointed at. Device and simulator variants of
// the same OS family resolve to different SDKs.
var sdkByPlatform = map[string]string{
	"ios":          "iphoneos",
	"ios_sim":      "iphonesimulator",
	"macos":        "macosx",
	"darwin":       "macosx",
	"watchos":      "watchos",
	"watchos_sim":  "watchsimulator",
	"tvos":         "appletvos",
	"tvos_sim":     "appletvsimulator",
	"visionos":     "xros",
	"visionos_sim": "xrsimulator",
}

// UnknownPlatformError means a mnemonic's platform/architecture prefix is
// not in the SDK table. There is no safe way to guess a target triple, so
// this is a hard error rather than a degraded result.
type UnknownPlatformError struct {
	Mnemonic string
}

func (e *UnknownPlatformError) Error() string {
	return fmt.Sprintf("cannot infer SDK for configuration mnemonic %q", e.Mnemonic)
}

// ParseConfiguration derives a Configuration from a bazel output-directory
// mnemonic of the form
//
//	<platform>_<arch>-<mode>-min<version>[-applebin_<os>][-ST-<hash>]
//
// e.g. "ios_sim_arm64-dbg-min15.0-applebin_ios-ST-5e2a1f09". The trailing
// transition segments are transient: two mnemonics that differ only there
// describe the same effective build and normalize identically.
func ParseConfiguration(id, mnemonic string) (Configuration, error) {
	segments := strings.Split(mnemonic, "-")

	platform, arch, err := splitPlatformArch(segments[0], mnemonic)
	if err != nil {
		return Configuration{}, err
	}

	cfg := Configuration{
		ID:                 id,
		Mnemonic:           mnemonic,
		NormalizedMnemonic: NormalizeMnemonic(mnemonic),
		Platform:           platform,
		Architecture:       arch,
		SDK:                sdkByPlatform[platform],
	}
	if len(segments) > 2 && strings.HasPrefix(segments[2], "min") {
		cfg.MinOSVersion = strings.TrimPrefix(segments[2], "min")
	}
	return cfg, nil
}

// NormalizeMnemonic strips the transient transition suffixes from a
// mnemonic: the trailing "ST-<hash>" distinguisher and, when the bazel
// version still emits it, the "applebin_<os>" transition segment before
// it. Older and newer bazel output normalizes to the same string.
func NormalizeMnemonic(mnemonic string) string {
	segments := strings.Split(mnemonic, "-")
	if len(segments) >= 2 && segments[len(segments)-2] == "ST" {
		segments = segments[:len(segments)-2]
		if len(segments) > 0 && strings.HasPrefix(segments[len(segments)-1], "applebin_") {
			segments = segments[:len(segments)-1]
		}
	}
	return strings.Join(segments, "-")
}

// splitPlatformArch splits "ios_sim_arm64" into ("ios_sim", "arm64") by
// longest-prefix match against the SDK table. Architectures can themselves
// contain underscores (x86_64), so a simple split will not do.
func splitPlatformArch(platArch, mnemonic string) (string, string, error) {
	best := ""
	for prefix := range sdkByPlatform {
		if platArch == prefix || strings.HasPrefix(platArch, prefix+"_") {
			if len(prefix) > len(best) {
				best = prefix
			}
		}
	}
	if best == "" {
		return "", "", &UnknownPlatformError{Mnemonic: mnemonic}
	}
	arch := strings.TrimPrefix(strings.TrimPrefix(platArch, best), "_")
	return best, arch, nil
}

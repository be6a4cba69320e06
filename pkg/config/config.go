package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config holds all configuration for the server
type Config struct {
	// Workspace is the bazel workspace root the session serves.
	Workspace string `koanf:"workspace"`

	// BazelPath is the bazel binary to invoke.
	BazelPath string `koanf:"bazel"`

	// Targets are the top-level target patterns the session builds its
	// graph from.
	Targets []string `koanf:"targets"`

	// Rule-kind filters for the configured query.
	TopLevelRuleKinds    []string `koanf:"top-level-rule-kinds"`
	DependencyRuleKinds  []string `koanf:"dependency-rule-kinds"`
	Exclusions           []string `koanf:"exclusions"`
	DependencyExclusions []string `koanf:"dependency-exclusions"`

	// Mnemonics are the compile-action mnemonics requested from the action
	// query.
	Mnemonics []string `koanf:"mnemonics"`

	// IndexStorePath is the shared index store every returned compile
	// command points at.
	IndexStorePath string `koanf:"index-store-path"`

	// DeveloperDir substitutes the toolchain placeholder in compile
	// commands. Discovery is out of scope; it must be provided.
	DeveloperDir string `koanf:"developer-dir"`

	// CompileAtTopLevel matches compile actions on the raw configuration
	// mnemonic instead of the normalized one.
	CompileAtTopLevel bool `koanf:"compile-at-top-level"`

	Watch      bool   `koanf:"watch"`
	DebugPort  int    `koanf:"debug-port"` // 0 disables the debug server
	PrintGraph bool   `koanf:"print-graph"`
	Verbosity  string `koanf:"verbosity"`
	VerboseCnt int    `koanf:"verbose"`
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	defaults := map[string]interface{}{
		"workspace":             ".",
		"bazel":                 "bazel",
		"targets":               []string{},
		"top-level-rule-kinds":  []string{"ios_application", "ios_unit_test", "ios_ui_test", "macos_application", "macos_unit_test"},
		"dependency-rule-kinds": []string{"swift_library", "objc_library", "cc_library"},
		"mnemonics":             []string{"SwiftCompile", "ObjcCompile", "CppCompile"},
		"index-store-path":      "",
		"developer-dir":         "",
		"compile-at-top-level":  false,
		"watch":                 true,
		"debug-port":            0,
		"print-graph":           false,
		"verbosity":             "",
		"verbose":               0,
	}
	if err := k.Load(makeMapProvider(defaults), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File (optional) - bazel-bsp.toml
	// We ignore errors here as the file might not exist
	_ = k.Load(file.Provider("bazel-bsp.toml"), toml.Parser())

	// 3. Environment Variables
	// Prefix: BAZEL_BSP_ (e.g., BAZEL_BSP_DEBUG_PORT=8080)
	if err := k.Load(env.Provider("BAZEL_BSP_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, "BAZEL_BSP_")), "_", "-")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate reports configuration states the session cannot start from
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("no top-level targets configured")
	}
	return nil
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}

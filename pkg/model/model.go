package model

import (
	"fmt"
	"path"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Language classifies the source language a target is compiled as
type Language string

const (
	LanguageSwift   Language = "swift"
	LanguageObjC    Language = "objc"
	LanguageC       Language = "c"
	LanguageCpp     Language = "cpp"
	LanguageUnknown Language = ""
)

// LanguageForPath infers the language from a file extension.
// Headers are ambiguous on their own and report LanguageUnknown; callers
// usually take the language of the owning target instead.
func LanguageForPath(p string) Language {
	switch strings.ToLower(path.Ext(p)) {
	case ".swift":
		return LanguageSwift
	case ".m", ".mm":
		return LanguageObjC
	case ".c":
		return LanguageC
	case ".cc", ".cpp", ".cxx":
		return LanguageCpp
	default:
		return LanguageUnknown
	}
}

// WholeModule reports whether the language compiles a target as a single
// module (one compiler invocation for all files) rather than per file.
func (l Language) WholeModule() bool {
	return l == LanguageSwift
}

// SourceKind distinguishes headers from compilable sources
type SourceKind int

const (
	SourceKindSource SourceKind = iota
	SourceKindHeader
)

// IsHeaderPath reports whether the path names a header file
func IsHeaderPath(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".h", ".hpp", ".hh", ".inc":
		return true
	}
	return false
}

// SourceItem is a single file belonging to a target
type SourceItem struct {
	URI      string     `json:"uri"`
	Kind     SourceKind `json:"kind"`
	Language Language   `json:"language,omitempty"`

	// ShadowURI is where the build tool physically stages the file during
	// compilation, when that differs from the logical location. Editors use
	// it to map compiler output back to the real file.
	ShadowURI string `json:"shadowUri,omitempty"`
}

// Configuration is a build-variant descriptor resolved from a bazel
// output-directory mnemonic
type Configuration struct {
	ID                 string `json:"id"`       // configuration checksum as reported by bazel
	Mnemonic           string `json:"mnemonic"` // raw mnemonic, transition suffixes included
	NormalizedMnemonic string `json:"normalizedMnemonic"`
	Platform           string `json:"platform"`     // e.g. "ios_sim"
	Architecture       string `json:"architecture"` // e.g. "arm64"
	MinOSVersion       string `json:"minOsVersion,omitempty"`
	SDK                string `json:"sdk,omitempty"` // e.g. "iphonesimulator"
}

// SameEffectiveBuild reports whether two configurations describe the same
// effective build, i.e. differ only in transient transition suffixes.
func (c Configuration) SameEffectiveBuild(other Configuration) bool {
	return c.NormalizedMnemonic == other.NormalizedMnemonic
}

// TargetID is a stable identifier for a target, derived from its label and
// resolved configuration so that platform variants of the same logical
// target get distinct IDs.
type TargetID string

// MakeTargetID derives the stable identifier for a label built under the
// given normalized configuration mnemonic.
func MakeTargetID(label, normalizedMnemonic string) TargetID {
	h := xxhash.New()
	h.WriteString(label)
	h.WriteString("\x00")
	h.WriteString(normalizedMnemonic)
	return TargetID(fmt.Sprintf("%016x", h.Sum64()))
}

// Target is a buildable unit in the project graph. Targets are immutable
// once constructed; only their source lists (held on the ProjectGraph) may
// be replaced, and only by the invalidation engine.
type Target struct {
	ID            TargetID      `json:"id"`
	Label         string        `json:"label"`
	Language      Language      `json:"language,omitempty"`
	Deps          []TargetID    `json:"deps,omitempty"`
	IsTest        bool          `json:"isTest,omitempty"`
	IsLibrary     bool          `json:"isLibrary,omitempty"`
	IsExternal    bool          `json:"isExternal,omitempty"`
	Toolchain     string        `json:"toolchain,omitempty"` // opaque toolchain reference
	Configuration Configuration `json:"configuration"`
}

// TopLevelTarget is a target the user directly asked to build
type TopLevelTarget struct {
	Label         string        `json:"label"`
	RuleKind      string        `json:"ruleKind"`
	Configuration Configuration `json:"configuration"`
}

// CompileAction is a resolved compiler invocation for exactly one target
// (and, for per-file languages, one file)
type CompileAction struct {
	TargetLabel string   `json:"targetLabel"`
	Mnemonic    string   `json:"mnemonic"` // configuration mnemonic it was compiled under
	Arguments   []string `json:"arguments"`
}

// ChangeKind describes what happened to a file
type ChangeKind int

const (
	FileCreated ChangeKind = iota
	FileDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case FileCreated:
		return "created"
	case FileDeleted:
		return "deleted"
	}
	return "unknown"
}

// InvalidatedTarget is the event emitted when a file change affects a
// target's source list. Produced only by the invalidation engine.
type InvalidatedTarget struct {
	ID   TargetID   `json:"id"`
	URI  string     `json:"uri"`
	Kind ChangeKind `json:"kind"`
}

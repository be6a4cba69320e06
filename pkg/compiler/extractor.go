// Package compiler locates the compile action matching a target, file and
// configuration, and rewrites its raw argument list into one an IDE
// compiler front end will accept for semantic indexing.
package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/skdevtools/bazel-bsp/pkg/actiongraph"
	"github.com/skdevtools/bazel-bsp/pkg/bazel/bazelpb"
	"github.com/skdevtools/bazel-bsp/pkg/model"
)

// Resolution misses, reported as named conditions so callers can
// distinguish user error (a stale file) from a defect.
var (
	ErrTargetNotFound          = errors.New("target not found in action graph")
	ErrNoMatchingConfiguration = errors.New("no compile action matches configuration")
	ErrAmbiguousConfiguration  = errors.New("multiple compile actions match configuration")
	ErrNoActionForFile         = errors.New("no compile action for file")
)

// Request identifies the compile action to extract
type Request struct {
	TargetLabel string

	// ParentConfiguration is the resolved configuration of the top-level
	// target this dependency is reached from.
	ParentConfiguration model.Configuration

	// CompileAtTopLevel matches the raw mnemonic instead of the
	// normalized one; the default library-level mode tolerates transition
	// suffixes.
	CompileAtTopLevel bool

	// File restricts the lookup to the action compiling this
	// workspace-relative path. Empty means whole-module extraction.
	File string
}

// Extract finds the compile action for the request and returns its raw
// argument list.
func Extract(idx *actiongraph.Index, req Request) (model.CompileAction, error) {
	t, ok := idx.Target(req.TargetLabel)
	if !ok {
		return model.CompileAction{}, fmt.Errorf("%w: %s", ErrTargetNotFound, req.TargetLabel)
	}

	var matches []match
	for _, a := range idx.Actions(t.ID) {
		cfg, ok := idx.Configuration(a.ConfigurationID)
		if !ok {
			continue
		}
		if req.CompileAtTopLevel {
			if cfg.Mnemonic != req.ParentConfiguration.Mnemonic {
				continue
			}
		} else if !cfg.SameEffectiveBuild(req.ParentConfiguration) {
			continue
		}
		matches = append(matches, match{action: a, mnemonic: cfg.Mnemonic})
	}
	if len(matches) == 0 {
		return model.CompileAction{}, fmt.Errorf("%w: %s under %s",
			ErrNoMatchingConfiguration, req.TargetLabel, req.ParentConfiguration.NormalizedMnemonic)
	}

	if req.File != "" {
		matches = filterByFile(idx, matches, req.File)
		if len(matches) == 0 {
			return model.CompileAction{}, fmt.Errorf("%w: %s in %s",
				ErrNoActionForFile, req.File, req.TargetLabel)
		}
	} else if len(matches) > 1 {
		// The caller is building multiple variants of the same top-level
		// target; picking one silently would index against the wrong SDK.
		return model.CompileAction{}, fmt.Errorf("%w: %s", ErrAmbiguousConfiguration, req.TargetLabel)
	}

	chosen := matches[0]
	return model.CompileAction{
		TargetLabel: req.TargetLabel,
		Mnemonic:    chosen.mnemonic,
		Arguments:   append([]string(nil), chosen.action.Arguments...),
	}, nil
}

// match pairs an action with the raw mnemonic of its configuration, so the
// reported mnemonic always belongs to the action whose arguments are
// returned.
type match struct {
	action   bazelpb.Action
	mnemonic string
}

// filterByFile keeps actions whose inputs or outputs mention the given
// relative path.
func filterByFile(idx *actiongraph.Index, matches []match, file string) []match {
	var out []match
	for _, m := range matches {
		if mentionsFile(m.action.Arguments, file) ||
			anyPathMatches(idx.Outputs(m.action), file) ||
			anyPathMatches(idx.Inputs(m.action), file) {
			out = append(out, m)
		}
	}
	return out
}

func mentionsFile(args []string, file string) bool {
	for _, arg := range args {
		if pathMatches(arg, file) {
			return true
		}
	}
	return false
}

func anyPathMatches(paths []string, file string) bool {
	for _, p := range paths {
		if pathMatches(p, file) {
			return true
		}
	}
	return false
}

// pathMatches compares on whole path segments so "b/foo.m" never matches
// "a/sub/foo.m".
func pathMatches(candidate, file string) bool {
	return candidate == file || strings.HasSuffix(candidate, "/"+file)
}

package bazel

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Configuration errors: malformed query inputs, reported before any bazel
// invocation.
var (
	ErrNoTargets   = errors.New("no top-level target patterns configured")
	ErrNoRuleKinds = errors.New("no rule kinds configured")
	ErrNoMnemonics = errors.New("no action mnemonics configured")
)

// NeutralDependencyKinds are language-neutral helper kinds unioned into
// every dependency filter: aliases must be chased to their real target and
// source files carry the file-to-target mapping.
var NeutralDependencyKinds = []string{"alias", "source file"}

// ConfiguredQuerySpec describes one configured-graph query: which top-level
// targets to select, which rule kinds count as top-level, which transitive
// dependency kinds to keep, and two independent exclusion sets.
type ConfiguredQuerySpec struct {
	TopLevelTargets      []string
	TopLevelRuleKinds    []string
	DependencyRuleKinds  []string
	Exclusions           []string // excluded top-level labels
	DependencyExclusions []string // excluded dependency labels
}

// Expr builds the combined cquery expression: the filtered top-level set
// unioned with its transitive dependencies filtered by the dependency
// kinds.
func (s ConfiguredQuerySpec) Expr() (string, error) {
	if len(s.TopLevelTargets) == 0 {
		return "", ErrNoTargets
	}
	if len(s.TopLevelRuleKinds) == 0 || len(s.DependencyRuleKinds) == 0 {
		return "", ErrNoRuleKinds
	}

	top := fmt.Sprintf("kind(%q, set(%s))", kindAlternation(s.TopLevelRuleKinds), strings.Join(s.TopLevelTargets, " "))
	if len(s.Exclusions) > 0 {
		top = fmt.Sprintf("(%s - set(%s))", top, strings.Join(s.Exclusions, " "))
	}

	depKinds := append(append([]string{}, s.DependencyRuleKinds...), NeutralDependencyKinds...)
	dep := fmt.Sprintf("kind(%q, deps(%s))", kindAlternation(depKinds), top)
	if len(s.DependencyExclusions) > 0 {
		dep = fmt.Sprintf("(%s - set(%s))", dep, strings.Join(s.DependencyExclusions, " "))
	}

	return top + " + " + dep, nil
}

// CacheKey is the semantic identity of the query: the exact sorted rule
// kind sets and exclusion sets. Two specs with the same key return the
// same cached bytes.
func (s ConfiguredQuerySpec) CacheKey() string {
	return strings.Join([]string{
		"cquery",
		sortedKey(s.TopLevelTargets),
		sortedKey(s.TopLevelRuleKinds),
		sortedKey(s.DependencyRuleKinds),
		sortedKey(s.Exclusions),
		sortedKey(s.DependencyExclusions),
	}, "\x00")
}

// ActionQuerySpec describes one action-graph query: compile actions with
// the given mnemonics in the transitive closure of the top-level targets.
type ActionQuerySpec struct {
	TopLevelTargets []string
	Mnemonics       []string
}

// Expr builds the aquery expression
func (s ActionQuerySpec) Expr() (string, error) {
	if len(s.TopLevelTargets) == 0 {
		return "", ErrNoTargets
	}
	if len(s.Mnemonics) == 0 {
		return "", ErrNoMnemonics
	}
	return fmt.Sprintf("mnemonic(%q, deps(set(%s)))",
		kindAlternation(s.Mnemonics), strings.Join(s.TopLevelTargets, " ")), nil
}

// CacheKey mirrors ConfiguredQuerySpec.CacheKey for action queries
func (s ActionQuerySpec) CacheKey() string {
	return strings.Join([]string{
		"aquery",
		sortedKey(s.TopLevelTargets),
		sortedKey(s.Mnemonics),
	}, "\x00")
}

// kindAlternation anchors the kind filter so "objc_library" never matches
// "objc_library_helper".
func kindAlternation(kinds []string) string {
	escaped := make([]string, len(kinds))
	for i, k := range kinds {
		escaped[i] = strings.ReplaceAll(k, " ", "\\ ")
	}
	return "^(" + strings.Join(escaped, "|") + ")$"
}

func sortedKey(values []string) string {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

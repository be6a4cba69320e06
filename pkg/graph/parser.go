// Package graph turns configured-query output into the fully cross-indexed
// project graph: targets, sources, dependencies, per-configuration
// groupings and alias/test-bundle resolution.
package graph

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bazelbuild/bazel-gazelle/label"

	"github.com/skdevtools/bazel-bsp/pkg/bazel/bazelpb"
	"github.com/skdevtools/bazel-bsp/pkg/logging"
	"github.com/skdevtools/bazel-bsp/pkg/model"
)

// TestBundleSuffix is the reserved suffix bazel's apple test rules append
// to the synthetic bundle target they insert between a test and its real
// dependencies.
const TestBundleSuffix = ".__internal__.__test_bundle"

// ParseOptions selects which rule kinds count as top-level targets and
// which transitive dependency kinds are kept.
type ParseOptions struct {
	TopLevelRuleKinds   []string
	DependencyRuleKinds []string
}

// Parser builds project graphs from configured-query bytes
type Parser struct {
	opts ParseOptions

	topKinds map[string]bool
	depKinds map[string]bool
}

// NewParser creates a parser for the given rule-kind selection
func NewParser(opts ParseOptions) *Parser {
	p := &Parser{
		opts:     opts,
		topKinds: make(map[string]bool),
		depKinds: make(map[string]bool),
	}
	for _, k := range opts.TopLevelRuleKinds {
		p.topKinds[k] = true
	}
	for _, k := range opts.DependencyRuleKinds {
		p.depKinds[k] = true
	}
	return p
}

// buckets is the single-pass classification of query result entries
type buckets struct {
	configs   map[uint32]model.Configuration
	topLevel  []topLevelEntry
	bundles   []*bazelpb.Rule
	aliases   map[string]string // alias label -> "actual" label
	deps      []depEntry
	sourceURI map[string]string // source label -> workspace-relative URI
}

type topLevelEntry struct {
	rule     *bazelpb.Rule
	configID uint32
}

type depEntry struct {
	rule     *bazelpb.Rule
	configID uint32
}

// Parse decodes and cross-indexes one configured-query result. Errors are
// structural only; tolerable anomalies (duplicate source labels, dangling
// aliases, configuration mismatches) degrade gracefully with a log line.
func (p *Parser) Parse(data []byte) (*model.ProjectGraph, error) {
	res, err := bazelpb.DecodeCqueryStream(data)
	if err != nil {
		return nil, fmt.Errorf("configured query: %w", err)
	}
	return p.build(res)
}

func (p *Parser) build(res *bazelpb.CqueryResult) (*model.ProjectGraph, error) {
	b, err := p.bucketize(res)
	if err != nil {
		return nil, err
	}

	g := model.NewProjectGraph()

	// Top-level targets and the configuration -> top-level-labels map.
	// Test rules do not register their outer label directly: the synthetic
	// bundle found below carries the dependency edges that matter, so the
	// outer label is registered when the bundle is unwrapped.
	for _, top := range b.topLevel {
		if isTestRuleKind(top.rule.RuleClass) {
			continue
		}
		cfg, ok := b.configs[top.configID]
		if !ok {
			logging.Warn("top-level target with unknown configuration", "label", top.rule.Name)
			continue
		}
		g.TopLevel = append(g.TopLevel, model.TopLevelTarget{
			Label:         top.rule.Name,
			RuleKind:      top.rule.RuleClass,
			Configuration: cfg,
		})
		g.TopLevelByConfig[cfg.Mnemonic] = append(g.TopLevelByConfig[cfg.Mnemonic], top.rule.Name)
	}
	for _, bundle := range b.bundles {
		outer := strings.TrimSuffix(bundle.Name, TestBundleSuffix)
		top, ok := p.findTopLevel(b, outer)
		if !ok {
			logging.Warn("test bundle without matching test target", "bundle", bundle.Name)
			continue
		}
		cfg, ok := b.configs[top.configID]
		if !ok {
			logging.Warn("test bundle with unknown configuration", "bundle", bundle.Name)
			continue
		}
		g.TopLevel = append(g.TopLevel, model.TopLevelTarget{
			Label:         outer,
			RuleKind:      top.rule.RuleClass,
			Configuration: cfg,
		})
		g.TopLevelByConfig[cfg.Mnemonic] = append(g.TopLevelByConfig[cfg.Mnemonic], outer)

		// The bundle has no sources of its own: treat it as an alias to
		// its first real dependency, and route the outer test label the
		// same way.
		deps := bundle.StringListAttr("deps")
		if len(deps) > 0 {
			b.aliases[bundle.Name] = deps[0]
			b.aliases[outer] = deps[0]
		}
	}

	// Aliases resolve transitively to a fixed point. A cycle or a chain
	// that never terminates drops the entry rather than aborting.
	g.Aliases = resolveAliases(b.aliases)

	// Dependency targets are only kept when built under a configuration
	// some requested top-level target actually uses; everything else is an
	// incidental target sharing the invocation.
	targetsByLabel := make(map[string][]*model.Target)
	depRules := make(map[model.TargetID]*bazelpb.Rule)
	for _, dep := range b.deps {
		cfg, ok := b.configs[dep.configID]
		if !ok || len(g.TopLevelByConfig[cfg.Mnemonic]) == 0 {
			logging.Debug("dropping target outside requested configurations", "label", dep.rule.Name)
			continue
		}

		t := p.newTarget(dep.rule, cfg)
		if _, dup := g.Targets[t.ID]; dup {
			continue
		}
		g.Targets[t.ID] = t
		g.LabelsByID[t.ID] = t.Label
		targetsByLabel[t.Label] = append(targetsByLabel[t.Label], t)
		depRules[t.ID] = dep.rule

		items := p.sourceItems(dep.rule, t, b.sourceURI)
		g.SourcesByTarget[t.ID] = items
		for _, item := range items {
			g.TargetsBySource[item.URI] = append(g.TargetsBySource[item.URI], t.ID)
		}
	}

	// Dependency edges: declared deps plus implementation-only deps,
	// resolved through the alias map and disambiguated by configuration.
	for id, rule := range depRules {
		t := g.Targets[id]
		declared := append(rule.StringListAttr("deps"), rule.StringListAttr("implementation_deps")...)
		for _, depLabel := range declared {
			resolved := g.ResolveAlias(depLabel)
			candidates := targetsByLabel[resolved]
			if len(candidates) == 0 {
				continue // filtered out or not a tracked kind
			}
			chosen := pickByConfiguration(candidates, t.Configuration)
			if chosen == nil {
				chosen = candidates[0]
				logging.Warn("no configuration match for dependency, using first available",
					"target", t.Label,
					"dep", resolved,
					"wanted", t.Configuration.NormalizedMnemonic,
					"chosen", chosen.Configuration.NormalizedMnemonic)
			}
			t.Deps = append(t.Deps, chosen.ID)
		}
	}

	// Test-file index: outer test label -> source URIs of the resolved
	// bundle target.
	for aliasLabel := range g.Aliases {
		if !strings.HasSuffix(aliasLabel, TestBundleSuffix) {
			continue
		}
		outer := strings.TrimSuffix(aliasLabel, TestBundleSuffix)
		terminal := g.ResolveAlias(aliasLabel)
		for _, t := range targetsByLabel[terminal] {
			for _, item := range g.SourcesByTarget[t.ID] {
				g.TestSourcesByLabel[outer] = append(g.TestSourcesByLabel[outer], item.URI)
			}
		}
	}

	diagnoseCycles(g)
	return g, nil
}

// bucketize is the single classification pass over all result entries
func (p *Parser) bucketize(res *bazelpb.CqueryResult) (*buckets, error) {
	b := &buckets{
		configs:   make(map[uint32]model.Configuration),
		aliases:   make(map[string]string),
		sourceURI: make(map[string]string),
	}

	for _, c := range res.Configurations {
		if c.IsTool {
			// Exec configurations for build-time tools; nothing indexed
			// lives under them.
			continue
		}
		cfg, err := model.ParseConfiguration(c.Checksum, c.Mnemonic)
		if err != nil {
			logging.Warn("skipping configuration without device platform", "mnemonic", c.Mnemonic, "error", err)
			continue
		}
		b.configs[c.ID] = cfg
	}

	for _, ct := range res.Results {
		t := ct.Target
		if t == nil {
			return nil, fmt.Errorf("configured target without target payload")
		}
		switch t.Type {
		case bazelpb.TargetRule:
			rule := t.Rule
			if rule == nil {
				return nil, fmt.Errorf("rule entry without rule payload")
			}
			switch {
			case p.topKinds[rule.RuleClass]:
				b.topLevel = append(b.topLevel, topLevelEntry{rule: rule, configID: ct.ConfigurationID})
			case strings.HasSuffix(rule.Name, TestBundleSuffix):
				b.bundles = append(b.bundles, rule)
			case rule.RuleClass == "alias":
				if actual := rule.StringAttr("actual"); actual != "" {
					b.aliases[rule.Name] = actual
				} else {
					logging.Warn("alias without actual attribute", "label", rule.Name)
				}
			case p.depKinds[rule.RuleClass]:
				b.deps = append(b.deps, depEntry{rule: rule, configID: ct.ConfigurationID})
			default:
				logging.Debug("dropping rule of unrequested kind", "label", rule.Name, "kind", rule.RuleClass)
			}
		case bazelpb.TargetSourceFile:
			sf := t.SourceFile
			if sf == nil {
				return nil, fmt.Errorf("source file entry without payload")
			}
			if _, dup := b.sourceURI[sf.Name]; dup {
				logging.Warn("duplicate source label, keeping first occurrence", "label", sf.Name)
				continue
			}
			uri, err := labelToPath(sf.Name)
			if err != nil {
				logging.Warn("unparseable source label", "label", sf.Name, "error", err)
				continue
			}
			b.sourceURI[sf.Name] = uri
		default:
			return nil, fmt.Errorf("unexpected result entry type %d for %s", t.Type, entryName(t))
		}
	}
	return b, nil
}

func (p *Parser) findTopLevel(b *buckets, outerLabel string) (topLevelEntry, bool) {
	for _, top := range b.topLevel {
		if top.rule.Name == outerLabel {
			return top, true
		}
	}
	return topLevelEntry{}, false
}

func (p *Parser) newTarget(rule *bazelpb.Rule, cfg model.Configuration) *model.Target {
	lang := languageForRuleClass(rule.RuleClass)
	return &model.Target{
		ID:            model.MakeTargetID(rule.Name, cfg.NormalizedMnemonic),
		Label:         rule.Name,
		Language:      lang,
		IsTest:        rule.BoolAttr("testonly") || strings.HasSuffix(rule.RuleClass, "_test"),
		IsLibrary:     strings.HasSuffix(rule.RuleClass, "_library"),
		IsExternal:    strings.HasPrefix(rule.Name, "@"),
		Toolchain:     rule.StringAttr("toolchain"),
		Configuration: cfg,
	}
}

// sourceItems builds the Source Items for one dependency rule from its
// declared source and header attributes, looked up against the pre-indexed
// source-label map. A label that did not survive filtering is omitted,
// never fatal.
func (p *Parser) sourceItems(rule *bazelpb.Rule, t *model.Target, sourceURI map[string]string) []model.SourceItem {
	var items []model.SourceItem
	add := func(srcLabel string, kind model.SourceKind) {
		uri, ok := sourceURI[srcLabel]
		if !ok {
			return
		}
		lang := model.LanguageForPath(uri)
		if lang == model.LanguageUnknown {
			lang = t.Language
		}
		item := model.SourceItem{URI: uri, Kind: kind, Language: lang}
		if strings.HasPrefix(srcLabel, "@") {
			// External sources are staged under the output base; give the
			// editor the location it will see in compiler output.
			item.ShadowURI = filepath.ToSlash(filepath.Join("external", strings.TrimPrefix(uri, "external/")))
		}
		items = append(items, item)
	}
	for _, src := range rule.StringListAttr("srcs") {
		kind := model.SourceKindSource
		if model.IsHeaderPath(src) {
			kind = model.SourceKindHeader
		}
		add(src, kind)
	}
	for _, hdr := range rule.StringListAttr("hdrs") {
		add(hdr, model.SourceKindHeader)
	}
	return items
}

// resolveAliases follows every alias chain to a fixed point. Cycles and
// chains longer than the alias count are dropped.
func resolveAliases(aliases map[string]string) map[string]string {
	resolved := make(map[string]string, len(aliases))
	for start := range aliases {
		terminal := start
		visited := make(map[string]bool)
		ok := true
		for {
			next, isAlias := aliases[terminal]
			if !isAlias {
				break
			}
			if visited[terminal] {
				ok = false
				break
			}
			visited[terminal] = true
			terminal = next
		}
		if !ok {
			logging.Warn("alias chain does not terminate, dropping", "label", start)
			continue
		}
		if terminal != start {
			resolved[start] = terminal
		}
	}
	return resolved
}

func pickByConfiguration(candidates []*model.Target, want model.Configuration) *model.Target {
	for _, c := range candidates {
		if c.Configuration.SameEffectiveBuild(want) {
			return c
		}
	}
	return nil
}

// Test rules reach the graph through their synthetic bundle target, which
// carries the dependency edges; the outer rule on its own has none.
func isTestRuleKind(ruleClass string) bool {
	return strings.HasSuffix(ruleClass, "_test")
}

func languageForRuleClass(ruleClass string) model.Language {
	switch {
	case strings.HasPrefix(ruleClass, "swift_"):
		return model.LanguageSwift
	case strings.HasPrefix(ruleClass, "objc_"):
		return model.LanguageObjC
	case strings.HasPrefix(ruleClass, "cc_"):
		return model.LanguageCpp
	default:
		return model.LanguageUnknown
	}
}

// labelToPath converts "//pkg:file.swift" or "@repo//pkg:file.h" to a
// workspace-relative (or external/) slash path.
func labelToPath(s string) (string, error) {
	l, err := label.Parse(s)
	if err != nil {
		return "", err
	}
	p := filepath.ToSlash(filepath.Join(l.Pkg, l.Name))
	if l.Repo != "" {
		p = filepath.ToSlash(filepath.Join("external", l.Repo, p))
	}
	return p, nil
}

func entryName(t *bazelpb.Target) string {
	switch {
	case t.Rule != nil:
		return t.Rule.Name
	case t.SourceFile != nil:
		return t.SourceFile.Name
	case t.GeneratedFile != nil:
		return t.GeneratedFile.Name
	}
	return "<unknown>"
}

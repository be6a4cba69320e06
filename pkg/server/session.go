// Package server owns the session: the query cache, the published project
// graph and the operations the protocol layer dispatches into.
package server

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/skdevtools/bazel-bsp/pkg/actiongraph"
	"github.com/skdevtools/bazel-bsp/pkg/bazel"
	"github.com/skdevtools/bazel-bsp/pkg/compiler"
	"github.com/skdevtools/bazel-bsp/pkg/config"
	"github.com/skdevtools/bazel-bsp/pkg/graph"
	"github.com/skdevtools/bazel-bsp/pkg/invalidation"
	"github.com/skdevtools/bazel-bsp/pkg/logging"
	"github.com/skdevtools/bazel-bsp/pkg/model"
	"github.com/skdevtools/bazel-bsp/pkg/protocol"
	"github.com/skdevtools/bazel-bsp/pkg/pubsub"
)

// ErrProjectNotLoaded is returned for graph reads before the first
// successful LoadProject.
var ErrProjectNotLoaded = errors.New("project not loaded")

// Session is the long-lived server state for one workspace. Graph reads
// are concurrent; graph replacement (full reload or incremental patch)
// swaps the published value under the write lock, so readers always see a
// complete graph.
type Session struct {
	cfg       *config.Config
	exec      bazel.Executor
	cache     *bazel.QueryCache
	parser    *graph.Parser
	publisher pubsub.Publisher // nil when the debug server is off

	mu         sync.RWMutex
	graph      *model.ProjectGraph
	actions    *actiongraph.Index
	byLabel    map[string][]model.TargetID
	execRoot   string
	outputBase string
	state      string

	argMu    sync.Mutex
	argCache map[string]protocol.CompileArguments
}

// NewSession creates a session for the configured workspace
func NewSession(cfg *config.Config, exec bazel.Executor, publisher pubsub.Publisher) *Session {
	return &Session{
		cfg:       cfg,
		exec:      exec,
		cache:     bazel.NewQueryCache(exec, cfg.Workspace),
		parser: graph.NewParser(graph.ParseOptions{
			TopLevelRuleKinds:   cfg.TopLevelRuleKinds,
			DependencyRuleKinds: cfg.DependencyRuleKinds,
		}),
		publisher: publisher,
		state:     "idle",
		argCache:  make(map[string]protocol.CompileArguments),
	}
}

// Cache exposes the query cache for the debug endpoints
func (s *Session) Cache() *bazel.QueryCache {
	return s.cache
}

func (s *Session) configuredSpec() bazel.ConfiguredQuerySpec {
	return bazel.ConfiguredQuerySpec{
		TopLevelTargets:      s.cfg.Targets,
		TopLevelRuleKinds:    s.cfg.TopLevelRuleKinds,
		DependencyRuleKinds:  s.cfg.DependencyRuleKinds,
		Exclusions:           s.cfg.Exclusions,
		DependencyExclusions: s.cfg.DependencyExclusions,
	}
}

func (s *Session) actionSpec() bazel.ActionQuerySpec {
	return bazel.ActionQuerySpec{
		TopLevelTargets: s.cfg.Targets,
		Mnemonics:       s.cfg.Mnemonics,
	}
}

// LoadProject runs both queries, parses them and publishes the new graph.
// It is also the full-reload path after a BUILD file change.
func (s *Session) LoadProject(ctx context.Context) error {
	s.publishStatus("querying", "running bazel queries")

	execRoot, err := s.bazelInfo(ctx, "execution_root")
	if err != nil {
		return s.loadFailed(err)
	}
	outputBase, err := s.bazelInfo(ctx, "output_base")
	if err != nil {
		return s.loadFailed(err)
	}

	cqueryOut, err := s.cache.ConfiguredQuery(ctx, s.configuredSpec())
	if err != nil {
		return s.loadFailed(err)
	}
	aqueryOut, err := s.cache.ActionQuery(ctx, s.actionSpec())
	if err != nil {
		return s.loadFailed(err)
	}

	s.publishStatus("parsing", "building project graph")

	pg, err := s.parser.Parse(cqueryOut)
	if err != nil {
		return s.loadFailed(err)
	}
	idx, err := actiongraph.Parse(aqueryOut)
	if err != nil {
		return s.loadFailed(err)
	}

	s.publishGraph(pg, idx, execRoot, outputBase)

	logging.Info("project loaded",
		"targets", len(pg.Targets),
		"topLevel", len(pg.TopLevel),
		"sources", len(pg.TargetsBySource))
	return nil
}

// Reload drops every cached query result and loads from scratch
func (s *Session) Reload(ctx context.Context) error {
	logging.Info("reloading project graph")
	s.cache.Clear()
	return s.LoadProject(ctx)
}

func (s *Session) publishGraph(pg *model.ProjectGraph, idx *actiongraph.Index, execRoot, outputBase string) {
	byLabel := make(map[string][]model.TargetID)
	for _, id := range pg.SortedTargetIDs() {
		t := pg.Targets[id]
		byLabel[t.Label] = append(byLabel[t.Label], id)
	}

	s.mu.Lock()
	s.graph = pg
	s.actions = idx
	s.byLabel = byLabel
	s.execRoot = execRoot
	s.outputBase = outputBase
	s.state = "ready"
	s.mu.Unlock()

	s.argMu.Lock()
	s.argCache = make(map[string]protocol.CompileArguments)
	s.argMu.Unlock()

	s.publish(pubsub.TopicGraph, "graph", pubsub.GraphSummary{
		Targets:  len(pg.Targets),
		TopLevel: len(pg.TopLevel),
		Sources:  len(pg.TargetsBySource),
	})
	s.publishStatus("ready", "")
}

func (s *Session) loadFailed(err error) error {
	s.mu.Lock()
	s.state = "failed"
	s.mu.Unlock()
	s.publish(pubsub.TopicLoadStatus, "status", pubsub.LoadStatus{State: "failed", Message: err.Error()})
	return err
}

func (s *Session) bazelInfo(ctx context.Context, key string) (string, error) {
	out, err := s.exec.Run(ctx, s.cfg.Workspace, "info", key)
	if err != nil {
		return "", fmt.Errorf("bazel info %s: %w", key, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Targets lists all dependency targets of the current graph
func (s *Session) Targets(ctx context.Context) ([]protocol.BuildTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.graph == nil {
		return nil, ErrProjectNotLoaded
	}

	out := make([]protocol.BuildTarget, 0, len(s.graph.Targets))
	for _, id := range s.graph.SortedTargetIDs() {
		out = append(out, protocol.DescribeTarget(s.graph.Targets[id]))
	}
	return out, nil
}

// SourcesForTarget returns the source descriptors for a target label,
// unioned across its configuration variants.
func (s *Session) SourcesForTarget(ctx context.Context, target string) ([]protocol.SourceDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.graph == nil {
		return nil, ErrProjectNotLoaded
	}

	ids := s.byLabel[s.graph.ResolveAlias(target)]
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %s", compiler.ErrTargetNotFound, target)
	}

	var out []protocol.SourceDescriptor
	seen := make(map[string]bool)
	for _, id := range ids {
		for _, item := range s.graph.SourcesByTarget[id] {
			if seen[item.URI] {
				continue
			}
			seen[item.URI] = true
			out = append(out, protocol.DescribeSource(item))
		}
	}
	return out, nil
}

// TargetsForFile returns the labels of targets owning the given source URI
func (s *Session) TargetsForFile(ctx context.Context, uri string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.graph == nil {
		return nil, ErrProjectNotLoaded
	}

	var labels []string
	seen := make(map[string]bool)
	for _, id := range s.graph.TargetsForSource(uri) {
		label := s.graph.LabelsByID[id]
		if !seen[label] {
			seen[label] = true
			labels = append(labels, label)
		}
	}
	return labels, nil
}

// CompileArguments resolves and transforms the compile command for one
// target (and, for per-file languages, one file). Results are memoized per
// (target, file) until the graph changes.
func (s *Session) CompileArguments(ctx context.Context, target, file string) (protocol.CompileArguments, error) {
	key := target + "\x00" + file
	s.argMu.Lock()
	if cached, ok := s.argCache[key]; ok {
		s.argMu.Unlock()
		return cached, nil
	}
	s.argMu.Unlock()

	s.mu.RLock()
	pg, idx := s.graph, s.actions
	paths := compiler.Paths{
		DeveloperDir:   s.cfg.DeveloperDir,
		WorkspaceRoot:  s.cfg.Workspace,
		OutputBase:     s.outputBase,
		ExecRoot:       s.execRoot,
		IndexStorePath: s.cfg.IndexStorePath,
	}
	s.mu.RUnlock()
	if pg == nil {
		return protocol.CompileArguments{}, ErrProjectNotLoaded
	}

	resolved := pg.ResolveAlias(target)
	t, err := s.lookupTarget(pg, resolved)
	if err != nil {
		return protocol.CompileArguments{}, err
	}

	req := compiler.Request{
		TargetLabel:         resolved,
		ParentConfiguration: t.Configuration,
		CompileAtTopLevel:   s.cfg.CompileAtTopLevel,
	}
	if !t.Language.WholeModule() {
		req.File = file
	}

	action, err := compiler.Extract(idx, req)
	if err != nil {
		return protocol.CompileArguments{}, err
	}

	paths.SDKRoot = sdkRoot(s.cfg.DeveloperDir, t.Configuration.SDK)
	tr := compiler.NewTransformer(paths)

	var args []string
	if t.Language.WholeModule() {
		args = tr.Transform(action.Arguments, t.Language)
	} else {
		item, err := s.lookupSource(pg, t, file)
		if err != nil {
			return protocol.CompileArguments{}, err
		}
		args = tr.TransformForFile(action.Arguments, t.Language, item)
	}

	result := protocol.CompileArguments{Target: target, File: file, Arguments: args}
	s.argMu.Lock()
	s.argCache[key] = result
	s.argMu.Unlock()
	return result, nil
}

func (s *Session) lookupTarget(pg *model.ProjectGraph, label string) (*model.Target, error) {
	s.mu.RLock()
	ids := s.byLabel[label]
	s.mu.RUnlock()
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %s", compiler.ErrTargetNotFound, label)
	}
	if len(ids) > 1 {
		// Target IDs are keyed by normalized configuration, so a second ID
		// means a second effective build of the same label. Picking one
		// would index against the wrong SDK.
		return nil, fmt.Errorf("%w: %s built under %s and %s",
			compiler.ErrAmbiguousConfiguration, label,
			pg.Targets[ids[0]].Configuration.NormalizedMnemonic,
			pg.Targets[ids[1]].Configuration.NormalizedMnemonic)
	}
	return pg.Targets[ids[0]], nil
}

func (s *Session) lookupSource(pg *model.ProjectGraph, t *model.Target, file string) (model.SourceItem, error) {
	for _, item := range pg.SourcesByTarget[t.ID] {
		if item.URI == file {
			return item, nil
		}
	}
	return model.SourceItem{}, fmt.Errorf("%w: %s in %s", compiler.ErrNoActionForFile, file, t.Label)
}

// FilesChanged applies a files-changed notification. BUILD file changes
// force a full reload; source creations and deletions are patched into the
// graph incrementally.
func (s *Session) FilesChanged(ctx context.Context, changes []protocol.FileChange) error {
	var created, deleted []string
	for _, ch := range changes {
		if isBuildFile(ch.URI) {
			return s.Reload(ctx)
		}
		switch ch.Kind {
		case "created":
			created = append(created, ch.URI)
		case "deleted":
			deleted = append(deleted, ch.URI)
		}
	}
	return s.ApplySourceChanges(ctx, created, deleted)
}

// ApplySourceChanges patches the graph for created and deleted source
// files and publishes the invalidated targets. Irrelevant changes are a
// no-op, never an error.
func (s *Session) ApplySourceChanges(ctx context.Context, created, deleted []string) error {
	if len(created) == 0 && len(deleted) == 0 {
		return nil
	}

	s.mu.RLock()
	pg := s.graph
	s.mu.RUnlock()
	if pg == nil {
		return ErrProjectNotLoaded
	}

	var additions map[model.TargetID][]model.SourceItem
	if len(created) > 0 {
		// New files can join targets through globs without any BUILD edit,
		// so the cached query result is stale by definition.
		s.cache.Clear()
		out, err := s.cache.ConfiguredQuery(ctx, s.configuredSpec())
		if err != nil {
			return err
		}
		additions, err = s.parser.ParseSourceAdditions(out, pg)
		if err != nil {
			return err
		}
	}

	next, events, changed := invalidation.ApplyChanges(pg, deleted, additions)
	if !changed {
		logging.Debug("file changes did not affect the graph", "created", len(created), "deleted", len(deleted))
		return nil
	}

	s.mu.Lock()
	s.graph = next
	s.mu.Unlock()

	s.argMu.Lock()
	s.argCache = make(map[string]protocol.CompileArguments)
	s.argMu.Unlock()

	logging.Info("graph patched", "invalidated", len(events))
	s.publish(pubsub.TopicInvalidated, "targets_changed", pubsub.InvalidationBatch{Targets: events})
	return nil
}

// Handlers wires the session's operations into the protocol dispatch table
func (s *Session) Handlers() *protocol.HandlerTable {
	return &protocol.HandlerTable{
		LoadProject:      s.LoadProject,
		ListTargets:      s.Targets,
		Sources:          s.SourcesForTarget,
		TargetsForFile:   s.TargetsForFile,
		CompileArguments: s.CompileArguments,
		FilesChanged:     s.FilesChanged,
	}
}

// Status is the snapshot served by the debug endpoints
type Status struct {
	State         string `json:"state"`
	Targets       int    `json:"targets"`
	TopLevel      int    `json:"topLevel"`
	Sources       int    `json:"sources"`
	CachedQueries int    `json:"cachedQueries"`
}

// CurrentStatus reports the session state for debug clients
func (s *Session) CurrentStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{State: s.state, CachedQueries: s.cache.Len()}
	if s.graph != nil {
		st.Targets = len(s.graph.Targets)
		st.TopLevel = len(s.graph.TopLevel)
		st.Sources = len(s.graph.TargetsBySource)
	}
	return st
}

// Graph returns the currently published project graph
func (s *Session) Graph() *model.ProjectGraph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph
}

func (s *Session) publishStatus(state, message string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.publish(pubsub.TopicLoadStatus, "status", pubsub.LoadStatus{State: state, Message: message})
}

func (s *Session) publish(topic, eventType string, data interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(topic, eventType, data); err != nil {
		logging.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

func isBuildFile(uri string) bool {
	name := filepath.Base(uri)
	return name == "BUILD" || name == "BUILD.bazel" || name == "MODULE.bazel" ||
		name == "WORKSPACE" || strings.HasSuffix(name, ".bzl")
}

// sdkPlatformDir maps an SDK name to its platform directory inside the
// developer dir.
var sdkPlatformDir = map[string]string{
	"iphoneos":         "iPhoneOS",
	"iphonesimulator":  "iPhoneSimulator",
	"macosx":           "MacOSX",
	"watchos":          "WatchOS",
	"watchsimulator":   "WatchSimulator",
	"appletvos":        "AppleTVOS",
	"appletvsimulator": "AppleTVSimulator",
	"xros":             "XROS",
	"xrsimulator":      "XRSimulator",
}

func sdkRoot(developerDir, sdk string) string {
	platform, ok := sdkPlatformDir[sdk]
	if !ok || developerDir == "" {
		return ""
	}
	return filepath.Join(developerDir, "Platforms", platform+".platform",
		"Developer", "SDKs", platform+".sdk")
}

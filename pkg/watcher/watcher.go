package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/skdevtools/bazel-bsp/pkg/finder"
	"github.com/skdevtools/bazel-bsp/pkg/logging"
	"github.com/skdevtools/bazel-bsp/pkg/model"
)

// ChangeType classifies a batch of file system changes
type ChangeType int

const (
	// ChangeTypeBuildFile means build definitions changed; the graph must be
	// reloaded from a fresh configured query.
	ChangeTypeBuildFile ChangeType = iota
	// ChangeTypeSourceFile means source membership may have changed; the
	// graph can be patched incrementally.
	ChangeTypeSourceFile
)

// ChangeEvent is a batch of file system changes of one type
type ChangeEvent struct {
	Type      ChangeType
	Created   []string
	Deleted   []string
	Modified  []string
	Timestamp time.Time
}

// FileWatcher watches a bazel workspace for BUILD and source file changes
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	workspace string
	events    chan ChangeEvent
}

// NewFileWatcher creates a watcher rooted at the workspace
func NewFileWatcher(workspace string) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher:   watcher,
		workspace: workspace,
		events:    make(chan ChangeEvent, 100),
	}, nil
}

// Start begins watching for file changes
func (fw *FileWatcher) Start(ctx context.Context) error {
	if err := fw.watchPackageDirs(); err != nil {
		return err
	}

	logging.Info("started watching workspace", "path", fw.workspace)

	go fw.processEvents(ctx)
	return nil
}

// watchPackageDirs watches every source-tree directory in the workspace
func (fw *FileWatcher) watchPackageDirs() error {
	dirs, err := finder.FindWatchDirs(fw.workspace)
	if err != nil {
		return fmt.Errorf("failed to walk workspace: %w", err)
	}

	count := 0
	for _, dir := range dirs {
		if err := fw.watcher.Add(dir); err != nil {
			logging.Warn("failed to watch directory", "path", dir, "error", err)
			continue
		}
		count++
	}

	logging.Info("monitoring workspace directories", "count", count)
	return nil
}

// batch accumulates one flush cycle's worth of changes
type batch struct {
	created  map[ChangeType][]string
	deleted  map[ChangeType][]string
	modified map[ChangeType][]string
}

func newBatch() *batch {
	return &batch{
		created:  make(map[ChangeType][]string),
		deleted:  make(map[ChangeType][]string),
		modified: make(map[ChangeType][]string),
	}
}

// processEvents classifies raw fsnotify events and batches them, so one
// `git checkout` does not become hundreds of notifications.
func (fw *FileWatcher) processEvents(ctx context.Context) {
	b := newBatch()

	flushTimer := time.NewTimer(100 * time.Millisecond)
	flushTimer.Stop()

	flush := func() {
		for _, typ := range []ChangeType{ChangeTypeBuildFile, ChangeTypeSourceFile} {
			created, deleted, modified := b.created[typ], b.deleted[typ], b.modified[typ]
			if len(created)+len(deleted)+len(modified) == 0 {
				continue
			}
			fw.events <- ChangeEvent{
				Type:      typ,
				Created:   created,
				Deleted:   deleted,
				Modified:  modified,
				Timestamp: time.Now(),
			}
		}
		b = newBatch()
	}

	for {
		select {
		case <-ctx.Done():
			fw.watcher.Close()
			close(fw.events)
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				close(fw.events)
				return
			}
			if fw.handleRawEvent(event, b) {
				flushTimer.Reset(100 * time.Millisecond)
			}

		case <-flushTimer.C:
			flush()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				close(fw.events)
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

func (fw *FileWatcher) handleRawEvent(event fsnotify.Event, b *batch) bool {
	// A new directory may become a package; watch it so its files are seen.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := fw.watcher.Add(event.Name); err != nil {
				logging.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
			return false
		}
	}

	typ, relevant := classify(event.Name)
	if !relevant {
		return false
	}

	switch {
	case event.Op.Has(fsnotify.Create):
		b.created[typ] = append(b.created[typ], event.Name)
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		b.deleted[typ] = append(b.deleted[typ], event.Name)
	case event.Op.Has(fsnotify.Write):
		b.modified[typ] = append(b.modified[typ], event.Name)
	default:
		return false
	}
	return true
}

// classify decides whether a path is interesting and which kind of change
// it represents.
func classify(path string) (ChangeType, bool) {
	name := filepath.Base(path)
	switch {
	case name == "BUILD" || name == "BUILD.bazel" || name == "MODULE.bazel" || name == "WORKSPACE":
		return ChangeTypeBuildFile, true
	case strings.HasSuffix(name, ".bzl"):
		return ChangeTypeBuildFile, true
	case model.LanguageForPath(name) != model.LanguageUnknown || model.IsHeaderPath(name):
		return ChangeTypeSourceFile, true
	}
	return 0, false
}

// Events returns the channel of change events
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}

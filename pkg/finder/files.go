// Package finder walks the workspace tree for the watcher and the graph
// coverage report, skipping bazel output symlinks.
package finder

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/skdevtools/bazel-bsp/pkg/model"
)

// FindWatchDirs returns every directory under the workspace the file
// watcher should monitor.
func FindWatchDirs(workspaceRoot string) ([]string, error) {
	var dirs []string

	err := filepath.WalkDir(workspaceRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip entries we can't access
		}
		if !d.IsDir() {
			return nil
		}
		if skipDir(d.Name()) {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})

	return dirs, err
}

// FindSourceFiles returns the workspace-relative paths of all source and
// header files of tracked kinds.
func FindSourceFiles(workspaceRoot string) ([]string, error) {
	var sourceFiles []string

	err := filepath.WalkDir(workspaceRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if model.LanguageForPath(path) != model.LanguageUnknown || model.IsHeaderPath(path) {
			rel, err := filepath.Rel(workspaceRoot, path)
			if err != nil {
				rel = path
			}
			sourceFiles = append(sourceFiles, filepath.ToSlash(rel))
		}
		return nil
	})

	return sourceFiles, err
}

// Bazel convenience symlinks point into the output tree; artifacts there
// never affect graph membership.
func skipDir(name string) bool {
	return strings.HasPrefix(name, "bazel-") || name == ".git"
}

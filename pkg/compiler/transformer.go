package compiler

import (
	"path/filepath"
	"strings"

	"github.com/skdevtools/bazel-bsp/pkg/model"
)

// Paths holds the absolute roots the transformer substitutes into the
// argument list. It is the only state transformation depends on.
type Paths struct {
	DeveloperDir   string // Xcode developer directory
	SDKRoot        string // resolved SDK root for the configuration
	WorkspaceRoot  string // project checkout
	OutputBase     string // bazel output base (external/ lives here)
	ExecRoot       string // execution root (bazel-out/ lives here)
	IndexStorePath string // process-wide shared index store
}

// Placeholder sentinels bazel leaves in compile commands for paths only
// known at execution time.
const (
	placeholderDeveloperDir = "__BAZEL_XCODE_DEVELOPER_DIR__"
	placeholderSDKRoot      = "__BAZEL_XCODE_SDKROOT__"
	placeholderExecRoot     = "__BAZEL_EXECUTION_ROOT__"
	placeholderOutputBase   = "__BAZEL_OUTPUT_BASE__"
)

// wrapperNames are the tool-invocation wrappers bazel prepends to the real
// flag list.
var wrapperNames = map[string]bool{
	"swiftc":           true,
	"swift":            true,
	"worker":           true,
	"swift_worker":     true,
	"clang":            true,
	"clang++":          true,
	"wrapped_clang":    true,
	"wrapped_clang_pp": true,
	"cc_wrapper.sh":    true,
	"xcrun":            true,
}

// pathValueFlags take their path as the following token
var pathValueFlags = map[string]bool{
	"-index-store-path":          true,
	"-emit-module-path":          true,
	"-emit-objc-header-path":     true,
	"-output-file-map":           true,
	"-serialize-diagnostics":     true,
	"-iquote":                    true,
	"-isystem":                   true,
	"-working-directory":         true,
	"-o":                         true,
	"-I":                         true,
	"-F":                         true,
	"-vfsoverlay":                true,
	"-explicit-swift-module-map": true,
}

// joinedPathPrefixes bundle the prefix directly against the path
var joinedPathPrefixes = []string{
	"-I",
	"-F",
	"-L",
	"-iquote",
	"-isystem",
	"-ivfsoverlay",
	"-fmodule-map-file=",
	"-working-directory=",
}

// Transformer rewrites raw compile-action arguments into an IDE-ready
// invocation. All methods are pure functions of the input plus Paths.
type Transformer struct {
	paths Paths
}

// NewTransformer creates a transformer for the given roots
func NewTransformer(paths Paths) *Transformer {
	return &Transformer{paths: paths}
}

// Transform produces the argument list for a whole-module (Swift) target
func (t *Transformer) Transform(args []string, lang model.Language) []string {
	out := t.common(args)
	if lang.WholeModule() {
		out = t.swapIndexStore(out)
	}
	return out
}

// TransformForFile produces the argument list for a single file inside a
// per-file (clang-family) target. Headers are not independently compiled
// and yield an empty list.
func (t *Transformer) TransformForFile(args []string, lang model.Language, item model.SourceItem) []string {
	if item.Kind == model.SourceKindHeader {
		return nil
	}

	out := t.common(args)
	out = stripCompilePhase(out)
	out = append([]string{"-x", clangLanguage(lang, item.URI)}, out...)
	out = append(out,
		"-index-store-path", t.paths.IndexStorePath,
		"-working-directory", t.paths.WorkspaceRoot,
	)
	return out
}

// common applies the language-independent pipeline: wrapper strip,
// placeholder substitution, path absolutization.
func (t *Transformer) common(args []string) []string {
	args = stripWrappers(args)

	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := t.substitute(args[i])

		if pathValueFlags[arg] && i+1 < len(args) {
			out = append(out, arg, t.absolutize(t.substitute(args[i+1]), arg))
			i++
			continue
		}
		if prefix, rest, ok := splitJoined(arg); ok {
			out = append(out, prefix+t.absolutize(rest, prefix))
			continue
		}
		if !strings.HasPrefix(arg, "-") && looksLikePath(arg) {
			out = append(out, t.absolutize(arg, ""))
			continue
		}
		out = append(out, arg)
	}
	return out
}

func stripWrappers(args []string) []string {
	for len(args) > 0 && !strings.HasPrefix(args[0], "-") && wrapperNames[filepath.Base(args[0])] {
		args = args[1:]
	}
	return args
}

func (t *Transformer) substitute(arg string) string {
	if !strings.Contains(arg, "__BAZEL_") {
		return arg
	}
	arg = strings.ReplaceAll(arg, placeholderDeveloperDir, t.paths.DeveloperDir)
	arg = strings.ReplaceAll(arg, placeholderSDKRoot, t.paths.SDKRoot)
	arg = strings.ReplaceAll(arg, placeholderExecRoot, t.paths.ExecRoot)
	arg = strings.ReplaceAll(arg, placeholderOutputBase, t.paths.OutputBase)
	return arg
}

// absolutize prefixes a relative path with the root it is relative to:
// external/ paths live under the output base, bazel-out/ paths under the
// exec root, everything else under the project root.
func (t *Transformer) absolutize(p, flag string) string {
	switch {
	case p == "" || filepath.IsAbs(p):
		return p
	case strings.HasPrefix(p, "external/"):
		return filepath.Join(t.paths.OutputBase, p)
	case strings.HasPrefix(p, "bazel-out/"):
		return filepath.Join(t.paths.ExecRoot, p)
	case !looksLikePath(p) && flag == "":
		return p
	default:
		return filepath.Join(t.paths.WorkspaceRoot, p)
	}
}

func splitJoined(arg string) (prefix, rest string, ok bool) {
	for _, p := range joinedPathPrefixes {
		if strings.HasPrefix(arg, p) && len(arg) > len(p) {
			rest = arg[len(p):]
			// A bare "-I" style flag with a separate value is handled by
			// pathValueFlags; only treat it as joined when a path follows
			// immediately.
			if strings.HasPrefix(rest, "-") {
				continue
			}
			return p, rest, true
		}
	}
	return "", "", false
}

func looksLikePath(arg string) bool {
	return strings.Contains(arg, "/") || hasSourceExt(arg)
}

func hasSourceExt(arg string) bool {
	switch strings.ToLower(filepath.Ext(arg)) {
	case ".swift", ".m", ".mm", ".c", ".cc", ".cpp", ".h", ".hpp", ".modulemap", ".yaml", ".json":
		return true
	}
	return false
}

// swapIndexStore replaces bazel's per-target index store with the shared
// one the editor actually reads.
func (t *Transformer) swapIndexStore(args []string) []string {
	out := append([]string(nil), args...)
	for i := 0; i < len(out)-1; i++ {
		if out[i] == "-index-store-path" {
			out[i+1] = t.paths.IndexStorePath
			return out
		}
	}
	return append(out, "-index-store-path", t.paths.IndexStorePath)
}

// stripCompilePhase drops the output-only compile-phase flags; the IDE
// front end parses, it does not emit objects.
func stripCompilePhase(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-c":
			continue
		case "-o":
			i++ // skip the output path too
			continue
		}
		out = append(out, args[i])
	}
	return out
}

func clangLanguage(lang model.Language, uri string) string {
	switch lang {
	case model.LanguageObjC:
		if strings.HasSuffix(uri, ".mm") {
			return "objective-c++"
		}
		return "objective-c"
	case model.LanguageCpp:
		return "c++"
	default:
		return "c"
	}
}

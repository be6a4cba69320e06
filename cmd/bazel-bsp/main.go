package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/skdevtools/bazel-bsp/pkg/bazel"
	"github.com/skdevtools/bazel-bsp/pkg/config"
	"github.com/skdevtools/bazel-bsp/pkg/finder"
	"github.com/skdevtools/bazel-bsp/pkg/logging"
	"github.com/skdevtools/bazel-bsp/pkg/output"
	"github.com/skdevtools/bazel-bsp/pkg/pubsub"
	"github.com/skdevtools/bazel-bsp/pkg/server"
	"github.com/skdevtools/bazel-bsp/pkg/watcher"
	"github.com/skdevtools/bazel-bsp/pkg/web"
)

const (
	debounceQuietPeriod = 500 * time.Millisecond
	debounceMaxWait     = 5 * time.Second
)

func main() {
	f := pflag.NewFlagSet("bazel-bsp", pflag.ExitOnError)
	f.String("workspace", ".", "Path to the bazel workspace root")
	f.String("bazel", "bazel", "Bazel binary to invoke")
	f.StringSlice("targets", nil, "Top-level target patterns to serve (required)")
	f.StringSlice("top-level-rule-kinds", nil, "Rule kinds treated as top-level targets")
	f.StringSlice("dependency-rule-kinds", nil, "Rule kinds included as dependency targets")
	f.StringSlice("exclusions", nil, "Target patterns excluded from the top-level set")
	f.StringSlice("dependency-exclusions", nil, "Target patterns excluded from the dependency set")
	f.StringSlice("mnemonics", nil, "Compile-action mnemonics requested from the action query")
	f.String("index-store-path", "", "Shared index store path injected into compile commands")
	f.String("developer-dir", "", "Xcode developer dir substituted into compile commands")
	f.Bool("compile-at-top-level", false, "Match compile actions on the raw configuration mnemonic")
	f.Bool("watch", true, "Watch the workspace and keep the graph current")
	f.Int("debug-port", 0, "Port for the debug HTTP server (0 disables it)")
	f.Bool("print-graph", false, "Print the project graph and coverage report, then exit")
	f.String("verbosity", "", "Log level: debug, info, warn, error")
	f.CountP("verbose", "v", "Increase log verbosity (-v debug, -vv trace)")

	if err := f.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\nUsage of bazel-bsp:\n%s", err, f.FlagUsages())
		os.Exit(1)
	}

	logging.SetLevel(logLevel(cfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exec := &bazel.DefaultExecutor{BazelPath: cfg.BazelPath}

	var publisher pubsub.Publisher
	var ssePublisher *pubsub.SSEPublisher
	if cfg.DebugPort > 0 {
		ssePublisher = pubsub.NewSSEPublisher()
		web.ConfigureTopics(ssePublisher)
		publisher = ssePublisher
	}

	session := server.NewSession(cfg, exec, publisher)

	if cfg.DebugPort > 0 {
		srv := web.NewServer(session, ssePublisher)
		go func() {
			if err := srv.Start(cfg.DebugPort); err != nil {
				logging.Fatal("debug server failed", "port", cfg.DebugPort, "error", err)
			}
		}()
	}

	if err := session.LoadProject(ctx); err != nil {
		logging.Fatal("initial project load failed", "error", err)
	}

	if cfg.PrintGraph {
		output.PrintGraphReport(cfg.Workspace, session.Graph())
		printCoverage(cfg.Workspace, session)
		return
	}

	if cfg.Watch {
		runWatch(ctx, cfg, session)
		return
	}

	<-ctx.Done()
}

// runWatch blocks until the context is cancelled, applying debounced file
// system changes to the session.
func runWatch(ctx context.Context, cfg *config.Config, session *server.Session) {
	fw, err := watcher.NewFileWatcher(cfg.Workspace)
	if err != nil {
		logging.Fatal("failed to create file watcher", "error", err)
	}
	if err := fw.Start(ctx); err != nil {
		logging.Fatal("failed to start file watcher", "error", err)
	}

	debouncer := watcher.NewDebouncer(fw.Events(), debounceQuietPeriod, debounceMaxWait)
	debouncer.Start(ctx)

	session.RunWatchLoop(ctx, debouncer.Output())
}

// printCoverage lists workspace source files no graph target owns. Those
// files get no compile arguments until a BUILD file picks them up.
func printCoverage(workspace string, session *server.Session) {
	files, err := finder.FindSourceFiles(workspace)
	if err != nil {
		logging.Warn("failed to scan workspace for source files", "error", err)
		return
	}

	pg := session.Graph()
	var uncovered []string
	for _, file := range files {
		if len(pg.TargetsForSource(file)) == 0 {
			uncovered = append(uncovered, file)
		}
	}

	fmt.Printf("Source coverage: %d of %d files owned by a target\n", len(files)-len(uncovered), len(files))
	for _, file := range uncovered {
		fmt.Printf("  uncovered: %s\n", file)
	}
}

func logLevel(cfg *config.Config) slog.Level {
	switch cfg.Verbosity {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info":
		return slog.LevelInfo
	}
	switch {
	case cfg.VerboseCnt >= 2:
		return slog.LevelDebug - 4
	case cfg.VerboseCnt == 1:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

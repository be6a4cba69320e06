// Package output renders the one-shot console report for --print-graph.
package output

import (
	"fmt"
	"sort"

	"github.com/fatih/color"

	"github.com/skdevtools/bazel-bsp/pkg/model"
)

// PrintGraphReport prints a human-readable summary of a project graph
func PrintGraphReport(workspace string, pg *model.ProjectGraph) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	bold.Println("bazel-bsp - Project Graph")
	bold.Println("=========================")
	fmt.Printf("Workspace: %s\n\n", workspace)

	bold.Println("TOP-LEVEL TARGETS:")
	for _, top := range pg.TopLevel {
		green.Printf("  %s", top.Label)
		fmt.Printf(" (%s)\n", top.RuleKind)
		cyan.Printf("    configuration: %s\n", top.Configuration.NormalizedMnemonic)
		if top.Configuration.SDK != "" {
			fmt.Printf("    sdk: %s  arch: %s  min-os: %s\n",
				top.Configuration.SDK, top.Configuration.Architecture, top.Configuration.MinOSVersion)
		}
	}
	fmt.Println()

	bold.Println("DEPENDENCY TARGETS:")
	for _, id := range pg.SortedTargetIDs() {
		t := pg.Targets[id]
		fmt.Printf("  %s", t.Label)
		if t.Language != model.LanguageUnknown {
			cyan.Printf(" [%s]", t.Language)
		}
		if t.IsTest {
			yellow.Printf(" (test)")
		}
		fmt.Printf("  sources: %d  deps: %d\n", len(pg.SourcesByTarget[id]), len(t.Deps))
	}
	fmt.Println()

	if len(pg.Aliases) > 0 {
		bold.Println("ALIASES:")
		aliased := make([]string, 0, len(pg.Aliases))
		for from := range pg.Aliases {
			aliased = append(aliased, from)
		}
		sort.Strings(aliased)
		for _, from := range aliased {
			fmt.Printf("  %s -> %s\n", from, pg.Aliases[from])
		}
		fmt.Println()
	}

	green.Printf("Summary: %d top-level target(s), %d dependency target(s), %d source file(s)\n",
		len(pg.TopLevel), len(pg.Targets), len(pg.TargetsBySource))
}

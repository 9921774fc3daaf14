/*
Copyright © 2025 Engram Labs
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engramlabs/engram/internal/memory"
	"github.com/engramlabs/engram/internal/project"
	"github.com/engramlabs/engram/internal/ui"
)

// exportLimit bounds each tier in one export. Large enough for any store a
// single agent accumulates; a hard cap keeps a runaway export from eating
// all memory.
const exportLimit = 10000

var (
	exportProject string
	exportOut     string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export one project's memory as markdown",
	Long: `Render one project's memory as markdown files in a directory:

  README.md     tier and sector counts
  graph.md      nodes and edges grouped by memory sector
  insights.md   compressed insights with tags and sources
  episodes.md   past query/reward/reflection tuples
  working.md    the live buffer and the stale archive

Sections render in a fixed order, so repeated exports of the same store
diff cleanly. Embedding vectors are never exported.

Examples:
  engram export --out ./memory-snapshot
  engram export --project acme-support --out /tmp/acme`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportProject, "project", "p", "", "project to export (default from config)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "engram-export", "output directory")
}

func runExport(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	proj, err := project.Resolve(exportProject, cfg.Project.Default)
	if err != nil {
		return err
	}
	ctx = project.WithProject(ctx, proj)

	var sp *ui.Spinner
	if !isJSON() && ui.IsInteractive() {
		sp = ui.NewSpinner("collecting memory tiers")
		sp.Start()
		defer sp.Stop()
	}

	nodes, err := store.ListNodes(ctx, exportLimit)
	if err != nil {
		return fmt.Errorf("export nodes: %w", err)
	}
	edges, err := store.ListEdges(ctx, exportLimit)
	if err != nil {
		return fmt.Errorf("export edges: %w", err)
	}
	insights, err := store.ListInsights(ctx, exportLimit)
	if err != nil {
		return fmt.Errorf("export insights: %w", err)
	}
	episodes, err := store.ListEpisodes(ctx, exportLimit)
	if err != nil {
		return fmt.Errorf("export episodes: %w", err)
	}
	working, err := store.ListWorkingItems(ctx, exportLimit)
	if err != nil {
		return fmt.Errorf("export working memory: %w", err)
	}
	stale, err := store.ListStale(ctx, memory.StaleFilter{Limit: exportLimit})
	if err != nil {
		return fmt.Errorf("export stale memory: %w", err)
	}
	counts, err := store.CountTiers(ctx)
	if err != nil {
		return fmt.Errorf("export tier counts: %w", err)
	}
	sectors, err := store.CountSectors(ctx)
	if err != nil {
		return fmt.Errorf("export sector counts: %w", err)
	}

	exporter := memory.NewOsExporter(exportOut)

	files := make([]string, 0, 5)
	collect := func(path string, err error) error {
		if err != nil {
			return err
		}
		files = append(files, path)
		return nil
	}
	if err := collect(exporter.WriteSummary(counts, sectors)); err != nil {
		return err
	}
	if err := collect(exporter.WriteGraph(nodes, edges)); err != nil {
		return err
	}
	if err := collect(exporter.WriteInsights(insights)); err != nil {
		return err
	}
	if err := collect(exporter.WriteEpisodes(episodes)); err != nil {
		return err
	}
	if err := collect(exporter.WriteWorking(working, stale)); err != nil {
		return err
	}

	if sp != nil {
		sp.Stop()
	}

	if isJSON() {
		return printJSON(map[string]any{
			"project": proj,
			"out":     exportOut,
			"files":   files,
		})
	}

	fmt.Printf("Exported project %q to %s:\n", proj, exportOut)
	for _, f := range files {
		fmt.Printf("  • %s\n", f)
	}
	return nil
}

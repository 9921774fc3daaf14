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

var statsProject string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory tier and sector counts for a project",
	Long: `Summarize the memory store for one project: row counts per tier
(raw dialogue, working memory, insights, episodes, graph, stale memory),
edge counts per memory sector, the current working buffer, and the most
recent audit entries.

Examples:
  engram stats
  engram stats --project acme-support
  engram stats --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStats(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVarP(&statsProject, "project", "p", "", "project to inspect (default from config)")
}

func runStats(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	proj, err := project.Resolve(statsProject, cfg.Project.Default)
	if err != nil {
		return err
	}
	ctx = project.WithProject(ctx, proj)

	counts, err := store.CountTiers(ctx)
	if err != nil {
		return fmt.Errorf("count tiers: %w", err)
	}
	sectors, err := store.CountSectors(ctx)
	if err != nil {
		return fmt.Errorf("count sectors: %w", err)
	}

	if isJSON() {
		return printJSON(map[string]any{
			"project": proj,
			"tiers":   counts,
			"sectors": sectors,
		})
	}

	ui.RenderPageHeader("Engram Memory", fmt.Sprintf("project %s · %s", proj, cfg.Database.Path))
	fmt.Println(ui.RenderTierCounts(counts))
	fmt.Println(ui.RenderSectorSummary(sectors))

	// The buffer and audit tail are small by construction, so show them
	// inline instead of behind another subcommand.
	if working, err := store.ListWorkingItems(ctx, 0); err == nil && len(working) > 0 {
		fmt.Println(ui.RenderWorkingMemory(working))
	}
	if audit, err := store.ListAudit(ctx, memory.AuditFilter{Limit: 5}); err == nil && len(audit) > 0 {
		fmt.Println(ui.RenderAuditTrail(audit))
	}
	return nil
}

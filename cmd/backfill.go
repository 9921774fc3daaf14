/*
Copyright © 2025 Engram Labs
*/
package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/engramlabs/engram/internal/config"
	"github.com/engramlabs/engram/internal/llm"
	"github.com/engramlabs/engram/internal/project"
	"github.com/engramlabs/engram/internal/tiers"
	"github.com/engramlabs/engram/internal/ui"
)

var (
	backfillProject string
	backfillDryRun  bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Re-embed insights stored without vectors",
	Long: `Embed insights that were persisted without a vector, typically because
the embedding provider was down or unconfigured when they were compressed.
Vectorless insights still appear in keyword search; backfilling restores
them to the semantic channel.

Requires a configured embedding provider. Stops at the first provider
failure so a broken key does not burn the retry budget on every row.

Examples:
  engram backfill
  engram backfill --dry-run
  engram backfill --project acme-support --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBackfill(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(backfillCmd)
	backfillCmd.Flags().StringVarP(&backfillProject, "project", "p", "", "project to backfill (default from config)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "count vectorless insights without embedding anything")
}

func runBackfill(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	proj, err := project.Resolve(backfillProject, cfg.Project.Default)
	if err != nil {
		return err
	}
	ctx = project.WithProject(ctx, proj)

	pending, err := store.InsightsWithoutEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("list vectorless insights: %w", err)
	}

	if backfillDryRun {
		if isJSON() {
			return printJSON(map[string]any{"project": proj, "pending": len(pending), "dry_run": true})
		}
		if len(pending) == 0 {
			fmt.Println("All insights already have embeddings.")
		} else {
			fmt.Printf("%d insight(s) would be re-embedded.\n", len(pending))
		}
		return nil
	}

	if len(pending) == 0 {
		if isJSON() {
			return printJSON(map[string]any{"project": proj, "updated": 0})
		}
		fmt.Println("All insights already have embeddings.")
		return nil
	}

	// The provider is only dialed once something actually needs embedding.
	llmCfg, err := config.LoadLLMConfig()
	if err != nil {
		return fmt.Errorf("backfill needs an embedding provider: %w", err)
	}
	embedder, err := llm.NewEmbedder(ctx, llmCfg)
	if err != nil {
		return fmt.Errorf("backfill needs an embedding provider: %w", err)
	}

	comp := tiers.NewCompressor(store, embedder, tiers.DefaultCompressorConfig())

	if isJSON() || !ui.IsInteractive() {
		n, err := comp.BackfillEmbeddings(ctx)
		if isJSON() {
			out := map[string]any{"project": proj, "updated": n, "pending": len(pending)}
			if err != nil {
				out["error"] = err.Error()
			}
			return printJSON(out)
		}
		if err != nil {
			return fmt.Errorf("backfill stopped after %d/%d insights: %w", n, len(pending), err)
		}
		fmt.Printf("Re-embedded %d insight(s).\n", n)
		return nil
	}

	events := make(chan ui.BackfillEvent)
	go func() {
		defer close(events)
		done := 0
		for _, ins := range pending {
			err := comp.ReembedInsight(ctx, ins)
			if err == nil {
				done++
			}
			select {
			case events <- ui.BackfillEvent{InsightID: ins.ID, Done: done, Err: err}:
			case <-ctx.Done():
				return
			}
			// Same contract as the batch path: a provider failure ends the
			// run instead of retrying every remaining row.
			if err != nil {
				return
			}
		}
	}()

	finalModel, err := tea.NewProgram(ui.NewBackfillModel(len(pending), events)).Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	model, ok := finalModel.(ui.BackfillModel)
	if !ok {
		return fmt.Errorf("internal error: invalid model type")
	}
	if model.Canceled {
		fmt.Printf("\n⚠️  Backfill cancelled after %d/%d.\n", model.Done, model.Total)
		return nil
	}
	if model.LastErr != nil {
		return fmt.Errorf("backfill stopped after %d/%d insights: %w", model.Done, model.Total, model.LastErr)
	}
	fmt.Printf("Re-embedded %d insight(s).\n", model.Done)
	return nil
}

/*
Copyright © 2025 Engram Labs
*/
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/engramlabs/engram/internal/config"
	"github.com/engramlabs/engram/internal/llm"
	"github.com/engramlabs/engram/internal/policy"
	"github.com/engramlabs/engram/internal/project"
	"github.com/engramlabs/engram/internal/telemetry"
	"github.com/engramlabs/engram/internal/ui"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check Engram setup and diagnose issues",
	Long: `Validate your Engram installation and configuration.

Checks:
  • Configuration file and environment overrides
  • Database reachability, integrity, and tier row counts
  • Embedding provider credentials
  • Deletion-guard policies
  • Telemetry consent state
  • systemd notify socket

Use this to troubleshoot issues before pointing an MCP client at the server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDoctor(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// DoctorCheck represents a single diagnostic check
type DoctorCheck struct {
	Name    string
	Status  string // "ok", "warn", "fail"
	Message string
	Hint    string
}

func runDoctor(ctx context.Context) error {
	fmt.Println("🩺 Engram Doctor")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// The integrity check can take a while on a large store.
	var sp *ui.Spinner
	if ui.IsInteractive() {
		sp = ui.NewSpinner("running checks")
		sp.Start()
	}

	checks := []DoctorCheck{}
	hasErrors := false

	cfgCheck, cfg, cfgOK := checkConfiguration()
	checks = append(checks, cfgCheck)
	if cfgCheck.Status == "fail" {
		hasErrors = true
	}

	if cfgOK {
		dbCheck := checkDatabase(ctx, cfg)
		checks = append(checks, dbCheck)
		if dbCheck.Status == "fail" {
			hasErrors = true
		}
	}

	checks = append(checks, checkEmbeddingProvider(ctx))
	checks = append(checks, checkPolicies())
	checks = append(checks, checkTelemetryConsent())
	checks = append(checks, checkNotifySocket())

	if sp != nil {
		sp.Stop()
	}

	for _, c := range checks {
		printCheck(c)
	}

	fmt.Println()
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	if hasErrors {
		fmt.Println("❌ Issues found. Fix the errors above before continuing.")
	} else {
		fmt.Println("✅ Everything looks good!")
		fmt.Println()
		fmt.Println("Next steps:")
		fmt.Println("  • Start the server: engram serve")
		fmt.Println("  • Inspect the store: engram stats")
	}

	return nil
}

func printCheck(c DoctorCheck) {
	var icon string
	switch c.Status {
	case "ok":
		icon = "✅"
	case "warn":
		icon = "⚠️ "
	case "fail":
		icon = "❌"
	}

	fmt.Printf("%s %s: %s\n", icon, c.Name, c.Message)
	if c.Hint != "" && c.Status != "ok" {
		fmt.Printf("   └─ %s\n", c.Hint)
	}
}

func checkConfiguration() (DoctorCheck, config.Config, bool) {
	cfg, err := loadConfig()
	if err != nil {
		return DoctorCheck{
			Name:    "Configuration",
			Status:  "fail",
			Message: err.Error(),
			Hint:    "Run: engram config init",
		}, config.Config{}, false
	}

	return DoctorCheck{
		Name:    "Configuration",
		Status:  "ok",
		Message: fmt.Sprintf("loaded (environment: %s, project: %s)", cfg.Environment, cfg.Project.Default),
	}, cfg, true
}

func checkDatabase(ctx context.Context, cfg config.Config) DoctorCheck {
	store, err := openStore(cfg)
	if err != nil {
		return DoctorCheck{
			Name:    "Database",
			Status:  "fail",
			Message: err.Error(),
			Hint:    "Check database.path in ~/.engram/config.yaml (or ENGRAM_DB)",
		}
	}
	defer func() { _ = store.Close() }()

	proj, err := project.Resolve("", cfg.Project.Default)
	if err != nil {
		return DoctorCheck{
			Name:    "Database",
			Status:  "fail",
			Message: err.Error(),
			Hint:    "project.default in config must be a slug (lowercase letters, digits, - and _)",
		}
	}
	ctx = project.WithProject(ctx, proj)

	var integrity string
	if err := store.DB().QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		return DoctorCheck{
			Name:    "Database",
			Status:  "fail",
			Message: fmt.Sprintf("integrity check failed to run: %v", err),
			Hint:    "Check database.path in ~/.engram/config.yaml (or ENGRAM_DB)",
		}
	}
	if integrity != "ok" {
		return DoctorCheck{
			Name:    "Database",
			Status:  "fail",
			Message: fmt.Sprintf("integrity check reported: %s", integrity),
			Hint:    "The file is corrupt; restore from a backup or re-export and recreate it",
		}
	}

	counts, err := store.CountTiers(ctx)
	if err != nil {
		return DoctorCheck{
			Name:    "Database",
			Status:  "fail",
			Message: fmt.Sprintf("opened but unreadable: %v", err),
			Hint:    "The schema may be from an incompatible version; back up and recreate the file",
		}
	}

	return DoctorCheck{
		Name:   "Database",
		Status: "ok",
		Message: fmt.Sprintf("%s (%d nodes, %d edges, %d insights, %d episodes)",
			cfg.Database.Path, counts.Nodes, counts.Edges, counts.Insights, counts.Episodes),
	}
}

func checkEmbeddingProvider(ctx context.Context) DoctorCheck {
	llmCfg, err := config.LoadLLMConfig()
	if err != nil {
		return DoctorCheck{
			Name:    "Embedding provider",
			Status:  "warn",
			Message: err.Error(),
			Hint:    "Set llm.provider in config (or OPENAI_API_KEY in .env); without it insights store vectorless",
		}
	}

	if _, err := llm.NewEmbedder(ctx, llmCfg); err != nil {
		return DoctorCheck{
			Name:    "Embedding provider",
			Status:  "warn",
			Message: err.Error(),
			Hint:    "Semantic search degrades to keyword+graph until a provider is configured",
		}
	}

	return DoctorCheck{
		Name:   "Embedding provider",
		Status: "ok",
		Message: fmt.Sprintf("%s/%s (%d dims)",
			llmCfg.Provider, llmCfg.EmbeddingModel, llm.Dimensions(llmCfg.EmbeddingModel)),
	}
}

func checkPolicies() DoctorCheck {
	dir := config.PoliciesDir()
	loader := policy.NewLoader(afero.NewOsFs(), dir)

	exists, err := loader.Exists()
	if err != nil {
		return DoctorCheck{
			Name:    "Deletion policies",
			Status:  "warn",
			Message: fmt.Sprintf("cannot read %s: %v", dir, err),
		}
	}
	if !exists {
		return DoctorCheck{
			Name:    "Deletion policies",
			Status:  "warn",
			Message: "no policies directory; constitutive guard uses built-in rules only",
			Hint:    "Run: engram policy init",
		}
	}

	policies, err := loader.LoadAll()
	if err != nil {
		return DoctorCheck{
			Name:    "Deletion policies",
			Status:  "fail",
			Message: err.Error(),
			Hint:    "Run: engram policy validate",
		}
	}

	return DoctorCheck{
		Name:    "Deletion policies",
		Status:  "ok",
		Message: fmt.Sprintf("%d policy file(s) in %s", len(policies), dir),
	}
}

func checkTelemetryConsent() DoctorCheck {
	consent, err := telemetry.Load()
	if err != nil {
		return DoctorCheck{
			Name:    "Telemetry",
			Status:  "warn",
			Message: fmt.Sprintf("consent record unreadable: %v", err),
			Hint:    "Run: engram config telemetry disable (or enable)",
		}
	}

	if consent.NeedsConsent() {
		return DoctorCheck{
			Name:    "Telemetry",
			Status:  "warn",
			Message: "consent not recorded; telemetry stays off until you choose",
			Hint:    "Run: engram config telemetry enable (or disable)",
		}
	}

	if consent.IsEnabled() {
		return DoctorCheck{
			Name:    "Telemetry",
			Status:  "ok",
			Message: "enabled (tool names, durations, outcomes only; never memory content)",
		}
	}
	return DoctorCheck{
		Name:    "Telemetry",
		Status:  "ok",
		Message: "disabled",
	}
}

func checkNotifySocket() DoctorCheck {
	if os.Getenv("NOTIFY_SOCKET") == "" {
		return DoctorCheck{
			Name:    "systemd",
			Status:  "ok",
			Message: "NOTIFY_SOCKET not set; watchdog heartbeats are skipped outside systemd",
		}
	}
	return DoctorCheck{
		Name:    "systemd",
		Status:  "ok",
		Message: "NOTIFY_SOCKET present; serve will send READY/WATCHDOG/STOPPING",
	}
}

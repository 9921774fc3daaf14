/*
Copyright © 2025 Engram Labs
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engramlabs/engram/internal/config"
	"github.com/engramlabs/engram/internal/telemetry"
)

// configCmd is the parent config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Engram configuration",
	Long: `View and manage Engram configuration.

Configuration is layered: built-in defaults, then ~/.engram/config.yaml,
then ENGRAM_* environment variables (a .env file in the working directory
is loaded first). Running without a subcommand shows the effective values.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigShow()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigShow()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long: `Write a commented starter configuration to ~/.engram/config.yaml.
Fails if the file already exists; edit the existing file instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigInit()
	},
}

// Telemetry subcommands
var configTelemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "Manage telemetry settings",
	Long: `View and manage anonymous usage telemetry.

Engram collects anonymous usage data to improve the product:
  - Tool names and execution duration
  - Success/failure and error category
  - OS, architecture, and version

Memory content, tool arguments, and file paths are never collected.
Telemetry stays off until you explicitly enable it; ENGRAM_TELEMETRY=off
is an environment kill switch that overrides everything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTelemetryStatus()
	},
}

var configTelemetryStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current telemetry status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTelemetryStatus()
	},
}

var configTelemetryEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable anonymous telemetry",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTelemetryEnable()
	},
}

var configTelemetryDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable anonymous telemetry",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTelemetryDisable()
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	configCmd.AddCommand(configTelemetryCmd)
	configTelemetryCmd.AddCommand(configTelemetryStatusCmd)
	configTelemetryCmd.AddCommand(configTelemetryEnableCmd)
	configTelemetryCmd.AddCommand(configTelemetryDisableCmd)
}

func runConfigShow() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfgPath, _ := config.ConfigFilePath()

	if isJSON() {
		return printJSON(map[string]any{
			"config_file":    cfgPath,
			"environment":    cfg.Environment,
			"log":            cfg.Log,
			"project":        cfg.Project,
			"database":       cfg.Database,
			"retrieval":      cfg.Retrieval,
			"scoring":        cfg.Scoring,
			"working_memory": cfg.WorkingMemory,
			"insights":       cfg.Insights,
			"telemetry":      cfg.Telemetry,
		})
	}

	fmt.Println("Engram Configuration")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
	fmt.Printf("  config file:        %s\n", cfgPath)
	fmt.Printf("  environment:        %s\n", cfg.Environment)
	fmt.Printf("  log level:          %s\n", cfg.Log.Level)
	fmt.Printf("  default project:    %s\n", cfg.Project.Default)
	fmt.Println()
	fmt.Println("## Database")
	fmt.Printf("  path:               %s\n", cfg.Database.Path)
	fmt.Printf("  pool size:          %d\n", cfg.Database.PoolSize)
	fmt.Println()
	fmt.Println("## Retrieval")
	fmt.Printf("  rrf k:              %d\n", cfg.Retrieval.RRFK)
	fmt.Printf("  shadow audit:       %v\n", cfg.Retrieval.ShadowAudit)
	fmt.Println()
	fmt.Println("## Scoring weights")
	fmt.Printf("  relevance:          %.2f\n", cfg.Scoring.Weights.Relevance)
	fmt.Printf("  similarity:         %.2f\n", cfg.Scoring.Weights.Similarity)
	fmt.Printf("  recency:            %.2f\n", cfg.Scoring.Weights.Recency)
	fmt.Printf("  constitutive:       %.2f\n", cfg.Scoring.Weights.Constitutive)
	fmt.Println()
	fmt.Println("## Memory")
	fmt.Printf("  working capacity:   %d\n", cfg.WorkingMemory.Capacity)
	fmt.Printf("  fidelity threshold: %.2f\n", cfg.Insights.FidelityThreshold)
	fmt.Println()
	fmt.Printf("  telemetry:          %v (see: engram config telemetry)\n", cfg.Telemetry.Enabled)
	return nil
}

func runConfigInit() error {
	cfgPath, err := config.ConfigFilePath()
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	if err := config.WriteStarterConfig(cfgPath); err != nil {
		return err
	}

	if isJSON() {
		return printJSON(map[string]any{"created": cfgPath})
	}
	fmt.Printf("✅ Wrote starter config to %s\n", cfgPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  • Set your embedding provider key in .env or the config file")
	fmt.Println("  • Verify the setup: engram doctor")
	return nil
}

func runTelemetryStatus() error {
	cfg, err := telemetry.Load()
	if err != nil {
		return fmt.Errorf("load telemetry config: %w", err)
	}

	configPath, _ := telemetry.GetConfigPath()

	if isJSON() {
		return printJSON(map[string]any{
			"enabled":       cfg.IsEnabled(),
			"consent_asked": !cfg.NeedsConsent(),
			"anonymous_id":  cfg.AnonymousID,
			"config_path":   configPath,
			"kill_switch":   telemetry.KillSwitchActive(),
		})
	}

	fmt.Println("Telemetry Configuration")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	status := "Disabled"
	statusIcon := "❌"
	if cfg.IsEnabled() {
		status = "Enabled"
		statusIcon = "✅"
	}

	fmt.Printf("  Status:       %s %s\n", statusIcon, status)
	fmt.Printf("  Anonymous ID: %s\n", cfg.AnonymousID)
	fmt.Printf("  Config file:  %s\n", configPath)
	if telemetry.KillSwitchActive() {
		fmt.Printf("  Kill switch:  ENGRAM_TELEMETRY=off (overrides the setting above)\n")
	}
	if cfg.NeedsConsent() {
		fmt.Println()
		fmt.Println("No choice recorded yet; telemetry stays off until enabled.")
		fmt.Println("Enable with: engram config telemetry enable")
	}
	return nil
}

func runTelemetryEnable() error {
	cfg, err := telemetry.Load()
	if err != nil {
		return fmt.Errorf("load telemetry config: %w", err)
	}

	cfg.Enable()

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("save telemetry config: %w", err)
	}

	if isJSON() {
		return printJSON(map[string]any{
			"enabled": true,
			"message": "Telemetry enabled",
		})
	}

	fmt.Println("✅ Telemetry enabled")
	fmt.Println()
	fmt.Println("Thank you for helping improve Engram!")
	fmt.Println("We collect: tool names, duration, success/failure, OS, version")
	fmt.Println("We never collect: memory content, tool arguments, or personal data")
	return nil
}

func runTelemetryDisable() error {
	cfg, err := telemetry.Load()
	if err != nil {
		return fmt.Errorf("load telemetry config: %w", err)
	}

	cfg.Disable()

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("save telemetry config: %w", err)
	}

	if isJSON() {
		return printJSON(map[string]any{
			"enabled": false,
			"message": "Telemetry disabled",
		})
	}

	fmt.Println("✅ Telemetry disabled")
	return nil
}

/*
Copyright © 2025 Engram Labs
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/engramlabs/engram/internal/config"
	"github.com/engramlabs/engram/internal/logger"
	"github.com/engramlabs/engram/internal/memory"
)

var (
	// cfgFile is the path to the configuration file.
	cfgFile string
	// verbose enables verbose output.
	verbose bool
	// version is the application version.
	version = "0.3.0"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "engram",
	Short: "Engram is a persistent memory service for AI agents.",
	Long: `Engram gives AI agents a memory that survives the session: a typed
knowledge graph, tiered storage from raw dialogue up to distilled insights,
and hybrid retrieval over all of it.

Run 'engram serve' to serve the memory over the Model Context Protocol, or
use the ops commands (stats, doctor, export, backfill) to inspect and
maintain the store.`,
	Run: func(cmd *cobra.Command, args []string) {
		// return help if no args are provided
		if len(args) == 0 {
			_ = cmd.Help()
			os.Exit(0)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ~/.engram/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().Bool("json", false, "output machine-readable JSON")

	// Bind persistent flags to Viper
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

// initConfig prepares logging and the layered configuration before any
// command runs. stdout stays clean for command output and JSON-RPC; all
// logging goes to stderr.
func initConfig() {
	logger.InitStderr()
	logger.SetVersion(version)
	if dir, err := config.GetGlobalConfigDir(); err == nil {
		logger.SetBasePath(dir)
	}

	// A .env next to the working directory is a convenience for API keys;
	// its absence is not an error.
	_ = godotenv.Load()

	if err := config.InitViper(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "%sconfig error: %v\n", logger.StderrPrefix, err)
		os.Exit(1)
	}
}

// loadConfig assembles and validates the runtime configuration. Commands
// treat a broken configuration as fatal rather than guessing at defaults.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// openStore opens the SQLite store named by the configuration.
func openStore(cfg config.Config) (*memory.SQLiteStore, error) {
	store, err := memory.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", cfg.Database.Path, err)
	}
	store.SetPoolSize(cfg.Database.PoolSize)
	if verbose {
		fmt.Fprintf(os.Stderr, "%susing database: %s\n", logger.StderrPrefix, cfg.Database.Path)
	}
	return store, nil
}

package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// GetGlobalConfigDir returns the path to the global configuration directory
// (~/.engram). This is the source of truth for where global config lives.
// It's a variable to allow overriding in tests.
var GetGlobalConfigDir = func() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".engram"), nil
}

// ConfigFilePath returns the path of the global config file.
func ConfigFilePath() (string, error) {
	dir, err := GetGlobalConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFileName), nil
}

// DatabasePath returns the SQLite database location.
// Resolution order (first match wins):
// 1. Explicit config via "database.path" (Viper/env ENGRAM_DB)
// 2. Local project directory: .engram/engram.db (if .engram exists)
// 3. XDG_DATA_HOME/engram/engram.db (if XDG_DATA_HOME is set)
// 4. Global fallback: ~/.engram/engram.db
func DatabasePath() string {
	// 1. Check Viper config (config file/env)
	if path := viper.GetString("database.path"); path != "" {
		return path
	}

	// 2. Check for a local .engram directory
	// This allows per-checkout isolation when running from within a project
	if info, err := os.Stat(".engram"); err == nil && info.IsDir() {
		return filepath.Join(".engram", DefaultDatabaseFile)
	}

	// 3. Check XDG_DATA_HOME
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "engram", DefaultDatabaseFile)
	}

	// 4. Fallback to ~/.engram/engram.db (global)
	dir, err := GetGlobalConfigDir()
	if err != nil {
		return DefaultDatabaseFile
	}
	return filepath.Join(dir, DefaultDatabaseFile)
}

// PoliciesDir returns the directory scanned for optional deletion-guard
// rego policies. Configurable via "policies.path".
func PoliciesDir() string {
	if path := viper.GetString("policies.path"); path != "" {
		return path
	}
	dir, err := GetGlobalConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "policies")
}

// LogsDir returns the directory for debug logs and crash reports.
// Telemetry consent lives in its own file owned by the telemetry package,
// separate from the paths resolved here.
func LogsDir() (string, error) {
	dir, err := GetGlobalConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

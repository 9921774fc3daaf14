// Package telemetry manages anonymous, opt-in usage telemetry.
//
// Consent is stored at ~/.engram/telemetry.json, separate from the main
// config file so wiping configuration never silently re-enables reporting.
// Events carry tool names, durations, and outcomes only, never memory
// content. ENGRAM_TELEMETRY=off disables reporting regardless of consent.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// ConfigFileName is the name of the consent file.
const ConfigFileName = "telemetry.json"

// Config is the persisted consent record.
type Config struct {
	// Enabled indicates whether telemetry is currently enabled.
	Enabled bool `json:"enabled"`

	// ConsentAsked indicates whether the user has made a choice.
	// Once true, the choice is never re-prompted.
	ConsentAsked bool `json:"consent_asked"`

	// AnonymousID is a random UUID generated once on first load.
	// Not tied to any personally identifiable information.
	AnonymousID string `json:"anonymous_id"`
}

// Enable turns on telemetry and marks consent as given.
func (c *Config) Enable() {
	c.Enabled = true
	c.ConsentAsked = true
}

// Disable turns off telemetry and marks consent as given.
func (c *Config) Disable() {
	c.Enabled = false
	c.ConsentAsked = true
}

// NeedsConsent returns true if the user has not made a choice yet.
func (c *Config) NeedsConsent() bool {
	return !c.ConsentAsked
}

// IsEnabled returns true if telemetry is currently enabled.
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

var (
	// configDirOverride redirects the consent file in tests.
	configDirOverride   string
	configDirOverrideMu sync.RWMutex
)

// SetConfigDir sets a custom config directory path (for testing).
// Pass empty string to reset to default behavior.
func SetConfigDir(dir string) {
	configDirOverrideMu.Lock()
	defer configDirOverrideMu.Unlock()
	configDirOverride = dir
}

// GetConfigPath returns the full path to the consent file, honoring the
// test override and defaulting to ~/.engram.
func GetConfigPath() (string, error) {
	configDirOverrideMu.RLock()
	dir := configDirOverride
	configDirOverrideMu.RUnlock()

	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(home, ".engram")
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// Load reads the consent record from disk. A missing file yields the default
// state (disabled, not yet asked) with a freshly generated anonymous ID.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run: disabled until the user opts in.
		return &Config{AnonymousID: uuid.NewString()}, nil
	case err != nil:
		return nil, fmt.Errorf("read consent file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse consent file: %w", err)
	}

	// Older files may predate the anonymous ID
	if cfg.AnonymousID == "" {
		cfg.AnonymousID = uuid.NewString()
	}
	return &cfg, nil
}

// Save writes the consent record with owner-only permissions, creating the
// directory if needed. The write goes through a temp file and a rename so a
// crash mid-write cannot leave a torn record that flips the consent state
// on the next load.
func (c *Config) Save() error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal consent: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ConfigFileName+".*")
	if err != nil {
		return fmt.Errorf("stage consent file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write consent file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write consent file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace consent file: %w", err)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/engramlabs/engram/internal/project"
	"github.com/engramlabs/engram/internal/scoring"
)

// Config is the validated runtime configuration assembled from Viper.
// Retrieval, Scoring, and the insight fidelity threshold are the
// hot-reloadable subset; everything else needs a restart.
type Config struct {
	Environment string `mapstructure:"environment" validate:"oneof=development production"`

	Log           LogConfig           `mapstructure:"log"`
	Project       ProjectConfig       `mapstructure:"project"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Scoring       ScoringConfig       `mapstructure:"scoring"`
	WorkingMemory WorkingMemoryConfig `mapstructure:"working_memory"`
	Insights      InsightsConfig      `mapstructure:"insights"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
}

// LogConfig controls stderr logging.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

// ProjectConfig names the tenant used when tools omit project_id.
type ProjectConfig struct {
	Default string `mapstructure:"default" validate:"required"`
}

// DatabaseConfig points at the SQLite file.
type DatabaseConfig struct {
	Path     string `mapstructure:"path" validate:"required"`
	PoolSize int    `mapstructure:"pool_size" validate:"min=1,max=64"`
}

// RetrievalConfig tunes hybrid search fusion.
type RetrievalConfig struct {
	RRFK        int  `mapstructure:"rrf_k" validate:"min=1"`
	ShadowAudit bool `mapstructure:"shadow_audit"`
}

// ScoringConfig seeds the composite-score calculator.
type ScoringConfig struct {
	Weights WeightsConfig `mapstructure:"weights"`
}

// WeightsConfig holds the four composite-score component weights. They are
// normalized before use, so they only need to be non-negative here.
type WeightsConfig struct {
	Relevance    float64 `mapstructure:"relevance" validate:"min=0"`
	Similarity   float64 `mapstructure:"similarity" validate:"min=0"`
	Recency      float64 `mapstructure:"recency" validate:"min=0"`
	Constitutive float64 `mapstructure:"constitutive" validate:"min=0"`
}

// Weights converts to the scoring package's shape.
func (w WeightsConfig) Weights() scoring.Weights {
	return scoring.Weights{
		Relevance:    w.Relevance,
		Similarity:   w.Similarity,
		Recency:      w.Recency,
		Constitutive: w.Constitutive,
	}
}

// WorkingMemoryConfig bounds the L1 buffer.
type WorkingMemoryConfig struct {
	Capacity int `mapstructure:"capacity" validate:"min=1"`
}

// InsightsConfig tunes L2 compression.
type InsightsConfig struct {
	FidelityThreshold float64 `mapstructure:"fidelity_threshold" validate:"min=0,max=1"`
}

// TelemetryConfig switches opt-in usage telemetry. Consent is recorded
// separately; this only allows or forbids it.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

var validate = validator.New()

// InitViper wires the layered lookup: an explicit file (or
// ~/.engram/config.yaml), then ENGRAM_* environment overrides. A missing
// config file is fine; a malformed one is not.
func InitViper(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if dir, err := GetGlobalConfigDir(); err == nil {
			viper.AddConfigPath(dir)
		}
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ENGRAM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Short env names from the service contract, on top of the automatic
	// ENGRAM_<SECTION>_<KEY> mapping.
	aliases := map[string]string{
		"database.path":               "ENGRAM_DB",
		"environment":                 "ENGRAM_ENV",
		"log.level":                   "ENGRAM_LOG_LEVEL",
		"project.default":             "ENGRAM_PROJECT",
		"retrieval.rrf_k":             "ENGRAM_RRF_K",
		"insights.fidelity_threshold": "ENGRAM_FIDELITY_THRESHOLD",
	}
	for key, env := range aliases {
		if err := viper.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load assembles the runtime configuration with defaults backfilled and
// validates it. Invalid configuration is a fatal startup error for callers.
func Load() (Config, error) {
	weights := scoring.DefaultWeights()

	cfg := Config{
		Environment: getStringWithDefault("environment", DefaultEnvironment),
		Log: LogConfig{
			Level: getStringWithDefault("log.level", DefaultLogLevel),
		},
		Project: ProjectConfig{
			Default: getStringWithDefault("project.default", DefaultProjectID),
		},
		Database: DatabaseConfig{
			Path:     getStringWithDefault("database.path", ""),
			PoolSize: getIntWithDefault("database.pool_size", DefaultPoolSize),
		},
		Retrieval: RetrievalConfig{
			RRFK:        getIntWithDefault("retrieval.rrf_k", DefaultRRFK),
			ShadowAudit: getBoolWithDefault("retrieval.shadow_audit", true),
		},
		Scoring: ScoringConfig{
			Weights: WeightsConfig{
				Relevance:    getFloat64WithDefault("scoring.weights.relevance", weights.Relevance),
				Similarity:   getFloat64WithDefault("scoring.weights.similarity", weights.Similarity),
				Recency:      getFloat64WithDefault("scoring.weights.recency", weights.Recency),
				Constitutive: getFloat64WithDefault("scoring.weights.constitutive", weights.Constitutive),
			},
		},
		WorkingMemory: WorkingMemoryConfig{
			Capacity: getIntWithDefault("working_memory.capacity", DefaultWorkingCapacity),
		},
		Insights: InsightsConfig{
			FidelityThreshold: getFloat64WithDefault("insights.fidelity_threshold", DefaultFidelityThreshold),
		},
		Telemetry: TelemetryConfig{
			Enabled: getBoolWithDefault("telemetry.enabled", true),
		},
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = DatabasePath()
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := project.Validate(cfg.Project.Default); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Helper functions for Viper with defaults

func getFloat64WithDefault(key string, defaultVal float64) float64 {
	if viper.IsSet(key) {
		return viper.GetFloat64(key)
	}
	return defaultVal
}

func getIntWithDefault(key string, defaultVal int) int {
	if viper.IsSet(key) {
		return viper.GetInt(key)
	}
	return defaultVal
}

func getBoolWithDefault(key string, defaultVal bool) bool {
	if viper.IsSet(key) {
		return viper.GetBool(key)
	}
	return defaultVal
}

func getStringWithDefault(key string, defaultVal string) string {
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultVal
}

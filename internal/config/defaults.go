// Package config centralizes engram's layered configuration: compiled
// defaults, ~/.engram/config.yaml, and ENGRAM_* environment overrides.
// All default values are defined here to keep a single source of truth.
package config

// Environment names
const (
	// EnvDevelopment enables verbose diagnostics
	EnvDevelopment = "development"

	// EnvProduction is the quiet default for installed services
	EnvProduction = "production"

	// DefaultEnvironment is used when nothing is configured
	DefaultEnvironment = EnvDevelopment
)

// DefaultLogLevel is the stderr log level when ENGRAM_LOG_LEVEL is unset
const DefaultLogLevel = "info"

// DefaultProjectID is the tenant used when a tool call omits project_id
const DefaultProjectID = "default"

// Storage defaults
const (
	// DefaultDatabaseFile is the SQLite file name under the data directory
	DefaultDatabaseFile = "engram.db"

	// DefaultPoolSize bounds concurrent SQLite connections
	DefaultPoolSize = 4
)

// Memory behavior defaults
const (
	// DefaultRRFK is the reciprocal-rank-fusion constant for hybrid search
	DefaultRRFK = 60

	// DefaultWorkingCapacity is the L1 working-memory slot count
	DefaultWorkingCapacity = 10

	// DefaultFidelityThreshold is the compression fidelity floor below
	// which insights carry a fidelity_warning
	DefaultFidelityThreshold = 0.7
)

// DefaultConfigFileName is the config file engram looks for in its config dir
const DefaultConfigFileName = "config.yaml"

package config

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/engramlabs/engram/internal/llm"
	"github.com/engramlabs/engram/internal/scoring"
)

// fsys is the filesystem the writer targets. Tests swap in a MemMapFs.
var fsys afero.Fs = afero.NewOsFs()

// starterConfig mirrors the Viper schema with yaml tags so the rendered
// file round-trips through InitViper/Load unchanged.
type starterConfig struct {
	Environment   string               `yaml:"environment"`
	Log           starterLog           `yaml:"log"`
	Project       starterProject       `yaml:"project"`
	Database      starterDatabase      `yaml:"database"`
	LLM           starterLLM           `yaml:"llm"`
	Retrieval     starterRetrieval     `yaml:"retrieval"`
	Scoring       starterScoring       `yaml:"scoring"`
	WorkingMemory starterWorkingMemory `yaml:"working_memory"`
	Insights      starterInsights      `yaml:"insights"`
	Telemetry     starterTelemetry     `yaml:"telemetry"`
}

type starterLog struct {
	Level string `yaml:"level"`
}

type starterProject struct {
	Default string `yaml:"default"`
}

type starterDatabase struct {
	Path     string `yaml:"path"`
	PoolSize int    `yaml:"pool_size"`
}

type starterLLM struct {
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embeddingModel"`
}

type starterRetrieval struct {
	RRFK        int  `yaml:"rrf_k"`
	ShadowAudit bool `yaml:"shadow_audit"`
}

type starterScoring struct {
	Weights starterWeights `yaml:"weights"`
}

type starterWeights struct {
	Relevance    float64 `yaml:"relevance"`
	Similarity   float64 `yaml:"similarity"`
	Recency      float64 `yaml:"recency"`
	Constitutive float64 `yaml:"constitutive"`
}

type starterWorkingMemory struct {
	Capacity int `yaml:"capacity"`
}

type starterInsights struct {
	FidelityThreshold float64 `yaml:"fidelity_threshold"`
}

type starterTelemetry struct {
	Enabled bool `yaml:"enabled"`
}

// sectionComments annotate the rendered file. Keys match top-level yaml keys.
var sectionComments = map[string]string{
	"environment":    "development | production (env: ENGRAM_ENV)",
	"log":            "level: debug | info | warn | error (env: ENGRAM_LOG_LEVEL)",
	"project":        "tenant used when tool calls omit project_id (env: ENGRAM_PROJECT)",
	"database":       "SQLite location; empty path resolves to ~/.engram/engram.db (env: ENGRAM_DB)",
	"llm":            "embedding + summarizer provider; API keys resolve from\nllm.apiKeys.<provider> or OPENAI_API_KEY / ANTHROPIC_API_KEY / GEMINI_API_KEY",
	"retrieval":      "rrf_k tunes rank fusion (env: ENGRAM_RRF_K); hot-reloaded while serve runs",
	"scoring":        "composite score weights, normalized before use; hot-reloaded while serve runs",
	"working_memory": "L1 buffer slot count",
	"insights":       "compressions scoring under fidelity_threshold carry a warning (env: ENGRAM_FIDELITY_THRESHOLD)",
	"telemetry":      "opt-in usage telemetry; consent is recorded separately",
}

// WriteStarterConfig renders the commented starter file for `config init`.
// It never clobbers an existing file.
func WriteStarterConfig(path string) error {
	exists, err := afero.Exists(fsys, path)
	if err != nil {
		return fmt.Errorf("check config file: %w", err)
	}
	if exists {
		return fmt.Errorf("config file already exists: %s", path)
	}

	data, err := renderStarterConfig()
	if err != nil {
		return err
	}

	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := afero.WriteFile(fsys, path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func renderStarterConfig() ([]byte, error) {
	weights := scoring.DefaultWeights()
	starter := starterConfig{
		Environment: DefaultEnvironment,
		Log:         starterLog{Level: DefaultLogLevel},
		Project:     starterProject{Default: DefaultProjectID},
		Database:    starterDatabase{Path: "", PoolSize: DefaultPoolSize},
		LLM: starterLLM{
			Provider:       llm.DefaultProvider,
			Model:          llm.DefaultChatModel(llm.DefaultProvider),
			EmbeddingModel: llm.DefaultOpenAIEmbeddingModel,
		},
		Retrieval: starterRetrieval{RRFK: DefaultRRFK, ShadowAudit: true},
		Scoring: starterScoring{Weights: starterWeights{
			Relevance:    weights.Relevance,
			Similarity:   weights.Similarity,
			Recency:      weights.Recency,
			Constitutive: weights.Constitutive,
		}},
		WorkingMemory: starterWorkingMemory{Capacity: DefaultWorkingCapacity},
		Insights:      starterInsights{FidelityThreshold: DefaultFidelityThreshold},
		Telemetry:     starterTelemetry{Enabled: true},
	}

	var root yaml.Node
	if err := root.Encode(starter); err != nil {
		return nil, fmt.Errorf("encode starter config: %w", err)
	}

	root.HeadComment = "engram configuration\nEvery key can be overridden as ENGRAM_<SECTION>_<KEY> in the environment."
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i]
		if comment, ok := sectionComments[key.Value]; ok {
			key.HeadComment = comment
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&root); err != nil {
		return nil, fmt.Errorf("render starter config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

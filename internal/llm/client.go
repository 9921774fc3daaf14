// Package llm constructs Eino chat models and embedders for the configured
// provider and normalizes provider throttle errors into a typed RateLimitError.
package llm

import (
	"context"
	"fmt"
	"os"

	geminiEmbed "github.com/cloudwego/eino-ext/components/embedding/gemini"
	ollamaEmbed "github.com/cloudwego/eino-ext/components/embedding/ollama"
	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
)

// Provider identifies the LLM provider to use.
type Provider string

// Config holds configuration for creating an LLM client.
type Config struct {
	Provider       Provider
	Model          string // Chat model for the insight summarizer
	EmbeddingModel string // Embedding model (optional, provider default when empty)
	APIKey         string // Required for hosted providers
	BaseURL        string // Required for Ollama (default: http://localhost:11434)
}

// NewChatModel creates a chat model based on the provider configuration. The
// result is used as the insight summarizer when compressing raw dialogue.
func NewChatModel(ctx context.Context, cfg Config) (model.BaseChatModel, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		if err := requireKey("OpenAI", cfg.APIKey); err != nil {
			return nil, err
		}
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			Model:  cfg.Model,
			APIKey: cfg.APIKey,
		})

	case ProviderOllama:
		return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: baseURLOrDefault(cfg.BaseURL),
			Model:   cfg.Model,
		})

	case ProviderAnthropic:
		if err := requireKey("anthropic", cfg.APIKey); err != nil {
			return nil, err
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey: cfg.APIKey,
			Model:  cfg.Model,
		})

	case ProviderGemini:
		if err := requireKey("gemini", cfg.APIKey); err != nil {
			return nil, err
		}
		// Gemini extension relies on environment variables
		_ = os.Setenv("GOOGLE_API_KEY", cfg.APIKey)
		_ = os.Setenv("GEMINI_API_KEY", cfg.APIKey)

		return gemini.NewChatModel(ctx, &gemini.Config{
			Model: cfg.Model,
		})

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s (supported: openai, ollama, anthropic, gemini)", cfg.Provider)
	}
}

// ValidateProvider checks if the given provider string is supported.
func ValidateProvider(p string) (Provider, error) {
	switch Provider(p) {
	case ProviderOpenAI:
		return ProviderOpenAI, nil
	case ProviderOllama:
		return ProviderOllama, nil
	case ProviderAnthropic:
		return ProviderAnthropic, nil
	case ProviderGemini:
		return ProviderGemini, nil
	default:
		return "", fmt.Errorf("unsupported provider: %s", p)
	}
}

// NewEmbedder creates an embedder for the configured provider. Throttle
// errors from the provider SDK surface as *RateLimitError so callers can
// back off and retry instead of failing the write.
func NewEmbedder(ctx context.Context, cfg Config) (embedding.Embedder, error) {
	inner, err := newProviderEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &classifyingEmbedder{inner: inner, provider: string(cfg.Provider)}, nil
}

func newProviderEmbedder(ctx context.Context, cfg Config) (embedding.Embedder, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		if err := requireKey("OpenAI", cfg.APIKey); err != nil {
			return nil, err
		}
		modelName := cfg.EmbeddingModel
		if modelName == "" {
			modelName = DefaultOpenAIEmbeddingModel
		}
		return openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
			Model:  modelName,
			APIKey: cfg.APIKey,
		})

	case ProviderOllama:
		modelName := cfg.EmbeddingModel
		if modelName == "" {
			modelName = DefaultOllamaEmbeddingModel
		}
		return ollamaEmbed.NewEmbedder(ctx, &ollamaEmbed.EmbeddingConfig{
			BaseURL: baseURLOrDefault(cfg.BaseURL),
			Model:   modelName,
		})

	case ProviderGemini:
		if err := requireKey("gemini", cfg.APIKey); err != nil {
			return nil, err
		}
		// Ensure env vars are set for the embedding client too
		_ = os.Setenv("GOOGLE_API_KEY", cfg.APIKey)
		_ = os.Setenv("GEMINI_API_KEY", cfg.APIKey)

		modelName := cfg.EmbeddingModel
		if modelName == "" {
			modelName = DefaultGeminiEmbeddingModel
		}
		return geminiEmbed.NewEmbedder(ctx, &geminiEmbed.EmbeddingConfig{
			Model: modelName,
		})

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (supported: openai, ollama, gemini)", cfg.Provider)
	}
}

func baseURLOrDefault(baseURL string) string {
	if baseURL == "" {
		return DefaultOllamaURL
	}
	return baseURL
}

// requireKey rejects missing keys and the placeholder values that ship in
// sample env files, without echoing the key itself.
func requireKey(name, key string) error {
	if key == "" {
		return fmt.Errorf("%s API key is required", name)
	}
	if placeholderKey(key) {
		return fmt.Errorf("%s API key looks like a placeholder, set a real key", name)
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/engramlabs/engram/internal/llm"
)

// LoadLLMConfig loads embedding/summarizer provider configuration from Viper
// and environment variables. Precedence: explicit Viper config > provider
// environment variables > defaults. A missing API key is not an error here;
// NewEmbedder/NewChatModel reject it when the provider actually needs one,
// which keeps keyless local setups (Ollama) working.
func LoadLLMConfig() (llm.Config, error) {
	// 1. Provider
	provider := viper.GetString("llm.provider")
	if provider == "" {
		provider = llm.DefaultProvider
	}

	llmProvider, err := llm.ValidateProvider(provider)
	if err != nil {
		return llm.Config{}, fmt.Errorf("invalid provider: %w", err)
	}

	// 2. Chat model (summarizer)
	model := viper.GetString("llm.model")
	if model == "" {
		model = llm.DefaultChatModel(string(llmProvider))
	}

	// 3. API key
	apiKey := ResolveAPIKey(llmProvider)

	// 4. Base URL (Ollama)
	baseURL := viper.GetString("llm.baseURL")
	if baseURL == "" && llmProvider == llm.ProviderOllama {
		baseURL = llm.DefaultOllamaURL
	}

	// 5. Embedding model
	embeddingModel := viper.GetString("llm.embeddingModel")
	if embeddingModel == "" {
		switch llmProvider {
		case llm.ProviderOpenAI:
			embeddingModel = llm.DefaultOpenAIEmbeddingModel
		case llm.ProviderOllama:
			embeddingModel = llm.DefaultOllamaEmbeddingModel
		case llm.ProviderGemini:
			embeddingModel = llm.DefaultGeminiEmbeddingModel
		}
	}

	return llm.Config{
		Provider:       llmProvider,
		Model:          model,
		EmbeddingModel: embeddingModel,
		APIKey:         apiKey,
		BaseURL:        baseURL,
	}, nil
}

// ResolveAPIKey returns the best API key for the given provider using
// per-provider config keys, then provider-specific env vars.
func ResolveAPIKey(provider llm.Provider) string {
	// 1) Per-provider config key (llm.apiKeys.<provider>)
	path := fmt.Sprintf("llm.apiKeys.%s", provider)
	if viper.IsSet(path) {
		if key := strings.TrimSpace(viper.GetString(path)); key != "" {
			return key
		}
	}

	// 2) Provider-specific env vars
	return providerEnvKey(provider)
}

func providerEnvKey(provider llm.Provider) string {
	switch provider {
	case llm.ProviderOpenAI:
		return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	case llm.ProviderAnthropic:
		return strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	case llm.ProviderGemini:
		key := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
		if key == "" {
			key = strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
		}
		return key
	default:
		return ""
	}
}

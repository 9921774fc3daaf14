package llm

// Provider constants
const (
	// DefaultProvider is the provider used when none is configured
	DefaultProvider = ProviderOpenAI

	// ProviderOpenAI represents the OpenAI provider
	ProviderOpenAI = "openai"

	// ProviderOllama represents the Ollama provider
	ProviderOllama = "ollama"

	// ProviderAnthropic represents the Anthropic provider
	ProviderAnthropic = "anthropic"

	// ProviderGemini represents the Google Gemini provider
	ProviderGemini = "gemini"
)

// Embedding model constants
const (
	// DefaultOpenAIEmbeddingModel is the default embedding model for OpenAI
	DefaultOpenAIEmbeddingModel = "text-embedding-3-small"

	// DefaultOllamaEmbeddingModel is the default embedding model for Ollama
	DefaultOllamaEmbeddingModel = "nomic-embed-text"

	// DefaultGeminiEmbeddingModel is the default embedding model for Gemini
	DefaultGeminiEmbeddingModel = "text-embedding-004"
)

// DefaultOllamaURL is the default URL for a local Ollama server
const DefaultOllamaURL = "http://localhost:11434"

// DefaultChatModel returns the default chat model ID for a provider, used
// for the insight summarizer when no model is configured explicitly.
func DefaultChatModel(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-5-mini-2025-08-07"
	case ProviderOllama:
		return "llama3.2"
	case ProviderAnthropic:
		return "claude-3-5-sonnet-latest"
	case ProviderGemini:
		return "gemini-2.0-flash"
	default:
		return ""
	}
}

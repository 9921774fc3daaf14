package llm

// DefaultDimensions is the vector width assumed when a model is not in the
// registry. Matches text-embedding-3-small.
const DefaultDimensions = 1536

// EmbeddingModel represents an embedding model definition.
type EmbeddingModel struct {
	ID         string // Canonical model ID
	Provider   string // Provider display name
	ProviderID string // Internal provider ID
	Dimensions int    // Output embedding dimensions
	MaxTokens  int    // Max input tokens
	IsDefault  bool   // Default model for this provider
}

// EmbeddingRegistry is the single source of truth for embedding models.
var EmbeddingRegistry = []EmbeddingModel{
	// OpenAI
	// https://platform.openai.com/docs/guides/embeddings
	{
		ID:         "text-embedding-3-large",
		Provider:   "OpenAI",
		ProviderID: ProviderOpenAI,
		Dimensions: 3072,
		MaxTokens:  8191,
	},
	{
		ID:         "text-embedding-3-small",
		Provider:   "OpenAI",
		ProviderID: ProviderOpenAI,
		Dimensions: 1536,
		MaxTokens:  8191,
		IsDefault:  true,
	},

	// Google Gemini
	// https://ai.google.dev/gemini-api/docs/embeddings
	{
		ID:         "text-embedding-004",
		Provider:   "Google",
		ProviderID: ProviderGemini,
		Dimensions: 768,
		MaxTokens:  2048,
		IsDefault:  true,
	},

	// Ollama (local)
	{
		ID:         "nomic-embed-text",
		Provider:   "Ollama",
		ProviderID: ProviderOllama,
		Dimensions: 768,
		MaxTokens:  8192,
		IsDefault:  true,
	},
	{
		ID:         "mxbai-embed-large",
		Provider:   "Ollama",
		ProviderID: ProviderOllama,
		Dimensions: 1024,
		MaxTokens:  512,
	},
	{
		ID:         "all-minilm",
		Provider:   "Ollama",
		ProviderID: ProviderOllama,
		Dimensions: 384,
		MaxTokens:  256,
	},
}

// embeddingIndex is built at init time for fast lookups
var embeddingIndex map[string]*EmbeddingModel

func init() {
	buildEmbeddingIndex()
}

func buildEmbeddingIndex() {
	embeddingIndex = make(map[string]*EmbeddingModel)
	for i := range EmbeddingRegistry {
		m := &EmbeddingRegistry[i]
		embeddingIndex[m.ID] = m
	}
}

// GetEmbeddingModel returns the embedding model for a given ID, or nil when
// the ID is not in the registry.
func GetEmbeddingModel(modelID string) *EmbeddingModel {
	return embeddingIndex[modelID]
}

// GetDefaultEmbeddingModel returns the default embedding model for a provider.
func GetDefaultEmbeddingModel(providerID string) *EmbeddingModel {
	for i := range EmbeddingRegistry {
		m := &EmbeddingRegistry[i]
		if m.ProviderID == providerID && m.IsDefault {
			return m
		}
	}
	return nil
}

// Dimensions reports the vector width produced by a model, falling back to
// DefaultDimensions for models the registry does not know.
func Dimensions(modelID string) int {
	if m := GetEmbeddingModel(modelID); m != nil {
		return m.Dimensions
	}
	return DefaultDimensions
}

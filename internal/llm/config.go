// Package llm provides centralized model configuration and the Gemini client
// used by the SEGMENT, ENHANCE and ACTION stages.
package llm

// ModelTier represents the complexity/capability level of a model
type ModelTier string

const (
	// TierLite is for cheap passes: segmentation, short summaries
	TierLite ModelTier = "lite"
	// TierStandard is for per-agent enhancement notes
	TierStandard ModelTier = "standard"
	// TierAdvanced is for the final multimodal video analysis
	TierAdvanced ModelTier = "advanced"
)

// Provider represents an LLM provider
type Provider string

// ProviderGemini is the only supported provider.
const ProviderGemini Provider = "gemini"

// DefaultEmbeddingModel is used when Config.EmbeddingModel is empty.
const DefaultEmbeddingModel = "text-embedding-004"

// Config holds the model configuration for the application
type Config struct {
	Provider       Provider
	Models         map[ModelTier]string
	EmbeddingModel string
	Temperature    float32
}

// DefaultConfig returns the default configuration (currently Gemini)
func DefaultConfig() *Config {
	return DefaultGeminiConfig()
}

// DefaultGeminiConfig returns the default Gemini configuration
func DefaultGeminiConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
		EmbeddingModel: DefaultEmbeddingModel,
		Temperature:    0.1,
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: try standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return "" // No model configured
}

// GetEmbeddingModel returns the embedding model name.
func (c *Config) GetEmbeddingModel() string {
	if c.EmbeddingModel == "" {
		return DefaultEmbeddingModel
	}
	return c.EmbeddingModel
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := &Config{
		Provider:       c.Provider,
		Models:         make(map[ModelTier]string),
		EmbeddingModel: c.EmbeddingModel,
		Temperature:    c.Temperature,
	}
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	newConfig.Models[tier] = model
	return newConfig
}

package llm

import (
	"fmt"

	"github.com/attachehq/attache/internal/config"
)

// NewEmbeddingGenerator constructs the embedding provider selected by the
// configuration. Supported providers: "ollama", "openai", "static".
func NewEmbeddingGenerator(cfg *config.Config) (EmbeddingGenerator, error) {
	switch cfg.Embedding.Provider {
	case "ollama":
		return NewOllamaClient(OllamaConfig{
			BaseURL:   cfg.Embedding.OllamaURL,
			Model:     cfg.Embedding.OllamaModel,
			Dimension: cfg.Embedding.Dimension,
		}), nil
	case "openai":
		if cfg.Embedding.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai embedding provider requires an API key")
		}
		return NewOpenAIClient(OpenAIConfig{
			APIKey:    cfg.Embedding.OpenAIAPIKey,
			Model:     cfg.Embedding.OpenAIModel,
			Dimension: cfg.Embedding.Dimension,
			BaseURL:   cfg.Embedding.OpenAIBaseURL,
		}), nil
	case "static":
		return NewStaticEmbedder(cfg.Embedding.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAIConfig holds configuration for the OpenAI embedding client.
type OpenAIConfig struct {
	APIKey string

	// Model is the embedding model (default: text-embedding-3-small).
	Model string

	// Dimension is the vector dimension the model produces (default: 1536).
	Dimension int

	// BaseURL overrides the API endpoint, e.g. for a LiteLLM proxy.
	BaseURL string

	// RequestsPerSecond caps outbound calls (default: 5).
	RequestsPerSecond float64
}

// OpenAIClient generates embeddings via the OpenAI embeddings API.
type OpenAIClient struct {
	client         *openai.Client
	model          string
	dimension      int
	circuitBreaker *CircuitBreaker
	limiter        *rate.Limiter
}

var _ EmbeddingGenerator = (*OpenAIClient)(nil)

// NewOpenAIClient creates an OpenAI embedding client, filling in defaults
// for zero-value configuration.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 1536
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 5
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client:         openai.NewClientWithConfig(clientCfg),
		model:          cfg.Model,
		dimension:      cfg.Dimension,
		circuitBreaker: NewCircuitBreaker(),
		limiter:        rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

// Embed generates an embedding for the given text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(c.model),
			Input: []string{text},
		})
		if err != nil {
			return nil, fmt.Errorf("openai embed request failed: %w", err)
		}
		if len(resp.Data) == 0 {
			return nil, fmt.Errorf("openai embed returned no embeddings")
		}
		return resp.Data[0].Embedding, nil
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("openai circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result.([]float32), nil
}

// GetModel returns the embedding model name.
func (c *OpenAIClient) GetModel() string { return c.model }

// Dimension returns the configured embedding dimension.
func (c *OpenAIClient) Dimension() int { return c.dimension }

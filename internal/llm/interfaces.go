// Package llm provides the embedding providers used by the similarity
// index, with circuit-breaker and rate-limit protection on outbound calls.
package llm

import "context"

// EmbeddingGenerator is the interface for generating vector embeddings.
type EmbeddingGenerator interface {
	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// GetModel returns the embedding model identifier.
	GetModel() string

	// Dimension returns the vector dimension this generator produces.
	Dimension() int
}

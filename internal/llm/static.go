package llm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
)

// StaticEmbedder is a deterministic, offline embedding generator. Each
// whitespace token is hashed onto the vector space and the result is
// L2-normalized, so identical texts always embed identically and texts
// sharing tokens score above unrelated ones.
//
// It exists for environments without an embedding backend (and for tests);
// retrieval quality is far below a real model.
type StaticEmbedder struct {
	dimension int
}

var _ EmbeddingGenerator = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a static embedder with the given dimension
// (default: 256).
func NewStaticEmbedder(dimension int) *StaticEmbedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &StaticEmbedder{dimension: dimension}
}

// Embed hashes each token into the vector and normalizes the result.
func (s *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, s.dimension)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(token))
		idx := int(binary.BigEndian.Uint32(sum[:4])) % s.dimension
		sign := float32(1)
		if sum[4]&1 == 1 {
			sign = -1
		}
		vec[idx] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// GetModel returns the static model identifier.
func (s *StaticEmbedder) GetModel() string { return "static-hash" }

// Dimension returns the configured embedding dimension.
func (s *StaticEmbedder) Dimension() int { return s.dimension }

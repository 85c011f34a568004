// Package vector implements the similarity index service: one shared
// collection of embedding points covering entities of every type,
// distinguished by an entity_type payload tag.
package vector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"

	"github.com/viterin/vek/vek32"
)

var (
	// ErrPointNotFound indicates that no point exists for the given key.
	ErrPointNotFound = errors.New("vector point not found")
)

// Point is one entry in the shared collection. The payload always carries
// entity_id and entity_type; everything else is adapter-chosen.
type Point struct {
	ID         string                 // deterministic hash of the entity ID
	EntityID   string
	EntityType string
	Preview    string // text preview of the embedded content
	Payload    map[string]interface{}
	Embedding  []float32
}

// Hit is one search result before hydration.
type Hit struct {
	EntityID   string
	EntityType string
	Score      float64
	Preview    string
	Payload    map[string]interface{}
}

// CollectionInfo summarizes the state of the collection.
type CollectionInfo struct {
	Points    int            `json:"points"`
	ByType    map[string]int `json:"by_type"`
	Dimension int            `json:"dimension"`
	Model     string         `json:"model"`
}

// PointStore persists and searches embedding points. Both implementations
// treat Upsert as last-write-wins keyed by the deterministic point ID.
type PointStore interface {
	Upsert(ctx context.Context, p *Point) error
	Search(ctx context.Context, query []float32, entityTypes []string, limit int, minScore float64) ([]Hit, error)
	DeleteByEntityID(ctx context.Context, entityID string) error
	CountByType(ctx context.Context) (map[string]int, error)
	Close() error
}

// PointID computes the deterministic point key for an entity ID, so
// re-indexing is an upsert rather than a duplicate insert.
func PointID(entityID string) string {
	sum := sha256.Sum256([]byte(entityID))
	return hex.EncodeToString(sum[:16])
}

// cosineSimilarity returns the cosine similarity of two vectors, mapping
// the zero-vector NaN case to 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	result := vek32.CosineSimilarity(a, b)
	if math.IsNaN(float64(result)) {
		return 0
	}
	return float64(result)
}

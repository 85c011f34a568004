package vector

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/attachehq/attache/internal/llm"
)

// Service owns the shared similarity index. It embeds text through the
// injected generator and delegates point persistence to the configured
// store. One Service instance is constructed at process start and shared
// by reference; it holds no mutable state of its own.
type Service struct {
	embedder llm.EmbeddingGenerator
	points   PointStore
	logger   *zap.Logger
}

// NewService creates the similarity index service.
func NewService(embedder llm.EmbeddingGenerator, points PointStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		embedder: embedder,
		points:   points,
		logger:   logger,
	}
}

// previewLen bounds the stored text preview.
const previewLen = 200

// IndexEntity embeds text and upserts the entity's point, returning the
// deterministic point ID. Empty or whitespace-only text embeds to the zero
// vector instead of failing, so entities with no prose stay addressable.
func (s *Service) IndexEntity(ctx context.Context, entityID, entityType, text string, extraPayload map[string]interface{}) (string, error) {
	if entityID == "" || entityType == "" {
		return "", fmt.Errorf("entity ID and type are required")
	}

	var (
		embedding []float32
		err       error
	)
	if strings.TrimSpace(text) == "" {
		embedding = make([]float32, s.embedder.Dimension())
	} else {
		embedding, err = s.embedder.Embed(ctx, text)
		if err != nil {
			return "", fmt.Errorf("failed to embed entity %s: %w", entityID, err)
		}
	}

	payload := map[string]interface{}{
		"entity_id":   entityID,
		"entity_type": entityType,
	}
	for k, v := range extraPayload {
		if k == "entity_id" || k == "entity_type" {
			continue
		}
		payload[k] = v
	}

	p := &Point{
		ID:         PointID(entityID),
		EntityID:   entityID,
		EntityType: entityType,
		Preview:    truncatePreview(text),
		Payload:    payload,
		Embedding:  embedding,
	}
	if err := s.points.Upsert(ctx, p); err != nil {
		return "", fmt.Errorf("failed to upsert point for %s: %w", entityID, err)
	}
	return p.ID, nil
}

// Search embeds the query and returns hits at or above scoreThreshold,
// score-descending. A non-empty entityTypes set restricts results with OR
// semantics. Results below the threshold are excluded, not ranked low;
// callers wanting everything pass a threshold of 0.
func (s *Service) Search(ctx context.Context, query string, entityTypes []string, limit int, scoreThreshold float64) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit < 1 {
		limit = 10
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := s.points.Search(ctx, embedding, entityTypes, limit, scoreThreshold)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return hits, nil
}

// DeleteEntity removes the entity's point. Deleting an unindexed entity is
// not an error.
func (s *Service) DeleteEntity(ctx context.Context, entityID string) error {
	return s.points.DeleteByEntityID(ctx, entityID)
}

// CountByType returns the number of points per entity type tag.
func (s *Service) CountByType(ctx context.Context) (map[string]int, error) {
	return s.points.CountByType(ctx)
}

// CollectionInfo summarizes the collection for health checks.
func (s *Service) CollectionInfo(ctx context.Context) (*CollectionInfo, error) {
	byType, err := s.points.CountByType(ctx)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range byType {
		total += n
	}
	return &CollectionInfo{
		Points:    total,
		ByType:    byType,
		Dimension: s.embedder.Dimension(),
		Model:     s.embedder.GetModel(),
	}, nil
}

func truncatePreview(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= previewLen {
		return text
	}
	n := previewLen
	for n > 0 && text[n]&0xC0 == 0x80 {
		n--
	}
	return text[:n]
}

// Package datalayer implements the mediating data layer service: the single
// component through which every entity read and write flows. It routes by
// entity-type prefix to the matching adapter, sequences relational writes
// with similarity-index writes, owns the relationship table, and hydrates
// read results.
package datalayer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/attachehq/attache/internal/storage"
	"github.com/attachehq/attache/internal/vector"
	"github.com/attachehq/attache/pkg/types"
)

// Service is the mediator. The adapter registry is built once at
// construction and read-only afterwards, so the service is safe for
// concurrent use by any number of callers.
//
// The relational store and the similarity index are eventually consistent
// by design: the relational write commits first, and an index failure
// afterwards is logged but does not fail the operation. The relational
// store is authoritative; the index is a derived artifact rebuildable via
// the indexer's reindex path.
type Service struct {
	adapters map[string]storage.EntityAdapter
	generic  storage.EntityAdapter
	rels     storage.RelationshipStore
	vectors  *vector.Service
	logger   *zap.Logger
}

// New constructs the data layer service. Concrete adapters register under
// their type tag; generic serves every other tag.
func New(adapters []storage.EntityAdapter, generic storage.EntityAdapter, rels storage.RelationshipStore, vectors *vector.Service, logger *zap.Logger) (*Service, error) {
	if generic == nil {
		return nil, fmt.Errorf("generic adapter is required")
	}
	if rels == nil {
		return nil, fmt.Errorf("relationship store is required")
	}
	if vectors == nil {
		return nil, fmt.Errorf("vector service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := make(map[string]storage.EntityAdapter, len(adapters))
	for _, a := range adapters {
		tag := a.EntityType()
		if tag == "" {
			return nil, fmt.Errorf("concrete adapter with empty type tag")
		}
		if _, dup := registry[tag]; dup {
			return nil, fmt.Errorf("duplicate adapter for type %q", tag)
		}
		registry[tag] = a
	}

	return &Service{
		adapters: registry,
		generic:  generic,
		rels:     rels,
		vectors:  vectors,
		logger:   logger,
	}, nil
}

// AdapterFor resolves the adapter serving an entity type tag.
func (s *Service) AdapterFor(entityType string) storage.EntityAdapter {
	if a, ok := s.adapters[entityType]; ok {
		return a
	}
	return s.generic
}

// adapterForID resolves the adapter from an entity ID's type prefix.
func (s *Service) adapterForID(id string) (storage.EntityAdapter, error) {
	entityType := types.TypeFromID(id)
	if entityType == "" {
		return nil, fmt.Errorf("%w: ID %q carries no type prefix", storage.ErrInvalidInput, id)
	}
	return s.AdapterFor(entityType), nil
}

// StoreEntity writes the entity through its adapter, then upserts the
// similarity-index point and records the point reference in metadata.
//
// Ordering: the relational write happens first and its failure aborts the
// operation, so an index point can never exist without a row. If the index
// step fails after the relational commit, the failure is logged and the
// store still reports success (recoverable via reindex).
func (s *Service) StoreEntity(ctx context.Context, e *types.Entity) (string, error) {
	if e == nil {
		return "", storage.ErrInvalidInput
	}
	if e.EntityType == "" {
		e.EntityType = types.TypeFromID(e.ID)
	}
	if e.EntityType == "" {
		return "", fmt.Errorf("%w: entity type is required", storage.ErrInvalidInput)
	}

	adapter := s.AdapterFor(e.EntityType)

	text := adapter.EmbeddingText(e)
	s.bumpBookkeeping(e, text)
	id, err := adapter.Store(ctx, e)
	if err != nil {
		return "", fmt.Errorf("relational store failed for type %s: %w", e.EntityType, err)
	}
	e.ID = id

	pointID, err := s.vectors.IndexEntity(ctx, id, e.EntityType, text, adapter.IndexPayload(e))
	if err != nil {
		// Accepted gap: row committed, point missing until reindex.
		s.logger.Warn("index write failed after relational commit",
			zap.String("entity_id", id),
			zap.Error(err))
		return id, nil
	}

	e.SetMetadata(types.MetaVectorPointID, pointID)
	if _, err := adapter.Store(ctx, e); err != nil {
		s.logger.Warn("failed to record point reference",
			zap.String("entity_id", id),
			zap.Error(err))
	}
	return id, nil
}

// UpdateEntity applies a partial update to an existing entity, then
// re-embeds and re-upserts its index point. Returns false when the entity
// does not exist. An index failure after the relational update is logged
// and the update still reports success.
func (s *Service) UpdateEntity(ctx context.Context, id string, update EntityUpdate) (bool, error) {
	adapter, err := s.adapterForID(id)
	if err != nil {
		return false, err
	}

	e, err := adapter.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	applyPartition(&e.Structured, update.Structured)
	applyPartition(&e.Analyzed, update.Analyzed)
	applyPartition(&e.Metadata, update.Metadata)

	if _, err := s.StoreEntity(ctx, e); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteEntity removes the entity: relational row (or tombstone for generic
// types), then best-effort index point, then every relationship edge
// touching the ID. Returns false when the entity did not exist.
func (s *Service) DeleteEntity(ctx context.Context, id string) (bool, error) {
	adapter, err := s.adapterForID(id)
	if err != nil {
		return false, err
	}

	deleted, err := adapter.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}

	if err := s.vectors.DeleteEntity(ctx, id); err != nil {
		s.logger.Warn("index delete failed",
			zap.String("entity_id", id),
			zap.Error(err))
	}

	if _, err := s.rels.DeleteForEntity(ctx, id); err != nil {
		return true, fmt.Errorf("entity deleted but relationship cleanup failed: %w", err)
	}
	return true, nil
}

// CreateRelationship upserts the directed edge between two entity IDs.
// Re-creating an existing (from, to, type) triple updates its metadata and
// still reports success; the returned bool is true only for a new edge.
func (s *Service) CreateRelationship(ctx context.Context, fromID, toID, relType string, metadata map[string]interface{}) (bool, error) {
	fromType := types.TypeFromID(fromID)
	toType := types.TypeFromID(toID)
	if fromType == "" || toType == "" {
		return false, fmt.Errorf("%w: relationship endpoints must carry type prefixes", storage.ErrInvalidInput)
	}
	return s.rels.Upsert(ctx, &types.Relationship{
		FromID:   fromID,
		FromType: fromType,
		ToID:     toID,
		ToType:   toType,
		Type:     relType,
		Metadata: metadata,
	})
}

// GetEntity fetches the entity and hydrates its relationship edges, split
// into outgoing and incoming relative to the entity's own ID.
func (s *Service) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	adapter, err := s.adapterForID(id)
	if err != nil {
		return nil, err
	}

	e, err := adapter.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	edges, err := s.rels.ForEntity(ctx, id, nil)
	if err != nil {
		return nil, fmt.Errorf("relationship hydration failed for %s: %w", id, err)
	}
	if len(edges) > 0 {
		rels := &types.EntityRelationships{}
		for _, edge := range edges {
			if edge.FromID == id {
				rels.Outgoing = append(rels.Outgoing, edge)
			} else {
				rels.Incoming = append(rels.Incoming, edge)
			}
		}
		e.Relationships = rels
	}
	return e, nil
}

// VectorSearch runs a semantic query and hydrates each hit into a full
// entity. Hits whose entity vanished between index and hydrate (a deletion
// racing the search) are silently skipped.
func (s *Service) VectorSearch(ctx context.Context, query string, entityTypes []string, limit int, scoreThreshold float64) ([]types.SearchResult, error) {
	hits, err := s.vectors.Search(ctx, query, entityTypes, limit, scoreThreshold)
	if err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(hits))
	for _, hit := range hits {
		e, err := s.GetEntity(ctx, hit.EntityID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				s.logger.Debug("skipping dangling index point",
					zap.String("entity_id", hit.EntityID))
				continue
			}
			return nil, err
		}
		results = append(results, types.SearchResult{Entity: e, Score: hit.Score})
	}
	return results, nil
}

// StructuredQuery runs an adapter filter query for one entity type.
// Generic types must include an entity_type filter implicitly; it is added
// here so callers address them uniformly.
func (s *Service) StructuredQuery(ctx context.Context, entityType string, filters []storage.Filter, limit int) ([]*types.Entity, error) {
	if entityType == "" {
		return nil, fmt.Errorf("%w: entity type is required", storage.ErrInvalidInput)
	}
	adapter := s.AdapterFor(entityType)
	if adapter == s.generic {
		filters = append([]storage.Filter{storage.Eq("entity_type", entityType)}, filters...)
	}
	return adapter.Query(ctx, filters, limit)
}

// GetRelationships returns every edge touching the entity, optionally
// restricted by relationship type.
func (s *Service) GetRelationships(ctx context.Context, id string, relTypes []string) ([]types.Relationship, error) {
	return s.rels.ForEntity(ctx, id, relTypes)
}

// CollectionInfo exposes the similarity index summary for health checks.
func (s *Service) CollectionInfo(ctx context.Context) (*vector.CollectionInfo, error) {
	return s.vectors.CollectionInfo(ctx)
}

// ReindexEntity re-runs the embedding step against the current stored state
// without re-normalizing from the source payload. This is the repair path
// for rows whose index write was lost to a crash or index outage; unlike
// StoreEntity, an index failure here is returned to the caller. Returns
// false when the entity does not exist.
func (s *Service) ReindexEntity(ctx context.Context, id string) (bool, error) {
	adapter, err := s.adapterForID(id)
	if err != nil {
		return false, err
	}

	e, err := adapter.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	text := adapter.EmbeddingText(e)
	pointID, err := s.vectors.IndexEntity(ctx, id, e.EntityType, text, adapter.IndexPayload(e))
	if err != nil {
		return false, fmt.Errorf("reindex failed for %s: %w", id, err)
	}

	e.SetMetadata(types.MetaVectorPointID, pointID)
	e.SetMetadata(types.MetaContentHash, contentHash(text))
	e.SetMetadata(types.MetaIndexedAt, time.Now().UTC().Format(time.RFC3339))
	if _, err := adapter.Store(ctx, e); err != nil {
		return false, fmt.Errorf("reindex bookkeeping failed for %s: %w", id, err)
	}
	return true, nil
}

// bumpBookkeeping stamps index time, the embedding-text content hash, and
// the version counter.
func (s *Service) bumpBookkeeping(e *types.Entity, embeddingText string) {
	version := 1
	if v, ok := e.Metadata[types.MetaVersion]; ok {
		version = int(toFloat(v)) + 1
	}
	e.SetMetadata(types.MetaVersion, version)
	e.SetMetadata(types.MetaIndexedAt, time.Now().UTC().Format(time.RFC3339))
	e.SetMetadata(types.MetaContentHash, contentHash(embeddingText))
}

// contentHash fingerprints the embedding text so stale index points are
// detectable without re-embedding.
func contentHash(text string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(text)))
}

// applyPartition merges update keys into dst, allocating it when needed.
func applyPartition(dst *map[string]interface{}, update map[string]interface{}) {
	if len(update) == 0 {
		return
	}
	if *dst == nil {
		*dst = make(map[string]interface{}, len(update))
	}
	for k, v := range update {
		(*dst)[k] = v
	}
}

func toFloat(v interface{}) float64 {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float64:
		return t
	case float32:
		return float64(t)
	}
	return 0
}

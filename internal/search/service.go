// Package search implements the reader role: read-only retrieval over the
// entity index for task workers. It never writes; ingestion and repair go
// through the indexer role.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/attachehq/attache/internal/datalayer"
	"github.com/attachehq/attache/internal/storage"
	"github.com/attachehq/attache/pkg/types"
)

const (
	defaultMaxResults   = 10
	defaultHintEdgeCap  = 10
	relevanceThreshold  = 0.3
	conversationMemsCap = 5
)

// Service is the read-only retrieval surface. Safe for concurrent use.
type Service struct {
	data      *datalayer.Service
	threshold float64
	logger    *zap.Logger
}

// New constructs the search role. threshold is the minimum similarity score
// for semantic results; zero or negative falls back to the default cutoff.
func New(data *datalayer.Service, threshold float64, logger *zap.Logger) *Service {
	if threshold <= 0 {
		threshold = relevanceThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{data: data, threshold: threshold, logger: logger}
}

// SearchForTask assembles a context bundle for one task worker call. The
// task description drives a semantic pass, entity hints resolve to direct
// lookups plus their one-hop neighborhoods, and the consumer's enrichment
// rules add the standing context that worker always wants.
func (s *Service) SearchForTask(ctx context.Context, consumer, taskDescription string, entityHints []string, maxResults int) (*types.ContextBundle, error) {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	bundle := &types.ContextBundle{
		Entities: make(map[string][]*types.Entity),
		Graph:    make(map[string][]types.Relationship),
		Retrieval: types.RetrievalMeta{
			Consumer:  consumer,
			Timestamp: time.Now().UTC(),
		},
	}

	if strings.TrimSpace(taskDescription) != "" {
		results, err := s.data.VectorSearch(ctx, taskDescription, nil, maxResults, s.threshold)
		if err != nil {
			s.logger.Warn("semantic pass failed, continuing with hints and enrichment",
				zap.String("consumer", consumer),
				zap.Error(err))
		} else {
			for _, r := range results {
				bundle.Add(r.Entity)
			}
		}
	}

	for _, hint := range entityHints {
		if err := s.resolveHint(ctx, bundle, hint); err != nil {
			s.logger.Debug("entity hint unresolved",
				zap.String("hint", hint),
				zap.Error(err))
		}
	}

	s.applyEnrichment(ctx, bundle, consumer)

	bundle.Retrieval.TotalEntities = bundle.Total()
	bundle.Summary = summarize(bundle)
	return bundle, nil
}

// SemanticSearch runs a similarity query, optionally restricted to the
// given entity types, returning hydrated entities above the score cutoff
// in descending score order.
func (s *Service) SemanticSearch(ctx context.Context, query string, entityTypes []string, limit int) ([]types.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = defaultMaxResults
	}
	return s.data.VectorSearch(ctx, query, entityTypes, limit, s.threshold)
}

// GetEntity fetches one entity by ID with its relationships attached.
func (s *Service) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	return s.data.GetEntity(ctx, id)
}

// Query runs a structured filter query against one entity type's store.
func (s *Service) Query(ctx context.Context, entityType string, filters []storage.Filter, limit int) ([]*types.Entity, error) {
	return s.data.StructuredQuery(ctx, entityType, filters, limit)
}

// Traverse returns the entities one hop out from id, following edges of
// the given types in either direction (nil relTypes follows all).
func (s *Service) Traverse(ctx context.Context, id string, relTypes []string) ([]*types.Entity, []types.Relationship, error) {
	rels, err := s.data.GetRelationships(ctx, id, relTypes)
	if err != nil {
		return nil, nil, err
	}

	var neighbors []*types.Entity
	seen := map[string]bool{id: true}
	for _, rel := range rels {
		otherID := rel.ToID
		if otherID == id {
			otherID = rel.FromID
		}
		if seen[otherID] {
			continue
		}
		seen[otherID] = true

		e, err := s.data.GetEntity(ctx, otherID)
		if err != nil {
			s.logger.Debug("dangling relationship endpoint",
				zap.String("entity_id", otherID),
				zap.Error(err))
			continue
		}
		neighbors = append(neighbors, e)
	}
	return neighbors, rels, nil
}

// TemporalSearch returns entities whose date field falls in [start, end].
// Zero-value bounds are open. An empty entityType spans every dated type;
// the date field per type: emails by date, meetings by start_time,
// follow-ups by due_date.
func (s *Service) TemporalSearch(ctx context.Context, entityType string, start, end time.Time, limit int) ([]*types.Entity, error) {
	var startStr, endStr string
	if !start.IsZero() {
		startStr = start.UTC().Format(time.RFC3339)
	}
	if !end.IsZero() {
		endStr = end.UTC().Format(time.RFC3339)
	}

	if entityType != "" {
		field, ok := temporalFields[entityType]
		if !ok {
			return nil, fmt.Errorf("%w: no temporal field for type %q", storage.ErrUnsupportedFilter, entityType)
		}
		return s.data.StructuredQuery(ctx, entityType, storage.Range(field, startStr, endStr), limit)
	}

	var out []*types.Entity
	for _, t := range temporalTypes {
		entities, err := s.data.StructuredQuery(ctx, t, storage.Range(temporalFields[t], startStr, endStr), limit)
		if err != nil {
			return nil, err
		}
		out = append(out, entities...)
	}
	return out, nil
}

// temporalTypes fixes the cross-type scan order.
var temporalTypes = []string{
	types.EntityTypeEmail,
	types.EntityTypeMeeting,
	types.EntityTypeFollowUp,
}

var temporalFields = map[string]string{
	types.EntityTypeEmail:    "date",
	types.EntityTypeMeeting:  "start_time",
	types.EntityTypeFollowUp: "due_date",
}

// RelevantMemories returns conversation memories for a turn: the current
// conversation's own memories plus semantically similar ones from any
// conversation, deduplicated, most relevant first.
func (s *Service) RelevantMemories(ctx context.Context, conversationID, query string, limit int) ([]*types.Entity, error) {
	if limit <= 0 {
		limit = defaultMaxResults
	}

	var out []*types.Entity
	seen := make(map[string]bool)

	if strings.TrimSpace(query) != "" {
		results, err := s.data.VectorSearch(ctx, query, []string{types.EntityTypeMemory}, limit, s.threshold)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			if !seen[r.Entity.ID] {
				seen[r.Entity.ID] = true
				out = append(out, r.Entity)
			}
		}
	}

	if conversationID != "" {
		own, err := s.data.StructuredQuery(ctx, types.EntityTypeMemory,
			[]storage.Filter{storage.Eq("structured.conversation_id", conversationID)},
			conversationMemsCap)
		if err != nil {
			return nil, err
		}
		for _, e := range own {
			if !seen[e.ID] {
				seen[e.ID] = true
				out = append(out, e)
			}
		}
	}

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// resolveHint resolves one entity hint into the bundle. A hint is either a
// full entity ID or a bare email address (resolved to its contact ID). The
// resolved entity's one-hop edges land in the bundle graph.
func (s *Service) resolveHint(ctx context.Context, bundle *types.ContextBundle, hint string) error {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return nil
	}

	id := hint
	if strings.Contains(hint, "@") && types.TypeFromID(hint) == "" {
		id = types.NewEntityID(types.EntityTypeContact, hint)
	}

	e, err := s.data.GetEntity(ctx, id)
	if err != nil {
		return err
	}
	bundle.Add(e)

	rels, err := s.data.GetRelationships(ctx, id, nil)
	if err != nil {
		return err
	}
	if len(rels) > defaultHintEdgeCap {
		rels = rels[:defaultHintEdgeCap]
	}
	if len(rels) > 0 {
		bundle.Graph[id] = rels
	}
	return nil
}

// summarize renders the bundle tally, buckets in stable type order.
func summarize(b *types.ContextBundle) string {
	if b.Total() == 0 {
		return "No relevant context found"
	}

	typeTags := make([]string, 0, len(b.Entities))
	for tag, bucket := range b.Entities {
		if len(bucket) > 0 {
			typeTags = append(typeTags, tag)
		}
	}
	sort.Strings(typeTags)

	parts := make([]string, 0, len(typeTags))
	for _, tag := range typeTags {
		parts = append(parts, fmt.Sprintf("%d %s", len(b.Entities[tag]), pluralize(tag, len(b.Entities[tag]))))
	}
	return "Context includes: " + strings.Join(parts, ", ")
}

func pluralize(tag string, n int) string {
	if n == 1 {
		return tag
	}
	return tag + "s"
}

package search

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/attachehq/attache/internal/storage"
	"github.com/attachehq/attache/pkg/types"
)

// enrichment is one standing query a consumer always wants in its bundle,
// regardless of the task description.
type enrichment struct {
	entityType string
	filters    func(now time.Time) []storage.Filter
	limit      int
}

// consumerEnrichments is the closed dispatch table of per-consumer standing
// context. Unknown consumers get no enrichment, only the semantic and hint
// passes.
var consumerEnrichments = map[string][]enrichment{
	"chat": {
		{
			entityType: types.EntityTypeEmail,
			filters: func(time.Time) []storage.Filter {
				return []storage.Filter{storage.Eq("is_unread", true)}
			},
			limit: 5,
		},
		{
			entityType: types.EntityTypeFollowUp,
			filters: func(time.Time) []storage.Filter {
				return []storage.Filter{storage.Eq("status", types.FollowUpStatusPending)}
			},
			limit: 5,
		},
	},
	"briefing": {
		{
			entityType: types.EntityTypeEmail,
			filters: func(time.Time) []storage.Filter {
				return []storage.Filter{
					storage.Eq("is_unread", true),
					storage.In("priority", types.PriorityHigh, types.PriorityUrgent),
				}
			},
			limit: 3,
		},
		{
			entityType: types.EntityTypeFollowUp,
			filters: func(now time.Time) []storage.Filter {
				fs := []storage.Filter{storage.Eq("status", types.FollowUpStatusPending)}
				return append(fs, storage.Range("due_date", "", now.Format(time.RFC3339))...)
			},
			limit: 3,
		},
		{
			entityType: types.EntityTypeMeeting,
			filters: func(now time.Time) []storage.Filter {
				return storage.Range("start_time",
					now.Format(time.RFC3339),
					now.Add(24*time.Hour).Format(time.RFC3339))
			},
			limit: 5,
		},
	},
	"email_responder": {
		{
			entityType: types.EntityTypeEmail,
			filters: func(time.Time) []storage.Filter {
				return []storage.Filter{storage.Eq("needs_followup", true)}
			},
			limit: 5,
		},
	},
	"scheduler": {
		{
			entityType: types.EntityTypeMeeting,
			filters: func(now time.Time) []storage.Filter {
				return storage.Range("start_time",
					now.Format(time.RFC3339),
					now.Add(7*24*time.Hour).Format(time.RFC3339))
			},
			limit: 10,
		},
	},
}

// applyEnrichment runs the consumer's standing queries into the bundle.
// Enrichment failures are logged and skipped; the bundle is still useful
// without them.
func (s *Service) applyEnrichment(ctx context.Context, bundle *types.ContextBundle, consumer string) {
	now := time.Now().UTC()
	for _, enr := range consumerEnrichments[consumer] {
		entities, err := s.data.StructuredQuery(ctx, enr.entityType, enr.filters(now), enr.limit)
		if err != nil {
			s.logger.Warn("consumer enrichment query failed",
				zap.String("consumer", consumer),
				zap.String("entity_type", enr.entityType),
				zap.Error(err))
			continue
		}
		for _, e := range entities {
			bundle.Add(e)
		}
	}
}

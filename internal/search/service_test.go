package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attachehq/attache/internal/datalayer"
	"github.com/attachehq/attache/internal/indexer"
	"github.com/attachehq/attache/internal/llm"
	"github.com/attachehq/attache/internal/storage"
	"github.com/attachehq/attache/internal/storage/sqlite"
	"github.com/attachehq/attache/internal/vector"
	"github.com/attachehq/attache/pkg/types"
)

func newTestStack(t *testing.T) (*Service, *indexer.Indexer) {
	t.Helper()

	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	points, err := vector.NewSQLitePointStore(store.DB())
	require.NoError(t, err)

	vectors := vector.NewService(llm.NewStaticEmbedder(64), points, nil)
	data, err := datalayer.New(
		[]storage.EntityAdapter{store.Emails(), store.Contacts(), store.FollowUps(), store.Meetings()},
		store.Generic(),
		store.Relationships(),
		vectors,
		nil,
	)
	require.NoError(t, err)
	return New(data, 0.3, nil), indexer.New(data, nil)
}

func TestSearchForTaskAssemblesBundle(t *testing.T) {
	svc, idx := newTestStack(t)
	ctx := context.Background()

	_, err := idx.IndexEmail(ctx, indexer.Payload{
		"message_id": "msg-1",
		"subject":    "Quarterly budget planning",
		"body":       "We need the budget numbers by Friday.",
		"is_unread":  true,
	})
	require.NoError(t, err)
	_, err = idx.IndexMemory(ctx, indexer.Payload{
		"content": "User asked about the quarterly budget last week",
	})
	require.NoError(t, err)

	bundle, err := svc.SearchForTask(ctx, "chat", "quarterly budget numbers", nil, 10)
	require.NoError(t, err)

	assert.Equal(t, "chat", bundle.Retrieval.Consumer)
	assert.False(t, bundle.Retrieval.Timestamp.IsZero())
	assert.Greater(t, bundle.Total(), 0)
	assert.Equal(t, bundle.Total(), bundle.Retrieval.TotalEntities)
	assert.Contains(t, bundle.Summary, "Context includes:")
	assert.NotEmpty(t, bundle.Entities[types.EntityTypeEmail], "semantic or enrichment pass must surface the email")
}

func TestSearchForTaskEntityHints(t *testing.T) {
	svc, idx := newTestStack(t)
	ctx := context.Background()

	emailID, err := idx.IndexEmail(ctx, indexer.Payload{
		"message_id":   "msg-1",
		"subject":      "Intro",
		"sender":       "Alice",
		"sender_email": "alice@x.com",
	})
	require.NoError(t, err)

	// A bare address hint resolves to the contact and pulls its edges.
	bundle, err := svc.SearchForTask(ctx, "unknown-consumer", "", []string{"alice@x.com"}, 10)
	require.NoError(t, err)

	contactID := "contact_alice_at_x_com"
	require.NotEmpty(t, bundle.Entities[types.EntityTypeContact])
	assert.Equal(t, contactID, bundle.Entities[types.EntityTypeContact][0].ID)

	edges := bundle.Graph[contactID]
	require.NotEmpty(t, edges, "hint neighborhood must land in the graph")
	assert.Equal(t, emailID, edges[0].FromID)
}

func TestSearchForTaskUnresolvableHint(t *testing.T) {
	svc, _ := newTestStack(t)

	bundle, err := svc.SearchForTask(context.Background(), "chat", "", []string{"email_never_seen"}, 10)
	require.NoError(t, err, "bad hints are skipped, not fatal")
	assert.Equal(t, "No relevant context found", bundle.Summary)
}

func TestConsumerEnrichment(t *testing.T) {
	svc, idx := newTestStack(t)
	ctx := context.Background()

	_, err := idx.IndexEmail(ctx, indexer.Payload{
		"message_id": "unread-1",
		"subject":    "Totally unrelated to any query",
		"is_unread":  true,
	})
	require.NoError(t, err)
	_, err = idx.IndexEmail(ctx, indexer.Payload{
		"message_id": "read-1",
		"subject":    "Also unrelated",
		"is_unread":  false,
	})
	require.NoError(t, err)

	// "chat" always carries unread emails, even with no semantic match.
	bundle, err := svc.SearchForTask(ctx, "chat", "", nil, 10)
	require.NoError(t, err)
	require.Len(t, bundle.Entities[types.EntityTypeEmail], 1)
	assert.Equal(t, "email_unread_1", bundle.Entities[types.EntityTypeEmail][0].ID)

	// Unknown consumers get no standing context.
	bundle, err = svc.SearchForTask(ctx, "mystery", "", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, bundle.Entities[types.EntityTypeEmail])
}

func TestSemanticSearch(t *testing.T) {
	svc, idx := newTestStack(t)
	ctx := context.Background()

	_, err := idx.IndexEmail(ctx, indexer.Payload{
		"message_id": "msg-1",
		"subject":    "Distributed tracing rollout",
		"body":       "Plan for rolling out distributed tracing.",
	})
	require.NoError(t, err)

	results, err := svc.SemanticSearch(ctx, "distributed tracing rollout", nil, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.GreaterOrEqual(t, results[0].Score, 0.3)

	_, err = svc.SemanticSearch(ctx, "   ", nil, 5)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestTraverse(t *testing.T) {
	svc, idx := newTestStack(t)
	ctx := context.Background()

	emailID, err := idx.IndexEmail(ctx, indexer.Payload{
		"message_id":   "msg-1",
		"subject":      "Hello",
		"sender_email": "alice@x.com",
	})
	require.NoError(t, err)

	neighbors, rels, err := svc.Traverse(ctx, emailID, nil)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	require.Len(t, neighbors, 1)
	assert.Equal(t, "contact_alice_at_x_com", neighbors[0].ID)
}

func TestTemporalSearch(t *testing.T) {
	svc, idx := newTestStack(t)
	ctx := context.Background()

	for key, date := range map[string]string{
		"old": "2026-07-01T09:00:00Z",
		"new": "2026-08-28T09:00:00Z",
	} {
		_, err := idx.IndexEmail(ctx, indexer.Payload{
			"message_id": key,
			"subject":    "Mail " + key,
			"date":       date,
		})
		require.NoError(t, err)
	}

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	results, err := svc.TemporalSearch(ctx, types.EntityTypeEmail, start, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "email_new", results[0].ID)

	_, err = svc.TemporalSearch(ctx, types.EntityTypeContact, start, time.Time{}, 10)
	assert.ErrorIs(t, err, storage.ErrUnsupportedFilter)

	// Empty type spans every dated type.
	_, err = idx.IndexMeeting(ctx, indexer.Payload{
		"event_id":   "evt-1",
		"title":      "August sync",
		"start_time": "2026-08-15T09:00:00Z",
	})
	require.NoError(t, err)

	all, err := svc.TemporalSearch(ctx, "", start, time.Time{}, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRelevantMemories(t *testing.T) {
	svc, idx := newTestStack(t)
	ctx := context.Background()

	ownID, err := idx.IndexMemory(ctx, indexer.Payload{
		"content":         "User cancelled the gym membership",
		"conversation_id": "conv-1",
	})
	require.NoError(t, err)
	similarID, err := idx.IndexMemory(ctx, indexer.Payload{
		"content":         "Discussed project deadline extension options",
		"conversation_id": "conv-2",
	})
	require.NoError(t, err)

	memories, err := svc.RelevantMemories(ctx, "conv-1", "project deadline extension", 10)
	require.NoError(t, err)

	ids := make(map[string]bool, len(memories))
	for _, m := range memories {
		ids[m.ID] = true
	}
	assert.True(t, ids[similarID], "semantically similar memory included")
	assert.True(t, ids[ownID], "current conversation memory included")
}

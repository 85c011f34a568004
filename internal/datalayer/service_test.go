package datalayer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attachehq/attache/internal/llm"
	"github.com/attachehq/attache/internal/storage"
	"github.com/attachehq/attache/internal/storage/sqlite"
	"github.com/attachehq/attache/internal/vector"
	"github.com/attachehq/attache/pkg/types"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	points, err := vector.NewSQLitePointStore(store.DB())
	require.NoError(t, err)

	vectors := vector.NewService(llm.NewStaticEmbedder(64), points, nil)

	svc, err := New(
		[]storage.EntityAdapter{store.Emails(), store.Contacts(), store.FollowUps(), store.Meetings()},
		store.Generic(),
		store.Relationships(),
		vectors,
		nil,
	)
	require.NoError(t, err)
	return svc
}

func storedEmail(t *testing.T, svc *Service, messageID, subject string) string {
	t.Helper()
	id, err := svc.StoreEntity(context.Background(), &types.Entity{
		EntityType: types.EntityTypeEmail,
		Structured: map[string]interface{}{
			"message_id": messageID,
			"subject":    subject,
			"sender":     "Alice",
			"body":       "Body of " + subject,
			"date":       "2026-08-29T10:00:00Z",
		},
	})
	require.NoError(t, err)
	return id
}

func TestStoreEntityDualWrite(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id := storedEmail(t, svc, "msg-1", "Budget planning")
	assert.Equal(t, "email_msg_1", id)

	e, err := svc.GetEntity(ctx, id)
	require.NoError(t, err)

	// Bookkeeping stamped by the store path.
	assert.NotEmpty(t, e.MetadataString(types.MetaVectorPointID))
	assert.NotEmpty(t, e.MetadataString(types.MetaIndexedAt))
	assert.NotEmpty(t, e.MetadataString(types.MetaContentHash))

	// The index point is searchable immediately.
	results, err := svc.VectorSearch(ctx, "budget planning", nil, 10, 0.1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].Entity.ID)
	assert.Greater(t, results[0].Score, 0.1)
}

func TestStoreEntityVersionCounter(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id := storedEmail(t, svc, "msg-1", "First subject")
	e, err := svc.GetEntity(ctx, id)
	require.NoError(t, err)
	v1 := e.Metadata[types.MetaVersion]

	_, err = svc.StoreEntity(ctx, e)
	require.NoError(t, err)

	e, err = svc.GetEntity(ctx, id)
	require.NoError(t, err)
	v2 := e.Metadata[types.MetaVersion]
	assert.NotEqual(t, v1, v2, "version must bump on every store")
}

func TestUpdateEntityPartialMerge(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id := storedEmail(t, svc, "msg-1", "Original subject")

	ok, err := svc.UpdateEntity(ctx, id, EntityUpdate{
		Analyzed: map[string]interface{}{"summary": "A fresh summary"},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	e, err := svc.GetEntity(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Original subject", e.StructuredString("subject"), "unrelated fields survive the update")
	assert.Equal(t, "A fresh summary", e.AnalyzedString("summary"))

	ok, err = svc.UpdateEntity(ctx, "email_absent", EntityUpdate{
		Analyzed: map[string]interface{}{"summary": "x"},
	})
	require.NoError(t, err)
	assert.False(t, ok, "updating a missing entity reports false, not an error")
}

func TestDeleteEntityCascade(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	emailID := storedEmail(t, svc, "msg-1", "Hello")
	contactID, err := svc.StoreEntity(ctx, &types.Entity{
		EntityType: types.EntityTypeContact,
		Structured: map[string]interface{}{"email": "alice@example.com"},
	})
	require.NoError(t, err)

	created, err := svc.CreateRelationship(ctx, emailID, contactID, types.RelReceivedFrom, nil)
	require.NoError(t, err)
	assert.True(t, created)

	ok, err := svc.DeleteEntity(ctx, emailID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Row, point, and edges are all gone.
	_, err = svc.GetEntity(ctx, emailID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	results, err := svc.VectorSearch(ctx, "hello", nil, 10, 0)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, emailID, r.Entity.ID)
	}

	rels, err := svc.GetRelationships(ctx, contactID, nil)
	require.NoError(t, err)
	assert.Empty(t, rels)

	ok, err = svc.DeleteEntity(ctx, emailID)
	require.NoError(t, err)
	assert.False(t, ok, "second delete reports false")
}

func TestCreateRelationshipValidation(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreateRelationship(context.Background(), "noprefix", "contact_1", types.RelRelatesTo, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestCreateRelationshipIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateRelationship(ctx, "email_1", "contact_1", types.RelReceivedFrom, nil)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.CreateRelationship(ctx, "email_1", "contact_1", types.RelReceivedFrom,
		map[string]interface{}{"note": "again"})
	require.NoError(t, err)
	assert.False(t, created)

	rels, err := svc.GetRelationships(ctx, "email_1", nil)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "again", rels[0].Metadata["note"])
}

func TestGetEntityHydratesRelationships(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	emailID := storedEmail(t, svc, "msg-1", "Hello")
	contactID, err := svc.StoreEntity(ctx, &types.Entity{
		EntityType: types.EntityTypeContact,
		Structured: map[string]interface{}{"email": "alice@example.com"},
	})
	require.NoError(t, err)

	_, err = svc.CreateRelationship(ctx, emailID, contactID, types.RelReceivedFrom, nil)
	require.NoError(t, err)

	e, err := svc.GetEntity(ctx, emailID)
	require.NoError(t, err)
	require.NotNil(t, e.Relationships)
	require.Len(t, e.Relationships.Outgoing, 1)
	assert.Equal(t, contactID, e.Relationships.Outgoing[0].ToID)
	assert.Empty(t, e.Relationships.Incoming)

	c, err := svc.GetEntity(ctx, contactID)
	require.NoError(t, err)
	require.NotNil(t, c.Relationships)
	require.Len(t, c.Relationships.Incoming, 1)
	assert.Equal(t, emailID, c.Relationships.Incoming[0].FromID)
}

func TestStructuredQueryGenericTypeScoping(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.StoreEntity(ctx, &types.Entity{
		EntityType: types.EntityTypeMemory,
		Structured: map[string]interface{}{"content": "memory one"},
	})
	require.NoError(t, err)
	_, err = svc.StoreEntity(ctx, &types.Entity{
		EntityType: types.EntityTypeFact,
		Structured: map[string]interface{}{"content": "fact one"},
	})
	require.NoError(t, err)

	memories, err := svc.StructuredQuery(ctx, types.EntityTypeMemory, nil, 10)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, types.EntityTypeMemory, memories[0].EntityType)
}

func TestReindexEntity(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id := storedEmail(t, svc, "msg-1", "Roadmap discussion")

	// Simulate a lost index write.
	require.NoError(t, svc.vectors.DeleteEntity(ctx, id))
	results, err := svc.VectorSearch(ctx, "roadmap discussion", nil, 10, 0.1)
	require.NoError(t, err)
	assert.Empty(t, results)

	ok, err := svc.ReindexEntity(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	results, err = svc.VectorSearch(ctx, "roadmap discussion", nil, 10, 0.1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].Entity.ID)

	ok, err = svc.ReindexEntity(ctx, "email_absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVectorSearchSkipsDanglingPoints(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id := storedEmail(t, svc, "msg-1", "Orphan test")

	// Remove the row behind the index's back; the point now dangles.
	adapter := svc.AdapterFor(types.EntityTypeEmail)
	_, err := adapter.Delete(ctx, id)
	require.NoError(t, err)

	results, err := svc.VectorSearch(ctx, "orphan test", nil, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, results, "dangling hits are skipped, not errors")
}

package indexer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attachehq/attache/internal/datalayer"
	"github.com/attachehq/attache/internal/llm"
	"github.com/attachehq/attache/internal/storage"
	"github.com/attachehq/attache/internal/storage/sqlite"
	"github.com/attachehq/attache/internal/vector"
	"github.com/attachehq/attache/pkg/types"
)

func newTestIndexer(t *testing.T) (*Indexer, *datalayer.Service) {
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
	return New(data, nil), data
}

func TestIndexEmailCreatesSenderRelationship(t *testing.T) {
	idx, data := newTestIndexer(t)
	ctx := context.Background()

	id, err := idx.IndexEmail(ctx, Payload{
		"message_id":   "msg-1",
		"subject":      "Lunch on Friday?",
		"sender":       "Alice Smith",
		"sender_email": "alice@x.com",
		"body":         "Are you free on Friday?",
	})
	require.NoError(t, err)
	assert.Equal(t, "email_msg_1", id)

	// The sender contact was created as a stub and linked.
	contact, err := data.GetEntity(ctx, "contact_alice_at_x_com")
	require.NoError(t, err)
	assert.Equal(t, "implicit", contact.Source)
	assert.Equal(t, "Alice Smith", contact.StructuredString("name"))

	rels, err := data.GetRelationships(ctx, id, []string{types.RelReceivedFrom})
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "contact_alice_at_x_com", rels[0].ToID)
}

func TestIndexEmailKeepsExistingContact(t *testing.T) {
	idx, data := newTestIndexer(t)
	ctx := context.Background()

	// A full contact already exists for the sender.
	_, err := idx.IndexContact(ctx, Payload{
		"name":    "Alice Smith",
		"email":   "alice@x.com",
		"company": "Example Corp",
	})
	require.NoError(t, err)

	_, err = idx.IndexEmail(ctx, Payload{
		"message_id":   "msg-1",
		"subject":      "Hello",
		"sender_email": "alice@x.com",
	})
	require.NoError(t, err)

	contact, err := data.GetEntity(ctx, "contact_alice_at_x_com")
	require.NoError(t, err)
	assert.Equal(t, "Example Corp", contact.StructuredString("company"), "existing contact must not be overwritten by a stub")
}

func TestIndexEmailValidation(t *testing.T) {
	idx, _ := newTestIndexer(t)

	_, err := idx.IndexEmail(context.Background(), Payload{"subject": "No message id"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Missing, "message_id")
}

func TestIndexEmailPartitionsPayload(t *testing.T) {
	idx, data := newTestIndexer(t)
	ctx := context.Background()

	id, err := idx.IndexEmail(ctx, Payload{
		"message_id": "msg-1",
		"subject":    "Quarterly review",
		"summary":    "Asks for the quarterly numbers",
		"category":   "work",
		"priority":   "high",
	})
	require.NoError(t, err)

	e, err := data.GetEntity(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Quarterly review", e.StructuredString("subject"))
	assert.Equal(t, "Asks for the quarterly numbers", e.AnalyzedString("summary"))
	assert.Equal(t, "work", e.AnalyzedString("category"))
}

func TestIndexFollowUpLinksEmail(t *testing.T) {
	idx, data := newTestIndexer(t)
	ctx := context.Background()

	emailID, err := idx.IndexEmail(ctx, Payload{"message_id": "msg-1", "subject": "Need reply"})
	require.NoError(t, err)

	fuID, err := idx.IndexFollowUp(ctx, Payload{
		"email_id": emailID,
		"subject":  "Reply to Alice",
		"due_date": "2026-09-01T00:00:00Z",
	})
	require.NoError(t, err)

	rels, err := data.GetRelationships(ctx, fuID, []string{types.RelFollowUpFor})
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, emailID, rels[0].ToID)
}

func TestIndexMeetingLinksParticipants(t *testing.T) {
	idx, data := newTestIndexer(t)
	ctx := context.Background()

	id, err := idx.IndexMeeting(ctx, Payload{
		"event_id":     "evt-1",
		"title":        "Sprint review",
		"start_time":   "2026-09-02T15:00:00Z",
		"participants": []interface{}{"Alice <alice@x.com>", "bob@x.com", "No Email Person"},
	})
	require.NoError(t, err)

	rels, err := data.GetRelationships(ctx, id, []string{types.RelHasParticipant})
	require.NoError(t, err)
	assert.Len(t, rels, 2, "only participants with addresses are linked")
}

func TestIndexEventRequiresTitle(t *testing.T) {
	idx, _ := newTestIndexer(t)

	_, err := idx.IndexEvent(context.Background(), Payload{"location": "Room 4"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestIndexMemoryGeneratesID(t *testing.T) {
	idx, data := newTestIndexer(t)
	ctx := context.Background()

	id, err := idx.IndexMemory(ctx, Payload{
		"content":         "User prefers short answers",
		"conversation_id": "conv-1",
	})
	require.NoError(t, err)
	assert.Equal(t, types.EntityTypeMemory, types.TypeFromID(id))

	e, err := data.GetEntity(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "conv-1", e.StructuredString("conversation_id"))
}

func TestSupersedeFact(t *testing.T) {
	idx, data := newTestIndexer(t)
	ctx := context.Background()

	oldID, err := idx.IndexFact(ctx, Payload{"content": "Office is in Berlin"})
	require.NoError(t, err)
	newID, err := idx.IndexFact(ctx, Payload{"content": "Office moved to Hamburg"})
	require.NoError(t, err)

	require.NoError(t, idx.SupersedeFact(ctx, oldID, newID, "office move"))

	oldFact, err := data.GetEntity(ctx, oldID)
	require.NoError(t, err)
	assert.Equal(t, false, oldFact.Metadata[types.MetaIsCurrent])
	assert.Equal(t, newID, oldFact.MetadataString(types.MetaSupersededBy))
	assert.NotEmpty(t, oldFact.MetadataString(types.MetaSupersededAt))

	newFact, err := data.GetEntity(ctx, newID)
	require.NoError(t, err)
	assert.Equal(t, true, newFact.Metadata[types.MetaIsCurrent])
	assert.Equal(t, oldID, newFact.MetadataString(types.MetaSupersedes))

	rels, err := data.GetRelationships(ctx, newID, []string{types.RelSupersedes})
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, oldID, rels[0].ToID)
	assert.Equal(t, "office move", rels[0].Metadata["reason"])

	err = idx.SupersedeFact(ctx, "fact_missing", newID, "x")
	assert.Error(t, err, "superseding a missing fact must fail")
}

func TestReindexAll(t *testing.T) {
	idx, data := newTestIndexer(t)
	ctx := context.Background()

	for _, key := range []string{"msg-1", "msg-2"} {
		_, err := idx.IndexEmail(ctx, Payload{"message_id": key, "subject": "Subject " + key})
		require.NoError(t, err)
	}

	n, err := idx.ReindexAll(ctx, types.EntityTypeEmail, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	results, err := data.VectorSearch(ctx, "Subject msg-1", nil, 10, 0.1)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestRecoverBoundary(t *testing.T) {
	idx, _ := newTestIndexer(t)

	// A payload value of the wrong concrete type panics deep in adapter
	// code paths only in pathological cases; drive the boundary directly.
	err := func() (err error) {
		defer idx.recoverBoundary("TestOp", &err)
		panic("boom")
	}()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TestOp failed")
}

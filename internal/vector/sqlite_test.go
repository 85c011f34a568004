package vector

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/attachehq/attache/internal/llm"
)

func testPointStore(t *testing.T) *SQLitePointStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewSQLitePointStore(db)
	if err != nil {
		t.Fatalf("Failed to create point store: %v", err)
	}
	return store
}

func testService(t *testing.T) (*Service, *SQLitePointStore) {
	t.Helper()
	store := testPointStore(t)
	return NewService(llm.NewStaticEmbedder(64), store, nil), store
}

func TestPointIDDeterministic(t *testing.T) {
	a := PointID("email_msg_001")
	b := PointID("email_msg_001")
	if a != b {
		t.Errorf("Expected deterministic point ID, got %q and %q", a, b)
	}
	if len(a) != 32 {
		t.Errorf("Expected 32 hex chars, got %d", len(a))
	}
	if a == PointID("email_msg_002") {
		t.Error("Expected distinct IDs for distinct entities")
	}
}

func TestIndexEntityUpsert(t *testing.T) {
	svc, store := testService(t)
	ctx := context.Background()

	first, err := svc.IndexEntity(ctx, "email_1", "email", "quarterly planning review", nil)
	if err != nil {
		t.Fatalf("Failed to index entity: %v", err)
	}
	second, err := svc.IndexEntity(ctx, "email_1", "email", "updated planning text", nil)
	if err != nil {
		t.Fatalf("Failed to re-index entity: %v", err)
	}
	if first != second {
		t.Errorf("Expected same point ID on re-index, got %q then %q", first, second)
	}

	counts, err := store.CountByType(ctx)
	if err != nil {
		t.Fatalf("Failed to count points: %v", err)
	}
	if counts["email"] != 1 {
		t.Errorf("Expected 1 email point after re-index, got %d", counts["email"])
	}
}

func TestIndexEntityEmptyText(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.IndexEntity(ctx, "contact_1", "contact", "   ", nil); err != nil {
		t.Fatalf("Expected empty text to index as zero vector, got %v", err)
	}

	// A zero vector has cosine similarity 0 with everything, so it must
	// never clear a positive threshold.
	hits, err := svc.Search(ctx, "anything at all", nil, 10, 0.1)
	if err != nil {
		t.Fatalf("Failed to search: %v", err)
	}
	for _, h := range hits {
		if h.EntityID == "contact_1" {
			t.Error("Expected zero-vector point to stay below threshold")
		}
	}
}

func TestSearchThresholdAndOrder(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	seed := map[string]string{
		"email_1":  "quarterly budget planning meeting",
		"email_2":  "quarterly budget review",
		"memory_1": "completely unrelated gardening note about tomatoes",
	}
	for id, text := range seed {
		entityType := "email"
		if id == "memory_1" {
			entityType = "memory"
		}
		if _, err := svc.IndexEntity(ctx, id, entityType, text, nil); err != nil {
			t.Fatalf("Failed to index %s: %v", id, err)
		}
	}

	hits, err := svc.Search(ctx, "quarterly budget planning", nil, 10, 0.3)
	if err != nil {
		t.Fatalf("Failed to search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("Expected hits above threshold")
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("Expected score-descending order, got %v then %v", hits[i-1].Score, hits[i].Score)
		}
	}
	for _, h := range hits {
		if h.EntityID == "memory_1" {
			t.Error("Expected unrelated point to fall below threshold")
		}
		if h.Score < 0.3 {
			t.Errorf("Expected strict cutoff, got score %v", h.Score)
		}
	}

	// An unrelated query clears nothing at a high threshold but returns a
	// score-descending list at threshold 0.
	none, err := svc.Search(ctx, "xyz unrelated query", nil, 10, 0.9)
	if err != nil {
		t.Fatalf("Failed to search: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Expected no hits at threshold 0.9, got %d", len(none))
	}
	all, err := svc.Search(ctx, "quarterly gardening", nil, 10, 0)
	if err != nil {
		t.Fatalf("Failed to search: %v", err)
	}
	if len(all) == 0 {
		t.Error("Expected hits at threshold 0")
	}
}

func TestSearchTypeFilter(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.IndexEntity(ctx, "email_1", "email", "project deadline discussion", nil); err != nil {
		t.Fatalf("Failed to index: %v", err)
	}
	if _, err := svc.IndexEntity(ctx, "memory_1", "memory", "project deadline discussion", nil); err != nil {
		t.Fatalf("Failed to index: %v", err)
	}

	hits, err := svc.Search(ctx, "project deadline", []string{"memory"}, 10, 0)
	if err != nil {
		t.Fatalf("Failed to search: %v", err)
	}
	if len(hits) != 1 || hits[0].EntityType != "memory" {
		t.Errorf("Expected only memory hits, got %v", hits)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	svc, _ := testService(t)

	hits, err := svc.Search(context.Background(), "   ", nil, 10, 0)
	if err != nil {
		t.Fatalf("Expected empty query to be a no-op, got %v", err)
	}
	if hits != nil {
		t.Errorf("Expected nil hits for empty query, got %v", hits)
	}
}

func TestDeleteEntity(t *testing.T) {
	svc, store := testService(t)
	ctx := context.Background()

	if _, err := svc.IndexEntity(ctx, "email_1", "email", "some text", nil); err != nil {
		t.Fatalf("Failed to index: %v", err)
	}
	if err := svc.DeleteEntity(ctx, "email_1"); err != nil {
		t.Fatalf("Failed to delete point: %v", err)
	}
	// Deleting an unindexed entity is not an error.
	if err := svc.DeleteEntity(ctx, "email_never_indexed"); err != nil {
		t.Fatalf("Expected delete of absent point to succeed, got %v", err)
	}

	counts, err := store.CountByType(ctx)
	if err != nil {
		t.Fatalf("Failed to count points: %v", err)
	}
	if counts["email"] != 0 {
		t.Errorf("Expected no email points after delete, got %d", counts["email"])
	}
}

func TestCollectionInfo(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	for i, id := range []string{"email_1", "email_2", "memory_1"} {
		entityType := "email"
		if i == 2 {
			entityType = "memory"
		}
		if _, err := svc.IndexEntity(ctx, id, entityType, "text", nil); err != nil {
			t.Fatalf("Failed to index: %v", err)
		}
	}

	info, err := svc.CollectionInfo(ctx)
	if err != nil {
		t.Fatalf("Failed to read collection info: %v", err)
	}
	if info.Points != 3 {
		t.Errorf("Expected 3 points, got %d", info.Points)
	}
	if info.ByType["email"] != 2 || info.ByType["memory"] != 1 {
		t.Errorf("Expected per-type counts, got %v", info.ByType)
	}
	if info.Model != "static-hash" || info.Dimension != 64 {
		t.Errorf("Expected embedder identity in info, got %+v", info)
	}
}

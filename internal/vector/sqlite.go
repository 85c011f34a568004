package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// sqlitePointsSchema holds the point table for the SQLite backend. The
// collection shares the database file with the relational store.
const sqlitePointsSchema = `
CREATE TABLE IF NOT EXISTS vector_points (
    id TEXT PRIMARY KEY,
    entity_id TEXT NOT NULL UNIQUE,
    entity_type TEXT NOT NULL,
    preview TEXT,
    payload TEXT,             -- JSON object
    embedding BLOB NOT NULL,  -- little-endian float32
    dimension INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_vector_points_type ON vector_points(entity_type);
`

// searchMaxCandidates caps the number of embeddings loaded into memory
// during a search. Candidates are selected newest-first, so recently
// indexed entities are always considered. For typical personal-assistant
// datasets (< 10k entities) this limit is never hit; larger deployments
// should use the postgres backend for indexed ANN search.
const searchMaxCandidates = 10_000

// SQLitePointStore implements PointStore on a SQLite table. Similarity is
// computed in Go over the candidate set; this trades index-side ANN for
// zero operational dependencies.
type SQLitePointStore struct {
	db *sql.DB
}

var _ PointStore = (*SQLitePointStore)(nil)

// NewSQLitePointStore creates the point table on the given handle.
func NewSQLitePointStore(db *sql.DB) (*SQLitePointStore, error) {
	if _, err := db.Exec(sqlitePointsSchema); err != nil {
		return nil, fmt.Errorf("failed to create vector_points schema: %w", err)
	}
	return &SQLitePointStore{db: db}, nil
}

// Upsert stores the point, replacing any previous embedding for the same
// entity (last-write-wins).
func (s *SQLitePointStore) Upsert(ctx context.Context, p *Point) error {
	if p == nil || p.ID == "" || p.EntityID == "" {
		return fmt.Errorf("point ID and entity ID are required")
	}

	var payloadJSON []byte
	if len(p.Payload) > 0 {
		var err error
		payloadJSON, err = json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal point payload: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vector_points (id, entity_id, entity_type, preview, payload, embedding, dimension)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			id = excluded.id,
			entity_type = excluded.entity_type,
			preview = excluded.preview,
			payload = excluded.payload,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			updated_at = CURRENT_TIMESTAMP
	`, p.ID, p.EntityID, p.EntityType, p.Preview, payloadJSON,
		serializeEmbedding(p.Embedding), len(p.Embedding))
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}
	return nil
}

// Search ranks candidates by cosine similarity, filters by type and
// minimum score, and returns the top hits score-descending.
func (s *SQLitePointStore) Search(ctx context.Context, query []float32, entityTypes []string, limit int, minScore float64) ([]Hit, error) {
	if len(query) == 0 {
		return nil, nil
	}

	sqlQuery := `
		SELECT entity_id, entity_type, preview, payload, embedding, dimension
		FROM vector_points`
	var args []interface{}
	if len(entityTypes) > 0 {
		sqlQuery += ` WHERE entity_type IN (?` + repeatPlaceholder(len(entityTypes)-1) + `)`
		for _, t := range entityTypes {
			args = append(args, t)
		}
	}
	sqlQuery += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, searchMaxCandidates)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []Hit
	for rows.Next() {
		var (
			hit       Hit
			preview   sql.NullString
			payload   sql.NullString
			blob      []byte
			dimension int
		)
		if err := rows.Scan(&hit.EntityID, &hit.EntityType, &preview, &payload, &blob, &dimension); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}

		embedding, err := deserializeEmbedding(blob, dimension)
		if err != nil {
			// Skip corrupt rows rather than failing the whole search.
			continue
		}

		score := cosineSimilarity(query, embedding)
		if score < minScore {
			continue
		}

		hit.Score = score
		hit.Preview = preview.String
		if payload.Valid && payload.String != "" {
			_ = json.Unmarshal([]byte(payload.String), &hit.Payload)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// DeleteByEntityID removes the entity's point if present.
func (s *SQLitePointStore) DeleteByEntityID(ctx context.Context, entityID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM vector_points WHERE entity_id = ?`, entityID)
	if err != nil {
		return fmt.Errorf("failed to delete point for %s: %w", entityID, err)
	}
	return nil
}

// CountByType returns point counts grouped by entity type.
func (s *SQLitePointStore) CountByType(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_type, COUNT(*) FROM vector_points GROUP BY entity_type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count points: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			entityType string
			n          int
		)
		if err := rows.Scan(&entityType, &n); err != nil {
			return nil, err
		}
		counts[entityType] = n
	}
	return counts, rows.Err()
}

// Close is a no-op; the handle is owned by the relational store.
func (s *SQLitePointStore) Close() error { return nil }

// serializeEmbedding packs a vector as little-endian float32 bytes.
func serializeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeEmbedding unpacks little-endian float32 bytes, validating the
// declared dimension.
func deserializeEmbedding(blob []byte, dimension int) ([]float32, error) {
	if len(blob) != dimension*4 {
		return nil, fmt.Errorf("embedding blob length %d does not match dimension %d", len(blob), dimension)
	}
	embedding := make([]float32, dimension)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return embedding, nil
}

// repeatPlaceholder returns n occurrences of ", ?".
func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}

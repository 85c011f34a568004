package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"
)

// PostgresPointStore implements PointStore on PostgreSQL with the pgvector
// extension, for deployments whose collection outgrows the in-process
// cosine scan of the SQLite backend.
type PostgresPointStore struct {
	db        *sql.DB
	dimension int
}

var _ PointStore = (*PostgresPointStore)(nil)

// NewPostgresPointStore connects to PostgreSQL and creates the point table.
// The pgvector extension must be installed; the embedding column dimension
// is fixed at creation time.
func NewPostgresPointStore(dsn string, dimension int) (*PostgresPointStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dimension)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if _, err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgvector extension unavailable: %w", err)
	}

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS vector_points (
			id TEXT PRIMARY KEY,
			entity_id TEXT NOT NULL UNIQUE,
			entity_type TEXT NOT NULL,
			preview TEXT,
			payload JSONB,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_vector_points_type ON vector_points(entity_type);
	`, dimension)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create vector_points schema: %w", err)
	}

	return &PostgresPointStore{db: db, dimension: dimension}, nil
}

// Upsert stores the point, replacing any previous embedding for the same
// entity.
func (s *PostgresPointStore) Upsert(ctx context.Context, p *Point) error {
	if p == nil || p.ID == "" || p.EntityID == "" {
		return fmt.Errorf("point ID and entity ID are required")
	}
	if len(p.Embedding) != s.dimension {
		return fmt.Errorf("embedding dimension %d does not match collection dimension %d", len(p.Embedding), s.dimension)
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
		INSERT INTO vector_points (id, entity_id, entity_type, preview, payload, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (entity_id) DO UPDATE SET
			id = EXCLUDED.id,
			entity_type = EXCLUDED.entity_type,
			preview = EXCLUDED.preview,
			payload = EXCLUDED.payload,
			embedding = EXCLUDED.embedding,
			updated_at = CURRENT_TIMESTAMP
	`, p.ID, p.EntityID, p.EntityType, p.Preview, payloadJSON, pgvector.NewVector(p.Embedding))
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}
	return nil
}

// Search uses pgvector cosine distance; score is 1 - distance.
func (s *PostgresPointStore) Search(ctx context.Context, query []float32, entityTypes []string, limit int, minScore float64) ([]Hit, error) {
	if len(query) == 0 {
		return nil, nil
	}

	vec := pgvector.NewVector(query)
	sqlQuery := `
		SELECT entity_id, entity_type, preview, payload,
		       1 - (embedding <=> $1) AS score
		FROM vector_points`
	args := []interface{}{vec}
	argn := 2
	if len(entityTypes) > 0 {
		sqlQuery += fmt.Sprintf(" WHERE entity_type = ANY($%d)", argn)
		args = append(args, pq.Array(entityTypes))
		argn++
	}
	sqlQuery += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", argn)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector search failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []Hit
	for rows.Next() {
		var (
			hit     Hit
			preview sql.NullString
			payload []byte
		)
		if err := rows.Scan(&hit.EntityID, &hit.EntityType, &preview, &payload, &hit.Score); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		if hit.Score < minScore {
			continue
		}
		hit.Preview = preview.String
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &hit.Payload)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// DeleteByEntityID removes the entity's point if present.
func (s *PostgresPointStore) DeleteByEntityID(ctx context.Context, entityID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM vector_points WHERE entity_id = $1`, entityID)
	if err != nil {
		return fmt.Errorf("failed to delete point for %s: %w", entityID, err)
	}
	return nil
}

// CountByType returns point counts grouped by entity type.
func (s *PostgresPointStore) CountByType(ctx context.Context) (map[string]int, error) {
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

// Close releases the dedicated postgres connection.
func (s *PostgresPointStore) Close() error {
	return s.db.Close()
}

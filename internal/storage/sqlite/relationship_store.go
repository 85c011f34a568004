package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/attachehq/attache/internal/storage"
	"github.com/attachehq/attache/pkg/types"
)

// RelationshipStore implements storage.RelationshipStore over the
// entity_relationships table.
type RelationshipStore struct {
	db *sql.DB
}

var _ storage.RelationshipStore = (*RelationshipStore)(nil)

// Upsert inserts the edge, or replaces its metadata when the
// (from_id, to_id, relationship_type) triple already exists. The table's
// uniqueness constraint makes this race-safe: two concurrent creators of
// the same triple both land in the conflict branch and neither fails.
func (s *RelationshipStore) Upsert(ctx context.Context, rel *types.Relationship) (bool, error) {
	if rel == nil {
		return false, storage.ErrInvalidInput
	}
	if rel.FromID == "" || rel.ToID == "" || rel.Type == "" {
		return false, fmt.Errorf("%w: from_id, to_id, and relationship_type are required", storage.ErrInvalidInput)
	}

	metadataJSON, err := marshalJSON(rel.Metadata)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_relationships (
			from_id, from_type, to_id, to_type, relationship_type,
			metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(from_id, to_id, relationship_type) DO NOTHING
	`,
		rel.FromID, rel.FromType, rel.ToID, rel.ToType, rel.Type,
		metadataJSON, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: insert relationship: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: insert relationship: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	// Triple already exists (possibly created by a concurrent caller a
	// moment ago): the second writer's metadata wins.
	_, err = s.db.ExecContext(ctx, `
		UPDATE entity_relationships SET metadata = ?, updated_at = ?
		WHERE from_id = ? AND to_id = ? AND relationship_type = ?
	`, metadataJSON, now, rel.FromID, rel.ToID, rel.Type)
	if err != nil {
		return false, fmt.Errorf("sqlite: update relationship metadata: %w", err)
	}
	return false, nil
}

// ForEntity returns every edge where id appears as source or target.
func (s *RelationshipStore) ForEntity(ctx context.Context, id string, relTypes []string) ([]types.Relationship, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}

	query := `
		SELECT from_id, from_type, to_id, to_type, relationship_type,
		       metadata, created_at, updated_at
		FROM entity_relationships
		WHERE (from_id = ? OR to_id = ?)`
	args := []interface{}{id, id}
	if len(relTypes) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(relTypes)), ", ")
		query += " AND relationship_type IN (" + placeholders + ")"
		for _, t := range relTypes {
			args = append(args, t)
		}
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: relationships for %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	var rels []types.Relationship
	for rows.Next() {
		var (
			rel      types.Relationship
			metadata sql.NullString
		)
		if err := rows.Scan(
			&rel.FromID, &rel.FromType, &rel.ToID, &rel.ToType, &rel.Type,
			&metadata, &rel.CreatedAt, &rel.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan relationship: %w", err)
		}
		rel.Metadata = unmarshalMap(metadata)
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}

// DeleteForEntity removes every edge touching id, in either direction.
func (s *RelationshipStore) DeleteForEntity(ctx context.Context, id string) (int, error) {
	if id == "" {
		return 0, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM entity_relationships WHERE from_id = ? OR to_id = ?
	`, id, id)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete relationships for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete relationships for %s: %w", id, err)
	}
	return int(n), nil
}

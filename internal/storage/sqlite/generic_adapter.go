package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/attachehq/attache/internal/storage"
	"github.com/attachehq/attache/pkg/types"
)

// GenericAdapter implements storage.EntityAdapter for the indexed_entities
// table, which holds every type without a dedicated relational table
// (memory, event, fact, document, and any future tag).
//
// Unlike the concrete adapters it soft-deletes: Delete writes a tombstone
// timestamp, Restore (or a subsequent Store of the same ID) clears it.
//
// Filters address the JSON partitions by prefixed field name:
// "structured.topic", "analyzed.category", "metadata.version", plus the
// top-level columns "entity_type" and "source". The operator vocabulary is
// the full storage.FilterOp set.
type GenericAdapter struct {
	db *sql.DB
}

var (
	_ storage.EntityAdapter = (*GenericAdapter)(nil)
	_ storage.SoftDeleter   = (*GenericAdapter)(nil)
)

// genericFieldPattern restricts filter fields to simple JSON paths.
var genericFieldPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+(\.[a-zA-Z0-9_]+)*$`)

// EntityType returns "" because the generic adapter serves any tag that has
// no dedicated adapter.
func (a *GenericAdapter) EntityType() string { return "" }

// GetByID retrieves a generic entity. Tombstoned rows read as absent.
func (a *GenericAdapter) GetByID(ctx context.Context, id string) (*types.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	row := a.db.QueryRowContext(ctx, `
		SELECT id, entity_type, source, structured, analyzed, metadata
		FROM indexed_entities
		WHERE id = ? AND deleted_at IS NULL
	`, id)

	e, err := scanGenericRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: get entity: %w", err)
	}
	return e, nil
}

// Store upserts the generic row. Storing over a tombstoned row revives it.
// When the entity carries no ID, a generated one is minted from its type.
func (a *GenericAdapter) Store(ctx context.Context, e *types.Entity) (string, error) {
	if e == nil {
		return "", storage.ErrInvalidInput
	}
	if e.EntityType == "" {
		return "", fmt.Errorf("%w: entity_type is required", storage.ErrInvalidInput)
	}
	id := e.ID
	if id == "" {
		id = types.GeneratedEntityID(e.EntityType)
	}

	structuredJSON, err := marshalJSON(e.Structured)
	if err != nil {
		return "", err
	}
	analyzedJSON, err := marshalJSON(e.Analyzed)
	if err != nil {
		return "", err
	}
	metadataJSON, err := marshalJSON(e.Metadata)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO indexed_entities (
			id, entity_type, source, structured, analyzed, metadata,
			deleted_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			entity_type = excluded.entity_type,
			source = excluded.source,
			structured = excluded.structured,
			analyzed = excluded.analyzed,
			metadata = excluded.metadata,
			deleted_at = NULL,
			updated_at = excluded.updated_at
	`,
		id, e.EntityType, nullableString(e.Source),
		structuredJSON, analyzedJSON, metadataJSON,
		now, now,
	)
	if err != nil {
		return "", fmt.Errorf("sqlite: store entity: %w", err)
	}
	return id, nil
}

// Delete tombstones the row instead of removing it. Returns false when no
// live row existed.
func (a *GenericAdapter) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	res, err := a.db.ExecContext(ctx, `
		UPDATE indexed_entities SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL
	`, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("sqlite: delete entity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: delete entity: %w", err)
	}
	return n > 0, nil
}

// Restore clears the tombstone of a soft-deleted row.
func (a *GenericAdapter) Restore(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	res, err := a.db.ExecContext(ctx, `
		UPDATE indexed_entities SET deleted_at = NULL WHERE id = ? AND deleted_at IS NOT NULL
	`, id)
	if err != nil {
		return false, fmt.Errorf("sqlite: restore entity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: restore entity: %w", err)
	}
	return n > 0, nil
}

// Query filters generic rows. Partition fields are addressed with a
// "structured." / "analyzed." / "metadata." prefix and matched via
// json_extract; "entity_type" and "source" hit the real columns.
func (a *GenericAdapter) Query(ctx context.Context, filters []storage.Filter, limit int) ([]*types.Entity, error) {
	var (
		clauses []string
		args    []interface{}
	)
	for _, f := range filters {
		expr, err := genericFieldExpr(f.Field)
		if err != nil {
			return nil, err
		}
		switch f.Op {
		case storage.OpEq:
			clauses = append(clauses, expr+" = ?")
			args = append(args, f.Value)
		case storage.OpNeq:
			clauses = append(clauses, expr+" != ?")
			args = append(args, f.Value)
		case storage.OpContains:
			clauses = append(clauses, expr+" LIKE ? ESCAPE '\\'")
			args = append(args, "%"+escapeLike(fmt.Sprint(f.Value))+"%")
		case storage.OpPrefix:
			clauses = append(clauses, expr+" LIKE ? ESCAPE '\\'")
			args = append(args, escapeLike(fmt.Sprint(f.Value))+"%")
		case storage.OpGt:
			clauses = append(clauses, expr+" > ?")
			args = append(args, f.Value)
		case storage.OpGte:
			clauses = append(clauses, expr+" >= ?")
			args = append(args, f.Value)
		case storage.OpLt:
			clauses = append(clauses, expr+" < ?")
			args = append(args, f.Value)
		case storage.OpLte:
			clauses = append(clauses, expr+" <= ?")
			args = append(args, f.Value)
		case storage.OpIn:
			if len(f.Values) == 0 {
				clauses = append(clauses, "1 = 0")
				continue
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(f.Values)), ", ")
			clauses = append(clauses, expr+" IN ("+placeholders+")")
			args = append(args, f.Values...)
		default:
			return nil, fmt.Errorf("%w: operator %q", storage.ErrUnsupportedFilter, f.Op)
		}
	}

	query := `
		SELECT id, entity_type, source, structured, analyzed, metadata
		FROM indexed_entities
		WHERE deleted_at IS NULL`
	if len(clauses) > 0 {
		query += " AND " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY updated_at DESC LIMIT ?"
	args = append(args, normalizeLimit(limit))

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entities []*types.Entity
	for rows.Next() {
		e, err := scanGenericRow(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// EmbeddingText concatenates every string-valued structured field, then the
// analyzed summary when present. Field order is sorted for determinism.
func (a *GenericAdapter) EmbeddingText(e *types.Entity) string {
	var parts []string
	for _, k := range sortedKeys(e.Structured) {
		if s, ok := e.Structured[k].(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	if s := e.AnalyzedString("summary"); s != "" {
		parts = append(parts, s)
	}
	return truncate(strings.Join(parts, "\n"), 2000)
}

func (a *GenericAdapter) IndexPayload(e *types.Entity) map[string]interface{} {
	payload := map[string]interface{}{
		"source": e.Source,
	}
	// Conversation- and topic-scoped fields are the common generic filters.
	for _, k := range []string{"conversation_id", "topic", "category"} {
		if s := e.StructuredString(k); s != "" {
			payload[k] = s
		}
	}
	return payload
}

// genericFieldExpr translates a prefixed filter field into a SQL expression.
func genericFieldExpr(field string) (string, error) {
	if !genericFieldPattern.MatchString(field) {
		return "", fmt.Errorf("%w: field %q", storage.ErrUnsupportedFilter, field)
	}
	switch {
	case field == "entity_type" || field == "source":
		return field, nil
	case strings.HasPrefix(field, "structured."):
		return "json_extract(structured, '$." + strings.TrimPrefix(field, "structured.") + "')", nil
	case strings.HasPrefix(field, "analyzed."):
		return "json_extract(analyzed, '$." + strings.TrimPrefix(field, "analyzed.") + "')", nil
	case strings.HasPrefix(field, "metadata."):
		return "json_extract(metadata, '$." + strings.TrimPrefix(field, "metadata.") + "')", nil
	}
	return "", fmt.Errorf("%w: field %q", storage.ErrUnsupportedFilter, field)
}

func scanGenericRow(s interface{ Scan(...interface{}) error }) (*types.Entity, error) {
	var (
		e                             types.Entity
		source                        sql.NullString
		structured, analyzed, metadata sql.NullString
	)
	if err := s.Scan(&e.ID, &e.EntityType, &source, &structured, &analyzed, &metadata); err != nil {
		return nil, err
	}
	e.Source = source.String
	e.Structured = unmarshalMap(structured)
	e.Analyzed = unmarshalMap(analyzed)
	e.Metadata = unmarshalMap(metadata)
	return &e, nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

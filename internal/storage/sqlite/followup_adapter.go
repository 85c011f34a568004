package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/attachehq/attache/internal/storage"
	"github.com/attachehq/attache/pkg/types"
)

// FollowUpAdapter implements storage.EntityAdapter for the follow_ups table.
// Follow-ups are produced by the rule-based email classifiers; the natural
// key is the originating email's entity ID.
type FollowUpAdapter struct {
	db *sql.DB
}

var _ storage.EntityAdapter = (*FollowUpAdapter)(nil)

type followUpRow struct {
	ID          string
	EmailID     string
	ContactID   string
	Subject     string
	Reason      string
	DueDate     string
	Status      string
	Priority    string
	CompletedAt string

	Summary    string
	Confidence float64

	Metadata map[string]interface{}
}

var followUpQueryColumns = map[string]bool{
	"email_id":   true,
	"contact_id": true,
	"subject":    true,
	"due_date":   true,
	"status":     true,
	"priority":   true,
}

func (a *FollowUpAdapter) EntityType() string { return types.EntityTypeFollowUp }

func (a *FollowUpAdapter) toEntity(r *followUpRow) *types.Entity {
	structured := map[string]interface{}{
		"email_id":     r.EmailID,
		"contact_id":   r.ContactID,
		"subject":      r.Subject,
		"reason":       r.Reason,
		"due_date":     r.DueDate,
		"status":       r.Status,
		"priority":     r.Priority,
		"completed_at": r.CompletedAt,
	}
	analyzed := map[string]interface{}{
		"summary":    r.Summary,
		"confidence": r.Confidence,
	}
	return &types.Entity{
		ID:         r.ID,
		EntityType: types.EntityTypeFollowUp,
		Source:     "classifier",
		Structured: structured,
		Analyzed:   analyzed,
		Metadata:   r.Metadata,
	}
}

// fromEntity applies the documented enum fallbacks: unknown status values
// become "pending", unknown priorities become "normal".
func (a *FollowUpAdapter) fromEntity(e *types.Entity) *followUpRow {
	r := &followUpRow{
		ID:          e.ID,
		EmailID:     e.StructuredString("email_id"),
		ContactID:   e.StructuredString("contact_id"),
		Subject:     e.StructuredString("subject"),
		Reason:      e.StructuredString("reason"),
		DueDate:     e.StructuredString("due_date"),
		Status:      e.StructuredString("status"),
		Priority:    e.StructuredString("priority"),
		CompletedAt: e.StructuredString("completed_at"),
		Summary:     e.AnalyzedString("summary"),
		Confidence:  floatValue(e.Analyzed["confidence"]),
		Metadata:    e.Metadata,
	}
	if !types.IsValidFollowUpStatus(r.Status) {
		r.Status = types.FollowUpStatusPending
	}
	if !types.IsValidPriority(r.Priority) {
		r.Priority = types.PriorityNormal
	}
	return r
}

// GetByID retrieves a follow-up entity by its canonical ID.
func (a *FollowUpAdapter) GetByID(ctx context.Context, id string) (*types.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	row := a.db.QueryRowContext(ctx, `
		SELECT id, email_id, contact_id, subject, reason, due_date,
		       status, priority, completed_at, summary, confidence, metadata
		FROM follow_ups WHERE id = ?
	`, id)
	r, err := scanFollowUpRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: get follow-up: %w", err)
	}
	return a.toEntity(r), nil
}

// Store upserts the follow-up. When the entity carries no ID, one is derived
// from the originating email ID so re-classifying the same message converges
// on a single follow-up.
func (a *FollowUpAdapter) Store(ctx context.Context, e *types.Entity) (string, error) {
	if e == nil {
		return "", storage.ErrInvalidInput
	}
	r := a.fromEntity(e)
	if r.ID == "" {
		if r.EmailID == "" {
			return "", fmt.Errorf("%w: email_id is required", storage.ErrInvalidInput)
		}
		r.ID = types.NewEntityID(types.EntityTypeFollowUp, r.EmailID)
	}

	metadataJSON, err := marshalJSON(r.Metadata)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO follow_ups (
			id, email_id, contact_id, subject, reason, due_date,
			status, priority, completed_at, summary, confidence,
			metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email_id = excluded.email_id,
			contact_id = excluded.contact_id,
			subject = excluded.subject,
			reason = excluded.reason,
			due_date = excluded.due_date,
			status = excluded.status,
			priority = excluded.priority,
			completed_at = excluded.completed_at,
			summary = excluded.summary,
			confidence = excluded.confidence,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`,
		r.ID, nullableString(r.EmailID), nullableString(r.ContactID),
		nullableString(r.Subject), nullableString(r.Reason), nullableString(r.DueDate),
		r.Status, r.Priority, nullableString(r.CompletedAt),
		nullableString(r.Summary), r.Confidence,
		metadataJSON, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("sqlite: store follow-up: %w", err)
	}
	return r.ID, nil
}

// Delete removes the follow-up row. Returns false when no row existed.
func (a *FollowUpAdapter) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	res, err := a.db.ExecContext(ctx, `DELETE FROM follow_ups WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("sqlite: delete follow-up: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: delete follow-up: %w", err)
	}
	return n > 0, nil
}

// Query runs a structured filter query over the follow_ups table.
func (a *FollowUpAdapter) Query(ctx context.Context, filters []storage.Filter, limit int) ([]*types.Entity, error) {
	where, args, err := buildWhere(filters, followUpQueryColumns)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, email_id, contact_id, subject, reason, due_date,
		       status, priority, completed_at, summary, confidence, metadata
		FROM follow_ups`
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY due_date LIMIT ?"
	args = append(args, normalizeLimit(limit))

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query follow-ups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entities []*types.Entity
	for rows.Next() {
		r, err := scanFollowUpRow(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan follow-up: %w", err)
		}
		entities = append(entities, a.toEntity(r))
	}
	return entities, rows.Err()
}

// EmbeddingText projects the follow-up into prose: subject, reason, due date.
func (a *FollowUpAdapter) EmbeddingText(e *types.Entity) string {
	var parts []string
	if s := e.StructuredString("subject"); s != "" {
		parts = append(parts, "Follow up: "+s)
	}
	if s := e.StructuredString("reason"); s != "" {
		parts = append(parts, s)
	}
	if s := e.StructuredString("due_date"); s != "" {
		parts = append(parts, "Due: "+s)
	}
	if s := e.AnalyzedString("summary"); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n")
}

func (a *FollowUpAdapter) IndexPayload(e *types.Entity) map[string]interface{} {
	return map[string]interface{}{
		"status":   e.StructuredString("status"),
		"priority": e.StructuredString("priority"),
		"due_date": e.StructuredString("due_date"),
	}
}

func scanFollowUpRow(s interface{ Scan(...interface{}) error }) (*followUpRow, error) {
	var (
		r                                      followUpRow
		emailID, contactID, subject, reason    sql.NullString
		dueDate, completedAt, summary, metadata sql.NullString
	)
	err := s.Scan(
		&r.ID, &emailID, &contactID, &subject, &reason, &dueDate,
		&r.Status, &r.Priority, &completedAt, &summary, &r.Confidence, &metadata,
	)
	if err != nil {
		return nil, err
	}
	r.EmailID = emailID.String
	r.ContactID = contactID.String
	r.Subject = subject.String
	r.Reason = reason.String
	r.DueDate = dueDate.String
	r.CompletedAt = completedAt.String
	r.Summary = summary.String
	r.Metadata = unmarshalMap(metadata)
	return &r, nil
}

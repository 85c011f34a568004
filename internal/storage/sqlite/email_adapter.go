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

// EmailAdapter implements storage.EntityAdapter for the emails table.
type EmailAdapter struct {
	db *sql.DB
}

var _ storage.EntityAdapter = (*EmailAdapter)(nil)

// emailRow mirrors the emails table.
type emailRow struct {
	ID             string
	MessageID      string
	ThreadID       string
	Subject        string
	Sender         string
	SenderEmail    string
	Recipients     []string
	Date           string
	Snippet        string
	Body           string
	Labels         []string
	IsUnread       bool
	HasAttachments bool

	Summary       string
	Category      string
	Priority      string
	NeedsFollowup bool
	Sentiment     string

	Metadata map[string]interface{}
}

// emailQueryColumns is the filter vocabulary accepted by Query.
var emailQueryColumns = map[string]bool{
	"message_id":      true,
	"thread_id":       true,
	"subject":         true,
	"sender":          true,
	"sender_email":    true,
	"date":            true,
	"is_unread":       true,
	"has_attachments": true,
	"category":        true,
	"priority":        true,
	"needs_followup":  true,
}

func (a *EmailAdapter) EntityType() string { return types.EntityTypeEmail }

// toEntity splits a row into the three canonical partitions.
func (a *EmailAdapter) toEntity(r *emailRow) *types.Entity {
	structured := map[string]interface{}{
		"message_id":      r.MessageID,
		"thread_id":       r.ThreadID,
		"subject":         r.Subject,
		"sender":          r.Sender,
		"sender_email":    r.SenderEmail,
		"recipients":      r.Recipients,
		"date":            r.Date,
		"snippet":         r.Snippet,
		"body":            r.Body,
		"labels":          r.Labels,
		"is_unread":       r.IsUnread,
		"has_attachments": r.HasAttachments,
	}
	analyzed := map[string]interface{}{
		"summary":        r.Summary,
		"category":       r.Category,
		"priority":       r.Priority,
		"needs_followup": r.NeedsFollowup,
		"sentiment":      r.Sentiment,
	}
	return &types.Entity{
		ID:         r.ID,
		EntityType: types.EntityTypeEmail,
		Source:     "email",
		Structured: structured,
		Analyzed:   analyzed,
		Metadata:   r.Metadata,
	}
}

// fromEntity projects the canonical partitions back into a row. Absent
// optional fields take their type defaults; an unrecognized priority value
// falls back to "normal" instead of aborting the ingestion.
func (a *EmailAdapter) fromEntity(e *types.Entity) *emailRow {
	r := &emailRow{
		ID:             e.ID,
		MessageID:      e.StructuredString("message_id"),
		ThreadID:       e.StructuredString("thread_id"),
		Subject:        e.StructuredString("subject"),
		Sender:         e.StructuredString("sender"),
		SenderEmail:    e.StructuredString("sender_email"),
		Recipients:     stringSlice(e.Structured["recipients"]),
		Date:           e.StructuredString("date"),
		Snippet:        e.StructuredString("snippet"),
		Body:           e.StructuredString("body"),
		Labels:         stringSlice(e.Structured["labels"]),
		IsUnread:       boolValue(e.Structured["is_unread"]),
		HasAttachments: boolValue(e.Structured["has_attachments"]),
		Summary:        e.AnalyzedString("summary"),
		Category:       e.AnalyzedString("category"),
		Priority:       e.AnalyzedString("priority"),
		NeedsFollowup:  boolValue(e.Analyzed["needs_followup"]),
		Sentiment:      e.AnalyzedString("sentiment"),
		Metadata:       e.Metadata,
	}
	if r.Priority != "" && !types.IsValidPriority(r.Priority) {
		r.Priority = types.PriorityNormal
	}
	return r
}

// GetByID retrieves an email entity by its canonical ID.
func (a *EmailAdapter) GetByID(ctx context.Context, id string) (*types.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}

	row := a.db.QueryRowContext(ctx, `
		SELECT id, message_id, thread_id, subject, sender, sender_email,
		       recipients, date, snippet, body, labels, is_unread, has_attachments,
		       summary, category, priority, needs_followup, sentiment, metadata
		FROM emails WHERE id = ?
	`, id)

	r, err := scanEmailRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: get email: %w", err)
	}
	return a.toEntity(r), nil
}

// Store upserts the email row. When the entity carries no ID, one is derived
// from the message_id natural key.
func (a *EmailAdapter) Store(ctx context.Context, e *types.Entity) (string, error) {
	if e == nil {
		return "", storage.ErrInvalidInput
	}
	r := a.fromEntity(e)
	if r.ID == "" {
		if r.MessageID == "" {
			return "", fmt.Errorf("%w: message_id is required", storage.ErrInvalidInput)
		}
		r.ID = types.NewEntityID(types.EntityTypeEmail, r.MessageID)
	}

	recipientsJSON, err := marshalJSON(r.Recipients)
	if err != nil {
		return "", err
	}
	labelsJSON, err := marshalJSON(r.Labels)
	if err != nil {
		return "", err
	}
	metadataJSON, err := marshalJSON(r.Metadata)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO emails (
			id, message_id, thread_id, subject, sender, sender_email,
			recipients, date, snippet, body, labels, is_unread, has_attachments,
			summary, category, priority, needs_followup, sentiment,
			metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			message_id = excluded.message_id,
			thread_id = excluded.thread_id,
			subject = excluded.subject,
			sender = excluded.sender,
			sender_email = excluded.sender_email,
			recipients = excluded.recipients,
			date = excluded.date,
			snippet = excluded.snippet,
			body = excluded.body,
			labels = excluded.labels,
			is_unread = excluded.is_unread,
			has_attachments = excluded.has_attachments,
			summary = excluded.summary,
			category = excluded.category,
			priority = excluded.priority,
			needs_followup = excluded.needs_followup,
			sentiment = excluded.sentiment,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`,
		r.ID, r.MessageID, nullableString(r.ThreadID), nullableString(r.Subject),
		nullableString(r.Sender), nullableString(r.SenderEmail),
		recipientsJSON, nullableString(r.Date), nullableString(r.Snippet),
		nullableString(r.Body), labelsJSON, r.IsUnread, r.HasAttachments,
		nullableString(r.Summary), nullableString(r.Category), nullableString(r.Priority),
		r.NeedsFollowup, nullableString(r.Sentiment),
		metadataJSON, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("sqlite: store email: %w", err)
	}
	return r.ID, nil
}

// Delete removes the email row. Returns false when no row existed.
func (a *EmailAdapter) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	res, err := a.db.ExecContext(ctx, `DELETE FROM emails WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("sqlite: delete email: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: delete email: %w", err)
	}
	return n > 0, nil
}

// Query runs a structured filter query over the emails table.
func (a *EmailAdapter) Query(ctx context.Context, filters []storage.Filter, limit int) ([]*types.Entity, error) {
	where, args, err := buildWhere(filters, emailQueryColumns)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, message_id, thread_id, subject, sender, sender_email,
		       recipients, date, snippet, body, labels, is_unread, has_attachments,
		       summary, category, priority, needs_followup, sentiment, metadata
		FROM emails`
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY date DESC LIMIT ?"
	args = append(args, normalizeLimit(limit))

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query emails: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entities []*types.Entity
	for rows.Next() {
		r, err := scanEmailRow(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan email: %w", err)
		}
		entities = append(entities, a.toEntity(r))
	}
	return entities, rows.Err()
}

// EmbeddingText projects the email into prose for the similarity index:
// subject, sender, summary, then the body truncated to keep the embedding
// input bounded.
func (a *EmailAdapter) EmbeddingText(e *types.Entity) string {
	var parts []string
	if s := e.StructuredString("subject"); s != "" {
		parts = append(parts, "Subject: "+s)
	}
	if s := e.StructuredString("sender"); s != "" {
		parts = append(parts, "From: "+s)
	} else if s := e.StructuredString("sender_email"); s != "" {
		parts = append(parts, "From: "+s)
	}
	if s := e.AnalyzedString("summary"); s != "" {
		parts = append(parts, "Summary: "+s)
	}
	body := e.StructuredString("body")
	if body == "" {
		body = e.StructuredString("snippet")
	}
	if body != "" {
		parts = append(parts, truncate(body, 1000))
	}
	return strings.Join(parts, "\n")
}

// IndexPayload carries the fields usable as index-side filters.
func (a *EmailAdapter) IndexPayload(e *types.Entity) map[string]interface{} {
	return map[string]interface{}{
		"sender_email": e.StructuredString("sender_email"),
		"date":         e.StructuredString("date"),
		"category":     e.AnalyzedString("category"),
		"priority":     e.AnalyzedString("priority"),
	}
}

// scanEmailRow scans from either *sql.Row or *sql.Rows.
func scanEmailRow(s interface{ Scan(...interface{}) error }) (*emailRow, error) {
	var (
		r                                      emailRow
		threadID, subject, sender, senderEmail sql.NullString
		recipients, date, snippet, body        sql.NullString
		labels, summary, category, priority    sql.NullString
		sentiment, metadata                    sql.NullString
	)
	err := s.Scan(
		&r.ID, &r.MessageID, &threadID, &subject, &sender, &senderEmail,
		&recipients, &date, &snippet, &body, &labels, &r.IsUnread, &r.HasAttachments,
		&summary, &category, &priority, &r.NeedsFollowup, &sentiment, &metadata,
	)
	if err != nil {
		return nil, err
	}
	r.ThreadID = threadID.String
	r.Subject = subject.String
	r.Sender = sender.String
	r.SenderEmail = senderEmail.String
	r.Recipients = unmarshalStrings(recipients)
	r.Date = date.String
	r.Snippet = snippet.String
	r.Body = body.String
	r.Labels = unmarshalStrings(labels)
	r.Summary = summary.String
	r.Category = category.String
	r.Priority = priority.String
	r.Sentiment = sentiment.String
	r.Metadata = unmarshalMap(metadata)
	return &r, nil
}

// truncate clips s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}

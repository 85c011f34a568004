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

// MeetingAdapter implements storage.EntityAdapter for the meetings table.
// The natural key is the calendar event ID when present, else the title
// plus start time.
type MeetingAdapter struct {
	db *sql.DB
}

var _ storage.EntityAdapter = (*MeetingAdapter)(nil)

type meetingRow struct {
	ID           string
	EventID      string
	Title        string
	Organizer    string
	Participants []string
	StartTime    string
	EndTime      string
	Location     string
	Transcript   string

	Summary     string
	ActionItems []string
	Decisions   []string
	Category    string

	Metadata map[string]interface{}
}

var meetingQueryColumns = map[string]bool{
	"event_id":   true,
	"title":      true,
	"organizer":  true,
	"start_time": true,
	"end_time":   true,
	"location":   true,
	"category":   true,
}

func (a *MeetingAdapter) EntityType() string { return types.EntityTypeMeeting }

func (a *MeetingAdapter) toEntity(r *meetingRow) *types.Entity {
	structured := map[string]interface{}{
		"event_id":     r.EventID,
		"title":        r.Title,
		"organizer":    r.Organizer,
		"participants": r.Participants,
		"start_time":   r.StartTime,
		"end_time":     r.EndTime,
		"location":     r.Location,
		"transcript":   r.Transcript,
	}
	analyzed := map[string]interface{}{
		"summary":      r.Summary,
		"action_items": r.ActionItems,
		"decisions":    r.Decisions,
		"category":     r.Category,
	}
	return &types.Entity{
		ID:         r.ID,
		EntityType: types.EntityTypeMeeting,
		Source:     "calendar",
		Structured: structured,
		Analyzed:   analyzed,
		Metadata:   r.Metadata,
	}
}

func (a *MeetingAdapter) fromEntity(e *types.Entity) *meetingRow {
	return &meetingRow{
		ID:           e.ID,
		EventID:      e.StructuredString("event_id"),
		Title:        e.StructuredString("title"),
		Organizer:    e.StructuredString("organizer"),
		Participants: stringSlice(e.Structured["participants"]),
		StartTime:    e.StructuredString("start_time"),
		EndTime:      e.StructuredString("end_time"),
		Location:     e.StructuredString("location"),
		Transcript:   e.StructuredString("transcript"),
		Summary:      e.AnalyzedString("summary"),
		ActionItems:  stringSlice(e.Analyzed["action_items"]),
		Decisions:    stringSlice(e.Analyzed["decisions"]),
		Category:     e.AnalyzedString("category"),
		Metadata:     e.Metadata,
	}
}

// GetByID retrieves a meeting entity by its canonical ID.
func (a *MeetingAdapter) GetByID(ctx context.Context, id string) (*types.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	row := a.db.QueryRowContext(ctx, `
		SELECT id, event_id, title, organizer, participants, start_time, end_time,
		       location, transcript, summary, action_items, decisions, category, metadata
		FROM meetings WHERE id = ?
	`, id)
	r, err := scanMeetingRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: get meeting: %w", err)
	}
	return a.toEntity(r), nil
}

// Store upserts the meeting row.
func (a *MeetingAdapter) Store(ctx context.Context, e *types.Entity) (string, error) {
	if e == nil {
		return "", storage.ErrInvalidInput
	}
	r := a.fromEntity(e)
	if r.ID == "" {
		key := r.EventID
		if key == "" {
			if r.Title == "" {
				return "", fmt.Errorf("%w: event_id or title is required", storage.ErrInvalidInput)
			}
			key = r.Title + " " + r.StartTime
		}
		r.ID = types.NewEntityID(types.EntityTypeMeeting, key)
	}

	participantsJSON, err := marshalJSON(r.Participants)
	if err != nil {
		return "", err
	}
	actionItemsJSON, err := marshalJSON(r.ActionItems)
	if err != nil {
		return "", err
	}
	decisionsJSON, err := marshalJSON(r.Decisions)
	if err != nil {
		return "", err
	}
	metadataJSON, err := marshalJSON(r.Metadata)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO meetings (
			id, event_id, title, organizer, participants, start_time, end_time,
			location, transcript, summary, action_items, decisions, category,
			metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			event_id = excluded.event_id,
			title = excluded.title,
			organizer = excluded.organizer,
			participants = excluded.participants,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			location = excluded.location,
			transcript = excluded.transcript,
			summary = excluded.summary,
			action_items = excluded.action_items,
			decisions = excluded.decisions,
			category = excluded.category,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`,
		r.ID, nullableString(r.EventID), nullableString(r.Title), nullableString(r.Organizer),
		participantsJSON, nullableString(r.StartTime), nullableString(r.EndTime),
		nullableString(r.Location), nullableString(r.Transcript),
		nullableString(r.Summary), actionItemsJSON, decisionsJSON, nullableString(r.Category),
		metadataJSON, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("sqlite: store meeting: %w", err)
	}
	return r.ID, nil
}

// Delete removes the meeting row. Returns false when no row existed.
func (a *MeetingAdapter) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	res, err := a.db.ExecContext(ctx, `DELETE FROM meetings WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("sqlite: delete meeting: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: delete meeting: %w", err)
	}
	return n > 0, nil
}

// Query runs a structured filter query over the meetings table.
func (a *MeetingAdapter) Query(ctx context.Context, filters []storage.Filter, limit int) ([]*types.Entity, error) {
	where, args, err := buildWhere(filters, meetingQueryColumns)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, event_id, title, organizer, participants, start_time, end_time,
		       location, transcript, summary, action_items, decisions, category, metadata
		FROM meetings`
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY start_time DESC LIMIT ?"
	args = append(args, normalizeLimit(limit))

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query meetings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entities []*types.Entity
	for rows.Next() {
		r, err := scanMeetingRow(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan meeting: %w", err)
		}
		entities = append(entities, a.toEntity(r))
	}
	return entities, rows.Err()
}

// EmbeddingText projects the meeting into prose: title, participants,
// summary, then the transcript truncated to keep the embedding bounded.
func (a *MeetingAdapter) EmbeddingText(e *types.Entity) string {
	var parts []string
	if s := e.StructuredString("title"); s != "" {
		parts = append(parts, "Meeting: "+s)
	}
	if ps := stringSlice(e.Structured["participants"]); len(ps) > 0 {
		parts = append(parts, "Participants: "+strings.Join(ps, ", "))
	}
	if s := e.AnalyzedString("summary"); s != "" {
		parts = append(parts, "Summary: "+s)
	}
	if items := stringSlice(e.Analyzed["action_items"]); len(items) > 0 {
		parts = append(parts, "Action items: "+strings.Join(items, "; "))
	}
	if s := e.StructuredString("transcript"); s != "" {
		parts = append(parts, truncate(s, 1500))
	}
	return strings.Join(parts, "\n")
}

func (a *MeetingAdapter) IndexPayload(e *types.Entity) map[string]interface{} {
	return map[string]interface{}{
		"organizer":  e.StructuredString("organizer"),
		"start_time": e.StructuredString("start_time"),
		"category":   e.AnalyzedString("category"),
	}
}

func scanMeetingRow(s interface{ Scan(...interface{}) error }) (*meetingRow, error) {
	var (
		r                                         meetingRow
		eventID, title, organizer, participants   sql.NullString
		startTime, endTime, location, transcript  sql.NullString
		summary, actionItems, decisions, category sql.NullString
		metadata                                  sql.NullString
	)
	err := s.Scan(
		&r.ID, &eventID, &title, &organizer, &participants, &startTime, &endTime,
		&location, &transcript, &summary, &actionItems, &decisions, &category, &metadata,
	)
	if err != nil {
		return nil, err
	}
	r.EventID = eventID.String
	r.Title = title.String
	r.Organizer = organizer.String
	r.Participants = unmarshalStrings(participants)
	r.StartTime = startTime.String
	r.EndTime = endTime.String
	r.Location = location.String
	r.Transcript = transcript.String
	r.Summary = summary.String
	r.ActionItems = unmarshalStrings(actionItems)
	r.Decisions = unmarshalStrings(decisions)
	r.Category = category.String
	r.Metadata = unmarshalMap(metadata)
	return &r, nil
}

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

// ContactAdapter implements storage.EntityAdapter for the contacts table.
// The natural key is the contact's email address.
type ContactAdapter struct {
	db *sql.DB
}

var _ storage.EntityAdapter = (*ContactAdapter)(nil)

type contactRow struct {
	ID     string
	Name   string
	Email  string
	Phone  string
	Company string
	Role   string
	Notes  string
	Tags   []string

	Summary          string
	Category         string
	InteractionCount int
	LastInteraction  string

	Metadata map[string]interface{}
}

var contactQueryColumns = map[string]bool{
	"name":     true,
	"email":    true,
	"phone":    true,
	"company":  true,
	"role":     true,
	"category": true,
}

func (a *ContactAdapter) EntityType() string { return types.EntityTypeContact }

func (a *ContactAdapter) toEntity(r *contactRow) *types.Entity {
	structured := map[string]interface{}{
		"name":    r.Name,
		"email":   r.Email,
		"phone":   r.Phone,
		"company": r.Company,
		"role":    r.Role,
		"notes":   r.Notes,
		"tags":    r.Tags,
	}
	analyzed := map[string]interface{}{
		"summary":           r.Summary,
		"category":          r.Category,
		"interaction_count": r.InteractionCount,
		"last_interaction":  r.LastInteraction,
	}
	return &types.Entity{
		ID:         r.ID,
		EntityType: types.EntityTypeContact,
		Source:     "contact",
		Structured: structured,
		Analyzed:   analyzed,
		Metadata:   r.Metadata,
	}
}

func (a *ContactAdapter) fromEntity(e *types.Entity) *contactRow {
	return &contactRow{
		ID:               e.ID,
		Name:             e.StructuredString("name"),
		Email:            e.StructuredString("email"),
		Phone:            e.StructuredString("phone"),
		Company:          e.StructuredString("company"),
		Role:             e.StructuredString("role"),
		Notes:            e.StructuredString("notes"),
		Tags:             stringSlice(e.Structured["tags"]),
		Summary:          e.AnalyzedString("summary"),
		Category:         e.AnalyzedString("category"),
		InteractionCount: int(floatValue(e.Analyzed["interaction_count"])),
		LastInteraction:  e.AnalyzedString("last_interaction"),
		Metadata:         e.Metadata,
	}
}

// GetByID retrieves a contact entity by its canonical ID.
func (a *ContactAdapter) GetByID(ctx context.Context, id string) (*types.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	row := a.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, company, role, notes, tags,
		       summary, category, interaction_count, last_interaction, metadata
		FROM contacts WHERE id = ?
	`, id)
	r, err := scanContactRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: get contact: %w", err)
	}
	return a.toEntity(r), nil
}

// Store upserts the contact. Upsert is keyed on the email natural key as
// well as the ID, so re-ingesting the same address converges on one row.
func (a *ContactAdapter) Store(ctx context.Context, e *types.Entity) (string, error) {
	if e == nil {
		return "", storage.ErrInvalidInput
	}
	r := a.fromEntity(e)
	if r.Email == "" {
		return "", fmt.Errorf("%w: email is required", storage.ErrInvalidInput)
	}
	if r.ID == "" {
		r.ID = types.NewEntityID(types.EntityTypeContact, r.Email)
	}

	tagsJSON, err := marshalJSON(r.Tags)
	if err != nil {
		return "", err
	}
	metadataJSON, err := marshalJSON(r.Metadata)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO contacts (
			id, name, email, phone, company, role, notes, tags,
			summary, category, interaction_count, last_interaction,
			metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			company = excluded.company,
			role = excluded.role,
			notes = excluded.notes,
			tags = excluded.tags,
			summary = excluded.summary,
			category = excluded.category,
			interaction_count = excluded.interaction_count,
			last_interaction = excluded.last_interaction,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`,
		r.ID, nullableString(r.Name), r.Email, nullableString(r.Phone),
		nullableString(r.Company), nullableString(r.Role), nullableString(r.Notes),
		tagsJSON, nullableString(r.Summary), nullableString(r.Category),
		r.InteractionCount, nullableString(r.LastInteraction),
		metadataJSON, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("sqlite: store contact: %w", err)
	}
	return r.ID, nil
}

// Delete removes the contact row. Returns false when no row existed.
func (a *ContactAdapter) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	res, err := a.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("sqlite: delete contact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: delete contact: %w", err)
	}
	return n > 0, nil
}

// Query runs a structured filter query over the contacts table.
func (a *ContactAdapter) Query(ctx context.Context, filters []storage.Filter, limit int) ([]*types.Entity, error) {
	where, args, err := buildWhere(filters, contactQueryColumns)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, name, email, phone, company, role, notes, tags,
		       summary, category, interaction_count, last_interaction, metadata
		FROM contacts`
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY name LIMIT ?"
	args = append(args, normalizeLimit(limit))

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query contacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entities []*types.Entity
	for rows.Next() {
		r, err := scanContactRow(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan contact: %w", err)
		}
		entities = append(entities, a.toEntity(r))
	}
	return entities, rows.Err()
}

// EmbeddingText projects the contact into prose: name, company, role, notes.
func (a *ContactAdapter) EmbeddingText(e *types.Entity) string {
	var parts []string
	if s := e.StructuredString("name"); s != "" {
		parts = append(parts, s)
	}
	if s := e.StructuredString("email"); s != "" {
		parts = append(parts, s)
	}
	if s := e.StructuredString("company"); s != "" {
		parts = append(parts, "Company: "+s)
	}
	if s := e.StructuredString("role"); s != "" {
		parts = append(parts, "Role: "+s)
	}
	if s := e.StructuredString("notes"); s != "" {
		parts = append(parts, truncate(s, 500))
	}
	return strings.Join(parts, "\n")
}

func (a *ContactAdapter) IndexPayload(e *types.Entity) map[string]interface{} {
	return map[string]interface{}{
		"email":   e.StructuredString("email"),
		"company": e.StructuredString("company"),
	}
}

func scanContactRow(s interface{ Scan(...interface{}) error }) (*contactRow, error) {
	var (
		r                                  contactRow
		name, phone, company, role, notes  sql.NullString
		tags, summary, category, lastInter sql.NullString
		metadata                           sql.NullString
	)
	err := s.Scan(
		&r.ID, &name, &r.Email, &phone, &company, &role, &notes, &tags,
		&summary, &category, &r.InteractionCount, &lastInter, &metadata,
	)
	if err != nil {
		return nil, err
	}
	r.Name = name.String
	r.Phone = phone.String
	r.Company = company.String
	r.Role = role.String
	r.Notes = notes.String
	r.Tags = unmarshalStrings(tags)
	r.Summary = summary.String
	r.Category = category.String
	r.LastInteraction = lastInter.String
	r.Metadata = unmarshalMap(metadata)
	return &r, nil
}

package types

import (
	"strings"

	"github.com/google/uuid"
)

// Entity is the canonical persisted record. Every record in the system,
// regardless of its native storage table, round-trips through this shape.
//
// The three map partitions have distinct ownership:
//   - Structured holds normalized source fields (the facts). Dates and
//     enum-like values are serialized to plain strings so nothing above
//     the adapter layer needs per-type branching.
//   - Analyzed holds derived annotation fields (summaries, categories,
//     confidence scores) produced by classifiers or an LLM.
//   - Metadata holds bookkeeping written by the data layer itself: index
//     timestamps, version counters, the similarity-index point reference,
//     and the soft-delete marker for generic types.
type Entity struct {
	ID         string                 `json:"id"`
	EntityType string                 `json:"entity_type"`
	Source     string                 `json:"source,omitempty"`
	Structured map[string]interface{} `json:"structured,omitempty"`
	Analyzed   map[string]interface{} `json:"analyzed,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`

	// Relationships is transient: populated only on read, never persisted
	// with the entity row itself.
	Relationships *EntityRelationships `json:"relationships,omitempty"`
}

// EntityRelationships groups the edges touching an entity, split by
// direction relative to the entity's own ID.
type EntityRelationships struct {
	Outgoing []Relationship `json:"outgoing,omitempty"`
	Incoming []Relationship `json:"incoming,omitempty"`
}

// NewEntityID builds the canonical type-prefixed ID for a record with a
// stable natural key: "{entityType}_{normalized source id}". Re-ingesting
// the same source record always yields the same ID.
func NewEntityID(entityType, sourceID string) string {
	return entityType + "_" + NormalizeSourceID(sourceID)
}

// GeneratedEntityID builds an ID for types without a natural key
// (memory, event, fact): "{entityType}_{random uuid}".
func GeneratedEntityID(entityType string) string {
	return entityType + "_" + uuid.NewString()
}

// TypeFromID extracts the entity-type prefix from a canonical ID.
// Returns "" when the ID carries no prefix separator.
func TypeFromID(id string) string {
	i := strings.IndexByte(id, '_')
	if i <= 0 {
		return ""
	}
	return id[:i]
}

// NormalizeSourceID lowercases a natural key and maps every character
// outside [a-z0-9] to an ID-safe replacement. "alice@x.com" becomes
// "alice_at_x_com", so the derived ID is both stable and readable.
func NormalizeSourceID(sourceID string) string {
	var b strings.Builder
	b.Grow(len(sourceID))
	prevUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(sourceID)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '@':
			if !prevUnderscore {
				b.WriteString("_at_")
			} else {
				b.WriteString("at_")
			}
			prevUnderscore = true
		default:
			if !prevUnderscore {
				b.WriteByte('_')
			}
			prevUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}

// StructuredString returns the named structured field as a string,
// or "" when absent or not a string.
func (e *Entity) StructuredString(key string) string {
	if e == nil || e.Structured == nil {
		return ""
	}
	s, _ := e.Structured[key].(string)
	return s
}

// AnalyzedString returns the named analyzed field as a string,
// or "" when absent or not a string.
func (e *Entity) AnalyzedString(key string) string {
	if e == nil || e.Analyzed == nil {
		return ""
	}
	s, _ := e.Analyzed[key].(string)
	return s
}

// MetadataString returns the named metadata field as a string,
// or "" when absent or not a string.
func (e *Entity) MetadataString(key string) string {
	if e == nil || e.Metadata == nil {
		return ""
	}
	s, _ := e.Metadata[key].(string)
	return s
}

// SetMetadata writes a bookkeeping field, allocating the map if needed.
func (e *Entity) SetMetadata(key string, value interface{}) {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
}

// IsDeleted reports whether the entity carries a soft-delete tombstone.
// Only generic types are ever tombstoned; concrete types hard-delete.
func (e *Entity) IsDeleted() bool {
	return e.MetadataString(MetaDeletedAt) != ""
}

// Package types defines the core data structures for the attache entity
// index: entities, relationships, similarity-index points, and the context
// bundles assembled for task workers.
package types

// Entity type tags. The tag doubles as the ID prefix, so tags must not
// contain underscores (the ID parser splits on the first one).
const (
	EntityTypeEmail    = "email"
	EntityTypeContact  = "contact"
	EntityTypeFollowUp = "followup"
	EntityTypeMeeting  = "meeting"

	// Generic types stored in the indexed_entities table.
	EntityTypeMemory   = "memory"
	EntityTypeEvent    = "event"
	EntityTypeFact     = "fact"
	EntityTypeDocument = "document"
)

// ConcreteEntityTypes lists the types backed by a dedicated relational table.
var ConcreteEntityTypes = []string{
	EntityTypeEmail,
	EntityTypeContact,
	EntityTypeFollowUp,
	EntityTypeMeeting,
}

// GeneratedIDTypes lists the types whose natural key is a generated value;
// their IDs carry a random suffix instead of a source-derived one.
var GeneratedIDTypes = []string{
	EntityTypeMemory,
	EntityTypeEvent,
	EntityTypeFact,
}

// Relationship type constants.
const (
	RelReceivedFrom   = "received_from"   // email -> sender contact
	RelHasParticipant = "has_participant" // meeting -> participant contact
	RelHasAttendee    = "has_attendee"    // event -> attendee contact
	RelSupersedes     = "supersedes"      // new fact -> superseded fact
	RelFollowUpFor    = "follow_up_for"   // follow-up -> originating email
	RelRelatesTo      = "relates_to"      // generic association
)

// Follow-up status values. Unrecognized producer values fall back to
// FollowUpStatusPending rather than failing ingestion.
const (
	FollowUpStatusPending  = "pending"
	FollowUpStatusSent     = "sent"
	FollowUpStatusDone     = "done"
	FollowUpStatusCanceled = "canceled"
)

// Priority values shared by email and follow-up records. Unrecognized
// producer values fall back to PriorityNormal.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Well-known metadata keys written by the data layer and the indexer.
const (
	MetaVectorPointID = "vector_point_id" // back-reference to the similarity-index point
	MetaIndexedAt     = "indexed_at"      // RFC3339 timestamp of the last index write
	MetaVersion       = "version"         // store counter, bumped on every upsert
	MetaContentHash   = "content_hash"    // sha256 of the embedding text at index time
	MetaDeletedAt     = "deleted_at"      // tombstone timestamp (generic types only)
	MetaSupersededBy  = "superseded_by"   // fact supersession audit trail
	MetaSupersedes    = "supersedes"
	MetaSupersededAt  = "superseded_at"
	MetaIsCurrent     = "is_current"
)

// IsValidFollowUpStatus reports whether s is a recognized follow-up status.
func IsValidFollowUpStatus(s string) bool {
	switch s {
	case FollowUpStatusPending, FollowUpStatusSent, FollowUpStatusDone, FollowUpStatusCanceled:
		return true
	}
	return false
}

// IsValidPriority reports whether p is a recognized priority value.
func IsValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Package storage defines the adapter and relationship-store contracts for
// the entity index.
//
// The layer is built from small interfaces that the mediating data layer
// composes: one EntityAdapter per concrete entity type (plus a generic one
// for loosely-typed records) and a single RelationshipStore for the edge
// table. Backends implement these independently; the sqlite subpackage is
// the reference implementation.
package storage

import (
	"context"

	"github.com/attachehq/attache/pkg/types"
)

// EntityAdapter translates between the canonical entity shape and one
// type's native storage row. It owns that type's relational query
// vocabulary and the text used to build its embedding.
type EntityAdapter interface {
	// EntityType returns the type tag this adapter serves. The generic
	// adapter returns "" and accepts any tag without a dedicated adapter.
	EntityType() string

	// GetByID retrieves an entity by its canonical ID.
	// Returns ErrNotFound if no row exists (or, for generic types, if the
	// row is tombstoned).
	GetByID(ctx context.Context, id string) (*types.Entity, error)

	// Store upserts an entity: update when a row with the same natural key
	// exists, insert otherwise. Returns the canonical ID.
	Store(ctx context.Context, entity *types.Entity) (string, error)

	// Delete removes the row for id. Generic adapters tombstone instead of
	// deleting. Returns false (without error) when no row existed.
	Delete(ctx context.Context, id string) (bool, error)

	// Query runs a structured filter query in this adapter's vocabulary.
	// Filters combine with AND; unknown fields or operators return
	// ErrUnsupportedFilter.
	Query(ctx context.Context, filters []Filter, limit int) ([]*types.Entity, error)

	// EmbeddingText projects the entity into deterministic prose suitable
	// for embedding. This is the sole place where "what makes two entities
	// of this type similar" is decided.
	EmbeddingText(entity *types.Entity) string

	// IndexPayload returns the small subset of structured fields carried on
	// the similarity-index point as index-side filters.
	IndexPayload(entity *types.Entity) map[string]interface{}
}

// SoftDeleter is implemented by adapters that tombstone instead of hard
// deleting. Restore clears the tombstone for a previously deleted row.
type SoftDeleter interface {
	Restore(ctx context.Context, id string) (bool, error)
}

// RelationshipStore manages the directed edge table between entity IDs.
type RelationshipStore interface {
	// Upsert inserts the edge or, when the (from, to, type) triple already
	// exists, replaces its metadata. Returns true when a new edge row was
	// created. Safe under concurrent creation of the same triple.
	Upsert(ctx context.Context, rel *types.Relationship) (bool, error)

	// ForEntity returns every edge where id appears as source or target,
	// optionally restricted to the given relationship types.
	ForEntity(ctx context.Context, id string, relTypes []string) ([]types.Relationship, error)

	// DeleteForEntity removes every edge touching id, in either direction.
	// Returns the number of edges removed.
	DeleteForEntity(ctx context.Context, id string) (int, error)
}

package types

import "time"

// Relationship is a directed, typed edge between two entity IDs.
//
// At most one edge with the same (FromID, ToID, Type) triple exists;
// re-creating an existing edge updates its Metadata instead of inserting
// a duplicate. Edges are never mutated otherwise, and are removed only
// as a side effect of deleting an endpoint entity.
type Relationship struct {
	FromID   string                 `json:"from_id"`
	FromType string                 `json:"from_type"`
	ToID     string                 `json:"to_id"`
	ToType   string                 `json:"to_type"`
	Type     string                 `json:"relationship_type"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reverse returns the edge as seen from the other endpoint. Relationships
// are stored in one direction only; readers that want symmetric access
// flip them at read time.
func (r Relationship) Reverse() Relationship {
	return Relationship{
		FromID:    r.ToID,
		FromType:  r.ToType,
		ToID:      r.FromID,
		ToType:    r.FromType,
		Type:      r.Type,
		Metadata:  r.Metadata,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

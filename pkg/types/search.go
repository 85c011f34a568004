package types

import "time"

// SearchResult pairs a hydrated entity with its similarity score.
type SearchResult struct {
	Entity *Entity `json:"entity"`
	Score  float64 `json:"score"`
}

// ContextBundle is the per-type grouped, deduplicated result of a
// SearchForTask call, consumed by downstream task workers.
type ContextBundle struct {
	// Entities groups results by entity type tag.
	Entities map[string][]*Entity `json:"entities"`

	// Graph maps each resolved entity hint to the edges found one hop out.
	Graph map[string][]Relationship `json:"graph,omitempty"`

	// Summary is a short natural-language tally of the bundle contents,
	// e.g. "Context includes: 3 emails, 2 follow-ups, 1 contact".
	Summary string `json:"summary"`

	Retrieval RetrievalMeta `json:"retrieval"`
}

// RetrievalMeta records who asked for the bundle and what came back.
type RetrievalMeta struct {
	Consumer      string    `json:"consumer"`
	Timestamp     time.Time `json:"timestamp"`
	TotalEntities int       `json:"total_entities"`
}

// Add appends an entity to its type bucket unless the ID is already
// present in the bundle. Returns true when the entity was added.
func (b *ContextBundle) Add(e *Entity) bool {
	if e == nil || e.ID == "" {
		return false
	}
	if b.Entities == nil {
		b.Entities = make(map[string][]*Entity)
	}
	for _, existing := range b.Entities[e.EntityType] {
		if existing.ID == e.ID {
			return false
		}
	}
	b.Entities[e.EntityType] = append(b.Entities[e.EntityType], e)
	return true
}

// Total counts entities across all buckets.
func (b *ContextBundle) Total() int {
	n := 0
	for _, bucket := range b.Entities {
		n += len(bucket)
	}
	return n
}

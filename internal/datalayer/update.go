package datalayer

// EntityUpdate lists the fields to change in an existing entity. Only keys
// present in a partition map are applied; absent keys keep their stored
// values, so a partial producer payload can never blank out fields it
// didn't mention.
type EntityUpdate struct {
	Structured map[string]interface{}
	Analyzed   map[string]interface{}
	Metadata   map[string]interface{}
}

// IsEmpty reports whether the update carries no changes.
func (u EntityUpdate) IsEmpty() bool {
	return len(u.Structured) == 0 && len(u.Analyzed) == 0 && len(u.Metadata) == 0
}

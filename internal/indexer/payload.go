package indexer

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError reports required payload fields that were missing or
// empty. Callers can distinguish it from transport or storage failures.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", "))
}

// requireFields checks that each named field is present and non-empty.
func requireFields(payload Payload, fields ...string) error {
	var missing []string
	for _, f := range fields {
		if payload.str(f) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// Analyzed key sets per entity type. Keys listed here land in the analyzed
// partition; everything else in the payload is treated as structured
// source-of-truth data. Unknown keys default to structured so nothing a
// producer sends is silently dropped.
var (
	emailAnalyzedKeys = keySet(
		"summary", "category", "priority", "needs_followup",
		"followup_reason", "sentiment", "action_items")

	contactAnalyzedKeys = keySet(
		"summary", "category", "interaction_count", "last_interaction",
		"relationship_strength")

	followUpAnalyzedKeys = keySet(
		"summary", "priority_reason")

	meetingAnalyzedKeys = keySet(
		"summary", "action_items", "decisions", "sentiment", "topics")

	genericAnalyzedKeys = keySet(
		"summary", "category", "sentiment", "topics", "importance")
)

func keySet(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// reservedKeys never land in either partition; they steer ingestion.
var reservedKeys = keySet("source", "entity_type")

// splitPayload partitions a producer payload into structured and analyzed
// maps according to the type's analyzed key set.
func splitPayload(payload Payload, analyzedKeys map[string]bool) (structured, analyzed map[string]interface{}) {
	structured = make(map[string]interface{})
	analyzed = make(map[string]interface{})
	for k, v := range payload {
		switch {
		case reservedKeys[k]:
		case analyzedKeys[k]:
			analyzed[k] = v
		default:
			structured[k] = v
		}
	}
	return structured, analyzed
}

// participantList extracts a string list from the payload, accepting both
// []string and []interface{} forms since producers decode from JSON.
func participantList(payload Payload, key string) []string {
	switch v := payload[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// parseParticipant splits "Name <addr@host>" or a bare address into its
// display name and email parts. Strings without an '@' yield no email.
func parseParticipant(p string) (name, email string) {
	p = strings.TrimSpace(p)
	if open := strings.LastIndex(p, "<"); open >= 0 {
		if end := strings.LastIndex(p, ">"); end > open {
			name = strings.TrimSpace(p[:open])
			email = strings.TrimSpace(p[open+1 : end])
			if strings.Contains(email, "@") {
				return name, email
			}
			return name, ""
		}
	}
	if strings.Contains(p, "@") && !strings.ContainsAny(p, " \t") {
		return "", p
	}
	return p, ""
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

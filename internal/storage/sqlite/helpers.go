package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/attachehq/attache/internal/storage"
)

// nullableString converts an empty string to a SQL NULL.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// marshalJSON serializes a non-empty map or slice, returning nil for empty
// input so the column stays NULL.
func marshalJSON(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case map[string]interface{}:
		if len(t) == 0 {
			return nil, nil
		}
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
	case []interface{}:
		if len(t) == 0 {
			return nil, nil
		}
	case nil:
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON column: %w", err)
	}
	return b, nil
}

// unmarshalMap decodes a nullable JSON object column.
func unmarshalMap(ns sql.NullString) map[string]interface{} {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(ns.String), &m); err != nil {
		return nil
	}
	return m
}

// unmarshalStrings decodes a nullable JSON string-array column.
func unmarshalStrings(ns sql.NullString) []string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		return nil
	}
	return out
}

// stringSlice coerces a structured-partition value (string slice or decoded
// JSON []interface{}) into []string.
func stringSlice(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// boolValue coerces a structured-partition value into a bool. SQLite has no
// boolean type, and producers send both booleans and 0/1 numbers.
func boolValue(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	}
	return false
}

// floatValue coerces a structured-partition value into a float64.
func floatValue(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	}
	return 0
}

// buildWhere translates filters into a WHERE fragment over whitelisted
// columns. Returns the clause (without the WHERE keyword), its arguments,
// and ErrUnsupportedFilter for any field outside the whitelist.
func buildWhere(filters []storage.Filter, columns map[string]bool) (string, []interface{}, error) {
	var (
		clauses []string
		args    []interface{}
	)
	for _, f := range filters {
		if !columns[f.Field] {
			return "", nil, fmt.Errorf("%w: field %q", storage.ErrUnsupportedFilter, f.Field)
		}
		switch f.Op {
		case storage.OpEq:
			clauses = append(clauses, f.Field+" = ?")
			args = append(args, f.Value)
		case storage.OpNeq:
			clauses = append(clauses, f.Field+" != ?")
			args = append(args, f.Value)
		case storage.OpContains:
			clauses = append(clauses, f.Field+" LIKE ? ESCAPE '\\'")
			args = append(args, "%"+escapeLike(fmt.Sprint(f.Value))+"%")
		case storage.OpPrefix:
			clauses = append(clauses, f.Field+" LIKE ? ESCAPE '\\'")
			args = append(args, escapeLike(fmt.Sprint(f.Value))+"%")
		case storage.OpGt:
			clauses = append(clauses, f.Field+" > ?")
			args = append(args, f.Value)
		case storage.OpGte:
			clauses = append(clauses, f.Field+" >= ?")
			args = append(args, f.Value)
		case storage.OpLt:
			clauses = append(clauses, f.Field+" < ?")
			args = append(args, f.Value)
		case storage.OpLte:
			clauses = append(clauses, f.Field+" <= ?")
			args = append(args, f.Value)
		case storage.OpIn:
			if len(f.Values) == 0 {
				clauses = append(clauses, "1 = 0") // empty set matches nothing
				continue
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(f.Values)), ", ")
			clauses = append(clauses, f.Field+" IN ("+placeholders+")")
			args = append(args, f.Values...)
		default:
			return "", nil, fmt.Errorf("%w: operator %q", storage.ErrUnsupportedFilter, f.Op)
		}
	}
	return strings.Join(clauses, " AND "), args, nil
}

// escapeLike escapes LIKE wildcards in user-supplied match values.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// normalizeLimit applies the default and maximum query limits.
func normalizeLimit(limit int) int {
	if limit < 1 {
		return 20
	}
	if limit > 200 {
		return 200
	}
	return limit
}

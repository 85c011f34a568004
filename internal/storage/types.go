package storage

import "errors"

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedFilter indicates a filter field or operator outside the
	// adapter's documented vocabulary.
	ErrUnsupportedFilter = errors.New("unsupported filter")
)

// FilterOp enumerates the supported query operators. Each adapter documents
// which subset of the vocabulary it accepts; anything else returns
// ErrUnsupportedFilter rather than silently matching nothing.
type FilterOp string

const (
	OpEq       FilterOp = "eq"
	OpNeq      FilterOp = "neq"
	OpContains FilterOp = "contains" // substring match
	OpPrefix   FilterOp = "prefix"
	OpGt       FilterOp = "gt"
	OpGte      FilterOp = "gte"
	OpLt       FilterOp = "lt"
	OpLte      FilterOp = "lte"
	OpIn       FilterOp = "in" // field value in Values
)

// Filter is one condition in an adapter query. Filters in a query are
// combined with AND semantics.
type Filter struct {
	Field  string
	Op     FilterOp
	Value  interface{}
	Values []interface{} // populated for OpIn only
}

// Eq is shorthand for an equality filter.
func Eq(field string, value interface{}) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

// In is shorthand for a field-in-set filter.
func In(field string, values ...interface{}) Filter {
	return Filter{Field: field, Op: OpIn, Values: values}
}

// Range builds a pair of bound filters for [start, end] queries on a
// string-serialized date field. Zero-value bounds are omitted.
func Range(field, start, end string) []Filter {
	var fs []Filter
	if start != "" {
		fs = append(fs, Filter{Field: field, Op: OpGte, Value: start})
	}
	if end != "" {
		fs = append(fs, Filter{Field: field, Op: OpLte, Value: end})
	}
	return fs
}

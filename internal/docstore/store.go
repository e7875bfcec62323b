// Package docstore defines the schemaless document store the table engine
// runs on, and provides in-memory, PostgreSQL and Firestore backends.
//
// The contract is small: collection-scoped CRUD, equality
// filters and ascending ordering by one field. Nothing here relies on
// transactions, joins or server-side aggregation.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Document is one stored document. Data never contains the id.
type Document struct {
	ID   string
	Data map[string]any
}

// Filter is an equality predicate on a top-level field.
type Filter struct {
	Field string
	Value any
}

// Query narrows a List call. The zero Query lists a whole collection in
// backend order.
type Query struct {
	Filters []Filter
	// OrderBy sorts ascending by one field. As in Firestore, documents that
	// lack the field are excluded from ordered results.
	OrderBy string
}

// Where returns a query with a single equality filter.
func Where(field string, value any) Query {
	return Query{Filters: []Filter{{Field: field, Value: value}}}
}

// OrderedBy returns a query that sorts ascending by field.
func OrderedBy(field string) Query {
	return Query{OrderBy: field}
}

// Store is the document store collaborator.
type Store interface {
	// Insert adds a document with a store-assigned id.
	Insert(ctx context.Context, collection string, data map[string]any) (string, error)
	// Create adds a document under id and fails with CodeAlreadyExists if
	// one is already present.
	Create(ctx context.Context, collection, id string, data map[string]any) error
	// Set writes the full value set of a document, replacing any existing one.
	Set(ctx context.Context, collection, id string, data map[string]any) error
	// Get fetches one document; CodeNotFound if it does not exist.
	Get(ctx context.Context, collection, id string) (Document, error)
	// List returns the documents of a collection matching q.
	List(ctx context.Context, collection string, q Query) ([]Document, error)
	// Update merges fields into an existing document; CodeNotFound if missing.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
	// Collections lists the names of all non-empty collections.
	Collections(ctx context.Context) ([]string, error)
	// Close releases backend resources.
	Close() error
}

// Code classifies store failures. The set is closed.
type Code string

const (
	CodePermissionDenied Code = "permission-denied"
	CodeUnavailable      Code = "unavailable"
	CodeUnauthenticated  Code = "unauthenticated"
	CodeNotFound         Code = "not-found"
	CodeQuotaExceeded    Code = "quota-exceeded"
	CodeOffline          Code = "offline"
	CodeTimeout          Code = "timeout"
	CodeAlreadyExists    Code = "already-exists"
	CodeInternal         Code = "internal"
)

// Error is a classified store error.
type Error struct {
	Code       Code
	Op         string
	Collection string
	ID         string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("docstore ")
	b.WriteString(e.Op)
	if e.Collection != "" {
		b.WriteString(" ")
		b.WriteString(e.Collection)
		if e.ID != "" {
			b.WriteString("/")
			b.WriteString(e.ID)
		}
	}
	b.WriteString(": ")
	b.WriteString(string(e.Code))
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Op == "" && t.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound      = &Error{Code: CodeNotFound}
	ErrAlreadyExists = &Error{Code: CodeAlreadyExists}
)

// CodeOf extracts the classification of err. Context errors map to timeout
// and unavailable; anything unclassified is internal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, context.Canceled):
		return CodeUnavailable
	}
	return CodeInternal
}

// IsNotFound reports whether err is a not-found store error.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}

func newError(code Code, op, collection, id string, err error) error {
	return &Error{Code: code, Op: op, Collection: collection, ID: id, Err: err}
}

func validateCollection(op, collection string) error {
	if collection == "" || strings.Contains(collection, "/") {
		return newError(CodeInternal, op, collection, "", fmt.Errorf("invalid collection name %q", collection))
	}
	return nil
}

// Compare orders two field values the way the backends do: missing values
// first, then booleans, numbers, timestamps and strings.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case string:
		return strings.Compare(av, b.(string))
	case time.Time:
		return av.Compare(b.(time.Time))
	}
	if fa, ok := toFloat(a); ok {
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case time.Time:
		return 3
	case string:
		return 4
	}
	if _, ok := toFloat(v); ok {
		return 2
	}
	return 5
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// equalValues compares filter operands, treating all numeric kinds alike.
func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	switch av := a.(type) {
	case string, bool, nil:
		return av == b
	}
	return false
}

// SortByField orders docs ascending by field, dropping those without it.
func SortByField(docs []Document, field string) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if _, ok := d.Data[field]; ok {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return Compare(out[i].Data[field], out[j].Data[field]) < 0
	})
	return out
}

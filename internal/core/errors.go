package core

// errors.go defines the error taxonomy shared by the table engine, the
// access layer and the HTTP surface.
//
// Each kind is a concrete type so callers can branch with errors.As:
//
//	ValidationError        rejected input (names, types, cell values)
//	NotFoundError          missing table, row, column or user
//	PermissionError        identity lacks the role or ownership required
//	FormatError            malformed CSV or JSON import payload
//	UnsupportedFormatError file kind the codec cannot read
//	PartialBatchFailure    a multi-document write partly failed
//
// Store failures stay as *docstore.Error and are classified by code.

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnauthenticated is returned when an operation runs without an identity.
var ErrUnauthenticated = errors.New("unauthenticated: sign in required")

// ErrEmptyFile is wrapped by the FormatError of an import with no content.
var ErrEmptyFile = errors.New("empty file")

// ValidationError reports input rejected before any store write.
type ValidationError struct {
	Field   string // Field or column the input belongs to
	Value   string // The rejected value, if any
	Message string // Human-readable reason
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
	}
	return "validation failed: " + e.Message
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Kind string // table, row, column, user
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Kind + " not found"
	}
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// PermissionError reports an authenticated identity that may not act.
type PermissionError struct {
	Action string
	Reason string
}

func (e *PermissionError) Error() string {
	if e.Reason == "" {
		return "permission denied: " + e.Action
	}
	return fmt.Sprintf("permission denied: %s: %s", e.Action, e.Reason)
}

// Forbidden builds a PermissionError.
func Forbidden(action, reason string) *PermissionError {
	return &PermissionError{Action: action, Reason: reason}
}

// FormatError reports an import payload that could not be parsed.
type FormatError struct {
	Format string // csv or json
	Line   int    // 1-based line, 0 when unknown
	Reason string
	Err    error // underlying sentinel, if any
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("invalid %s: line %d: %s", e.Format, e.Line, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Format, e.Reason)
}

func (e *FormatError) Unwrap() error { return e.Err }

// UnsupportedFormatError reports a file kind the codec does not read.
type UnsupportedFormatError struct {
	FileName string
	Message  string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Message != "" {
		return "unsupported format: " + e.Message
	}
	return "unsupported format: " + e.FileName
}

// BatchFailure is one failed document in a batch.
type BatchFailure struct {
	DocID string `json:"docId"`
	Error string `json:"error"`
	Err   error  `json:"-"`
}

// BatchResult records per-document outcomes of a multi-document write.
type BatchResult struct {
	Op        string         `json:"op"`
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Completed []string       `json:"completed"`
	Failed    []BatchFailure `json:"failed"`
}

// OK reports whether every document succeeded.
func (r BatchResult) OK() bool {
	return len(r.Failed) == 0
}

// Err returns a PartialBatchFailure when any document failed.
func (r BatchResult) Err() error {
	if r.OK() {
		return nil
	}
	return &PartialBatchFailure{Result: r}
}

// PartialBatchFailure reports a batch that completed only partially. The
// documents listed in Result.Completed were written; the rest were not.
type PartialBatchFailure struct {
	Result BatchResult
}

func (e *PartialBatchFailure) Error() string {
	ids := make([]string, 0, len(e.Result.Failed))
	for _, f := range e.Result.Failed {
		ids = append(ids, f.DocID)
	}
	return fmt.Sprintf("partial batch failure: %s: %d of %d documents failed [%s]",
		e.Result.Op, len(e.Result.Failed), e.Result.Total, strings.Join(ids, ", "))
}

// Unwrap exposes the first underlying failure for errors.Is checks.
func (e *PartialBatchFailure) Unwrap() error {
	for _, f := range e.Result.Failed {
		if f.Err != nil {
			return f.Err
		}
	}
	return nil
}

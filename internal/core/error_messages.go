// Package core holds the cross-cutting pieces of the table engine: the error
// taxonomy and its user-facing messages, the batch executor, the import
// limiter, request metadata and the audit trail.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// Error codes are grouped by category:
//
// # Store Errors (STO001-STO099)
//
// Errors classified by the document store:
//
//	STO001 - Permission denied: The store refused the operation
//	         Action: Ask an administrator for access
//	         Codes: permission-denied
//
//	STO002 - Unavailable: The store could not be reached
//	         Action: Please try again in a few moments
//	         Codes: unavailable; Patterns: "connection refused"
//
//	STO003 - Unauthenticated: The store rejected the credentials
//	         Action: Please log in again
//	         Codes: unauthenticated
//
//	STO004 - Not found: The requested document does not exist
//	         Action: Reload the page
//	         Codes: not-found
//
//	STO005 - Quota exceeded: The store refused more work
//	         Action: Please try again later
//	         Codes: quota-exceeded
//
//	STO006 - Offline: The network is down
//	         Action: Check your connection
//	         Codes: offline; Patterns: "network"
//
//	STO007 - Timeout: The request took too long
//	         Action: Please try again
//	         Codes: timeout; Patterns: "context deadline exceeded", "timeout"
//
//	STO008 - Already exists: A document with this id is already present
//	         Action: Choose a different name
//	         Codes: already-exists
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid input: A name, type or value was rejected
//	         Action: Correct the value and try again
//	         Types: *ValidationError
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the maximum size limit
//	          Action: Split the file into smaller chunks
//	          Patterns: "file too large"
//
//	FILE002 - Invalid CSV: File is not a valid CSV
//	          Action: Ensure file is comma-separated with a header row
//	          Types: *FormatError (csv)
//
//	FILE004 - No file: No file was selected
//	          Action: Please select a CSV or JSON file to import
//	          Patterns: "no file provided"
//
//	FILE005 - Empty file: The imported file is empty
//	          Action: Please import a file with a header and data rows
//	          Types: *FormatError wrapping ErrEmptyFile
//
//	FILE006 - Invalid JSON: File is not in the expected JSON shape
//	          Action: Export a table to see the expected format
//	          Types: *FormatError (json)
//
//	FILE007 - Unsupported format: The file kind cannot be imported
//	          Action: Use CSV or JSON import instead
//	          Types: *UnsupportedFormatError
//
// # Table Errors (TBL001-TBL099)
//
//	TBL001 - Table not found
//	TBL002 - Row not found
//	TBL003 - Column not found
//	TBL004 - No table data: Export of a table without rows
//	         Types: *NotFoundError
//
// # Batch Errors (BAT001-BAT099)
//
//	BAT001 - Partial failure: Some documents were written, others were not
//	         Action: Reload the table and retry the failed rows
//	         Types: *PartialBatchFailure
//
// # Access Errors (AUTH001-AUTH099)
//
//	AUTH001 - Not signed in: The request carried no identity
//	          Action: Please log in again
//	          Types: ErrUnauthenticated
//
//	AUTH002 - Forbidden: The identity lacks the required role or ownership
//	          Action: Ask an administrator for access
//	          Types: *PermissionError
//
//	AUTH003 - User not found
//	          Types: *NotFoundError (user)
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - System busy: Too many imports in progress
//	         Action: Please wait a moment and try again
//	         Types: ErrTooManyImports
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//	          Action: Please wait a moment before trying again
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific type, code or pattern matches:
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// # Matching Order
//
// Typed errors are checked first, then document store codes, then the
// pattern table. Patterns are matched case-insensitively using
// strings.Contains and the first matching pattern wins.
//
// # For Support Staff
//
// When a user reports an error code:
//  1. Look up the code in this reference
//  2. Check the associated types, codes or patterns to understand what triggered it
//  3. Review the suggested action to guide the user
//  4. If ERR000, check application logs for the original technical error
package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/tablekit/internal/docstore"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// storeMessages maps every document store code to its user message.
var storeMessages = map[docstore.Code]UserMessage{
	docstore.CodePermissionDenied: {
		Message: "You don't have permission to perform this action",
		Action:  "Ask an administrator for access",
		Code:    "STO001",
	},
	docstore.CodeUnavailable: {
		Message: "Service temporarily unavailable. Please try again.",
		Action:  "Please try again in a few moments",
		Code:    "STO002",
	},
	docstore.CodeUnauthenticated: {
		Message: "Your session has expired. Please log in again.",
		Action:  "Please log in again",
		Code:    "STO003",
	},
	docstore.CodeNotFound: {
		Message: "The requested data was not found",
		Action:  "Reload the page",
		Code:    "STO004",
	},
	docstore.CodeQuotaExceeded: {
		Message: "Service limit reached. Please try again later.",
		Action:  "Please try again later",
		Code:    "STO005",
	},
	docstore.CodeOffline: {
		Message: "Network error. Please check your connection.",
		Action:  "Check your connection",
		Code:    "STO006",
	},
	docstore.CodeTimeout: {
		Message: "Request timed out. Please try again.",
		Action:  "Please try again",
		Code:    "STO007",
	},
	docstore.CodeAlreadyExists: {
		Message: "This record already exists",
		Action:  "Choose a different name",
		Code:    "STO008",
	},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user messages
// for errors that carry no type or store code. Order matters.
var errorPatterns = []errorPattern{
	{
		pattern: "connection refused",
		msg:     storeMessages[docstore.CodeUnavailable],
	},
	{
		pattern: "context deadline exceeded",
		msg:     storeMessages[docstore.CodeTimeout],
	},
	{
		pattern: "timeout",
		msg:     storeMessages[docstore.CodeTimeout],
	},
	{
		pattern: "network",
		msg:     storeMessages[docstore.CodeOffline],
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV or JSON file to import",
			Code:    "FILE004",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
// Support staff should check application logs for the original technical
// error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	_, err := svc.AddColumn(ctx, tableID, "Serial No.", columns.Text)
//	msg := MapError(err)
//	// msg.Code == "VAL001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if msg, ok := mapTyped(err); ok {
		return msg
	}

	var storeErr *docstore.Error
	if errors.As(err, &storeErr) {
		if msg, ok := storeMessages[storeErr.Code]; ok {
			return msg
		}
		return defaultMessage
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

func mapTyped(err error) (UserMessage, bool) {
	var (
		validation  *ValidationError
		notFound    *NotFoundError
		permission  *PermissionError
		format      *FormatError
		unsupported *UnsupportedFormatError
		partial     *PartialBatchFailure
	)

	switch {
	case errors.Is(err, ErrUnauthenticated):
		return UserMessage{
			Message: "Your session has expired. Please log in again.",
			Action:  "Please log in again",
			Code:    "AUTH001",
		}, true
	case errors.Is(err, ErrTooManyImports):
		return UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "IMP001",
		}, true
	case errors.As(err, &partial):
		// Checked before the wrapped store error so partial writes are
		// always reported as such.
		return UserMessage{
			Message: fmt.Sprintf("%d of %d rows could not be updated", len(partial.Result.Failed), partial.Result.Total),
			Action:  "Reload the table and retry the failed rows",
			Code:    "BAT001",
		}, true
	case errors.As(err, &validation):
		return UserMessage{
			Message: upperFirst(validation.Message),
			Action:  "Correct the value and try again",
			Code:    "VAL001",
		}, true
	case errors.As(err, &permission):
		return UserMessage{
			Message: "You don't have permission to perform this action",
			Action:  "Ask an administrator for access",
			Code:    "AUTH002",
		}, true
	case errors.As(err, &notFound):
		return notFoundMessage(notFound.Kind), true
	case errors.As(err, &unsupported):
		msg := unsupported.Message
		if msg == "" {
			msg = "Unsupported file format. Please use CSV or JSON files."
		}
		return UserMessage{
			Message: msg,
			Action:  "Use CSV or JSON import instead",
			Code:    "FILE007",
		}, true
	case errors.Is(err, ErrEmptyFile):
		return UserMessage{
			Message: "The imported file is empty",
			Action:  "Please import a file with a header and data rows",
			Code:    "FILE005",
		}, true
	case errors.As(err, &format):
		if format.Format == "json" {
			return UserMessage{
				Message: "Invalid JSON format. Expected columns and rows arrays.",
				Action:  "Export a table to see the expected format",
				Code:    "FILE006",
			}, true
		}
		return UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure file is comma-separated with a header row",
			Code:    "FILE002",
		}, true
	}
	return UserMessage{}, false
}

func notFoundMessage(kind string) UserMessage {
	switch kind {
	case "row":
		return UserMessage{Message: "Row not found", Action: "Reload the table", Code: "TBL002"}
	case "column":
		return UserMessage{Message: "Column not found", Action: "Reload the table", Code: "TBL003"}
	case "table data", "data columns":
		return UserMessage{Message: "No table data found", Action: "Add rows before exporting", Code: "TBL004"}
	case "user":
		return UserMessage{Message: "User not found", Action: "Verify the user id", Code: "AUTH003"}
	default:
		return UserMessage{Message: "Table not found", Action: "Verify the table still exists", Code: "TBL001"}
	}
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps a technical error to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}

package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/tablekit/internal/docstore"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionTableCreate  AuditAction = "table_create"
	ActionTableDelete  AuditAction = "table_delete"
	ActionRowAdd       AuditAction = "row_add"
	ActionRowDelete    AuditAction = "row_delete"
	ActionCellEdit     AuditAction = "cell_edit"
	ActionColumnAdd    AuditAction = "column_add"
	ActionColumnDelete AuditAction = "column_delete"
	ActionImport       AuditAction = "import"
	ActionUserStatus   AuditAction = "user_status"
	ActionUserRole     AuditAction = "user_role"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow      AuditSeverity = "low"
	SeverityMedium   AuditSeverity = "medium"
	SeverityHigh     AuditSeverity = "high"
	SeverityCritical AuditSeverity = "critical"
)

// DefaultAuditLimit caps List results when no limit is given.
const DefaultAuditLimit = 100

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID           string         `json:"id" mapstructure:"-"`
	Action       AuditAction    `json:"action" mapstructure:"action"`
	Severity     AuditSeverity  `json:"severity" mapstructure:"severity"`
	TableID      string         `json:"tableId,omitempty" mapstructure:"tableId"`
	UserID       string         `json:"userId,omitempty" mapstructure:"userId"`
	UserEmail    string         `json:"userEmail,omitempty" mapstructure:"userEmail"`
	IPAddress    string         `json:"ipAddress,omitempty" mapstructure:"ipAddress"`
	UserAgent    string         `json:"userAgent,omitempty" mapstructure:"userAgent"`
	RowID        string         `json:"rowId,omitempty" mapstructure:"rowId"`
	ColumnID     string         `json:"columnId,omitempty" mapstructure:"columnId"`
	Detail       string         `json:"detail,omitempty" mapstructure:"detail"`
	RowsAffected int            `json:"rowsAffected,omitempty" mapstructure:"rowsAffected"`
	Extra        map[string]any `json:"extra,omitempty" mapstructure:"extra"`
	CreatedAt    time.Time      `json:"createdAt" mapstructure:"createdAt"`
}

// AuditLogParams contains parameters for creating an audit log entry.
type AuditLogParams struct {
	Action       AuditAction
	TableID      string
	UserID       string
	UserEmail    string
	RowID        string
	ColumnID     string
	Detail       string
	RowsAffected int
	Extra        map[string]any
}

// determineSeverity returns the appropriate severity for an action.
func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionTableDelete:
		return SeverityCritical
	case ActionImport, ActionColumnDelete, ActionRowDelete, ActionUserRole:
		return SeverityHigh
	case ActionRowAdd:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// AuditLog appends audit entries to a document store collection.
// A nil *AuditLog discards entries.
type AuditLog struct {
	store      docstore.Store
	collection string
	now        func() time.Time
}

// NewAuditLog writes entries into collection.
func NewAuditLog(store docstore.Store, collection string) *AuditLog {
	return &AuditLog{store: store, collection: collection, now: time.Now}
}

// Record writes an entry. Failures are logged and never returned: the audit
// trail must not block the operation it describes.
func (a *AuditLog) Record(ctx context.Context, params AuditLogParams) {
	if a == nil {
		return
	}
	meta := RequestMetaFrom(ctx)
	doc := map[string]any{
		"action":    string(params.Action),
		"severity":  string(determineSeverity(params.Action)),
		"tableId":   params.TableID,
		"userId":    params.UserID,
		"userEmail": params.UserEmail,
		"ipAddress": meta.IPAddress,
		"userAgent": meta.UserAgent,
		"rowId":     params.RowID,
		"columnId":  params.ColumnID,
		"detail":    params.Detail,
		"createdAt": a.now().UTC(),
	}
	if params.RowsAffected > 0 {
		doc["rowsAffected"] = params.RowsAffected
	}
	if len(params.Extra) > 0 {
		doc["extra"] = params.Extra
	}

	if _, err := a.store.Insert(ctx, a.collection, doc); err != nil {
		slog.Warn("audit write failed",
			"action", params.Action,
			"table_id", params.TableID,
			"error", err,
		)
	}
}

// AuditLogFilter contains filtering options for querying audit logs.
type AuditLogFilter struct {
	TableID string
	Action  AuditAction
	Limit   int
}

// List returns matching entries, newest first.
func (a *AuditLog) List(ctx context.Context, filter AuditLogFilter) ([]AuditEntry, error) {
	if a == nil {
		return []AuditEntry{}, nil
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultAuditLimit
	}

	var q docstore.Query
	if filter.TableID != "" {
		q.Filters = append(q.Filters, docstore.Filter{Field: "tableId", Value: filter.TableID})
	}
	if filter.Action != "" {
		q.Filters = append(q.Filters, docstore.Filter{Field: "action", Value: string(filter.Action)})
	}
	q.OrderBy = "createdAt"

	docs, err := a.store.List(ctx, a.collection, q)
	if err != nil {
		return nil, err
	}

	entries := make([]AuditEntry, 0, min(len(docs), filter.Limit))
	for i := len(docs) - 1; i >= 0 && len(entries) < filter.Limit; i-- {
		var entry AuditEntry
		if err := DecodeDocument(docs[i].Data, &entry); err != nil {
			slog.Warn("skipping malformed audit entry", "id", docs[i].ID, "error", err)
			continue
		}
		entry.ID = docs[i].ID
		entries = append(entries, entry)
	}
	return entries, nil
}

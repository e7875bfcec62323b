package tables

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/JonMunkholm/tablekit/internal/access"
	"github.com/JonMunkholm/tablekit/internal/core"
	"github.com/JonMunkholm/tablekit/internal/core/columns"
	"github.com/JonMunkholm/tablekit/internal/docstore"
	"github.com/JonMunkholm/tablekit/internal/logging"
	"github.com/JonMunkholm/tablekit/internal/metrics"
)

// Service is the dynamic table engine. Every operation takes the caller's
// identity from ctx and ends by re-reading the table from the store.
type Service struct {
	store    docstore.Store
	metaColl string
	reserved map[string]bool
	batch    *core.BatchExecutor
	audit    *core.AuditLog
	metrics  *metrics.Metrics
	imports  *core.ImportLimiter
	maxBytes int64
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMetadataCollection overrides the metadata collection name.
func WithMetadataCollection(name string) Option {
	return func(s *Service) { s.metaColl = name }
}

// WithReservedCollections blocks table names that would collide with
// system collections such as users or the audit trail.
func WithReservedCollections(names ...string) Option {
	return func(s *Service) {
		for _, n := range names {
			s.reserved[n] = true
		}
	}
}

// WithBatchParallelism bounds concurrent per-document writes.
func WithBatchParallelism(n int) Option {
	return func(s *Service) { s.batch = core.NewBatchExecutor(n) }
}

// WithAudit records structural changes and imports.
func WithAudit(a *core.AuditLog) Option {
	return func(s *Service) { s.audit = a }
}

// WithMetrics records operation outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithImportLimiter bounds concurrent imports.
func WithImportLimiter(l *core.ImportLimiter) Option {
	return func(s *Service) { s.imports = l }
}

// WithMaxImportBytes caps the size of an import file.
func WithMaxImportBytes(n int64) Option {
	return func(s *Service) { s.maxBytes = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the engine on store.
func NewService(store docstore.Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		metaColl: DefaultMetadataCollection,
		reserved: map[string]bool{access.SystemCollection: true},
		batch:    core.NewBatchExecutor(core.DefaultBatchParallelism),
		imports:  core.NewImportLimiter(core.DefaultMaxConcurrentImports, core.DefaultImportWait),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reserved[s.metaColl] = true
	return s
}

// TableData is a loaded table: its metadata, the visible columns with the
// serial column first, and the rows ordered by serial number. Each row
// carries its document id under "id".
type TableData struct {
	Table   Metadata             `json:"table"`
	Columns []columns.Definition `json:"columns"`
	Rows    []map[string]any     `json:"rows"`
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// record counts op in metrics and logs failures.
func (s *Service) record(ctx context.Context, op, tableID string, err error) {
	s.metrics.Operation(op, err)
	if err == nil {
		return
	}
	var pf *core.PartialBatchFailure
	if errors.As(err, &pf) {
		s.metrics.BatchFailures(op, len(pf.Result.Failed))
	}
	logging.FromContext(ctx).Warn("table operation failed", "op", op, "table_id", tableID, "error", err)
}

// member returns the approved caller.
func member(ctx context.Context, action string) (access.Identity, error) {
	return access.Require(ctx, action, access.RoleMember, access.RoleAdmin)
}

// authorizedTable loads metadata and checks the caller may manage it.
func (s *Service) authorizedTable(ctx context.Context, action, tableID string) (access.Identity, Metadata, error) {
	id, err := member(ctx, action)
	if err != nil {
		return access.Identity{}, Metadata{}, err
	}
	meta, err := s.getMetadata(ctx, tableID)
	if err != nil {
		return access.Identity{}, Metadata{}, err
	}
	if !access.CanManageTable(id, meta.OwnerID) {
		return access.Identity{}, Metadata{}, core.Forbidden(action, "table belongs to another user")
	}
	return id, meta, nil
}

func (s *Service) getMetadata(ctx context.Context, tableID string) (Metadata, error) {
	if strings.TrimSpace(tableID) == "" {
		return Metadata{}, core.NotFound("table", tableID)
	}
	doc, err := s.store.Get(ctx, s.metaColl, tableID)
	if err != nil {
		if docstore.IsNotFound(err) {
			return Metadata{}, core.NotFound("table", tableID)
		}
		return Metadata{}, fmt.Errorf("get table %s: %w", tableID, err)
	}
	return decodeMetadata(doc)
}

// CreateTable registers a new empty table owned by the caller. The name is
// rejected when its sanitized collection already holds documents or is
// claimed by another table.
func (s *Service) CreateTable(ctx context.Context, name string) (meta Metadata, err error) {
	defer func() { s.record(ctx, "create_table", meta.ID, err) }()

	id, err := member(ctx, "create table")
	if err != nil {
		return Metadata{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Metadata{}, core.Invalid("name", "table name is required")
	}
	coll := SanitizeCollectionName(name)
	if coll == "" {
		return Metadata{}, core.Invalid("name", "table name %q has no usable characters", name)
	}
	if s.reserved[coll] {
		return Metadata{}, core.Invalid("name", "table name %q is reserved", name)
	}

	existing, err := s.store.List(ctx, coll, docstore.Query{})
	if err != nil {
		return Metadata{}, fmt.Errorf("check collection %s: %w", coll, err)
	}
	claimed, err := s.store.List(ctx, s.metaColl, docstore.Where("collectionName", coll))
	if err != nil {
		return Metadata{}, fmt.Errorf("check collection %s: %w", coll, err)
	}
	if len(existing) > 0 || len(claimed) > 0 {
		return Metadata{}, core.Invalid("name", "A table with this name already exists")
	}

	now := s.clock()
	meta = Metadata{
		Name:            name,
		OwnerID:         id.UserID,
		OwnerEmail:      id.Email,
		CollectionName:  coll,
		ColumnCount:     1,
		Columns:         []columns.Definition{},
		CreatedAt:       now,
		UpdatedAt:       now,
		schemaPersisted: true,
	}
	meta.ID, err = s.store.Insert(ctx, s.metaColl, metadataDocument(meta))
	if err != nil {
		return Metadata{}, fmt.Errorf("create table %s: %w", name, err)
	}

	if err := s.materialize(ctx, coll, now); err != nil {
		return Metadata{}, err
	}

	s.audit.Record(ctx, core.AuditLogParams{
		Action:    core.ActionTableCreate,
		TableID:   meta.ID,
		UserID:    id.UserID,
		UserEmail: id.Email,
		Detail:    name,
	})
	logging.FromContext(ctx).Info("table created", "table_id", meta.ID, "collection", coll, "owner", id.UserID)
	return meta, nil
}

// materialize writes and removes a placeholder document. Some stores only
// know a collection once a document has been written to it.
func (s *Service) materialize(ctx context.Context, coll string, now time.Time) error {
	tempID, err := s.store.Insert(ctx, coll, map[string]any{"temp": true, "createdAt": now})
	if err != nil {
		return fmt.Errorf("initialize collection %s: %w", coll, err)
	}
	if err := s.store.Delete(ctx, coll, tempID); err != nil {
		return fmt.Errorf("initialize collection %s: %w", coll, err)
	}
	return nil
}

// ListTables returns the caller's tables ordered by creation time.
func (s *Service) ListTables(ctx context.Context) ([]Metadata, error) {
	id, err := member(ctx, "list tables")
	if err != nil {
		return nil, err
	}
	return s.listMetadata(ctx, docstore.Where("userId", id.UserID))
}

// ListAllTables returns every table. Admin only.
func (s *Service) ListAllTables(ctx context.Context) ([]Metadata, error) {
	if _, err := access.Require(ctx, "list all tables", access.RoleAdmin); err != nil {
		return nil, err
	}
	return s.listMetadata(ctx, docstore.Query{})
}

func (s *Service) listMetadata(ctx context.Context, q docstore.Query) ([]Metadata, error) {
	docs, err := s.store.List(ctx, s.metaColl, q)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	out := make([]Metadata, 0, len(docs))
	for _, doc := range docs {
		m, err := decodeMetadata(doc)
		if err != nil {
			logging.FromContext(ctx).Warn("skipping malformed table metadata", "table_id", doc.ID, "error", err)
			continue
		}
		out = append(out, m)
	}
	sortMetadata(out)
	return out, nil
}

// GetTable returns one table's metadata.
func (s *Service) GetTable(ctx context.Context, tableID string) (Metadata, error) {
	_, meta, err := s.authorizedTable(ctx, "view table", tableID)
	return meta, err
}

// LoadTable reads the table's metadata and every row.
func (s *Service) LoadTable(ctx context.Context, tableID string) (*TableData, error) {
	_, meta, err := s.authorizedTable(ctx, "view table", tableID)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, meta)
}

// reload re-reads metadata and rows after a mutation.
func (s *Service) reload(ctx context.Context, tableID string) (*TableData, error) {
	meta, err := s.getMetadata(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, meta)
}

func (s *Service) load(ctx context.Context, meta Metadata) (*TableData, error) {
	docs, err := s.listRows(ctx, meta)
	if err != nil {
		return nil, err
	}
	data := &TableData{Table: meta, Rows: make([]map[string]any, len(docs))}
	for i, doc := range docs {
		row := make(map[string]any, len(doc.Data)+1)
		for k, v := range doc.Data {
			// Non-finite numbers cannot be encoded as JSON.
			if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
				v = float64(0)
			}
			row[k] = v
		}
		row[columns.FieldID] = doc.ID
		data.Rows[i] = row
	}

	if len(docs) == 0 && !meta.HasSchema() {
		data.Columns = []columns.Definition{}
		return data, nil
	}
	data.Columns = append([]columns.Definition{columns.SerialNo()}, s.schema(meta, docs)...)
	return data, nil
}

// schema returns the user columns of a table: the persisted list, or the
// first-document reconstruction for legacy metadata.
func (s *Service) schema(meta Metadata, docs []docstore.Document) []columns.Definition {
	if meta.HasSchema() {
		return meta.Columns
	}
	return SchemaFromFirstDocument(docs)
}

// listRows returns every document of the backing collection in serial order.
func (s *Service) listRows(ctx context.Context, meta Metadata) ([]docstore.Document, error) {
	docs, err := s.store.List(ctx, meta.CollectionName, docstore.Query{})
	if err != nil {
		return nil, fmt.Errorf("list rows of %s: %w", meta.CollectionName, err)
	}
	sortBySerial(docs)
	return docs, nil
}

func sortMetadata(tables []Metadata) {
	sort.SliceStable(tables, func(i, j int) bool {
		return tables[i].CreatedAt.Before(tables[j].CreatedAt)
	})
}

func docIDs(docs []docstore.Document) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}

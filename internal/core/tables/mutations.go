package tables

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/tablekit/internal/core"
	"github.com/JonMunkholm/tablekit/internal/core/columns"
	"github.com/JonMunkholm/tablekit/internal/docstore"
	"github.com/JonMunkholm/tablekit/internal/logging"
)

// AddRow appends a row holding every known column's default. Its serial
// number is the current row count plus one.
func (s *Service) AddRow(ctx context.Context, tableID string) (data *TableData, err error) {
	defer func() { s.record(ctx, "add_row", tableID, err) }()

	id, meta, err := s.authorizedTable(ctx, "add row", tableID)
	if err != nil {
		return nil, err
	}
	docs, err := s.listRows(ctx, meta)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	row := map[string]any{
		columns.SerialNoID:      len(docs) + 1,
		columns.FieldCreatedAt: now,
		columns.FieldUpdatedAt: now,
	}
	for _, col := range s.schema(meta, docs) {
		row[col.ID] = col.Type.DefaultAt(now)
	}

	rowID, err := s.store.Insert(ctx, meta.CollectionName, row)
	if err != nil {
		return nil, fmt.Errorf("add row to %s: %w", meta.CollectionName, err)
	}
	if err := s.store.Update(ctx, s.metaColl, meta.ID, map[string]any{
		"rowCount":  len(docs) + 1,
		"updatedAt": now,
	}); err != nil {
		return nil, fmt.Errorf("update table %s: %w", meta.ID, err)
	}

	s.audit.Record(ctx, core.AuditLogParams{
		Action:    core.ActionRowAdd,
		TableID:   meta.ID,
		UserID:    id.UserID,
		UserEmail: id.Email,
		RowID:     rowID,
	})
	return s.reload(ctx, tableID)
}

// AddColumn adds a column to the schema and writes its default into every
// existing row. The per-row writes run in parallel and are not rolled back
// on partial failure; in that case the schema is left unchanged and a
// *core.PartialBatchFailure names the rows that were and were not written.
func (s *Service) AddColumn(ctx context.Context, tableID, name string, typ columns.Type) (data *TableData, err error) {
	defer func() { s.record(ctx, "add_column", tableID, err) }()

	id, meta, err := s.authorizedTable(ctx, "add column", tableID)
	if err != nil {
		return nil, err
	}

	def, err := newColumn(name, typ)
	if err != nil {
		return nil, err
	}
	docs, err := s.listRows(ctx, meta)
	if err != nil {
		return nil, err
	}
	schema := s.schema(meta, docs)
	if existing, ok := columns.Find(schema, def.ID); ok {
		return nil, core.Invalid("name", "column %q already exists as %q", name, existing.Name)
	}

	now := s.clock()
	value := typ.DefaultAt(now)
	result := s.batch.Run(ctx, "add column", docIDs(docs), func(ctx context.Context, docID string) error {
		return s.store.Update(ctx, meta.CollectionName, docID, map[string]any{
			def.ID:                 value,
			columns.FieldUpdatedAt: now,
		})
	})
	if err := result.Err(); err != nil {
		return nil, err
	}

	if err := s.store.Update(ctx, s.metaColl, meta.ID, schemaUpdate(append(schema, def), now)); err != nil {
		return nil, fmt.Errorf("update table %s: %w", meta.ID, err)
	}

	s.audit.Record(ctx, core.AuditLogParams{
		Action:       core.ActionColumnAdd,
		TableID:      meta.ID,
		UserID:       id.UserID,
		UserEmail:    id.Email,
		ColumnID:     def.ID,
		Detail:       fmt.Sprintf("%s (%s)", def.Name, def.Type),
		RowsAffected: result.Succeeded,
	})
	logging.FromContext(ctx).Info("column added",
		"table_id", meta.ID,
		"column", def.ID,
		"type", def.Type,
		"rows", result.Succeeded,
	)
	return s.reload(ctx, tableID)
}

// newColumn validates a user-chosen column name and type.
func newColumn(name string, typ columns.Type) (columns.Definition, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return columns.Definition{}, core.Invalid("name", "column name is required")
	}
	if columns.IsReservedName(name) {
		return columns.Definition{}, core.Invalid("name", "%q is a reserved column name", name)
	}
	if !typ.Valid() {
		return columns.Definition{}, core.Invalid("type", "unknown column type %q", typ)
	}
	id := columns.DeriveID(name)
	for _, f := range []string{columns.FieldID, columns.FieldCreatedAt, columns.FieldUpdatedAt} {
		if strings.EqualFold(id, f) {
			return columns.Definition{}, core.Invalid("name", "%q is a reserved column name", name)
		}
	}
	return columns.Definition{ID: id, Name: name, Type: typ, Editable: true}, nil
}

// DeleteColumn removes a column by rewriting every row without it. Deleting
// the serial column is a no-op.
func (s *Service) DeleteColumn(ctx context.Context, tableID, columnID string) (data *TableData, err error) {
	defer func() { s.record(ctx, "delete_column", tableID, err) }()

	id, meta, err := s.authorizedTable(ctx, "delete column", tableID)
	if err != nil {
		return nil, err
	}
	if columnID == columns.SerialNoID {
		return s.load(ctx, meta)
	}

	docs, err := s.listRows(ctx, meta)
	if err != nil {
		return nil, err
	}
	schema := s.schema(meta, docs)
	if _, ok := columns.Find(schema, columnID); !ok {
		return nil, core.NotFound("column", columnID)
	}

	now := s.clock()
	byID := make(map[string]map[string]any, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc.Data
	}
	result := s.batch.Run(ctx, "delete column", docIDs(docs), func(ctx context.Context, docID string) error {
		src := byID[docID]
		rest := make(map[string]any, len(src))
		for k, v := range src {
			if k != columnID {
				rest[k] = v
			}
		}
		rest[columns.FieldUpdatedAt] = now
		return s.store.Set(ctx, meta.CollectionName, docID, rest)
	})
	if err := result.Err(); err != nil {
		return nil, err
	}

	if err := s.store.Update(ctx, s.metaColl, meta.ID, schemaUpdate(columns.Without(schema, columnID), now)); err != nil {
		return nil, fmt.Errorf("update table %s: %w", meta.ID, err)
	}

	s.audit.Record(ctx, core.AuditLogParams{
		Action:       core.ActionColumnDelete,
		TableID:      meta.ID,
		UserID:       id.UserID,
		UserEmail:    id.Email,
		ColumnID:     columnID,
		RowsAffected: result.Succeeded,
	})
	logging.FromContext(ctx).Info("column deleted", "table_id", meta.ID, "column", columnID, "rows", result.Succeeded)
	return s.reload(ctx, tableID)
}

// DeleteRow deletes one row, then renumbers the remaining rows 1..N in
// their current serial order. The renumbering reads a snapshot; a row added
// concurrently may end up with a duplicate or skipped serial number.
func (s *Service) DeleteRow(ctx context.Context, tableID, rowID string) (data *TableData, err error) {
	defer func() { s.record(ctx, "delete_row", tableID, err) }()

	id, meta, err := s.authorizedTable(ctx, "delete row", tableID)
	if err != nil {
		return nil, err
	}
	if _, err := s.getRow(ctx, meta, rowID); err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, meta.CollectionName, rowID); err != nil {
		return nil, fmt.Errorf("delete row %s: %w", rowID, err)
	}

	result, remaining, err := s.renumber(ctx, meta)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return nil, err
	}

	if err := s.store.Update(ctx, s.metaColl, meta.ID, map[string]any{
		"rowCount":  remaining,
		"updatedAt": s.clock(),
	}); err != nil {
		return nil, fmt.Errorf("update table %s: %w", meta.ID, err)
	}

	s.audit.Record(ctx, core.AuditLogParams{
		Action:       core.ActionRowDelete,
		TableID:      meta.ID,
		UserID:       id.UserID,
		UserEmail:    id.Email,
		RowID:        rowID,
		RowsAffected: 1,
	})
	return s.reload(ctx, tableID)
}

// renumber rewrites serialNo of every row to its 1-based position.
func (s *Service) renumber(ctx context.Context, meta Metadata) (core.BatchResult, int, error) {
	docs, err := s.listRows(ctx, meta)
	if err != nil {
		return core.BatchResult{}, 0, err
	}
	serial := make(map[string]int, len(docs))
	for i, doc := range docs {
		serial[doc.ID] = i + 1
	}
	now := s.clock()
	result := s.batch.Run(ctx, "renumber rows", docIDs(docs), func(ctx context.Context, docID string) error {
		return s.store.Update(ctx, meta.CollectionName, docID, map[string]any{
			columns.SerialNoID:     serial[docID],
			columns.FieldUpdatedAt: now,
		})
	})
	return result, len(docs), nil
}

// UpdateCell writes one value after validating it against the column type.
// Numbers and dates are normalized before they are stored.
func (s *Service) UpdateCell(ctx context.Context, tableID, rowID, columnID string, value any) (data *TableData, err error) {
	defer func() { s.record(ctx, "update_cell", tableID, err) }()

	id, meta, err := s.authorizedTable(ctx, "edit cell", tableID)
	if err != nil {
		return nil, err
	}

	var col columns.Definition
	if columnID == columns.SerialNoID {
		col = columns.SerialNo()
	} else {
		schema := meta.Columns
		if !meta.HasSchema() {
			docs, err := s.listRows(ctx, meta)
			if err != nil {
				return nil, err
			}
			schema = SchemaFromFirstDocument(docs)
		}
		var ok bool
		if col, ok = columns.Find(schema, columnID); !ok {
			return nil, core.NotFound("column", columnID)
		}
	}
	if !col.Editable {
		return nil, core.Invalid(columnID, "column %q is not editable", col.Name)
	}
	if !col.Type.Validate(value) {
		return nil, &core.ValidationError{
			Field:   columnID,
			Value:   fmt.Sprint(value),
			Message: fmt.Sprintf("value is not a valid %s", col.Type),
		}
	}

	if err := s.store.Update(ctx, meta.CollectionName, rowID, map[string]any{
		columnID:               columns.Coerce(col.Type, value),
		columns.FieldUpdatedAt: s.clock(),
	}); err != nil {
		if docstore.IsNotFound(err) {
			return nil, core.NotFound("row", rowID)
		}
		return nil, fmt.Errorf("update cell %s/%s: %w", rowID, columnID, err)
	}

	s.audit.Record(ctx, core.AuditLogParams{
		Action:    core.ActionCellEdit,
		TableID:   meta.ID,
		UserID:    id.UserID,
		UserEmail: id.Email,
		RowID:     rowID,
		ColumnID:  columnID,
	})
	return s.reload(ctx, tableID)
}

func (s *Service) getRow(ctx context.Context, meta Metadata, rowID string) (docstore.Document, error) {
	if strings.TrimSpace(rowID) == "" {
		return docstore.Document{}, core.NotFound("row", rowID)
	}
	doc, err := s.store.Get(ctx, meta.CollectionName, rowID)
	if err != nil {
		if docstore.IsNotFound(err) {
			return docstore.Document{}, core.NotFound("row", rowID)
		}
		return docstore.Document{}, fmt.Errorf("get row %s: %w", rowID, err)
	}
	return doc, nil
}

// DeleteTable deletes the metadata first, then sweeps the backing
// collection. Documents the sweep fails to delete stay behind as orphans;
// they are reported in the returned *core.PartialBatchFailure and by the
// orphan scanner, never retried here.
func (s *Service) DeleteTable(ctx context.Context, tableID string) (err error) {
	defer func() { s.record(ctx, "delete_table", tableID, err) }()

	id, meta, err := s.authorizedTable(ctx, "delete table", tableID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, s.metaColl, meta.ID); err != nil {
		return fmt.Errorf("delete table %s: %w", meta.ID, err)
	}

	result, err := s.deleteAll(ctx, "delete table", meta.CollectionName)
	s.audit.Record(ctx, core.AuditLogParams{
		Action:       core.ActionTableDelete,
		TableID:      meta.ID,
		UserID:       id.UserID,
		UserEmail:    id.Email,
		Detail:       meta.Name,
		RowsAffected: result.Succeeded,
	})
	if err != nil {
		return err
	}
	if err := result.Err(); err != nil {
		logging.FromContext(ctx).Error("table deleted with orphaned documents",
			"table_id", meta.ID,
			"collection", meta.CollectionName,
			"orphans", len(result.Failed),
		)
		return err
	}
	logging.FromContext(ctx).Info("table deleted", "table_id", meta.ID, "collection", meta.CollectionName, "rows", result.Succeeded)
	return nil
}

// deleteAll removes every document of coll.
func (s *Service) deleteAll(ctx context.Context, op, coll string) (core.BatchResult, error) {
	docs, err := s.store.List(ctx, coll, docstore.Query{})
	if err != nil {
		return core.BatchResult{Op: op}, fmt.Errorf("list %s: %w", coll, err)
	}
	return s.batch.Run(ctx, op, docIDs(docs), func(ctx context.Context, docID string) error {
		return s.store.Delete(ctx, coll, docID)
	}), nil
}

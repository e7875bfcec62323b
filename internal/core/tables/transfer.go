package tables

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gosimple/slug"

	"github.com/JonMunkholm/tablekit/internal/core"
	"github.com/JonMunkholm/tablekit/internal/core/columns"
	"github.com/JonMunkholm/tablekit/internal/core/interchange"
	"github.com/JonMunkholm/tablekit/internal/logging"
)

// ImportResult summarizes a completed import.
type ImportResult struct {
	Imported int                  `json:"imported"`
	IsAppend bool                 `json:"isAppend"`
	Format   interchange.Format   `json:"format"`
	Added    []columns.Definition `json:"addedColumns,omitempty"`
}

// Import reads fileName's content from r and writes it into the table.
// The format comes from the extension; Excel and unknown extensions fail
// before r is read. Parse errors abort before any document is written.
func (s *Service) Import(ctx context.Context, tableID, fileName string, r io.Reader, appendRows bool) (ImportResult, error) {
	format, err := interchange.DetectFormat(fileName)
	if err != nil {
		s.record(ctx, "import", tableID, err)
		return ImportResult{}, err
	}
	raw, err := interchange.ReadAll(r, s.maxBytes)
	if err != nil {
		s.record(ctx, "import", tableID, err)
		return ImportResult{}, err
	}
	ds, err := interchange.Parse(bytes.NewReader(raw), format, s.clock())
	if err != nil {
		s.record(ctx, "import", tableID, err)
		return ImportResult{}, err
	}
	return s.ImportDataset(ctx, tableID, ds, appendRows)
}

// ImportDataset writes parsed rows into the table. When appendRows is false
// every existing row is deleted first, without rollback if the deletion
// partly fails. Imported rows get fresh serial numbers continuing after the
// rows kept. Rows are inserted one at a time; if an insert fails, the rows
// already inserted stay and the metadata records them.
func (s *Service) ImportDataset(ctx context.Context, tableID string, ds *interchange.Dataset, appendRows bool) (res ImportResult, err error) {
	defer func() { s.record(ctx, "import", tableID, err) }()

	id, meta, err := s.authorizedTable(ctx, "import", tableID)
	if err != nil {
		return ImportResult{}, err
	}

	err = s.imports.Do(ctx, func(ctx context.Context) error {
		res, err = s.importRows(ctx, meta, ds, appendRows)
		return err
	})

	s.metrics.ImportedRows(string(ds.Format), res.Imported)
	s.audit.Record(ctx, core.AuditLogParams{
		Action:       core.ActionImport,
		TableID:      meta.ID,
		UserID:       id.UserID,
		UserEmail:    id.Email,
		Detail:       fmt.Sprintf("%s append=%t", ds.Format, appendRows),
		RowsAffected: res.Imported,
	})
	if err != nil {
		return res, err
	}
	logging.FromContext(ctx).Info("import completed",
		"table_id", meta.ID,
		"format", ds.Format,
		"rows", res.Imported,
		"append", appendRows,
	)
	return res, nil
}

func (s *Service) importRows(ctx context.Context, meta Metadata, ds *interchange.Dataset, appendRows bool) (ImportResult, error) {
	res := ImportResult{IsAppend: appendRows, Format: ds.Format}

	existing, err := s.listRows(ctx, meta)
	if err != nil {
		return res, err
	}
	schema := s.schema(meta, existing)

	if !appendRows {
		result, err := s.deleteAll(ctx, "replace rows", meta.CollectionName)
		if err != nil {
			return res, err
		}
		if err := result.Err(); err != nil {
			return res, err
		}
		existing = nil
		schema = nil
	}

	merged, added := mergeColumns(schema, ds.Columns)
	res.Added = added
	now := s.clock()

	if len(existing) > 0 && len(added) > 0 {
		backfill := make(map[string]any, len(added)+1)
		for _, d := range added {
			backfill[d.ID] = d.Type.DefaultAt(now)
		}
		backfill[columns.FieldUpdatedAt] = now
		result := s.batch.Run(ctx, "backfill columns", docIDs(existing), func(ctx context.Context, docID string) error {
			return s.store.Update(ctx, meta.CollectionName, docID, backfill)
		})
		if err := result.Err(); err != nil {
			return res, err
		}
	}

	start := len(existing)
	var insertErr error
	for i, row := range ds.Rows {
		doc := make(map[string]any, len(merged)+3)
		for _, d := range merged {
			if v, ok := row[d.ID]; ok && v != nil {
				doc[d.ID] = v
			} else {
				doc[d.ID] = d.Type.DefaultAt(now)
			}
		}
		doc[columns.SerialNoID] = start + i + 1
		doc[columns.FieldCreatedAt] = now
		doc[columns.FieldUpdatedAt] = now

		if _, err := s.store.Insert(ctx, meta.CollectionName, doc); err != nil {
			insertErr = fmt.Errorf("import stopped after %d of %d rows: %w", res.Imported, len(ds.Rows), err)
			break
		}
		res.Imported++
	}

	patch := schemaUpdate(merged, now)
	patch["rowCount"] = start + res.Imported
	if err := s.store.Update(ctx, s.metaColl, meta.ID, patch); err != nil {
		if insertErr != nil {
			return res, insertErr
		}
		return res, fmt.Errorf("update table %s: %w", meta.ID, err)
	}
	return res, insertErr
}

// Export writes the table in the given format.
func (s *Service) Export(ctx context.Context, tableID string, format interchange.Format, w io.Writer) (err error) {
	defer func() { s.record(ctx, "export", tableID, err) }()

	data, err := s.LoadTable(ctx, tableID)
	if err != nil {
		return err
	}
	return interchange.Encode(w, format, interchange.Table{
		Name:    data.Table.Name,
		Columns: data.Columns,
		Rows:    data.Rows,
	}, s.clock())
}

// Preview parses an import file without writing anything.
func (s *Service) Preview(ctx context.Context, fileName string, r io.Reader) (*interchange.Preview, error) {
	if _, err := member(ctx, "preview import"); err != nil {
		return nil, err
	}
	if _, err := interchange.DetectFormat(fileName); err != nil {
		return nil, err
	}
	raw, err := interchange.ReadAll(r, s.maxBytes)
	if err != nil {
		return nil, err
	}
	return interchange.PreviewFile(bytes.NewReader(raw), fileName, s.clock())
}

// ExportFileName builds a download name such as "my-table-2026-10-18.csv".
func ExportFileName(tableName string, format interchange.Format, now time.Time) string {
	base := slug.Make(tableName)
	if base == "" {
		base = "table"
	}
	return fmt.Sprintf("%s-%s.%s", base, now.UTC().Format(columns.DateLayout), format)
}

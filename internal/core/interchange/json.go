package interchange

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/JonMunkholm/tablekit/internal/core"
	"github.com/JonMunkholm/tablekit/internal/core/columns"
	"github.com/JonMunkholm/tablekit/internal/core/infer"
)

// isoMillis matches the millisecond ISO-8601 timestamps browsers produce.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// ExportColumn describes one column in a JSON export.
type ExportColumn struct {
	ID   string       `json:"id"`
	Name string       `json:"name"`
	Type columns.Type `json:"type"`
}

// ExportMetadata carries export totals.
type ExportMetadata struct {
	TotalRows    int `json:"totalRows"`
	TotalColumns int `json:"totalColumns"`
}

// Export is the JSON interchange document.
type Export struct {
	TableName  string           `json:"tableName"`
	ExportDate string           `json:"exportDate"`
	Columns    []ExportColumn   `json:"columns"`
	Rows       []map[string]any `json:"rows"`
	Metadata   ExportMetadata   `json:"metadata"`
}

// BuildExport assembles the JSON export of t. Column types come from the
// declared schema when known and are otherwise inferred from the first row
// carrying the key.
func BuildExport(t Table, now time.Time) (*Export, error) {
	if len(t.Rows) == 0 {
		return nil, ErrNoData
	}
	name := t.Name
	if name == "" {
		name = "table"
	}

	keys := ExportKeys(t.Columns, t.Rows)
	cols := make([]ExportColumn, 0, len(keys))
	for _, k := range keys {
		col := ExportColumn{ID: k, Name: k}
		if d, ok := columns.Find(t.Columns, k); ok {
			col.Name = d.Name
			col.Type = d.Type
		} else if k == columns.SerialNoID {
			col.Name = columns.SerialNoName
			col.Type = columns.Number
		} else {
			col.Type = infer.FromValue(firstValue(t.Rows, k))
		}
		cols = append(cols, col)
	}

	rows := make([]map[string]any, len(t.Rows))
	for i, row := range t.Rows {
		clean := make(map[string]any, len(row))
		for k, v := range row {
			if isExcludedFromExport(k) {
				continue
			}
			switch tv := v.(type) {
			case time.Time:
				v = tv.UTC().Format(isoMillis)
			case float64:
				if math.IsNaN(tv) || math.IsInf(tv, 0) {
					v = float64(0)
				}
			}
			clean[k] = v
		}
		rows[i] = clean
	}

	return &Export{
		TableName:  name,
		ExportDate: now.UTC().Format(isoMillis),
		Columns:    cols,
		Rows:       rows,
		Metadata:   ExportMetadata{TotalRows: len(rows), TotalColumns: len(cols)},
	}, nil
}

// EncodeJSON writes the JSON export of t with two-space indentation.
func EncodeJSON(w io.Writer, t Table, now time.Time) error {
	exp, err := BuildExport(t, now)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json export: %w", err)
	}
	_, err = w.Write(b)
	return err
}

func firstValue(rows []map[string]any, key string) any {
	for _, row := range rows {
		if v, ok := row[key]; ok {
			return v
		}
	}
	return nil
}

// jsonDocument is the loosely typed top level of a JSON import.
type jsonDocument struct {
	Columns []any `json:"columns"`
	Rows    []any `json:"rows"`
}

func decodeJSONDocument(data []byte) (*jsonDocument, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, &core.FormatError{Format: "json", Reason: err.Error()}
	}

	var doc jsonDocument
	rawCols, hasCols := top["columns"]
	rawRows, hasRows := top["rows"]
	if !hasCols || !hasRows {
		return nil, &core.FormatError{Format: "json", Reason: "expected columns and rows properties"}
	}
	if err := json.Unmarshal(rawCols, &doc.Columns); err != nil || doc.Columns == nil {
		return nil, &core.FormatError{Format: "json", Reason: "columns must be an array"}
	}
	if err := json.Unmarshal(rawRows, &doc.Rows); err != nil || doc.Rows == nil {
		return nil, &core.FormatError{Format: "json", Reason: "rows must be an array"}
	}
	return &doc, nil
}

// ParseJSON reads a JSON import. Rows keep their values as given, minus id,
// serialNo and timestamps. Columns are taken from the columns array; keys
// that appear only in rows become additional columns typed from their first
// value. Unknown column types fall back to text.
func ParseJSON(r io.Reader) (*Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read json: %w", err)
	}
	text := normalizeText(data)
	if strings.TrimSpace(text) == "" {
		return nil, &core.FormatError{Format: "json", Reason: "file is empty", Err: core.ErrEmptyFile}
	}
	doc, err := decodeJSONDocument([]byte(text))
	if err != nil {
		return nil, err
	}

	ds := &Dataset{Format: FormatJSON}
	seen := make(map[string]bool)
	for i, raw := range doc.Columns {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, &core.FormatError{Format: "json", Reason: fmt.Sprintf("columns[%d] is not an object", i)}
		}
		def, ok := columnFromJSON(obj)
		if !ok || seen[def.ID] {
			continue
		}
		seen[def.ID] = true
		ds.Columns = append(ds.Columns, def)
	}

	ds.Rows = make([]map[string]any, 0, len(doc.Rows))
	for i, raw := range doc.Rows {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, &core.FormatError{Format: "json", Reason: fmt.Sprintf("rows[%d] is not an object", i)}
		}
		row := make(map[string]any, len(obj))
		for k, v := range obj {
			if columns.IsImplicitField(k) {
				continue
			}
			row[k] = v
			if !seen[k] {
				seen[k] = true
				ds.Columns = append(ds.Columns, columns.Definition{
					ID:       k,
					Name:     k,
					Type:     infer.FromValue(v),
					Editable: true,
				})
			}
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

func columnFromJSON(obj map[string]any) (columns.Definition, bool) {
	id, _ := obj["id"].(string)
	name, _ := obj["name"].(string)
	if id == "" {
		id = columns.DeriveID(name)
	}
	if name == "" {
		name = id
	}
	if id == "" || columns.IsImplicitField(id) || columns.IsReservedName(name) {
		return columns.Definition{}, false
	}
	typeName, _ := obj["type"].(string)
	typ, err := columns.Parse(typeName)
	if err != nil {
		typ = columns.Text
	}
	return columns.Definition{ID: id, Name: name, Type: typ, Editable: true}, true
}

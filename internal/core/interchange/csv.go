package interchange

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"

	"github.com/JonMunkholm/tablekit/internal/core"
	"github.com/JonMunkholm/tablekit/internal/core/columns"
	"github.com/JonMunkholm/tablekit/internal/core/infer"
)

// ParseLine splits one physical CSV line into trimmed fields. A double quote
// toggles quoted mode and a comma separates fields only outside quotes.
// Inside quotes a doubled quote is a literal quote character, which makes
// the output of EncodeCSV parse back to the same values.
func ParseLine(line string) []string {
	var (
		fields   []string
		current  strings.Builder
		inQuotes bool
	)

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			if inQuotes && i+1 < len(line) && line[i+1] == '"' {
				current.WriteByte('"')
				i++
				continue
			}
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	return append(fields, strings.TrimSpace(current.String()))
}

// splitLines returns the non-blank physical lines of content.
func splitLines(content string) []string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// ConvertValue converts one raw CSV string to the stored form for typ.
// Empty input yields the type's default. Numbers that do not parse become 0.
// Booleans are true only for the literal "true". Dates are normalized to
// YYYY-MM-DD and unparseable dates fall back to today.
func ConvertValue(raw string, typ columns.Type, now time.Time) any {
	if raw == "" {
		return typ.DefaultAt(now)
	}

	switch typ {
	case columns.Number:
		f, err := cast.ToFloat64E(strings.TrimSpace(raw))
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return float64(0)
		}
		return f
	case columns.Boolean:
		return raw == "true"
	case columns.Date:
		if t, ok := columns.ParseDate(raw); ok {
			return columns.FormatDate(t)
		}
		return columns.FormatDate(now)
	default:
		return raw
	}
}

// quote applies the CSV quoting rule: values containing a comma, a double
// quote or a newline are wrapped in quotes with inner quotes doubled.
func quote(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// formatCell renders a stored value as CSV text. Only missing values render
// empty; zero and false are written out.
func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return "0"
		}
	case float32:
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return "0"
		}
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

// ExportKeys returns the union of row keys minus the implicit id and
// timestamp fields. Declared columns come first in declared order; keys only
// found in rows follow in first-seen order, sorted within each row.
func ExportKeys(declared []columns.Definition, rows []map[string]any) []string {
	seen := make(map[string]bool)
	present := make(map[string]bool)
	for _, row := range rows {
		for k := range row {
			present[k] = true
		}
	}

	var keys []string
	for _, d := range declared {
		if present[d.ID] && !seen[d.ID] {
			seen[d.ID] = true
			keys = append(keys, d.ID)
		}
	}
	for _, row := range rows {
		rowKeys := make([]string, 0, len(row))
		for k := range row {
			rowKeys = append(rowKeys, k)
		}
		sort.Strings(rowKeys)
		for _, k := range rowKeys {
			if seen[k] || isExcludedFromExport(k) {
				continue
			}
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

func isExcludedFromExport(key string) bool {
	switch key {
	case columns.FieldID, columns.FieldCreatedAt, columns.FieldUpdatedAt:
		return true
	}
	return false
}

// headerName returns the display name for key, falling back to the key.
func headerName(declared []columns.Definition, key string) string {
	if key == columns.SerialNoID {
		return columns.SerialNoName
	}
	if d, ok := columns.Find(declared, key); ok && d.Name != "" {
		return d.Name
	}
	return key
}

// ErrNoData is returned when exporting a table without rows.
var ErrNoData = core.NotFound("table data", "")

// EncodeCSV writes t as CSV: one header line of column names, then one line
// per row, separated by "\n".
func EncodeCSV(w io.Writer, t Table) error {
	if len(t.Rows) == 0 {
		return ErrNoData
	}
	keys := ExportKeys(t.Columns, t.Rows)
	if len(keys) == 0 {
		return core.NotFound("data columns", "")
	}

	bw := bufio.NewWriter(w)
	header := make([]string, len(keys))
	for i, k := range keys {
		header[i] = quote(headerName(t.Columns, k))
	}
	bw.WriteString(strings.Join(header, ","))

	cells := make([]string, len(keys))
	for _, row := range t.Rows {
		for i, k := range keys {
			cells[i] = quote(formatCell(row[k]))
		}
		bw.WriteByte('\n')
		bw.WriteString(strings.Join(cells, ","))
	}
	return bw.Flush()
}

// ParseCSV reads a CSV import. The first non-blank line is the header;
// headers naming the serial column or an implicit field are ignored. Each column's type is inferred
// from its first non-empty values and every cell is converted to that type.
func ParseCSV(r io.Reader, now time.Time) (*Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	header, records, err := csvRecords(normalizeText(data))
	if err != nil {
		return nil, err
	}
	header = trimBlankTrailingColumns(header, records)

	type importColumn struct {
		index int
		def   columns.Definition
	}
	var cols []importColumn
	ids := make(map[string]int)
	for i, name := range header {
		if columns.IsReservedName(name) || isExcludedFromExport(name) || isExcludedFromExport(columns.DeriveID(name)) {
			continue
		}
		if name == "" {
			return nil, &core.FormatError{Format: "csv", Line: 1, Reason: fmt.Sprintf("column %d has an empty header", i+1)}
		}
		id := columns.DeriveID(name)
		if prev, dup := ids[id]; dup {
			return nil, &core.FormatError{
				Format: "csv",
				Line:   1,
				Reason: fmt.Sprintf("headers %q and %q map to the same column id %q", header[prev], name, id),
			}
		}
		ids[id] = i
		cols = append(cols, importColumn{
			index: i,
			def:   columns.Definition{ID: id, Name: name, Type: infer.Column(records, i), Editable: true},
		})
	}

	ds := &Dataset{Format: FormatCSV, Columns: make([]columns.Definition, len(cols))}
	for i, c := range cols {
		ds.Columns[i] = c.def
	}
	ds.Rows = make([]map[string]any, 0, len(records))
	for _, rec := range records {
		row := make(map[string]any, len(cols))
		for _, c := range cols {
			raw := ""
			if c.index < len(rec) {
				raw = rec[c.index]
			}
			row[c.def.ID] = ConvertValue(raw, c.def.Type, now)
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

// trimBlankTrailingColumns drops empty trailing headers whose column is
// blank in every record, as left by spreadsheets that export a trailing
// comma.
func trimBlankTrailingColumns(header []string, records [][]string) []string {
	n := len(header)
	for n > 0 && header[n-1] == "" && columnBlank(records, n-1) {
		n--
	}
	return header[:n]
}

func columnBlank(records [][]string, i int) bool {
	for _, rec := range records {
		if i < len(rec) && rec[i] != "" {
			return false
		}
	}
	return true
}

func csvRecords(content string) ([]string, [][]string, error) {
	lines := splitLines(content)
	if len(lines) == 0 {
		return nil, nil, &core.FormatError{Format: "csv", Reason: "file is empty", Err: core.ErrEmptyFile}
	}
	header := ParseLine(lines[0])
	records := make([][]string, 0, len(lines)-1)
	for _, line := range lines[1:] {
		records = append(records, ParseLine(line))
	}
	return header, records, nil
}

package interchange

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/tablekit/internal/core/columns"
)

// PreviewRows is the number of parsed rows a preview carries.
const PreviewRows = 10

// Preview summarizes an import file before anything is written.
type Preview struct {
	FileName  string               `json:"fileName,omitempty"`
	Format    Format               `json:"format"`
	Headers   []string             `json:"headers,omitempty"`
	Columns   []columns.Definition `json:"columns"`
	Rows      []map[string]any     `json:"rows"`
	TotalRows int                  `json:"totalRows"`
}

func newPreview(ds *Dataset) *Preview {
	p := &Preview{
		Format:    ds.Format,
		Columns:   ds.Columns,
		Rows:      ds.Rows[:min(len(ds.Rows), PreviewRows)],
		TotalRows: len(ds.Rows),
	}
	if p.Columns == nil {
		p.Columns = []columns.Definition{}
	}
	return p
}

// PreviewCSV parses a CSV file and returns its raw headers, the first rows
// and the column types inferred over every data row.
func PreviewCSV(r io.Reader, fileName string, now time.Time) (*Preview, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	header, records, err := csvRecords(normalizeText(data))
	if err != nil {
		return nil, err
	}
	header = trimBlankTrailingColumns(header, records)
	ds, err := ParseCSV(bytes.NewReader(data), now)
	if err != nil {
		return nil, err
	}
	p := newPreview(ds)
	p.FileName = fileName
	p.Headers = header
	return p, nil
}

// PreviewJSON parses a JSON import and returns its columns and first rows.
func PreviewJSON(r io.Reader) (*Preview, error) {
	ds, err := ParseJSON(r)
	if err != nil {
		return nil, err
	}
	return newPreview(ds), nil
}

// Parse reads an import in the given format.
func Parse(r io.Reader, format Format, now time.Time) (*Dataset, error) {
	switch format {
	case FormatCSV:
		return ParseCSV(r, now)
	case FormatJSON:
		return ParseJSON(r)
	}
	return nil, fmt.Errorf("parse: unknown format %q", format)
}

// PreviewFile dispatches on fileName's extension. Unsupported extensions
// fail before r is read.
func PreviewFile(r io.Reader, fileName string, now time.Time) (*Preview, error) {
	format, err := DetectFormat(fileName)
	if err != nil {
		return nil, err
	}
	if format == FormatJSON {
		p, err := PreviewJSON(r)
		if err != nil {
			return nil, err
		}
		p.FileName = fileName
		return p, nil
	}
	return PreviewCSV(r, fileName, now)
}

// Encode writes t in the given format.
func Encode(w io.Writer, format Format, t Table, now time.Time) error {
	switch format {
	case FormatCSV:
		return EncodeCSV(w, t)
	case FormatJSON:
		return EncodeJSON(w, t, now)
	}
	return fmt.Errorf("encode: unknown format %q", format)
}

package interchange

import (
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/tablekit/internal/core"
)

// Format is a supported interchange file kind.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ExcelUnavailable is the message returned for spreadsheet uploads.
const ExcelUnavailable = "Excel import is not available. Please use CSV or JSON import instead."

// DetectFormat picks the codec for fileName by extension. Spreadsheets and
// unknown extensions fail before any bytes are read.
func DetectFormat(fileName string) (Format, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".xls", ".xlsx":
		return "", &core.UnsupportedFormatError{FileName: fileName, Message: ExcelUnavailable}
	default:
		return "", &core.UnsupportedFormatError{
			FileName: fileName,
			Message:  "Unsupported file format. Please use CSV or JSON files.",
		}
	}
}

// ParseFormat validates an explicit format name such as an export query
// parameter.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", &core.UnsupportedFormatError{FileName: s, Message: "Unsupported export format " + s}
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv; charset=utf-8"
}

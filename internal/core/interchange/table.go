package interchange

import "github.com/JonMunkholm/tablekit/internal/core/columns"

// Table is exportable table content.
type Table struct {
	Name string
	// Columns is the declared schema, serial column first. It may be empty
	// for tables whose schema was never persisted.
	Columns []columns.Definition
	// Rows are full stored documents, implicit fields included.
	Rows []map[string]any
}

// Dataset is a parsed import ready to be written.
type Dataset struct {
	Format Format
	// Columns excludes the serial column.
	Columns []columns.Definition
	// Rows are keyed by column id and carry neither id, serialNo nor
	// timestamps.
	Rows []map[string]any
}

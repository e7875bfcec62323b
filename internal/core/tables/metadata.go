package tables

import (
	"fmt"
	"time"

	"github.com/JonMunkholm/tablekit/internal/core"
	"github.com/JonMunkholm/tablekit/internal/core/columns"
	"github.com/JonMunkholm/tablekit/internal/docstore"
)

// DefaultMetadataCollection holds one metadata document per table.
const DefaultMetadataCollection = "userTables"

// Metadata describes one logical table.
type Metadata struct {
	ID             string `json:"id" mapstructure:"-"`
	Name           string `json:"name" mapstructure:"name"`
	OwnerID        string `json:"userId" mapstructure:"userId"`
	OwnerEmail     string `json:"userEmail" mapstructure:"userEmail"`
	CollectionName string `json:"collectionName" mapstructure:"collectionName"`
	RowCount       int    `json:"rowCount" mapstructure:"rowCount"`
	// ColumnCount includes the serial column.
	ColumnCount int `json:"columnCount" mapstructure:"columnCount"`
	// Columns is the ordered user column list, serial column excluded.
	Columns   []columns.Definition `json:"columns" mapstructure:"columns"`
	CreatedAt time.Time            `json:"createdAt" mapstructure:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt" mapstructure:"updatedAt"`

	// schemaPersisted is false for metadata written before the column list
	// existed.
	schemaPersisted bool
}

// HasSchema reports whether the column list is persisted.
func (m Metadata) HasSchema() bool {
	return m.schemaPersisted
}

func decodeMetadata(doc docstore.Document) (Metadata, error) {
	var m Metadata
	if err := core.DecodeDocument(doc.Data, &m); err != nil {
		return Metadata{}, fmt.Errorf("decode table %s: %w", doc.ID, err)
	}
	m.ID = doc.ID
	_, m.schemaPersisted = doc.Data["columns"]
	if m.Columns == nil && m.schemaPersisted {
		m.Columns = []columns.Definition{}
	}
	return m, nil
}

func metadataDocument(m Metadata) map[string]any {
	return map[string]any{
		"name":           m.Name,
		"userId":         m.OwnerID,
		"userEmail":      m.OwnerEmail,
		"collectionName": m.CollectionName,
		"rowCount":       m.RowCount,
		"columnCount":    m.ColumnCount,
		"columns":        columnsValue(m.Columns),
		"createdAt":      m.CreatedAt,
		"updatedAt":      m.UpdatedAt,
	}
}

// columnsValue renders definitions as plain maps so every backend stores
// and returns the same shape.
func columnsValue(defs []columns.Definition) []any {
	out := make([]any, len(defs))
	for i, d := range defs {
		out[i] = map[string]any{
			"id":       d.ID,
			"name":     d.Name,
			"type":     string(d.Type),
			"editable": d.Editable,
		}
	}
	return out
}

// schemaUpdate is the metadata patch written after a structural change.
func schemaUpdate(defs []columns.Definition, now time.Time) map[string]any {
	return map[string]any{
		"columns":     columnsValue(defs),
		"columnCount": len(defs) + 1,
		"updatedAt":   now,
	}
}

package columns

import (
	"regexp"
	"strings"
)

// SerialNoID is the id of the synthetic row ordinal column.
const SerialNoID = "serialNo"

// SerialNoName is the display name of the synthetic row ordinal column.
const SerialNoName = "Serial No."

// Implicit document fields that never describe a user column.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Definition describes one column of a table.
type Definition struct {
	ID       string `json:"id" mapstructure:"id"`
	Name     string `json:"name" mapstructure:"name"`
	Type     Type   `json:"type" mapstructure:"type"`
	Editable bool   `json:"editable" mapstructure:"editable"`
}

// SerialNo returns the immutable serial number column.
func SerialNo() Definition {
	return Definition{ID: SerialNoID, Name: SerialNoName, Type: Number, Editable: false}
}

// DeriveID computes a column id from its display name: lower-cased with
// every whitespace run replaced by an underscore. The id is fixed at
// creation time.
func DeriveID(name string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(name), "_")
}

// IsReservedName reports whether name collides with the serial column.
func IsReservedName(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "serial no.", "serialno", strings.ToLower(SerialNoID):
		return true
	}
	return DeriveID(n) == strings.ToLower(SerialNoID)
}

// IsImplicitField reports whether key is store- or system-managed rather
// than a user column.
func IsImplicitField(key string) bool {
	switch key {
	case FieldID, FieldCreatedAt, FieldUpdatedAt, SerialNoID:
		return true
	}
	return false
}

// Find returns the definition with the given id.
func Find(defs []Definition, id string) (Definition, bool) {
	for _, d := range defs {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

// Without returns defs minus the column with the given id.
func Without(defs []Definition, id string) []Definition {
	out := make([]Definition, 0, len(defs))
	for _, d := range defs {
		if d.ID != id {
			out = append(out, d)
		}
	}
	return out
}

package tables

import (
	"regexp"
	"sort"
	"strings"

	"github.com/JonMunkholm/tablekit/internal/core/columns"
	"github.com/JonMunkholm/tablekit/internal/core/infer"
	"github.com/JonMunkholm/tablekit/internal/docstore"
)

// MaxCollectionName is the longest sanitized collection name.
const MaxCollectionName = 100

var (
	nonCollectionChar = regexp.MustCompile(`[^a-z0-9_]`)
	underscoreRun     = regexp.MustCompile(`_+`)
)

// SanitizeCollectionName derives a backing collection name from a table
// name: lower-cased, every character outside [a-z0-9_] replaced with '_',
// a leading digit prefixed with '_', underscore runs collapsed, leading and
// trailing underscores trimmed, and the result cut to 100 characters.
func SanitizeCollectionName(name string) string {
	s := nonCollectionChar.ReplaceAllString(strings.ToLower(name), "_")
	if s != "" && s[0] >= '0' && s[0] <= '9' {
		s = "_" + s
	}
	s = underscoreRun.ReplaceAllString(s, "_")
	s = strings.TrimPrefix(s, "_")
	s = strings.TrimSuffix(s, "_")
	if len(s) > MaxCollectionName {
		s = s[:MaxCollectionName]
	}
	return s
}

// SchemaFromFirstDocument rebuilds a column list from the keys of the first
// document only, typing each column from that document's value. Columns
// that appear only in later documents are not visible. Used for tables
// whose metadata predates the persisted column list.
func SchemaFromFirstDocument(docs []docstore.Document) []columns.Definition {
	if len(docs) == 0 {
		return []columns.Definition{}
	}
	first := docs[0].Data
	keys := make([]string, 0, len(first))
	for k := range first {
		if !columns.IsImplicitField(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	defs := make([]columns.Definition, len(keys))
	for i, k := range keys {
		defs[i] = columns.Definition{ID: k, Name: k, Type: infer.FromValue(first[k]), Editable: true}
	}
	return defs
}

// sortBySerial orders documents by ascending serialNo. Documents without a
// numeric serialNo keep their store order after the numbered ones.
func sortBySerial(docs []docstore.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, aok := docs[i].Data[columns.SerialNoID]
		b, bok := docs[j].Data[columns.SerialNoID]
		switch {
		case aok && bok:
			return docstore.Compare(a, b) < 0
		case aok:
			return true
		}
		return false
	})
}

// mergeColumns appends the definitions in extra whose ids are not yet in
// base. It reports which definitions were added.
func mergeColumns(base, extra []columns.Definition) (merged, added []columns.Definition) {
	merged = append([]columns.Definition{}, base...)
	for _, d := range extra {
		if d.ID == columns.SerialNoID {
			continue
		}
		if _, ok := columns.Find(merged, d.ID); ok {
			continue
		}
		merged = append(merged, d)
		added = append(added, d)
	}
	return merged, added
}

// Package infer guesses column types for values that arrive without a schema.
//
// Two modes are provided:
//
//   - FromValue classifies a single stored value. It is cheap and runs once
//     per column whenever a table's schema is reconstructed from a document.
//   - FromSamples classifies a column of raw import strings. It is
//     conservative: a type is chosen only if every sampled value agrees.
//
// In both modes the rules are tried in a fixed order and the first match wins.
package infer

import (
	"encoding/json"
	"strings"

	"github.com/JonMunkholm/tablekit/internal/core/columns"
)

// SampleSize is the maximum number of non-empty values inspected per column.
const SampleSize = 10

// FromValue infers a column type from one stored value.
//
// Numbers and booleans map to their own types. Strings are checked in order:
// date (parseable and containing '-'), email (contains '@' and '.'), link
// (starts with "http" or "www"). Everything else is text.
func FromValue(v any) columns.Type {
	switch val := v.(type) {
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		return columns.Number
	case bool:
		return columns.Boolean
	case string:
		if _, ok := columns.ParseDate(val); ok && strings.Contains(val, "-") {
			return columns.Date
		}
		if strings.Contains(val, "@") && strings.Contains(val, ".") {
			return columns.Email
		}
		if strings.HasPrefix(val, "http") || strings.HasPrefix(val, "www") {
			return columns.Link
		}
	}
	return columns.Text
}

// sampleRule is one unanimous-agreement check.
type sampleRule struct {
	typ   columns.Type
	match func(string) bool
}

var sampleRules = []sampleRule{
	{columns.Number, columns.IsNumeric},
	{columns.Boolean, func(s string) bool { return s == "true" || s == "false" }},
	{columns.Date, func(s string) bool {
		_, ok := columns.ParseDate(s)
		return ok
	}},
	{columns.Link, func(s string) bool { return strings.HasPrefix(s, "http") || strings.HasPrefix(s, "www") }},
	{columns.Email, func(s string) bool { return strings.Contains(s, "@") }},
}

// Sample returns up to SampleSize non-empty values from values, in order.
func Sample(values []string) []string {
	out := make([]string, 0, SampleSize)
	for _, v := range values {
		if v == "" {
			continue
		}
		out = append(out, v)
		if len(out) == SampleSize {
			break
		}
	}
	return out
}

// FromSamples infers a column type from raw strings. Only the first
// SampleSize non-empty values are inspected. An empty sample is text.
func FromSamples(values []string) columns.Type {
	sample := Sample(values)
	if len(sample) == 0 {
		return columns.Text
	}

	for _, rule := range sampleRules {
		if all(sample, rule.match) {
			return rule.typ
		}
	}
	return columns.Text
}

// Column infers the type of column idx across parsed CSV records.
// Records shorter than idx+1 contribute an empty value.
func Column(records [][]string, idx int) columns.Type {
	values := make([]string, 0, len(records))
	for _, rec := range records {
		if idx < len(rec) {
			values = append(values, rec[idx])
		} else {
			values = append(values, "")
		}
	}
	return FromSamples(values)
}

func all(values []string, pred func(string) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}

package infer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JonMunkholm/tablekit/internal/core/columns"
)

func TestFromValue(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  columns.Type
	}{
		{"float", 12.5, columns.Number},
		{"int", 3, columns.Number},
		{"bool", true, columns.Boolean},
		{"iso date", "2024-05-01", columns.Date},
		{"slash date has no dash", "05/01/2024", columns.Text},
		{"email", "someone@example.com", columns.Email},
		{"at without dot", "user@localhost", columns.Text},
		{"http link", "https://example.com", columns.Link},
		{"www link", "www.example.com", columns.Link},
		{"plain text", "hello", columns.Text},
		{"nil", nil, columns.Text},
		{"map", map[string]any{"a": 1}, columns.Text},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromValue(tt.value))
		})
	}
}

func TestFromValue_DateBeatsEmail(t *testing.T) {
	// A dashed date containing neither '@' nor a URL prefix resolves to the
	// earliest rule; an email-shaped string with a dash is not a date.
	assert.Equal(t, columns.Date, FromValue("2024-01-02T10:00:00Z"))
	assert.Equal(t, columns.Email, FromValue("first-last@example.com"))
}

func TestFromSamples(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   columns.Type
	}{
		{"empty", nil, columns.Text},
		{"only blanks", []string{"", ""}, columns.Text},
		{"numbers", []string{"1", "2.5", "-3", ""}, columns.Number},
		{"booleans", []string{"true", "false", "true"}, columns.Boolean},
		{"dates", []string{"2024-01-01", "1/2/2024"}, columns.Date},
		{"links", []string{"http://a", "www.b.com"}, columns.Link},
		{"emails", []string{"a@b", "c@d.com"}, columns.Email},
		{"mixed falls back to text", []string{"1", "abc"}, columns.Text},
		{"number wins over boolean order", []string{"0", "1"}, columns.Number},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromSamples(tt.values))
		})
	}
}

func TestFromSamples_OnlyFirstTenNonEmptyCount(t *testing.T) {
	values := []string{""}
	for i := 0; i < SampleSize; i++ {
		values = append(values, "42")
	}
	values = append(values, "not a number")

	assert.Equal(t, columns.Number, FromSamples(values))
	assert.Len(t, Sample(values), SampleSize)
}

func TestColumn(t *testing.T) {
	records := [][]string{
		{"a", "1"},
		{"b"},
		{"c", "3"},
	}
	assert.Equal(t, columns.Text, Column(records, 0))
	assert.Equal(t, columns.Number, Column(records, 1))
}

package columns

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCoversEveryType(t *testing.T) {
	all := All()
	require.Len(t, all, 8)

	now := time.Date(2026, 10, 18, 15, 0, 0, 0, time.UTC)
	for _, d := range all {
		assert.NotEmpty(t, d.Label, d.Type)
		assert.NotPanics(t, func() { d.DefaultAt(now) }, d.Type)
		assert.True(t, d.Validate(d.DefaultAt(now)), "default of %s must validate", d.Type)
	}
}

func TestDefaults(t *testing.T) {
	now := time.Date(2026, 10, 18, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, "", Text.DefaultAt(now))
	assert.Equal(t, float64(0), Number.DefaultAt(now))
	assert.Equal(t, false, Boolean.DefaultAt(now))
	assert.Equal(t, "2026-10-18", Date.DefaultAt(now))
	assert.Equal(t, "", Type("nope").DefaultAt(now))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		typ   Type
		value any
		want  bool
	}{
		{"text string", Text, "hello", true},
		{"text number", Text, 12.0, false},
		{"number float", Number, 3.5, true},
		{"number NaN", Number, math.NaN(), false},
		{"number +Inf", Number, math.Inf(1), false},
		{"number -Inf float32", Number, float32(math.Inf(-1)), false},
		{"number Infinity string", Number, "Infinity", false},
		{"number Inf string", Number, "Inf", false},
		{"number +Inf string", Number, "+Inf", false},
		{"number -Inf string", Number, "-Inf", false},
		{"number NaN string", Number, "NaN", false},
		{"number overflow string", Number, "1e400", false},
		{"number bool", Number, true, false},
		{"number numeric string", Number, "42", true},
		{"number empty string", Number, "", true},
		{"number word", Number, "abc", false},
		{"number nil", Number, nil, false},
		{"link empty", Link, "", true},
		{"link http prefix", Link, "http-ish", true},
		{"link absolute url", Link, "ftp://example.com/a", true},
		{"link relative", Link, "example.com", false},
		{"link non string", Link, true, false},
		{"date iso", Date, "2024-02-29", true},
		{"date us", Date, "02/29/2024", true},
		{"date garbage", Date, "tomorrow-ish", false},
		{"date number", Date, 20240101.0, false},
		{"boolean", Boolean, true, true},
		{"boolean string", Boolean, "true", false},
		{"email valid", Email, "a@b.co", true},
		{"email empty", Email, "", true},
		{"email no tld", Email, "a@b", false},
		{"email spaces", Email, "a b@c.de", false},
		{"email map", Email, map[string]any{"x": 1}, false},
		{"unknown type", Type("blob"), "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.Validate(tt.value))
		})
	}
}

func TestParse(t *testing.T) {
	typ, err := Parse(" Email ")
	require.NoError(t, err)
	assert.Equal(t, Email, typ)

	_, err = Parse("spreadsheet")
	assert.Error(t, err)
}

func TestDeriveID(t *testing.T) {
	assert.Equal(t, "due_date", DeriveID("Due Date"))
	assert.Equal(t, "a_b_c", DeriveID("A \t B\nC"))
	assert.Equal(t, "price($)", DeriveID("Price($)"))
}

func TestIsReservedName(t *testing.T) {
	for _, name := range []string{"Serial No.", "serial no.", "SERIALNO", "serialno", "serialNo", " SerialNo "} {
		assert.True(t, IsReservedName(name), name)
	}
	for _, name := range []string{"Serial", "No.", "serial number"} {
		assert.False(t, IsReservedName(name), name)
	}
}

func TestCoerce(t *testing.T) {
	assert.Equal(t, 12.5, Coerce(Number, "12.5"))
	assert.Equal(t, float64(0), Coerce(Number, ""))
	assert.Equal(t, float64(7), Coerce(Number, 7))
	for _, v := range []any{math.Inf(1), math.Inf(-1), math.NaN(), "Infinity", "-Inf"} {
		assert.Equal(t, float64(0), Coerce(Number, v), "Coerce(Number, %v)", v)
	}
	assert.Equal(t, "2024-03-01", Coerce(Date, "03/01/2024"))
	assert.Equal(t, "keep", Coerce(Text, "keep"))
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024-01-15", "2024-01-15", true},
		{"2024-01-15T10:00:00Z", "2024-01-15", true},
		{"1/15/2024", "2024-01-15", true},
		{"Jan 15, 2024", "2024-01-15", true},
		{"15 Jan 2024", "2024-01-15", true},
		{"", "", false},
		{"not a date", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseDate(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, FormatDate(got), tt.in)
		}
	}
}

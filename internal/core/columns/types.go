// Package columns declares the closed set of column types a dynamic table
// may use, together with their labels, default values and edit validators.
package columns

// types.go is the column type registry.
//
// Every Type has exactly one Descriptor in the dispatch table below. The table
// is checked at init against the ordered type list so that adding a Type
// without a default or validator fails at program start instead of at the
// first edit.

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Type is a column's scalar type.
type Type string

const (
	Text    Type = "text"
	Number  Type = "number"
	Image   Type = "image"
	Link    Type = "link"
	File    Type = "file"
	Date    Type = "date"
	Boolean Type = "boolean"
	Email   Type = "email"
)

// DateLayout is the canonical storage format for date cells.
const DateLayout = "2006-01-02"

// orderedTypes lists every Type in catalogue order.
var orderedTypes = []Type{Text, Number, Image, Link, File, Date, Boolean, Email}

// emailRegex requires a local@domain.tld shape.
var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// numericRegex matches integers, decimals and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// Descriptor describes one column type.
type Descriptor struct {
	Type  Type   `json:"type"`
	Label string `json:"label"`
	Icon  string `json:"icon"`

	defaultAt func(now time.Time) any
	validate  func(v any) bool
}

// DefaultAt returns the default cell value for the type at the given instant.
// Only Date depends on the clock.
func (d Descriptor) DefaultAt(now time.Time) any {
	return d.defaultAt(now)
}

// Validate reports whether v is an acceptable cell value for the type.
// It never panics for any JSON-representable input.
func (d Descriptor) Validate(v any) bool {
	return d.validate(v)
}

var registry = map[Type]Descriptor{
	Text: {
		Type: Text, Label: "Text", Icon: "📝",
		defaultAt: constant(""),
		validate:  isString,
	},
	Number: {
		Type: Number, Label: "Number", Icon: "🔢",
		defaultAt: constant(float64(0)),
		validate:  isNumberLike,
	},
	Image: {
		Type: Image, Label: "Image URL", Icon: "🖼️",
		defaultAt: constant(""),
		validate:  isString,
	},
	Link: {
		Type: Link, Label: "Link/URL", Icon: "🔗",
		defaultAt: constant(""),
		validate:  isLink,
	},
	File: {
		Type: File, Label: "File", Icon: "📎",
		defaultAt: constant(""),
		validate:  isString,
	},
	Date: {
		Type: Date, Label: "Date", Icon: "📅",
		defaultAt: func(now time.Time) any { return now.UTC().Format(DateLayout) },
		validate:  isDate,
	},
	Boolean: {
		Type: Boolean, Label: "Yes/No", Icon: "✅",
		defaultAt: constant(false),
		validate:  isBool,
	},
	Email: {
		Type: Email, Label: "Email", Icon: "📧",
		defaultAt: constant(""),
		validate:  isEmail,
	},
}

func init() {
	if len(registry) != len(orderedTypes) {
		panic(fmt.Sprintf("column registry has %d entries, want %d", len(registry), len(orderedTypes)))
	}
	for _, t := range orderedTypes {
		d, ok := registry[t]
		if !ok || d.defaultAt == nil || d.validate == nil {
			panic(fmt.Sprintf("column type %q is not fully registered", t))
		}
	}
}

// Describe returns the descriptor for t.
func Describe(t Type) (Descriptor, bool) {
	d, ok := registry[t]
	return d, ok
}

// All returns every descriptor in catalogue order.
func All() []Descriptor {
	out := make([]Descriptor, len(orderedTypes))
	for i, t := range orderedTypes {
		out[i] = registry[t]
	}
	return out
}

// Parse converts a type name into a Type.
func Parse(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := registry[t]; !ok {
		return "", fmt.Errorf("unknown column type %q", s)
	}
	return t, nil
}

// Valid reports whether t is a registered type.
func (t Type) Valid() bool {
	_, ok := registry[t]
	return ok
}

// DefaultAt returns the default value of t at now, falling back to the empty
// string for unregistered types.
func (t Type) DefaultAt(now time.Time) any {
	if d, ok := registry[t]; ok {
		return d.DefaultAt(now)
	}
	return ""
}

// Default returns the default value of t using the current time.
func (t Type) Default() any {
	return t.DefaultAt(time.Now())
}

// Validate applies the type's edit validator. Unregistered types reject everything.
func (t Type) Validate(v any) bool {
	d, ok := registry[t]
	if !ok {
		return false
	}
	return d.Validate(v)
}

// IsNumeric reports whether s is a plain decimal or scientific-notation number.
func IsNumeric(s string) bool {
	return numericRegex.MatchString(strings.TrimSpace(s))
}

func constant(v any) func(time.Time) any {
	return func(time.Time) any { return v }
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func isBool(v any) bool {
	_, ok := v.(bool)
	return ok
}

// isNumberLike accepts finite numbers and strings that parse to one.
// The empty string counts as unset. Booleans are not numbers.
func isNumberLike(v any) bool {
	switch n := v.(type) {
	case float64:
		return isFinite(n)
	case float32:
		return isFinite(float64(n))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return true
		}
		f, err := strconv.ParseFloat(s, 64)
		return err == nil && isFinite(f)
	default:
		return false
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func isLink(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	if s == "" || strings.HasPrefix(s, "http") {
		return true
	}
	u, err := url.Parse(s)
	return err == nil && u.IsAbs()
}

func isDate(v any) bool {
	switch d := v.(type) {
	case time.Time:
		return !d.IsZero()
	case string:
		_, ok := ParseDate(d)
		return ok
	default:
		return false
	}
}

func isEmail(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	return s == "" || emailRegex.MatchString(s)
}

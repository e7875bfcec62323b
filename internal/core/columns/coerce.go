package columns

import (
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Coerce normalizes an already validated edit value into its storage form:
// numbers become float64 and dates become YYYY-MM-DD strings. Other types
// are stored as given. Non-finite numbers are stored as 0.
func Coerce(t Type, v any) any {
	switch t {
	case Number:
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			return float64(0)
		}
		f, err := cast.ToFloat64E(v)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return float64(0)
		}
		return f
	case Date:
		switch d := v.(type) {
		case time.Time:
			return FormatDate(d)
		case string:
			if parsed, ok := ParseDate(d); ok {
				return FormatDate(parsed)
			}
		}
	}
	return v
}

// internal/form/value.go
//
// Forms subsystem: field values.
//
// Context
//   A form holds one value per field.  Text-like inputs hold a string,
//   checkboxes a bool, and number inputs a Number.  An absent field reads as
//   nil.  Callers may also seed plain Go ints and floats; the evaluator treats
//   them as valid numbers.
//
// Notes
//   •  ParseNumber never fails.  Unparseable input yields Number{Valid: false}
//      so the rule evaluator can report it instead of carrying a NaN around.
//   •  Values are shallow-copied on every snapshot.  All supported kinds are
//      immutable scalars, so a shallow copy is a full copy.
//
//------------------------------------------------------------------------------

package form

import (
	"math"
	"strconv"
	"strings"
)

// Values maps field name → current value.
type Values map[string]any

// Clone returns a copy that shares nothing with v.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Errors maps field name → message.  A field missing from the map is valid.
type Errors map[string]string

func (e Errors) clone() Errors {
	out := make(Errors, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Number is the parsed value of a numeric input.
type Number struct {
	Value float64
	Valid bool
}

// ParseNumber parses raw the way a browser number input would.  Surrounding
// whitespace is ignored.  NaN and infinities are reported as invalid.
func ParseNumber(raw string) Number {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Number{}
	}
	return Number{Value: f, Valid: true}
}

// String renders valid numbers without a trailing ".0" and invalid ones as
// "NaN".
func (n Number) String() string {
	if !n.Valid {
		return "NaN"
	}
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

// MarshalJSON encodes an invalid number as null.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(n.String()), nil
}

// isEmpty reports whether v counts as "no input" for the required rule.
// An invalid Number is not empty: the user typed something.
func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	default:
		return false
	}
}

// numeric extracts a number from v.  ok is false for non-numeric kinds.
func numeric(v any) (f float64, valid, ok bool) {
	switch x := v.(type) {
	case Number:
		return x.Value, x.Valid, true
	case float64:
		return x, !math.IsNaN(x) && !math.IsInf(x, 0), true
	case float32:
		f := float64(x)
		return f, !math.IsNaN(f) && !math.IsInf(f, 0), true
	case int:
		return float64(x), true, true
	case int8:
		return float64(x), true, true
	case int16:
		return float64(x), true, true
	case int32:
		return float64(x), true, true
	case int64:
		return float64(x), true, true
	case uint:
		return float64(x), true, true
	case uint8:
		return float64(x), true, true
	case uint16:
		return float64(x), true, true
	case uint32:
		return float64(x), true, true
	case uint64:
		return float64(x), true, true
	default:
		return 0, false, false
	}
}

package form

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	digits := regexp.MustCompile(`^[0-9]+$`)

	cases := []struct {
		name  string
		rule  Rule
		value any
		want  string // "" means valid
	}{
		{"required nil", Rule{Required: true}, nil, "This field is required"},
		{"required empty", Rule{Required: true}, "", "This field is required"},
		{"required false checkbox passes", Rule{Required: true}, false, ""},
		{"optional empty skips rest", Rule{MinLength: 3, Pattern: digits}, "", ""},
		{"min length", Rule{MinLength: 3}, "ab", "Must be at least 3 characters"},
		{"min length counts runes", Rule{MinLength: 3}, "héé", ""},
		{"max length", Rule{MaxLength: 2}, "abc", "Must be at most 2 characters"},
		{"pattern", Rule{Pattern: digits}, "12a", "Invalid format"},
		{"length skips non-string", Rule{MinLength: 5}, true, ""},
		{"pattern skips number", Rule{Pattern: digits}, Number{Value: 1.5, Valid: true}, ""},
		{"invalid number", Rule{}, Number{}, "Must be a valid number"},
		{"invalid number not empty", Rule{Required: true}, Number{}, "Must be a valid number"},
		{"min", Rule{Min: Float(0)}, Number{Value: -1, Valid: true}, "Must be at least 0"},
		{"max", Rule{Max: Float(2.5)}, 3, "Must be at most 2.5"},
		{"min max in range", Rule{Min: Float(0), Max: Float(10)}, 10.0, ""},
		{"min skips string", Rule{Min: Float(5)}, "1", ""},
		{"error message overrides", Rule{MinLength: 3, ErrorMessage: "Too short"}, "a", "Too short"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			msg, failed := Evaluate(c.rule, c.value, nil)
			assert.Equal(t, c.want, msg)
			assert.Equal(t, c.want != "", failed)
		})
	}
}

func TestEvaluateCustom(t *testing.T) {
	all := Values{"password": "secret", "confirm": "other"}
	same := func(v any, all Values) CustomResult {
		if v == all["password"] {
			return Pass()
		}
		return Fail("Passwords do not match")
	}

	msg, failed := Evaluate(Rule{Custom: same}, "other", all)
	assert.True(t, failed)
	assert.Equal(t, "Passwords do not match", msg)

	_, failed = Evaluate(Rule{Custom: same}, "secret", all)
	assert.False(t, failed)

	// Message precedence: result, then ErrorMessage, then default.
	never := Predicate(func(any, Values) bool { return false })
	msg, _ = Evaluate(Rule{Custom: never}, "x", nil)
	assert.Equal(t, "Invalid value", msg)
	msg, _ = Evaluate(Rule{Custom: never, ErrorMessage: "Nope"}, "x", nil)
	assert.Equal(t, "Nope", msg)
	msg, _ = Evaluate(Rule{Custom: func(any, Values) CustomResult { return Fail("Own") }, ErrorMessage: "Nope"}, "x", nil)
	assert.Equal(t, "Own", msg)
}

func TestEvaluateCustomRunsLast(t *testing.T) {
	called := false
	rule := Rule{MinLength: 3, Custom: func(any, Values) CustomResult {
		called = true
		return Pass()
	}}
	Evaluate(rule, "a", nil)
	assert.False(t, called)

	Evaluate(rule, "", nil)
	assert.False(t, called)

	Evaluate(rule, "abc", nil)
	assert.True(t, called)
}

func TestEvaluateCustomPanicIsFailure(t *testing.T) {
	boom := func(any, Values) CustomResult { panic("boom") }

	msg, failed := Evaluate(Rule{Custom: boom}, "x", nil)
	assert.True(t, failed)
	assert.Equal(t, "Invalid value", msg)

	msg, _ = Evaluate(Rule{Custom: boom, ErrorMessage: "Check failed"}, "x", nil)
	assert.Equal(t, "Check failed", msg)
}

func TestAllOf(t *testing.T) {
	first := func(any, Values) CustomResult { return Fail("first") }
	second := func(any, Values) CustomResult { return Fail("second") }

	assert.Equal(t, "first", AllOf(nil, first, second)("x", nil).Message)
	assert.True(t, AllOf()("x", nil).OK)
}

func TestParseNumber(t *testing.T) {
	assert.Equal(t, Number{Value: 42, Valid: true}, ParseNumber("42"))
	assert.Equal(t, Number{Value: -3.5, Valid: true}, ParseNumber(" -3.5 "))
	assert.Equal(t, Number{Value: 1000, Valid: true}, ParseNumber("1e3"))
	assert.False(t, ParseNumber("abc").Valid)
	assert.False(t, ParseNumber("NaN").Valid)
	assert.False(t, ParseNumber("Inf").Valid)
	assert.False(t, ParseNumber("").Valid)

	b, err := Number{}.MarshalJSON()
	assert.NoError(t, err)
	assert.Equal(t, "null", string(b))
	assert.Equal(t, "38.5", ParseNumber("38.50").String())
}

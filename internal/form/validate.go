// internal/form/validate.go
//
// Forms subsystem: rule evaluator.
//
// Context
//   A Rule bundles every constraint that applies to one field.  Evaluate
//   checks a single value against a single Rule and returns the first
//   failure message.  It is pure: no logging, no state, no I/O.  The
//   orchestrator in form.go decides WHEN a field is evaluated; this file only
//   decides WHETHER it passes.
//
// Workflow
//   Checks run in a fixed order and stop at the first failure:
//
//     required → minLength → maxLength → pattern → number → min → max → custom
//
//   •  An empty value (nil or "") fails only the required check.  Every
//      other check is skipped, so optional fields may be left blank.
//   •  Length and pattern checks apply to strings only.  Other kinds are
//      exempt and never coerced.
//   •  Number, min, and max apply to numeric values only.
//   •  Custom runs last with the full value map so it can compare fields.
//
// Notes
//   ErrorMessage overrides the default text of whichever built-in check
//   fails.  A custom check may supply its own message, which wins over both.
//
//------------------------------------------------------------------------------

package form

import (
	"fmt"
	"regexp"
	"strconv"
	"unicode/utf8"
)

// Default messages.
const (
	msgRequired  = "This field is required"
	msgMinLength = "Must be at least %d characters"
	msgMaxLength = "Must be at most %d characters"
	msgPattern   = "Invalid format"
	msgNumber    = "Must be a valid number"
	msgMin       = "Must be at least %s"
	msgMax       = "Must be at most %s"
	msgCustom    = "Invalid value"
)

// -----------------------------------------------------------------------------
// Rules
// -----------------------------------------------------------------------------

// Rule is the set of constraints for one field.  Zero values mean "unset".
type Rule struct {
	Required     bool
	MinLength    int
	MaxLength    int
	Pattern      *regexp.Regexp
	Min          *float64
	Max          *float64
	Custom       CustomFunc
	ErrorMessage string
}

// RuleMap maps field name → Rule.  Fields without an entry are never
// validated.
type RuleMap map[string]Rule

func (m RuleMap) clone() RuleMap {
	out := make(RuleMap, len(m))
	for k, r := range m {
		out[k] = r
	}
	return out
}

// CustomResult is the outcome of a custom check.  A failing result may carry
// its own message.
type CustomResult struct {
	OK      bool
	Message string
}

// CustomFunc checks value with access to every field's current value.  It
// must not mutate all.
type CustomFunc func(value any, all Values) CustomResult

// Pass is the successful CustomResult.
func Pass() CustomResult { return CustomResult{OK: true} }

// Fail is a failing CustomResult.  An empty msg falls back to the rule's
// ErrorMessage, then to the default.
func Fail(msg string) CustomResult { return CustomResult{Message: msg} }

// Predicate adapts a plain boolean check.
func Predicate(fn func(value any, all Values) bool) CustomFunc {
	return func(value any, all Values) CustomResult {
		if fn(value, all) {
			return Pass()
		}
		return Fail("")
	}
}

// AllOf runs fns in order and returns the first failure.  Nil entries are
// skipped.
func AllOf(fns ...CustomFunc) CustomFunc {
	return func(value any, all Values) CustomResult {
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if res := fn(value, all); !res.OK {
				return res
			}
		}
		return Pass()
	}
}

// Float returns a pointer to f, for Rule.Min and Rule.Max literals.
func Float(f float64) *float64 { return &f }

// -----------------------------------------------------------------------------
// Evaluation
// -----------------------------------------------------------------------------

// Evaluate checks value against rule.  It returns the failure message and
// true, or "" and false when the value satisfies every check.
func Evaluate(rule Rule, value any, all Values) (string, bool) {
	if isEmpty(value) {
		if rule.Required {
			return rule.message(msgRequired), true
		}
		return "", false
	}

	if s, ok := value.(string); ok {
		n := utf8.RuneCountInString(s)
		if rule.MinLength > 0 && n < rule.MinLength {
			return rule.message(fmt.Sprintf(msgMinLength, rule.MinLength)), true
		}
		if rule.MaxLength > 0 && n > rule.MaxLength {
			return rule.message(fmt.Sprintf(msgMaxLength, rule.MaxLength)), true
		}
		if rule.Pattern != nil && !rule.Pattern.MatchString(s) {
			return rule.message(msgPattern), true
		}
	}

	if f, valid, ok := numeric(value); ok {
		if !valid {
			return rule.message(msgNumber), true
		}
		if rule.Min != nil && f < *rule.Min {
			return rule.message(fmt.Sprintf(msgMin, formatFloat(*rule.Min))), true
		}
		if rule.Max != nil && f > *rule.Max {
			return rule.message(fmt.Sprintf(msgMax, formatFloat(*rule.Max))), true
		}
	}

	if rule.Custom != nil {
		if res := runCustom(rule.Custom, value, all); !res.OK {
			if res.Message != "" {
				return res.Message, true
			}
			return rule.message(msgCustom), true
		}
	}
	return "", false
}

func (r Rule) message(def string) string {
	if r.ErrorMessage != "" {
		return r.ErrorMessage
	}
	return def
}

// runCustom turns a panicking check into a plain failure.
func runCustom(fn CustomFunc, value any, all Values) (res CustomResult) {
	defer func() {
		if recover() != nil {
			res = CustomResult{}
		}
	}()
	return fn(value, all)
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

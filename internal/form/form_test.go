package form

import (
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spyEvent struct{ prevented int }

func (e *spyEvent) PreventDefault() { e.prevented++ }

func TestRequiredIsGatedUntilTouched(t *testing.T) {
	f := New(Values{"name": ""}, RuleMap{"name": {Required: true}})

	assert.Empty(t, f.Errors())
	assert.True(t, f.IsValid())
	assert.Equal(t, Pristine, f.Phase())
}

func TestSubmitEnforcesRequired(t *testing.T) {
	f := New(Values{"name": ""}, RuleMap{"name": {Required: true}})
	ev := &spyEvent{}
	called := 0

	ok := f.HandleSubmit(ev, func(Values) { called++ })

	assert.False(t, ok)
	assert.Equal(t, 0, called)
	assert.Equal(t, 1, ev.prevented)
	assert.Equal(t, "This field is required", f.Errors()["name"])
	assert.True(t, f.IsSubmitted())
	assert.Equal(t, Submitted, f.Phase())
}

func TestFirstFailingRuleWins(t *testing.T) {
	rules := RuleMap{"code": {
		Required:  true,
		MinLength: 5,
		Pattern:   regexp.MustCompile(`^[0-9]+$`),
	}}
	f := New(Values{"code": ""}, rules)

	f.HandleChange(ChangeEvent{Name: "code", Value: "12"})
	assert.Equal(t, "Must be at least 5 characters", f.Errors()["code"])

	f.HandleChange(ChangeEvent{Name: "code", Value: "ab"})
	assert.Equal(t, "Must be at least 5 characters", f.Errors()["code"])

	f.HandleChange(ChangeEvent{Name: "code", Value: "abcde"})
	assert.Equal(t, "Invalid format", f.Errors()["code"])

	f.HandleChange(ChangeEvent{Name: "code", Value: ""})
	assert.Equal(t, "This field is required", f.Errors()["code"])
}

func TestChangeTouchesOnlyThatField(t *testing.T) {
	rules := RuleMap{
		"first":  {Required: true},
		"second": {Required: true},
	}
	f := New(Values{"first": "", "second": ""}, rules)

	f.HandleChange(ChangeEvent{Name: "first", Value: ""})
	assert.Equal(t, map[string]bool{"first": true}, f.Touched())
	assert.Contains(t, f.Errors(), "first")
	assert.NotContains(t, f.Errors(), "second")
	assert.Equal(t, Editing, f.Phase())

	f.HandleChange(ChangeEvent{Name: "second", Value: ""})
	assert.Contains(t, f.Errors(), "second")
}

func TestResetMatchesFreshForm(t *testing.T) {
	initial := Values{"name": "", "qty": Number{Value: 1, Valid: true}}
	rules := RuleMap{"name": {Required: true}, "qty": {Min: Float(1)}}

	f := New(initial, rules)
	f.HandleChange(ChangeEvent{Name: "name", Value: "x"})
	f.HandleChange(ChangeEvent{Name: "qty", Type: TypeNumber, Value: "0"})
	f.HandleSubmit(nil, nil)

	f.Reset()
	fresh := New(initial, rules)

	assert.Equal(t, initial, f.Values())
	assert.Empty(t, f.Touched())
	assert.False(t, f.IsSubmitted())
	assert.Equal(t, fresh.Errors(), f.Errors())
	assert.Equal(t, Pristine, f.Phase())
}

func TestResetWithNewValues(t *testing.T) {
	f := New(Values{"name": "a"}, RuleMap{"name": {Required: true}})
	f.Reset(Values{"name": "b"})
	assert.Equal(t, "b", f.Value("name"))

	f.Reset()
	assert.Equal(t, "a", f.Value("name"))
}

func TestCheckboxAndNumberCoercion(t *testing.T) {
	f := New(Values{}, RuleMap{})

	f.HandleChange(ChangeEvent{Name: "active", Type: TypeCheckbox, Value: "on", Checked: true})
	assert.Equal(t, true, f.Value("active"))

	f.HandleChange(ChangeEvent{Name: "active", Type: TypeCheckbox, Value: "on", Checked: false})
	assert.Equal(t, false, f.Value("active"))

	f.HandleChange(ChangeEvent{Name: "qty", Type: TypeNumber, Value: "42"})
	assert.Equal(t, Number{Value: 42, Valid: true}, f.Value("qty"))

	f.HandleChange(ChangeEvent{Name: "qty", Type: TypeNumber, Value: ""})
	assert.Equal(t, "", f.Value("qty"))

	f.HandleChange(ChangeEvent{Name: "qty", Type: TypeNumber, Value: "4x"})
	assert.Equal(t, Number{}, f.Value("qty"))
}

func TestUsernameScenario(t *testing.T) {
	f := New(Values{"username": ""}, RuleMap{"username": {Required: true, MinLength: 3}})

	f.HandleChange(ChangeEvent{Name: "username", Value: "ab"})
	assert.Equal(t, "Must be at least 3 characters", f.Errors()["username"])

	f.HandleChange(ChangeEvent{Name: "username", Value: "abc"})
	assert.Empty(t, f.Errors())
	assert.True(t, f.IsValid())

	var got []Values
	ok := f.HandleSubmit(&spyEvent{}, func(v Values) { got = append(got, v) })
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, Values{"username": "abc"}, got[0])
}

func TestSubmitSnapshotIsDetached(t *testing.T) {
	f := New(Values{"name": "a"}, RuleMap{"name": {Required: true}})
	var snap Values
	f.HandleSubmit(nil, func(v Values) { snap = v })

	snap["name"] = "mutated"
	assert.Equal(t, "a", f.Value("name"))
}

func TestSubmittedValidatesEveryRuledField(t *testing.T) {
	rules := RuleMap{"a": {Required: true}, "b": {Required: true}}
	f := New(Values{"a": "x", "b": ""}, rules)
	f.HandleSubmit(nil, nil)
	assert.Equal(t, Errors{"b": "This field is required"}, f.Errors())

	// After submit, fixing one field keeps validating the other.
	f.SetValue("b", "y")
	assert.True(t, f.IsValid())
	f.SetValue("a", "")
	assert.Equal(t, Errors{"a": "This field is required"}, f.Errors())
}

func TestUnruledFieldsAreIgnored(t *testing.T) {
	f := New(Values{"note": ""}, RuleMap{})
	assert.True(t, f.HandleSubmit(nil, nil))
	assert.Empty(t, f.Touched())
}

func TestObserverCalledOnEveryRecompute(t *testing.T) {
	type call struct {
		valid bool
		errs  Errors
	}
	var calls []call
	obs := WithObserver(func(valid bool, errs Errors) {
		calls = append(calls, call{valid, errs})
	})

	f := New(Values{"name": ""}, RuleMap{"name": {Required: true}}, obs)
	require.Len(t, calls, 1)
	assert.True(t, calls[0].valid)

	f.HandleChange(ChangeEvent{Name: "name", Value: ""})
	f.HandleSubmit(nil, nil)
	f.Reset()

	require.Len(t, calls, 4)
	assert.False(t, calls[1].valid)
	assert.Equal(t, "This field is required", calls[2].errs["name"])
	assert.True(t, calls[3].valid)
}

func TestObserverMayReadForm(t *testing.T) {
	var f *Form
	var seen []bool
	f = New(Values{}, RuleMap{}, WithObserver(func(bool, Errors) {
		if f != nil {
			seen = append(seen, f.IsSubmitted())
		}
	}))
	f.HandleSubmit(nil, nil)
	assert.Equal(t, []bool{true}, seen)
}

func TestConcurrentChanges(t *testing.T) {
	f := New(Values{}, RuleMap{"a": {MinLength: 2}})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				f.HandleChange(ChangeEvent{Name: "a", Value: "x"})
			} else {
				_ = f.State()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, "Must be at least 2 characters", f.Errors()["a"])
}

func TestStateSnapshot(t *testing.T) {
	f := New(Values{"name": ""}, RuleMap{"name": {Required: true}})
	f.HandleSubmit(nil, nil)

	st := f.State()
	assert.False(t, st.IsValid)
	assert.True(t, st.Submitted)
	assert.True(t, st.Touched["name"])
	assert.Equal(t, "This field is required", st.Errors["name"])
}

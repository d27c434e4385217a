// internal/form/form.go
//
// Forms subsystem: form state, validation orchestration, and the submit gate.
//
// Context
//   A Form owns the live state of one dashboard form: values, touched flags,
//   the submitted flag, and the derived error map.  Screens create one Form
//   per open create/edit dialog and discard it on close.
//
// Workflow
//   •  Every state-changing call (New, HandleChange, SetValue, HandleSubmit,
//      Reset) recomputes the error map exactly once.
//   •  Before the first submit, only touched fields are validated.  After it,
//      every field with a rule is validated on every pass until Reset.
//   •  HandleSubmit marks all ruled fields touched, runs a full pass, and
//      calls onSubmit with a snapshot only when the pass found no errors.
//
// Notes
//   A mutex serialises calls.  The observer and onSubmit run after the lock
//   is released, so they may read the form or even call back into it.
//
//------------------------------------------------------------------------------

package form

import "sync"

// Input types with special change handling.
const (
	TypeCheckbox = "checkbox"
	TypeNumber   = "number"
)

// ChangeEvent is the payload of an input change.
type ChangeEvent struct {
	Name    string
	Value   string
	Type    string
	Checked bool
}

// SubmitEvent is anything with a default action to suppress.
type SubmitEvent interface {
	PreventDefault()
}

// Observer receives the validity and errors after every recomputation.
type Observer func(isValid bool, errs Errors)

// Option configures a Form at construction.
type Option func(*Form)

// WithObserver installs fn as the form's observer.
func WithObserver(fn Observer) Option {
	return func(f *Form) { f.observer = fn }
}

// Phase is the coarse lifecycle state of a form.
type Phase int

const (
	Pristine Phase = iota
	Editing
	Submitted
)

func (p Phase) String() string {
	switch p {
	case Pristine:
		return "pristine"
	case Editing:
		return "editing"
	case Submitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// State is a point-in-time snapshot, shaped for JSON responses.
type State struct {
	Values    Values          `json:"values"`
	Errors    Errors          `json:"errors"`
	Touched   map[string]bool `json:"touched"`
	IsValid   bool            `json:"isValid"`
	Submitted bool            `json:"submitted"`
}

// Form is the validated state of one form.  Use New; the zero value is not
// usable.
type Form struct {
	mu        sync.Mutex
	initial   Values
	rules     RuleMap
	observer  Observer
	values    Values
	touched   map[string]bool
	submitted bool
	errors    Errors
}

// pass is what a recomputation reports to the observer.
type pass struct {
	valid bool
	errs  Errors
}

// New returns a form seeded with initial and governed by rules.  Both maps
// are copied.  The observer, if any, is notified once before New returns.
func New(initial Values, rules RuleMap, opts ...Option) *Form {
	f := &Form{
		initial: initial.Clone(),
		rules:   rules.clone(),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.mu.Lock()
	f.values = f.initial.Clone()
	f.touched = make(map[string]bool)
	p := f.recomputeLocked()
	f.mu.Unlock()

	f.notify(p)
	return f
}

// -----------------------------------------------------------------------------
// State store
// -----------------------------------------------------------------------------

// HandleChange applies an input change and marks the field touched.
func (f *Form) HandleChange(ev ChangeEvent) {
	var v any
	switch ev.Type {
	case TypeCheckbox:
		v = ev.Checked
	case TypeNumber:
		if ev.Value == "" {
			v = ""
		} else {
			v = ParseNumber(ev.Value)
		}
	default:
		v = ev.Value
	}
	f.SetValue(ev.Name, v)
}

// SetValue stores value for name and marks the field touched.
func (f *Form) SetValue(name string, value any) {
	f.mu.Lock()
	f.values[name] = value
	f.touched[name] = true
	p := f.recomputeLocked()
	f.mu.Unlock()

	f.notify(p)
}

// Reset discards edits.  With an argument, the first map becomes the new
// set of values; otherwise the initial values are restored.  Touched flags
// and the submitted flag are cleared.
func (f *Form) Reset(newInitial ...Values) {
	f.mu.Lock()
	if len(newInitial) > 0 && newInitial[0] != nil {
		f.values = newInitial[0].Clone()
	} else {
		f.values = f.initial.Clone()
	}
	f.touched = make(map[string]bool)
	f.submitted = false
	p := f.recomputeLocked()
	f.mu.Unlock()

	f.notify(p)
}

// -----------------------------------------------------------------------------
// Submission gate
// -----------------------------------------------------------------------------

// HandleSubmit suppresses ev's default action, validates every ruled field,
// and calls onSubmit with a copy of the values when nothing failed.  It
// reports whether onSubmit was called.  ev and onSubmit may be nil.
func (f *Form) HandleSubmit(ev SubmitEvent, onSubmit func(Values)) bool {
	if ev != nil {
		ev.PreventDefault()
	}

	f.mu.Lock()
	f.submitted = true
	for name := range f.rules {
		f.touched[name] = true
	}
	p := f.recomputeLocked()
	snapshot := f.values.Clone()
	f.mu.Unlock()

	f.notify(p)
	if !p.valid {
		return false
	}
	if onSubmit != nil {
		onSubmit(snapshot)
	}
	return true
}

// -----------------------------------------------------------------------------
// Orchestration
// -----------------------------------------------------------------------------

// recomputeLocked derives the error map from the current state.  Caller holds
// f.mu.
func (f *Form) recomputeLocked() pass {
	all := f.values.Clone()
	errs := make(Errors)
	for name, rule := range f.rules {
		if !f.submitted && !f.touched[name] {
			continue
		}
		if msg, failed := Evaluate(rule, all[name], all); failed {
			errs[name] = msg
		}
	}
	f.errors = errs
	return pass{valid: len(errs) == 0, errs: errs.clone()}
}

func (f *Form) notify(p pass) {
	if f.observer != nil {
		f.observer(p.valid, p.errs)
	}
}

// -----------------------------------------------------------------------------
// Snapshots
// -----------------------------------------------------------------------------

// Values returns a copy of the current values.
func (f *Form) Values() Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values.Clone()
}

// Value returns the current value of one field.
func (f *Form) Value(name string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[name]
}

// Errors returns a copy of the current error map.
func (f *Form) Errors() Errors {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errors.clone()
}

// Touched returns a copy of the touched flags.
func (f *Form) Touched() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneTouched(f.touched)
}

// IsValid reports whether the last pass found no errors.
func (f *Form) IsValid() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errors) == 0
}

// IsSubmitted reports whether HandleSubmit has run since construction or the
// last Reset.
func (f *Form) IsSubmitted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted
}

// Phase reports the lifecycle state.
func (f *Form) Phase() Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.submitted:
		return Submitted
	case len(f.touched) > 0:
		return Editing
	default:
		return Pristine
	}
}

// State returns every snapshot in one consistent read.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return State{
		Values:    f.values.Clone(),
		Errors:    f.errors.clone(),
		Touched:   cloneTouched(f.touched),
		IsValid:   len(f.errors) == 0,
		Submitted: f.submitted,
	}
}

func cloneTouched(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// internal/form/submit.go
//
// Forms subsystem: server-side replay of a client form.
//
// Context
//   The browser runs the same engine locally, but nothing it reports is
//   trusted.  Replay rebuilds the form on the server from the wire request,
//   re-applies touched flags, and, when asked, runs the submit gate.  The
//   HTTP handlers and the CLI both go through here so the server's answer is
//   always the engine's answer.
//
//   An edit (Request.ID set) replays over the stored record, so fields the
//   client leaves out keep their stored values instead of falling back to
//   YAML defaults.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"

	"github.com/yanizio/storedash/internal/auth"
)

// Request is the wire form of a validate or submit call.
type Request struct {
	ID      string         `json:"id,omitempty"` // Record being edited; empty for create.
	Values  map[string]any `json:"values"`
	Touched []string       `json:"touched,omitempty"`
	Submit  bool           `json:"submit,omitempty"`
}

// Result is what Replay reports back.
type Result struct {
	State State
	// Accepted is true when the submit gate let the values through.
	Accepted bool
	// Clean is the backend payload, set only when Accepted.
	Clean map[string]any
}

// Replay evaluates req against fd as seen by flags.  record is the stored
// record when req.ID is set and nil for a create.  Values for fields the
// caller may not see are ignored.
func Replay(fd *FormDef, flags auth.Flags, req Request, record map[string]any) Result {
	editing := req.ID != ""
	if !editing {
		record = nil
	}
	initial := fd.InitialValues(flags, record)
	fields := make(map[string]FieldDef, len(initial))
	for _, f := range fd.Visible(flags) {
		fields[f.Name] = f
		if raw, ok := req.Values[f.Name]; ok {
			initial[f.Name] = f.Coerce(raw)
		}
	}

	f := New(initial, fd.Rules(flags, editing))
	for _, name := range req.Touched {
		if _, ok := fields[name]; ok {
			f.SetValue(name, initial[name])
		}
	}

	var res Result
	if req.Submit {
		res.Accepted = f.HandleSubmit(nil, func(v Values) {
			res.Clean = fd.Payload(v)
		})
	}
	res.State = f.State()
	return res
}

// ValidationError carries field errors from a rejected submit.
type ValidationError struct{ Errors Errors }

func (ve *ValidationError) Error() string { return "form validation failed" }

// IsValidationError reports whether err is, or wraps, a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

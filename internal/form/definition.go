// internal/form/definition.go
//
// Forms subsystem: YAML definition loader.
//
// Context
//   Every dashboard form (announcement, complaint, department, equipment,
//   user, temperature point, temperature log) is declared in a YAML file under
//   the forms directory.  The file names the backend resource the form
//   writes to, its fields with their constraints, and the post-submit
//   actions.  At start-up RegisterForms parses every “*.yaml” and stores the
//   resulting FormDef in an in-memory registry.  Screens, HTTP handlers, and
//   the CLI fetch definitions from this registry by ID.
//
// Workflow
//   •  Structs mirror the YAML schema: FormDef → FieldDef / ActionDef.
//   •  LoadFormDef parses a single YAML file and validates structural rules.
//      Patterns are compiled once here.
//   •  FormDef.Rules compiles the fields a caller may see into a RuleMap.
//      FormDef.InitialValues builds typed starting values from defaults and
//      an optional backend record.  NewFromDef combines both into a Form.
//   •  FormDef.Payload turns a validated snapshot into the JSON body the
//      backend expects.
//
// Style
//   Full sentences, two spaces after periods.  Helper comments use short
//   noun phrases.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yanizio/storedash/internal/auth"
)

// ErrUnknownForm is returned when a form ID is not registered.
var ErrUnknownForm = errors.New("unknown form")

// -----------------------------------------------------------------------------
// Data structures
// -----------------------------------------------------------------------------

// FormDef represents one form definition loaded from YAML.
type FormDef struct {
	ID       string      `yaml:"id" json:"id"`
	Title    string      `yaml:"title" json:"title"`
	Resource string      `yaml:"resource" json:"resource"` // Backend path, e.g. “/equipment”.
	Fields   []FieldDef  `yaml:"fields" json:"fields"`
	Actions  []ActionDef `yaml:"actions" json:"-"`
}

// FieldDef describes a single input.  Validation metadata lives inline so
// the server enforces the same rules the client renders.
type FieldDef struct {
	Name        string   `yaml:"name" json:"name"`
	Label       string   `yaml:"label" json:"label"`
	Type        string   `yaml:"type" json:"type"`
	Placeholder string   `yaml:"placeholder" json:"placeholder,omitempty"`
	Required    bool     `yaml:"required" json:"required,omitempty"`
	RequiredOn  string   `yaml:"required_on" json:"required_on,omitempty"` // "create" or "edit".
	MinLength   int      `yaml:"minlength" json:"minlength,omitempty"`     // 0 means unset.
	MaxLength   int      `yaml:"maxlength" json:"maxlength,omitempty"`     // 0 means unset.
	Pattern     string   `yaml:"pattern" json:"pattern,omitempty"`
	Min         *float64 `yaml:"min" json:"min,omitempty"`
	Max         *float64 `yaml:"max" json:"max,omitempty"`
	Options     []string `yaml:"options" json:"options,omitempty"`
	Match       string   `yaml:"match" json:"match,omitempty"`               // Must equal this field.
	LessThan    string   `yaml:"less_than" json:"less_than,omitempty"`       // Must be < this field.
	GreaterThan string   `yaml:"greater_than" json:"greater_than,omitempty"` // Must be > this field.
	Default     any      `yaml:"default" json:"default,omitempty"`
	Roles       []string `yaml:"roles" json:"roles,omitempty"` // Empty means every role.
	ErrorMsg    string   `yaml:"error" json:"error,omitempty"`

	re *regexp.Regexp
}

// ActionDef configures an action executed after a successful submit.
// Parameters are inline so new kinds need no schema change.
type ActionDef struct {
	Type   string         `yaml:"type"`    // store, command, audit, or webhook.
	Params map[string]any `yaml:",inline"` // Action-specific keys.
}

var fieldTypes = map[string]bool{
	"text": true, "textarea": true, "email": true, "password": true,
	"number": true, "date": true, "select": true, "checkbox": true,
}

var actionTypes = map[string]bool{"store": true, "command": true, "audit": true, "webhook": true}

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	datePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

// registry maps form ID → *FormDef.  Guarded by registryMu.
var (
	registryMu sync.RWMutex
	registry   = make(map[string]*FormDef)
)

// GetFormDef returns a registered FormDef.  The boolean is false when the ID
// is unknown.
func GetFormDef(id string) (*FormDef, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fd, ok := registry[id]
	return fd, ok
}

// FormIDs returns every registered ID in sorted order.
func FormIDs() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Register validates fd and adds it to the registry, replacing any form with
// the same ID.
func Register(fd *FormDef) error {
	if err := validateFormDef(fd, "<memory>"); err != nil {
		return err
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[fd.ID] = fd
	return nil
}

// -----------------------------------------------------------------------------
// Loader API
// -----------------------------------------------------------------------------

// LoadFormDef parses one YAML file, validates its structure, and returns a
// populated FormDef.  It never touches the registry.
func LoadFormDef(path string) (*FormDef, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form file %s: %w", path, err)
	}

	var fd FormDef
	if err := yaml.Unmarshal(raw, &fd); err != nil {
		return nil, fmt.Errorf("parse YAML %s: %w", path, err)
	}

	if err := validateFormDef(&fd, path); err != nil {
		return nil, err
	}
	return &fd, nil
}

// RegisterForms walks dir and registers every “*.yaml” below it.  A missing
// directory is not an error; a malformed file is.
func RegisterForms(dir string) error {
	if dir == "" {
		return errors.New("RegisterForms: no directory provided")
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !(strings.HasSuffix(d.Name(), ".yaml") || strings.HasSuffix(d.Name(), ".yml")) {
			return nil
		}

		fd, err := LoadFormDef(path)
		if err != nil {
			return err // fail fast so issues surface loudly.
		}
		registryMu.Lock()
		registry[fd.ID] = fd
		registryMu.Unlock()
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------
// Validation helpers
// -----------------------------------------------------------------------------

// validateFormDef enforces structural rules that YAML tags cannot express.
// It compiles field patterns in place.
func validateFormDef(fd *FormDef, path string) error {
	if fd.ID == "" {
		return fmt.Errorf("form definition %s: missing required 'id'", path)
	}
	if len(fd.Fields) == 0 {
		return fmt.Errorf("form definition %s: no fields", path)
	}

	names := make(map[string]*FieldDef, len(fd.Fields))
	for i := range fd.Fields {
		f := &fd.Fields[i]
		if err := validateField(f); err != nil {
			return fmt.Errorf("form definition %s: %w", path, err)
		}
		if _, dup := names[f.Name]; dup {
			return fmt.Errorf("form definition %s: duplicate field name %q", path, f.Name)
		}
		names[f.Name] = f
	}

	for _, f := range fd.Fields {
		for _, ref := range []string{f.Match, f.LessThan, f.GreaterThan} {
			if ref == "" {
				continue
			}
			if _, ok := names[ref]; !ok {
				return fmt.Errorf("form definition %s: field %q refers to unknown field %q", path, f.Name, ref)
			}
		}
	}

	for _, ac := range fd.Actions {
		if !actionTypes[ac.Type] {
			return fmt.Errorf("form definition %s: unsupported action %q", path, ac.Type)
		}
		if (ac.Type == "store" || ac.Type == "command") && fd.Resource == "" {
			return fmt.Errorf("form definition %s: %s action requires 'resource'", path, ac.Type)
		}
		if ac.Type == "command" {
			if p, _ := ac.Params["path"].(string); p == "" {
				return fmt.Errorf("form definition %s: command action requires 'path'", path)
			}
		}
	}
	return nil
}

func validateField(f *FieldDef) error {
	if f.Name == "" {
		return errors.New("field with empty name")
	}
	if f.Type == "" {
		f.Type = "text"
	}
	if !fieldTypes[f.Type] {
		return fmt.Errorf("field %q: unsupported type %q", f.Name, f.Type)
	}
	if f.Label == "" {
		f.Label = f.Name
	}
	switch f.RequiredOn {
	case "", "create", "edit":
	default:
		return fmt.Errorf("field %q: required_on must be create or edit, got %q", f.Name, f.RequiredOn)
	}
	if f.MinLength < 0 || f.MaxLength < 0 {
		return fmt.Errorf("field %q: negative length constraint", f.Name)
	}
	if f.MaxLength > 0 && f.MinLength > f.MaxLength {
		return fmt.Errorf("field %q: minlength > maxlength", f.Name)
	}
	if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
		return fmt.Errorf("field %q: min > max", f.Name)
	}
	if f.Pattern != "" {
		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			return fmt.Errorf("field %q: invalid pattern: %w", f.Name, err)
		}
		f.re = re
	}
	return nil
}

// -----------------------------------------------------------------------------
// Compilation into the engine
// -----------------------------------------------------------------------------

// Visible returns the fields the caller's flags may see.
func (fd *FormDef) Visible(flags auth.Flags) []FieldDef {
	out := make([]FieldDef, 0, len(fd.Fields))
	for _, f := range fd.Fields {
		if flags.Allows(f.Roles...) {
			out = append(out, f)
		}
	}
	return out
}

// ForFlags returns a shallow copy of fd restricted to visible fields.
func (fd *FormDef) ForFlags(flags auth.Flags) *FormDef {
	cp := *fd
	cp.Fields = fd.Visible(flags)
	return &cp
}

// HasAction reports whether fd runs an action of type typ.
func (fd *FormDef) HasAction(typ string) bool {
	for _, ac := range fd.Actions {
		if ac.Type == typ {
			return true
		}
	}
	return false
}

// Field looks up one field definition by name.
func (fd *FormDef) Field(name string) (FieldDef, bool) {
	for _, f := range fd.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// Rules compiles the visible fields into a RuleMap.  Every visible field
// gets an entry so number fields are always checked for validity.  editing
// selects which required_on fields are required.
//
// A match pair is checked from both ends: the confirming field compares
// itself to its target, and the target fails while the confirming field is
// still empty.  The evaluator skips every check of an empty optional value,
// so the confirming field alone cannot catch a blank confirmation.
func (fd *FormDef) Rules(flags auth.Flags, editing bool) RuleMap {
	visible := fd.Visible(flags)
	rules := make(RuleMap, len(visible))
	for _, f := range visible {
		rules[f.Name] = fd.rule(f, editing)
	}
	for _, f := range visible {
		target, ok := rules[f.Match]
		if f.Match == "" || !ok {
			continue
		}
		check := confirmedBy(f.Name, f.Label+" is required")
		if target.Custom != nil {
			check = AllOf(target.Custom, check)
		}
		target.Custom = check
		rules[f.Match] = target
	}
	return rules
}

// requiredFor reports whether f is required in the given mode.
func (f FieldDef) requiredFor(editing bool) bool {
	switch f.RequiredOn {
	case "create":
		return f.Required || !editing
	case "edit":
		return f.Required || editing
	}
	return f.Required
}

func (fd *FormDef) rule(f FieldDef, editing bool) Rule {
	r := Rule{
		Required:     f.requiredFor(editing),
		MinLength:    f.MinLength,
		MaxLength:    f.MaxLength,
		Pattern:      f.re,
		Min:          f.Min,
		Max:          f.Max,
		ErrorMessage: f.ErrorMsg,
	}

	var checks []CustomFunc
	switch f.Type {
	case "email":
		if r.Pattern == nil {
			r.Pattern = emailPattern
		}
	case "date":
		if r.Pattern == nil {
			r.Pattern = datePattern
		}
		checks = append(checks, Predicate(validDate))
	case "select":
		if len(f.Options) > 0 {
			checks = append(checks, Predicate(oneOf(f.Options)))
		}
	}

	if f.Match != "" {
		other, _ := fd.Field(f.Match)
		checks = append(checks, matches(f.Match, f.msg("Must match "+other.Label)))
	}
	if f.LessThan != "" {
		other, _ := fd.Field(f.LessThan)
		checks = append(checks, compares(f.LessThan, -1, f.msg("Must be less than "+other.Label)))
	}
	if f.GreaterThan != "" {
		other, _ := fd.Field(f.GreaterThan)
		checks = append(checks, compares(f.GreaterThan, 1, f.msg("Must be greater than "+other.Label)))
	}

	switch len(checks) {
	case 0:
	case 1:
		r.Custom = checks[0]
	default:
		r.Custom = AllOf(checks...)
	}
	return r
}

// msg prefers the field's configured error text.
func (f FieldDef) msg(def string) string {
	if f.ErrorMsg != "" {
		return f.ErrorMsg
	}
	return def
}

// custom check builders

func validDate(v any, _ Values) bool {
	s, ok := v.(string)
	if !ok {
		return true
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

func oneOf(opts []string) func(any, Values) bool {
	return func(v any, _ Values) bool {
		s, ok := v.(string)
		if !ok {
			return true
		}
		for _, o := range opts {
			if o == s {
				return true
			}
		}
		return false
	}
}

func matches(other, msg string) CustomFunc {
	return func(v any, all Values) CustomResult {
		if v == all[other] {
			return Pass()
		}
		return Fail(msg)
	}
}

// confirmedBy fails a non-empty value while the confirming field is empty.
func confirmedBy(confirm, msg string) CustomFunc {
	return func(_ any, all Values) CustomResult {
		if isEmpty(all[confirm]) {
			return Fail(msg)
		}
		return Pass()
	}
}

// compares requires sign(value - other) == want.  It passes while either
// side is not a valid number; the number check reports those.
func compares(other string, want int, msg string) CustomFunc {
	return func(v any, all Values) CustomResult {
		a, aok, _ := numeric(v)
		b, bok, _ := numeric(all[other])
		if !aok || !bok {
			return Pass()
		}
		if (want < 0 && a < b) || (want > 0 && a > b) {
			return Pass()
		}
		return Fail(msg)
	}
}

// -----------------------------------------------------------------------------
// Values
// -----------------------------------------------------------------------------

// InitialValues builds typed starting values for the visible fields.  A
// record from the backend (edit mode) wins over YAML defaults.  Passwords are
// never prefilled.
func (fd *FormDef) InitialValues(flags auth.Flags, record map[string]any) Values {
	vals := make(Values)
	for _, f := range fd.Visible(flags) {
		raw, ok := record[f.Name]
		if !ok || raw == nil {
			raw = f.Default
		}
		if f.Type == "password" {
			raw = nil
		}
		vals[f.Name] = f.Coerce(raw)
	}
	return vals
}

// Coerce converts a loosely typed value (YAML default, JSON body, backend
// record) into the kind the engine stores for this field's type.
func (f FieldDef) Coerce(raw any) any {
	switch f.Type {
	case "checkbox":
		switch x := raw.(type) {
		case bool:
			return x
		case string:
			b, _ := strconv.ParseBool(x)
			return b || x == "on"
		case nil:
			return false
		default:
			n, valid, ok := numeric(x)
			return ok && valid && n != 0
		}

	case "number":
		switch x := raw.(type) {
		case nil:
			return ""
		case Number:
			return x
		case string:
			if x == "" {
				return ""
			}
			return ParseNumber(x)
		default:
			if n, valid, ok := numeric(x); ok {
				return Number{Value: n, Valid: valid}
			}
			return ParseNumber(fmt.Sprint(x))
		}

	case "date":
		switch x := raw.(type) {
		case nil:
			return ""
		case time.Time:
			return x.Format("2006-01-02")
		case string:
			if len(x) > 10 && x[4] == '-' && (x[10] == 'T' || x[10] == ' ') {
				return x[:10] // backend datetimes
			}
			return x
		default:
			return fmt.Sprint(x)
		}

	default:
		switch x := raw.(type) {
		case nil:
			return ""
		case string:
			return x
		case float64:
			return formatFloat(x)
		default:
			return fmt.Sprint(x)
		}
	}
}

// Payload converts a validated snapshot into the backend request body.
// Empty inputs become null, numbers become JSON numbers, and an empty
// password is omitted so edits keep the existing one.  Confirmation fields
// (those with match) are never sent.
func (fd *FormDef) Payload(vals Values) map[string]any {
	out := make(map[string]any, len(vals))
	for _, f := range fd.Fields {
		v, ok := vals[f.Name]
		if !ok || f.Match != "" {
			continue
		}
		switch x := v.(type) {
		case Number:
			if x.Valid {
				out[f.Name] = x.Value
			} else {
				out[f.Name] = nil
			}
		case string:
			switch {
			case x != "":
				out[f.Name] = x
			case f.Type == "password":
			default:
				out[f.Name] = nil
			}
		default:
			out[f.Name] = x
		}
	}
	return out
}

// NewFromDef builds a Form for fd as seen by flags, seeded from record.  A
// non-nil record means edit mode.
func NewFromDef(fd *FormDef, flags auth.Flags, record map[string]any, opts ...Option) *Form {
	return New(fd.InitialValues(flags, record), fd.Rules(flags, record != nil), opts...)
}

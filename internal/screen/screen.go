// internal/screen/screen.go
//
// Dashboard screen state.
//
// Context
// -------
// A Screen is the server-side model of one dashboard page for one caller:
// the loaded records, the current search, filters, and sort, and at most one
// open create/edit form.  It is what the HTTP handlers and the CLI drive, and
// it is where the form engine meets the backend.
//
// Workflow
// --------
//  1. s, err := screen.New(def, api, principal, opts...)
//  2. s.Load(ctx)                 // fetch, then Enrich
//  3. s.Search = "fryer"; rows := s.Visible()
//  4. f, _ := s.OpenEdit(ctx, "7") // drive f with HandleChange
//  5. rec, err := s.Save(ctx)      // submit gate, actions, local update
//
// Notes
// -----
// • A Screen is not safe for concurrent use.  Its Form is.
// • Save leaves the form open when validation or the backend fails, so the
//   caller can show errors and retry.
package screen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/storedash/internal/apiclient"
	"github.com/yanizio/storedash/internal/auth"
	"github.com/yanizio/storedash/internal/form"
)

var (
	ErrForbidden = errors.New("screen: forbidden")
	ErrNotFound  = errors.New("screen: record not found")
	ErrNoForm    = errors.New("screen: no form open")
	ErrNoCommand = errors.New("screen: unknown command")
)

// Backend is the REST surface a screen needs.  *apiclient.Client satisfies
// it.
type Backend interface {
	List(ctx context.Context, resource string, q url.Values) ([]apiclient.Record, error)
	Get(ctx context.Context, resource, id string) (apiclient.Record, error)
	Create(ctx context.Context, resource string, body any) (apiclient.Record, error)
	Update(ctx context.Context, resource, id string, body any) (apiclient.Record, error)
	Delete(ctx context.Context, resource, id string) error
	Command(ctx context.Context, method, resource, id, name string, body any) (apiclient.Record, error)
}

// Enricher adds derived columns to freshly loaded records in place.
type Enricher func(ctx context.Context, api Backend, items []apiclient.Record) error

// Option configures a Screen.
type Option func(*Screen)

// WithDB supplies the database used by audit actions.
func WithDB(db *sqlx.DB) Option { return func(s *Screen) { s.db = db } }

// WithHooks supplies the HTTP client used by webhook actions.
func WithHooks(c *retryablehttp.Client) Option { return func(s *Screen) { s.hooks = c } }

// WithLogger sets the logger.  Defaults to zap.L().
func WithLogger(l *zap.Logger) Option { return func(s *Screen) { s.log = l } }

// WithFormOptions passes opts to every form the screen opens.
func WithFormOptions(opts ...form.Option) Option {
	return func(s *Screen) { s.formOpts = append(s.formOpts, opts...) }
}

// Screen holds one caller's view of one dashboard page.
type Screen struct {
	Items   []apiclient.Record
	Search  string
	Filters map[string]string
	Sort    Sort

	def       Def
	fd        *form.FormDef
	api       Backend
	principal auth.Principal
	db        *sqlx.DB
	hooks     *retryablehttp.Client
	log       *zap.Logger
	formOpts  []form.Option

	form      *form.Form
	editingID string
}

// New returns a Screen for p.  It fails with ErrForbidden when p may not view
// the screen and with form.ErrUnknownForm when def's form is not registered.
func New(def Def, api Backend, p auth.Principal, opts ...Option) (*Screen, error) {
	if !p.Flags().Allows(def.ViewRoles...) {
		return nil, ErrForbidden
	}
	fd, ok := form.GetFormDef(def.FormID)
	if !ok {
		return nil, fmt.Errorf("screen %s: %w %q", def.Name, form.ErrUnknownForm, def.FormID)
	}

	s := &Screen{
		Filters:   make(map[string]string),
		Sort:      def.DefaultSort,
		def:       def,
		fd:        fd,
		api:       api,
		principal: p,
		log:       zap.L(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Def returns the screen's definition.
func (s *Screen) Def() Def { return s.def }

// FormDef returns the definition as the caller sees it.
func (s *Screen) FormDef() *form.FormDef { return s.fd.ForFlags(s.principal.Flags()) }

// CanWrite reports whether the caller may create or edit.
func (s *Screen) CanWrite() bool { return s.principal.Flags().Allows(s.def.WriteRoles...) }

// CanDelete reports whether the caller may delete.
func (s *Screen) CanDelete() bool {
	return len(s.def.DeleteRoles) > 0 && s.principal.Flags().Allows(s.def.DeleteRoles...)
}

// -----------------------------------------------------------------------------
// List state
// -----------------------------------------------------------------------------

// Load replaces Items with every page of the backend collection and runs the
// enricher.  Enricher failures are logged; the plain records are still shown.
func (s *Screen) Load(ctx context.Context) error {
	recs, err := listAll(ctx, s.api, s.def.Resource, s.def.Query, s.def.PageSize, s.log)
	if err != nil {
		if apiclient.IsForbidden(err) {
			return ErrForbidden
		}
		return fmt.Errorf("load %s: %w", s.def.Name, err)
	}

	items := make([]apiclient.Record, len(recs))
	for i, r := range recs {
		items[i] = cloneRecord(r)
	}
	if s.def.Enrich != nil {
		if err := s.def.Enrich(ctx, s.api, items); err != nil {
			s.log.Warn("screen enrich failed", zap.String("screen", s.def.Name), zap.Error(err))
		}
	}
	s.Items = items
	return nil
}

// Visible returns the records that pass Filters and Search, ordered by Sort.
// Items is not modified.
func (s *Screen) Visible() []apiclient.Record {
	needle := strings.ToLower(strings.TrimSpace(s.Search))
	out := make([]apiclient.Record, 0, len(s.Items))
	for _, r := range s.Items {
		if s.matchesFilters(r) && s.matchesSearch(r, needle) {
			out = append(out, r)
		}
	}

	if s.Sort.Field != "" {
		field, desc := s.Sort.Field, s.Sort.Desc
		sort.SliceStable(out, func(i, j int) bool {
			return less(out[i][field], out[j][field], desc)
		})
	}
	return out
}

func (s *Screen) matchesFilters(r apiclient.Record) bool {
	for k, want := range s.Filters {
		if want == "" {
			continue
		}
		if display(r[k]) != want {
			return false
		}
	}
	return true
}

func (s *Screen) matchesSearch(r apiclient.Record, needle string) bool {
	if needle == "" {
		return true
	}
	for _, f := range s.def.SearchFields {
		if strings.Contains(strings.ToLower(display(r[f])), needle) {
			return true
		}
	}
	return false
}

// less orders a before b.  Nil sorts last in both directions.  Numbers
// compare numerically, bools false first, everything else as
// case-insensitive text.
func less(a, b any, desc bool) bool {
	if a == nil || b == nil {
		return a != nil && b == nil
	}
	c := compare(a, b)
	if desc {
		return c > 0
	}
	return c < 0
}

func compare(a, b any) int {
	switch x := a.(type) {
	case float64:
		if y, ok := b.(float64); ok {
			return cmpFloat(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			return cmpBool(x, y)
		}
	}
	return strings.Compare(strings.ToLower(display(a)), strings.ToLower(display(b)))
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

// display renders a JSON value the way filters and search see it.
func display(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// -----------------------------------------------------------------------------
// Form lifecycle
// -----------------------------------------------------------------------------

// OpenCreate opens an empty form seeded with the YAML defaults.
func (s *Screen) OpenCreate() (*form.Form, error) {
	if !s.CanWrite() {
		return nil, ErrForbidden
	}
	s.form = form.NewFromDef(s.fd, s.principal.Flags(), nil, s.formOpts...)
	s.editingID = ""
	return s.form, nil
}

// OpenEdit opens a form seeded from record id.  The loaded list is searched
// first; otherwise the record is fetched.
func (s *Screen) OpenEdit(ctx context.Context, id string) (*form.Form, error) {
	if !s.CanWrite() {
		return nil, ErrForbidden
	}
	rec, ok := s.find(id)
	if !ok {
		var err error
		rec, err = s.api.Get(ctx, s.def.Resource, id)
		switch {
		case apiclient.IsNotFound(err):
			return nil, ErrNotFound
		case err != nil:
			return nil, fmt.Errorf("open %s/%s: %w", s.def.Name, id, err)
		}
	}
	s.form = form.NewFromDef(s.fd, s.principal.Flags(), rec, s.formOpts...)
	s.editingID = id
	return s.form, nil
}

// Form returns the open form, or nil.
func (s *Screen) Form() *form.Form { return s.form }

// EditingID returns the id of the record being edited, or "" in create mode.
func (s *Screen) EditingID() string { return s.editingID }

// Close discards the open form.
func (s *Screen) Close() {
	s.form = nil
	s.editingID = ""
}

// Save runs the submit gate on the open form.  When it passes, the form's
// actions run and the stored record replaces (or joins) the local list, and
// the form closes.  A failed gate returns a *form.ValidationError.
func (s *Screen) Save(ctx context.Context) (apiclient.Record, error) {
	if s.form == nil {
		return nil, ErrNoForm
	}

	var clean map[string]any
	if !s.form.HandleSubmit(nil, func(v form.Values) { clean = s.fd.Payload(v) }) {
		return nil, &form.ValidationError{Errors: s.form.Errors()}
	}

	rec, err := form.ExecuteActions(s.fd, clean, form.ActionCtx{
		Ctx:      ctx,
		Store:    s.api,
		DB:       s.db,
		Hooks:    s.hooks,
		RecordID: s.editingID,
		Log:      s.log,
	})
	if err != nil {
		if apiclient.IsForbidden(err) {
			return nil, ErrForbidden
		}
		return nil, err
	}

	if rec != nil {
		rec = cloneRecord(rec)
		if s.def.Enrich != nil {
			if err := s.def.Enrich(ctx, s.api, []apiclient.Record{rec}); err != nil {
				s.log.Warn("screen enrich failed", zap.String("screen", s.def.Name), zap.Error(err))
			}
		}
		s.upsert(rec)
	}
	s.Close()
	return rec, nil
}

// Delete removes record id through the backend and from Items.  On a
// SoftDelete screen the record stays listed with its flag cleared.
func (s *Screen) Delete(ctx context.Context, id string) error {
	if !s.CanDelete() {
		return ErrForbidden
	}
	err := s.api.Delete(ctx, s.def.Resource, id)
	switch {
	case apiclient.IsNotFound(err):
		s.remove(id)
		return ErrNotFound
	case apiclient.IsForbidden(err):
		return ErrForbidden
	case err != nil:
		return fmt.Errorf("delete %s/%s: %w", s.def.Name, id, err)
	}
	if s.def.SoftDelete != "" {
		if rec, ok := s.find(id); ok {
			rec[s.def.SoftDelete] = false
			return nil
		}
	}
	s.remove(id)
	return nil
}

// Commands returns the names of the commands the caller may run, sorted.
func (s *Screen) Commands() []string {
	out := make([]string, 0, len(s.def.Commands))
	for name, c := range s.def.Commands {
		if s.principal.Flags().Allows(c.Roles...) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Run sends command name for record id.  The record is then refetched and
// replaces the local copy; a command that Removes drops it and returns nil.
func (s *Screen) Run(ctx context.Context, id, name string) (apiclient.Record, error) {
	c, ok := s.def.Commands[name]
	if !ok {
		return nil, fmt.Errorf("%w %q on %s", ErrNoCommand, name, s.def.Name)
	}
	if !s.principal.Flags().Allows(c.Roles...) {
		return nil, ErrForbidden
	}
	method := c.Method
	if method == "" {
		method = http.MethodPatch
	}

	_, err := s.api.Command(ctx, method, s.def.Resource, id, c.Path, nil)
	switch {
	case apiclient.IsNotFound(err):
		s.remove(id)
		return nil, ErrNotFound
	case apiclient.IsForbidden(err):
		return nil, ErrForbidden
	case err != nil:
		return nil, fmt.Errorf("%s %s/%s: %w", name, s.def.Name, id, err)
	}
	s.log.Info("screen command",
		zap.String("screen", s.def.Name),
		zap.String("command", name),
		zap.String("id", id),
	)
	if c.Removes {
		s.remove(id)
		return nil, nil
	}

	rec, err := s.api.Get(ctx, s.def.Resource, id)
	if err != nil {
		return nil, fmt.Errorf("refresh %s/%s: %w", s.def.Name, id, err)
	}
	rec = cloneRecord(rec)
	if s.def.Enrich != nil {
		if err := s.def.Enrich(ctx, s.api, []apiclient.Record{rec}); err != nil {
			s.log.Warn("screen enrich failed", zap.String("screen", s.def.Name), zap.Error(err))
		}
	}
	s.upsert(rec)
	return rec, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (s *Screen) find(id string) (apiclient.Record, bool) {
	for _, r := range s.Items {
		if apiclient.RecordID(r) == id {
			return r, true
		}
	}
	return nil, false
}

func (s *Screen) upsert(rec apiclient.Record) {
	id := apiclient.RecordID(rec)
	for i, r := range s.Items {
		if id != "" && apiclient.RecordID(r) == id {
			s.Items[i] = rec
			return
		}
	}
	s.Items = append(s.Items, rec)
}

func (s *Screen) remove(id string) {
	out := s.Items[:0]
	for _, r := range s.Items {
		if apiclient.RecordID(r) != id {
			out = append(out, r)
		}
	}
	s.Items = out
}

func cloneRecord(r apiclient.Record) apiclient.Record {
	out := make(apiclient.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

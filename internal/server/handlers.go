// internal/server/handlers.go
//
// JSON handlers for forms and screens.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yanizio/storedash/internal/apiclient"
	"github.com/yanizio/storedash/internal/auth"
	"github.com/yanizio/storedash/internal/form"
	"github.com/yanizio/storedash/internal/metrics"
	"github.com/yanizio/storedash/internal/screen"
)

const maxBody = 1 << 20

// -----------------------------------------------------------------------------
// Forms
// -----------------------------------------------------------------------------

type formSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Resource string `json:"resource"`
}

func (h *handlers) listForms(w http.ResponseWriter, _ *http.Request) {
	out := make([]formSummary, 0)
	for _, id := range form.FormIDs() {
		fd, _ := form.GetFormDef(id)
		out = append(out, formSummary{ID: fd.ID, Title: fd.Title, Resource: fd.Resource})
	}
	writeJSON(w, http.StatusOK, out)
}

type formResponse struct {
	Form     *form.FormDef `json:"form"`
	State    form.State    `json:"state"`
	RecordID string        `json:"record_id,omitempty"`
}

// getForm returns the definition as the caller sees it plus the initial
// state.  With ?record=<id> the state is seeded from that record.
func (h *handlers) getForm(w http.ResponseWriter, r *http.Request) {
	fd, p, ok := h.formDef(w, r)
	if !ok {
		return
	}
	flags := p.Flags()

	recordID := r.URL.Query().Get("record")
	if recordID == "" {
		writeJSON(w, http.StatusOK, formResponse{
			Form:  fd.ForFlags(flags),
			State: form.NewFromDef(fd, flags, nil).State(),
		})
		return
	}

	s, ok := h.screenFor(w, fd.ID, p)
	if !ok {
		return
	}
	f, err := s.OpenEdit(r.Context(), recordID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, formResponse{Form: s.FormDef(), State: f.State(), RecordID: recordID})
}

func (h *handlers) validateForm(w http.ResponseWriter, r *http.Request) {
	fd, p, ok := h.formDef(w, r)
	if !ok {
		return
	}
	var req form.Request
	if !decode(w, r, &req) {
		return
	}
	req.Submit = false

	record, err := h.stored(r, fd, req.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	res := form.Replay(fd, p.Flags(), req, record)
	metrics.FormValidations.WithLabelValues(fd.ID).Inc()
	writeJSON(w, http.StatusOK, map[string]any{"state": res.State})
}

// submitForm runs the submit gate and, when it passes, the form's actions.
// A rejected gate is 422 with the engine state.
func (h *handlers) submitForm(w http.ResponseWriter, r *http.Request) {
	fd, p, ok := h.formDef(w, r)
	if !ok {
		return
	}
	var req form.Request
	if !decode(w, r, &req) {
		return
	}

	if def, found := screen.ForForm(fd.ID); found && !p.Flags().Allows(def.WriteRoles...) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	record, err := h.stored(r, fd, req.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	req.Submit = true
	res := form.Replay(fd, p.Flags(), req, record)
	if !res.Accepted {
		metrics.FormSubmissions.WithLabelValues(fd.ID, "rejected").Inc()
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": "validation failed",
			"state": res.State,
		})
		return
	}

	rec, err := form.ExecuteActions(fd, res.Clean, form.ActionCtx{
		Ctx:      r.Context(),
		Store:    h.API,
		DB:       h.DB,
		Hooks:    h.Hooks,
		RecordID: req.ID,
		Log:      h.Log,
	})
	if err != nil {
		metrics.FormSubmissions.WithLabelValues(fd.ID, "failed").Inc()
		h.fail(w, err)
		return
	}
	metrics.FormSubmissions.WithLabelValues(fd.ID, "accepted").Inc()
	writeJSON(w, http.StatusOK, map[string]any{"record": rec, "state": res.State})
}

// stored fetches the record an edit replays over, so fields the client
// leaves out keep their stored values.  Forms without a store action never
// write the record back and skip the fetch.
func (h *handlers) stored(r *http.Request, fd *form.FormDef, id string) (map[string]any, error) {
	if id == "" || !fd.HasAction("store") {
		return nil, nil
	}
	rec, err := h.API.Get(r.Context(), fd.Resource, id)
	if apiclient.IsNotFound(err) {
		return nil, screen.ErrNotFound
	}
	return rec, err
}

// formDef resolves {id} and the caller.
func (h *handlers) formDef(w http.ResponseWriter, r *http.Request) (*form.FormDef, auth.Principal, bool) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil, p, false
	}
	fd, ok := form.GetFormDef(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown form")
		return nil, p, false
	}
	return fd, p, true
}

// -----------------------------------------------------------------------------
// Screens
// -----------------------------------------------------------------------------

type screenSummary struct {
	Name      string `json:"name"`
	Title     string `json:"title"`
	FormID    string `json:"form_id"`
	CanWrite  bool   `json:"can_write"`
	CanDelete bool   `json:"can_delete"`
}

func (h *handlers) listScreens(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	flags := p.Flags()
	out := make([]screenSummary, 0)
	for _, d := range screen.All() {
		if !flags.Allows(d.ViewRoles...) {
			continue
		}
		out = append(out, screenSummary{
			Name:      d.Name,
			Title:     d.Title,
			FormID:    d.FormID,
			CanWrite:  flags.Allows(d.WriteRoles...),
			CanDelete: len(d.DeleteRoles) > 0 && flags.Allows(d.DeleteRoles...),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type screenResponse struct {
	Name      string             `json:"name"`
	FormID    string             `json:"form_id"`
	Items     []apiclient.Record `json:"items"`
	Total     int                `json:"total"`
	Sort      screen.Sort        `json:"sort"`
	CanWrite  bool               `json:"can_write"`
	CanDelete bool               `json:"can_delete"`
	Commands  []string           `json:"commands,omitempty"`
}

// reserved query keys; every other key is a filter.
var reserved = map[string]bool{"q": true, "sort": true, "desc": true}

func (h *handlers) getScreen(w http.ResponseWriter, r *http.Request) {
	s, ok := h.screenByName(w, r)
	if !ok {
		return
	}
	if err := s.Load(r.Context()); err != nil {
		h.fail(w, err)
		return
	}

	q := r.URL.Query()
	s.Search = q.Get("q")
	if f := q.Get("sort"); f != "" {
		desc, _ := strconv.ParseBool(q.Get("desc"))
		s.Sort = screen.Sort{Field: f, Desc: desc}
	}
	for k, v := range q {
		if !reserved[k] && len(v) > 0 {
			s.Filters[k] = v[0]
		}
	}

	items := s.Visible()
	writeJSON(w, http.StatusOK, screenResponse{
		Name:      s.Def().Name,
		FormID:    s.Def().FormID,
		Items:     items,
		Total:     len(s.Items),
		Sort:      s.Sort,
		CanWrite:  s.CanWrite(),
		CanDelete: s.CanDelete(),
		Commands:  s.Commands(),
	})
}

func (h *handlers) runCommand(w http.ResponseWriter, r *http.Request) {
	s, ok := h.screenByName(w, r)
	if !ok {
		return
	}
	rec, err := s.Run(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "command"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if rec == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) deleteRecord(w http.ResponseWriter, r *http.Request) {
	s, ok := h.screenByName(w, r)
	if !ok {
		return
	}
	if err := s.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) screenByName(w http.ResponseWriter, r *http.Request) (*screen.Screen, bool) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	def, ok := screen.Lookup(chi.URLParam(r, "name"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown screen")
		return nil, false
	}
	return h.newScreen(w, def, p)
}

func (h *handlers) screenFor(w http.ResponseWriter, formID string, p auth.Principal) (*screen.Screen, bool) {
	def, ok := screen.ForForm(formID)
	if !ok {
		writeError(w, http.StatusNotFound, "form has no screen")
		return nil, false
	}
	return h.newScreen(w, def, p)
}

func (h *handlers) newScreen(w http.ResponseWriter, def screen.Def, p auth.Principal) (*screen.Screen, bool) {
	s, err := screen.New(def, h.API, p,
		screen.WithDB(h.DB),
		screen.WithHooks(h.Hooks),
		screen.WithLogger(h.Log),
	)
	if err != nil {
		h.fail(w, err)
		return nil, false
	}
	return s, true
}

// -----------------------------------------------------------------------------
// Responses
// -----------------------------------------------------------------------------

// fail maps domain and backend errors to HTTP statuses.  Backend 4xx
// answers pass through with their detail; anything else is a 502 or 500.
func (h *handlers) fail(w http.ResponseWriter, err error) {
	var apiErr *apiclient.Error
	switch {
	case errors.Is(err, screen.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, screen.ErrNotFound):
		writeError(w, http.StatusNotFound, "record not found")
	case errors.Is(err, screen.ErrNoCommand):
		writeError(w, http.StatusNotFound, "unknown command")
	case errors.Is(err, form.ErrUnknownForm):
		writeError(w, http.StatusNotFound, "unknown form")
	case errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500:
		writeError(w, apiErr.Status, apiErr.Detail)
	case errors.As(err, &apiErr):
		h.Log.Error("backend error", zap.Error(err))
		writeError(w, http.StatusBadGateway, "backend unavailable")
	default:
		h.Log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

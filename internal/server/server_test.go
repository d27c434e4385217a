package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yanizio/storedash/internal/apiclient"
	"github.com/yanizio/storedash/internal/auth"
	"github.com/yanizio/storedash/internal/form"
)

func TestMain(m *testing.M) {
	if err := form.RegisterForms(filepath.Join("..", "..", "forms")); err != nil {
		panic(err)
	}
	m.Run()
}

type backend struct {
	mu      sync.Mutex
	records map[string][]apiclient.Record
	created []map[string]any
	updated  map[string]map[string]any
	commands []string
	bodies   []any
	failure  error
}

func (b *backend) List(_ context.Context, resource string, _ url.Values) ([]apiclient.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.records[resource], nil
}

func (b *backend) Get(_ context.Context, resource, id string) (apiclient.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.records[resource] {
		if apiclient.RecordID(r) == id {
			return r, nil
		}
	}
	return nil, &apiclient.Error{Status: http.StatusNotFound, Detail: "Not found"}
}

func (b *backend) Create(_ context.Context, _ string, body any) (apiclient.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failure != nil {
		return nil, b.failure
	}
	m := body.(map[string]any)
	b.created = append(b.created, m)
	out := apiclient.Record{"id": float64(50)}
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}

func (b *backend) Update(_ context.Context, _ string, id string, body any) (apiclient.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.updated == nil {
		b.updated = make(map[string]map[string]any)
	}
	b.updated[id] = body.(map[string]any)
	out := apiclient.Record{"id": id}
	for k, v := range body.(map[string]any) {
		out[k] = v
	}
	return out, nil
}

func (b *backend) Delete(_ context.Context, _ string, id string) error {
	if id == "404" {
		return &apiclient.Error{Status: http.StatusNotFound, Detail: "Not found"}
	}
	return nil
}

func (b *backend) Command(_ context.Context, method, resource, id, name string, body any) (apiclient.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id == "404" {
		return nil, &apiclient.Error{Status: http.StatusNotFound, Detail: "User not found"}
	}
	b.commands = append(b.commands, method+" "+strings.TrimSuffix(resource, "/")+"/"+id+"/"+name)
	b.bodies = append(b.bodies, body)
	for _, r := range b.records[resource] {
		if apiclient.RecordID(r) == id && name == "activate" {
			r["is_active"] = true
		}
	}
	return apiclient.Record{"message": "ok"}, nil
}

func newBackend() *backend {
	return &backend{records: map[string][]apiclient.Record{
		"/equipment/": {
			{"id": float64(1), "equipment_name": "Fryer", "equipment_type": "cooking", "status": "operational"},
			{"id": float64(2), "equipment_name": "Slicer", "equipment_type": "prep", "status": "broken"},
			{"id": float64(3), "equipment_name": "Fry station hood", "equipment_type": "cooking", "status": "maintenance"},
		},
		"/users/": {
			{"id": float64(2), "username": "bob", "role": "staff", "is_active": false},
		},
	}}
}

// roleHeader stands in for acl.Identify: X-Role names the caller's role.
func roleHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if role := r.Header.Get("X-Role"); role != "" {
			p := auth.Principal{UserID: 9, Username: role + "-user", Role: role}
			r = r.WithContext(auth.WithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

func newHandler(b *backend) http.Handler {
	return Routes(Deps{API: b, Log: zap.NewNop(), Identify: roleHeader})
}

func do(t *testing.T, h http.Handler, method, path, role, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if role != "" {
		req.Header.Set("X-Role", role)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealthz(t *testing.T) {
	rec, body := do(t, newHandler(newBackend()), http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestMetricsEndpoint(t *testing.T) {
	rec, _ := do(t, newHandler(newBackend()), http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAPIRequiresPrincipal(t *testing.T) {
	rec, body := do(t, newHandler(newBackend()), http.MethodGet, "/api/forms/equipment", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", body["error"])
}

func TestListForms(t *testing.T) {
	h := newHandler(newBackend())
	req := httptest.NewRequest(http.MethodGet, "/api/forms", nil)
	req.Header.Set("X-Role", "staff")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var forms []formSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &forms))
	ids := make([]string, len(forms))
	for i, f := range forms {
		ids[i] = f.ID
	}
	assert.Contains(t, ids, "equipment")
	assert.Contains(t, ids, "temperature_logs")
}

func fieldNames(t *testing.T, body map[string]any) []string {
	t.Helper()
	fd := body["form"].(map[string]any)
	var out []string
	for _, f := range fd["fields"].([]any) {
		out = append(out, f.(map[string]any)["name"].(string))
	}
	return out
}

func TestGetFormFiltersFieldsByRole(t *testing.T) {
	h := newHandler(newBackend())

	rec, body := do(t, h, http.MethodGet, "/api/forms/users", "manager", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, fieldNames(t, body), "role")
	state := body["state"].(map[string]any)
	assert.NotContains(t, state["values"], "role")

	_, body = do(t, h, http.MethodGet, "/api/forms/users", "admin", "")
	assert.Contains(t, fieldNames(t, body), "role")
	state = body["state"].(map[string]any)
	assert.Equal(t, "staff", state["values"].(map[string]any)["role"])
	assert.Equal(t, true, state["isValid"])

	rec, _ = do(t, h, http.MethodGet, "/api/forms/nope", "admin", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetFormForRecord(t *testing.T) {
	h := newHandler(newBackend())

	rec, body := do(t, h, http.MethodGet, "/api/forms/equipment?record=2", "staff", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", body["record_id"])
	values := body["state"].(map[string]any)["values"].(map[string]any)
	assert.Equal(t, "Slicer", values["equipment_name"])

	rec, _ = do(t, h, http.MethodGet, "/api/forms/equipment?record=77", "staff", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidateGatesUntouchedFields(t *testing.T) {
	h := newHandler(newBackend())

	rec, body := do(t, h, http.MethodPost, "/api/forms/equipment/validate", "staff",
		`{"values":{"equipment_name":""},"touched":["equipment_name"],"submit":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	state := body["state"].(map[string]any)
	errs := state["errors"].(map[string]any)
	assert.Equal(t, "This field is required", errs["equipment_name"])
	assert.NotContains(t, errs, "equipment_type", "untouched before submit")
	assert.Equal(t, false, state["submitted"], "validate never submits")
}

func TestValidateRejectsBadJSON(t *testing.T) {
	rec, body := do(t, newHandler(newBackend()), http.MethodPost, "/api/forms/equipment/validate", "staff", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid JSON body", body["error"])
}

func TestSubmitRejected(t *testing.T) {
	b := newBackend()
	rec, body := do(t, newHandler(b), http.MethodPost, "/api/forms/equipment/submit", "staff",
		`{"values":{"equipment_name":"Oven"}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	state := body["state"].(map[string]any)
	errs := state["errors"].(map[string]any)
	assert.Equal(t, "This field is required", errs["equipment_type"])
	assert.NotContains(t, errs, "equipment_name")
	assert.Equal(t, true, state["submitted"])
	assert.Empty(t, b.created)
}

func TestSubmitAccepted(t *testing.T) {
	b := newBackend()
	rec, body := do(t, newHandler(b), http.MethodPost, "/api/forms/equipment/submit", "staff",
		`{"values":{"equipment_name":"Oven","equipment_type":"cooking","location":""}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	record := body["record"].(map[string]any)
	assert.Equal(t, float64(50), record["id"])
	require.Len(t, b.created, 1)
	assert.Equal(t, "Oven", b.created[0]["equipment_name"])
	assert.Equal(t, "operational", b.created[0]["status"])
	assert.Nil(t, b.created[0]["location"])
}

func TestSubmitEditKeepsStoredFields(t *testing.T) {
	b := newBackend()
	rec, _ := do(t, newHandler(b), http.MethodPost, "/api/forms/equipment/submit", "staff",
		`{"id":"2","values":{"equipment_name":"Meat slicer"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sent := b.updated["2"]
	require.NotNil(t, sent)
	assert.Equal(t, "Meat slicer", sent["equipment_name"])
	assert.Equal(t, "prep", sent["equipment_type"])
	assert.Equal(t, "broken", sent["status"], "not reset to the YAML default")
	assert.Empty(t, b.created)
}

func TestSubmitEditMissingRecord(t *testing.T) {
	b := newBackend()
	rec, _ := do(t, newHandler(b), http.MethodPost, "/api/forms/equipment/submit", "staff",
		`{"id":"77","values":{"equipment_name":"Ghost"}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, b.updated)
}

func TestSubmitNumberField(t *testing.T) {
	b := newBackend()
	h := newHandler(b)

	rec, body := do(t, h, http.MethodPost, "/api/forms/temperature_points/submit", "staff",
		`{"values":{"equipment_type":"freezer","min_temp_fahrenheit":"10","max_temp_fahrenheit":"-5"}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errs := body["state"].(map[string]any)["errors"].(map[string]any)
	assert.Contains(t, errs["min_temp_fahrenheit"], "less than")

	rec, _ = do(t, h, http.MethodPost, "/api/forms/temperature_points/submit", "staff",
		`{"values":{"equipment_type":"freezer","min_temp_fahrenheit":"-10","max_temp_fahrenheit":0}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, b.created, 1)
	assert.Equal(t, -10.0, b.created[0]["min_temp_fahrenheit"])
	assert.Equal(t, 0.0, b.created[0]["max_temp_fahrenheit"])
}

func TestSubmitForbiddenForRole(t *testing.T) {
	rec, _ := do(t, newHandler(newBackend()), http.MethodPost, "/api/forms/announcements/submit", "staff",
		`{"values":{"title":"Hi","message":"Hello all"}}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSubmitBackendErrorPassesThrough(t *testing.T) {
	b := newBackend()
	b.failure = &apiclient.Error{Status: http.StatusBadRequest, Detail: "Department already exists"}
	rec, body := do(t, newHandler(b), http.MethodPost, "/api/forms/departments/submit", "staff",
		`{"values":{"name":"Produce"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Department already exists", body["error"])

	b.failure = &apiclient.Error{Status: http.StatusServiceUnavailable, Detail: "down"}
	rec, _ = do(t, newHandler(b), http.MethodPost, "/api/forms/departments/submit", "staff",
		`{"values":{"name":"Produce"}}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGetScreen(t *testing.T) {
	h := newHandler(newBackend())

	rec, body := do(t, h, http.MethodGet, "/api/screens/equipment?q=fry&sort=equipment_name&desc=true", "staff", "")
	require.Equal(t, http.StatusOK, rec.Code)
	items := body["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "Fryer", items[0].(map[string]any)["equipment_name"])
	assert.Equal(t, float64(3), body["total"])
	assert.Equal(t, true, body["can_delete"])

	_, body = do(t, h, http.MethodGet, "/api/screens/equipment?status=broken", "staff", "")
	items = body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Slicer", items[0].(map[string]any)["equipment_name"])
}

func TestScreenAccess(t *testing.T) {
	h := newHandler(newBackend())

	rec, _ := do(t, h, http.MethodGet, "/api/screens/users", "staff", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/screens/nope", "staff", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/screens", nil)
	req.Header.Set("X-Role", "staff")
	out := httptest.NewRecorder()
	h.ServeHTTP(out, req)
	var screens []screenSummary
	require.NoError(t, json.Unmarshal(out.Body.Bytes(), &screens))
	for _, s := range screens {
		assert.NotEqual(t, "users", s.Name)
		if s.Name == "announcements" {
			assert.False(t, s.CanWrite)
		}
	}
}

func TestDeleteRecord(t *testing.T) {
	h := newHandler(newBackend())

	rec, _ := do(t, h, http.MethodDelete, "/api/screens/equipment/1", "staff", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = do(t, h, http.MethodDelete, "/api/screens/equipment/404", "staff", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, http.MethodDelete, "/api/screens/temperature_logs/1", "admin", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = do(t, h, http.MethodDelete, "/api/screens/announcements/1", "manager", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestScreenCommands(t *testing.T) {
	b := newBackend()
	h := newHandler(b)

	rec, body := do(t, h, http.MethodGet, "/api/screens/users", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"activate", "purge"}, body["commands"])

	rec, _ = do(t, h, http.MethodPost, "/api/screens/users/2/activate", "manager", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, b.commands)

	rec, body = do(t, h, http.MethodPost, "/api/screens/users/2/activate", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["is_active"])

	rec, _ = do(t, h, http.MethodPost, "/api/screens/users/2/purge", "admin", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, body = do(t, h, http.MethodPost, "/api/screens/users/2/promote", "admin", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown command", body["error"])

	rec, _ = do(t, h, http.MethodPost, "/api/screens/users/404/activate", "admin", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, []string{"PATCH /users/2/activate", "DELETE /users/2/permanent"}, b.commands)
}

func TestChangePasswordSubmit(t *testing.T) {
	b := newBackend()
	h := newHandler(b)

	rec, body := do(t, h, http.MethodPost, "/api/forms/user_password/submit", "staff",
		`{"id":"2","values":{"password":"longenough","confirm_password":""}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errs := body["state"].(map[string]any)["errors"].(map[string]any)
	assert.Equal(t, "Confirm password is required", errs["password"])

	rec, body = do(t, h, http.MethodPost, "/api/forms/user_password/submit", "staff",
		`{"id":"2","values":{"password":"longenough","confirm_password":"longenough"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ok", body["record"].(map[string]any)["message"])
	assert.Equal(t, []string{"PATCH /users/2/change-password"}, b.commands)
	assert.Equal(t, map[string]any{"password": "longenough"}, b.bodies[0])
	assert.Empty(t, b.updated)
}

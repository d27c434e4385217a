// internal/screen/registry.go
//
// Built-in dashboard screens.
//
// Context
// -------
// Every dashboard page has the same shape: fetch a collection, show it with
// filter, search, and sort, open a form to create or edit, call the backend,
// and update the local list.  A Def captures what differs between pages.
// The role lists mirror what the backend itself enforces, so the dashboard
// refuses early instead of waiting for a 403.
//
// Notes
// -----
// • An empty ViewRoles or WriteRoles list means every signed-in role.
// • An empty DeleteRoles list means the backend offers no delete.
// • Query is sent with every page; users need include_inactive or the
//   backend hides deactivated accounts.
package screen

import (
	"net/url"
	"sort"
)

// Sort orders the visible records.
type Sort struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}

// Def describes one screen.
type Def struct {
	Name         string
	Title        string
	Resource     string // Backend collection path.
	FormID       string
	SearchFields []string
	DefaultSort  Sort
	ViewRoles    []string
	WriteRoles   []string
	DeleteRoles  []string
	Enrich       Enricher // Optional; adds derived columns after Load.
	Query        url.Values
	PageSize     int    // Defaults to 100.
	SoftDelete   string // Flag the backend clears on delete; the record stays listed.
	Commands     map[string]Command
}

// Command is a record operation beyond create, edit, and delete.  It is sent
// to the item's sub-resource Path with no body.
type Command struct {
	Method  string // Defaults to PATCH.
	Path    string
	Roles   []string
	Removes bool // The record no longer exists afterwards.
}

var builtins = map[string]Def{
	"announcements": {
		Name:         "announcements",
		Title:        "Announcements",
		Resource:     "/announcements/",
		FormID:       "announcements",
		SearchFields: []string{"title", "message"},
		DefaultSort:  Sort{Field: "created_at", Desc: true},
		WriteRoles:   []string{"manager"},
		DeleteRoles:  []string{"admin"},
	},
	"complaints": {
		Name:         "complaints",
		Title:        "Complaints",
		Resource:     "/complaints/",
		FormID:       "complaints",
		SearchFields: []string{"customer_name", "complaint_type", "description"},
		DefaultSort:  Sort{Field: "created_at", Desc: true},
		DeleteRoles:  []string{"staff"},
	},
	"departments": {
		Name:         "departments",
		Title:        "Departments",
		Resource:     "/departments/",
		FormID:       "departments",
		SearchFields: []string{"name", "department_code", "description"},
		DefaultSort:  Sort{Field: "name"},
		DeleteRoles:  []string{"staff"},
	},
	"equipment": {
		Name:         "equipment",
		Title:        "Equipment",
		Resource:     "/equipment/",
		FormID:       "equipment",
		SearchFields: []string{"equipment_name", "equipment_type", "equipment_id", "location"},
		DefaultSort:  Sort{Field: "equipment_name"},
		DeleteRoles:  []string{"staff"},
	},
	"equipment_maintenance": {
		Name:         "equipment_maintenance",
		Title:        "Equipment maintenance",
		Resource:     "/equipment/maintenance",
		FormID:       "equipment_maintenance",
		SearchFields: []string{"maintenance_type", "performed_by", "maintenance_notes", "status"},
		DefaultSort:  Sort{Field: "scheduled_date", Desc: true},
	},
	"equipment_repairs": {
		Name:         "equipment_repairs",
		Title:        "Equipment repairs",
		Resource:     "/equipment/repairs",
		FormID:       "equipment_repairs",
		SearchFields: []string{"issue_description", "urgency", "status", "repair_notes"},
		DefaultSort:  Sort{Field: "id", Desc: true},
	},
	"users": {
		Name:         "users",
		Title:        "Users",
		Resource:     "/users/",
		FormID:       "users",
		SearchFields: []string{"username", "email"},
		DefaultSort:  Sort{Field: "username"},
		ViewRoles:    []string{"manager"},
		WriteRoles:   []string{"admin"},
		DeleteRoles:  []string{"admin"},
		Query:        url.Values{"include_inactive": {"true"}},
		SoftDelete:   "is_active",
		Commands: map[string]Command{
			"activate": {Path: "activate", Roles: []string{"admin"}},
			"purge":    {Method: "DELETE", Path: "permanent", Roles: []string{"admin"}, Removes: true},
		},
	},
	"temperature_points": {
		Name:         "temperature_points",
		Title:        "Temperature monitoring points",
		Resource:     "/temperature/monitoring-points",
		FormID:       "temperature_points",
		SearchFields: []string{"equipment_type"},
		DefaultSort:  Sort{Field: "equipment_type"},
		DeleteRoles:  []string{"staff"},
		Enrich:       enrichDueChecks,
	},
	"temperature_logs": {
		Name:         "temperature_logs",
		Title:        "Temperature logs",
		Resource:     "/temperature/logs",
		FormID:       "temperature_logs",
		SearchFields: []string{"notes", "shift"},
		DefaultSort:  Sort{Field: "recorded_at", Desc: true},
		Enrich:       enrichReadings,
	},
}

// Lookup returns the built-in screen called name.
func Lookup(name string) (Def, bool) {
	d, ok := builtins[name]
	return d, ok
}

// ForForm returns the screen that edits with formID.
func ForForm(formID string) (Def, bool) {
	for _, d := range builtins {
		if d.FormID == formID {
			return d, true
		}
	}
	return Def{}, false
}

// All returns every built-in screen sorted by name.
func All() []Def {
	out := make([]Def, 0, len(builtins))
	for _, d := range builtins {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// internal/acl/store.go
//
// Small query helpers for Role-Based Access Control.
//
// Context
// -------
// The store database keeps one role per user and a permission matrix per
// role:
//
//	users             (id PK, username, role, is_active, ...)
//	permissions       (id PK, permission_name)
//	role_permissions  (role, permission_id, can_view, can_create, can_edit, can_delete)
//
// Middleware needs fast answers to two questions:
//  1. Who is user X and what is their role?            → `LookupPrincipal()`
//  2. May role R perform action A on permission P?     → `RoleAllowed()`
//
// These helpers take the shared *sqlx.DB and perform simple parameterised
// queries.  They are thin; callers may wrap the results in their own
// per-request cache.
//
// Notes
// -----
// • Admin is allowed everything without a query, matching the backend.
// • Oxford commas, two spaces after periods.
package acl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/yanizio/storedash/internal/auth"
)

// ErrUnknownUser is returned when the id does not name an active user.
var ErrUnknownUser = errors.New("acl: unknown or inactive user")

// Actions map to the role_permissions flag columns.  The column name is
// interpolated into SQL, so only these keys are accepted.
var actionColumns = map[string]string{
	"view":   "can_view",
	"create": "can_create",
	"edit":   "can_edit",
	"delete": "can_delete",
}

// LookupPrincipal loads the active user userID.
func LookupPrincipal(ctx context.Context, db *sqlx.DB, userID int64) (auth.Principal, error) {
	const q = `SELECT username, role
                 FROM users
                WHERE id = ? AND is_active = TRUE`

	var row struct {
		Username string `db:"username"`
		Role     string `db:"role"`
	}
	err := db.GetContext(ctx, &row, q, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Principal{}, ErrUnknownUser
	}
	if err != nil {
		return auth.Principal{}, err
	}
	return auth.Principal{UserID: userID, Username: row.Username, Role: row.Role}, nil
}

// RoleAllowed reports whether role may perform action ("view", "create",
// "edit", "delete") on the named permission.  A missing matrix row is a
// denial, not an error.
func RoleAllowed(ctx context.Context, db *sqlx.DB, role, permission, action string) (bool, error) {
	col, ok := actionColumns[action]
	if !ok {
		return false, fmt.Errorf("acl: unknown action %q", action)
	}
	if role == auth.RoleAdmin {
		return true, nil
	}

	q := `SELECT rp.` + col + `
            FROM role_permissions rp
            JOIN permissions p ON p.id = rp.permission_id
           WHERE rp.role = ?
             AND p.permission_name = ?
           LIMIT 1`

	var allowed bool
	err := db.GetContext(ctx, &allowed, q, role, permission)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return allowed, nil
}

// internal/acl/middleware.go
//
// Chi middleware helpers that identify the caller and enforce RBAC.

package acl

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/storedash/internal/auth"
)

// Identify resolves the user id the upstream auth proxy put in header and
// stores the Principal in the request context.  Missing, malformed, or
// unknown ids are rejected with 401.
func Identify(db *sqlx.DB, header string) func(http.Handler) http.Handler {
	if header == "" {
		header = "X-User-ID"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(header))
			uid, err := strconv.ParseInt(raw, 10, 64)
			if raw == "" || err != nil || uid <= 0 {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			p, err := LookupPrincipal(r.Context(), db, uid)
			if errors.Is(err, ErrUnknownUser) {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if err != nil {
				zap.L().Error("acl lookup principal", zap.Int64("user_id", uid), zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole ensures the current user satisfies ANY of the supplied roles.
// Admin satisfies manager; everyone satisfies staff.
func RequireRole(names ...string) func(http.Handler) http.Handler {
	if len(names) == 0 {
		panic("acl.RequireRole: at least one role name must be supplied")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.FromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if !p.Flags().Allows(names...) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission verifies that the user's role allows action on
// permission according to the role_permissions matrix.
func RequirePermission(db *sqlx.DB, permission, action string) func(http.Handler) http.Handler {
	if _, ok := actionColumns[action]; !ok {
		panic("acl.RequirePermission: unknown action " + action)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.FromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			allowed, err := RoleAllowed(r.Context(), db, p.Role, permission, action)
			if err != nil {
				zap.L().Error("acl role allowed", zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !allowed {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// internal/auth/context.go
//
// Request principal and role flags.
//
// Context
// -------
// Login, tokens, and sessions live in the upstream auth proxy.  By the time a
// request reaches this service the proxy has placed the user id in a header;
// acl.Identify resolves the role and stores a Principal in the context.
// Everything downstream (form definitions, screens, handlers) reads it from
// here.
//
// Usage
// -----
//
//	ctx = auth.WithPrincipal(ctx, auth.Principal{UserID: 7, Role: auth.RoleManager})
//
//	p, ok := auth.FromContext(ctx)
//	if ok && p.Flags().IsManager { … }
//
// Notes
// -----
// • Admin implies manager for gating purposes, matching the backend's
//   manager_or_admin dependency.
// • Oxford commas, two spaces after periods.

package auth

import "context"

// Role names as stored in users.role.
const (
	RoleStaff   = "staff"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Flags are the derived booleans most gating code needs.
type Flags struct {
	IsAdmin   bool `json:"is_admin"`
	IsManager bool `json:"is_manager"`
}

// Flags derives the role flags for p.
func (p Principal) Flags() Flags {
	return Flags{
		IsAdmin:   p.Role == RoleAdmin,
		IsManager: p.Role == RoleManager || p.Role == RoleAdmin,
	}
}

// Allows reports whether the flags satisfy any of roles.  An empty list
// allows everyone.  "staff" is satisfied by every signed-in caller and
// "manager" by admins.
func (f Flags) Allows(roles ...string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		switch r {
		case RoleStaff:
			return true
		case RoleManager:
			if f.IsManager {
				return true
			}
		case RoleAdmin:
			if f.IsAdmin {
				return true
			}
		}
	}
	return false
}

// principalKey is unexported to avoid context-key collisions.
type principalKey struct{}

// WithPrincipal returns a new context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext extracts the Principal.  It returns (Principal{}, false) when
// none is set.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// UserID is a shortcut for the principal's id.
func UserID(ctx context.Context) (int64, bool) {
	p, ok := FromContext(ctx)
	return p.UserID, ok
}

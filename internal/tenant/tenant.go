// Package tenant enforces clinic-scoped data isolation. Every authenticated
// request derives one immutable Context here so downstream handlers never
// re-derive authorization state mid-request.
package tenant

import (
	"context"
	"strings"

	"vetcare.app/internal/auth"
)

// Context is the per-request tenancy bundle.
type Context struct {
	OrganizationID string
	ClinicID       string
	UserID         string
	Role           auth.Role
	Permissions    auth.PermissionSet
	ClinicAccess   []string
}

// FromPrincipal builds the tenancy context for an authenticated principal.
func FromPrincipal(p auth.Principal) Context {
	return Context{
		OrganizationID: p.User.OrganizationID,
		ClinicID:       p.ClinicID,
		UserID:         p.User.ID,
		Role:           p.User.Role,
		Permissions:    p.Permissions,
		ClinicAccess:   append([]string(nil), p.User.ClinicAccess...),
	}
}

// HasClinicAccess reports whether the user may touch the clinic. The
// organization-wide override and the explicit grant list are both resolved
// by the user record; this is the only entry point handlers should use.
func HasClinicAccess(u *auth.User, clinicID string) bool {
	if u == nil {
		return false
	}
	return u.HasClinicAccess(clinicID)
}

// RequireClinicAccess is HasClinicAccess as a checked operation: a missing
// clinic id cannot be evaluated and is reported as auth.ErrClinicRequired,
// a denied one as auth.ErrForbidden.
func RequireClinicAccess(u *auth.User, clinicID string) error {
	if strings.TrimSpace(clinicID) == "" {
		return auth.ErrClinicRequired
	}
	if !HasClinicAccess(u, clinicID) {
		return auth.ErrForbidden
	}
	return nil
}

// CheckResourceAccess applies the tenancy rule to a resource's owning
// clinic. Resources without a clinic binding are unrestricted.
func (c Context) CheckResourceAccess(resourceClinicID string) bool {
	if resourceClinicID == "" {
		return true
	}
	if c.Role.OrganizationWide() {
		return true
	}
	for _, id := range c.ClinicAccess {
		if id == resourceClinicID {
			return true
		}
	}
	return false
}

type tenantContextKey struct{}

// WithContext attaches the tenancy bundle to the request context.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tc)
}

// FromContext extracts the tenancy bundle, if present.
func FromContext(ctx context.Context) (Context, bool) {
	if ctx == nil {
		return Context{}, false
	}
	tc, ok := ctx.Value(tenantContextKey{}).(Context)
	return tc, ok
}

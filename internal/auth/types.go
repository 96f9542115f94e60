package auth

import "time"

const (
	UserStatusActive    = "active"
	UserStatusInactive  = "inactive"
	UserStatusSuspended = "suspended"
)

// User is the identity record held by the credential store. The auth core
// never mutates it beyond last-login metadata; provisioning and role edits
// happen elsewhere.
type User struct {
	ID                  string
	OrganizationID      string
	Email               string
	PasswordHash        string
	FirstName           string
	LastName            string
	Role                Role
	Status              string
	ClinicAccess        []string
	ExtraPermissions    []string
	MFAEnabled          bool
	MFASecret           string
	ForcePasswordChange bool
	PasswordChangedAt   time.Time
	LastLoginAt         *time.Time
	LastLoginIP         string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Active reports whether tokens may be issued for or accepted from the user.
func (u *User) Active() bool {
	return u != nil && u.Status == UserStatusActive
}

// Permissions resolves the user's role grants merged with any extras.
func (u *User) Permissions() PermissionSet {
	return Resolve(u.Role, u.ExtraPermissions)
}

// HasClinicAccess is the single multi-tenancy access rule: organization-wide
// roles see every clinic, everyone else needs an explicit grant.
func (u *User) HasClinicAccess(clinicID string) bool {
	if clinicID == "" {
		return false
	}
	if u.Role.OrganizationWide() {
		return true
	}
	for _, id := range u.ClinicAccess {
		if id == clinicID {
			return true
		}
	}
	return false
}

// TokenVersion is the marker embedded into refresh tokens at issuance.
// Rotating the password bumps it, invalidating every earlier token.
func (u *User) TokenVersion() int64 {
	if u.PasswordChangedAt.IsZero() {
		return u.CreatedAt.Unix()
	}
	return u.PasswordChangedAt.Unix()
}

// Public returns the projection safe to hand to clients. The password hash
// and MFA secret never leave the package.
func (u *User) Public(currentClinicID string) PublicUser {
	return PublicUser{
		ID:                  u.ID,
		OrganizationID:      u.OrganizationID,
		Email:               u.Email,
		FirstName:           u.FirstName,
		LastName:            u.LastName,
		Role:                u.Role,
		ClinicAccess:        append([]string(nil), u.ClinicAccess...),
		Permissions:         u.Permissions().Strings(),
		CurrentClinicID:     currentClinicID,
		MFAEnabled:          u.MFAEnabled,
		NeedsPasswordChange: u.ForcePasswordChange,
		LastLoginAt:         u.LastLoginAt,
		CreatedAt:           u.CreatedAt,
	}
}

// PublicUser is the client-visible user projection.
type PublicUser struct {
	ID                  string     `json:"id"`
	OrganizationID      string     `json:"organization_id"`
	Email               string     `json:"email"`
	FirstName           string     `json:"first_name"`
	LastName            string     `json:"last_name"`
	Role                Role       `json:"role"`
	ClinicAccess        []string   `json:"clinic_access"`
	Permissions         []string   `json:"permissions"`
	CurrentClinicID     string     `json:"current_clinic_id,omitempty"`
	MFAEnabled          bool       `json:"mfa_enabled"`
	NeedsPasswordChange bool       `json:"needs_password_change"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// Session is the server-side refresh context. At most one live session
// exists per user: a new login supersedes the previous record.
type Session struct {
	UserID       string    `json:"user_id"`
	RefreshToken string    `json:"refresh_token"`
	ClinicID     string    `json:"clinic_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Principal is the per-request authorization bundle derived once from a
// verified access token. Downstream handlers read it instead of re-deriving
// authorization state.
type Principal struct {
	User        *User
	Permissions PermissionSet
	ClinicID    string
}

// HasPermission reports whether the principal's resolved set satisfies the
// required grant.
func (p Principal) HasPermission(required string) bool {
	return p.Permissions.Satisfies(required)
}

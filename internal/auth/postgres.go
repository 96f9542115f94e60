package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

var _ CredentialStore = (*PGCredentialStore)(nil)

// PGCredentialStore implements CredentialStore on PostgreSQL. Clinic access
// lives in the user_clinic_access join table; extra permission grants are a
// jsonb array on the user row.
type PGCredentialStore struct {
	db *sql.DB
}

func NewPGCredentialStore(db *sql.DB) *PGCredentialStore {
	return &PGCredentialStore{db: db}
}

const userColumns = `id, organization_id, email, password_hash, first_name, last_name,
role, status, permissions, mfa_enabled, mfa_secret, force_password_change,
password_changed_at, last_login_at, last_login_ip, created_at, updated_at`

func (s *PGCredentialStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where lower(email) = lower($1) and deleted_at is null`,
		email,
	)
	return s.scanUser(ctx, row)
}

func (s *PGCredentialStore) FindByID(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1 and deleted_at is null`,
		id,
	)
	return s.scanUser(ctx, row)
}

func (s *PGCredentialStore) UpdateLastLogin(ctx context.Context, id, ip string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users set last_login_at = $2, last_login_ip = $3, updated_at = now() where id = $1`,
		id, at, nullString(ip),
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGCredentialStore) scanUser(ctx context.Context, row *sql.Row) (*User, error) {
	var (
		u                 User
		role              string
		permissions       []byte
		mfaSecret         sql.NullString
		passwordChangedAt sql.NullTime
		lastLoginAt       sql.NullTime
		lastLoginIP       sql.NullString
	)
	err := row.Scan(
		&u.ID, &u.OrganizationID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&role, &u.Status, &permissions, &u.MFAEnabled, &mfaSecret, &u.ForcePasswordChange,
		&passwordChangedAt, &lastLoginAt, &lastLoginIP, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	// The role column is constrained by migration; an out-of-range value
	// still resolves to an empty permission set rather than failing the read.
	u.Role = Role(role)
	if len(permissions) > 0 {
		_ = json.Unmarshal(permissions, &u.ExtraPermissions)
	}
	if mfaSecret.Valid {
		u.MFASecret = mfaSecret.String
	}
	if passwordChangedAt.Valid {
		u.PasswordChangedAt = passwordChangedAt.Time
	}
	if lastLoginAt.Valid {
		t := lastLoginAt.Time
		u.LastLoginAt = &t
	}
	if lastLoginIP.Valid {
		u.LastLoginIP = lastLoginIP.String
	}

	access, err := s.clinicAccess(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.ClinicAccess = access
	return &u, nil
}

func (s *PGCredentialStore) clinicAccess(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select clinic_id from user_clinic_access where user_id = $1 order by clinic_id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var access []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		access = append(access, id)
	}
	return access, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var userRowColumns = []string{
	"id", "organization_id", "email", "password_hash", "first_name", "last_name",
	"role", "status", "permissions", "mfa_enabled", "mfa_secret", "force_password_change",
	"password_changed_at", "last_login_at", "last_login_ip", "created_at", "updated_at",
}

func userRow(mock sqlmock.Sqlmock, changedAt any) *sqlmock.Rows {
	created := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	return mock.NewRows(userRowColumns).AddRow(
		"usr_1", "org_1", "vet@example.com", "$2a$12$hash", "Ada", "Vetson",
		"veterinarian", "active", []byte(`["reports.read"]`), false, nil, false,
		changedAt, nil, nil, created, created,
	)
}

func TestPGFindByEmail(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	changedAt := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`(?s)select .+ from users where lower\(email\) = lower\(\$1\) and deleted_at is null`).
		WithArgs("vet@example.com").
		WillReturnRows(userRow(mock, changedAt))
	mock.ExpectQuery(`select clinic_id from user_clinic_access where user_id = \$1 order by clinic_id`).
		WithArgs("usr_1").
		WillReturnRows(mock.NewRows([]string{"clinic_id"}).AddRow("clinicA").AddRow("clinicB"))

	store := NewPGCredentialStore(db)
	user, err := store.FindByEmail(context.Background(), "vet@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if user.Role != RoleVeterinarian {
		t.Errorf("role = %q", user.Role)
	}
	if len(user.ClinicAccess) != 2 || user.ClinicAccess[0] != "clinicA" {
		t.Errorf("clinic access = %v", user.ClinicAccess)
	}
	if len(user.ExtraPermissions) != 1 || user.ExtraPermissions[0] != "reports.read" {
		t.Errorf("extra permissions = %v", user.ExtraPermissions)
	}
	if !user.PasswordChangedAt.Equal(changedAt) {
		t.Errorf("password changed at = %v", user.PasswordChangedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGFindByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`(?s)select .+ from users where id = \$1 and deleted_at is null`).
		WithArgs("usr_missing").
		WillReturnRows(mock.NewRows(userRowColumns))

	store := NewPGCredentialStore(db)
	_, err = store.FindByID(context.Background(), "usr_missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGUpdateLastLogin(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(`update users set last_login_at = \$2, last_login_ip = \$3`).
		WithArgs("usr_1", at, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPGCredentialStore(db)
	if err := store.UpdateLastLogin(context.Background(), "usr_1", "203.0.113.9", at); err != nil {
		t.Fatalf("UpdateLastLogin: %v", err)
	}

	mock.ExpectExec(`update users set last_login_at = \$2, last_login_ip = \$3`).
		WithArgs("usr_missing", at, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.UpdateLastLogin(context.Background(), "usr_missing", "", at); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

package auth

import (
	"errors"
	"testing"
	"time"
)

func testUser() *User {
	created := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	return &User{
		ID:             "usr_1",
		OrganizationID: "org_1",
		Email:          "vet@example.com",
		Role:           RoleVeterinarian,
		Status:         UserStatusActive,
		ClinicAccess:   []string{"clinicA", "clinicB"},
		CreatedAt:      created,
	}
}

func testIssuer(t *testing.T, now func() time.Time, opts ...IssuerOption) *TokenIssuer {
	t.Helper()
	opts = append([]IssuerOption{WithTokenClock(now)}, opts...)
	issuer, err := NewTokenIssuer("test-secret-test-secret", opts...)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	return issuer
}

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	if _, err := NewTokenIssuer("   "); err == nil {
		t.Fatal("expected error for blank secret")
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := testIssuer(t, func() time.Time { return now })
	user := testUser()

	token, exp, err := issuer.IssueAccessToken(user, "clinicA")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if want := now.Add(15 * time.Minute); !exp.Equal(want) {
		t.Fatalf("expiry = %v, want %v", exp, want)
	}

	claims, err := issuer.VerifyAccess(token)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.Subject != user.ID {
		t.Errorf("subject = %q, want %q", claims.Subject, user.ID)
	}
	if claims.Email != user.Email {
		t.Errorf("email = %q, want %q", claims.Email, user.Email)
	}
	if claims.Role != RoleVeterinarian {
		t.Errorf("role = %q", claims.Role)
	}
	if claims.ClinicID != "clinicA" {
		t.Errorf("clinic_id = %q, want clinicA", claims.ClinicID)
	}
	if claims.ID == "" {
		t.Error("jti must be set")
	}
	if len(claims.Permissions) == 0 {
		t.Error("permissions claim must carry the resolved set")
	}
}

func TestAccessTokenExpiry(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := issued
	issuer := testIssuer(t, func() time.Time { return clock })

	token, exp, err := issuer.IssueAccessToken(testUser(), "")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	// One second before expiry the token still verifies.
	clock = exp.Add(-time.Second)
	if _, err := issuer.VerifyAccess(token); err != nil {
		t.Fatalf("token should be valid just before expiry: %v", err)
	}

	// At the expiry instant the token is already expired.
	clock = exp
	if _, err := issuer.VerifyAccess(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired at expiry instant, got %v", err)
	}
}

func TestRefreshTokenCarriesVersion(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := testIssuer(t, func() time.Time { return now })
	user := testUser()
	user.PasswordChangedAt = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	token, exp, err := issuer.IssueRefreshToken(user, false)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	if want := now.Add(7 * 24 * time.Hour); !exp.Equal(want) {
		t.Fatalf("refresh expiry = %v, want %v", exp, want)
	}

	claims, err := issuer.VerifyRefresh(token)
	if err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}
	if claims.Version != user.PasswordChangedAt.Unix() {
		t.Fatalf("version = %d, want %d", claims.Version, user.PasswordChangedAt.Unix())
	}
}

func TestRememberMeExtendsRefreshTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := testIssuer(t, func() time.Time { return now })

	_, exp, err := issuer.IssueRefreshToken(testUser(), true)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	if want := now.Add(30 * 24 * time.Hour); !exp.Equal(want) {
		t.Fatalf("remember-me expiry = %v, want %v", exp, want)
	}
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := testIssuer(t, func() time.Time { return now })
	user := testUser()

	access, _, err := issuer.IssueAccessToken(user, "")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	refresh, _, err := issuer.IssueRefreshToken(user, false)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}

	if _, err := issuer.VerifyRefresh(access); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("access token accepted as refresh: %v", err)
	}
	if _, err := issuer.VerifyAccess(refresh); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("refresh token accepted as access: %v", err)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	issuer := testIssuer(t, clock)

	other, err := NewTokenIssuer("a-completely-different-secret", WithTokenClock(clock))
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	token, _, err := other.IssueAccessToken(testUser(), "")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	if _, err := issuer.VerifyAccess(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	issuer := testIssuer(t, time.Now)
	for _, token := range []string{"", "   ", "not-a-jwt", "a.b.c"} {
		if _, err := issuer.VerifyAccess(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("VerifyAccess(%q) = %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	issuer := testIssuer(t, clock)

	foreign := testIssuer(t, clock, WithTokenAudience("other-app"))
	token, _, err := foreign.IssueAccessToken(testUser(), "")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if _, err := issuer.VerifyAccess(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong audience, got %v", err)
	}
}

package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	defaultIssuer   = "vetcare-api"
	defaultAudience = "vetcare-app"

	defaultAccessTTL     = 15 * time.Minute
	defaultRefreshTTL    = 7 * 24 * time.Hour
	defaultRememberMeTTL = 30 * 24 * time.Hour
)

// AccessClaims is the payload of a short-lived access token. It snapshots
// the user's authorization state at issuance; the password-change check at
// verification time bounds how stale the snapshot can get.
type AccessClaims struct {
	Email        string   `json:"email"`
	Role         Role     `json:"role"`
	ClinicAccess []string `json:"clinic_access,omitempty"`
	Permissions  []string `json:"permissions,omitempty"`
	ClinicID     string   `json:"clinic_id,omitempty"`
	TokenType    string   `json:"token_type"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a long-lived refresh token. Version holds
// the user's token version at issuance so tokens minted before a password
// change can be rejected.
type RefreshClaims struct {
	Email     string `json:"email"`
	Version   int64  `json:"version"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies signed tokens with a process-wide HS256
// secret. The secret is read-only after construction and safe to share
// across request handlers.
type TokenIssuer struct {
	secret        []byte
	issuer        string
	audience      string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	rememberMeTTL time.Duration
	now           func() time.Time
}

// IssuerOption configures a TokenIssuer.
type IssuerOption func(*TokenIssuer)

// WithTokenIssuerName overrides the issuer claim.
func WithTokenIssuerName(issuer string) IssuerOption {
	return func(t *TokenIssuer) {
		if s := strings.TrimSpace(issuer); s != "" {
			t.issuer = s
		}
	}
}

// WithTokenAudience overrides the audience claim.
func WithTokenAudience(aud string) IssuerOption {
	return func(t *TokenIssuer) {
		if s := strings.TrimSpace(aud); s != "" {
			t.audience = s
		}
	}
}

// WithAccessTTL configures the access token lifetime.
func WithAccessTTL(ttl time.Duration) IssuerOption {
	return func(t *TokenIssuer) {
		if ttl > 0 {
			t.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) IssuerOption {
	return func(t *TokenIssuer) {
		if ttl > 0 {
			t.refreshTTL = ttl
		}
	}
}

// WithRememberMeTTL configures the extended refresh lifetime granted to
// remember-me logins.
func WithRememberMeTTL(ttl time.Duration) IssuerOption {
	return func(t *TokenIssuer) {
		if ttl > 0 {
			t.rememberMeTTL = ttl
		}
	}
}

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(fn func() time.Time) IssuerOption {
	return func(t *TokenIssuer) {
		if fn != nil {
			t.now = fn
		}
	}
}

// NewTokenIssuer constructs a TokenIssuer. The signing secret is required.
func NewTokenIssuer(secret string, opts ...IssuerOption) (*TokenIssuer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: token secret is required")
	}
	t := &TokenIssuer{
		secret:        []byte(secret),
		issuer:        defaultIssuer,
		audience:      defaultAudience,
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		rememberMeTTL: defaultRememberMeTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// AccessTTL returns the configured access token lifetime.
func (t *TokenIssuer) AccessTTL() time.Duration { return t.accessTTL }

// RefreshTTL returns the refresh lifetime for the given remember-me choice.
func (t *TokenIssuer) RefreshTTL(rememberMe bool) time.Duration {
	if rememberMe {
		return t.rememberMeTTL
	}
	return t.refreshTTL
}

// IssueAccessToken mints an access token for the user, optionally bound to
// an active clinic.
func (t *TokenIssuer) IssueAccessToken(u *User, clinicID string) (string, time.Time, error) {
	now := t.now().UTC()
	exp := now.Add(t.accessTTL)
	claims := AccessClaims{
		Email:        u.Email,
		Role:         u.Role,
		ClinicAccess: append([]string(nil), u.ClinicAccess...),
		Permissions:  u.Permissions().Strings(),
		ClinicID:     clinicID,
		TokenType:    TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{t.audience},
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueRefreshToken mints a refresh token carrying the user's current token
// version.
func (t *TokenIssuer) IssueRefreshToken(u *User, rememberMe bool) (string, time.Time, error) {
	now := t.now().UTC()
	exp := now.Add(t.RefreshTTL(rememberMe))
	claims := RefreshClaims{
		Email:     u.Email,
		Version:   u.TokenVersion(),
		TokenType: TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{t.audience},
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// VerifyAccess validates signature, issuer, audience, expiry and token type
// of an access token. Expiry is reported as ErrTokenExpired; every other
// failure collapses to ErrInvalidToken.
func (t *TokenIssuer) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := t.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token the same way VerifyAccess does.
func (t *TokenIssuer) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := t.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (t *TokenIssuer) parse(token string, claims jwt.Claims) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(tok *jwt.Token) (any, error) {
			if tok.Method != jwt.SigningMethodHS256 {
				return nil, ErrInvalidToken
			}
			return t.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithAudience(t.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return t.now().UTC() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrInvalidToken
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultMaxAttempts   = 5
	defaultAttemptWindow = 15 * time.Minute
	defaultStoreTimeout  = 3 * time.Second
)

// Service orchestrates login, refresh, clinic switching and logout on top
// of the credential, session and rate-limit stores. All methods are safe
// for concurrent use; per-user consistency relies on the session store's
// atomic per-key upsert, so concurrent logins race to last-write-wins and
// the loser's refresh token fails the session match on next use.
type Service struct {
	users    CredentialStore
	sessions SessionStore
	limiter  RateLimitStore
	tokens   *TokenIssuer
	audit    AuditSink

	now           func() time.Time
	maxAttempts   int64
	attemptWindow time.Duration
	storeTimeout  time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithAuditSink attaches a best-effort audit event consumer.
func WithAuditSink(sink AuditSink) ServiceOption {
	return func(s *Service) { s.audit = sink }
}

// WithMaxAttempts sets the failed-login threshold per (address, email).
func WithMaxAttempts(n int64) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithAttemptWindow sets the sliding window for the attempt counter.
func WithAttemptWindow(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.attemptWindow = d
		}
	}
}

// WithStoreTimeout bounds individual store lookups. A timed-out lookup is
// an ErrUnavailable failure, never an implicit allow.
func WithStoreTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// NewService wires the flow controller. All four collaborators are required.
func NewService(users CredentialStore, sessions SessionStore, limiter RateLimitStore, tokens *TokenIssuer, opts ...ServiceOption) (*Service, error) {
	if users == nil || sessions == nil || limiter == nil || tokens == nil {
		return nil, errors.New("auth: credential store, session store, rate limit store and token issuer are required")
	}
	s := &Service{
		users:         users,
		sessions:      sessions,
		limiter:       limiter,
		tokens:        tokens,
		now:           time.Now,
		maxAttempts:   defaultMaxAttempts,
		attemptWindow: defaultAttemptWindow,
		storeTimeout:  defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// LoginRequest carries the credentials and context of a login attempt.
type LoginRequest struct {
	Email      string
	Password   string
	ClinicID   string
	RememberMe bool
	Meta       RequestMeta
}

// TokenPair bundles freshly minted access and refresh tokens.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// LoginResult is the success payload of Login.
type LoginResult struct {
	User   PublicUser
	Tokens TokenPair
}

// ClinicSwitchResult is the success payload of SwitchClinic. The refresh
// token is untouched; only a new access token is minted.
type ClinicSwitchResult struct {
	ClinicID        string
	AccessToken     string
	AccessExpiresAt time.Time
}

// Login authenticates credentials and establishes the user's single live
// session. Throttling is evaluated before the credential store is touched,
// and every credential failure collapses to ErrInvalidCredentials so the
// caller cannot distinguish an unknown email from a wrong password.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	key := attemptKey(req.Meta.IP, email)
	count, err := s.limiter.Increment(ctx, key, s.attemptWindow)
	if err != nil {
		// Throttling infrastructure being down must never block a
		// legitimate login; note the degraded state and continue.
		s.emit(ctx, "rate_limit_degraded", map[string]any{"error": err.Error()}, req.Meta)
		count = 0
	}
	if count > s.maxAttempts {
		s.emit(ctx, "login_rate_limited", map[string]any{"email": email}, req.Meta)
		return nil, ErrTooManyAttempts
	}

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active() || VerifyPassword(user.PasswordHash, req.Password) != nil {
		s.emit(ctx, "login_failed", map[string]any{"email": email}, req.Meta)
		return nil, ErrInvalidCredentials
	}

	if req.ClinicID != "" && !user.HasClinicAccess(req.ClinicID) {
		s.emit(ctx, "login_denied_clinic_access", map[string]any{
			"email":     email,
			"clinic_id": req.ClinicID,
		}, req.Meta)
		return nil, ErrForbidden
	}

	if err := s.limiter.Clear(ctx, key); err != nil {
		s.emit(ctx, "rate_limit_degraded", map[string]any{"error": err.Error()}, req.Meta)
	}

	now := s.now().UTC()
	sctx, cancel := s.storeCtx(ctx)
	if err := s.users.UpdateLastLogin(sctx, user.ID, req.Meta.IP, now); err != nil {
		// Last-login metadata is advisory; a failed write does not block login.
		s.emit(ctx, "last_login_update_failed", map[string]any{"user_id": user.ID}, req.Meta)
	}
	cancel()
	user.LastLoginAt = &now
	user.LastLoginIP = req.Meta.IP

	pair, err := s.establishSession(ctx, user, req.ClinicID, req.RememberMe)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, "login_success", map[string]any{
		"user_id":   user.ID,
		"email":     user.Email,
		"clinic_id": req.ClinicID,
	}, req.Meta)

	return &LoginResult{
		User:   user.Public(req.ClinicID),
		Tokens: *pair,
	}, nil
}

// Refresh rotates a valid refresh token into a new token pair. The token
// must verify, carry the user's current token version, and match the value
// held by the live session.
func (s *Service) Refresh(ctx context.Context, refreshToken string, meta RequestMeta) (*TokenPair, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.findByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active() {
		_ = s.deleteSession(ctx, claims.Subject)
		return nil, ErrInvalidSession
	}
	if claims.Version != user.TokenVersion() {
		// Token minted before the most recent password change; replaying
		// it must force a fresh login.
		if err := s.deleteSession(ctx, user.ID); err != nil {
			return nil, err
		}
		s.emit(ctx, "refresh_denied_password_changed", map[string]any{"user_id": user.ID}, meta)
		return nil, ErrPasswordChanged
	}

	sess, err := s.getSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.RefreshToken != refreshToken {
		return nil, ErrInvalidSession
	}

	pair, err := s.rotateSession(ctx, user, sess)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, "token_refresh", map[string]any{"user_id": user.ID, "email": user.Email}, meta)
	return pair, nil
}

// SwitchClinic changes the active clinic of the user's session and mints an
// access token bound to it. The refresh token is left untouched.
func (s *Service) SwitchClinic(ctx context.Context, user *User, clinicID string, meta RequestMeta) (*ClinicSwitchResult, error) {
	if user == nil {
		return nil, ErrInvalidInput
	}
	if strings.TrimSpace(clinicID) == "" {
		return nil, ErrClinicRequired
	}
	if !user.HasClinicAccess(clinicID) {
		s.emit(ctx, "clinic_switch_denied", map[string]any{
			"user_id":   user.ID,
			"clinic_id": clinicID,
		}, meta)
		return nil, ErrForbidden
	}

	sess, err := s.getSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		sess.ClinicID = clinicID
		now := s.now().UTC()
		sctx, cancel := s.storeCtx(ctx)
		err = s.sessions.Put(sctx, user.ID, *sess, sess.ExpiresAt.Sub(now))
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: update session: %v", ErrUnavailable, err)
		}
	}

	access, exp, err := s.tokens.IssueAccessToken(user, clinicID)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, "clinic_switch_success", map[string]any{
		"user_id":   user.ID,
		"clinic_id": clinicID,
	}, meta)
	return &ClinicSwitchResult{ClinicID: clinicID, AccessToken: access, AccessExpiresAt: exp}, nil
}

// Logout revokes the user's session. Deleting an absent session succeeds.
func (s *Service) Logout(ctx context.Context, user *User, meta RequestMeta) error {
	if user == nil {
		return nil
	}
	if err := s.deleteSession(ctx, user.ID); err != nil {
		return err
	}
	s.emit(ctx, "logout_success", map[string]any{"user_id": user.ID, "email": user.Email}, meta)
	return nil
}

// Authenticate verifies an access token on behalf of a request and returns
// the principal for downstream authorization. Expired tokens surface as
// ErrTokenExpired so clients can attempt a silent refresh; tokens minted
// before a password change surface as ErrPasswordChanged.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (Principal, error) {
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return Principal{}, err
	}

	user, err := s.findByID(ctx, claims.Subject)
	if err != nil {
		return Principal{}, err
	}
	if user == nil || !user.Active() {
		return Principal{}, ErrInvalidToken
	}
	if claims.IssuedAt == nil || user.TokenVersion() > claims.IssuedAt.Unix() {
		return Principal{}, ErrPasswordChanged
	}

	return Principal{
		User:        user,
		Permissions: user.Permissions(),
		ClinicID:    claims.ClinicID,
	}, nil
}

// Profile returns the fresh public projection for an authenticated user.
func (s *Service) Profile(ctx context.Context, userID, clinicID string) (*PublicUser, error) {
	user, err := s.findByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	pub := user.Public(clinicID)
	return &pub, nil
}

// --- internals ---

func (s *Service) establishSession(ctx context.Context, user *User, clinicID string, rememberMe bool) (*TokenPair, error) {
	now := s.now().UTC()
	access, accessExp, err := s.tokens.IssueAccessToken(user, clinicID)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.tokens.IssueRefreshToken(user, rememberMe)
	if err != nil {
		return nil, err
	}

	sess := Session{
		UserID:       user.ID,
		RefreshToken: refresh,
		ClinicID:     clinicID,
		CreatedAt:    now,
		ExpiresAt:    refreshExp,
	}
	sctx, cancel := s.storeCtx(ctx)
	err = s.sessions.Put(sctx, user.ID, sess, refreshExp.Sub(now))
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: persist session: %v", ErrUnavailable, err)
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *Service) rotateSession(ctx context.Context, user *User, sess *Session) (*TokenPair, error) {
	now := s.now().UTC()
	access, accessExp, err := s.tokens.IssueAccessToken(user, sess.ClinicID)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.tokens.IssueRefreshToken(user, false)
	if err != nil {
		return nil, err
	}

	sess.RefreshToken = refresh
	sess.ExpiresAt = refreshExp
	sctx, cancel := s.storeCtx(ctx)
	err = s.sessions.Put(sctx, user.ID, *sess, refreshExp.Sub(now))
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: update session: %v", ErrUnavailable, err)
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *Service) findByEmail(ctx context.Context, email string) (*User, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	user, err := s.users.FindByEmail(sctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find user: %v", ErrUnavailable, err)
	}
	return user, nil
}

func (s *Service) findByID(ctx context.Context, id string) (*User, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	user, err := s.users.FindByID(sctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find user: %v", ErrUnavailable, err)
	}
	return user, nil
}

func (s *Service) getSession(ctx context.Context, userID string) (*Session, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	sess, err := s.sessions.Get(sctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load session: %v", ErrUnavailable, err)
	}
	return sess, nil
}

func (s *Service) deleteSession(ctx context.Context, userID string) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.sessions.Delete(sctx, userID); err != nil {
		return fmt.Errorf("%w: delete session: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *Service) emit(ctx context.Context, event string, fields map[string]any, meta RequestMeta) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, event, fields, meta)
}

func attemptKey(ip, email string) string {
	if ip == "" {
		ip = "unknown"
	}
	return "auth_attempts:" + ip + ":" + email
}

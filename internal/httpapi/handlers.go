package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"golang.org/x/time/rate"

	"vetcare.app/internal/auth"
	"vetcare.app/internal/obs"
)

// Pinger is the health surface of an optional cache/session backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks the service's backing stores for the readiness endpoint.
type ReadyProbe struct {
	DB    *sql.DB
	Cache Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Cache != nil {
		return rp.Cache.Ping(ctx)
	}
	return nil
}

// API is the HTTP layer over the authentication service.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	readyProbe ReadyProbe
	version    string
}

func New(authSvc *auth.Service, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		auth:       authSvc,
		readyProbe: rp,
		version:    version,
	}

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReady)

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/switch-clinic", a.handleSwitchClinic)
	a.mux.HandleFunc("/v1/auth/profile", a.handleProfile)

	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler chain.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = obs.Instrument(h)
	h = RateLimit(h, rate.Limit(20), 40)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "vetcare-api",
		"version": a.version,
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, map[string]any{
		"success": true,
		"data":    data,
	})
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrorCode(w, r, code, msg, "")
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, status int, msg, code string) {
	body := map[string]any{
		"success": false,
		"error":   msg,
	}
	if code != "" {
		body["code"] = code
	}
	if rid := requestIDFrom(r); rid != "" {
		body["request_id"] = rid
	}
	writeJSON(w, status, body)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

// authError maps a core error to transport status, message and optional
// machine-readable code. The core never sees HTTP; this is the only place
// the taxonomy meets status codes.
func authError(err error) (status int, msg, code string) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials", ""
	case errors.Is(err, auth.ErrTooManyAttempts):
		return http.StatusTooManyRequests, "too many attempts, please try again later", ""
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "access denied to specified clinic", ""
	case errors.Is(err, auth.ErrClinicRequired):
		return http.StatusBadRequest, "clinic id is required", ""
	case errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, "token expired", "TOKEN_EXPIRED"
	case errors.Is(err, auth.ErrPasswordChanged):
		return http.StatusUnauthorized, "token expired due to password change", "PASSWORD_CHANGED"
	case errors.Is(err, auth.ErrInvalidSession):
		return http.StatusUnauthorized, "invalid session", ""
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid token", ""
	case errors.Is(err, auth.ErrNotFound):
		return http.StatusNotFound, "not found", ""
	case errors.Is(err, auth.ErrUnavailable):
		return http.StatusServiceUnavailable, "service temporarily unavailable", ""
	default:
		return http.StatusInternalServerError, "internal error", ""
	}
}

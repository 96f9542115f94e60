package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"vetcare.app/internal/auth"
	"vetcare.app/internal/obs"
	"vetcare.app/internal/tenant"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/metrics",
	"/healthz",
	"/readyz",
	"/",
}

// withAuth verifies the bearer token on every non-public request, loads the
// principal and derives the tenancy context once so downstream handlers
// never re-check authorization state.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		principal, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			obs.ObserveTokenVerification(verifyResult(err))
			status, msg, code := authError(err)
			writeErrorCode(w, r, status, msg, code)
			return
		}
		obs.ObserveTokenVerification("ok")

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = tenant.WithContext(ctx, tenant.FromPrincipal(principal))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func verifyResult(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return "expired"
	case errors.Is(err, auth.ErrPasswordChanged):
		return "password_changed"
	case errors.Is(err, auth.ErrInvalidToken):
		return "invalid"
	default:
		return "error"
	}
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

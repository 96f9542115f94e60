package httpapi

import (
	"errors"
	"net/http"
	"time"

	"vetcare.app/internal/auth"
	"vetcare.app/internal/obs"
)

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	ClinicID   string `json:"clinic_id,omitempty"`
	RememberMe bool   `json:"remember_me,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type switchClinicRequest struct {
	ClinicID string `json:"clinic_id"`
}

type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

func tokensFromPair(pair auth.TokenPair, now time.Time) tokenPayload {
	return tokenPayload{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int64(pair.AccessExpiresAt.Sub(now).Seconds()),
		TokenType:    "Bearer",
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	result, err := a.auth.Login(r.Context(), auth.LoginRequest{
		Email:      req.Email,
		Password:   req.Password,
		ClinicID:   req.ClinicID,
		RememberMe: req.RememberMe,
		Meta:       requestMeta(r),
	})
	if err != nil {
		obs.ObserveLogin(loginOutcome(err))
		status, msg, code := authError(err)
		writeErrorCode(w, r, status, msg, code)
		return
	}

	obs.ObserveLogin("success")
	writeData(w, http.StatusOK, map[string]any{
		"user":   result.User,
		"tokens": tokensFromPair(result.Tokens, time.Now().UTC()),
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeError(w, r, http.StatusBadRequest, "refresh token is required")
		return
	}

	pair, err := a.auth.Refresh(r.Context(), req.RefreshToken, requestMeta(r))
	if err != nil {
		status, msg, code := authError(err)
		writeErrorCode(w, r, status, msg, code)
		return
	}

	writeData(w, http.StatusOK, map[string]any{
		"tokens": tokensFromPair(*pair, time.Now().UTC()),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := a.auth.Logout(r.Context(), principal.User, requestMeta(r)); err != nil {
		status, msg, code := authError(err)
		writeErrorCode(w, r, status, msg, code)
		return
	}

	writeData(w, http.StatusOK, map[string]any{"message": "logout successful"})
}

func (a *API) handleSwitchClinic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req switchClinicRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.auth.SwitchClinic(r.Context(), principal.User, req.ClinicID, requestMeta(r))
	if err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			obs.ObserveClinicSwitch("denied")
		}
		status, msg, code := authError(err)
		writeErrorCode(w, r, status, msg, code)
		return
	}

	obs.ObserveClinicSwitch("success")
	writeData(w, http.StatusOK, map[string]any{
		"current_clinic_id": result.ClinicID,
		"access_token":      result.AccessToken,
		"expires_in":        int64(time.Until(result.AccessExpiresAt).Seconds()),
	})
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	profile, err := a.auth.Profile(r.Context(), principal.User.ID, principal.ClinicID)
	if err != nil {
		status, msg, code := authError(err)
		writeErrorCode(w, r, status, msg, code)
		return
	}

	writeData(w, http.StatusOK, map[string]any{"user": profile})
}

func loginOutcome(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, auth.ErrTooManyAttempts):
		return "rate_limited"
	case errors.Is(err, auth.ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}

func requestMeta(r *http.Request) auth.RequestMeta {
	return auth.RequestMeta{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: requestIDFrom(r),
	}
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vetcare.app/internal/auth"
	"vetcare.app/internal/store/memory"
)

const testPassword = "correct-horse-battery"

type staticUsers struct {
	user *auth.User
}

func (s *staticUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	if s.user != nil && email == s.user.Email {
		clone := *s.user
		return &clone, nil
	}
	return nil, auth.ErrNotFound
}

func (s *staticUsers) FindByID(_ context.Context, id string) (*auth.User, error) {
	if s.user != nil && id == s.user.ID {
		clone := *s.user
		return &clone, nil
	}
	return nil, auth.ErrNotFound
}

func (s *staticUsers) UpdateLastLogin(context.Context, string, string, time.Time) error {
	return nil
}

func newTestAPI(t *testing.T) (*API, *auth.User) {
	t.Helper()

	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	user := &auth.User{
		ID:             "usr_1",
		OrganizationID: "org_1",
		Email:          "vet@example.com",
		PasswordHash:   hash,
		FirstName:      "Ada",
		LastName:       "Vetson",
		Role:           auth.RoleVeterinarian,
		Status:         auth.UserStatusActive,
		ClinicAccess:   []string{"clinicA", "clinicB"},
		CreatedAt:      time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
	}

	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	issuer, err := auth.NewTokenIssuer("test-secret-test-secret")
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	svc, err := auth.NewService(&staticUsers{user: user}, store, store, issuer)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return New(svc, ReadyProbe{}, "test"), user
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v (%q)", err, rec.Body.String())
	}
	return out
}

func loginTokens(t *testing.T, h http.Handler) (access, refresh string) {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":     "vet@example.com",
		"password":  testPassword,
		"clinic_id": "clinicA",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	data := body["data"].(map[string]any)
	tokens := data["tokens"].(map[string]any)
	return tokens["access_token"].(string), tokens["refresh_token"].(string)
}

func TestLoginEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":     "vet@example.com",
		"password":  testPassword,
		"clinic_id": "clinicA",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Fatalf("success = %v", body["success"])
	}
	data := body["data"].(map[string]any)
	user := data["user"].(map[string]any)
	if user["email"] != "vet@example.com" {
		t.Errorf("user email = %v", user["email"])
	}
	if user["current_clinic_id"] != "clinicA" {
		t.Errorf("current clinic = %v", user["current_clinic_id"])
	}
	if _, ok := user["password_hash"]; ok {
		t.Error("password hash leaked into the response")
	}
	tokens := data["tokens"].(map[string]any)
	if tokens["token_type"] != "Bearer" {
		t.Errorf("token_type = %v", tokens["token_type"])
	}
	if tokens["access_token"] == "" || tokens["refresh_token"] == "" {
		t.Error("missing tokens in response")
	}
}

func TestLoginEndpointRejectsBadCredentials(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    "vet@example.com",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != false {
		t.Error("error response must carry success=false")
	}
	if body["request_id"] == nil {
		t.Error("error response must carry request_id")
	}
}

func TestLoginEndpointValidation(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/auth/login", "", map[string]any{"email": "vet@example.com"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing password: status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/auth/login", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET login: status = %d", rec.Code)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()
	_, refresh := loginTokens(t, h)

	rec := doJSON(t, h, http.MethodPost, "/v1/auth/refresh", "", map[string]any{
		"refresh_token": refresh,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	tokens := body["data"].(map[string]any)["tokens"].(map[string]any)
	if tokens["refresh_token"] == refresh {
		t.Error("refresh must rotate the token")
	}

	// Replaying the consumed token fails.
	rec = doJSON(t, h, http.MethodPost, "/v1/auth/refresh", "", map[string]any{
		"refresh_token": refresh,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("replay status = %d", rec.Code)
	}
}

func TestProfileEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()
	access, _ := loginTokens(t, h)

	rec := doJSON(t, h, http.MethodGet, "/v1/auth/profile", access, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	user := body["data"].(map[string]any)["user"].(map[string]any)
	if user["current_clinic_id"] != "clinicA" {
		t.Errorf("current clinic = %v", user["current_clinic_id"])
	}
}

func TestSwitchClinicEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()
	access, _ := loginTokens(t, h)

	rec := doJSON(t, h, http.MethodPost, "/v1/auth/switch-clinic", access, map[string]any{
		"clinic_id": "clinicB",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	data := body["data"].(map[string]any)
	if data["current_clinic_id"] != "clinicB" {
		t.Errorf("clinic = %v", data["current_clinic_id"])
	}
	newAccess := data["access_token"].(string)

	// The new token carries the new clinic context.
	rec = doJSON(t, h, http.MethodGet, "/v1/auth/profile", newAccess, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("profile status = %d", rec.Code)
	}
	user := decodeBody(t, rec)["data"].(map[string]any)["user"].(map[string]any)
	if user["current_clinic_id"] != "clinicB" {
		t.Errorf("clinic after switch = %v", user["current_clinic_id"])
	}
}

func TestSwitchClinicEndpointDenied(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()
	access, _ := loginTokens(t, h)

	rec := doJSON(t, h, http.MethodPost, "/v1/auth/switch-clinic", access, map[string]any{
		"clinic_id": "clinicZ",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestLogoutEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()
	access, refresh := loginTokens(t, h)

	rec := doJSON(t, h, http.MethodPost, "/v1/auth/logout", access, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	// The refresh token is dead after logout.
	rec = doJSON(t, h, http.MethodPost, "/v1/auth/refresh", "", map[string]any{
		"refresh_token": refresh,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: status = %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	rec := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
}

package httpapi

import (
	"net/http"
	"testing"
)

func TestWithAuthMissingToken(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	rec := doJSON(t, h, http.MethodGet, "/v1/auth/profile", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestWithAuthGarbageToken(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	rec := doJSON(t, h, http.MethodGet, "/v1/auth/profile", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestWithAuthRefreshTokenRejected(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()
	_, refresh := loginTokens(t, h)

	// A refresh token is not an access token.
	rec := doJSON(t, h, http.MethodGet, "/v1/auth/profile", refresh, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestWithAuthPublicPaths(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := doJSON(t, h, http.MethodGet, path, "", nil)
		if rec.Code == http.StatusUnauthorized {
			t.Errorf("%s must not require a token", path)
		}
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"plain", "Bearer abc.def.ghi", "abc.def.ghi", false},
		{"lowercase scheme", "bearer abc", "abc", false},
		{"padded", "  Bearer abc  ", "abc", false},
		{"empty", "", "", true},
		{"wrong scheme", "Basic dXNlcg==", "", true},
		{"scheme only", "Bearer ", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := extractBearerToken(tc.header)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.header)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractBearerToken(%q): %v", tc.header, err)
			}
			if got != tc.want {
				t.Fatalf("token = %q, want %q", got, tc.want)
			}
		})
	}
}

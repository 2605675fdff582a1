package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddlewareNoopUsesBearerToken(t *testing.T) {
	verifier, err := NewVerifier(Config{Mode: ModeNoop})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	var got AuthenticatedUser
	handler := Middleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer learner-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got.UserID != "learner-1" {
		t.Fatalf("expected learner-1, got %q", got.UserID)
	}
}

func TestMiddlewarePrefersForwardedUser(t *testing.T) {
	verifier, _ := NewVerifier(Config{Mode: ModeNoop})

	var got AuthenticatedUser
	handler := Middleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "forwarded")
	req.Header.Set("Authorization", "Bearer ignored")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got.UserID != "forwarded" {
		t.Fatalf("expected forwarded user, got %q", got.UserID)
	}
}

func TestMiddlewareRejectsMalformedHeader(t *testing.T) {
	verifier, _ := NewVerifier(Config{Mode: ModeNoop})
	handler := Middleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	for _, header := range []string{"", "Token abc", "Bearer   "} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
}

func TestNewVerifierUnknownMode(t *testing.T) {
	if _, err := NewVerifier(Config{Mode: "basic"}); err == nil {
		t.Fatal("expected error for unsupported mode")
	}
}

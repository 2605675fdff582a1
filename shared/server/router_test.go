package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/focusnest/progression-service/shared/dto"
)

func TestRouterHealthz(t *testing.T) {
	registered := false
	r := NewRouter("progression-service", func(r chi.Router) {
		registered = true
	})
	if !registered {
		t.Fatal("register callback not invoked")
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body dto.HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Service != "progression-service" || body.Status != "ok" {
		t.Fatalf("unexpected health payload: %+v", body)
	}
}

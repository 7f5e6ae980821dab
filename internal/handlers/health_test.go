package handlers

import (
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/bitsandtea/agent-mrkt/internal/store/jsonstore"
	"github.com/rs/zerolog"
)

func TestHealthAlwaysOK(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	Health(zerolog.Nop())(rec, req)
	if rec.Code != 200 {
		t.Fatalf("want 200, got %d", rec.Code)
	}
}

func TestReadyOKWhenStoreReachable(t *testing.T) {
	st, err := jsonstore.New(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := httptest.NewRequest("GET", "/ready", nil)
	rec := httptest.NewRecorder()
	Ready(st, zerolog.Nop())(rec, req)
	if rec.Code != 200 {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

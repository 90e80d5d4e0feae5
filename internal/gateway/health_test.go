package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealth_NoChecks(t *testing.T) {
	t.Parallel()

	g := &Gateway{health: NewHealthChecks()}

	rr := httptest.NewRecorder()
	g.handleHealth().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestHealth_AllHealthy(t *testing.T) {
	t.Parallel()

	h := NewHealthChecks()
	h.Register("plugins", func(context.Context) error { return nil })
	h.Register("store", func(context.Context) error { return nil })
	g := &Gateway{health: h}

	rr := httptest.NewRecorder()
	g.handleHealth().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want %q", resp.Status, "ok")
	}
	if len(resp.Checks) != 2 || resp.Checks[0].Name != "plugins" || resp.Checks[1].Name != "store" {
		t.Errorf("checks = %+v, want plugins then store", resp.Checks)
	}
}

func TestHealth_Degraded(t *testing.T) {
	t.Parallel()

	h := NewHealthChecks()
	h.Register("plugins", func(context.Context) error { return nil })
	h.Register("store", func(context.Context) error { return errors.New("database is locked") })
	g := &Gateway{health: h}

	rr := httptest.NewRecorder()
	g.handleHealth().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if resp.Checks[1].Healthy || resp.Checks[1].Error != "database is locked" {
		t.Errorf("store check = %+v", resp.Checks[1])
	}
}

func TestHealthChecks_RegisterReplaces(t *testing.T) {
	t.Parallel()

	h := NewHealthChecks()
	h.Register("bot", func(context.Context) error { return errors.New("down") })
	h.Register("bot", func(context.Context) error { return nil })

	got := h.Run(context.Background())
	if len(got) != 1 || !got[0].Healthy {
		t.Errorf("Run = %+v, want single healthy check", got)
	}
}

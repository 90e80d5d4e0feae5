package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// HealthServiceName is the service registry key of the HealthChecks.
const HealthServiceName = "gateway.health"

const checkTimeout = 3 * time.Second

// CheckFunc reports a component's health; nil means healthy.
type CheckFunc func(ctx context.Context) error

// HealthChecks is a registry of named checks that other modules populate
// at Start.
type HealthChecks struct {
	mu     sync.RWMutex
	names  []string
	checks map[string]CheckFunc
}

// NewHealthChecks returns an empty registry.
func NewHealthChecks() *HealthChecks {
	return &HealthChecks{checks: make(map[string]CheckFunc)}
}

// Register adds or replaces the check under name.
func (h *HealthChecks) Register(name string, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.checks[name]; !ok {
		h.names = append(h.names, name)
	}
	h.checks[name] = fn
}

// CheckResult is one check outcome.
type CheckResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Run executes every check in registration order.
func (h *HealthChecks) Run(ctx context.Context) []CheckResult {
	h.mu.RLock()
	names := append([]string(nil), h.names...)
	checks := make([]CheckFunc, len(names))
	for i, n := range names {
		checks[i] = h.checks[n]
	}
	h.mu.RUnlock()

	out := make([]CheckResult, len(names))
	for i, fn := range checks {
		out[i] = CheckResult{Name: names[i], Healthy: true}
		if err := runCheck(ctx, fn); err != nil {
			out[i].Healthy = false
			out[i].Error = err.Error()
		}
	}
	return out
}

func runCheck(ctx context.Context, fn CheckFunc) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return fn(ctx)
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status string        `json:"status"` // "ok" or "degraded"
	Uptime float64       `json:"uptime_seconds"`
	Checks []CheckResult `json:"checks"`
}

// handleHealth returns 200 when every check passes, 503 otherwise.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status: "ok",
			Uptime: time.Since(g.startedAt).Truncate(time.Second).Seconds(),
			Checks: g.health.Run(r.Context()),
		}
		code := http.StatusOK
		for _, c := range resp.Checks {
			if !c.Healthy {
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, code, resp)
	}
}

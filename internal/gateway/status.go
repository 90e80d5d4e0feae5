package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/warden/internal/metrics"
	"github.com/flemzord/warden/internal/plugin"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime   float64          `json:"uptime_seconds"`
	Metrics  metrics.Snapshot `json:"metrics"`
	Plugins  []plugin.Status  `json:"plugins"`
	Webhooks []string         `json:"webhooks"`
	Checks   []CheckResult    `json:"checks"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Uptime:   time.Since(g.startedAt).Truncate(time.Second).Seconds(),
			Metrics:  g.metrics.Snapshot(),
			Plugins:  []plugin.Status{},
			Webhooks: g.dispatcher.Sources(),
			Checks:   g.health.Run(r.Context()),
		}
		if admin, ok := g.pluginAdmin(); ok {
			resp.Plugins = admin.PluginStatus()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

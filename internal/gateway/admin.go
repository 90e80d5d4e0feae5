// Package gateway provides an HTTP server for administration, monitoring,
// and webhooks. It binds to loopback by default and follows the module system pattern.
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flemzord/warden/internal/config"
	"github.com/flemzord/warden/internal/core"
	"github.com/flemzord/warden/internal/plugin"
	"github.com/flemzord/warden/internal/security"
	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"
)

// moduleJSON is a serializable module info snapshot.
type moduleJSON struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// handleGetAllModules lists all compiled modules (for /api/modules).
func (g *Gateway) handleGetAllModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		mods := core.GetModules()
		out := make([]moduleJSON, 0, len(mods))
		for _, m := range mods {
			out = append(out, moduleJSON{
				ID:        string(m.ID),
				Namespace: m.ID.Namespace(),
				Name:      m.ID.Name(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleListPlugins lists loaded plugins with their state.
func (g *Gateway) handleListPlugins() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		admin, ok := g.pluginAdmin()
		if !ok {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "bot not running"})
			return
		}
		writeJSON(w, http.StatusOK, admin.PluginStatus())
	}
}

// handleTogglePlugin serves POST /api/plugins/{name}/enable|disable.
func (g *Gateway) handleTogglePlugin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		action := chi.URLParam(r, "action")
		if action != "enable" && action != "disable" {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown action " + action})
			return
		}

		admin, ok := g.pluginAdmin()
		if !ok {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "bot not running"})
			return
		}

		err := admin.SetPluginEnabled(r.Context(), name, action == "enable")
		switch {
		case errors.Is(err, plugin.ErrPluginNotFound):
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
			return
		case err != nil:
			g.logger.Error("plugin toggle failed", "plugin", name, "action", action, "error", err)
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}

		g.audit.Log(security.AuditEvent{
			Type:     security.EventPluginToggle,
			Source:   "admin",
			Detail:   action,
			Metadata: map[string]string{"plugin": name, "operator": Operator(r.Context())},
		})
		writeJSON(w, http.StatusOK, map[string]string{"plugin": name, "status": action + "d"})
	}
}

// handleGetConfig returns the current config file with secrets redacted.
func (g *Gateway) handleGetConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		cfgPath := g.configPath()
		if cfgPath == "" {
			http.Error(w, "config path not set", http.StatusServiceUnavailable)
			return
		}

		cfg, err := config.Load(cfgPath)
		if err != nil {
			http.Error(w, "failed to load config", http.StatusInternalServerError)
			return
		}

		generic, err := toGeneric(cfg)
		if err != nil {
			http.Error(w, "failed to serialize config", http.StatusInternalServerError)
			return
		}

		g.redactor.RedactMap(generic)
		writeJSON(w, http.StatusOK, generic)
	}
}

// toGeneric round-trips cfg through YAML so module nodes become plain maps.
func toGeneric(cfg *config.Config) (map[string]any, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return generic, nil
}

// handleReloadConfig validates the config file and, when a reload handler
// is registered, applies it to the running modules.
func (g *Gateway) handleReloadConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfgPath := g.configPath()
		if cfgPath == "" {
			http.Error(w, "config path not set", http.StatusServiceUnavailable)
			return
		}

		if reloader, ok := core.ServiceAs[ConfigReloader](g.appCtx, ReloadServiceName); ok {
			if err := reloader.HandleReload(r.Context(), cfgPath); err != nil {
				g.logger.Error("config reload failed", "error", err)
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
			return
		}

		cfg, err := config.Load(cfgPath)
		if err == nil {
			err = config.Validate(cfg)
		}
		if err != nil {
			g.logger.Error("config validation failed on reload", "error", err)
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "validated"})
	}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

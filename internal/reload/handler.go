package reload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flemzord/warden/internal/config"
	"github.com/flemzord/warden/internal/core"
	"github.com/flemzord/warden/internal/security"
)

// ServiceName is the service registry key of the Handler.
const ServiceName = "reload.handler"

// Handler reloads application configuration and notifies modules.
type Handler struct {
	app    *core.App
	root   *core.AppContext
	logger *slog.Logger
	audit  *security.AuditLogger
}

// NewHandler creates a reload handler. Fresh module contexts share the
// service registry of root, so reloaded modules still resolve the stores
// and dispatchers registered at startup. audit may be nil.
func NewHandler(app *core.App, root *core.AppContext, audit *security.AuditLogger) *Handler {
	return &Handler{
		app:    app,
		root:   root,
		logger: root.Logger,
		audit:  audit,
	}
}

// HandleReload loads a fresh config from disk, validates it, and calls Reload
// on all modules that implement core.Reloader.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return h.handleReload(ctx, configPath, cfg)
}

// HandleReloadFromConfig reloads modules from a pre-loaded, already-validated
// config. It does not re-validate.
func (h *Handler) HandleReloadFromConfig(ctx context.Context, cfg *config.Config) error {
	return h.handleReload(ctx, "", cfg)
}

func (h *Handler) handleReload(ctx context.Context, path string, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}

	appCtx := core.NewAppContext(h.logger, h.root.DataDir).
		WithServicesFrom(h.root).
		WithModuleConfigs(cfg.Modules)

	if err := h.app.ReloadModules(appCtx); err != nil {
		h.record(path, "failed: "+err.Error())
		return fmt.Errorf("reloading modules: %w", err)
	}

	h.record(path, "reloaded")
	h.logger.Info("configuration reloaded successfully")
	return nil
}

func (h *Handler) record(path, detail string) {
	h.audit.Log(security.AuditEvent{
		Type:     security.EventConfigChange,
		Source:   "reload",
		Detail:   detail,
		Metadata: map[string]string{"path": path},
	})
}

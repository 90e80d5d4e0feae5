package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flemzord/warden/internal/core"
	"github.com/flemzord/warden/internal/event"
	"github.com/flemzord/warden/internal/metrics"
	"github.com/flemzord/warden/internal/plugin"
	"github.com/flemzord/warden/internal/security"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Service registry keys resolved or exposed by the gateway.
const (
	MetricsServiceName    = "gateway.metrics"
	PluginsServiceName    = "bot.plugins"
	EventsServiceName     = "bot.events"
	ConfigPathServiceName = "config.path"
	ReloadServiceName     = "reload.handler"
)

// PluginAdmin is the plugin control surface behind /api/plugins.
type PluginAdmin interface {
	PluginStatus() []plugin.Status
	SetPluginEnabled(ctx context.Context, name string, enabled bool) error
}

// EventSource is the bus streamed by /api/events.
type EventSource interface {
	SubscribeAll(h event.Handler) (unsubscribe func())
}

// ConfigReloader applies a configuration file to the running modules.
type ConfigReloader interface {
	HandleReload(ctx context.Context, configPath string) error
}

// Gateway is the HTTP gateway module. It exposes health, metrics, admin and
// webhook endpoints. It is a leaf module: nothing imports it, other modules
// reach it through the service registry.
type Gateway struct {
	config     Config
	appCtx     *core.AppContext
	logger     *slog.Logger
	server     *http.Server
	metrics    *metrics.Metrics
	dispatcher *WebhookDispatcher
	health     *HealthChecks
	redactor   *security.Redactor
	audit      *security.AuditLogger
	limiter    *security.RateLimiter
	startedAt  time.Time
}

// Compile-time interface guards.
var (
	_ core.Module       = (*Gateway)(nil)
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner. Services are registered here so
// modules resolving them at Start always find them.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.metrics = metrics.New()
	g.health = NewHealthChecks()

	g.redactor, _ = core.ServiceAs[*security.Redactor](ctx, security.RedactorService)
	if g.redactor == nil {
		g.redactor = security.NewRedactor()
	}
	g.audit, _ = core.ServiceAs[*security.AuditLogger](ctx, security.AuditService)
	g.limiter, _ = core.ServiceAs[*security.RateLimiter](ctx, security.RateLimiterService)
	if g.audit != nil {
		g.health.Register("audit_log", func(context.Context) error {
			if n := g.audit.WriteErrors(); n > 0 {
				return fmt.Errorf("%d audit events could not be written", n)
			}
			return nil
		})
	}

	g.dispatcher = NewWebhookDispatcher(g.logger,
		WithMaxBody(g.config.MaxBodyBytes),
		WithRateLimiter(g.limiter),
		WithAudit(g.audit),
		WithMetrics(g.metrics),
	)

	for source, cfg := range g.config.Webhooks {
		g.redactor.AddLiteral(cfg.Secret)
		g.logger.Info("webhook source configured", "source", source)
	}
	g.redactor.AddLiteral(g.config.Auth.BearerToken)
	g.redactor.AddLiteral(g.config.Auth.BasicPass)

	ctx.RegisterService(MetricsServiceName, g.metrics)
	ctx.RegisterService(DispatcherServiceName, g.dispatcher)
	ctx.RegisterService(HealthServiceName, g.health)
	return nil
}

// WebhookSecret returns the configured secret for source, if any.
// Modules registering a webhook handler use it when their own config
// leaves the secret empty.
func (g *Gateway) WebhookSecret(source string) string {
	return g.config.Webhooks[source].Secret
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	return g.config.validate()
}

// Start implements core.Starter. It binds the listener synchronously so a
// port conflict fails startup, then serves in the background.
func (g *Gateway) Start() error {
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", g.config.Bind, err)
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}

func (g *Gateway) pluginAdmin() (PluginAdmin, bool) {
	return core.ServiceAs[PluginAdmin](g.appCtx, PluginsServiceName)
}

func (g *Gateway) eventSource() (EventSource, bool) {
	return core.ServiceAs[EventSource](g.appCtx, EventsServiceName)
}

func (g *Gateway) configPath() string {
	path, _ := core.ServiceAs[string](g.appCtx, ConfigPathServiceName)
	return path
}

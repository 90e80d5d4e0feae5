package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flemzord/warden/internal/bot"
	"github.com/flemzord/warden/internal/core"
	"github.com/flemzord/warden/internal/cron"
	"github.com/flemzord/warden/internal/event"
	"github.com/flemzord/warden/internal/gateway"
	"github.com/flemzord/warden/internal/guard"
	"github.com/flemzord/warden/internal/metrics"
	"github.com/flemzord/warden/internal/plugin/builtin"
	"github.com/flemzord/warden/internal/security"
	"github.com/flemzord/warden/internal/verify"
	"gopkg.in/yaml.v3"
)

// StoreServiceName is the default durable store service.
const StoreServiceName = "verify.store"

const startupTimeout = 30 * time.Second

func init() {
	core.RegisterModule(&Telegram{})
}

// Compile-time interface guards.
var (
	_ core.Module         = (*Telegram)(nil)
	_ core.Configurable   = (*Telegram)(nil)
	_ core.RequiresConfig = (*Telegram)(nil)
	_ core.Provisioner    = (*Telegram)(nil)
	_ core.Validator      = (*Telegram)(nil)
	_ core.Starter        = (*Telegram)(nil)
	_ core.Stopper        = (*Telegram)(nil)
	_ core.Reloader       = (*Telegram)(nil)
)

// Telegram is the bot module: it owns the Telegram client, the
// verification engine and the update router.
type Telegram struct {
	mu     sync.Mutex
	config Config
	appCtx *core.AppContext
	logger *slog.Logger

	client *Client
	guard  *guard.Guard
	bus    *event.Bus

	store     verify.Store
	ownStore  bool
	engine    *verify.Engine
	router    *bot.Router
	scheduler *cron.Scheduler
	poller    *Poller
	webhook   *WebhookReceiver

	runCtx           context.Context
	cancel           context.CancelFunc
	unsubscribeAudit func()
}

// ModuleInfo implements core.Module.
func (t *Telegram) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "channel.telegram",
		New: func() core.Module { return &Telegram{} },
	}
}

// RequiresConfig implements core.RequiresConfig: the bot needs a token.
func (t *Telegram) RequiresConfig() {}

// Configure implements core.Configurable.
func (t *Telegram) Configure(node *yaml.Node) error {
	if err := node.Decode(&t.config); err != nil {
		return fmt.Errorf("telegram: decode config: %w", err)
	}
	t.config.defaults()
	return nil
}

// Provision implements core.Provisioner. The event bus is registered here
// so modules starting later can subscribe or emit.
func (t *Telegram) Provision(ctx *core.AppContext) error {
	t.config.defaults()
	t.appCtx = ctx
	t.logger = ctx.Logger

	client, err := NewClient(t.config.Token, t.config.APIURL)
	if err != nil {
		return err
	}
	t.client = client
	t.guard = guard.New(t.config.guardConfig())
	t.bus = event.NewBus(t.logger.With("component", "events"))

	if redactor, ok := core.ServiceAs[*security.Redactor](ctx, security.RedactorService); ok {
		redactor.AddLiteral(t.config.Token)
		redactor.AddLiteral(t.config.WebhookSecret)
	}

	ctx.RegisterService(gateway.EventsServiceName, t.bus)
	return nil
}

// Validate implements core.Validator.
func (t *Telegram) Validate() error {
	return t.config.validate()
}

// Start implements core.Starter. It checks the token, wires the bot and
// starts update delivery in the configured mode.
func (t *Telegram) Start() error {
	t.runCtx, t.cancel = context.WithCancel(context.Background())

	ctx, cancel := context.WithTimeout(t.runCtx, startupTimeout)
	defer cancel()

	me, err := t.client.GetMe(ctx)
	if err != nil {
		t.cancel()
		return fmt.Errorf("telegram: getMe failed (check token): %w", err)
	}
	t.logger.Info("telegram bot authenticated", "id", me.ID, "username", me.Username)

	if err := t.resolveStore(); err != nil {
		t.cancel()
		return err
	}

	m, _ := core.ServiceAs[*metrics.Metrics](t.appCtx, gateway.MetricsServiceName)

	t.engine = verify.NewEngine(verify.Options{
		Client:   t.client,
		Store:    t.store,
		Events:   t.bus,
		Metrics:  m,
		Logger:   t.logger.With("component", "verify"),
		Timeout:  t.config.Verification.Timeout,
		Detached: func() context.Context { return t.runCtx },
	})
	t.router = bot.NewRouter(bot.Options{
		Client:  t.client,
		Engine:  t.engine,
		Guard:   t.guard,
		Bus:     t.bus,
		Metrics: m,
		Logger:  t.logger,
	})

	if err := t.router.LoadPlugins(ctx, builtin.Catalog(), t.config.Plugins); err != nil {
		t.logger.Error("some plugins failed to load", "error", err)
	}
	if _, err := t.router.SyncCommands(ctx); err != nil {
		t.logger.Warn("command menu sync failed", "error", err)
	}

	if err := t.startScheduler(); err != nil {
		t.shutdown(context.Background())
		return err
	}

	t.appCtx.RegisterService(gateway.PluginsServiceName, t.router)
	t.registerHealthChecks()
	t.auditKicks()

	switch t.config.Mode {
	case ModePolling:
		t.poller = NewPoller(t.runCtx, t.client.Bot(), t.router, t.logger, t.config)
		if err := t.poller.Start(); err != nil {
			t.shutdown(context.Background())
			return fmt.Errorf("telegram: start polling: %w", err)
		}
		t.logger.Info("telegram polling started", "timeout", t.config.PollingTimeout)

	case ModeWebhook:
		if err := t.startWebhook(ctx); err != nil {
			t.shutdown(context.Background())
			return err
		}
	}

	return nil
}

// resolveStore picks the verification store named by the configuration.
func (t *Telegram) resolveStore() error {
	name := t.config.Verification.Store
	if name == StoreMemory {
		t.useMemoryStore()
		return nil
	}
	if name == "" {
		name = StoreServiceName
	}

	store, ok := core.ServiceAs[verify.Store](t.appCtx, name)
	switch {
	case ok:
		t.store = store
		t.logger.Info("verification store resolved", "service", name)
	case t.config.Verification.Store == "":
		t.useMemoryStore()
	default:
		return fmt.Errorf("telegram: verification store service %q not found (is the store module loaded?)", name)
	}
	return nil
}

func (t *Telegram) useMemoryStore() {
	t.store = verify.NewMemoryStore()
	t.ownStore = true
	t.logger.Info("using in-memory verification store")
}

func (t *Telegram) startScheduler() error {
	t.scheduler = cron.NewScheduler(t.logger.With("component", "cron"))
	jobs := []cron.Job{
		&cron.VerificationSweepJob{
			Sweeper:      t.engine,
			Logger:       t.logger,
			ScheduleExpr: t.config.SweepSchedule,
		},
		&cron.CommandSyncJob{
			Syncer:       t.router,
			Logger:       t.logger,
			ScheduleExpr: t.config.CommandSyncSchedule,
		},
	}
	for _, j := range jobs {
		if err := t.scheduler.RegisterJob(j); err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
	}
	return t.scheduler.Start()
}

// startWebhook registers the receiver with the gateway and points
// Telegram at the public URL.
func (t *Telegram) startWebhook(ctx context.Context) error {
	dispatcher, ok := core.ServiceAs[*gateway.WebhookDispatcher](t.appCtx, gateway.DispatcherServiceName)
	if !ok {
		return errors.New("telegram: gateway.webhook_dispatcher service not found (is the gateway module loaded?)")
	}

	if t.config.WebhookSecret == "" {
		t.logger.Warn("telegram webhook running without secret token; set webhook_secret in production")
	}
	t.webhook = NewWebhookReceiver(t.runCtx, t.router, t.logger, t.config.WebhookSecret)

	// Telegram authenticates with its own header, not an HMAC signature.
	dispatcher.Register(WebhookSource, t.webhook, "")

	if err := t.client.SetWebhook(ctx, t.config.WebhookURL, t.config.WebhookSecret, t.config.AllowedUpdates); err != nil {
		dispatcher.Unregister(WebhookSource)
		return err
	}
	t.logger.Info("telegram webhook configured", "url", t.config.WebhookURL)
	return nil
}

func (t *Telegram) registerHealthChecks() {
	health, ok := core.ServiceAs[*gateway.HealthChecks](t.appCtx, gateway.HealthServiceName)
	if !ok {
		return
	}
	health.Register("plugins", func(context.Context) error {
		if !t.router.Plugins().IsHealthy() {
			return errors.New("no plugins loaded")
		}
		return nil
	})
	health.Register("bot", func(ctx context.Context) error {
		_, err := t.client.GetMe(ctx)
		return err
	})
	if pinger, ok := t.store.(interface{ Ping(context.Context) error }); ok {
		health.Register("store", pinger.Ping)
	}
	health.Register("command_sync", func(context.Context) error {
		last, ok := t.scheduler.LastRun((&cron.CommandSyncJob{}).Name())
		if !ok {
			return nil
		}
		return last.Err
	})
}

// auditKicks records every failed verification, which always ends in a
// kick attempt, in the audit log.
func (t *Telegram) auditKicks() {
	audit, ok := core.ServiceAs[*security.AuditLogger](t.appCtx, security.AuditService)
	if !ok {
		return
	}
	t.unsubscribeAudit = t.bus.Subscribe(event.VerificationCompleted, func(_ context.Context, ev event.Event) error {
		data := ev.Data
		if success, _ := data["success"].(bool); success {
			return nil
		}
		reason, _ := data["reason"].(string)
		audit.Log(security.AuditEvent{
			Type:     security.EventMemberKicked,
			Source:   "verification",
			ChatID:   fmt.Sprint(data["chatId"]),
			SenderID: fmt.Sprint(data["userId"]),
			Detail:   reason,
		})
		return nil
	})
}

// Stop implements core.Stopper.
func (t *Telegram) Stop(ctx context.Context) error {
	if t.logger != nil {
		t.logger.Info("telegram bot stopping")
	}
	t.shutdown(ctx)
	return nil
}

func (t *Telegram) shutdown(ctx context.Context) {
	if t.poller != nil {
		t.poller.Stop()
	}
	if t.webhook != nil {
		if dispatcher, ok := core.ServiceAs[*gateway.WebhookDispatcher](t.appCtx, gateway.DispatcherServiceName); ok {
			dispatcher.Unregister(WebhookSource)
		}
		if err := t.client.DeleteWebhook(ctx); err != nil {
			t.logger.Warn("telegram: failed to delete webhook on shutdown", "error", err)
		}
	}
	if t.scheduler != nil {
		_ = t.scheduler.Stop(ctx)
	}
	if t.unsubscribeAudit != nil {
		t.unsubscribeAudit()
	}
	if t.router != nil {
		if err := t.router.Plugins().Stop(ctx); err != nil {
			t.logger.Warn("stopping plugins", "error", err)
		}
	}
	if t.cancel != nil {
		t.cancel()
	}
	if t.ownStore && t.store != nil {
		_ = t.store.Close()
	}
}

// Reload implements core.Reloader. Whitelist, admin users and the
// verification timeout apply immediately; other fields need a restart.
func (t *Telegram) Reload(ctx *core.AppContext) error {
	node, ok := ctx.ModuleConfig(t.ModuleInfo().ID)
	if !ok {
		return errors.New("telegram: configuration removed, restart required")
	}

	var cfg Config
	if err := node.Decode(&cfg); err != nil {
		return fmt.Errorf("telegram: decode config: %w", err)
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if cfg.Token != t.config.Token || cfg.Mode != t.config.Mode || cfg.WebhookURL != t.config.WebhookURL {
		ctx.Logger.Warn("telegram connection settings changed, restart required to apply")
	}

	t.guard.Update(cfg.guardConfig())
	if t.engine != nil {
		t.engine.SetTimeout(cfg.Verification.Timeout)
	}

	t.config.Whitelist = cfg.Whitelist
	t.config.AdminUsers = cfg.AdminUsers
	t.config.Verification.Timeout = cfg.Verification.Timeout

	ctx.Logger.Info("telegram configuration reloaded",
		"whitelist", cfg.Whitelist.Enabled,
		"groups", len(cfg.Whitelist.Groups),
		"admins", len(cfg.AdminUsers),
		"timeout", cfg.Verification.Timeout,
	)
	return nil
}

// Router returns the update router, available after Start.
func (t *Telegram) Router() *bot.Router { return t.router }

// Package github relays build commands left in pull request comments to
// a GitHub Actions workflow.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flemzord/warden/internal/core"
	"github.com/flemzord/warden/internal/event"
	"github.com/flemzord/warden/internal/gateway"
	"github.com/flemzord/warden/internal/security"
	"gopkg.in/yaml.v3"
)

// Source is the webhook source name, served at /webhook/github.
const Source = "github"

func init() {
	core.RegisterModule(&Relay{})
}

// Compile-time interface guards.
var (
	_ core.Module            = (*Relay)(nil)
	_ core.Configurable      = (*Relay)(nil)
	_ core.Provisioner       = (*Relay)(nil)
	_ core.Validator         = (*Relay)(nil)
	_ core.Starter           = (*Relay)(nil)
	_ core.Stopper           = (*Relay)(nil)
	_ core.Reloader          = (*Relay)(nil)
	_ gateway.WebhookHandler = (*Handler)(nil)
	_ gateway.StatusError    = (*CommandError)(nil)
)

// Relay is the relay.github module.
type Relay struct {
	config  Config
	appCtx  *core.AppContext
	logger  *slog.Logger
	handler *Handler
}

// ModuleInfo implements core.Module.
func (r *Relay) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "relay.github",
		New: func() core.Module { return &Relay{} },
	}
}

// Configure implements core.Configurable.
func (r *Relay) Configure(node *yaml.Node) error {
	if err := node.Decode(&r.config); err != nil {
		return fmt.Errorf("github: decode config: %w", err)
	}
	r.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (r *Relay) Provision(ctx *core.AppContext) error {
	r.config.defaults()
	r.appCtx = ctx
	r.logger = ctx.Logger

	if redactor, ok := core.ServiceAs[*security.Redactor](ctx, security.RedactorService); ok {
		redactor.AddLiteral(r.config.Token)
		redactor.AddLiteral(r.config.Secret)
	}
	return nil
}

// Validate implements core.Validator.
func (r *Relay) Validate() error {
	if err := r.config.validate(); err != nil {
		return err
	}
	if r.config.Secret == "" {
		r.logger.Warn("github webhook secret is empty, deliveries are not authenticated")
	}
	return nil
}

// Start implements core.Starter. The bot's event bus is optional.
func (r *Relay) Start() error {
	dispatcher, ok := core.ServiceAs[*gateway.WebhookDispatcher](r.appCtx, gateway.DispatcherServiceName)
	if !ok {
		return errors.New("github: gateway webhook_dispatcher service not available, enable gateway.http")
	}

	events, ok := core.ServiceAs[event.Emitter](r.appCtx, gateway.EventsServiceName)
	if !ok {
		events = event.Discard
	}

	r.handler = NewHandler(r.config, NewWorkflowClient(r.config), events, r.logger)
	dispatcher.Register(Source, r.handler, r.config.Secret)

	r.logger.Info("github relay started",
		"mention", r.config.Mention,
		"workflow", r.config.Workflow.Owner+"/"+r.config.Workflow.Repo+"/"+r.config.Workflow.File,
		"allowed_senders", len(r.config.AllowedSenders),
	)
	return nil
}

// Stop implements core.Stopper.
func (r *Relay) Stop(context.Context) error {
	if dispatcher, ok := core.ServiceAs[*gateway.WebhookDispatcher](r.appCtx, gateway.DispatcherServiceName); ok {
		dispatcher.Unregister(Source)
	}
	return nil
}

// Reload implements core.Reloader. The mention and allowed senders apply
// immediately; API settings need a restart.
func (r *Relay) Reload(ctx *core.AppContext) error {
	node, ok := ctx.ModuleConfig(r.ModuleInfo().ID)
	if !ok {
		return errors.New("github: configuration removed, restart required")
	}

	var cfg Config
	if err := node.Decode(&cfg); err != nil {
		return fmt.Errorf("github: decode config: %w", err)
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return err
	}

	if cfg.Token != r.config.Token || cfg.Secret != r.config.Secret ||
		cfg.APIURL != r.config.APIURL || cfg.Workflow != r.config.Workflow {
		ctx.Logger.Warn("github api settings changed, restart required to apply")
	}

	r.config.Mention = cfg.Mention
	r.config.AllowedSenders = cfg.AllowedSenders
	if r.handler != nil {
		r.handler.Update(r.config)
	}

	ctx.Logger.Info("github relay configuration reloaded",
		"mention", cfg.Mention, "allowed_senders", len(cfg.AllowedSenders))
	return nil
}

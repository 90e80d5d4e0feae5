// Package bot routes platform updates to the verification engine, the
// plugin manager and the command registry, and converts handler errors
// into chat replies at a single boundary.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flemzord/warden/internal/command"
	"github.com/flemzord/warden/internal/event"
	"github.com/flemzord/warden/internal/guard"
	"github.com/flemzord/warden/internal/metrics"
	"github.com/flemzord/warden/internal/platform"
	"github.com/flemzord/warden/internal/plugin"
	"github.com/flemzord/warden/internal/verify"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GenericErrorText is sent for any failure that is not an authorization error.
const GenericErrorText = "❗️ 命令执行失败，请联系管理员。"

var tracer = otel.Tracer("github.com/flemzord/warden/internal/bot")

// Options wires a Router. Client, Engine and Guard are required.
type Options struct {
	Client  platform.Client
	Engine  *verify.Engine
	Guard   *guard.Guard
	Bus     *event.Bus
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Router is the update entry point shared by polling and webhook delivery.
// It is safe for concurrent use.
type Router struct {
	client   platform.Client
	engine   *verify.Engine
	guard    *guard.Guard
	registry *command.Registry
	plugins  *plugin.Manager
	bus      *event.Bus
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewRouter builds a Router with the built-in commands registered and an
// empty plugin manager.
func NewRouter(opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bus := opts.Bus
	if bus == nil {
		bus = event.NewBus(logger)
	}

	r := &Router{
		client:   opts.Client,
		engine:   opts.Engine,
		guard:    opts.Guard,
		registry: command.NewRegistry(opts.Guard, logger.With("component", "commands")),
		bus:      bus,
		metrics:  opts.Metrics,
		logger:   logger.With("component", "router"),
	}
	r.plugins = plugin.NewManager(plugin.Deps{
		Client:   opts.Client,
		Bus:      bus,
		Logger:   logger,
		Commands: r.Commands,
	})
	r.registerBuiltins()
	return r
}

// Registry returns the command registry.
func (r *Router) Registry() *command.Registry { return r.registry }

// Plugins returns the plugin manager.
func (r *Router) Plugins() *plugin.Manager { return r.plugins }

// Bus returns the event bus.
func (r *Router) Bus() *event.Bus { return r.bus }

// Engine returns the verification engine.
func (r *Router) Engine() *verify.Engine { return r.engine }

// LoadPlugins instantiates and enables the named plugins from catalog.
// Failures are joined; the remaining plugins are still loaded.
func (r *Router) LoadPlugins(ctx context.Context, catalog plugin.Catalog, names []string) error {
	var errs []error
	for _, name := range names {
		p, err := catalog.New(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := r.plugins.Load(ctx, p); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := r.plugins.Enable(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleMessage routes an inbound message. Joins go to the verification
// engine; commands go to plugins first, then to the registry; other text
// goes to plugin message handlers.
func (r *Router) HandleMessage(ctx context.Context, msg platform.Message) {
	ctx, span := tracer.Start(ctx, "bot.HandleMessage", trace.WithAttributes(
		attribute.Int64("chat.id", msg.Chat.ID),
		attribute.Int64("user.id", msg.From.ID),
	))
	defer span.End()
	defer r.recoverTo(ctx, msg.Chat.ID)

	if join, ok := msg.JoinEvent(); ok {
		r.metrics.RecordUpdate("join")
		r.engine.HandleJoin(ctx, join.ChatID, join.Members)
		return
	}
	if msg.Text == "" {
		return
	}

	r.metrics.RecordUpdate("message")
	r.bus.Emit(ctx, event.MessageReceived, map[string]any{
		"userId": msg.From.ID,
		"chatId": msg.Chat.ID,
		"text":   msg.Text,
	})

	if !command.IsCommand(msg.Text) {
		r.plugins.HandleMessage(ctx, msg)
		return
	}

	cmd := command.Normalize(msg.Text)
	span.SetAttributes(attribute.String("command", cmd))

	if r.plugins.ExecuteCommand(ctx, cmd, msg) {
		r.metrics.RecordCommand(cmd, "plugin")
		return
	}

	handled, err := r.registry.Execute(ctx, r.client, msg)
	if err != nil {
		span.RecordError(err)
		r.HandleError(ctx, msg.Chat.ID, err)
		return
	}
	if handled {
		r.metrics.RecordCommand(cmd, "builtin")
		r.bus.Emit(ctx, event.CommandExecuted, map[string]any{
			"command": cmd,
			"userId":  msg.From.ID,
			"chatId":  msg.Chat.ID,
		})
	}
}

// HandleCallback routes a button press to the verification engine, then
// to plugins.
func (r *Router) HandleCallback(ctx context.Context, cb platform.Callback) {
	ctx, span := tracer.Start(ctx, "bot.HandleCallback", trace.WithAttributes(
		attribute.Int64("user.id", cb.From.ID),
	))
	defer span.End()
	defer r.recoverTo(ctx, cb.ChatID)

	r.metrics.RecordUpdate("callback")
	if r.engine.HandleAnswer(ctx, cb) {
		return
	}
	if !r.plugins.HandleCallbackQuery(ctx, cb) {
		r.logger.Debug("unhandled callback", "data", cb.Data, "user_id", cb.From.ID)
	}
}

// HandleError is the update boundary. An authorization error is answered
// with its own text in its own chat; anything else gets the generic reply
// in chatID.
func (r *Router) HandleError(ctx context.Context, chatID int64, err error) {
	text := GenericErrorText
	kind := "internal"

	var authErr *guard.AuthorizationError
	if errors.As(err, &authErr) {
		text = authErr.Error()
		kind = "authorization"
		if authErr.ChatID != 0 {
			chatID = authErr.ChatID
		}
		r.logger.Warn("authorization denied", "chat_id", chatID, "reason", string(authErr.Reason))
	} else {
		r.logger.Error("update handling failed", "chat_id", chatID, "error", err)
	}

	r.metrics.RecordError(kind)
	r.bus.Emit(ctx, event.ErrorOccurred, map[string]any{
		"error":  err.Error(),
		"kind":   kind,
		"chatId": chatID,
	})

	if chatID == 0 {
		return
	}
	if _, sendErr := r.client.SendMessage(ctx, chatID, text, nil); sendErr != nil {
		r.logger.Error("error reply failed", "chat_id", chatID, "error", sendErr)
	}
}

func (r *Router) recoverTo(ctx context.Context, chatID int64) {
	if rec := recover(); rec != nil {
		r.HandleError(ctx, chatID, fmt.Errorf("bot: panic: %v", rec))
	}
}

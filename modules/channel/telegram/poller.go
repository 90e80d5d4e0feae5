package telegram

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

// Poller receives updates by long polling through the gotgbot updater.
// Each update is handled on its own dispatcher goroutine.
type Poller struct {
	bot      *gotgbot.Bot
	handler  UpdateHandler
	logger   *slog.Logger
	config   Config
	ctx      context.Context
	updater  *ext.Updater
	stopOnce sync.Once
}

// NewPoller creates a Poller. ctx is handed to every routed update and
// should be cancelled after Stop.
func NewPoller(ctx context.Context, b *gotgbot.Bot, handler UpdateHandler, logger *slog.Logger, config Config) *Poller {
	return &Poller{
		bot:     b,
		handler: handler,
		logger:  logger,
		config:  config,
		ctx:     ctx,
	}
}

// Start begins polling in the background.
func (p *Poller) Start() error {
	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		Error: func(_ *gotgbot.Bot, _ *ext.Context, err error) ext.DispatcherAction {
			p.logger.Error("telegram update handler failed", "error", err)
			return ext.DispatcherActionNoop
		},
	})
	dispatcher.AddHandler(&routeHandler{poller: p})

	p.updater = ext.NewUpdater(dispatcher, nil)
	return p.updater.StartPolling(p.bot, &ext.PollingOpts{
		DropPendingUpdates: false,
		GetUpdatesOpts: &gotgbot.GetUpdatesOpts{
			Timeout:        int64(p.config.PollingTimeout),
			AllowedUpdates: p.config.AllowedUpdates,
			RequestOpts: &gotgbot.RequestOpts{
				Timeout: requestTimeout + time.Duration(p.config.PollingTimeout)*time.Second,
				APIURL:  p.config.APIURL,
			},
		},
	})
}

// Stop ends polling and waits for in-flight updates. It is safe to call
// Stop multiple times.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		if p.updater == nil {
			return
		}
		if err := p.updater.Stop(); err != nil {
			p.logger.Warn("telegram updater stop failed", "error", err)
		}
	})
}

// routeHandler is the single dispatcher handler; it accepts every update
// kind the router understands.
type routeHandler struct {
	poller *Poller
}

func (h *routeHandler) CheckUpdate(_ *gotgbot.Bot, ctx *ext.Context) bool {
	return ctx.Update != nil && (ctx.Update.Message != nil || ctx.Update.CallbackQuery != nil)
}

func (h *routeHandler) HandleUpdate(_ *gotgbot.Bot, ctx *ext.Context) error {
	if !route(h.poller.ctx, h.poller.handler, ctx.Update) {
		h.poller.logger.Debug("skipping update", "update_id", ctx.Update.UpdateId)
	}
	return nil
}

func (h *routeHandler) Name() string { return "warden_router" }

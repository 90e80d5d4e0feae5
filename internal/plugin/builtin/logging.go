package builtin

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/flemzord/warden/internal/event"
	"github.com/flemzord/warden/internal/platform"
	"github.com/flemzord/warden/internal/plugin"
)

// Logging writes bus events to the log while enabled, and answers
// messages mentioning "log".
type Logging struct {
	client platform.Client
	bus    *event.Bus
	logger *slog.Logger

	mu          sync.Mutex
	unsubscribe func()
}

var (
	_ plugin.Initializer    = (*Logging)(nil)
	_ plugin.Starter        = (*Logging)(nil)
	_ plugin.Stopper        = (*Logging)(nil)
	_ plugin.MessageHandler = (*Logging)(nil)
)

func (l *Logging) Name() string                     { return "logging" }
func (l *Logging) Description() string              { return "日志插件 - 记录机器人活动" }
func (l *Logging) Commands() []platform.CommandInfo { return nil }

func (l *Logging) Init(_ context.Context, deps plugin.Deps) error {
	l.client = deps.Client
	l.bus = deps.Bus
	l.logger = deps.Logger
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return nil
}

func (l *Logging) OnStart(context.Context) error {
	if l.bus == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unsubscribe == nil {
		l.unsubscribe = l.bus.SubscribeAll(l.record)
	}
	return nil
}

func (l *Logging) OnStop(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unsubscribe != nil {
		l.unsubscribe()
		l.unsubscribe = nil
	}
	return nil
}

func (l *Logging) record(_ context.Context, ev event.Event) error {
	level := slog.LevelInfo
	if ev.Type == event.ErrorOccurred {
		level = slog.LevelError
	}
	args := make([]any, 0, 4+2*len(ev.Data))
	args = append(args, "event", string(ev.Type), "event_id", ev.ID)
	for k, v := range ev.Data {
		args = append(args, k, v)
	}
	l.logger.Log(context.Background(), level, "bot event", args...)
	return nil
}

func (l *Logging) HandleMessage(ctx context.Context, msg platform.Message) (bool, error) {
	if l.client == nil || !strings.Contains(strings.ToLower(msg.Text), "log") {
		return false, nil
	}
	if _, err := l.client.SendMessage(ctx, msg.Chat.ID, "日志插件正在运行中...", nil); err != nil {
		return false, err
	}
	return true, nil
}

// Package event provides the in-process event bus shared by the bot router,
// the verification engine, plugins and the admin API.
package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names an event kind.
type Type string

// Event types emitted by the bot.
const (
	MessageReceived       Type = "message.received"
	CommandExecuted       Type = "command.executed"
	PermissionChecked     Type = "permission.checked"
	VerificationStarted   Type = "verification.started"
	VerificationCompleted Type = "verification.completed"
	ErrorOccurred         Type = "error.occurred"
	RepoCommand           Type = "repo.command"
	RepoActivity          Type = "repo.activity"
)

// Event is a single bus notification.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Handler consumes an event. Returned errors are logged by the bus.
type Handler func(ctx context.Context, ev Event) error

// Emitter is the publishing side of the bus.
type Emitter interface {
	Emit(ctx context.Context, typ Type, data map[string]any)
}

// Bus dispatches events to subscribers synchronously, in subscription order.
// A failing or panicking handler never affects the emitter or other handlers.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	seq    uint64
	logger *slog.Logger
	now    func() time.Time
}

type subscription struct {
	id      uint64
	typ     Type // empty matches every type
	handler Handler
}

var _ Emitter = (*Bus)(nil)

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger, now: time.Now}
}

// Subscribe registers h for events of typ and returns a function that
// removes the subscription.
func (b *Bus) Subscribe(typ Type, h Handler) (unsubscribe func()) {
	return b.add(typ, h)
}

// SubscribeAll registers h for every event type.
func (b *Bus) SubscribeAll(h Handler) (unsubscribe func()) {
	return b.add("", h)
}

func (b *Bus) add(typ Type, h Handler) func() {
	b.mu.Lock()
	b.seq++
	id := b.seq
	b.subs = append(b.subs, subscription{id: id, typ: typ, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Emit builds an event and delivers it to matching subscribers.
func (b *Bus) Emit(ctx context.Context, typ Type, data map[string]any) {
	ev := Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: b.now(),
		Data:      data,
	}

	b.mu.RLock()
	subs := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.typ == "" || s.typ == typ {
			subs = append(subs, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range subs {
		if err := b.deliver(ctx, s.handler, ev); err != nil {
			b.logger.Warn("event: handler error",
				"type", string(typ),
				"event_id", ev.ID,
				"error", err,
			)
		}
	}
}

// Subscribers reports the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) deliver(ctx context.Context, h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, ev)
}

// Discard is an Emitter that drops every event.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(context.Context, Type, map[string]any) {}

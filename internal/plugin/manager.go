package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flemzord/warden/internal/event"
	"github.com/flemzord/warden/internal/platform"
)

// Status describes a loaded plugin for the admin API.
type Status struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Enabled     bool                   `json:"enabled"`
	Commands    []platform.CommandInfo `json:"commands"`
	LoadedAt    time.Time              `json:"loaded_at"`
}

type entry struct {
	plugin   Plugin
	enabled  bool
	loadedAt time.Time
}

// Manager owns the loaded plugins. Handler chains visit enabled plugins in
// load order and stop at the first one that reports handled. A plugin
// that fails or panics is logged and treated as not handled.
type Manager struct {
	mu      sync.RWMutex
	order   []string
	plugins map[string]*entry

	deps   Deps
	events event.Emitter
	logger *slog.Logger
}

// NewManager creates an empty manager.
func NewManager(deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var events event.Emitter = event.Discard
	if deps.Bus != nil {
		events = deps.Bus
	}
	return &Manager{
		plugins: make(map[string]*entry),
		deps:    deps,
		events:  events,
		logger:  logger.With("component", "plugins"),
	}
}

// Load initializes p and adds it in the disabled state.
func (m *Manager) Load(ctx context.Context, p Plugin) error {
	name := p.Name()

	m.mu.Lock()
	if _, exists := m.plugins[name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, name)
	}
	m.mu.Unlock()

	if in, ok := p.(Initializer); ok {
		deps := m.deps
		deps.Logger = m.logger.With("plugin", name)
		if err := in.Init(ctx, deps); err != nil {
			return fmt.Errorf("plugin: initializing %s: %w", name, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.plugins[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, name)
	}
	m.plugins[name] = &entry{plugin: p, loadedAt: time.Now()}
	m.order = append(m.order, name)
	m.logger.Info("plugin loaded", "plugin", name)
	return nil
}

// Enable starts a loaded plugin. Enabling an enabled plugin is a no-op.
func (m *Manager) Enable(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.plugins[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	if e.enabled {
		return nil
	}
	if s, ok := e.plugin.(Starter); ok {
		if err := s.OnStart(ctx); err != nil {
			return fmt.Errorf("plugin: starting %s: %w", name, err)
		}
	}
	e.enabled = true
	m.logger.Info("plugin enabled", "plugin", name)
	return nil
}

// Disable stops an enabled plugin. Disabling a disabled plugin is a no-op.
func (m *Manager) Disable(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.plugins[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	if !e.enabled {
		return nil
	}
	e.enabled = false
	if s, ok := e.plugin.(Stopper); ok {
		if err := s.OnStop(ctx); err != nil {
			return fmt.Errorf("plugin: stopping %s: %w", name, err)
		}
	}
	m.logger.Info("plugin disabled", "plugin", name)
	return nil
}

// ExecuteCommand offers command to enabled plugins and reports whether one
// handled it.
func (m *Manager) ExecuteCommand(ctx context.Context, command string, msg platform.Message) bool {
	for _, p := range m.enabled() {
		h, ok := p.(CommandHandler)
		if !ok {
			continue
		}
		if m.call(p.Name(), "command", func() (bool, error) {
			return h.HandleCommand(ctx, command, msg)
		}) {
			m.events.Emit(ctx, event.CommandExecuted, map[string]any{
				"command": command,
				"plugin":  p.Name(),
				"userId":  msg.From.ID,
				"chatId":  msg.Chat.ID,
			})
			return true
		}
	}
	return false
}

// HandleMessage offers a non-command message to enabled plugins.
func (m *Manager) HandleMessage(ctx context.Context, msg platform.Message) bool {
	for _, p := range m.enabled() {
		h, ok := p.(MessageHandler)
		if !ok {
			continue
		}
		if m.call(p.Name(), "message", func() (bool, error) {
			return h.HandleMessage(ctx, msg)
		}) {
			return true
		}
	}
	return false
}

// HandleCallbackQuery offers a callback to enabled plugins.
func (m *Manager) HandleCallbackQuery(ctx context.Context, cb platform.Callback) bool {
	for _, p := range m.enabled() {
		h, ok := p.(CallbackHandler)
		if !ok {
			continue
		}
		if m.call(p.Name(), "callback", func() (bool, error) {
			return h.HandleCallback(ctx, cb)
		}) {
			return true
		}
	}
	return false
}

// Commands aggregates the command metadata of enabled plugins.
func (m *Manager) Commands() []platform.CommandInfo {
	var out []platform.CommandInfo
	for _, p := range m.enabled() {
		out = append(out, p.Commands()...)
	}
	return out
}

// IsHealthy reports whether at least one plugin is loaded.
func (m *Manager) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.plugins) == 0 {
		return false
	}
	for _, e := range m.plugins {
		if e.enabled {
			return true
		}
	}
	m.logger.Warn("plugins loaded but none enabled", "loaded", len(m.plugins))
	return true
}

// List returns the status of every loaded plugin in load order.
func (m *Manager) List() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Status, 0, len(m.order))
	for _, name := range m.order {
		e := m.plugins[name]
		out = append(out, Status{
			Name:        name,
			Description: e.plugin.Description(),
			Enabled:     e.enabled,
			Commands:    e.plugin.Commands(),
			LoadedAt:    e.loadedAt,
		})
	}
	return out
}

// Stop disables every enabled plugin in reverse load order.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.RLock()
	names := make([]string, len(m.order))
	copy(names, m.order)
	m.mu.RUnlock()

	var firstErr error
	for i := len(names) - 1; i >= 0; i-- {
		if err := m.Disable(ctx, names[i]); err != nil {
			m.logger.Error("plugin stop failed", "plugin", names[i], "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *Manager) enabled() []Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Plugin, 0, len(m.order))
	for _, name := range m.order {
		if e := m.plugins[name]; e.enabled {
			out = append(out, e.plugin)
		}
	}
	return out
}

func (m *Manager) call(name, kind string, fn func() (bool, error)) (handled bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("plugin panicked", "plugin", name, "handler", kind, "panic", r)
			handled = false
		}
	}()

	handled, err := fn()
	if err != nil {
		m.logger.Error("plugin handler failed", "plugin", name, "handler", kind, "error", err)
		return false
	}
	return handled
}

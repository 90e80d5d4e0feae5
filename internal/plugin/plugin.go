// Package plugin manages optional bot extensions that see commands,
// messages and callbacks before the built-in dispatcher.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/flemzord/warden/internal/event"
	"github.com/flemzord/warden/internal/platform"
)

var (
	// ErrPluginNotFound is returned for an unknown plugin name.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrDuplicatePlugin is returned when loading a name twice.
	ErrDuplicatePlugin = errors.New("plugin already loaded")
)

// Plugin is the metadata every plugin provides. Behavior is added by
// implementing the optional interfaces below.
type Plugin interface {
	Name() string
	Description() string
	Commands() []platform.CommandInfo
}

// Initializer is called once by Manager.Load.
type Initializer interface {
	Init(ctx context.Context, deps Deps) error
}

// Starter is called when the plugin is enabled.
type Starter interface {
	OnStart(ctx context.Context) error
}

// Stopper is called when the plugin is disabled.
type Stopper interface {
	OnStop(ctx context.Context) error
}

// CommandHandler handles slash commands. command is normalized.
type CommandHandler interface {
	HandleCommand(ctx context.Context, command string, msg platform.Message) (bool, error)
}

// MessageHandler handles non-command text messages.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg platform.Message) (bool, error)
}

// CallbackHandler handles inline keyboard presses.
type CallbackHandler interface {
	HandleCallback(ctx context.Context, cb platform.Callback) (bool, error)
}

// Deps are the shared resources handed to plugins at Init.
type Deps struct {
	Client platform.Client
	Bus    *event.Bus
	Logger *slog.Logger

	// Commands lists every command the bot answers, for help output.
	Commands func() []platform.CommandInfo
}

// Factory builds a fresh plugin instance.
type Factory func() Plugin

// Catalog maps plugin names to factories.
type Catalog map[string]Factory

// New instantiates the named plugin.
func (c Catalog) New(name string) (Plugin, error) {
	f, ok := c[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	return f(), nil
}

// Names returns the catalog entries sorted alphabetically.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Package command maps slash commands to handlers and enforces their
// declared chat policy before dispatch.
package command

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/flemzord/warden/internal/guard"
	"github.com/flemzord/warden/internal/platform"
)

// ErrEmptyCommand is the panic value of Register for a blank command.
var ErrEmptyCommand = errors.New("command must not be empty")

// GroupOnlyText is the reply to a group-only command used elsewhere.
const GroupOnlyText = "⚠️ 此命令只能在群组中使用。"

// Handler executes a command. Errors propagate to the update boundary.
type Handler func(ctx context.Context, client platform.Client, msg platform.Message) error

// Policy declares the checks run before a handler.
type Policy struct {
	RequiresGroup     bool
	RequiresWhitelist bool
}

// Registration is a registered command.
type Registration struct {
	Command     string
	Handler     Handler
	Policy      Policy
	Description string
}

// Registry holds command registrations. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Registration
	guard    *guard.Guard
	logger   *slog.Logger
}

// NewRegistry creates an empty registry that checks whitelists with g.
func NewRegistry(g *guard.Guard, logger *slog.Logger) *Registry {
	if g == nil {
		g = guard.New(guard.Config{})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		commands: make(map[string]Registration),
		guard:    g,
		logger:   logger,
	}
}

// Register adds or replaces a command. cmd is normalized to lower case
// with a leading slash. It panics when cmd is blank.
func (r *Registry) Register(cmd string, h Handler, policy Policy, description string) *Registry {
	name := Normalize(cmd)
	if name == "" || name == "/" {
		panic(ErrEmptyCommand)
	}
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[name]; exists {
		r.logger.Warn("command: replacing registration", "command", name)
	}
	r.commands[name] = Registration{
		Command:     name,
		Handler:     h,
		Policy:      policy,
		Description: description,
	}
	return r
}

// Lookup returns the registration for a normalized command.
func (r *Registry) Lookup(cmd string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.commands[cmd]
	return reg, ok
}

// Execute dispatches msg to its command handler. It reports false, with a
// nil error, when the message does not name a registered command.
//
// A whitelisted command in a chat outside the whitelist fails with
// *guard.AuthorizationError. A group-only command outside a group is
// answered with a warning and counts as handled.
func (r *Registry) Execute(ctx context.Context, client platform.Client, msg platform.Message) (bool, error) {
	reg, ok := r.Lookup(Normalize(msg.Text))
	if !ok {
		return false, nil
	}

	if reg.Policy.RequiresWhitelist {
		if err := r.guard.CheckWhitelist(msg.Chat); err != nil {
			return true, err
		}
	}
	if reg.Policy.RequiresGroup && !guard.IsGroup(msg.Chat.Type) {
		if _, err := client.SendMessage(ctx, msg.Chat.ID, GroupOnlyText, nil); err != nil {
			r.logger.Warn("command: group-only reply failed",
				"command", reg.Command,
				"chat_id", msg.Chat.ID,
				"error", err,
			)
		}
		return true, nil
	}

	r.logger.Debug("command: executing",
		"command", reg.Command,
		"chat_id", msg.Chat.ID,
		"user_id", msg.From.ID,
	)
	return true, reg.Handler(ctx, client, msg)
}

// Commands returns the described commands sorted by name, for the bot
// command menu.
func (r *Registry) Commands() []platform.CommandInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]platform.CommandInfo, 0, len(r.commands))
	for name, reg := range r.commands {
		if reg.Description == "" {
			continue
		}
		out = append(out, platform.CommandInfo{
			Command:     strings.TrimPrefix(name, "/"),
			Description: reg.Description,
		})
	}
	slices.SortFunc(out, func(a, b platform.CommandInfo) int {
		return cmp.Compare(a.Command, b.Command)
	})
	return out
}

// Names returns every registered command sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Normalize extracts the command token of text: the first whitespace
// separated word, without any @botname suffix, lower-cased.
func Normalize(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	token := fields[0]
	if at := strings.IndexByte(token, '@'); at >= 0 {
		token = token[:at]
	}
	return strings.ToLower(token)
}

// IsCommand reports whether text starts with a slash command.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// Args returns the text following the command token, trimmed.
func Args(text string) string {
	text = strings.TrimSpace(text)
	i := strings.IndexFunc(text, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n'
	})
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(text[i:])
}

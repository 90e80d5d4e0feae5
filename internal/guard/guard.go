// Package guard holds the stateless authorization checks shared by the
// command dispatcher, built-in commands and the verification engine.
package guard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/flemzord/warden/internal/platform"
)

// Sentinel errors wrapped by AuthorizationError.
var (
	ErrNotWhitelisted = errors.New("chat not whitelisted")
	ErrNotGroup       = errors.New("not a group chat")
	ErrNotAdmin       = errors.New("bot is not an administrator")
)

// Reason classifies an authorization failure.
type Reason string

const (
	ReasonNotWhitelisted Reason = "not_whitelisted"
	ReasonNotGroup       Reason = "not_group"
	ReasonBotNotAdmin    Reason = "bot_not_admin"
)

// AuthorizationError reports that an action is not permitted in a chat.
// Its Error text is the user-facing reply sent to that chat.
type AuthorizationError struct {
	ChatID int64
	Reason Reason
}

func (e *AuthorizationError) Error() string {
	switch e.Reason {
	case ReasonNotGroup:
		return "⚠️ 此命令只能在群组中使用。"
	case ReasonBotNotAdmin:
		return "❌ 我不是管理员，请先将我设为群管理员！"
	default:
		return "❌ 此群组未被授权使用机器人。"
	}
}

func (e *AuthorizationError) Unwrap() error {
	switch e.Reason {
	case ReasonNotGroup:
		return ErrNotGroup
	case ReasonBotNotAdmin:
		return ErrNotAdmin
	default:
		return ErrNotWhitelisted
	}
}

// IsGroup reports whether a chat type is a group or supergroup.
func IsGroup(chatType string) bool {
	return strings.Contains(chatType, "group")
}

// Config is the reloadable guard configuration.
type Config struct {
	EnforceWhitelist bool
	AllowedGroups    []int64
	AdminUsers       []int64
}

type snapshot struct {
	enforce bool
	groups  map[int64]struct{}
	admins  map[int64]struct{}
}

// Guard evaluates whitelist and admin-user rules. The configuration can be
// swapped at runtime with Update; checks always see a consistent snapshot.
type Guard struct {
	state atomic.Pointer[snapshot]
}

// New creates a Guard from cfg.
func New(cfg Config) *Guard {
	g := &Guard{}
	g.Update(cfg)
	return g
}

// Update replaces the active configuration.
func (g *Guard) Update(cfg Config) {
	s := &snapshot{
		enforce: cfg.EnforceWhitelist,
		groups:  make(map[int64]struct{}, len(cfg.AllowedGroups)),
		admins:  make(map[int64]struct{}, len(cfg.AdminUsers)),
	}
	for _, id := range cfg.AllowedGroups {
		s.groups[id] = struct{}{}
	}
	for _, id := range cfg.AdminUsers {
		s.admins[id] = struct{}{}
	}
	g.state.Store(s)
}

// IsAllowed reports whether chatID passes the whitelist. With enforcement
// off, or with an empty list, every chat is allowed.
func (g *Guard) IsAllowed(chatID int64) bool {
	s := g.state.Load()
	if !s.enforce || len(s.groups) == 0 {
		return true
	}
	_, ok := s.groups[chatID]
	return ok
}

// CheckWhitelist returns an *AuthorizationError when a group chat is not
// allowed. Private chats are never subject to the whitelist.
func (g *Guard) CheckWhitelist(chat platform.Chat) error {
	if !IsGroup(chat.Type) || g.IsAllowed(chat.ID) {
		return nil
	}
	return &AuthorizationError{ChatID: chat.ID, Reason: ReasonNotWhitelisted}
}

// CheckGroup returns an *AuthorizationError when chat is not a group.
func (g *Guard) CheckGroup(chat platform.Chat) error {
	if IsGroup(chat.Type) {
		return nil
	}
	return &AuthorizationError{ChatID: chat.ID, Reason: ReasonNotGroup}
}

// IsAdminUser reports whether userID is a configured bot administrator.
func (g *Guard) IsAdminUser(userID int64) bool {
	_, ok := g.state.Load().admins[userID]
	return ok
}

// FindAdmin looks userID up in the live administrator list of chatID.
func FindAdmin(ctx context.Context, client platform.Client, chatID, userID int64) (platform.Member, bool, error) {
	admins, err := client.GetChatAdministrators(ctx, chatID)
	if err != nil {
		return platform.Member{}, false, fmt.Errorf("guard: listing administrators of %d: %w", chatID, err)
	}
	for _, m := range admins {
		if m.User.ID == userID {
			return m, true, nil
		}
	}
	return platform.Member{}, false, nil
}

// RequireBotAdmin returns the bot's own membership when it administers
// chatID, and an *AuthorizationError when it does not.
func RequireBotAdmin(ctx context.Context, client platform.Client, chatID int64) (platform.Member, error) {
	me, err := client.GetMe(ctx)
	if err != nil {
		return platform.Member{}, fmt.Errorf("guard: resolving bot identity: %w", err)
	}
	member, ok, err := FindAdmin(ctx, client, chatID, me.ID)
	if err != nil {
		return platform.Member{}, err
	}
	if !ok {
		return platform.Member{}, &AuthorizationError{ChatID: chatID, Reason: ReasonBotNotAdmin}
	}
	return member, nil
}

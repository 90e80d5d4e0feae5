// Package platform defines the messaging-platform contract consumed by the
// verification engine, the command dispatcher and plugins, together with
// the inbound update shapes they operate on. The Telegram module provides
// the production implementation.
package platform

import "context"

// ParseModeMarkdown selects Telegram's legacy Markdown formatting.
const ParseModeMarkdown = "Markdown"

// User is a platform account.
type User struct {
	ID        int64
	FirstName string
	Username  string
	IsBot     bool
}

// Chat identifies a conversation. Type is the raw platform chat type
// ("private", "group", "supergroup", "channel").
type Chat struct {
	ID    int64
	Type  string
	Title string
}

// Message is an inbound text or service message.
type Message struct {
	ID         int64
	Chat       Chat
	From       User
	Text       string
	NewMembers []User
}

// JoinEvent reports members added to a chat.
type JoinEvent struct {
	ChatID  int64
	Members []User
}

// JoinEvent extracts the member-join payload, if any.
func (m Message) JoinEvent() (JoinEvent, bool) {
	if len(m.NewMembers) == 0 {
		return JoinEvent{}, false
	}
	return JoinEvent{ChatID: m.Chat.ID, Members: m.NewMembers}, true
}

// Callback is an inline-keyboard button press.
type Callback struct {
	ID        string
	From      User
	ChatID    int64
	ChatType  string
	MessageID int64
	Data      string
}

// Button is one inline keyboard button.
type Button struct {
	Text string
	Data string
}

// Keyboard is an inline keyboard laid out in rows.
type Keyboard [][]Button

// SendOptions tunes an outgoing message.
type SendOptions struct {
	ParseMode             string
	Keyboard              Keyboard
	DisableWebPagePreview bool
}

// AnswerOptions tunes a callback acknowledgment.
type AnswerOptions struct {
	Text      string
	ShowAlert bool
}

// AdminRights are the administrator privileges of a chat member.
type AdminRights struct {
	CanManageChat       bool
	CanDeleteMessages   bool
	CanRestrictMembers  bool
	CanInviteUsers      bool
	CanPinMessages      bool
	CanPromoteMembers   bool
	CanChangeInfo       bool
	CanManageVideoChats bool
	CanManageTopics     bool
	CanPostStories      bool
	CanEditStories      bool
	CanDeleteStories    bool
	CanBeEdited         bool
	IsAnonymous         bool
}

// Member is a chat member as returned by the administrator list.
type Member struct {
	User   User
	Status string
	Rights AdminRights
}

// CommandInfo describes a command for the bot's command menu.
// Command carries no leading slash.
type CommandInfo struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// Client is the set of platform calls the bot makes. Every call is a single
// attempt; implementations do not retry.
type Client interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) (int64, error)
	SendChallenge(ctx context.Context, chatID int64, text string, keyboard Keyboard) (int64, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	KickChatMember(ctx context.Context, chatID, userID int64) error
	GetChatAdministrators(ctx context.Context, chatID int64) ([]Member, error)
	AnswerCallbackQuery(ctx context.Context, callbackID string, opts AnswerOptions) error
	GetMe(ctx context.Context) (User, error)
	SendDice(ctx context.Context, chatID int64, emoji string) error
	GetMyCommands(ctx context.Context) ([]CommandInfo, error)
	SetMyCommands(ctx context.Context, commands []CommandInfo) error
}

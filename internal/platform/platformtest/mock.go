// Package platformtest provides an in-memory platform.Client for tests.
package platformtest

import (
	"context"
	"sync"

	"github.com/flemzord/warden/internal/platform"
)

// Sent records one SendMessage or SendChallenge call.
type Sent struct {
	ChatID    int64
	MessageID int64
	Text      string
	ParseMode string
	Keyboard  platform.Keyboard
}

// Answer records one AnswerCallbackQuery call.
type Answer struct {
	CallbackID string
	Text       string
	ShowAlert  bool
}

// Ref identifies a chat-scoped object (message or user).
type Ref struct {
	ChatID int64
	ID     int64
}

// MockClient implements platform.Client, recording every call.
// Error fields make the matching call fail. It is safe for concurrent use.
type MockClient struct {
	mu sync.Mutex

	Me       platform.User
	Admins   map[int64][]platform.Member
	Commands []platform.CommandInfo

	SendErr     error
	DeleteErr   error
	KickErr     error
	AdminsErr   error
	AnswerErr   error
	CommandsErr error

	nextID     int64
	sent       []Sent
	deleted    []Ref
	kicked     []Ref
	answers    []Answer
	dice       []int64
	setCalls   int
	adminCalls int
}

var _ platform.Client = (*MockClient)(nil)

// NewMockClient returns a client whose bot identity is me.
func NewMockClient(me platform.User) *MockClient {
	return &MockClient{Me: me, Admins: make(map[int64][]platform.Member), nextID: 100}
}

// SetAdmins replaces the administrator list of a chat.
func (m *MockClient) SetAdmins(chatID int64, members ...platform.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Admins == nil {
		m.Admins = make(map[int64][]platform.Member)
	}
	m.Admins[chatID] = members
}

func (m *MockClient) SendMessage(_ context.Context, chatID int64, text string, opts *platform.SendOptions) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return 0, m.SendErr
	}
	m.nextID++
	s := Sent{ChatID: chatID, MessageID: m.nextID, Text: text}
	if opts != nil {
		s.ParseMode = opts.ParseMode
		s.Keyboard = opts.Keyboard
	}
	m.sent = append(m.sent, s)
	return m.nextID, nil
}

func (m *MockClient) SendChallenge(ctx context.Context, chatID int64, text string, keyboard platform.Keyboard) (int64, error) {
	return m.SendMessage(ctx, chatID, text, &platform.SendOptions{
		ParseMode: platform.ParseModeMarkdown,
		Keyboard:  keyboard,
	})
}

func (m *MockClient) DeleteMessage(_ context.Context, chatID, messageID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, Ref{ChatID: chatID, ID: messageID})
	return m.DeleteErr
}

func (m *MockClient) KickChatMember(_ context.Context, chatID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kicked = append(m.kicked, Ref{ChatID: chatID, ID: userID})
	return m.KickErr
}

func (m *MockClient) GetChatAdministrators(_ context.Context, chatID int64) ([]platform.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adminCalls++
	if m.AdminsErr != nil {
		return nil, m.AdminsErr
	}
	return append([]platform.Member(nil), m.Admins[chatID]...), nil
}

func (m *MockClient) AnswerCallbackQuery(_ context.Context, callbackID string, opts platform.AnswerOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, Answer{CallbackID: callbackID, Text: opts.Text, ShowAlert: opts.ShowAlert})
	return m.AnswerErr
}

func (m *MockClient) GetMe(context.Context) (platform.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Me, nil
}

func (m *MockClient) SendDice(_ context.Context, chatID int64, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.dice = append(m.dice, chatID)
	return nil
}

func (m *MockClient) GetMyCommands(context.Context) ([]platform.CommandInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CommandsErr != nil {
		return nil, m.CommandsErr
	}
	return append([]platform.CommandInfo(nil), m.Commands...), nil
}

func (m *MockClient) SetMyCommands(_ context.Context, commands []platform.CommandInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CommandsErr != nil {
		return m.CommandsErr
	}
	m.setCalls++
	m.Commands = append([]platform.CommandInfo(nil), commands...)
	return nil
}

// SentMessages returns a copy of every message sent so far.
func (m *MockClient) SentMessages() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.sent...)
}

// LastSent returns the most recent message, if any.
func (m *MockClient) LastSent() (Sent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return Sent{}, false
	}
	return m.sent[len(m.sent)-1], true
}

func (m *MockClient) Deleted() []Ref {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Ref(nil), m.deleted...)
}

func (m *MockClient) Kicked() []Ref {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Ref(nil), m.kicked...)
}

func (m *MockClient) Answers() []Answer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Answer(nil), m.answers...)
}

func (m *MockClient) Dice() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.dice...)
}

// SetCommandsCalls reports how many times SetMyCommands succeeded.
func (m *MockClient) SetCommandsCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setCalls
}

// AdminLookups reports how many times GetChatAdministrators was called.
func (m *MockClient) AdminLookups() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adminCalls
}

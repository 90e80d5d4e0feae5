package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/warden/internal/command"
	"github.com/flemzord/warden/internal/event"
	"github.com/flemzord/warden/internal/guard"
	"github.com/flemzord/warden/internal/metrics"
	"github.com/flemzord/warden/internal/platform"
	"github.com/flemzord/warden/internal/platform/platformtest"
	"github.com/flemzord/warden/internal/plugin/builtin"
	"github.com/flemzord/warden/internal/verify"
)

const (
	botID     int64 = 42
	groupChat int64 = -100
)

type harness struct {
	router  *Router
	client  *platformtest.MockClient
	store   *verify.MemoryStore
	guard   *guard.Guard
	metrics *metrics.Metrics

	mu     sync.Mutex
	events []event.Event
}

func (h *harness) eventsOf(typ event.Type) []event.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []event.Event
	for _, ev := range h.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func newHarness(t *testing.T, cfg guard.Config) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := platformtest.NewMockClient(platform.User{ID: botID, IsBot: true, FirstName: "warden"})
	store := verify.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	bus := event.NewBus(logger)
	m := metrics.New()
	g := guard.New(cfg)

	engine := verify.NewEngine(verify.Options{
		Client:  client,
		Store:   store,
		Events:  bus,
		Metrics: m,
		Logger:  logger,
		Timeout: time.Hour,
	})
	h := &harness{
		router: NewRouter(Options{
			Client:  client,
			Engine:  engine,
			Guard:   g,
			Bus:     bus,
			Metrics: m,
			Logger:  logger,
		}),
		client:  client,
		store:   store,
		guard:   g,
		metrics: m,
	}
	bus.SubscribeAll(func(_ context.Context, ev event.Event) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.events = append(h.events, ev)
		return nil
	})
	return h
}

func textMsg(chatID int64, chatType, text string) platform.Message {
	return platform.Message{
		ID:   10,
		Chat: platform.Chat{ID: chatID, Type: chatType},
		From: platform.User{ID: 7, FirstName: "Alice"},
		Text: text,
	}
}

func (h *harness) makeBotAdmin(rights platform.AdminRights) {
	h.client.SetAdmins(groupChat, platform.Member{
		User:   platform.User{ID: botID, IsBot: true},
		Status: "administrator",
		Rights: rights,
	})
}

func TestRouter_JoinIssuesChallenge(t *testing.T) {
	t.Parallel()

	h := newHarness(t, guard.Config{})
	h.router.HandleMessage(context.Background(), platform.Message{
		Chat:       platform.Chat{ID: groupChat, Type: "supergroup"},
		NewMembers: []platform.User{{ID: 7, FirstName: "Alice"}, {ID: 8, IsBot: true}},
	})

	if _, ok := h.store.Get(context.Background(), 7); !ok {
		t.Error("human member should be pending")
	}
	if _, ok := h.store.Get(context.Background(), 8); ok {
		t.Error("bot member should be skipped")
	}
}

func TestRouter_CallbackAnswersChallenge(t *testing.T) {
	t.Parallel()

	h := newHarness(t, guard.Config{})
	ctx := context.Background()
	h.router.HandleMessage(ctx, platform.Message{
		Chat:       platform.Chat{ID: groupChat, Type: "group"},
		NewMembers: []platform.User{{ID: 7, FirstName: "Alice"}},
	})

	h.router.HandleCallback(ctx, platform.Callback{
		ID:   "cb",
		From: platform.User{ID: 7, FirstName: "Alice"},
		Data: verify.CallbackData(7, verify.CorrectIndex),
	})

	if _, ok := h.store.Get(ctx, 7); ok {
		t.Error("record should be consumed")
	}
	if h.metrics.Snapshot().Verified != 1 {
		t.Error("verified outcome should be counted")
	}
}

func TestRouter_PluginTakesPrecedence(t *testing.T) {
	t.Parallel()

	h := newHarness(t, guard.Config{})
	ctx := context.Background()
	if err := h.router.LoadPlugins(ctx, builtin.Catalog(), []string{"greeting"}); err != nil {
		t.Fatal(err)
	}

	h.router.HandleMessage(ctx, textMsg(groupChat, "group", "/greet@warden_bot"))

	sent, ok := h.client.LastSent()
	if !ok || sent.Text != "👋 你好！欢迎使用机器人插件系统！" {
		t.Errorf("unexpected reply %+v", sent)
	}
	if len(h.eventsOf(event.MessageReceived)) != 1 {
		t.Error("message.received should be emitted")
	}
	executed := h.eventsOf(event.CommandExecuted)
	if len(executed) != 1 || executed[0].Data["plugin"] != "greeting" {
		t.Errorf("unexpected command events %+v", executed)
	}
}

func TestRouter_NonCommandGoesToPlugins(t *testing.T) {
	t.Parallel()

	h := newHarness(t, guard.Config{})
	ctx := context.Background()
	_ = h.router.LoadPlugins(ctx, builtin.Catalog(), []string{"logging"})

	h.router.HandleMessage(ctx, textMsg(groupChat, "group", "where is the log?"))

	sent, ok := h.client.LastSent()
	if !ok || sent.Text != "日志插件正在运行中..." {
		t.Errorf("unexpected reply %+v", sent)
	}
}

func TestRouter_WhitelistDenied(t *testing.T) {
	t.Parallel()

	h := newHarness(t, guard.Config{EnforceWhitelist: true, AllowedGroups: []int64{-999}})
	h.router.HandleMessage(context.Background(), textMsg(groupChat, "group", "/hello"))

	sent, ok := h.client.LastSent()
	if !ok || sent.Text != "❌ 此群组未被授权使用机器人。" || sent.ChatID != groupChat {
		t.Errorf("unexpected reply %+v", sent)
	}
	if len(h.eventsOf(event.ErrorOccurred)) != 1 {
		t.Error("error.occurred should be emitted")
	}
	if h.metrics.Snapshot().Errors != 1 {
		t.Error("error should be counted")
	}
}

func TestRouter_Hello(t *testing.T) {
	t.Parallel()

	h := newHarness(t, guard.Config{})
	h.router.HandleMessage(context.Background(), textMsg(5, "private", "/hello"))

	sent, _ := h.client.LastSent()
	want := "✅ Thanks for your message: *\"/hello\"*\nHave a great day! 👋🏻"
	if sent.Text != want || sent.ParseMode != platform.ParseModeMarkdown {
		t.Errorf("reply = %+v, want text %q", sent, want)
	}
}

func TestRouter_Dice(t *testing.T) {
	t.Parallel()

	h := newHarness(t, guard.Config{})
	h.router.HandleMessage(context.Background(), textMsg(groupChat, "group", "/dice"))

	if dice := h.client.Dice(); len(dice) != 1 || dice[0] != groupChat {
		t.Errorf("dice = %v", dice)
	}
}

func TestRouter_CheckBot(t *testing.T) {
	t.Parallel()

	t.Run("private chat", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, guard.Config{})
		h.router.HandleMessage(context.Background(), textMsg(5, "private", "/checkbot"))
		sent, _ := h.client.LastSent()
		if sent.Text != "⚠️ 此命令只能在群组中使用。" {
			t.Errorf("reply = %q", sent.Text)
		}
	})

	t.Run("bot not admin", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, guard.Config{})
		h.router.HandleMessage(context.Background(), textMsg(groupChat, "supergroup", "/checkbot"))
		sent, _ := h.client.LastSent()
		if sent.Text != "❌ 我不是管理员，请先将我设为群管理员！" {
			t.Errorf("reply = %q", sent.Text)
		}
	})

	t.Run("report", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, guard.Config{})
		h.makeBotAdmin(platform.AdminRights{CanDeleteMessages: true, CanRestrictMembers: true})
		h.router.HandleMessage(context.Background(), textMsg(groupChat, "supergroup", "/checkbot"))

		sent, _ := h.client.LastSent()
		if !strings.HasPrefix(sent.Text, "🤖 *权限检查报告*") {
			t.Errorf("reply = %q", sent.Text)
		}
		if !strings.Contains(sent.Text, "✅ 踢人权限") || !strings.Contains(sent.Text, "❌ 管理聊天") {
			t.Errorf("report lines wrong: %q", sent.Text)
		}
		checked := h.eventsOf(event.PermissionChecked)
		if len(checked) != 1 || checked[0].Data["granted"] != 2 {
			t.Errorf("unexpected permission events %+v", checked)
		}
	})
}

func TestRouter_TestVerify(t *testing.T) {
	t.Parallel()

	h := newHarness(t, guard.Config{})
	h.makeBotAdmin(platform.AdminRights{CanRestrictMembers: true})
	// The sender is an admin too; /testverify challenges regardless.
	h.client.SetAdmins(groupChat,
		platform.Member{User: platform.User{ID: botID}, Status: "administrator"},
		platform.Member{User: platform.User{ID: 7}, Status: "creator"},
	)

	h.router.HandleMessage(context.Background(), textMsg(groupChat, "group", "/testverify"))

	if _, ok := h.store.Get(context.Background(), 7); !ok {
		t.Error("sender should be challenged")
	}
}

func TestRouter_HandlerErrorGetsGenericReply(t *testing.T) {
	t.Parallel()

	h := newHarness(t, guard.Config{})
	h.client.AdminsErr = errors.New("api down")
	h.router.HandleMessage(context.Background(), textMsg(groupChat, "group", "/checkbot"))

	sent, _ := h.client.LastSent()
	if sent.Text != GenericErrorText {
		t.Errorf("reply = %q, want generic error", sent.Text)
	}
}

func TestRouter_UnknownCommandIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t, guard.Config{})
	h.router.HandleMessage(context.Background(), textMsg(groupChat, "group", "/nope"))

	if len(h.client.SentMessages()) != 0 {
		t.Error("unknown command should not be answered")
	}
}

func TestRouter_ManagePlugins(t *testing.T) {
	t.Parallel()

	h := newHarness(t, guard.Config{AdminUsers: []int64{7}})
	ctx := context.Background()
	_ = h.router.LoadPlugins(ctx, builtin.Catalog(), []string{"greeting", "help"})

	h.router.HandleMessage(ctx, textMsg(5, "private", "/plugins"))
	sent, _ := h.client.LastSent()
	if !strings.Contains(sent.Text, "✅ greeting") || !strings.Contains(sent.Text, "✅ help") {
		t.Errorf("plugin list = %q", sent.Text)
	}

	h.router.HandleMessage(ctx, textMsg(5, "private", "/plugins disable greeting"))
	sent, _ = h.client.LastSent()
	if sent.Text != "⏸ 插件 greeting 已停用" {
		t.Errorf("disable reply = %q", sent.Text)
	}
	for _, c := range h.client.Commands {
		if c.Command == "greet" {
			t.Error("disabled plugin command should leave the menu")
		}
	}

	h.router.HandleMessage(ctx, textMsg(5, "private", "/plugins enable nope"))
	sent, _ = h.client.LastSent()
	if sent.Text != "❌ 未找到插件 nope" {
		t.Errorf("unknown plugin reply = %q", sent.Text)
	}

	other := textMsg(5, "private", "/plugins")
	other.From.ID = 8
	h.router.HandleMessage(ctx, other)
	sent, _ = h.client.LastSent()
	if sent.Text != "❌ 只有机器人管理员可以管理插件。" {
		t.Errorf("non-admin reply = %q", sent.Text)
	}
}

func TestRouter_SyncCommands(t *testing.T) {
	t.Parallel()

	h := newHarness(t, guard.Config{})
	ctx := context.Background()
	_ = h.router.LoadPlugins(ctx, builtin.Catalog(), []string{"help", "greeting"})

	changed, err := h.router.SyncCommands(ctx)
	if err != nil || !changed {
		t.Fatalf("first sync = (%v, %v), want (true, nil)", changed, err)
	}
	changed, err = h.router.SyncCommands(ctx)
	if err != nil || changed {
		t.Fatalf("second sync = (%v, %v), want (false, nil)", changed, err)
	}
	if h.client.SetCommandsCalls() != 1 {
		t.Errorf("SetMyCommands called %d times, want 1", h.client.SetCommandsCalls())
	}

	cmds := h.router.Commands()
	if cmds[0].Command != "help" || cmds[1].Command != "greet" {
		t.Errorf("plugin commands should come first: %+v", cmds)
	}
	for _, c := range cmds {
		if c.Command == "plugins" {
			t.Error("undescribed commands must not be published")
		}
	}
}

func TestRouter_RecoversFromPanics(t *testing.T) {
	t.Parallel()

	h := newHarness(t, guard.Config{})
	h.router.Registry().Register("/boom", func(context.Context, platform.Client, platform.Message) error {
		panic("boom")
	}, command.Policy{}, "")

	h.router.HandleMessage(context.Background(), textMsg(groupChat, "group", "/boom"))

	sent, _ := h.client.LastSent()
	if sent.Text != GenericErrorText {
		t.Errorf("reply = %q", sent.Text)
	}
}

package builtin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/warden/internal/event"
	"github.com/flemzord/warden/internal/platform"
	"github.com/flemzord/warden/internal/platform/platformtest"
	"github.com/flemzord/warden/internal/plugin"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDeps(client platform.Client, bus *event.Bus) plugin.Deps {
	return plugin.Deps{
		Client: client,
		Bus:    bus,
		Logger: testLogger(),
		Commands: func() []platform.CommandInfo {
			return []platform.CommandInfo{
				{Command: "help", Description: "显示帮助信息"},
				{Command: "greet", Description: "提供个性化问候"},
				{Command: "checkbot", Description: "检查机器人权限"},
				{Command: "hello", Description: "问候命令"},
				{Command: "help", Description: "duplicate"},
			}
		},
	}
}

func msg(text string) platform.Message {
	return platform.Message{Chat: platform.Chat{ID: -1, Type: "group"}, From: platform.User{ID: 2}, Text: text}
}

func TestCatalog(t *testing.T) {
	t.Parallel()

	c := Catalog()
	for _, name := range []string{"greeting", "help", "logging", "sysinfo"} {
		p, err := c.New(name)
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if p.Name() != name {
			t.Errorf("plugin %q reports name %q", name, p.Name())
		}
	}
	for _, name := range DefaultPlugins {
		if _, ok := c[name]; !ok {
			t.Errorf("default plugin %q missing from catalog", name)
		}
	}
}

func TestGreeting(t *testing.T) {
	t.Parallel()

	client := platformtest.NewMockClient(platform.User{ID: 1})
	g := &Greeting{}
	if err := g.Init(context.Background(), testDeps(client, nil)); err != nil {
		t.Fatal(err)
	}

	handled, err := g.HandleCommand(context.Background(), "/greet", msg("/greet"))
	if !handled || err != nil {
		t.Fatalf("HandleCommand = (%v, %v)", handled, err)
	}
	sent, _ := client.LastSent()
	if sent.Text != "👋 你好！欢迎使用机器人插件系统！" {
		t.Errorf("text = %q", sent.Text)
	}

	if handled, _ := g.HandleCommand(context.Background(), "/other", msg("/other")); handled {
		t.Error("other commands should not be handled")
	}
}

func TestHelp_ListsCommands(t *testing.T) {
	t.Parallel()

	client := platformtest.NewMockClient(platform.User{ID: 1})
	h := &Help{}
	_ = h.Init(context.Background(), testDeps(client, nil))

	handled, err := h.HandleCommand(context.Background(), "/help", msg("/help"))
	if !handled || err != nil {
		t.Fatalf("HandleCommand = (%v, %v)", handled, err)
	}
	sent, _ := client.LastSent()
	if !strings.HasPrefix(sent.Text, "🤖 机器人帮助信息") {
		t.Errorf("missing header: %q", sent.Text)
	}
	for _, want := range []string{"/help - 显示帮助信息", "/greet - 提供个性化问候", "/checkbot - 检查机器人权限"} {
		if !strings.Contains(sent.Text, want) {
			t.Errorf("help text missing %q", want)
		}
	}
	if strings.Contains(sent.Text, "duplicate") {
		t.Error("duplicate commands should be listed once")
	}
}

func TestHelp_FuzzyQuery(t *testing.T) {
	t.Parallel()

	client := platformtest.NewMockClient(platform.User{ID: 1})
	h := &Help{}
	_ = h.Init(context.Background(), testDeps(client, nil))

	_, _ = h.HandleCommand(context.Background(), "/help", msg("/help chk"))
	sent, _ := client.LastSent()
	if !strings.Contains(sent.Text, "/checkbot") {
		t.Errorf("fuzzy query should match checkbot: %q", sent.Text)
	}
	if strings.Contains(sent.Text, "/greet") {
		t.Errorf("fuzzy query should not match greet: %q", sent.Text)
	}

	_, _ = h.HandleCommand(context.Background(), "/help", msg("/help zzz"))
	sent, _ = client.LastSent()
	if !strings.Contains(sent.Text, "没有找到") {
		t.Errorf("expected no-match text, got %q", sent.Text)
	}
}

func TestLogging(t *testing.T) {
	t.Parallel()

	client := platformtest.NewMockClient(platform.User{ID: 1})
	bus := event.NewBus(testLogger())
	l := &Logging{}
	ctx := context.Background()
	_ = l.Init(ctx, testDeps(client, bus))

	_ = l.OnStart(ctx)
	if bus.Subscribers() != 1 {
		t.Errorf("Subscribers() = %d after start, want 1", bus.Subscribers())
	}
	bus.Emit(ctx, event.CommandExecuted, map[string]any{"command": "/greet"})
	_ = l.OnStop(ctx)
	if bus.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d after stop, want 0", bus.Subscribers())
	}

	handled, err := l.HandleMessage(ctx, msg("show me the LOGS"))
	if !handled || err != nil {
		t.Fatalf("HandleMessage = (%v, %v)", handled, err)
	}
	sent, _ := client.LastSent()
	if sent.Text != "日志插件正在运行中..." {
		t.Errorf("text = %q", sent.Text)
	}
	if handled, _ := l.HandleMessage(ctx, msg("hello")); handled {
		t.Error("unrelated message should not be handled")
	}
}

func TestSysinfo(t *testing.T) {
	t.Parallel()

	client := platformtest.NewMockClient(platform.User{ID: 1})
	s := NewSysinfo()
	s.collect = func(context.Context) (HostStats, error) {
		return HostStats{
			Hostname:   "box",
			Platform:   "linux",
			Uptime:     90 * time.Minute,
			CPUCount:   4,
			CPUPercent: 12.5,
			MemUsed:    512 << 20,
			MemTotal:   2048 << 20,
			MemPercent: 25,
		}, nil
	}
	ctx := context.Background()
	_ = s.Init(ctx, testDeps(client, nil))

	handled, err := s.HandleCommand(ctx, "/status", msg("/status"))
	if !handled || err != nil {
		t.Fatalf("HandleCommand = (%v, %v)", handled, err)
	}
	sent, _ := client.LastSent()
	for _, want := range []string{"box (linux)", "1h30m0s", "4 核, 12.5%", "25.0% (512 MB / 2048 MB)"} {
		if !strings.Contains(sent.Text, want) {
			t.Errorf("status missing %q in %q", want, sent.Text)
		}
	}

	s.collect = func(context.Context) (HostStats, error) { return HostStats{}, errors.New("no proc") }
	if _, err := s.HandleCommand(ctx, "/status", msg("/status")); err == nil {
		t.Error("collection failure should be reported")
	}
}

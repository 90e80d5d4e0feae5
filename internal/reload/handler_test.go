package reload

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/flemzord/warden/internal/config"
	"github.com/flemzord/warden/internal/core"
	"github.com/flemzord/warden/internal/security/securitytest"
	"gopkg.in/yaml.v3"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newHandler(t *testing.T) (*Handler, *core.AppContext) {
	t.Helper()
	root := core.NewAppContext(testLogger(), t.TempDir())
	return NewHandler(core.NewApp(root), root, nil), root
}

func TestHandler_HandleReload_FileNotFound(t *testing.T) {
	h, _ := newHandler(t)

	err := h.HandleReload(context.Background(), "/nonexistent/warden.yaml")
	if err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestHandler_HandleReload_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("modules: {}"), 0o600); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	h, _ := newHandler(t)

	if err := h.HandleReload(context.Background(), path); err == nil {
		t.Error("expected validation error")
	}
}

func TestHandler_HandleReload_UnknownModule(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ok.yaml")
	content := "version: \"1\"\nmodules:\n  fake.mod: {}\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	h, _ := newHandler(t)

	if err := h.HandleReload(context.Background(), path); err == nil {
		t.Error("expected validation error for unknown module")
	}
}

func TestHandler_HandleReloadFromConfig_CancelledContext(t *testing.T) {
	h, _ := newHandler(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.HandleReloadFromConfig(ctx, &config.Config{Version: "1"}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

// reloadRecorder records the services and config it sees on Reload.
type reloadRecorder struct {
	sawService bool
	threshold  int
}

func (p *reloadRecorder) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "test.reload_recorder", New: func() core.Module { return &reloadRecorder{} }}
}

func (p *reloadRecorder) Reload(ctx *core.AppContext) error {
	_, p.sawService = ctx.Service("verify.store")
	node, ok := ctx.ModuleConfig("test.reload_recorder")
	if !ok {
		return nil
	}
	var cfg struct {
		Threshold int `yaml:"threshold"`
	}
	if err := node.Decode(&cfg); err != nil {
		return err
	}
	p.threshold = cfg.Threshold
	return nil
}

func TestHandler_ReloadSharesServicesAndAudits(t *testing.T) {
	root := core.NewAppContext(testLogger(), t.TempDir())
	root.RegisterService("verify.store", struct{}{})

	app := core.NewApp(root)
	rec := &reloadRecorder{}
	app.AppendModule("test.reload_recorder", rec)

	audit, events := securitytest.NewTestAuditLogger()
	h := NewHandler(app, root, audit)

	var node yaml.Node
	if err := yaml.Unmarshal([]byte("threshold: 7"), &node); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{
		Version: "1",
		Modules: map[string]yaml.Node{"test.reload_recorder": *node.Content[0]},
	}

	if err := h.HandleReloadFromConfig(context.Background(), cfg); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !rec.sawService {
		t.Error("reloaded module should see services registered at startup")
	}
	if rec.threshold != 7 {
		t.Errorf("threshold = %d, want 7", rec.threshold)
	}

	got := events()
	if len(got) != 1 || got[0].Detail != "reloaded" {
		t.Errorf("audit events = %+v, want one reloaded event", got)
	}
}

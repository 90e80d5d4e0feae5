package core

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// registerTemp registers mod for the duration of the test.
func registerTemp(t *testing.T, mod Module) {
	t.Helper()
	RegisterModule(mod)
	id := string(mod.ModuleInfo().ID)
	t.Cleanup(func() {
		registry.Lock()
		delete(registry.modules, id)
		registry.Unlock()
	})
}

func yamlSection(t *testing.T, text string) yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		t.Fatal(err)
	}
	return *doc.Content[0]
}

// recorder is a module that logs its lifecycle calls into a shared slice
// and fails the hooks named in fail.
type recorder struct {
	id    ModuleID
	calls *[]string
	fail  map[string]bool
	token string
}

func (r *recorder) ModuleInfo() ModuleInfo {
	return ModuleInfo{ID: r.id, New: func() Module {
		return &recorder{id: r.id, calls: r.calls, fail: r.fail}
	}}
}

func (r *recorder) hook(name string) error {
	*r.calls = append(*r.calls, name)
	if r.fail[name] {
		return errors.New(name + " failed")
	}
	return nil
}

func (r *recorder) Configure(node *yaml.Node) error {
	var cfg struct {
		Token string `yaml:"token"`
	}
	if err := node.Decode(&cfg); err != nil {
		return err
	}
	*r.calls = append(*r.calls, "token="+cfg.Token)
	return r.hook("configure")
}

func (r *recorder) Provision(*AppContext) error { return r.hook("provision") }
func (r *recorder) Validate() error             { return r.hook("validate") }

// bare implements nothing beyond Module.
type bare struct{ id ModuleID }

func (b *bare) ModuleInfo() ModuleInfo {
	return ModuleInfo{ID: b.id, New: func() Module { return &bare{id: b.id} }}
}

func TestAppContext_LoadModule(t *testing.T) {
	tests := []struct {
		name      string
		id        ModuleID
		config    string
		fail      string
		wantCalls string
		wantErr   string
	}{
		{
			name:      "configured",
			id:        "test.configured",
			config:    "token: abc",
			wantCalls: "token=abc,configure,provision,validate",
		},
		{
			name:      "no section skips configure",
			id:        "test.nosection",
			wantCalls: "provision,validate",
		},
		{
			name:      "configure error",
			id:        "test.badconfig",
			config:    "token: abc",
			fail:      "configure",
			wantCalls: "token=abc,configure",
			wantErr:   "configuring module test.badconfig",
		},
		{
			name:      "provision error",
			id:        "test.badprovision",
			fail:      "provision",
			wantCalls: "provision",
			wantErr:   "provisioning module test.badprovision",
		},
		{
			name:      "validate error",
			id:        "test.badvalidate",
			fail:      "validate",
			wantCalls: "provision,validate",
			wantErr:   "validating module test.badvalidate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []string
			registerTemp(t, &recorder{id: tt.id, calls: &calls, fail: map[string]bool{tt.fail: true}})

			ctx := NewAppContext(nil, t.TempDir())
			if tt.config != "" {
				ctx = ctx.WithModuleConfigs(map[string]yaml.Node{string(tt.id): yamlSection(t, tt.config)})
			}

			mod, err := ctx.LoadModule(string(tt.id))
			if tt.wantErr == "" {
				if err != nil || mod == nil {
					t.Fatalf("LoadModule = (%v, %v)", mod, err)
				}
			} else if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
			if got := strings.Join(calls, ","); got != tt.wantCalls {
				t.Errorf("calls = %s, want %s", got, tt.wantCalls)
			}
		})
	}
}

func TestAppContext_LoadModuleUnknownAndBare(t *testing.T) {
	ctx := NewAppContext(nil, t.TempDir())
	if _, err := ctx.LoadModule("store.redis"); err == nil {
		t.Error("expected error for an unregistered module")
	}

	// A section for a module that cannot take one is ignored.
	registerTemp(t, &bare{id: "test.bare"})
	ctx = ctx.WithModuleConfigs(map[string]yaml.Node{"test.bare": yamlSection(t, "x: 1")})
	if _, err := ctx.LoadModule("test.bare"); err != nil {
		t.Errorf("LoadModule(test.bare) = %v", err)
	}
}

func TestRegisterModule_Panics(t *testing.T) {
	registerTemp(t, &bare{id: "test.once"})

	tests := []struct {
		name string
		mod  Module
	}{
		{"duplicate", &bare{id: "test.once"}},
		{"empty id", &bare{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			RegisterModule(tt.mod)
		})
	}
}

func TestGetModulesByNamespace(t *testing.T) {
	registerTemp(t, &bare{id: "testns.b"})
	registerTemp(t, &bare{id: "testns.a"})
	registerTemp(t, &bare{id: "other.c"})

	got := GetModulesByNamespace("testns")
	if len(got) != 2 || got[0].ID != "testns.a" || got[1].ID != "testns.b" {
		t.Errorf("GetModulesByNamespace = %v", got)
	}
}

func TestAppContext_ForModule(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	root := NewAppContext(slog.New(slog.NewTextHandler(&buf, nil)), "/var/lib/warden").
		WithModuleConfigs(map[string]yaml.Node{"channel.telegram": yamlSection(t, "token: abc")})

	tg := root.ForModule("channel.telegram")
	tg.Logger.Info("polling")
	if !strings.Contains(buf.String(), "module=channel.telegram") {
		t.Errorf("log = %q, want module attribute", buf.String())
	}

	// Scoping twice does not stack module attributes.
	buf.Reset()
	tg.ForModule("gateway.http").Logger.Info("serving")
	if strings.Contains(buf.String(), "channel.telegram") {
		t.Errorf("log = %q, want only gateway.http", buf.String())
	}

	if tg.DataDir != "/var/lib/warden" {
		t.Errorf("DataDir = %q", tg.DataDir)
	}
	if _, ok := tg.ModuleConfig("channel.telegram"); !ok {
		t.Error("scoped context lost the module configs")
	}
	if _, ok := tg.ModuleConfig("gateway.http"); ok {
		t.Error("unexpected config for gateway.http")
	}
}

func TestAppContext_Services(t *testing.T) {
	t.Parallel()

	root := NewAppContext(nil, "/data")
	root.ForModule("store.bolt").RegisterService("verify.store", "bolt")

	// Visible from sibling scopes and from a reload context.
	if got, _ := ServiceAs[string](root.ForModule("channel.telegram"), "verify.store"); got != "bolt" {
		t.Errorf("sibling sees %q", got)
	}
	reloaded := NewAppContext(nil, "/data").WithServicesFrom(root)
	if _, ok := reloaded.Service("verify.store"); !ok {
		t.Error("reload context should share services")
	}

	root.RegisterService("verify.store", "sqlite")
	if got, _ := ServiceAs[string](reloaded, "verify.store"); got != "sqlite" {
		t.Errorf("replacement not visible, got %q", got)
	}

	if _, ok := ServiceAs[int](root, "verify.store"); ok {
		t.Error("ServiceAs with the wrong type should report false")
	}
	if _, ok := ServiceAs[string](root, "bot.events"); ok {
		t.Error("ServiceAs for a missing service should report false")
	}
}

func TestModuleID_Parts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id              ModuleID
		namespace, name string
	}{
		{"channel.telegram", "channel", "telegram"},
		{"relay.github", "relay", "github"},
		{"standalone", "", "standalone"},
	}
	for _, tt := range tests {
		if got := tt.id.Namespace(); got != tt.namespace {
			t.Errorf("%s.Namespace() = %q, want %q", tt.id, got, tt.namespace)
		}
		if got := tt.id.Name(); got != tt.name {
			t.Errorf("%s.Name() = %q, want %q", tt.id, got, tt.name)
		}
	}
}

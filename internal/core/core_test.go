package core

import (
	"context"
	"errors"
	"slices"
	"testing"
)

// orderModule records Start/Stop calls into a shared log.
type orderModule struct {
	id       ModuleID
	log      *[]string
	startErr error
}

func (m *orderModule) ModuleInfo() ModuleInfo {
	return ModuleInfo{ID: m.id, New: func() Module { return m }}
}

func (m *orderModule) Start() error {
	if m.startErr != nil {
		return m.startErr
	}
	*m.log = append(*m.log, "start:"+string(m.id))
	return nil
}

func (m *orderModule) Stop(_ context.Context) error {
	*m.log = append(*m.log, "stop:"+string(m.id))
	return nil
}

func TestApp_StartStopOrder(t *testing.T) {
	var log []string
	app := NewApp(NewAppContext(nil, t.TempDir()))
	app.AppendModule("a", &orderModule{id: "a", log: &log})
	app.AppendModule("b", &orderModule{id: "b", log: &log})

	if err := app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := app.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	want := []string{"start:a", "start:b", "stop:b", "stop:a"}
	if !slices.Equal(log, want) {
		t.Errorf("lifecycle = %v, want %v", log, want)
	}
}

func TestApp_StartFailureStopsStarted(t *testing.T) {
	var log []string
	app := NewApp(NewAppContext(nil, t.TempDir()))
	app.AppendModule("a", &orderModule{id: "a", log: &log})
	app.AppendModule("b", &orderModule{id: "b", log: &log, startErr: errors.New("boom")})

	if err := app.Start(); err == nil {
		t.Fatal("expected start error")
	}

	want := []string{"start:a", "stop:a"}
	if !slices.Equal(log, want) {
		t.Errorf("lifecycle = %v, want %v", log, want)
	}
}

func TestApp_Module(t *testing.T) {
	var log []string
	app := NewApp(NewAppContext(nil, t.TempDir()))
	mod := &orderModule{id: "bot", log: &log}
	app.AppendModule("bot", mod)

	got, ok := app.Module("bot")
	if !ok || got != mod {
		t.Errorf("Module(bot) = (%v, %v), want the appended module", got, ok)
	}
	if _, ok := app.Module("missing"); ok {
		t.Error("Module(missing) should report false")
	}
}

// stopOnly has no Start, like a store that opens its database in Provision.
type stopOnly struct {
	id  ModuleID
	log *[]string
}

func (m *stopOnly) ModuleInfo() ModuleInfo {
	return ModuleInfo{ID: m.id, New: func() Module { return m }}
}

func (m *stopOnly) Stop(_ context.Context) error {
	*m.log = append(*m.log, "stop:"+string(m.id))
	return nil
}

func TestApp_StopReleasesModulesWithoutStart(t *testing.T) {
	var log []string
	app := NewApp(NewAppContext(nil, t.TempDir()))
	app.AppendModule("store", &stopOnly{id: "store", log: &log})
	app.AppendModule("bot", &orderModule{id: "bot", log: &log})

	if err := app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := app.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := app.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	want := []string{"start:bot", "stop:bot", "stop:store"}
	if !slices.Equal(log, want) {
		t.Errorf("lifecycle = %v, want %v", log, want)
	}
}

func TestApp_StopJoinsErrors(t *testing.T) {
	app := NewApp(NewAppContext(nil, t.TempDir()))
	app.AppendModule("bad", &failingStop{})

	if err := app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := app.Stop(); err == nil || !errors.Is(err, errStop) {
		t.Fatalf("Stop = %v, want errStop", err)
	}
}

var errStop = errors.New("close failed")

type failingStop struct{}

func (f *failingStop) ModuleInfo() ModuleInfo {
	return ModuleInfo{ID: "bad", New: func() Module { return f }}
}

func (f *failingStop) Stop(context.Context) error { return errStop }

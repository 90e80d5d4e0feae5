package bolt

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flemzord/warden/internal/core"
	"github.com/flemzord/warden/internal/verify"
	"gopkg.in/yaml.v3"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "verify.bolt")
	}
	s, err := Open(cfg, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func pending(userID int64, deadline time.Time) verify.Pending {
	return verify.Pending{
		UserID:       userID,
		ChatID:       -100,
		FirstName:    "Bob",
		CorrectIndex: 1,
		MessageID:    77,
		CreatedAt:    deadline.Add(-time.Minute),
		Deadline:     deadline,
	}
}

func TestStore_SetGetTake(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t, Config{})
	p := pending(3, time.Now().Add(time.Minute))

	if err := s.Set(ctx, p); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := s.Get(ctx, 3)
	if !ok || got.MessageID != 77 || got.FirstName != "Bob" || !got.Deadline.Equal(p.Deadline) {
		t.Fatalf("Get = %+v, %v", got, ok)
	}

	if _, ok := s.Take(ctx, 3); !ok {
		t.Fatal("Take should return the record")
	}
	if _, ok := s.Take(ctx, 3); ok {
		t.Error("second Take should find nothing")
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestStore_TakeIsExclusive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t, Config{})
	_ = s.Set(ctx, pending(9, time.Now().Add(time.Minute)))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.Take(ctx, 9); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Errorf("Take succeeded %d times, want 1", wins.Load())
	}
}

func TestStore_ExpiredAndPurge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t, Config{Grace: time.Second})
	now := time.Now()
	s.now = func() time.Time { return now }

	_ = s.Set(ctx, pending(1, now.Add(-2*time.Second)))
	_ = s.Set(ctx, pending(2, now.Add(-500*time.Millisecond)))
	_ = s.Set(ctx, pending(3, now.Add(time.Minute)))

	if _, ok := s.Get(ctx, 1); ok {
		t.Error("record past its TTL should read as absent")
	}

	expired := s.Expired(ctx, now)
	if len(expired) != 1 || expired[0].UserID != 2 {
		t.Fatalf("Expired = %+v, want only user 2", expired)
	}
	if s.Len() != 2 {
		t.Errorf("Len() after purge = %d, want 2", s.Len())
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "verify.bolt")

	s, err := Open(Config{Path: path}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Set(ctx, pending(4, time.Now().Add(time.Minute)))
	_ = s.Close()

	reopened := openTestStore(t, Config{Path: path})
	if _, ok := reopened.Get(ctx, 4); !ok {
		t.Error("record should survive reopening")
	}
}

func TestModule_RegistersService(t *testing.T) {
	t.Parallel()

	var node yaml.Node
	if err := yaml.Unmarshal([]byte("grace: 10s\n"), &node); err != nil {
		t.Fatal(err)
	}
	m := &Module{}
	if err := m.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if m.config.Grace != 10*time.Second {
		t.Errorf("Grace = %v", m.config.Grace)
	}

	appCtx := core.NewAppContext(testLogger(), t.TempDir())
	if err := m.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	if _, ok := core.ServiceAs[verify.Store](appCtx, ServiceName); !ok {
		t.Error("store service should be registered")
	}
}

package verify

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryStore_SetGetTake(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })

	p := Pending{UserID: 1, ChatID: -10, FirstName: "A", CorrectIndex: 1, MessageID: 5}
	if err := s.Set(ctx, p); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := s.Get(ctx, 1)
	if !ok || got != p {
		t.Fatalf("Get = %+v, %v", got, ok)
	}

	taken, ok := s.Take(ctx, 1)
	if !ok || taken != p {
		t.Fatalf("Take = %+v, %v", taken, ok)
	}
	if _, ok := s.Take(ctx, 1); ok {
		t.Error("second Take should find nothing")
	}
}

func TestMemoryStore_TakeCancelsEviction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })

	var fired atomic.Bool
	_ = s.Set(ctx, Pending{UserID: 1})
	s.ScheduleEviction(1, 20*time.Millisecond, func() { fired.Store(true) })
	s.Take(ctx, 1)

	time.Sleep(60 * time.Millisecond)
	if fired.Load() {
		t.Error("eviction should have been cancelled by Take")
	}
}

func TestMemoryStore_TakeIsExclusive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	_ = s.Set(ctx, Pending{UserID: 9})

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
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

func TestMemoryStore_Expired(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })

	now := time.Now()
	_ = s.Set(ctx, Pending{UserID: 1, Deadline: now.Add(-2 * time.Second)})
	_ = s.Set(ctx, Pending{UserID: 2, Deadline: now.Add(-time.Second)})
	_ = s.Set(ctx, Pending{UserID: 3, Deadline: now.Add(time.Minute)})

	got := s.Expired(ctx, now)
	if len(got) != 2 {
		t.Fatalf("Expired returned %d records, want 2", len(got))
	}
	if got[0].UserID != 1 || got[1].UserID != 2 {
		t.Errorf("Expired order = [%d %d], want [1 2]", got[0].UserID, got[1].UserID)
	}
}

func TestTimers_ScheduleReplaces(t *testing.T) {
	t.Parallel()

	timers := NewTimers()
	t.Cleanup(timers.StopAll)

	var first, second atomic.Bool
	timers.Schedule(1, 20*time.Millisecond, func() { first.Store(true) })
	timers.Schedule(1, 20*time.Millisecond, func() { second.Store(true) })

	deadline := time.Now().Add(time.Second)
	for !second.Load() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !second.Load() {
		t.Fatal("replacement timer did not fire")
	}
	if first.Load() {
		t.Error("replaced timer should not fire")
	}
	if timers.Len() != 0 {
		t.Errorf("Len() = %d after firing, want 0", timers.Len())
	}
}

func TestKey(t *testing.T) {
	t.Parallel()
	if got := Key(DefaultKeyPrefix, 42); got != "tgbot:verification:42" {
		t.Errorf("Key = %q", got)
	}
}

package verify

import (
	"sync"
	"time"
)

// Timers holds one pending eviction timer per user.
type Timers struct {
	mu     sync.Mutex
	timers map[int64]*timerEntry
}

type timerEntry struct {
	timer *time.Timer
}

// NewTimers creates an empty timer set.
func NewTimers() *Timers {
	return &Timers{timers: make(map[int64]*timerEntry)}
}

// Schedule arms fn to run after delay, replacing any timer for userID.
func (t *Timers) Schedule(userID int64, delay time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.timers[userID]; ok {
		old.timer.Stop()
	}
	entry := &timerEntry{}
	entry.timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		if t.timers[userID] == entry {
			delete(t.timers, userID)
		}
		t.mu.Unlock()
		fn()
	})
	t.timers[userID] = entry
}

// Cancel stops the timer for userID. It reports whether a timer was armed.
func (t *Timers) Cancel(userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.timers[userID]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(t.timers, userID)
	return true
}

// Len reports the number of armed timers.
func (t *Timers) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// StopAll disarms every timer.
func (t *Timers) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, entry := range t.timers {
		entry.timer.Stop()
		delete(t.timers, id)
	}
}

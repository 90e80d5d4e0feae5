package verify

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-process Store. Records do not survive a restart.
type MemoryStore struct {
	mu      sync.Mutex
	records map[int64]Pending
	timers  *Timers
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[int64]Pending),
		timers:  NewTimers(),
	}
}

func (s *MemoryStore) Get(_ context.Context, userID int64) (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.records[userID]
	return p, ok
}

func (s *MemoryStore) Set(_ context.Context, p Pending) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[p.UserID] = p
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, userID int64) {
	s.timers.Cancel(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userID)
}

func (s *MemoryStore) Take(_ context.Context, userID int64) (Pending, bool) {
	s.timers.Cancel(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.records[userID]
	if ok {
		delete(s.records, userID)
	}
	return p, ok
}

func (s *MemoryStore) ScheduleEviction(userID int64, delay time.Duration, fn func()) {
	s.timers.Schedule(userID, delay, fn)
}

func (s *MemoryStore) Expired(_ context.Context, now time.Time) []Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Pending
	for _, p := range s.records {
		if !p.Deadline.After(now) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out
}

// Len reports the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MemoryStore) Close() error {
	s.timers.StopAll()
	return nil
}

// Package crontest provides test doubles for the collaborators of the
// cron jobs.
package crontest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/flemzord/warden/internal/cron"
)

// MockSweeper is a test double for cron.Sweeper.
type MockSweeper struct {
	SweepFunc func(now time.Time) int
	Calls     atomic.Int32
}

var _ cron.Sweeper = (*MockSweeper)(nil)

// SweepExpired implements cron.Sweeper.
func (m *MockSweeper) SweepExpired(_ context.Context, now time.Time) int {
	m.Calls.Add(1)
	if m.SweepFunc != nil {
		return m.SweepFunc(now)
	}
	return 0
}

// MockSyncer is a test double for cron.CommandSyncer.
type MockSyncer struct {
	Changed bool
	Err     error
	Calls   atomic.Int32
}

var _ cron.CommandSyncer = (*MockSyncer)(nil)

// SyncCommands implements cron.CommandSyncer.
func (m *MockSyncer) SyncCommands(context.Context) (bool, error) {
	m.Calls.Add(1)
	return m.Changed, m.Err
}

package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Sweeper evicts verification records whose deadline has passed.
// Implemented by verify.Engine; defined here to keep cron free of bot imports.
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) int
}

// CommandSyncer publishes the bot's command menu when it has drifted.
type CommandSyncer interface {
	SyncCommands(ctx context.Context) (bool, error)
}

// VerificationSweepJob replays timeouts for challenges whose in-process
// timer was lost, for example after a restart with a durable store.
type VerificationSweepJob struct {
	Sweeper      Sweeper
	Logger       *slog.Logger
	Now          func() time.Time // nil = time.Now
	ScheduleExpr string           // empty = default "@every 30s"
}

// Compile-time interface check.
var (
	_ Job       = (*VerificationSweepJob)(nil)
	_ Immediate = (*VerificationSweepJob)(nil)
)

// Name implements Job.
func (j *VerificationSweepJob) Name() string { return "verification_sweep" }

// Schedule implements Job.
func (j *VerificationSweepJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "@every 30s"
}

// RunOnStart implements Immediate: records left by a previous process are
// evicted without waiting for the first tick.
func (j *VerificationSweepJob) RunOnStart() bool { return true }

// Run evicts every expired challenge.
func (j *VerificationSweepJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: verification sweep cancelled: %w", ctx.Err())
	}
	now := time.Now()
	if j.Now != nil {
		now = j.Now()
	}
	if n := j.Sweeper.SweepExpired(ctx, now); n > 0 {
		j.Logger.Info("cron: evicted expired challenges", "count", n)
	}
	return nil
}

// CommandSyncJob re-publishes the command menu so edits made by other
// clients of the same bot token are reverted.
type CommandSyncJob struct {
	Syncer       CommandSyncer
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "@every 6h"
}

// Compile-time interface check.
var _ Job = (*CommandSyncJob)(nil)

// Name implements Job.
func (j *CommandSyncJob) Name() string { return "command_sync" }

// Schedule implements Job.
func (j *CommandSyncJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "@every 6h"
}

// Run compares the published menu with the registered commands.
func (j *CommandSyncJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: command sync cancelled: %w", ctx.Err())
	}
	changed, err := j.Syncer.SyncCommands(ctx)
	if err != nil {
		return fmt.Errorf("cron: command sync: %w", err)
	}
	if changed {
		j.Logger.Info("cron: command menu updated")
	}
	return nil
}

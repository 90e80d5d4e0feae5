// Package cron provides a job scheduler for periodic bot maintenance such
// as sweeping expired verification challenges and re-publishing the
// command menu.
package cron

import "context"

// Job defines a periodic background task.
type Job interface {
	// Name returns a unique identifier for this job (used for logging and dedup).
	Name() string

	// Schedule returns a 5-field cron expression (e.g., "*/5 * * * *") or a
	// descriptor such as "@every 30s".
	Schedule() string

	// Run executes the job. Implementations should check ctx.Done() for
	// graceful cancellation.
	Run(ctx context.Context) error
}

// Immediate is implemented by jobs that also run once as soon as the
// scheduler starts, before their first scheduled tick.
type Immediate interface {
	RunOnStart() bool
}

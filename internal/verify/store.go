// Package verify implements new-member verification: the challenge
// issued on join, the answer handling and the timeout eviction, backed
// by a pluggable record store.
package verify

import (
	"context"
	"strconv"
	"time"
)

// Pending is an outstanding challenge for one user. Records are never
// mutated once written; a re-issue replaces the record.
type Pending struct {
	UserID       int64     `json:"user_id"`
	ChatID       int64     `json:"chat_id"`
	FirstName    string    `json:"first_name"`
	CorrectIndex int       `json:"correct_index"`
	MessageID    int64     `json:"message_id"`
	CreatedAt    time.Time `json:"created_at"`
	Deadline     time.Time `json:"deadline"`
}

// Store keeps at most one Pending record per user.
//
// Backend failures are logged by the implementation and reported as an
// absent record, so callers only branch on presence.
type Store interface {
	Get(ctx context.Context, userID int64) (Pending, bool)
	Set(ctx context.Context, p Pending) error
	Delete(ctx context.Context, userID int64)

	// Take atomically reads and removes the record and cancels any
	// scheduled eviction. Of two concurrent callers, exactly one gets it.
	Take(ctx context.Context, userID int64) (Pending, bool)

	// ScheduleEviction runs fn after delay, replacing any schedule
	// previously registered for userID.
	ScheduleEviction(userID int64, delay time.Duration, fn func())

	// Expired lists records whose deadline is at or before now.
	Expired(ctx context.Context, now time.Time) []Pending

	Close() error
}

// DefaultKeyPrefix namespaces durable keys.
const DefaultKeyPrefix = "tgbot:"

// Key returns the durable key of a user's record.
func Key(prefix string, userID int64) string {
	return prefix + "verification:" + strconv.FormatInt(userID, 10)
}

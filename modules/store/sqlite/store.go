package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/flemzord/warden/internal/verify"
	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite" // SQLite driver registration
)

var _ verify.Store = (*Store)(nil)

// row is the database shape of a verify.Pending. Times are unix milliseconds.
type row struct {
	Key          string `db:"key"`
	UserID       int64  `db:"user_id"`
	ChatID       int64  `db:"chat_id"`
	FirstName    string `db:"first_name"`
	CorrectIndex int    `db:"correct_index"`
	MessageID    int64  `db:"message_id"`
	CreatedAt    int64  `db:"created_at"`
	Deadline     int64  `db:"deadline"`
	ExpiresAt    int64  `db:"expires_at"`
}

func (r row) pending() verify.Pending {
	return verify.Pending{
		UserID:       r.UserID,
		ChatID:       r.ChatID,
		FirstName:    r.FirstName,
		CorrectIndex: r.CorrectIndex,
		MessageID:    r.MessageID,
		CreatedAt:    time.UnixMilli(r.CreatedAt),
		Deadline:     time.UnixMilli(r.Deadline),
	}
}

const columns = `key, user_id, chat_id, first_name, correct_index, message_id, created_at, deadline, expires_at`

// Store is a verify.Store persisted in SQLite. Rows carry an expires_at of
// deadline plus grace; rows past it read as absent and are purged.
// Eviction timers are in-process.
type Store struct {
	db     *sqlx.DB
	prefix string
	grace  time.Duration
	timers *verify.Timers
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the database described by cfg.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sqlx.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	// SQLite handles one writer at a time; limit pool to 1 connection
	// so PRAGMAs apply consistently.
	db.SetMaxOpenConns(1)

	if cfg.walEnabled() {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:     db,
		prefix: cfg.KeyPrefix,
		grace:  cfg.Grace,
		timers: verify.NewTimers(),
		logger: logger,
		now:    time.Now,
	}, nil
}

func (s *Store) key(userID int64) string {
	return verify.Key(s.prefix, userID)
}

func (s *Store) Get(ctx context.Context, userID int64) (verify.Pending, bool) {
	var r row
	err := s.db.GetContext(ctx, &r,
		`SELECT `+columns+` FROM verifications WHERE key = ? AND expires_at > ?`,
		s.key(userID), s.now().UnixMilli())
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("sqlite: get verification failed", "user_id", userID, "error", err)
		}
		return verify.Pending{}, false
	}
	return r.pending(), true
}

func (s *Store) Set(ctx context.Context, p verify.Pending) error {
	r := row{
		Key:          s.key(p.UserID),
		UserID:       p.UserID,
		ChatID:       p.ChatID,
		FirstName:    p.FirstName,
		CorrectIndex: p.CorrectIndex,
		MessageID:    p.MessageID,
		CreatedAt:    p.CreatedAt.UnixMilli(),
		Deadline:     p.Deadline.UnixMilli(),
		ExpiresAt:    p.Deadline.Add(s.grace).UnixMilli(),
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO verifications (`+columns+`)
		VALUES (:key, :user_id, :chat_id, :first_name, :correct_index, :message_id, :created_at, :deadline, :expires_at)
		ON CONFLICT(key) DO UPDATE SET
			user_id = excluded.user_id,
			chat_id = excluded.chat_id,
			first_name = excluded.first_name,
			correct_index = excluded.correct_index,
			message_id = excluded.message_id,
			created_at = excluded.created_at,
			deadline = excluded.deadline,
			expires_at = excluded.expires_at`, r)
	if err != nil {
		return fmt.Errorf("sqlite: set verification %d: %w", p.UserID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, userID int64) {
	s.timers.Cancel(userID)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM verifications WHERE key = ?`, s.key(userID)); err != nil {
		s.logger.Error("sqlite: delete verification failed", "user_id", userID, "error", err)
	}
}

func (s *Store) Take(ctx context.Context, userID int64) (verify.Pending, bool) {
	s.timers.Cancel(userID)

	var r row
	err := s.db.GetContext(ctx, &r,
		`DELETE FROM verifications WHERE key = ? RETURNING `+columns, s.key(userID))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("sqlite: take verification failed", "user_id", userID, "error", err)
		}
		return verify.Pending{}, false
	}
	if r.ExpiresAt <= s.now().UnixMilli() {
		return verify.Pending{}, false
	}
	return r.pending(), true
}

func (s *Store) ScheduleEviction(userID int64, delay time.Duration, fn func()) {
	s.timers.Schedule(userID, delay, fn)
}

// Expired purges rows past their TTL, then lists rows past their deadline.
func (s *Store) Expired(ctx context.Context, now time.Time) []verify.Pending {
	if n, err := s.Purge(ctx, now); err != nil {
		s.logger.Error("sqlite: purge failed", "error", err)
	} else if n > 0 {
		s.logger.Info("sqlite: purged stale verifications", "count", n)
	}

	var rows []row
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+columns+` FROM verifications WHERE deadline <= ? AND key LIKE ? ORDER BY deadline`,
		now.UnixMilli(), s.prefix+"verification:%")
	if err != nil {
		s.logger.Error("sqlite: list expired failed", "error", err)
		return nil
	}
	out := make([]verify.Pending, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.pending())
	}
	return out
}

// Purge deletes rows whose TTL has passed and returns how many were removed.
func (s *Store) Purge(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM verifications WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite: purge: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	s.timers.StopAll()
	return s.db.Close()
}

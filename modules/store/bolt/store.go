package bolt

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/boltdb/bolt"
	"github.com/flemzord/warden/internal/verify"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var bucketName = []byte("verifications")

var _ verify.Store = (*Store)(nil)

// record is the stored value: the pending challenge plus its purge time.
type record struct {
	verify.Pending
	ExpiresAt time.Time `json:"expires_at"`
}

// Store is a verify.Store persisted in a bolt file. Every Take runs in a
// single write transaction, which serializes concurrent claims.
type Store struct {
	db     *bolt.DB
	prefix string
	grace  time.Duration
	timers *verify.Timers
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the bolt file described by cfg.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("bolt: create directory %s: %w", dir, err)
		}
	}

	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: cfg.OpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", cfg.Path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bolt: create bucket: %w", err)
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

func (s *Store) key(userID int64) []byte {
	return []byte(verify.Key(s.prefix, userID))
}

func (s *Store) decode(userID int64, raw []byte) (record, bool) {
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		s.logger.Error("bolt: corrupt verification record", "user_id", userID, "error", err)
		return record{}, false
	}
	return r, true
}

func (s *Store) Get(_ context.Context, userID int64) (verify.Pending, bool) {
	var (
		r     record
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketName).Get(s.key(userID))
		if raw == nil {
			return nil
		}
		r, found = s.decode(userID, raw)
		return nil
	})
	if err != nil {
		s.logger.Error("bolt: get verification failed", "user_id", userID, "error", err)
		return verify.Pending{}, false
	}
	if !found || !r.ExpiresAt.After(s.now()) {
		return verify.Pending{}, false
	}
	return r.Pending, true
}

func (s *Store) Set(_ context.Context, p verify.Pending) error {
	raw, err := json.Marshal(record{Pending: p, ExpiresAt: p.Deadline.Add(s.grace)})
	if err != nil {
		return fmt.Errorf("bolt: encode verification %d: %w", p.UserID, err)
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(s.key(p.UserID), raw)
	}); err != nil {
		return fmt.Errorf("bolt: set verification %d: %w", p.UserID, err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, userID int64) {
	s.timers.Cancel(userID)
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete(s.key(userID))
	}); err != nil {
		s.logger.Error("bolt: delete verification failed", "user_id", userID, "error", err)
	}
}

func (s *Store) Take(_ context.Context, userID int64) (verify.Pending, bool) {
	s.timers.Cancel(userID)

	var (
		r     record
		found bool
	)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		key := s.key(userID)
		raw := b.Get(key)
		if raw == nil {
			return nil
		}
		r, found = s.decode(userID, raw)
		return b.Delete(key)
	})
	if err != nil {
		s.logger.Error("bolt: take verification failed", "user_id", userID, "error", err)
		return verify.Pending{}, false
	}
	if !found || !r.ExpiresAt.After(s.now()) {
		return verify.Pending{}, false
	}
	return r.Pending, true
}

func (s *Store) ScheduleEviction(userID int64, delay time.Duration, fn func()) {
	s.timers.Schedule(userID, delay, fn)
}

// Expired purges records past their TTL, then lists records past their
// deadline, oldest first.
func (s *Store) Expired(_ context.Context, now time.Time) []verify.Pending {
	prefix := []byte(s.prefix + "verification:")
	var out []verify.Pending
	purged := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		var stale [][]byte
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var r record
			if err := json.Unmarshal(v, &r); err != nil || !r.ExpiresAt.After(now) {
				stale = append(stale, append([]byte(nil), k...))
				continue
			}
			if !r.Deadline.After(now) {
				out = append(out, r.Pending)
			}
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		purged = len(stale)
		return nil
	})
	if err != nil {
		s.logger.Error("bolt: list expired failed", "error", err)
		return nil
	}
	if purged > 0 {
		s.logger.Info("bolt: purged stale verifications", "count", purged)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out
}

// Len reports the number of stored records, including unpurged stale ones.
func (s *Store) Len() int {
	n := 0
	_ = s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketName).Stats().KeyN
		return nil
	})
	return n
}

func (s *Store) Close() error {
	s.timers.StopAll()
	return s.db.Close()
}

package sqlite

import (
	"errors"
	"time"

	"github.com/flemzord/warden/internal/verify"
)

const (
	defaultBusyTimeout = 5000
	defaultDBFile      = "verifications.db"
	defaultGrace       = 5 * time.Minute
)

// Config holds the SQLite verification store configuration.
type Config struct {
	// Path is the database file path. Defaults to {DataDir}/verifications.db.
	Path string `yaml:"path"`

	// WAL enables WAL journal mode. Defaults to true.
	WAL *bool `yaml:"wal"`

	// BusyTimeout is the milliseconds to wait on a busy lock. Defaults to 5000.
	BusyTimeout int `yaml:"busy_timeout"`

	// KeyPrefix namespaces record keys. Defaults to "tgbot:".
	KeyPrefix string `yaml:"key_prefix"`

	// Grace is how long past its deadline an unclaimed record is kept
	// before it is purged. Defaults to 5m.
	Grace time.Duration `yaml:"grace"`
}

func (c *Config) defaults() {
	if c.WAL == nil {
		t := true
		c.WAL = &t
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = verify.DefaultKeyPrefix
	}
	if c.Grace == 0 {
		c.Grace = defaultGrace
	}
}

func (c *Config) walEnabled() bool {
	return c.WAL != nil && *c.WAL
}

func (c *Config) validate() error {
	if c.BusyTimeout < 0 {
		return errors.New("sqlite: busy_timeout must be >= 0")
	}
	if c.Grace < 0 {
		return errors.New("sqlite: grace must be >= 0")
	}
	return nil
}

package bolt

import (
	"errors"
	"time"

	"github.com/flemzord/warden/internal/verify"
)

const (
	defaultDBFile      = "verifications.bolt"
	defaultGrace       = 5 * time.Minute
	defaultOpenTimeout = time.Second
)

// Config holds the bolt verification store configuration.
type Config struct {
	// Path is the database file. Defaults to {DataDir}/verifications.bolt.
	Path string `yaml:"path"`

	// KeyPrefix namespaces record keys. Defaults to "tgbot:".
	KeyPrefix string `yaml:"key_prefix"`

	// Grace is how long past its deadline an unclaimed record is kept.
	Grace time.Duration `yaml:"grace"`

	// OpenTimeout bounds the wait for the file lock. Defaults to 1s.
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

func (c *Config) defaults() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = verify.DefaultKeyPrefix
	}
	if c.Grace == 0 {
		c.Grace = defaultGrace
	}
	if c.OpenTimeout == 0 {
		c.OpenTimeout = defaultOpenTimeout
	}
}

func (c *Config) validate() error {
	if c.Grace < 0 {
		return errors.New("bolt: grace must be >= 0")
	}
	if c.OpenTimeout < 0 {
		return errors.New("bolt: open_timeout must be >= 0")
	}
	return nil
}

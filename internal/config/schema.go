// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for warden.
package config

import (
	"github.com/flemzord/warden/internal/security"
	"github.com/flemzord/warden/internal/telemetry"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "channel.telegram").
	Modules map[string]yaml.Node `yaml:"modules"`

	// DataDir holds durable module state (verification databases).
	// Defaults to the directory of the config file.
	DataDir string `yaml:"data_dir,omitempty"`

	Log      LogConfig        `yaml:"log,omitempty"`
	Tracing  telemetry.Config `yaml:"tracing,omitempty"`
	Security SecurityConfig   `yaml:"security,omitempty"`
}

// LogConfig selects the root log handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string `yaml:"level,omitempty"`

	// Format is "text" (default) or "json".
	Format string `yaml:"format,omitempty"`
}

// SecurityConfig holds redaction, audit and rate-limit settings shared by
// the gateway and the bot.
type SecurityConfig struct {
	// AuditLog is a JSONL file receiving admin and webhook audit events.
	// Empty disables the file sink.
	AuditLog string `yaml:"audit_log,omitempty"`

	// Redact lists extra regular expressions scrubbed from every log line.
	Redact []string `yaml:"redact,omitempty"`

	RateLimits security.RateLimitConfig `yaml:"rate_limits,omitempty"`
}

package telegram

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/flemzord/warden/internal/cron"
	"github.com/flemzord/warden/internal/guard"
	"github.com/flemzord/warden/internal/plugin/builtin"
	"github.com/flemzord/warden/internal/verify"
)

// tokenPattern matches the Telegram bot token format: <digits>:<alphanum+dash>.
var tokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// Delivery modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// StoreMemory forces the in-process verification store.
const StoreMemory = "memory"

// Config holds the Telegram bot configuration.
type Config struct {
	Token          string   `yaml:"token"`
	Mode           string   `yaml:"mode"`
	WebhookURL     string   `yaml:"webhook_url"`
	WebhookSecret  string   `yaml:"webhook_secret"`
	PollingTimeout int      `yaml:"polling_timeout"`
	AllowedUpdates []string `yaml:"allowed_updates"`
	APIURL         string   `yaml:"api_url"`

	Verification VerificationConfig `yaml:"verification"`
	Whitelist    WhitelistConfig    `yaml:"whitelist"`
	AdminUsers   []int64            `yaml:"admin_users"`
	Plugins      []string           `yaml:"plugins"`

	SweepSchedule       string `yaml:"sweep_schedule"`
	CommandSyncSchedule string `yaml:"command_sync_schedule"`
}

// VerificationConfig configures new-member verification.
type VerificationConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	// Store is "memory" or the service name of a durable verify.Store.
	// Empty uses the registered "verify.store" service when present.
	Store string `yaml:"store"`
}

// WhitelistConfig restricts whitelisted commands to the listed groups.
type WhitelistConfig struct {
	Enabled bool    `yaml:"enabled"`
	Groups  []int64 `yaml:"groups"`
}

// defaults applies default values to unset fields.
func (c *Config) defaults() {
	if c.Mode == "" {
		c.Mode = ModePolling
	}
	if c.PollingTimeout == 0 {
		c.PollingTimeout = 30
	}
	if c.AllowedUpdates == nil {
		c.AllowedUpdates = []string{"message", "callback_query"}
	}
	if c.APIURL == "" {
		c.APIURL = gotgbot.DefaultAPIURL
	}
	if c.Verification.Timeout <= 0 {
		c.Verification.Timeout = verify.DefaultTimeout
	}
	if c.Plugins == nil {
		c.Plugins = append([]string(nil), builtin.DefaultPlugins...)
	}
	if c.SweepSchedule == "" {
		c.SweepSchedule = "@every 30s"
	}
	if c.CommandSyncSchedule == "" {
		c.CommandSyncSchedule = "@every 6h"
	}
}

// validate checks field constraints after defaults have been applied.
func (c *Config) validate() error {
	if c.Token == "" {
		return errors.New("telegram: token is required")
	}
	if !tokenPattern.MatchString(c.Token) {
		return errors.New("telegram: token format invalid (expected <bot_id>:<hash>)")
	}

	switch c.Mode {
	case ModePolling:
	case ModeWebhook:
		u, err := url.Parse(c.WebhookURL)
		if c.WebhookURL == "" || err != nil || u.Scheme != "https" {
			return fmt.Errorf("telegram: webhook_url must be an https URL when mode is %q, got %q", ModeWebhook, c.WebhookURL)
		}
	default:
		return fmt.Errorf("telegram: invalid mode %q (must be %q or %q)", c.Mode, ModePolling, ModeWebhook)
	}

	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("telegram: api_url must be a valid http/https URL, got %q", c.APIURL)
	}

	if c.PollingTimeout < 0 || c.PollingTimeout > 50 {
		return fmt.Errorf("telegram: polling_timeout must be 0-50, got %d", c.PollingTimeout)
	}

	catalog := builtin.Catalog()
	for _, name := range c.Plugins {
		if _, ok := catalog[name]; !ok {
			return fmt.Errorf("telegram: unknown plugin %q (available: %v)", name, catalog.Names())
		}
	}

	parser := cron.NewParser()
	for field, expr := range map[string]string{
		"sweep_schedule":        c.SweepSchedule,
		"command_sync_schedule": c.CommandSyncSchedule,
	} {
		if _, err := parser.Parse(expr); err != nil {
			return fmt.Errorf("telegram: invalid %s %q: %w", field, expr, err)
		}
	}
	return nil
}

// guardConfig maps the whitelist and admin settings to the guard.
func (c *Config) guardConfig() guard.Config {
	return guard.Config{
		EnforceWhitelist: c.Whitelist.Enabled,
		AllowedGroups:    c.Whitelist.Groups,
		AdminUsers:       c.AdminUsers,
	}
}

package config

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/flemzord/warden/internal/core"
)

// Validate checks the structural validity of a Config.
// It verifies the version field, ensures modules are present, checks that
// all referenced module IDs exist in the registry and that every module
// which cannot run on defaults has an entry. Log, tracing and security
// settings are validated too, and at most one store.* module may be set.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	for _, info := range core.GetModules() {
		if _, ok := info.New().(core.RequiresConfig); !ok {
			continue
		}
		if _, exists := cfg.Modules[string(info.ID)]; !exists {
			errs = append(errs, fmt.Errorf("config: module %q requires configuration but has no entry", info.ID))
		}
	}

	var stores []string
	for _, info := range core.GetModulesByNamespace("store") {
		if _, ok := cfg.Modules[string(info.ID)]; ok {
			stores = append(stores, string(info.ID))
		}
	}
	if len(stores) > 1 {
		errs = append(errs, fmt.Errorf("config: only one verification store may be configured, got %v", stores))
	}

	errs = append(errs, validateLog(cfg.Log)...)
	if err := cfg.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	errs = append(errs, validateSecurity(cfg.Security)...)

	return errors.Join(errs...)
}

func validateLog(l LogConfig) []error {
	var errs []error
	switch l.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: log.level %q must be one of debug, info, warn, error", l.Level))
	}
	switch l.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format %q must be text or json", l.Format))
	}
	return errs
}

func validateSecurity(sec SecurityConfig) []error {
	var errs []error
	for i, expr := range sec.Redact {
		if _, err := regexp.Compile(expr); err != nil {
			errs = append(errs, fmt.Errorf("config: security.redact[%d]: %w", i, err))
		}
	}
	if sec.RateLimits.AuthPerMin < 0 || sec.RateLimits.WebhooksPerMin < 0 {
		errs = append(errs, errors.New("config: security.rate_limits must not be negative"))
	}
	return errs
}

package config

import (
	"cmp"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/flemzord/warden/internal/core"
)

// FileName is the configuration file looked up by FindConfig.
const FileName = "warden.yaml"

// ErrNotFound is returned by FindConfig when no candidate file exists.
var ErrNotFound = errors.New("config: no " + FileName + " found")

// namespaceOrder is the start order of module namespaces: stores before
// the gateway that serves health checks, the gateway before the bot that
// registers its webhook on it, relays last. Stop runs in reverse, so the
// store outlives every module that writes to it.
var namespaceOrder = map[string]int{
	"store":   0,
	"gateway": 1,
	"channel": 2,
	"relay":   3,
}

// Resolve returns the configured module IDs in load order: by namespace
// rank, then by ID. Unknown namespaces load after the known ones.
func Resolve(cfg *Config) []string {
	ids := slices.Collect(maps.Keys(cfg.Modules))
	slices.SortFunc(ids, func(a, b string) int {
		return cmp.Or(
			cmp.Compare(rank(a), rank(b)),
			cmp.Compare(a, b),
		)
	})
	return ids
}

func rank(id string) int {
	if r, ok := namespaceOrder[core.ModuleID(id).Namespace()]; ok {
		return r
	}
	return len(namespaceOrder)
}

// Candidates lists the locations searched for the config file, in order:
// $XDG_CONFIG_HOME/warden, ~/.config/warden, then the working directory.
func Candidates() []string {
	var paths []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "warden", FileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "warden", FileName))
	}
	return append(paths, FileName)
}

// FindConfig returns the first existing file from Candidates.
func FindConfig() (string, error) {
	for _, p := range Candidates() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", ErrNotFound
}

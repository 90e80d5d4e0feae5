package bot

import (
	"context"
	"fmt"

	"github.com/flemzord/warden/internal/platform"
)

// Commands returns the command menu: plugin commands first, then built-in
// ones, each command listed once.
func (r *Router) Commands() []platform.CommandInfo {
	var out []platform.CommandInfo
	seen := make(map[string]struct{})
	for _, list := range [][]platform.CommandInfo{r.plugins.Commands(), r.registry.Commands()} {
		for _, c := range list {
			if _, ok := seen[c.Command]; ok {
				continue
			}
			seen[c.Command] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// SyncCommands publishes the command menu when it differs from the one
// the platform reports. It reports whether an update was sent.
func (r *Router) SyncCommands(ctx context.Context) (bool, error) {
	desired := r.Commands()
	if len(desired) == 0 {
		return false, nil
	}

	current, err := r.client.GetMyCommands(ctx)
	if err != nil {
		// An unreadable menu is treated as empty.
		r.logger.Warn("reading command menu failed", "error", err)
		current = nil
	}
	if sameCommands(current, desired) {
		r.logger.Debug("command menu up to date", "commands", len(desired))
		return false, nil
	}

	if err := r.client.SetMyCommands(ctx, desired); err != nil {
		return false, fmt.Errorf("bot: publishing command menu: %w", err)
	}
	r.logger.Info("command menu published", "commands", len(desired))
	return true, nil
}

func sameCommands(a, b []platform.CommandInfo) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[platform.CommandInfo]struct{}, len(a))
	for _, c := range a {
		set[c] = struct{}{}
	}
	for _, c := range b {
		if _, ok := set[c]; !ok {
			return false
		}
	}
	return true
}

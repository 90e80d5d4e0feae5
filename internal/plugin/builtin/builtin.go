// Package builtin provides the plugins shipped with warden.
package builtin

import (
	"github.com/flemzord/warden/internal/plugin"
)

// Catalog returns the built-in plugins by name.
func Catalog() plugin.Catalog {
	return plugin.Catalog{
		"greeting": func() plugin.Plugin { return &Greeting{} },
		"help":     func() plugin.Plugin { return &Help{} },
		"logging":  func() plugin.Plugin { return &Logging{} },
		"sysinfo":  func() plugin.Plugin { return NewSysinfo() },
	}
}

// DefaultPlugins are enabled when the configuration names none.
var DefaultPlugins = []string{"greeting", "help", "logging"}

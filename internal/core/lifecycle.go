package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Lifecycle hooks, in call order:
//
//	Configure → Provision → Validate → Start … Reload … Stop
//
// Each hook is optional; App calls the ones a module implements.

// Configurable decodes the module's section of the config file.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner applies defaults, opens resources and registers services
// other modules look up (stores, the event bus, the webhook dispatcher).
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator checks the provisioned configuration. It has no side effects.
type Validator interface {
	Validate() error
}

// Starter begins background work such as polling or serving HTTP. It runs
// once every module has been provisioned, so services are resolvable.
type Starter interface {
	Start() error
}

// Stopper releases what Provision and Start acquired. It runs in reverse
// load order.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader applies a new configuration to a running module. ctx carries
// the freshly loaded module configs and shares the startup services.
type Reloader interface {
	Reload(ctx *AppContext) error
}

// RequiresConfig marks a module that cannot run on defaults, such as the
// Telegram module without a bot token. Validation fails when its config
// section is missing.
type RequiresConfig interface {
	Configurable
	RequiresConfig()
}

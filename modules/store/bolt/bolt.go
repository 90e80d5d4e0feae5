// Package bolt provides a durable verification store in a single bolt
// file, with JSON-encoded records.
package bolt

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/flemzord/warden/internal/core"
	"github.com/flemzord/warden/internal/verify"
	"gopkg.in/yaml.v3"
)

// ServiceName is the service under which the store is registered.
const ServiceName = "verify.store"

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ core.Module       = (*Module)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module registers a bolt-backed verify.Store.
type Module struct {
	config Config
	store  *Store
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "store.bolt",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("bolt: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}

	store, err := Open(m.config, m.logger)
	if err != nil {
		return err
	}
	m.store = store
	ctx.RegisterService(ServiceName, verify.Store(store))

	m.logger.Info("bolt verification store provisioned", "path", m.config.Path)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}

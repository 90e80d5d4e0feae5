// Package sqlite provides a durable verification store backed by SQLite
// (modernc.org/sqlite, pure Go) through sqlx. Pending challenges survive
// a restart and are swept by the verification job.
package sqlite

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

// Compile-time interface guards.
var (
	_ core.Module       = (*Module)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module registers a SQLite-backed verify.Store.
type Module struct {
	config Config
	store  *Store
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "store.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
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

	store, err := Open(context.Background(), m.config, m.logger)
	if err != nil {
		return err
	}
	m.store = store
	ctx.RegisterService(ServiceName, verify.Store(store))

	m.logger.Info("sqlite verification store provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
		"grace", m.config.Grace,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	if err := m.store.Ping(context.Background()); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("sqlite verification store stopping")
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}

// Store returns the underlying store.
func (m *Module) Store() *Store {
	return m.store
}

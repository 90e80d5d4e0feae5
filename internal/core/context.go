// Package core provides the module system foundation for warden.
package core

import (
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"
)

// AppContext is what a module sees of the running process: a logger, the
// data directory, its configuration section and the shared service
// registry.
type AppContext struct {
	// Logger carries a "module" attribute once scoped by ForModule.
	Logger *slog.Logger

	// DataDir holds persistent state such as the verification database.
	DataDir string

	base     *slog.Logger
	configs  map[string]yaml.Node
	services *services
}

// services is shared by every AppContext derived from one root.
type services struct {
	mu sync.RWMutex
	m  map[string]any
}

// NewAppContext creates a root context. A nil logger means slog.Default.
func NewAppContext(logger *slog.Logger, dataDir string) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Logger:   logger,
		DataDir:  dataDir,
		base:     logger,
		services: &services{m: make(map[string]any)},
	}
}

// WithModuleConfigs returns a copy holding configs, keyed by module ID.
func (ctx *AppContext) WithModuleConfigs(configs map[string]yaml.Node) *AppContext {
	cp := *ctx
	cp.configs = configs
	return &cp
}

// WithServicesFrom returns a copy sharing other's service registry. A
// reload builds a fresh context this way so the verification store and
// event bus registered at startup stay resolvable.
func (ctx *AppContext) WithServicesFrom(other *AppContext) *AppContext {
	cp := *ctx
	if other != nil {
		cp.services = other.services
	}
	return &cp
}

// ForModule returns a context whose logger is tagged with id.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	cp := *ctx
	cp.Logger = ctx.base.With("module", string(id))
	return &cp
}

// ModuleConfig returns the YAML section configured for id.
func (ctx *AppContext) ModuleConfig(id ModuleID) (yaml.Node, bool) {
	node, ok := ctx.configs[string(id)]
	return node, ok
}

// RegisterService publishes svc under name, replacing any earlier value.
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.services.mu.Lock()
	ctx.services.m[name] = svc
	ctx.services.mu.Unlock()
}

// Service returns the value registered under name.
func (ctx *AppContext) Service(name string) (any, bool) {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	svc, ok := ctx.services.m[name]
	return svc, ok
}

// ServiceAs resolves name and asserts it to T. It reports false when the
// service is missing or has another type.
func ServiceAs[T any](ctx *AppContext, name string) (T, bool) {
	svc, _ := ctx.Service(name)
	typed, ok := svc.(T)
	return typed, ok
}

// LoadModule builds the registered module id and runs
// Configure, Provision and Validate on it, each only when implemented.
// Configure is skipped when the module has no configuration section.
func (ctx *AppContext) LoadModule(id string) (Module, error) {
	info, ok := GetModule(id)
	if !ok {
		return nil, fmt.Errorf("unknown module: %s", id)
	}
	mod := info.New()

	if err := ctx.configure(mod, info.ID); err != nil {
		return nil, fmt.Errorf("configuring module %s: %w", id, err)
	}
	if p, ok := mod.(Provisioner); ok {
		if err := p.Provision(ctx.ForModule(info.ID)); err != nil {
			return nil, fmt.Errorf("provisioning module %s: %w", id, err)
		}
	}
	if v, ok := mod.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("validating module %s: %w", id, err)
		}
	}
	return mod, nil
}

func (ctx *AppContext) configure(mod Module, id ModuleID) error {
	c, ok := mod.(Configurable)
	if !ok {
		return nil
	}
	node, ok := ctx.ModuleConfig(id)
	if !ok {
		return nil
	}
	return c.Configure(&node)
}

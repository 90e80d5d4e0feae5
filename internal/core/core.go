package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ShutdownTimeout bounds how long Stop waits for all modules together.
const ShutdownTimeout = 30 * time.Second

// App runs a set of modules: loaded in order, started in order, stopped in
// reverse order.
type App struct {
	ctx     *AppContext
	logger  *slog.Logger
	modules []*instance
}

type instance struct {
	id      ModuleID
	module  Module
	started bool
}

// NewApp creates an App bound to ctx.
func NewApp(ctx *AppContext) *App {
	return &App{
		ctx:    ctx,
		logger: ctx.Logger.With("component", "core"),
	}
}

// LoadModules configures, provisions and validates the modules named by
// ids, in order. On failure every module loaded so far is stopped, since
// Provision may already hold resources such as an open database.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			a.Release()
			return fmt.Errorf("loading module %s: %w", id, err)
		}
		a.add(mod.ModuleInfo().ID, mod)
		a.logger.Info("module loaded", "module", id)
	}
	return nil
}

// AppendModule adds an already-constructed module. It starts after the
// modules loaded before it and stops before them.
func (a *App) AppendModule(id string, mod Module) {
	a.add(ModuleID(id), mod)
}

func (a *App) add(id ModuleID, mod Module) {
	a.modules = append(a.modules, &instance{id: id, module: mod})
}

// Module returns the loaded module with the given ID.
func (a *App) Module(id string) (Module, bool) {
	for _, in := range a.modules {
		if string(in.id) == id {
			return in.module, true
		}
	}
	return nil, false
}

// Start starts every Starter in load order. Modules without Start count
// as started once reached, so Stop still releases them. When a Start
// fails, the modules before it are stopped in reverse order.
func (a *App) Start() error {
	for _, in := range a.modules {
		s, ok := in.module.(Starter)
		if !ok {
			in.started = true
			continue
		}
		a.logger.Info("starting module", "module", string(in.id))
		if err := s.Start(); err != nil {
			a.logger.Error("module start failed", "module", string(in.id), "error", err)
			_ = a.Stop()
			return fmt.Errorf("starting module %s: %w", in.id, err)
		}
		in.started = true
	}
	a.logger.Info("all modules started", "count", len(a.modules))
	return nil
}

// Stop stops every started module in reverse order within
// ShutdownTimeout. Errors are logged and joined.
func (a *App) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(a.modules) - 1; i >= 0; i-- {
		in := a.modules[i]
		if !in.started {
			continue
		}
		in.started = false
		if err := a.stopOne(ctx, in); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Release stops every loaded module, started or not, and forgets them. It
// frees what Provision acquired when the modules are never started.
func (a *App) Release() {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	for i := len(a.modules) - 1; i >= 0; i-- {
		_ = a.stopOne(ctx, a.modules[i])
	}
	a.modules = nil
}

func (a *App) stopOne(ctx context.Context, in *instance) error {
	s, ok := in.module.(Stopper)
	if !ok {
		return nil
	}
	a.logger.Info("stopping module", "module", string(in.id))
	if err := s.Stop(ctx); err != nil {
		a.logger.Error("module stop error", "module", string(in.id), "error", err)
		return fmt.Errorf("stopping module %s: %w", in.id, err)
	}
	return nil
}

// ReloadModules hands ctx, which carries the new module configurations,
// to every Reloader. All modules are attempted; failures are joined.
func (a *App) ReloadModules(ctx *AppContext) error {
	var errs []error
	for _, in := range a.modules {
		r, ok := in.module.(Reloader)
		if !ok {
			continue
		}
		a.logger.Info("reloading module", "module", string(in.id))
		if err := r.Reload(ctx.ForModule(in.id)); err != nil {
			a.logger.Error("module reload failed", "module", string(in.id), "error", err)
			errs = append(errs, fmt.Errorf("reloading module %s: %w", in.id, err))
		}
	}
	return errors.Join(errs...)
}

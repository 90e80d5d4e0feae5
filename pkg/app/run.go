// Package app provides the shared entry point of the warden binary.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flemzord/warden/internal/config"
	"github.com/flemzord/warden/internal/core"
	"github.com/flemzord/warden/internal/reload"
	"github.com/flemzord/warden/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, config.FindConfig is called.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the data_dir of the configuration.
	DataDir string

	// LogLevel overrides log.level of the configuration when non-empty.
	LogLevel string
}

// Run loads configuration, starts all modules, and blocks until ctx is
// cancelled. SIGHUP and config file changes trigger a live reload of the
// modules that implement core.Reloader.
func Run(ctx context.Context, params RunParams) error {
	cfgPath, err := ResolveConfigPath(params.ConfigPath)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	rt, err := newRuntime(cfg, cfgPath, params)
	if err != nil {
		return err
	}
	defer rt.close()

	logger := rt.logger
	logger.Info("starting warden",
		"version", params.Version,
		"commit", params.Commit,
		"config", cfgPath,
		"data_dir", rt.appCtx.DataDir,
	)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing, params.Version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	application := core.NewApp(rt.appCtx)
	ids := config.Resolve(cfg)
	if err := application.LoadModules(ids); err != nil {
		return err
	}

	// Registered before Start so the gateway admin API can use it.
	handler := reload.NewHandler(application, rt.appCtx, rt.audit)
	rt.appCtx.RegisterService(reload.ServiceName, handler)

	if err := application.Start(); err != nil {
		return err
	}
	logger.Info("warden started", "modules", len(ids))

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	watcher := reload.NewWatcher(reload.WatcherConfig{
		ConfigPath: cfgPath,
		Signals:    hup,
	})
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	watcher.Start(watchCtx)
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown requested")
			if err := application.Stop(); err != nil {
				logger.Warn("shutdown completed with errors", "error", err)
				return nil
			}
			logger.Info("shutdown complete")
			return nil
		case evt := <-watcher.Events():
			logger.Info("reloading configuration", "trigger", string(evt.Type), "path", evt.ConfigPath)
			if err := handler.HandleReload(watchCtx, cfgPath); err != nil {
				logger.Error("reload failed", "error", err)
			}
		}
	}
}

// Check loads and validates the configuration at path and provisions every
// module without starting it. It returns the module IDs.
func Check(path string) ([]string, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}

	rt, err := newRuntime(cfg, path, RunParams{LogLevel: "error"})
	if err != nil {
		return nil, err
	}
	defer rt.close()

	application := core.NewApp(rt.appCtx)
	ids := config.Resolve(cfg)
	if err := application.LoadModules(ids); err != nil {
		return nil, err
	}
	application.Release()
	return ids, nil
}

// ResolveConfigPath returns explicit when set, otherwise the first
// candidate found by config.FindConfig.
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	path, err := config.FindConfig()
	if err != nil {
		return "", fmt.Errorf("%w (searched: %v)", err, config.Candidates())
	}
	return path, nil
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseLevel maps a config level name to a slog.Level. Empty means info.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("app: invalid log level %q", name)
	}
	return level, nil
}

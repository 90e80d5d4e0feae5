package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/flemzord/warden/internal/config"
	"github.com/flemzord/warden/internal/core"
	"github.com/flemzord/warden/internal/gateway"
	"github.com/flemzord/warden/internal/security"
)

// runtime holds the process-wide services shared by every module.
type runtime struct {
	logger   *slog.Logger
	appCtx   *core.AppContext
	redactor *security.Redactor
	audit    *security.AuditLogger
	closers  []io.Closer
}

// newRuntime builds the redacting logger, the security services and the
// root AppContext for cfg.
func newRuntime(cfg *config.Config, cfgPath string, params RunParams) (*runtime, error) {
	rt := &runtime{redactor: security.NewRedactor()}
	for _, expr := range cfg.Security.Redact {
		if err := rt.redactor.AddExpr(expr); err != nil {
			return nil, err
		}
	}

	levelName := cfg.Log.Level
	if params.LogLevel != "" {
		levelName = params.LogLevel
	}
	level, err := ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	rt.logger = slog.New(security.NewRedactingHandler(newHandler(os.Stderr, cfg.Log.Format, level), rt.redactor))

	var auditOut io.Writer
	if cfg.Security.AuditLog != "" {
		f, err := openAuditLog(cfg.Security.AuditLog)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, f)
		auditOut = f
	}
	rt.audit = security.NewAuditLogger(security.AuditLoggerConfig{
		Writer:   auditOut,
		Redactor: rt.redactor,
	})

	dataDir := cfg.DataDir
	if params.DataDir != "" {
		dataDir = params.DataDir
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		rt.close()
		return nil, fmt.Errorf("app: create data dir %s: %w", dataDir, err)
	}

	rt.appCtx = core.NewAppContext(rt.logger, dataDir).WithModuleConfigs(cfg.Modules)
	rt.appCtx.RegisterService(security.RedactorService, rt.redactor)
	rt.appCtx.RegisterService(security.AuditService, rt.audit)
	rt.appCtx.RegisterService(security.RateLimiterService, security.NewRateLimiter(cfg.Security.RateLimits))
	rt.appCtx.RegisterService(gateway.ConfigPathServiceName, cfgPath)
	return rt, nil
}

func (rt *runtime) close() {
	for _, c := range rt.closers {
		_ = c.Close()
	}
	rt.closers = nil
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func openAuditLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("app: create audit log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("app: open audit log: %w", err)
	}
	return f, nil
}

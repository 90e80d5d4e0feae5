package gateway

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/flemzord/warden/internal/security"
)

type operatorKey struct{}

// Operator returns the admin identity attached by the auth middleware:
// "bearer" for token auth, the user name for basic auth.
func Operator(ctx context.Context) string {
	op, _ := ctx.Value(operatorKey{}).(string)
	return op
}

// identify matches the Authorization header against cfg. The bearer token
// is tried before basic credentials.
func identify(cfg AuthConfig, r *http.Request) (operator, method string, ok bool) {
	header := r.Header.Get("Authorization")
	if token, isBearer := strings.CutPrefix(header, "Bearer "); isBearer && cfg.BearerToken != "" {
		if secretEqual(token, cfg.BearerToken) {
			return "bearer", "bearer", true
		}
	}
	if cfg.BasicUser != "" && cfg.BasicPass != "" {
		user, pass, isBasic := r.BasicAuth()
		if isBasic && secretEqual(user, cfg.BasicUser) && secretEqual(pass, cfg.BasicPass) {
			return user, "basic", true
		}
	}
	return "", "", false
}

// authMiddleware guards the admin API. Every attempt is counted against
// the auth rate limit bucket and audited. audit and limiter may be nil.
func authMiddleware(cfg AuthConfig, audit *security.AuditLogger, limiter *security.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && limiter.Allow(security.BucketAuth) != nil {
				auditAuth(audit, security.EventRateLimit, r, "admin auth", "")
				writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "too many requests", ErrorCode: "RATE_LIMITED"})
				return
			}

			if r.Header.Get("Authorization") == "" {
				auditAuth(audit, security.EventAuthFailure, r, "missing authorization header", "")
				unauthorized(w, cfg)
				return
			}

			operator, method, ok := identify(cfg, r)
			if !ok {
				auditAuth(audit, security.EventAuthFailure, r, "invalid credentials", "")
				unauthorized(w, cfg)
				return
			}

			auditAuth(audit, security.EventAuthSuccess, r, method, operator)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), operatorKey{}, operator)))
		})
	}
}

func unauthorized(w http.ResponseWriter, cfg AuthConfig) {
	if cfg.BasicUser != "" {
		w.Header().Set("WWW-Authenticate", `Basic realm="warden"`)
	}
	writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", ErrorCode: "UNAUTHORIZED"})
}

func auditAuth(audit *security.AuditLogger, typ security.EventType, r *http.Request, detail, operator string) {
	if audit == nil {
		return
	}
	meta := map[string]string{
		"remote_addr": r.RemoteAddr,
		"method":      r.Method,
		"path":        r.URL.Path,
	}
	if operator != "" {
		meta["operator"] = operator
	}
	audit.Log(security.AuditEvent{Type: typ, Source: "admin", Detail: detail, Metadata: meta})
}

func secretEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"sync"

	"github.com/flemzord/warden/internal/metrics"
	"github.com/flemzord/warden/internal/security"
	"github.com/go-chi/chi/v5"
)

// DispatcherServiceName is the service registry key of the WebhookDispatcher.
const DispatcherServiceName = "gateway.webhook_dispatcher"

// Signature headers checked in order.
var signatureHeaders = []string{"X-Hub-Signature-256", "X-Signature-256"}

// WebhookHandler processes a validated webhook payload.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, source string, body []byte, headers http.Header) error
}

// StatusError is an error that carries the HTTP status and a machine
// readable code for the webhook response.
type StatusError interface {
	error
	StatusCode() int
	ErrorCode() string
}

// ErrorResponse is the JSON body written for handler errors.
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code,omitempty"`
}

type webhookEntry struct {
	handler WebhookHandler
	secret  string
}

// WebhookDispatcher routes incoming webhooks to registered handlers with HMAC validation.
type WebhookDispatcher struct {
	mu       sync.RWMutex
	handlers map[string]webhookEntry
	logger   *slog.Logger
	maxBody  int64
	limiter  *security.RateLimiter
	audit    *security.AuditLogger
	metrics  *metrics.Metrics
}

// DispatcherOption customizes a WebhookDispatcher.
type DispatcherOption func(*WebhookDispatcher)

// WithMaxBody caps the accepted payload size.
func WithMaxBody(n int64) DispatcherOption {
	return func(d *WebhookDispatcher) { d.maxBody = n }
}

// WithRateLimiter applies the limiter's webhook budget to each source.
func WithRateLimiter(rl *security.RateLimiter) DispatcherOption {
	return func(d *WebhookDispatcher) { d.limiter = rl }
}

// WithAudit records rejected webhooks.
func WithAudit(a *security.AuditLogger) DispatcherOption {
	return func(d *WebhookDispatcher) { d.audit = a }
}

// WithMetrics counts requests per source and status.
func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *WebhookDispatcher) { d.metrics = m }
}

// NewWebhookDispatcher creates a ready-to-use dispatcher.
func NewWebhookDispatcher(logger *slog.Logger, opts ...DispatcherOption) *WebhookDispatcher {
	d := &WebhookDispatcher{
		handlers: make(map[string]webhookEntry),
		logger:   logger,
		maxBody:  security.DefaultMaxMessageSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds a handler for the given source with an optional HMAC secret.
// Registering a source again replaces its handler.
func (d *WebhookDispatcher) Register(source string, h WebhookHandler, secret string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[source] = webhookEntry{handler: h, secret: secret}
}

// Unregister removes the handler for source.
func (d *WebhookDispatcher) Unregister(source string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, source)
}

// Sources returns the registered sources, sorted.
func (d *WebhookDispatcher) Sources() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for s := range d.handlers {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// ServeHTTP implements http.Handler. It extracts the source from the chi URL param,
// validates HMAC if configured, and dispatches to the registered handler.
func (d *WebhookDispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	source := chi.URLParam(r, "source")
	if source == "" {
		d.respond(w, source, http.StatusBadRequest, ErrorResponse{Error: "missing source"})
		return
	}

	d.mu.RLock()
	entry, ok := d.handlers[source]
	d.mu.RUnlock()

	if !ok {
		d.logger.Warn("webhook received for unregistered source", "source", source)
		d.respond(w, source, http.StatusNotFound, ErrorResponse{Error: "unknown webhook source"})
		return
	}

	// Limited per registered source only, so unknown paths never allocate buckets.
	if d.limiter != nil {
		if err := d.limiter.AllowKey(security.BucketWebhook, source); err != nil {
			d.reject(r, source, "rate limited")
			d.respond(w, source, http.StatusTooManyRequests, ErrorResponse{Error: "too many requests"})
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, d.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			d.respond(w, source, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "payload too large"})
			return
		}
		d.respond(w, source, http.StatusBadRequest, ErrorResponse{Error: "failed to read body"})
		return
	}

	if entry.secret != "" && !validateHMAC(body, signature(r.Header), entry.secret) {
		d.reject(r, source, "invalid signature")
		d.respond(w, source, http.StatusUnauthorized, ErrorResponse{Error: "invalid signature"})
		return
	}

	if err := entry.handler.HandleWebhook(r.Context(), source, body, r.Header); err != nil {
		var se StatusError
		if errors.As(err, &se) {
			d.logger.Info("webhook handled with status",
				"source", source, "status", se.StatusCode(), "code", se.ErrorCode())
			d.respond(w, source, se.StatusCode(), ErrorResponse{Error: se.Error(), ErrorCode: se.ErrorCode()})
			return
		}
		d.logger.Error("webhook handler failed", "source", source, "error", err)
		d.respond(w, source, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	d.respond(w, source, http.StatusOK, map[string]bool{"ok": true})
}

func (d *WebhookDispatcher) respond(w http.ResponseWriter, source string, code int, body any) {
	d.metrics.RecordWebhook(source, strconv.Itoa(code))
	writeJSON(w, code, body)
}

func (d *WebhookDispatcher) reject(r *http.Request, source, detail string) {
	d.audit.Log(security.AuditEvent{
		Type:   security.EventWebhookRejected,
		Source: source,
		Detail: detail,
		Metadata: map[string]string{
			"remote_addr": r.RemoteAddr,
		},
	})
}

// signature returns the first non-empty signature header.
func signature(h http.Header) string {
	for _, name := range signatureHeaders {
		if v := h.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// validateHMAC checks HMAC-SHA256 signature in constant time.
func validateHMAC(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

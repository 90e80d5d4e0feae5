// Package security provides log redaction, audit logging, rate limiting and
// payload validation for the admin API and inbound webhooks.
package security

import (
	"encoding/json"
	"io"
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// EventType categorizes audit events.
type EventType string

// Audit event types for admin and webhook traffic.
const (
	EventAuthSuccess     EventType = "auth_success"
	EventAuthFailure     EventType = "auth_failure"
	EventConfigChange    EventType = "config_change"
	EventRateLimit       EventType = "rate_limit"
	EventPluginToggle    EventType = "plugin_toggle"
	EventWebhookRejected EventType = "webhook_rejected"
	EventMemberKicked    EventType = "member_kicked"
)

// AuditEvent is a single audit log entry.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Source    string            `json:"source,omitempty"`
	ChatID    string            `json:"chat_id,omitempty"`
	SenderID  string            `json:"sender_id,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig configures the audit logger.
type AuditLoggerConfig struct {
	// Writer receives one JSON object per line. When nil, events only go
	// to OnEvent.
	Writer io.Writer

	// Redactor scrubs Detail and Metadata values before they leave the logger.
	Redactor *Redactor

	// OnEvent is called for every event after redaction.
	OnEvent func(AuditEvent)

	// Now defaults to time.Now.
	Now func() time.Time
}

// AuditLogger records admin actions, webhook rejections and member kicks
// as JSON lines. A nil *AuditLogger discards events.
type AuditLogger struct {
	cfg       AuditLoggerConfig
	mu        sync.Mutex
	enc       *json.Encoder
	writeErrs atomic.Int64
}

// NewAuditLogger creates an audit logger.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	l := &AuditLogger{cfg: cfg}
	if cfg.Writer != nil {
		l.enc = json.NewEncoder(cfg.Writer)
	}
	return l
}

// Log stamps and records event. The caller's Metadata map is not modified.
func (l *AuditLogger) Log(event AuditEvent) {
	if l == nil {
		return
	}
	event.Timestamp = l.cfg.Now()
	event.Metadata = maps.Clone(event.Metadata)

	if r := l.cfg.Redactor; r != nil {
		event.Detail = r.Redact(event.Detail)
		for k, v := range event.Metadata {
			event.Metadata[k] = r.Redact(v)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cfg.OnEvent != nil {
		l.cfg.OnEvent(event)
	}
	if l.enc != nil && l.enc.Encode(event) != nil {
		l.writeErrs.Add(1)
	}
}

// WriteErrors returns how many events could not be written.
func (l *AuditLogger) WriteErrors() int64 {
	return l.writeErrs.Load()
}

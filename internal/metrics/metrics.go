// Package metrics exposes bot counters to Prometheus and as a JSON
// snapshot for the admin status endpoint.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "warden"

// Metrics records bot activity. The zero value is not usable; use New.
// A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	updates       *prometheus.CounterVec
	commands      *prometheus.CounterVec
	challenges    prometheus.Counter
	verifications *prometheus.CounterVec
	errors        *prometheus.CounterVec
	webhooks      *prometheus.CounterVec

	updateCount    atomic.Int64
	commandCount   atomic.Int64
	challengeCount atomic.Int64
	verifiedCount  atomic.Int64
	rejectedCount  atomic.Int64
	expiredCount   atomic.Int64
	errorCount     atomic.Int64
}

// New creates a Metrics with its own registry, including Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Platform updates received, by kind.",
		}, []string{"kind"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands handled, by command and handler source.",
		}, []string{"command", "source"}),
		challenges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verification_challenges_total",
			Help:      "Verification challenges issued.",
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Completed verifications, by outcome.",
		}, []string{"outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors caught at the update boundary, by kind.",
		}, []string{"kind"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Inbound webhook requests, by source and status code.",
		}, []string{"source", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.updates,
		m.commands,
		m.challenges,
		m.verifications,
		m.errors,
		m.webhooks,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordUpdate counts an inbound update of the given kind.
func (m *Metrics) RecordUpdate(kind string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(kind).Inc()
	m.updateCount.Add(1)
}

// RecordCommand counts a handled command; source is "plugin" or "builtin".
func (m *Metrics) RecordCommand(command, source string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, source).Inc()
	m.commandCount.Add(1)
}

// RecordError counts an error caught at the update boundary.
func (m *Metrics) RecordError(kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(kind).Inc()
	m.errorCount.Add(1)
}

// RecordWebhook counts an inbound webhook request.
func (m *Metrics) RecordWebhook(source, status string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(source, status).Inc()
}

// ChallengeIssued counts a verification challenge.
func (m *Metrics) ChallengeIssued() {
	if m == nil {
		return
	}
	m.challenges.Inc()
	m.challengeCount.Add(1)
}

// VerificationCompleted counts a finished verification by outcome.
func (m *Metrics) VerificationCompleted(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
	switch outcome {
	case "verified":
		m.verifiedCount.Add(1)
	case "rejected":
		m.rejectedCount.Add(1)
	case "expired":
		m.expiredCount.Add(1)
	}
}

// Snapshot returns a point-in-time view of the counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Updates:    m.updateCount.Load(),
		Commands:   m.commandCount.Load(),
		Challenges: m.challengeCount.Load(),
		Verified:   m.verifiedCount.Load(),
		Rejected:   m.rejectedCount.Load(),
		Expired:    m.expiredCount.Load(),
		Errors:     m.errorCount.Load(),
	}
}

// Snapshot is a serializable metrics view.
type Snapshot struct {
	Updates    int64 `json:"updates"`
	Commands   int64 `json:"commands"`
	Challenges int64 `json:"challenges"`
	Verified   int64 `json:"verified"`
	Rejected   int64 `json:"rejected"`
	Expired    int64 `json:"expired"`
	Errors     int64 `json:"errors"`
}

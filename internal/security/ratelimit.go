package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rate limit kinds.
const (
	BucketAuth    = "auth"
	BucketWebhook = "webhook"
)

// RateLimitConfig holds per-minute limits. Webhook limits apply to each
// source separately; Telegram updates in a busy group and GitHub
// deliveries do not share a budget.
type RateLimitConfig struct {
	AuthPerMin     int `yaml:"auth_per_min"`
	WebhooksPerMin int `yaml:"webhooks_per_min"`

	// SourcesPerMin overrides WebhooksPerMin for named webhook sources.
	SourcesPerMin map[string]int `yaml:"sources_per_min,omitempty"`
}

const (
	defaultAuthPerMin     = 30
	defaultWebhooksPerMin = 120
)

// RateLimiter counts events in a sliding one-minute window per
// (kind, key) pair.
type RateLimiter struct {
	mu      sync.Mutex
	config  RateLimitConfig
	windows map[windowKey]*window
	now     func() time.Time
}

type windowKey struct{ kind, key string }

type window struct {
	limit  int
	events []time.Time
}

// NewRateLimiter creates a rate limiter. Zero limits take the defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.AuthPerMin <= 0 {
		cfg.AuthPerMin = defaultAuthPerMin
	}
	if cfg.WebhooksPerMin <= 0 {
		cfg.WebhooksPerMin = defaultWebhooksPerMin
	}
	return &RateLimiter{
		config:  cfg,
		windows: make(map[windowKey]*window),
		now:     time.Now,
	}
}

// Allow is AllowKey with an empty key.
func (rl *RateLimiter) Allow(kind string) error {
	return rl.AllowKey(kind, "")
}

// AllowKey records one event for (kind, key) and returns ErrRateLimited
// when the window is full. Unknown kinds are never limited.
func (rl *RateLimiter) AllowKey(kind, key string) error {
	limit, ok := rl.limitFor(kind, key)
	if !ok {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	k := windowKey{kind, key}
	w, ok := rl.windows[k]
	if !ok {
		w = &window{limit: limit}
		rl.windows[k] = w
	}

	now := rl.now()
	w.trim(now.Add(-time.Minute))
	if len(w.events) >= w.limit {
		return ErrRateLimited
	}
	w.events = append(w.events, now)
	return nil
}

func (rl *RateLimiter) limitFor(kind, key string) (int, bool) {
	switch kind {
	case BucketAuth:
		return rl.config.AuthPerMin, true
	case BucketWebhook:
		if n, ok := rl.config.SourcesPerMin[key]; ok && n > 0 {
			return n, true
		}
		return rl.config.WebhooksPerMin, true
	default:
		return 0, false
	}
}

// trim drops events at or before cutoff.
func (w *window) trim(cutoff time.Time) {
	i := 0
	for i < len(w.events) && !w.events[i].After(cutoff) {
		i++
	}
	w.events = w.events[i:]
}

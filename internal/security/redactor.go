package security

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

// RedactPlaceholder is the replacement string for redacted secrets.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches config keys whose values are secrets
// (token, webhook_secret, basic_pass, api_key...).
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|pass$|key|credential)`)

// rules is an immutable redaction snapshot. Redact reads it without
// locking; writers publish a new one.
type rules struct {
	patterns []*regexp.Regexp
	literals []string
	replacer *strings.Replacer
}

// Redactor scrubs secrets from log output, audit entries and the config
// endpoint. Patterns catch token formats; literals catch the configured
// values themselves (bot token, webhook secrets, GitHub token).
// The zero value redacts nothing and is ready to use.
type Redactor struct {
	mu  sync.Mutex
	cur atomic.Pointer[rules]
}

// NewRedactor creates a Redactor pre-loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	r := &Redactor{}
	r.cur.Store(&rules{patterns: DefaultPatterns()})
	return r
}

func (r *Redactor) load() *rules {
	if cur := r.cur.Load(); cur != nil {
		return cur
	}
	return &rules{}
}

// update applies fn to a copy of the current rules and publishes it.
func (r *Redactor) update(fn func(*rules)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := *r.load()
	next.patterns = slices.Clone(next.patterns)
	next.literals = slices.Clone(next.literals)
	fn(&next)
	r.cur.Store(&next)
}

// AddPattern adds a compiled regex pattern.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.update(func(rs *rules) { rs.patterns = append(rs.patterns, pattern) })
}

// AddExpr compiles expr and adds it as a pattern.
func (r *Redactor) AddExpr(expr string) error {
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("security: redact pattern %q: %w", expr, err)
	}
	r.AddPattern(re)
	return nil
}

// AddLiteral adds a secret value redacted wherever it appears.
// Empty strings and duplicates are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" || slices.Contains(r.load().literals, secret) {
		return
	}
	r.update(func(rs *rules) {
		if slices.Contains(rs.literals, secret) {
			return
		}
		rs.literals = append(rs.literals, secret)
		// Longest first, so a secret that contains another is replaced whole.
		slices.SortFunc(rs.literals, func(a, b string) int { return cmp.Compare(len(b), len(a)) })
		pairs := make([]string, 0, 2*len(rs.literals))
		for _, lit := range rs.literals {
			pairs = append(pairs, lit, RedactPlaceholder)
		}
		rs.replacer = strings.NewReplacer(pairs...)
	})
}

// Redact replaces known secret patterns and literal values in s with
// RedactPlaceholder.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}
	rs := r.load()
	for _, p := range rs.patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	if rs.replacer != nil {
		s = rs.replacer.Replace(s)
	}
	return s
}

// RedactMap redacts a decoded config document in place. Non-empty values
// under secret-looking keys are replaced entirely; every other string is
// passed through Redact.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if s, ok := v.(string); ok && s != "" && secretKeyPattern.MatchString(k) {
			m[k] = RedactPlaceholder
			continue
		}
		m[k] = r.redactValue(v)
	}
}

func (r *Redactor) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return r.Redact(val)
	case map[string]any:
		r.RedactMap(val)
	case []any:
		for i, item := range val {
			val[i] = r.redactValue(item)
		}
	}
	return v
}

// DefaultPatterns returns compiled regex patterns for the token formats the
// bot handles: Telegram bot tokens and GitHub tokens.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// Telegram bot token: <bot id>:<35 char secret>, also inside API URLs.
		regexp.MustCompile(`[0-9]{6,12}:[A-Za-z0-9_-]{30,}`),
		// GitHub: ghp_, gho_, ghs_, ghu_, github_pat_
		regexp.MustCompile(`(ghp_|gho_|ghs_|ghu_|github_pat_)[a-zA-Z0-9_]{20,}`),
		// HMAC signature headers echoed back in errors.
		regexp.MustCompile(`sha256=[0-9a-f]{64}`),
	}
}

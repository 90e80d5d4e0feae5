package security

// Service registry keys under which the process-wide security
// components are exposed to modules.
const (
	RedactorService    = "security.redactor"
	AuditService       = "security.audit"
	RateLimiterService = "security.ratelimit"
)

package tokenlife

import "time"

type SecurityReport struct {
	ProductionMode         bool
	SigningAlgorithm       string
	AccessTTL              time.Duration
	RefreshTTL             time.Duration
	SessionMaxLifetime     time.Duration
	RevokedRetention       time.Duration
	RefreshRotationEnabled bool
	ReuseDetectionEnabled  bool
	ReplayTrackingEnabled  bool
	RateLimitingActive     bool
	AuditEnabled           bool
	MetricsEnabled         bool
	SecureCookiesRequired  bool
	RegisteredRoles        []string
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	rateLimiting := e.rateLimiter != nil &&
		(e.config.RateLimit.EnableIssueThrottle || e.config.RateLimit.EnableRefreshThrottle)

	report := SecurityReport{
		ProductionMode:     e.config.Security.ProductionMode,
		SigningAlgorithm:   e.config.JWT.SigningMethod,
		AccessTTL:          e.config.JWT.AccessTTL,
		RefreshTTL:         e.config.Refresh.TTL,
		SessionMaxLifetime: e.config.Session.MaxLifetime,
		RevokedRetention:   e.config.Session.RevokedRetention,
		// Rotation and reuse detection cannot be disabled.
		RefreshRotationEnabled: true,
		ReuseDetectionEnabled:  true,
		ReplayTrackingEnabled:  e.config.Session.EnableReplayTracking,
		RateLimitingActive:     rateLimiting,
		AuditEnabled:           e.config.Audit.Enabled,
		MetricsEnabled:         e.config.Metrics.Enabled,
		SecureCookiesRequired:  e.config.Security.RequireSecureCookies,
	}
	if e.registry != nil {
		report.RegisteredRoles = e.registry.Names()
	}
	return report
}

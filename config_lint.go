package tokenlife

import (
	"fmt"
	"strings"
	"time"
)

// LintSeverity ranks advisory findings. Ordering is meaningful: higher values
// indicate riskier configurations.
type LintSeverity uint8

const (
	// LintLow is an exported constant or variable used by the authentication engine.
	LintLow LintSeverity = iota
	// LintMedium is an exported constant or variable used by the authentication engine.
	LintMedium
	// LintHigh is an exported constant or variable used by the authentication engine.
	LintHigh
)

// String describes the string operation and its observable behavior.
//
// String may return an error when input validation, dependency calls, or security checks fail.
// String does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s LintSeverity) String() string {
	switch s {
	case LintLow:
		return "LOW"
	case LintMedium:
		return "MEDIUM"
	case LintHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// ConfigWarning is one advisory finding from [Config.Lint]. Unlike
// [Config.Validate] errors, warnings never block engine construction.
type ConfigWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// ConfigWarnings defines a public type used by tokenlife APIs.
//
// ConfigWarnings instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ConfigWarnings []ConfigWarning

// Codes returns the warning codes in emission order.
func (ws ConfigWarnings) Codes() []string {
	codes := make([]string, 0, len(ws))
	for _, w := range ws {
		codes = append(codes, w.Code)
	}
	return codes
}

// BySeverity returns only the warnings at or above the given severity.
func (ws ConfigWarnings) BySeverity(min LintSeverity) ConfigWarnings {
	out := make(ConfigWarnings, 0, len(ws))
	for _, w := range ws {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError converts findings at or above the given severity into a single
// error, or nil when none qualify. Deployment pipelines can treat HIGH
// findings as failures without hard-coding individual codes.
func (ws ConfigWarnings) AsError(min LintSeverity) error {
	flagged := ws.BySeverity(min)
	if len(flagged) == 0 {
		return nil
	}
	return fmt.Errorf("config lint: %d findings at or above %s: %s",
		len(flagged), min, strings.Join(flagged.Codes(), ", "))
}

// Lint inspects a config that already passes [Config.Validate] and reports
// legal-but-risky settings. It never mutates the config.
func (c *Config) Lint() ConfigWarnings {
	var ws ConfigWarnings

	warn := func(code string, severity LintSeverity, format string, args ...any) {
		ws = append(ws, ConfigWarning{
			Code:     code,
			Severity: severity,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	if c.JWT.SigningMethod == "hs256" {
		warn("signing_hs256", LintLow,
			"hs256 places the signing secret on every validator; ed25519 lets validators hold only the public key")
	}
	if c.JWT.AccessTTL > 15*time.Minute {
		warn("access_ttl_long", LintMedium,
			"access TTL %v exceeds 15m; stateless validation cannot see a revocation until the token expires", c.JWT.AccessTTL)
	}
	if c.JWT.Leeway > 30*time.Second {
		warn("leeway_large", LintLow,
			"expiry leeway %v exceeds 30s and widens the window where an expired token still validates", c.JWT.Leeway)
	}

	if c.Refresh.TTL > 30*24*time.Hour {
		warn("refresh_ttl_long", LintMedium,
			"refresh TTL %v exceeds 30d; a stolen refresh token stays usable for the whole window", c.Refresh.TTL)
	}

	if c.Session.MaxLifetime == 0 {
		warn("session_lifetime_unbounded", LintMedium,
			"MaxLifetime 0 lets rotation extend a lineage forever; set a cap to force periodic re-authentication")
	}
	if !c.Session.EnableReplayTracking {
		warn("replay_tracking_disabled", LintMedium,
			"reuse detections are not counted per lineage, so repeat replay against one session is invisible")
	}

	switch {
	case !c.RateLimit.EnableIssueThrottle && !c.RateLimit.EnableRefreshThrottle:
		warn("rate_limits_disabled", LintHigh,
			"both throttles are off; nothing slows credential stuffing or refresh hammering")
	case !c.RateLimit.EnableIssueThrottle:
		warn("issue_throttle_disabled", LintLow,
			"issue attempts are unthrottled; enable the issue throttle where callers are internet-facing")
	case !c.RateLimit.EnableRefreshThrottle:
		warn("refresh_throttle_disabled", LintLow,
			"refresh attempts are unthrottled; a leaked session ID can be probed without backoff")
	}

	if !c.Audit.Enabled {
		warn("audit_disabled", LintLow,
			"no audit trail; reuse detections and terminations leave no record")
	}

	if !c.Security.RequireSecureCookies {
		warn("insecure_cookies", LintHigh,
			"refresh cookies without the Secure attribute travel over plain HTTP")
	}

	return ws
}

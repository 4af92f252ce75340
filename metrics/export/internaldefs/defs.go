package internaldefs

import (
	"github.com/tokenlife/tokenlife"
)

// CounterDef defines a public type used by tokenlife APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   tokenlife.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by tokenlife APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   tokenlife.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the authentication engine.
var CounterDefs = []CounterDef{
	{ID: tokenlife.MetricIssueSuccess, Name: "tokenlife_issue_success_total", Help: "Successful credential issuances."},
	{ID: tokenlife.MetricIssueFailure, Name: "tokenlife_issue_failure_total", Help: "Failed credential issuances."},
	{ID: tokenlife.MetricIssueRateLimited, Name: "tokenlife_issue_rate_limited_total", Help: "Rate-limited issuance attempts."},
	{ID: tokenlife.MetricValidateSuccess, Name: "tokenlife_validate_success_total", Help: "Successful access token validations."},
	{ID: tokenlife.MetricValidateFailure, Name: "tokenlife_validate_failure_total", Help: "Failed access token validations."},
	{ID: tokenlife.MetricRefreshSuccess, Name: "tokenlife_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: tokenlife.MetricRefreshFailure, Name: "tokenlife_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: tokenlife.MetricRefreshRateLimited, Name: "tokenlife_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: tokenlife.MetricRefreshReuseDetected, Name: "tokenlife_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: tokenlife.MetricRateLimitHit, Name: "tokenlife_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: tokenlife.MetricSessionCreated, Name: "tokenlife_session_created_total", Help: "Created session lineages."},
	{ID: tokenlife.MetricSessionRevoked, Name: "tokenlife_session_revoked_total", Help: "Revoked session lineages."},
	{ID: tokenlife.MetricTerminate, Name: "tokenlife_terminate_total", Help: "Single-session terminations."},
	{ID: tokenlife.MetricTerminateAll, Name: "tokenlife_terminate_all_total", Help: "Terminate-all operations."},
}

// HistogramDefs is an exported constant or variable used by the authentication engine.
var HistogramDefs = []HistogramDef{
	{ID: tokenlife.MetricValidateLatency, Name: "tokenlife_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the authentication engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the authentication engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

// Package rate provides internal primitives used to build Redis-backed rate limit keys,
// errors, and limiter behavior for token issuance and refresh workflows.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - ti: issue per-user
//   - tip: issue per-IP
//   - tr: refresh per-session
//
// # What this package must NOT do
//
//   - Decide which operations are throttled (the engine owns that policy).
//   - Be imported outside the tokenlife module.
package rate

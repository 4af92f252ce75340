// Package tokenlife provides a dual-token authentication lifecycle with JWT access
// tokens, rotating opaque refresh tokens, and revocable server-side sessions.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Token model
//
// Issue mints an access/refresh pair bound to a new session at generation zero.
// Validate checks access tokens statelessly. Refresh exchanges a refresh token for a
// fresh pair, advancing the session generation; presenting a superseded token revokes
// the whole session. Terminate revokes a session and is idempotent.
//
// # Architecture boundaries
//
// tokenlife is the public surface. It exposes [Engine], [Builder], [Config], and value
// types (TokenPair, ValidatedToken, SessionInfo, MetricsSnapshot). Session encoding,
// rate limiting, and audit dispatch live in sub-packages or unexported types and are
// never part of the public API.
//
// # What this package must NOT do
//
//   - Expose Redis clients, store internals, or encoding details in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is allocation-only
//     until Build).
//   - Authenticate credentials. Callers verify passwords or assertions first and hand
//     the engine an already-authenticated [Principal].
//
// # Performance contract
//
// Validate is the hot path. It verifies signature and expiry in memory and never
// touches the session store. Issue, Refresh, and Terminate are allowed one store
// round-trip per call.
package tokenlife

package session

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when no session record exists for the given ID.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExpired is returned when the refresh lineage is past its expiry.
var ErrSessionExpired = errors.New("session expired")

// ErrSessionRevoked is returned when the refresh lineage was closed before expiry.
var ErrSessionRevoked = errors.New("session revoked")

// ErrRefreshSuperseded is an exported constant or variable used by the authentication engine.
var ErrRefreshSuperseded = errors.New("refresh token superseded")

// ErrSessionCorrupt is returned when a stored session blob fails decoding.
var ErrSessionCorrupt = errors.New("session blob corrupt")

// ErrStoreUnavailable is an exported constant or variable used by the authentication engine.
var ErrStoreUnavailable = errors.New("session store unavailable")

// RefreshAttempt carries the inputs of one atomic refresh exchange: what the
// client presented and what the lineage head should become if the exchange wins.
//
// RefreshAttempt instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RefreshAttempt struct {
	// Generation is the rotation counter encoded in the presented token.
	Generation uint32

	// ProvidedHash is the SHA-256 of the presented refresh secret.
	ProvidedHash [32]byte

	// NextHash replaces the stored hash when the exchange succeeds.
	NextHash [32]byte

	// NextExpiresAt is the candidate fresh expiry (Unix seconds). Stores cap it
	// at CreatedAt plus their configured maximum session lifetime.
	NextExpiresAt int64
}

// Store is the transactional session-lineage contract shared by the Redis,
// in-memory, and Postgres backends.
//
// Exactly one concurrent ExchangeRefresh per lineage may succeed; every
// backend must make the compare-and-advance step atomic (Lua script, mutex,
// or row lock). All other methods are plain reads and idempotent writes.
type Store interface {
	// Save persists a freshly issued session lineage head.
	Save(ctx context.Context, sess *Session) error

	// Get returns the current lineage head, including revoked or expired heads
	// still inside the retention window.
	Get(ctx context.Context, tenantID, sessionID string) (*Session, error)

	// ExchangeRefresh runs the rotation ladder against the stored head:
	// missing, expired, revoked, superseded, or rotated. On a superseded
	// attempt the store revokes the lineage in place before reporting
	// [ErrRefreshSuperseded]. On success it returns the advanced head.
	ExchangeRefresh(ctx context.Context, tenantID, sessionID string, attempt RefreshAttempt) (*Session, error)

	// Revoke closes a lineage. It reports whether this call performed the
	// transition; revoking a missing or already-revoked session is a no-op,
	// not an error.
	Revoke(ctx context.Context, tenantID, sessionID string, reason RevokeReason) (bool, error)

	// RevokeAllForUser closes every lineage tracked for the user and returns
	// the number of sessions this call transitioned.
	RevokeAllForUser(ctx context.Context, tenantID, userID string) (int, error)

	// TrackReplayAnomaly counts reuse detections per session and returns the
	// running count inside the tracking window.
	TrackReplayAnomaly(ctx context.Context, sessionID string, ttl time.Duration) (int64, error)

	// Ping probes the backend and returns the observed round-trip latency.
	Ping(ctx context.Context) (time.Duration, error)
}

package tokenlife

import "time"

// Principal is the already-authenticated identity handed to [Engine.Issue].
// tokenlife never authenticates credentials itself; callers verify a password
// (see the password subpackage) or an upstream identity provider first and
// then mint tokens for the resulting principal.
//
// A Principal is immutable once issued into a token: later role changes take
// effect at the next issuance, not on outstanding tokens.
type Principal struct {
	UserID   string
	TenantID string
	Roles    []string
}

// TokenPair is returned by [Engine.Issue] and [Engine.Refresh]. It carries
// one short-lived access token, one single-use refresh token, and their
// expiry instants.
type TokenPair struct {
	AccessToken  string
	RefreshToken string

	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time

	SessionID string
}

// ValidatedToken is returned by [Engine.Validate]. It holds the claims of an
// access token whose signature and expiry checked out. Validation is purely
// cryptographic: a validated token proves possession of a token minted by
// this engine, not that the backing session is still alive.
type ValidatedToken struct {
	UserID    string
	TenantID  string
	SessionID string

	Generation uint32
	Roles      []string

	ExpiresAt time.Time
}

// SessionInfo is a read-only snapshot of one session lineage, returned by
// [Engine.SessionInfo]. Revoked and expired sessions remain visible until
// their retention window lapses.
type SessionInfo struct {
	SessionID string
	UserID    string
	TenantID  string

	Roles []string

	Generation   uint32
	Revoked      bool
	RevokeReason string

	CreatedAt time.Time
	ExpiresAt time.Time
}

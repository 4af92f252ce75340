package session

// Status defines a public type used by tokenlife APIs.
//
// Status instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Status uint8

const (
	// StatusActive is an exported constant or variable used by the authentication engine.
	StatusActive Status = iota
	// StatusRevoked is an exported constant or variable used by the authentication engine.
	StatusRevoked
)

// RevokeReason records why a session lineage was closed.
type RevokeReason uint8

const (
	// RevokeReasonNone is an exported constant or variable used by the authentication engine.
	RevokeReasonNone RevokeReason = iota
	// RevokeReasonLogout is an exported constant or variable used by the authentication engine.
	RevokeReasonLogout
	// RevokeReasonReuse is an exported constant or variable used by the authentication engine.
	RevokeReasonReuse
)

// String describes the string operation and its observable behavior.
func (r RevokeReason) String() string {
	switch r {
	case RevokeReasonLogout:
		return "logout"
	case RevokeReasonReuse:
		return "reuse"
	default:
		return "none"
	}
}

// Session defines a public type used by tokenlife APIs.
//
// Session instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
//
// A Session is the head of a refresh-token lineage: Generation counts rotations
// since issuance and RefreshHash is the SHA-256 of the only refresh secret that
// can advance the lineage. Revoking the session closes the whole lineage at once.
type Session struct {
	SessionID string
	UserID    string
	TenantID  string

	Roles []string

	Generation   uint32
	Status       Status
	RevokeReason RevokeReason
	RefreshHash  [32]byte

	CreatedAt int64
	ExpiresAt int64
}

// Expired reports whether the session's refresh lineage is past its expiry at
// the given Unix time. The boundary is exclusive: a session expiring at t is
// already expired at t.
func (s *Session) Expired(now int64) bool {
	return s.ExpiresAt <= now
}

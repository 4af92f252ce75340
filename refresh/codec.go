package refresh

import (
	"encoding/base64"
	"encoding/binary"
	"errors"

	"github.com/tokenlife/tokenlife/internal"
)

// ErrMalformed is an exported constant or variable used by the authentication engine.
var ErrMalformed = errors.New("refresh: malformed token")

const (
	sessionIDSize  = 16
	generationSize = 4
	secretSize     = 32

	rawTokenSize = sessionIDSize + generationSize + secretSize
)

// Token is the decoded structural form of an opaque refresh token.
//
// Token instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Token struct {
	SessionID  internal.SessionID
	Generation uint32
	Secret     [secretSize]byte
}

// Encode describes the encode operation and its observable behavior.
//
// Encode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func Encode(sessionID internal.SessionID, generation uint32, secret [secretSize]byte) string {
	var raw [rawTokenSize]byte
	copy(raw[:sessionIDSize], sessionID[:])
	binary.BigEndian.PutUint32(raw[sessionIDSize:sessionIDSize+generationSize], generation)
	copy(raw[sessionIDSize+generationSize:], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:])
}

// Decode describes the decode operation and its observable behavior.
//
// Decode may return an error when input validation, dependency calls, or security checks fail.
// Decode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Decode performs structural validation only: base64url shape and exact payload
// size. It never proves the token refers to a live session; that is the session
// store's job.
func Decode(token string) (Token, error) {
	var out Token

	if len(token) != base64.RawURLEncoding.EncodedLen(rawTokenSize) {
		return out, ErrMalformed
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return out, errors.Join(ErrMalformed, err)
	}
	if len(raw) != rawTokenSize {
		return out, ErrMalformed
	}

	copy(out.SessionID[:], raw[:sessionIDSize])
	out.Generation = binary.BigEndian.Uint32(raw[sessionIDSize : sessionIDSize+generationSize])
	copy(out.Secret[:], raw[sessionIDSize+generationSize:])

	return out, nil
}

// HashSecret returns the SHA-256 digest the session store keeps in place of the
// token secret.
//
// HashSecret does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (t Token) HashSecret() [32]byte {
	return internal.HashRefreshSecret(t.Secret)
}

package session

import (
	"encoding/binary"
	"errors"
)

// Binary layout, version 1. The header lives at fixed offsets so the Redis
// rotation script can read and patch it without decoding the string section.
//
//	[0]      format version
//	[1]      status
//	[2]      revoke reason
//	[3:7]    generation, uint32 big-endian
//	[7:39]   refresh hash, 32 raw bytes
//	[39:47]  created_at, unix seconds, big-endian
//	[47:55]  expires_at, unix seconds, big-endian
//	[55:]    user ID, tenant ID (1-byte length prefix each),
//	         role count (1 byte), then each role with a 1-byte length prefix
const (
	sessionFormatVersion = 1

	offStatus      = 1
	offReason      = 2
	offGeneration  = 3
	offRefreshHash = 7
	offCreatedAt   = 39
	offExpiresAt   = 47
	headerSize     = 55
)

var errTruncatedSession = errors.New("truncated session blob")

func Encode(s *Session) ([]byte, error) {
	if len(s.UserID) > 255 {
		return nil, errors.New("userID too long")
	}
	if len(s.TenantID) > 255 {
		return nil, errors.New("tenantID too long")
	}
	if len(s.Roles) > 255 {
		return nil, errors.New("too many roles")
	}

	size := headerSize + 1 + len(s.UserID) + 1 + len(s.TenantID) + 1
	for _, role := range s.Roles {
		if len(role) > 255 {
			return nil, errors.New("role too long")
		}
		size += 1 + len(role)
	}

	buf := make([]byte, headerSize, size)
	buf[0] = sessionFormatVersion
	buf[offStatus] = byte(s.Status)
	buf[offReason] = byte(s.RevokeReason)
	binary.BigEndian.PutUint32(buf[offGeneration:], s.Generation)
	copy(buf[offRefreshHash:], s.RefreshHash[:])
	binary.BigEndian.PutUint64(buf[offCreatedAt:], uint64(s.CreatedAt))
	binary.BigEndian.PutUint64(buf[offExpiresAt:], uint64(s.ExpiresAt))

	buf = append(buf, byte(len(s.UserID)))
	buf = append(buf, s.UserID...)
	buf = append(buf, byte(len(s.TenantID)))
	buf = append(buf, s.TenantID...)
	buf = append(buf, byte(len(s.Roles)))
	for _, role := range s.Roles {
		buf = append(buf, byte(len(role)))
		buf = append(buf, role...)
	}

	return buf, nil
}

func Decode(data []byte) (*Session, error) {
	if len(data) < headerSize+3 {
		return nil, errTruncatedSession
	}
	if data[0] != sessionFormatVersion {
		return nil, errors.New("unknown session format version")
	}

	sess := &Session{
		Status:       Status(data[offStatus]),
		RevokeReason: RevokeReason(data[offReason]),
		Generation:   binary.BigEndian.Uint32(data[offGeneration:]),
		CreatedAt:    int64(binary.BigEndian.Uint64(data[offCreatedAt:])),
		ExpiresAt:    int64(binary.BigEndian.Uint64(data[offExpiresAt:])),
	}
	copy(sess.RefreshHash[:], data[offRefreshHash:offRefreshHash+32])

	idx := headerSize

	userID, next, err := readString(data, idx)
	if err != nil {
		return nil, err
	}
	sess.UserID = userID
	idx = next

	tenantID, next, err := readString(data, idx)
	if err != nil {
		return nil, err
	}
	sess.TenantID = tenantID
	idx = next

	if idx >= len(data) {
		return nil, errTruncatedSession
	}
	roleCount := int(data[idx])
	idx++

	if roleCount > 0 {
		sess.Roles = make([]string, 0, roleCount)
		for i := 0; i < roleCount; i++ {
			role, next, err := readString(data, idx)
			if err != nil {
				return nil, err
			}
			sess.Roles = append(sess.Roles, role)
			idx = next
		}
	}

	if idx != len(data) {
		return nil, errors.New("trailing bytes in session blob")
	}

	return sess, nil
}

func readString(data []byte, idx int) (string, int, error) {
	if idx >= len(data) {
		return "", 0, errTruncatedSession
	}
	strLen := int(data[idx])
	idx++
	if idx+strLen > len(data) {
		return "", 0, errTruncatedSession
	}
	return string(data[idx : idx+strLen]), idx + strLen, nil
}

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	exchangeStatusNotFound   int64 = 0
	exchangeStatusExpired    int64 = 1
	exchangeStatusRevoked    int64 = 2
	exchangeStatusSuperseded int64 = 3
	exchangeStatusRotated    int64 = 4
	exchangeStatusCorrupt    int64 = 5
)

// Offsets below are 1-based Lua positions into the v1 binary layout described
// in encoder.go: version(1) status(2) reason(3) generation(4..7) hash(8..39)
// created_at(40..47) expires_at(48..55) strings(56..).
const exchangeRefreshScript = `
local function read_u32(s, i)
  local b1 = string.byte(s, i)
  local b2 = string.byte(s, i + 1)
  local b3 = string.byte(s, i + 2)
  local b4 = string.byte(s, i + 3)
  if not b4 then
    return nil
  end
  return ((b1 * 256 + b2) * 256 + b3) * 256 + b4
end

local function read_be64(s, i)
  local b1 = string.byte(s, i)
  local b2 = string.byte(s, i + 1)
  local b3 = string.byte(s, i + 2)
  local b4 = string.byte(s, i + 3)
  local b5 = string.byte(s, i + 4)
  local b6 = string.byte(s, i + 5)
  local b7 = string.byte(s, i + 6)
  local b8 = string.byte(s, i + 7)
  if not b8 then
    return nil
  end
  return ((((((((b1 * 256) + b2) * 256 + b3) * 256 + b4) * 256 + b5) * 256 + b6) * 256 + b7) * 256 + b8)
end

local function write_u32(v)
  local b4 = v % 256
  v = (v - b4) / 256
  local b3 = v % 256
  v = (v - b3) / 256
  local b2 = v % 256
  v = (v - b2) / 256
  local b1 = v % 256
  return string.char(b1, b2, b3, b4)
end

local function write_be64(v)
  local bytes = {}
  for i = 8, 1, -1 do
    bytes[i] = v % 256
    v = (v - bytes[i]) / 256
  end
  return string.char(bytes[1], bytes[2], bytes[3], bytes[4], bytes[5], bytes[6], bytes[7], bytes[8])
end

local session_key = KEYS[1]
local provided_gen = tonumber(ARGV[1])
local provided_hash = ARGV[2]
local next_hash = ARGV[3]
local now_unix = tonumber(ARGV[4])
local next_expiry = tonumber(ARGV[5])
local max_lifetime = tonumber(ARGV[6])
local retention = tonumber(ARGV[7])

local data = redis.call("GET", session_key)
if not data then
  return {0}
end

if #data < 55 or string.byte(data, 1) ~= 1 then
  return {5}
end

local expires_at = read_be64(data, 48)
if not expires_at or expires_at <= now_unix then
  return {1}
end

if string.byte(data, 2) ~= 0 then
  return {2}
end

local generation = read_u32(data, 4)
if provided_gen ~= generation or string.sub(data, 8, 39) ~= provided_hash then
  local revoked = string.sub(data, 1, 1) .. string.char(1, 2) .. string.sub(data, 4)
  redis.call("SET", session_key, revoked, "KEEPTTL")
  return {3}
end

local created_at = read_be64(data, 40)
if max_lifetime > 0 and created_at + max_lifetime < next_expiry then
  next_expiry = created_at + max_lifetime
end
if next_expiry <= now_unix then
  return {1}
end

local updated = string.sub(data, 1, 3)
  .. write_u32(generation + 1)
  .. next_hash
  .. string.sub(data, 40, 47)
  .. write_be64(next_expiry)
  .. string.sub(data, 56)

redis.call("SET", session_key, updated, "EX", next_expiry - now_unix + retention)

return {4, updated}
`

var exchangeRefreshLua = redis.NewScript(exchangeRefreshScript)

const revokeSessionScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
if #data < 55 or string.byte(data, 1) ~= 1 then
  return 0
end
if string.byte(data, 2) ~= 0 then
  return 0
end
local revoked = string.sub(data, 1, 1) .. string.char(1, tonumber(ARGV[1])) .. string.sub(data, 4)
redis.call("SET", KEYS[1], revoked, "KEEPTTL")
return 1
`

var revokeSessionLua = redis.NewScript(revokeSessionScript)

// RedisStore is a Redis-backed [Store] that handles lineage persistence,
// retention of revoked heads, and atomic refresh exchange via a Lua CAS script.
type RedisStore struct {
	redis            redis.UniversalClient
	prefix           string
	maxLifetime      time.Duration
	revokedRetention time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewStore creates a [RedisStore] backed by the given Redis client. prefix sets
// the key namespace for session records. maxLifetime caps how far rotation can
// push a lineage past its creation time (zero disables the cap) and
// revokedRetention controls how long revoked or expired heads stay readable
// before aging out to not-found.
func NewStore(
	redis redis.UniversalClient,
	prefix string,
	maxLifetime time.Duration,
	revokedRetention time.Duration,
) *RedisStore {
	if revokedRetention <= 0 {
		revokedRetention = 24 * time.Hour
	}
	if maxLifetime < 0 {
		maxLifetime = 0
	}
	return &RedisStore{
		redis:            redis,
		prefix:           prefix,
		maxLifetime:      maxLifetime,
		revokedRetention: revokedRetention,
	}
}

func (s *RedisStore) key(tenantID, sessionID string) string {
	return s.prefix + ":" + normalizeTenantID(tenantID) + ":" + sessionID
}

func (s *RedisStore) userKey(tenantID, userID string) string {
	return "tu:" + normalizeTenantID(tenantID) + ":" + userID
}

func (s *RedisStore) replayKey(sessionID string) string {
	return "trp:" + sessionID
}

func normalizeTenantID(tenantID string) string {
	if tenantID == "" {
		return "0"
	}
	return tenantID
}

// Save persists a freshly issued [Session] and indexes it under its user.
//
//	Performance: 3 Redis commands in one MULTI (SET + SADD + EXPIRE).
func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	ttl := time.Until(time.Unix(sess.ExpiresAt, 0)) + s.revokedRetention
	if ttl <= 0 {
		return errors.New("session already beyond retention")
	}

	sessionKey := s.key(sess.TenantID, sess.SessionID)
	userKey := s.userKey(sess.TenantID, sess.UserID)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey, data, ttl)
		pipe.SAdd(ctx, userKey, sess.SessionID)
		pipe.Expire(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// Get retrieves the lineage head by tenant and session ID. Revoked and expired
// heads are returned as stored until they age out of retention.
//
//	Performance: 1 Redis GET.
func (s *RedisStore) Get(ctx context.Context, tenantID, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(tenantID, sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.Join(redis.Nil, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, errors.Join(ErrSessionCorrupt, err)
	}
	sess.SessionID = sessionID

	return sess, nil
}

// ExchangeRefresh atomically advances the lineage head using a Lua CAS script.
// This is the core of the rotation protocol that enables reuse detection.
//
//	Performance: 1 Lua EVALSHA (atomic compare-and-advance).
//	Security: CAS guarantees at most one winner under concurrent exchange.
func (s *RedisStore) ExchangeRefresh(
	ctx context.Context,
	tenantID, sessionID string,
	attempt RefreshAttempt,
) (*Session, error) {
	result, err := exchangeRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.key(tenantID, sessionID)},
		attempt.Generation,
		attempt.ProvidedHash[:],
		attempt.NextHash[:],
		time.Now().Unix(),
		attempt.NextExpiresAt,
		int64(s.maxLifetime/time.Second),
		int64(s.revokedRetention/time.Second),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid exchange script response", ErrStoreUnavailable)
	}

	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid exchange script status", ErrStoreUnavailable)
	}

	switch code {
	case exchangeStatusNotFound:
		return nil, errors.Join(redis.Nil, ErrSessionNotFound)
	case exchangeStatusExpired:
		return nil, ErrSessionExpired
	case exchangeStatusRevoked:
		return nil, ErrSessionRevoked
	case exchangeStatusSuperseded:
		return nil, ErrRefreshSuperseded
	case exchangeStatusRotated:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing rotated session payload", ErrStoreUnavailable)
		}

		var blob []byte
		switch v := parts[1].(type) {
		case string:
			blob = []byte(v)
		case []byte:
			blob = v
		default:
			return nil, fmt.Errorf("%w: invalid rotated session payload", ErrStoreUnavailable)
		}

		sess, decErr := Decode(blob)
		if decErr != nil {
			return nil, errors.Join(ErrSessionCorrupt, decErr)
		}
		sess.SessionID = sessionID
		return sess, nil
	case exchangeStatusCorrupt:
		return nil, errors.Join(ErrStoreUnavailable, ErrSessionCorrupt)
	default:
		return nil, fmt.Errorf("%w: unknown exchange script status", ErrStoreUnavailable)
	}
}

// Revoke closes a lineage in place, keeping the record readable until its
// retention TTL runs out. Missing and already-revoked sessions are no-ops.
//
//	Performance: 1 Lua EVALSHA.
func (s *RedisStore) Revoke(ctx context.Context, tenantID, sessionID string, reason RevokeReason) (bool, error) {
	result, err := revokeSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(tenantID, sessionID)},
		int64(reason),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return result == 1, nil
}

// RevokeAllForUser closes every lineage tracked for a user within a tenant.
//
// ATOMICITY NOTE: This operation is NOT fully atomic. It reads the user's
// session set (SMembers), checks which sessions still exist (pipeline EXISTS),
// then revokes each survivor with the same script Revoke uses. Each individual
// revocation is atomic; the enumeration is not. A session created between the
// read and revoke phases will not be captured by this call. In practice this
// race is extremely narrow and only affects terminate-all semantics. Callers
// requiring stronger guarantees can follow up with a second invocation.
//
// RevokeAllForUser may return an error when input validation, dependency calls, or security checks fail.
// RevokeAllForUser does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisStore) RevokeAllForUser(ctx context.Context, tenantID, userID string) (int, error) {
	userKey := s.userKey(tenantID, userID)

	sessionIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(sessionIDs) == 0 {
		return 0, nil
	}

	pipe := s.redis.Pipeline()
	existsCmds := make([]*redis.IntCmd, len(sessionIDs))
	for i, sessionID := range sessionIDs {
		existsCmds[i] = pipe.Exists(ctx, s.key(tenantID, sessionID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var revoked int
	var stale []interface{}
	for i, cmd := range existsCmds {
		exists, cmdErr := cmd.Result()
		if cmdErr != nil {
			return revoked, fmt.Errorf("%w: %v", ErrStoreUnavailable, cmdErr)
		}
		if exists == 0 {
			stale = append(stale, sessionIDs[i])
			continue
		}

		did, revErr := s.Revoke(ctx, tenantID, sessionIDs[i], RevokeReasonLogout)
		if revErr != nil {
			return revoked, revErr
		}
		if did {
			revoked++
		}
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, userKey, stale...).Err(); err != nil {
			return revoked, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	return revoked, nil
}

// TrackReplayAnomaly increments the reuse-detection counter for a session ID.
func (s *RedisStore) TrackReplayAnomaly(ctx context.Context, sessionID string, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	key := s.replayKey(sessionID)
	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if count == 1 {
		if err := s.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return count, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

type memoryRecord struct {
	sess        Session
	deleteAfter int64
}

type memoryAnomaly struct {
	count     int64
	expiresAt int64
}

// MemoryStore is an in-process [Store] for tests, examples, and single-node
// deployments. It applies the same rotation ladder as [RedisStore] under a
// single mutex, which trivially satisfies the one-winner exchange guarantee.
type MemoryStore struct {
	mu        sync.Mutex
	sessions  map[string]*memoryRecord
	users     map[string]map[string]struct{}
	anomalies map[string]*memoryAnomaly

	maxLifetime      time.Duration
	revokedRetention time.Duration

	now func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a [MemoryStore]. maxLifetime and revokedRetention
// follow the same semantics as [NewStore].
func NewMemoryStore(maxLifetime, revokedRetention time.Duration) *MemoryStore {
	if revokedRetention <= 0 {
		revokedRetention = 24 * time.Hour
	}
	if maxLifetime < 0 {
		maxLifetime = 0
	}
	return &MemoryStore{
		sessions:         make(map[string]*memoryRecord),
		users:            make(map[string]map[string]struct{}),
		anomalies:        make(map[string]*memoryAnomaly),
		maxLifetime:      maxLifetime,
		revokedRetention: revokedRetention,
		now:              time.Now,
	}
}

func (s *MemoryStore) key(tenantID, sessionID string) string {
	return normalizeTenantID(tenantID) + ":" + sessionID
}

func (s *MemoryStore) userKey(tenantID, userID string) string {
	return normalizeTenantID(tenantID) + ":" + userID
}

// lookup returns the live record for a key, lazily dropping records past their
// retention deadline. Callers must hold s.mu.
func (s *MemoryStore) lookup(key string, now int64) *memoryRecord {
	rec, ok := s.sessions[key]
	if !ok {
		return nil
	}
	if now >= rec.deleteAfter {
		delete(s.sessions, key)
		return nil
	}
	return rec
}

// Save persists a freshly issued [Session].
func (s *MemoryStore) Save(ctx context.Context, sess *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	encoded, err := Encode(sess)
	if err != nil {
		return err
	}
	stored, err := Decode(encoded)
	if err != nil {
		return err
	}
	stored.SessionID = sess.SessionID

	now := s.now().Unix()
	deleteAfter := sess.ExpiresAt + int64(s.revokedRetention/time.Second)
	if deleteAfter <= now {
		return errors.New("session already beyond retention")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.key(sess.TenantID, sess.SessionID)
	s.sessions[key] = &memoryRecord{sess: *stored, deleteAfter: deleteAfter}

	userKey := s.userKey(sess.TenantID, sess.UserID)
	if s.users[userKey] == nil {
		s.users[userKey] = make(map[string]struct{})
	}
	s.users[userKey][sess.SessionID] = struct{}{}

	return nil
}

// Get retrieves the lineage head by tenant and session ID.
func (s *MemoryStore) Get(ctx context.Context, tenantID, sessionID string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.lookup(s.key(tenantID, sessionID), s.now().Unix())
	if rec == nil {
		return nil, ErrSessionNotFound
	}

	out := rec.sess
	out.Roles = append([]string(nil), rec.sess.Roles...)
	return &out, nil
}

// ExchangeRefresh runs the rotation ladder under the store mutex.
func (s *MemoryStore) ExchangeRefresh(
	ctx context.Context,
	tenantID, sessionID string,
	attempt RefreshAttempt,
) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().Unix()
	rec := s.lookup(s.key(tenantID, sessionID), now)
	if rec == nil {
		return nil, ErrSessionNotFound
	}

	if rec.sess.Expired(now) {
		return nil, ErrSessionExpired
	}
	if rec.sess.Status != StatusActive {
		return nil, ErrSessionRevoked
	}
	if attempt.Generation != rec.sess.Generation || attempt.ProvidedHash != rec.sess.RefreshHash {
		rec.sess.Status = StatusRevoked
		rec.sess.RevokeReason = RevokeReasonReuse
		return nil, ErrRefreshSuperseded
	}

	nextExpiry := attempt.NextExpiresAt
	if s.maxLifetime > 0 {
		limit := rec.sess.CreatedAt + int64(s.maxLifetime/time.Second)
		if limit < nextExpiry {
			nextExpiry = limit
		}
	}
	if nextExpiry <= now {
		return nil, ErrSessionExpired
	}

	rec.sess.Generation++
	rec.sess.RefreshHash = attempt.NextHash
	rec.sess.ExpiresAt = nextExpiry
	rec.deleteAfter = nextExpiry + int64(s.revokedRetention/time.Second)

	out := rec.sess
	out.Roles = append([]string(nil), rec.sess.Roles...)
	return &out, nil
}

// Revoke closes a lineage. Missing and already-revoked sessions are no-ops.
func (s *MemoryStore) Revoke(ctx context.Context, tenantID, sessionID string, reason RevokeReason) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.lookup(s.key(tenantID, sessionID), s.now().Unix())
	if rec == nil || rec.sess.Status != StatusActive {
		return false, nil
	}

	rec.sess.Status = StatusRevoked
	rec.sess.RevokeReason = reason
	return true, nil
}

// RevokeAllForUser closes every lineage tracked for the user.
func (s *MemoryStore) RevokeAllForUser(ctx context.Context, tenantID, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().Unix()
	userKey := s.userKey(tenantID, userID)

	var revoked int
	for sessionID := range s.users[userKey] {
		rec := s.lookup(s.key(tenantID, sessionID), now)
		if rec == nil {
			delete(s.users[userKey], sessionID)
			continue
		}
		if rec.sess.Status != StatusActive {
			continue
		}
		rec.sess.Status = StatusRevoked
		rec.sess.RevokeReason = RevokeReasonLogout
		revoked++
	}

	return revoked, nil
}

// TrackReplayAnomaly increments the reuse-detection counter for a session ID.
func (s *MemoryStore) TrackReplayAnomaly(ctx context.Context, sessionID string, ttl time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().Unix()
	entry, ok := s.anomalies[sessionID]
	if !ok || now >= entry.expiresAt {
		entry = &memoryAnomaly{expiresAt: now + int64(ttl/time.Second)}
		s.anomalies[sessionID] = entry
	}
	entry.count++
	return entry.count, nil
}

// Ping reports the store as healthy unless the context is already done.
func (s *MemoryStore) Ping(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return 0, nil
}

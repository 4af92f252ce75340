package sessionpg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tokenlife/tokenlife/session"
)

// Store is a PostgreSQL-backed [session.Store]. One row per session lineage;
// rotation updates the row in place under a SELECT ... FOR UPDATE lock.
type Store struct {
	db               *sql.DB
	maxLifetime      time.Duration
	revokedRetention time.Duration

	now func() time.Time
}

var _ session.Store = (*Store)(nil)

// New creates a [Store] bound to the given database handle. maxLifetime and
// revokedRetention follow the same semantics as session.NewStore.
func New(db *sql.DB, maxLifetime, revokedRetention time.Duration) *Store {
	if revokedRetention <= 0 {
		revokedRetention = 24 * time.Hour
	}
	if maxLifetime < 0 {
		maxLifetime = 0
	}
	return &Store{
		db:               db,
		maxLifetime:      maxLifetime,
		revokedRetention: revokedRetention,
		now:              time.Now,
	}
}

// Open connects to PostgreSQL via the pgx stdlib driver and returns a migrated
// [Store].
func Open(ctx context.Context, dsn string, maxLifetime, revokedRetention time.Duration) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	store := New(db, maxLifetime, revokedRetention)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return store, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func normalizeTenantID(tenantID string) string {
	if tenantID == "" {
		return "0"
	}
	return tenantID
}

func joinRoles(roles []string) string {
	return strings.Join(roles, ",")
}

func splitRoles(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}

// Save persists a freshly issued session lineage head.
func (s *Store) Save(ctx context.Context, sess *session.Session) error {
	for _, role := range sess.Roles {
		if strings.Contains(role, ",") {
			return errors.New("role names must not contain commas")
		}
	}

	deleteAfter := sess.ExpiresAt + int64(s.revokedRetention/time.Second)
	if deleteAfter <= s.now().Unix() {
		return errors.New("session already beyond retention")
	}

	query := `
		INSERT INTO sessions
			(tenant_id, session_id, user_id, roles, generation, status, revoke_reason,
			 refresh_hash, created_at, expires_at, delete_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		normalizeTenantID(sess.TenantID), sess.SessionID, sess.UserID, joinRoles(sess.Roles),
		int64(sess.Generation), int16(sess.Status), int16(sess.RevokeReason),
		sess.RefreshHash[:], sess.CreatedAt, sess.ExpiresAt, deleteAfter,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	return nil
}

const sessionColumns = `user_id, roles, generation, status, revoke_reason, refresh_hash, created_at, expires_at`

func scanSession(row *sql.Row, sessionID string) (*session.Session, error) {
	var (
		sess      session.Session
		roles     string
		gen       int64
		status    int16
		reason    int16
		hashBytes []byte
	)
	err := row.Scan(&sess.UserID, &roles, &gen, &status, &reason, &hashBytes, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if len(hashBytes) != 32 {
		return nil, session.ErrSessionCorrupt
	}

	sess.SessionID = sessionID
	sess.Roles = splitRoles(roles)
	sess.Generation = uint32(gen)
	sess.Status = session.Status(status)
	sess.RevokeReason = session.RevokeReason(reason)
	copy(sess.RefreshHash[:], hashBytes)
	return &sess, nil
}

// Get retrieves the lineage head by tenant and session ID. Heads past their
// retention deadline report not-found even before the janitor deletes them.
func (s *Store) Get(ctx context.Context, tenantID, sessionID string) (*session.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE tenant_id = $1 AND session_id = $2 AND delete_after > $3
	`
	row := s.db.QueryRowContext(ctx, query, normalizeTenantID(tenantID), sessionID, s.now().Unix())

	sess, err := scanSession(row, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrSessionNotFound
		}
		if errors.Is(err, session.ErrSessionCorrupt) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	return sess, nil
}

// ExchangeRefresh runs the rotation ladder inside a row-locking transaction.
func (s *Store) ExchangeRefresh(
	ctx context.Context,
	tenantID, sessionID string,
	attempt session.RefreshAttempt,
) (*session.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	now := s.now().Unix()
	tenant := normalizeTenantID(tenantID)

	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE tenant_id = $1 AND session_id = $2 AND delete_after > $3
		FOR UPDATE
	`
	sess, err := scanSession(tx.QueryRowContext(ctx, query, tenant, sessionID, now), sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrSessionNotFound
		}
		if errors.Is(err, session.ErrSessionCorrupt) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}

	if sess.Expired(now) {
		return nil, session.ErrSessionExpired
	}
	if sess.Status != session.StatusActive {
		return nil, session.ErrSessionRevoked
	}

	if attempt.Generation != sess.Generation || attempt.ProvidedHash != sess.RefreshHash {
		revokeQuery := `
			UPDATE sessions
			SET status = $3, revoke_reason = $4
			WHERE tenant_id = $1 AND session_id = $2
		`
		if _, err := tx.ExecContext(ctx, revokeQuery, tenant, sessionID,
			int16(session.StatusRevoked), int16(session.RevokeReasonReuse)); err != nil {
			return nil, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
		}
		return nil, session.ErrRefreshSuperseded
	}

	nextExpiry := attempt.NextExpiresAt
	if s.maxLifetime > 0 {
		limit := sess.CreatedAt + int64(s.maxLifetime/time.Second)
		if limit < nextExpiry {
			nextExpiry = limit
		}
	}
	if nextExpiry <= now {
		return nil, session.ErrSessionExpired
	}

	advanceQuery := `
		UPDATE sessions
		SET generation = $3, refresh_hash = $4, expires_at = $5, delete_after = $6
		WHERE tenant_id = $1 AND session_id = $2
	`
	deleteAfter := nextExpiry + int64(s.revokedRetention/time.Second)
	if _, err := tx.ExecContext(ctx, advanceQuery, tenant, sessionID,
		int64(sess.Generation)+1, attempt.NextHash[:], nextExpiry, deleteAfter); err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}

	sess.Generation++
	sess.RefreshHash = attempt.NextHash
	sess.ExpiresAt = nextExpiry
	return sess, nil
}

// Revoke closes a lineage. Missing and already-revoked sessions are no-ops.
func (s *Store) Revoke(ctx context.Context, tenantID, sessionID string, reason session.RevokeReason) (bool, error) {
	query := `
		UPDATE sessions
		SET status = $4, revoke_reason = $5
		WHERE tenant_id = $1 AND session_id = $2 AND status = $6 AND delete_after > $3
	`
	result, err := s.db.ExecContext(ctx, query,
		normalizeTenantID(tenantID), sessionID, s.now().Unix(),
		int16(session.StatusRevoked), int16(reason), int16(session.StatusActive),
	)
	if err != nil {
		return false, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	return affected > 0, nil
}

// RevokeAllForUser closes every live lineage for the user in one statement.
func (s *Store) RevokeAllForUser(ctx context.Context, tenantID, userID string) (int, error) {
	query := `
		UPDATE sessions
		SET status = $4, revoke_reason = $5
		WHERE tenant_id = $1 AND user_id = $2 AND status = $6 AND delete_after > $3
	`
	result, err := s.db.ExecContext(ctx, query,
		normalizeTenantID(tenantID), userID, s.now().Unix(),
		int16(session.StatusRevoked), int16(session.RevokeReasonLogout), int16(session.StatusActive),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	return int(affected), nil
}

// TrackReplayAnomaly increments the reuse-detection counter for a session ID,
// restarting the window when the previous one has lapsed.
func (s *Store) TrackReplayAnomaly(ctx context.Context, sessionID string, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := s.now().Unix()
	expiresAt := now + int64(ttl/time.Second)

	query := `
		INSERT INTO replay_anomalies (session_id, count, expires_at)
		VALUES ($1, 1, $2)
		ON CONFLICT (session_id) DO UPDATE
		SET count = CASE WHEN replay_anomalies.expires_at <= $3 THEN 1 ELSE replay_anomalies.count + 1 END,
		    expires_at = CASE WHEN replay_anomalies.expires_at <= $3 THEN $2 ELSE replay_anomalies.expires_at END
		RETURNING count
	`
	var count int64
	if err := s.db.QueryRowContext(ctx, query, sessionID, expiresAt, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	return count, nil
}

// Ping returns a point-in-time database availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.db.PingContext(ctx); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

// DeleteAged removes session and anomaly rows past their retention deadline.
// Run it periodically; nothing in the hot path depends on it.
func (s *Store) DeleteAged(ctx context.Context) (int64, error) {
	now := s.now().Unix()

	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE delete_after <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM replay_anomalies WHERE expires_at <= $1`, now); err != nil {
		return deleted, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	return deleted, nil
}

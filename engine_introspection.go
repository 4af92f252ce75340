package tokenlife

import (
	"context"
	"errors"
	"time"

	"github.com/tokenlife/tokenlife/session"
)

// HealthStatus is an on-demand session-store health result.
type HealthStatus struct {
	StoreAvailable bool
	StoreLatency   time.Duration
}

// SessionInfo returns a read-only snapshot of one session lineage, including
// revoked and expired sessions still inside their retention window.
//
// SessionInfo may return an error when input validation, dependency calls, or security checks fail.
// SessionInfo does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) SessionInfo(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	sess, err := e.sessionStore.Get(ctx, tenantIDFromContext(ctx), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrSessionCorrupt):
			return nil, ErrSessionNotFound
		default:
			return nil, e.storeError(err)
		}
	}

	info := &SessionInfo{
		SessionID:  sess.SessionID,
		UserID:     sess.UserID,
		TenantID:   sess.TenantID,
		Roles:      sess.Roles,
		Generation: sess.Generation,
		Revoked:    sess.Status == session.StatusRevoked,
		CreatedAt:  time.Unix(sess.CreatedAt, 0),
		ExpiresAt:  time.Unix(sess.ExpiresAt, 0),
	}
	if info.Revoked {
		info.RevokeReason = sess.RevokeReason.String()
	}
	return info, nil
}

// Health probes the session store once and reports availability plus observed
// latency. It never returns an error; an unreachable store is a valid answer.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.sessionStore == nil {
		return HealthStatus{}
	}

	latency, err := e.sessionStore.Ping(ctx)
	return HealthStatus{
		StoreAvailable: err == nil,
		StoreLatency:   latency,
	}
}

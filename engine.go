package tokenlife

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/tokenlife/tokenlife/internal"
	"github.com/tokenlife/tokenlife/internal/rate"
	"github.com/tokenlife/tokenlife/jwt"
	"github.com/tokenlife/tokenlife/permission"
	"github.com/tokenlife/tokenlife/refresh"
	"github.com/tokenlife/tokenlife/session"
)

// Engine defines a public type used by tokenlife APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config       Config
	registry     *permission.Registry
	sessionStore session.Store
	rateLimiter  *rate.Limiter
	audit        *auditDispatcher
	metrics      *Metrics
	jwtManager   *jwt.Manager

	closed atomic.Bool
	now    func() time.Time
}

// Close stops the audit dispatcher and marks the engine closed. Issue,
// Refresh, and Terminate return [ErrEngineClosed] afterwards; Validate keeps
// working because it holds no closable resources.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.closed.Swap(true) {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Issue mints a token pair for an already-authenticated principal: one signed
// access token and one opaque refresh token at generation zero, backed by a
// fresh session record. How the principal was authenticated is the caller's
// concern; an unacceptable principal fails with [ErrAuthenticationFailed].
//
// Issue may return an error when input validation, dependency calls, or security checks fail.
// Issue does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Issue(ctx context.Context, p Principal) (TokenPair, error) {
	if e == nil || e.sessionStore == nil || e.jwtManager == nil {
		return TokenPair{}, ErrEngineNotReady
	}
	if e.closed.Load() {
		return TokenPair{}, ErrEngineClosed
	}

	tenantID := p.TenantID
	if tenantID == "" {
		tenantID = tenantIDFromContext(ctx)
	}

	if p.UserID == "" {
		e.metricInc(MetricIssueFailure)
		e.emitAudit(ctx, auditEventIssueDenied, false, "", tenantID, "", ErrAuthenticationFailed, func() map[string]string {
			return map[string]string{
				"reason": "missing_user_id",
			}
		})
		return TokenPair{}, ErrAuthenticationFailed
	}
	if e.registry != nil {
		for _, role := range p.Roles {
			if !e.registry.Known(role) {
				e.metricInc(MetricIssueFailure)
				e.emitAudit(ctx, auditEventIssueDenied, false, p.UserID, tenantID, "", ErrAuthenticationFailed, func() map[string]string {
					return map[string]string{
						"reason": "role_unknown",
						"role":   role,
					}
				})
				return TokenPair{}, fmt.Errorf("%w: unknown role %q", ErrAuthenticationFailed, role)
			}
		}
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckIssue(ctx, p.UserID, clientIPFromContext(ctx)); err != nil {
			e.metricInc(MetricIssueRateLimited)
			e.emitAudit(ctx, auditEventIssueDenied, false, p.UserID, tenantID, "", ErrRateLimited, nil)
			e.emitRateLimit(ctx, "issue", tenantID, func() map[string]string {
				return map[string]string{
					"user_id": p.UserID,
				}
			})
			return TokenPair{}, ErrRateLimited
		}
	}

	sid, err := internal.NewSessionID()
	if err != nil {
		e.metricInc(MetricIssueFailure)
		e.emitAudit(ctx, auditEventIssueDenied, false, p.UserID, tenantID, "", err, func() map[string]string {
			return map[string]string{
				"reason": "session_id_generation",
			}
		})
		return TokenPair{}, err
	}
	sessionID := sid.String()
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		e.metricInc(MetricIssueFailure)
		e.emitAudit(ctx, auditEventIssueDenied, false, p.UserID, tenantID, sessionID, err, func() map[string]string {
			return map[string]string{
				"reason": "refresh_secret_generation",
			}
		})
		return TokenPair{}, err
	}

	now := e.now()
	refreshExpiry := now.Add(e.config.Refresh.TTL)

	sess := &session.Session{
		SessionID:   sessionID,
		UserID:      p.UserID,
		TenantID:    tenantID,
		Roles:       p.Roles,
		Generation:  0,
		Status:      session.StatusActive,
		RefreshHash: internal.HashRefreshSecret(secret),
		CreatedAt:   now.Unix(),
		ExpiresAt:   refreshExpiry.Unix(),
	}

	if err := e.sessionStore.Save(ctx, sess); err != nil {
		e.metricInc(MetricIssueFailure)
		e.emitAudit(ctx, auditEventIssueDenied, false, p.UserID, tenantID, sessionID, err, func() map[string]string {
			return map[string]string{
				"reason": "session_save_failed",
			}
		})
		return TokenPair{}, e.storeError(err)
	}

	access, err := e.issueAccessToken(sess)
	if err != nil {
		e.metricInc(MetricIssueFailure)
		e.emitAudit(ctx, auditEventIssueDenied, false, p.UserID, tenantID, sessionID, err, func() map[string]string {
			return map[string]string{
				"reason": "issue_access_failed",
			}
		})
		return TokenPair{}, err
	}

	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricIssueSuccess)
	e.emitAudit(ctx, auditEventCredentialIssued, true, p.UserID, tenantID, sessionID, nil, nil)

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh.Encode(sid, 0, secret),
		AccessExpiresAt:  now.Add(e.config.JWT.AccessTTL),
		RefreshExpiresAt: refreshExpiry,
		SessionID:        sessionID,
	}, nil
}

// Validate verifies an access token and returns its claims. The check is
// purely cryptographic plus expiry: no store lookup happens here, so the
// request path stays O(1) and unaffected by store availability. A token past
// its expiry instant fails with [ErrTokenExpired]; everything else that can
// go wrong fails with [ErrTokenInvalid].
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Validate(ctx context.Context, tokenStr string) (*ValidatedToken, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}

	claims, err := e.jwtManager.ParseAccess(tokenStr)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		if errors.Is(err, jwt.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	e.metricInc(MetricValidateSuccess)

	return &ValidatedToken{
		UserID:     claims.UID,
		TenantID:   tenantFromClaim(claims.TID),
		SessionID:  claims.SID,
		Generation: claims.Gen,
		Roles:      claims.Roles,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}

// Refresh exchanges a refresh token for a fresh token pair, rotating the
// refresh credential: the presented generation dies and a new secret takes
// its place with a restamped expiry. Presenting a superseded generation
// revokes the whole session and fails with [ErrRefreshReuseDetected].
//
// Refresh may return an error when input validation, dependency calls, or security checks fail.
// Refresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if e == nil || e.sessionStore == nil || e.jwtManager == nil {
		return TokenPair{}, ErrEngineNotReady
	}
	if e.closed.Load() {
		return TokenPair{}, ErrEngineClosed
	}

	tenantID := tenantIDFromContext(ctx)
	tok, err := refresh.Decode(refreshToken)
	if err != nil {
		// Malformed tokens are indistinguishable from unknown ones so the
		// error surface leaks nothing about token structure.
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshDenied, false, "", tenantID, "", ErrRefreshTokenNotFound, func() map[string]string {
			return map[string]string{
				"reason": "decode_failed",
			}
		})
		return TokenPair{}, ErrRefreshTokenNotFound
	}
	sessionID := tok.SessionID.String()

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckRefresh(ctx, sessionID); err != nil {
			e.metricInc(MetricRefreshRateLimited)
			e.emitAudit(ctx, auditEventRefreshDenied, false, "", tenantID, sessionID, ErrRateLimited, nil)
			e.emitRateLimit(ctx, "refresh", tenantID, func() map[string]string {
				return map[string]string{
					"session_id": sessionID,
				}
			})
			return TokenPair{}, ErrRateLimited
		}
	}

	nextSecret, err := internal.NewRefreshSecret()
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshDenied, false, "", tenantID, sessionID, err, func() map[string]string {
			return map[string]string{
				"reason": "next_secret_generation",
			}
		})
		return TokenPair{}, err
	}

	now := e.now()
	sess, err := e.sessionStore.ExchangeRefresh(ctx, tenantID, sessionID, session.RefreshAttempt{
		Generation:    tok.Generation,
		ProvidedHash:  tok.HashSecret(),
		NextHash:      internal.HashRefreshSecret(nextSecret),
		NextExpiresAt: now.Add(e.config.Refresh.TTL).Unix(),
	})
	if err != nil {
		return TokenPair{}, e.refreshExchangeError(ctx, tenantID, sessionID, err)
	}

	access, err := e.issueAccessToken(sess)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshDenied, false, sess.UserID, sess.TenantID, sess.SessionID, err, func() map[string]string {
			return map[string]string{
				"reason": "issue_access_failed",
			}
		})
		return TokenPair{}, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshRotated, true, sess.UserID, sess.TenantID, sess.SessionID, nil, nil)

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh.Encode(tok.SessionID, sess.Generation, nextSecret),
		AccessExpiresAt:  now.Add(e.config.JWT.AccessTTL),
		RefreshExpiresAt: time.Unix(sess.ExpiresAt, 0),
		SessionID:        sess.SessionID,
	}, nil
}

// refreshExchangeError maps a store exchange failure onto the public error
// surface and records the matching metric and audit event.
func (e *Engine) refreshExchangeError(ctx context.Context, tenantID, sessionID string, err error) error {
	switch {
	case errors.Is(err, session.ErrRefreshSuperseded):
		e.metricInc(MetricRefreshReuseDetected)
		e.metricInc(MetricSessionRevoked)
		if e.config.Session.EnableReplayTracking {
			if _, trackErr := e.sessionStore.TrackReplayAnomaly(ctx, sessionID, e.config.Session.RevokedRetention); trackErr != nil {
				log.Print("tokenlife: replay anomaly tracking failed")
			}
		}
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, "", tenantID, sessionID, ErrRefreshReuseDetected, nil)
		return ErrRefreshReuseDetected
	case errors.Is(err, session.ErrSessionNotFound):
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshDenied, false, "", tenantID, sessionID, ErrRefreshTokenNotFound, func() map[string]string {
			return map[string]string{
				"reason": "session_not_found",
			}
		})
		return ErrRefreshTokenNotFound
	case errors.Is(err, session.ErrSessionExpired):
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshDenied, false, "", tenantID, sessionID, ErrRefreshTokenExpired, func() map[string]string {
			return map[string]string{
				"reason": "session_expired",
			}
		})
		return ErrRefreshTokenExpired
	case errors.Is(err, session.ErrSessionRevoked):
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshDenied, false, "", tenantID, sessionID, ErrRefreshTokenRevoked, func() map[string]string {
			return map[string]string{
				"reason": "session_revoked",
			}
		})
		return ErrRefreshTokenRevoked
	case errors.Is(err, session.ErrSessionCorrupt):
		// A record that cannot be decoded cannot prove anything; treat it
		// the same as an absent one.
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshDenied, false, "", tenantID, sessionID, ErrRefreshTokenNotFound, func() map[string]string {
			return map[string]string{
				"reason": "session_corrupt",
			}
		})
		return ErrRefreshTokenNotFound
	default:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshDenied, false, "", tenantID, sessionID, err, func() map[string]string {
			return map[string]string{
				"reason": "exchange_failed",
			}
		})
		return e.storeError(err)
	}
}

// Terminate revokes one session so no refresh token of its lineage is honored
// again. It is idempotent: revoking an absent, expired, or already-revoked
// session succeeds without effect.
//
// Terminate may return an error when input validation, dependency calls, or security checks fail.
// Terminate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Terminate(ctx context.Context, sessionID string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}
	if e.closed.Load() {
		return ErrEngineClosed
	}

	tenantID := tenantIDFromContext(ctx)
	transitioned, err := e.sessionStore.Revoke(ctx, tenantID, sessionID, session.RevokeReasonLogout)
	if err != nil {
		e.emitAudit(ctx, auditEventSessionTerminated, false, "", tenantID, sessionID, err, nil)
		return e.storeError(err)
	}

	if transitioned {
		e.metricInc(MetricTerminate)
		e.metricInc(MetricSessionRevoked)
	}
	e.emitAudit(ctx, auditEventSessionTerminated, true, "", tenantID, sessionID, nil, nil)
	return nil
}

// TerminateByRefreshToken revokes the session a refresh token belongs to. The
// token is only decoded for its session ID, never authenticated: callers
// authorize termination themselves (typically the logout handler of the user
// who holds the cookie). A malformed token is a successful no-op.
//
// TerminateByRefreshToken may return an error when input validation, dependency calls, or security checks fail.
// TerminateByRefreshToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) TerminateByRefreshToken(ctx context.Context, refreshToken string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}
	if e.closed.Load() {
		return ErrEngineClosed
	}

	tok, err := refresh.Decode(refreshToken)
	if err != nil {
		e.emitAudit(ctx, auditEventSessionTerminated, false, "", tenantIDFromContext(ctx), "", ErrRefreshTokenNotFound, func() map[string]string {
			return map[string]string{
				"reason": "decode_failed",
			}
		})
		return nil
	}

	return e.Terminate(ctx, tok.SessionID.String())
}

// TerminateAllForUser revokes every session tracked for the user in the
// context's tenant and reports how many sessions this call transitioned.
//
// TerminateAllForUser may return an error when input validation, dependency calls, or security checks fail.
// TerminateAllForUser does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) TerminateAllForUser(ctx context.Context, userID string) (int, error) {
	if e == nil || e.sessionStore == nil {
		return 0, ErrEngineNotReady
	}
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}

	tenantID := tenantIDFromContext(ctx)
	n, err := e.sessionStore.RevokeAllForUser(ctx, tenantID, userID)
	if err != nil {
		e.emitAudit(ctx, auditEventSessionsTerminatedAll, false, userID, tenantID, "", err, nil)
		return 0, e.storeError(err)
	}

	e.metricInc(MetricTerminateAll)
	if n > 0 {
		e.metricInc(MetricSessionRevoked)
	}
	e.emitAudit(ctx, auditEventSessionsTerminatedAll, true, userID, tenantID, "", nil, func() map[string]string {
		return map[string]string{
			"sessions": fmt.Sprintf("%d", n),
		}
	})
	return n, nil
}

func (e *Engine) issueAccessToken(sess *session.Session) (string, error) {
	return e.jwtManager.CreateAccess(
		sess.UserID,
		tenantClaimID(sess.TenantID),
		sess.SessionID,
		sess.Generation,
		sess.Roles,
	)
}

func (e *Engine) storeError(err error) error {
	if errors.Is(err, session.ErrStoreUnavailable) {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return err
}

// tenantClaimID maps the default tenant onto an empty claim so single-tenant
// tokens omit the tid claim entirely.
func tenantClaimID(tenantID string) string {
	if tenantID == "" || tenantID == "0" {
		return ""
	}
	return tenantID
}

func tenantFromClaim(tid string) string {
	if tid == "" {
		return "0"
	}
	return tid
}

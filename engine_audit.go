package tokenlife

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventCredentialIssued      = "credential_issued"
	auditEventIssueDenied           = "issue_denied"
	auditEventRefreshRotated        = "refresh_rotated"
	auditEventRefreshDenied         = "refresh_denied"
	auditEventRefreshReuseDetected  = "refresh_reuse_detected"
	auditEventSessionTerminated     = "session_terminated"
	auditEventSessionsTerminatedAll = "sessions_terminated_all"
	auditEventRateLimitTriggered    = "rate_limit_triggered"
)

// AuditErrorCode defines a public type used by tokenlife APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrAuthenticationFailed AuditErrorCode = "authentication_failed"
	auditErrRateLimited          AuditErrorCode = "rate_limited"
	auditErrRefreshReuse         AuditErrorCode = "refresh_reuse"
	auditErrRefreshNotFound      AuditErrorCode = "refresh_not_found"
	auditErrRefreshExpired       AuditErrorCode = "refresh_expired"
	auditErrRefreshRevoked       AuditErrorCode = "refresh_revoked"
	auditErrInvalidToken         AuditErrorCode = "invalid_token"
	auditErrSessionNotFound      AuditErrorCode = "session_not_found"
	auditErrUnavailable          AuditErrorCode = "backend_unavailable"
	auditErrEngineClosed         AuditErrorCode = "engine_closed"
	auditErrInternal             AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	tenantID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}
	if tenantID == "" {
		tenantID = tenantIDFromContext(ctx)
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		TenantID:  tenantID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	scope string,
	tenantID string,
	metadataBuilder func() map[string]string,
) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", tenantID, "", nil, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrAuthenticationFailed):
		return auditErrAuthenticationFailed
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrRefreshReuseDetected):
		return auditErrRefreshReuse
	case errors.Is(err, ErrRefreshTokenNotFound):
		return auditErrRefreshNotFound
	case errors.Is(err, ErrRefreshTokenExpired):
		return auditErrRefreshExpired
	case errors.Is(err, ErrRefreshTokenRevoked):
		return auditErrRefreshRevoked
	case errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrEngineClosed):
		return auditErrEngineClosed
	default:
		return auditErrInternal
	}
}

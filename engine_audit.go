package goToken

import (
	"context"
	"errors"

	internalaudit "github.com/MrEthical07/goToken/internal/audit"
)

const (
	auditEventTokenIssued          = "token_issued"
	auditEventTokenPairReused      = "token_pair_reused"
	auditEventValidationFailure    = "token_validation_failure"
	auditEventValidationSuccess    = "token_validation_success"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventRefreshUserNotFound  = "refresh_user_not_found"
	auditEventTokenBlacklisted     = "token_blacklisted"
	auditEventSessionInvalidated   = "session_invalidated"
	auditEventGlobalInvalidation   = "global_invalidation"
	auditEventUserInvalidation     = "user_invalidation"
	auditEventLogoutSession        = "logout_session"
	auditEventLogoutAll            = "logout_all"
	auditEventKeyRotation          = "key_rotation"
	auditEventKeyRotationFailure   = "key_rotation_failure"
	auditEventKeyringDegraded      = "keyring_degraded"
)

// AuditErrorCode is the stable error label recorded on audit events. It never
// carries key ids or store keys.
type AuditErrorCode string

const (
	auditErrInvalidToken    AuditErrorCode = "invalid_token"
	auditErrRefreshReuse    AuditErrorCode = "refresh_reuse"
	auditErrUserNotFound    AuditErrorCode = "user_not_found"
	auditErrSessionConflict AuditErrorCode = "session_conflict"
	auditErrSessionLimit    AuditErrorCode = "session_limit_exceeded"
	auditErrUnavailable     AuditErrorCode = "backend_unavailable"
	auditErrNotReady        AuditErrorCode = "engine_not_ready"
	auditErrInternal        AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	ip string,
	err error,
	description string,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	metadata := map[string]string{}
	if metadataBuilder != nil {
		for k, v := range metadataBuilder() {
			metadata[k] = v
		}
	}
	if description != "" {
		metadata["description"] = description
	}

	event := internalaudit.Event{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIP(ctx, ip),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrTokenReuseDetected):
		return auditErrRefreshReuse
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrSessionConflict):
		return auditErrSessionConflict
	case errors.Is(err, ErrSessionLimitExceeded):
		return auditErrSessionLimit
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrEngineNotReady):
		return auditErrNotReady
	default:
		return auditErrInternal
	}
}

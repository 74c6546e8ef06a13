package goToken

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/goToken/internal/flows"
)

// RotateRefresh exchanges a refresh token for a new pair. The presented token
// is consumed; presenting it again revokes its whole family and returns
// ErrTokenReuseDetected.
func (e *Engine) RotateRefresh(ctx context.Context, oldRefresh, ip string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.metricObserve(MetricRefreshLatency, start)

	ip = clientIP(ctx, ip)
	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	res := e.flows.RotateRefresh(opCtx, flows.RefreshRequest{
		Token:     oldRefresh,
		ClientIP:  ip,
		UserAgent: userAgentFromContext(ctx),
	})

	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, res.SessionID, ip, nil, "refresh token rotated", func() map[string]string {
			return map[string]string{
				"family_id": res.FamilyID,
			}
		})
		return toTokenPair(res.Pair), nil

	case flows.RefreshFailureMalformed, flows.RefreshFailureNotFound, flows.RefreshFailureExpired:
		e.metricInc(MetricRefreshInvalid)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ip, ErrInvalidToken, "refresh token rejected", func() map[string]string {
			return map[string]string{
				"reason": refreshInvalidReason(res.Failure),
			}
		})
		return nil, ErrInvalidToken

	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshReuseDetected)
		e.logger.Warn("refresh token reuse detected",
			zap.String("user_id", res.UserID),
			zap.String("family_id", res.FamilyID),
			zap.Int("revoked", res.Revoked),
		)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, res.UserID, res.SessionID, ip, ErrTokenReuseDetected, "rotated refresh token presented again, family revoked", func() map[string]string {
			return map[string]string{
				"severity":  "high",
				"family_id": res.FamilyID,
				"revoked":   strconv.Itoa(res.Revoked),
			}
		})
		return nil, ErrTokenReuseDetected

	case flows.RefreshFailureUserNotFound:
		e.metricInc(MetricRefreshUserNotFound)
		e.emitAudit(ctx, auditEventRefreshUserNotFound, false, res.UserID, res.SessionID, ip, ErrUserNotFound, "refresh for unknown user, family revoked", func() map[string]string {
			return map[string]string{
				"family_id": res.FamilyID,
				"revoked":   strconv.Itoa(res.Revoked),
			}
		})
		return nil, ErrUserNotFound

	default:
		e.metricInc(MetricRefreshFailure)
		err := e.opFailure("refresh", res.Err)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, res.SessionID, ip, err, "refresh failed", nil)
		return nil, err
	}
}

func refreshInvalidReason(kind flows.RefreshFailureKind) string {
	switch kind {
	case flows.RefreshFailureMalformed:
		return "malformed"
	case flows.RefreshFailureExpired:
		return "expired"
	default:
		return "not_found"
	}
}

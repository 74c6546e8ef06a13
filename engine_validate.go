package goToken

import (
	"context"
	"time"

	"github.com/MrEthical07/goToken/internal/flows"
	"github.com/MrEthical07/goToken/jwt"
)

// Validate verifies an access token: signature under a currently valid key,
// expiry, issuer and audience, then the blacklist and both invalidation
// markers. Revocation lookups fail closed with ErrStoreUnavailable.
func (e *Engine) Validate(ctx context.Context, accessToken, ip string) (*Claims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.metricObserve(MetricValidateLatency, start)

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	res := e.flows.Validate(opCtx, accessToken)
	if res.Failure != flows.ValidateFailureNone {
		err := e.mapValidateFailure(res)
		e.metricInc(MetricValidateFailure)
		var userID, sessionID string
		if res.Claims != nil {
			userID, sessionID = res.Claims.Subject, res.Claims.SID
		}
		e.emitAudit(ctx, auditEventValidationFailure, false, userID, sessionID, ip, err, "access token rejected", func() map[string]string {
			return map[string]string{
				"reason": validateFailureReason(res.Failure),
			}
		})
		return nil, err
	}

	e.metricInc(MetricValidateSuccess)
	if e.config.Audit.EmitValidationSuccess {
		e.emitAudit(ctx, auditEventValidationSuccess, true, res.Claims.Subject, res.Claims.SID, ip, nil, "access token accepted", nil)
	}
	return toClaims(res.Claims), nil
}

// IsValid applies the same rules as Validate without auditing.
func (e *Engine) IsValid(ctx context.Context, accessToken string) bool {
	if !e.ready() {
		return false
	}
	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	return e.flows.Validate(opCtx, accessToken).Failure == flows.ValidateFailureNone
}

// SubjectOf returns the user id of a token whose signature and expiry verify.
// Revocation state is not consulted.
func (e *Engine) SubjectOf(ctx context.Context, accessToken string) (string, bool) {
	if !e.ready() {
		return "", false
	}
	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	claims, res := e.flows.Verify(opCtx, accessToken)
	if res.Failure != flows.ValidateFailureNone || claims == nil {
		return "", false
	}
	return claims.Subject, true
}

func (e *Engine) mapValidateFailure(res flows.ValidateResult) error {
	switch res.Failure {
	case flows.ValidateFailureKeys, flows.ValidateFailureStore:
		e.metricInc(MetricValidateStoreError)
		return e.opFailure("validate", res.Err)
	default:
		return ErrInvalidToken
	}
}

func validateFailureReason(kind flows.ValidateFailureKind) string {
	switch kind {
	case flows.ValidateFailureKeys:
		return "keys_unavailable"
	case flows.ValidateFailureBlacklisted:
		return "blacklisted"
	case flows.ValidateFailureInvalidated:
		return "invalidated"
	case flows.ValidateFailureStore:
		return "store_unavailable"
	default:
		return "unauthorized"
	}
}

func toClaims(c *jwt.AccessClaims) *Claims {
	out := &Claims{
		UserID:    c.Subject,
		Role:      c.Role,
		SessionID: c.SID,
		TokenID:   c.ID,
		IssuedAt:  time.UnixMilli(c.IssuedAtMs),
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out
}

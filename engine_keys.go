package goToken

import (
	"context"
	"time"
)

// RotationStatus reports the signing-key rotation state. It never fails; an
// unreachable store shows up in State and ValidKeyCount.
func (e *Engine) RotationStatus(ctx context.Context) RotationStatus {
	if e == nil || e.keys == nil {
		return RotationStatus{State: "uninitialized"}
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	return rotationStatusFrom(e.keys.Status(ctx))
}

// RotateSigningKey rotates the signing key. Unless forced, nothing happens
// before the next scheduled rotation. It reports whether this call rotated;
// failures are audited and logged, never returned.
func (e *Engine) RotateSigningKey(ctx context.Context, forced bool) bool {
	if e == nil || e.keys == nil {
		return false
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	rotated, _ := e.keys.Rotate(ctx, forced)
	return rotated
}

func (e *Engine) onKeyRotated(ctx context.Context, from, to string, next time.Time) {
	e.metricInc(MetricKeyRotation)
	e.emitAudit(ctx, auditEventKeyRotation, true, "", "", "", nil, "signing key rotated", func() map[string]string {
		return map[string]string{
			"from":          from,
			"to":            to,
			"next_rotation": next.UTC().Format(time.RFC3339),
		}
	})
}

func (e *Engine) onKeyRotationFailed(ctx context.Context, err error) {
	e.metricInc(MetricKeyRotationFailure)
	e.emitAudit(ctx, auditEventKeyRotationFailure, false, "", "", "", ErrStoreUnavailable, "signing key rotation failed", nil)
}

func (e *Engine) onKeyringDegraded(err error) {
	e.metricInc(MetricKeyringDegraded)
	e.emitAudit(context.Background(), auditEventKeyringDegraded, false, "", "", "", ErrStoreUnavailable, "rotation store unreachable, signing with static key", nil)
}

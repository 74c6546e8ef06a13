package goToken

import (
	"context"
	"errors"
)

// ListUserRefreshTokens returns the live refresh tokens of userID, oldest
// first. Token values are never stored, so only their hashes are returned.
func (e *Engine) ListUserRefreshTokens(ctx context.Context, userID string) ([]RefreshTokenInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	records, err := e.flows.ListRefreshTokens(opCtx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrEngineNotReady) {
			return nil, err
		}
		return nil, e.opFailure("list refresh tokens", err)
	}

	out := make([]RefreshTokenInfo, 0, len(records))
	for _, rec := range records {
		out = append(out, RefreshTokenInfo{
			TokenHash: rec.TokenHash,
			FamilyID:  rec.FamilyID,
			SessionID: rec.SessionID,
			IssuedAt:  rec.IssuedAt,
			ExpiresAt: rec.ExpiresAt,
			Revoked:   rec.Revoked,
			Rotated:   rec.WasRotated(),
			ClientIP:  rec.ClientIP,
			UserAgent: rec.UserAgent,
		})
	}
	return out, nil
}

// CountActiveRefreshTokens counts refresh tokens of userID that can still be
// exchanged.
func (e *Engine) CountActiveRefreshTokens(ctx context.Context, userID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	n, err := e.flows.CountActiveRefreshTokens(opCtx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrEngineNotReady) {
			return 0, err
		}
		return 0, e.opFailure("count refresh tokens", err)
	}
	return n, nil
}

// Health pings Redis and reports the keyring and audit state. It never
// fails.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if !e.ready() {
		return HealthStatus{KeyringState: "uninitialized"}
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	ok, latency := e.flows.Health(opCtx)
	return HealthStatus{
		RedisAvailable: ok,
		RedisLatency:   latency,
		KeyringState:   e.keys.State().String(),
		AuditDropped:   e.audit.Dropped(),
		AuditFailed:    e.audit.Failed(),
	}
}

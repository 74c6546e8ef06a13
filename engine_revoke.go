package goToken

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Blacklist denies one access token until it expires. tokenOrJTI is either
// the token itself, whose signature is not checked, or a bare jti. A bare jti
// is denied for AccessTTL plus Leeway. Blacklisting an expired token is a
// no-op.
func (e *Engine) Blacklist(ctx context.Context, tokenOrJTI string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	tokenOrJTI = strings.TrimSpace(tokenOrJTI)
	if tokenOrJTI == "" {
		return ErrInvalidToken
	}

	now := e.now()
	jti, userID := tokenOrJTI, ""
	ttl := e.config.JWT.AccessTTL + e.config.JWT.Leeway
	if strings.Count(tokenOrJTI, ".") == 2 {
		if claims, err := e.jwtManager.ParseUnverified(tokenOrJTI); err == nil && claims.ID != "" {
			jti, userID = claims.ID, claims.Subject
			if claims.ExpiresAt != nil {
				// the parser accepts a token for Leeway past exp
				ttl = claims.ExpiresAt.Time.Add(e.config.JWT.Leeway).Sub(now)
			}
		}
	}
	if ttl <= 0 {
		return nil
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	if err := e.revocation.Blacklist(opCtx, jti, ttl); err != nil {
		err = e.opFailure("blacklist", err)
		e.emitAudit(ctx, auditEventTokenBlacklisted, false, userID, "", "", err, "blacklist write failed", nil)
		return err
	}

	e.metricInc(MetricBlacklisted)
	e.emitAudit(ctx, auditEventTokenBlacklisted, true, userID, "", "", nil, "access token blacklisted", func() map[string]string {
		return map[string]string{
			"jti": jti,
			"ttl": ttl.Round(time.Second).String(),
		}
	})
	return nil
}

// InvalidateSession drops a session and its cached pair. Refresh tokens of
// the session's family are left alone; use Logout to remove them too.
func (e *Engine) InvalidateSession(ctx context.Context, sessionID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if sessionID == "" {
		return ErrInvalidSessionID
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	existed, err := e.sessionStore.Delete(opCtx, sessionID)
	if err != nil {
		err = e.opFailure("invalidate session", err)
		e.emitAudit(ctx, auditEventSessionInvalidated, false, "", sessionID, "", err, "session invalidation failed", nil)
		return err
	}

	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventSessionInvalidated, true, "", sessionID, "", nil, "session invalidated", func() map[string]string {
		return map[string]string{
			"existed": strconv.FormatBool(existed),
		}
	})
	return nil
}

// InvalidateAllTokens rejects every access token issued up to now, for every
// user. Refresh tokens are not touched.
func (e *Engine) InvalidateAllTokens(ctx context.Context) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	if err := e.revocation.InvalidateAll(opCtx, e.now(), e.config.markerTTL()); err != nil {
		err = e.opFailure("invalidate all", err)
		e.emitAudit(ctx, auditEventGlobalInvalidation, false, "", "", "", err, "global invalidation failed", nil)
		return err
	}

	e.metricInc(MetricGlobalInvalidation)
	e.emitAudit(ctx, auditEventGlobalInvalidation, true, "", "", "", nil, "all access tokens invalidated", nil)
	return nil
}

// InvalidateAllUserTokens rejects every access token of userID issued up to
// now.
func (e *Engine) InvalidateAllUserTokens(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if userID == "" {
		return ErrUserNotFound
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	if err := e.revocation.InvalidateUser(opCtx, userID, e.now(), e.config.markerTTL()); err != nil {
		err = e.opFailure("invalidate user", err)
		e.emitAudit(ctx, auditEventUserInvalidation, false, userID, "", "", err, "user invalidation failed", nil)
		return err
	}

	e.metricInc(MetricUserInvalidation)
	e.emitAudit(ctx, auditEventUserInvalidation, true, userID, "", "", nil, "user access tokens invalidated", nil)
	return nil
}

// Logout ends one session: its refresh family, the session record and the
// cached pair are deleted. Access tokens already handed out stay valid until
// they expire. Logging out an unknown session succeeds.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if sessionID == "" {
		return ErrInvalidSessionID
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	res := e.flows.Logout(opCtx, sessionID)
	if res.Err != nil {
		err := e.opFailure("logout", res.Err)
		e.emitAudit(ctx, auditEventLogoutSession, false, res.UserID, sessionID, "", err, "session logout failed", nil)
		return err
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, res.UserID, sessionID, "", nil, "session logged out", func() map[string]string {
		return map[string]string{
			"family_id": res.FamilyID,
			"removed":   strconv.FormatBool(res.Removed),
		}
	})
	return nil
}

// LogoutAll ends every session of userID and invalidates the user's
// outstanding access tokens.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if userID == "" {
		return ErrUserNotFound
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	n, err := e.flows.LogoutAll(opCtx, userID)
	if err != nil {
		err = e.opFailure("logout all", err)
		e.emitAudit(ctx, auditEventLogoutAll, false, userID, "", "", err, "logout of all sessions failed", nil)
		return err
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", "", nil, "all sessions logged out", func() map[string]string {
		return map[string]string{
			"sessions": strconv.Itoa(n),
		}
	})
	return nil
}

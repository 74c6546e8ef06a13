package goToken

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/MrEthical07/goToken/internal/flows"
	"github.com/MrEthical07/goToken/session"
)

// Issue mints a new pair for user on sessionID. An existing session of the
// same user continues its refresh family; otherwise a new family starts. The
// pair replaces whatever the session had cached.
func (e *Engine) Issue(ctx context.Context, user User, sessionID, ip string) (*TokenPair, error) {
	if err := e.checkIssue(user, sessionID); err != nil {
		return nil, err
	}
	ip = clientIP(ctx, ip)

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	res := e.flows.Issue(opCtx, e.issueRequest(ctx, user, sessionID, ip))
	return e.finishIssue(ctx, user, sessionID, ip, res)
}

// IssueOrReuse returns the pair cached for sessionID when it belongs to user,
// and mints one otherwise. Concurrent callers for the same session all get
// the same pair.
func (e *Engine) IssueOrReuse(ctx context.Context, user User, sessionID, ip string) (*TokenPair, error) {
	if err := e.checkIssue(user, sessionID); err != nil {
		return nil, err
	}
	ip = clientIP(ctx, ip)

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	res := e.flows.IssueOrReuse(opCtx, e.issueRequest(ctx, user, sessionID, ip))
	return e.finishIssue(ctx, user, sessionID, ip, res)
}

func (e *Engine) checkIssue(user User, sessionID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if user.ID == "" {
		return ErrUserNotFound
	}
	if sessionID == "" {
		return ErrInvalidSessionID
	}
	return nil
}

func (e *Engine) issueRequest(ctx context.Context, user User, sessionID, ip string) flows.IssueRequest {
	return flows.IssueRequest{
		UserID:    user.ID,
		Role:      user.Role,
		SessionID: sessionID,
		ClientIP:  ip,
		UserAgent: userAgentFromContext(ctx),
	}
}

func (e *Engine) finishIssue(ctx context.Context, user User, sessionID, ip string, res flows.IssueResult) (*TokenPair, error) {
	if res.Failure != flows.IssueFailureNone {
		err := e.mapIssueFailure(res)
		e.metricInc(MetricIssueFailure)
		e.emitAudit(ctx, auditEventTokenIssued, false, user.ID, sessionID, ip, err, "token pair issue failed", nil)
		return nil, err
	}
	if res.Err != nil {
		e.logger.Warn("pair cache update failed", zap.String("session_id", sessionID), zap.Error(res.Err))
	}

	if res.Reused {
		e.metricInc(MetricIssuePairReused)
		e.emitAudit(ctx, auditEventTokenPairReused, true, user.ID, sessionID, ip, nil, "cached token pair returned", func() map[string]string {
			return map[string]string{
				"family_id": res.FamilyID,
			}
		})
		return toTokenPair(res.Pair), nil
	}

	e.metricInc(MetricIssueSuccess)
	e.emitAudit(ctx, auditEventTokenIssued, true, user.ID, sessionID, ip, nil, "token pair issued", func() map[string]string {
		return map[string]string{
			"family_id":  res.FamilyID,
			"new_family": strconv.FormatBool(res.NewFamily),
		}
	})
	return toTokenPair(res.Pair), nil
}

func (e *Engine) mapIssueFailure(res flows.IssueResult) error {
	switch res.Failure {
	case flows.IssueFailureSessionConflict:
		return ErrSessionConflict
	case flows.IssueFailureSessionLimit:
		return ErrSessionLimitExceeded
	default:
		return e.opFailure("issue", res.Err)
	}
}

func toTokenPair(p *session.Pair) *TokenPair {
	if p == nil {
		return nil
	}
	return &TokenPair{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresIn:    p.ExpiresIn,
	}
}

package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/refresh"
	"github.com/MrEthical07/goToken/session"
	"go.uber.org/zap"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureMalformed
	RefreshFailureNotFound
	RefreshFailureExpired
	RefreshFailureReuse
	RefreshFailureUserNotFound
	RefreshFailureUserLookup
	RefreshFailureSigningKey
	RefreshFailureNextSecret
	RefreshFailureRotate
	RefreshFailureIssueAccess
)

// RefreshRequest is one presentation of a refresh token.
type RefreshRequest struct {
	Token     string
	ClientIP  string
	UserAgent string
}

// RefreshResult carries either the rotated pair or failure metadata.
type RefreshResult struct {
	Failure   RefreshFailureKind
	Err       error
	UserID    string
	FamilyID  string
	SessionID string
	// Revoked is the number of family records revoked on reuse or lockout.
	Revoked int
	Pair    *session.Pair
	Claims  *jwt.AccessClaims
}

type RefreshTokenStore interface {
	Get(ctx context.Context, tokenHash string) (*refresh.Record, error)
	Rotate(ctx context.Context, req refresh.RotateRequest) (*refresh.RotateResult, error)
	RevokeFamily(ctx context.Context, familyID string) (int, error)
}

type RefreshSessionStore interface {
	Delete(ctx context.Context, sessionID string) (bool, error)
	SetPair(ctx context.Context, sessionID string, pair *session.Pair, ttl time.Duration) error
}

// RefreshDeps captures refresh rotation dependencies.
type RefreshDeps struct {
	Now               func() time.Time
	Keys              KeySource
	MintAccess        MintAccessFunc
	CheckRefreshToken func(string) error
	NewRefreshToken   func() (string, error)
	HashRefreshToken  func(string) string
	// FindUserRole returns the user's current role, or an error matching
	// UserNotFound when the user is gone.
	FindUserRole func(ctx context.Context, userID string) (string, error)
	UserNotFound error
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	PairGrace    time.Duration
	RefreshStore RefreshTokenStore
	SessionStore RefreshSessionStore
	Logger       *zap.Logger
}

// RunRotateRefresh exchanges a refresh token for a new pair. The old token is
// claimed atomically; presenting it again is reuse and locks the family out.
// The user and the access token are resolved before the claim, so a failed
// lookup leaves the presented token usable.
func RunRotateRefresh(ctx context.Context, req RefreshRequest, deps RefreshDeps) RefreshResult {
	if err := deps.CheckRefreshToken(req.Token); err != nil {
		return RefreshResult{Failure: RefreshFailureMalformed, Err: err}
	}

	// resolve the key first so a key outage never consumes the token
	key, err := deps.Keys.CurrentSigningKey(ctx)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureSigningKey, Err: err}
	}

	tokenHash := deps.HashRefreshToken(req.Token)
	now := deps.Now()

	rec, err := deps.RefreshStore.Get(ctx, tokenHash)
	if err != nil {
		switch {
		case errors.Is(err, refresh.ErrRecordNotFound), errors.Is(err, refresh.ErrRecordCorrupt):
			return RefreshResult{Failure: RefreshFailureNotFound, Err: err}
		default:
			return RefreshResult{Failure: RefreshFailureRotate, Err: err}
		}
	}

	// revoked or expired records go straight to the claim, which classifies
	// them as reuse or expiry
	var (
		access string
		claims *jwt.AccessClaims
	)
	if rec.Valid(now) {
		role, err := deps.FindUserRole(ctx, rec.UserID)
		if err != nil {
			if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
				res := lockFamily(ctx, &refresh.RotateResult{
					UserID:    rec.UserID,
					FamilyID:  rec.FamilyID,
					SessionID: rec.SessionID,
				}, deps)
				res.Failure = RefreshFailureUserNotFound
				res.Err = err
				return res
			}
			return RefreshResult{
				Failure:   RefreshFailureUserLookup,
				Err:       err,
				UserID:    rec.UserID,
				FamilyID:  rec.FamilyID,
				SessionID: rec.SessionID,
			}
		}

		access, claims, err = deps.MintAccess(jwt.Subject{
			UserID:    rec.UserID,
			Role:      role,
			SessionID: rec.SessionID,
		}, key)
		if err != nil {
			return RefreshResult{
				Failure:   RefreshFailureIssueAccess,
				Err:       err,
				UserID:    rec.UserID,
				FamilyID:  rec.FamilyID,
				SessionID: rec.SessionID,
			}
		}
	}

	next, err := deps.NewRefreshToken()
	if err != nil {
		return RefreshResult{Failure: RefreshFailureNextSecret, Err: err}
	}

	rotated, err := deps.RefreshStore.Rotate(ctx, refresh.RotateRequest{
		TokenHash:  tokenHash,
		NextHash:   deps.HashRefreshToken(next),
		Now:        now,
		RefreshTTL: deps.RefreshTTL,
		ClientIP:   req.ClientIP,
		UserAgent:  req.UserAgent,
	})
	if err != nil {
		switch {
		case errors.Is(err, refresh.ErrRefreshReuse):
			res := lockFamily(ctx, rotated, deps)
			res.Failure = RefreshFailureReuse
			res.Err = err
			return res
		case errors.Is(err, refresh.ErrRecordNotFound):
			return RefreshResult{Failure: RefreshFailureNotFound, Err: err}
		case errors.Is(err, refresh.ErrRecordExpired):
			return RefreshResult{Failure: RefreshFailureExpired, Err: err}
		default:
			return RefreshResult{Failure: RefreshFailureRotate, Err: err}
		}
	}
	if access == "" {
		// the record read as spent but the claim succeeded
		return RefreshResult{Failure: RefreshFailureRotate, Err: refresh.ErrRecordCorrupt}
	}

	pair := &session.Pair{
		AccessToken:  access,
		RefreshToken: next,
		ExpiresIn:    int64(deps.AccessTTL / time.Second),
		UserID:       rotated.UserID,
		FamilyID:     rotated.FamilyID,
	}
	if rotated.SessionID != "" {
		if err := deps.SessionStore.SetPair(ctx, rotated.SessionID, pair, deps.PairGrace); err != nil && deps.Logger != nil {
			deps.Logger.Warn("pair cache update failed", zap.String("session_id", rotated.SessionID), zap.Error(err))
		}
	}

	return RefreshResult{
		UserID:    rotated.UserID,
		FamilyID:  rotated.FamilyID,
		SessionID: rotated.SessionID,
		Pair:      pair,
		Claims:    claims,
	}
}

// lockFamily revokes the whole family and drops its session. Failures are
// logged only: each record's own revoked and replaced_by state still rejects
// later presentations.
func lockFamily(ctx context.Context, rotated *refresh.RotateResult, deps RefreshDeps) RefreshResult {
	if rotated == nil {
		return RefreshResult{}
	}
	res := RefreshResult{
		UserID:    rotated.UserID,
		FamilyID:  rotated.FamilyID,
		SessionID: rotated.SessionID,
	}

	n, err := deps.RefreshStore.RevokeFamily(ctx, rotated.FamilyID)
	if err != nil && deps.Logger != nil {
		deps.Logger.Error("family revocation failed", zap.String("family_id", rotated.FamilyID), zap.Error(err))
	}
	res.Revoked = n

	if rotated.SessionID != "" {
		if _, err := deps.SessionStore.Delete(ctx, rotated.SessionID); err != nil && deps.Logger != nil {
			deps.Logger.Error("session delete after lockout failed", zap.String("session_id", rotated.SessionID), zap.Error(err))
		}
	}
	return res
}

package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/refresh"
	"github.com/MrEthical07/goToken/session"
)

// IssueFailureKind classifies issue flow failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureSigningKey
	IssueFailureSessionLookup
	IssueFailureSessionConflict
	IssueFailureSessionLimit
	IssueFailureSessionSave
	IssueFailureRefreshSecret
	IssueFailureRefreshSave
	IssueFailureMint
	IssueFailurePairCache
)

// IssueRequest describes who a pair is minted for.
type IssueRequest struct {
	UserID    string
	Role      string
	SessionID string
	ClientIP  string
	UserAgent string
}

// IssueResult carries the minted pair or failure metadata.
type IssueResult struct {
	Failure     IssueFailureKind
	Err         error
	Pair        *session.Pair
	Claims      *jwt.AccessClaims
	FamilyID    string
	RefreshHash string
	NewFamily   bool
	// Reused is set by RunIssueOrReuse when the returned pair was already cached.
	Reused bool
}

type IssueRefreshStore interface {
	Save(ctx context.Context, rec *refresh.Record, now time.Time) error
	Delete(ctx context.Context, tokenHash string) error
	CountActiveByUser(ctx context.Context, userID string, now time.Time) (int, error)
}

type IssueSessionStore interface {
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	Save(ctx context.Context, sess *session.Session, ttl time.Duration) error
	GetPair(ctx context.Context, sessionID string) (*session.Pair, error)
	SetPair(ctx context.Context, sessionID string, pair *session.Pair, ttl time.Duration) error
	CachePairIfAbsent(ctx context.Context, sessionID string, pair *session.Pair, ttl time.Duration) (*session.Pair, bool, error)
}

// IssueDeps captures issuance dependencies.
type IssueDeps struct {
	Now              func() time.Time
	Keys             KeySource
	MintAccess       MintAccessFunc
	NewRefreshToken  func() (string, error)
	HashRefreshToken func(string) string
	NewFamilyID      func() string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	FamilyLifetime   time.Duration
	PairGrace        time.Duration
	MaxActivePerUser int
	RefreshStore     IssueRefreshStore
	SessionStore     IssueSessionStore
	RedisNil         error
	// CachedPairValid reports whether a cached access token still passes
	// validation. Nil trusts the cache.
	CachedPairValid func(ctx context.Context, accessToken string) (bool, error)
}

// RunIssue mints a pair and overwrites the session's pair cache with it.
func RunIssue(ctx context.Context, req IssueRequest, deps IssueDeps) IssueResult {
	res := RunMint(ctx, req, deps)
	if res.Failure != IssueFailureNone {
		return res
	}
	if err := deps.SessionStore.SetPair(ctx, req.SessionID, res.Pair, deps.PairGrace); err != nil {
		// the pair is already valid; a missing cache entry only costs a re-mint
		res.Err = err
	}
	return res
}

// RunIssueOrReuse returns the cached pair of the session when it belongs to
// the same user and its access token still validates. Otherwise it mints one
// and publishes it with insert-if-absent; a caller that loses the race
// discards its own refresh record and returns the winner's pair. A revoked
// cached pair is replaced outright.
func RunIssueOrReuse(ctx context.Context, req IssueRequest, deps IssueDeps) IssueResult {
	cached, err := deps.SessionStore.GetPair(ctx, req.SessionID)
	switch {
	case err == nil:
		if cached.UserID != req.UserID {
			return IssueResult{Failure: IssueFailureSessionConflict}
		}
		if deps.CachedPairValid == nil {
			return IssueResult{Pair: cached, FamilyID: cached.FamilyID, Reused: true}
		}
		ok, err := deps.CachedPairValid(ctx, cached.AccessToken)
		if err != nil {
			return IssueResult{Failure: IssueFailurePairCache, Err: err}
		}
		if ok {
			return IssueResult{Pair: cached, FamilyID: cached.FamilyID, Reused: true}
		}
		return RunIssue(ctx, req, deps)
	case deps.RedisNil != nil && errors.Is(err, deps.RedisNil):
	default:
		return IssueResult{Failure: IssueFailurePairCache, Err: err}
	}

	res := RunMint(ctx, req, deps)
	if res.Failure != IssueFailureNone {
		return res
	}

	winner, stored, err := deps.SessionStore.CachePairIfAbsent(ctx, req.SessionID, res.Pair, deps.PairGrace)
	if err != nil {
		// our pair is valid on its own; hand it out uncached
		res.Err = err
		return res
	}
	if stored {
		return res
	}

	_ = deps.RefreshStore.Delete(ctx, res.RefreshHash)
	if winner.UserID != req.UserID {
		return IssueResult{Failure: IssueFailureSessionConflict}
	}
	if res.NewFamily && winner.FamilyID != "" && winner.FamilyID != res.FamilyID {
		// both callers created the session; point it back at the winner's family
		now := deps.Now()
		sess := &session.Session{
			SessionID: req.SessionID,
			UserID:    req.UserID,
			FamilyID:  winner.FamilyID,
			CreatedAt: now,
			ExpiresAt: now.Add(deps.FamilyLifetime),
		}
		_ = deps.SessionStore.Save(ctx, sess, deps.FamilyLifetime)
	}
	return IssueResult{Pair: winner, FamilyID: winner.FamilyID, Reused: true}
}

// RunMint resolves the session family, persists a new refresh record and signs
// an access token. It does not touch the pair cache.
func RunMint(ctx context.Context, req IssueRequest, deps IssueDeps) IssueResult {
	key, err := deps.Keys.CurrentSigningKey(ctx)
	if err != nil {
		return IssueResult{Failure: IssueFailureSigningKey, Err: err}
	}

	now := deps.Now()
	sess, err := deps.SessionStore.Get(ctx, req.SessionID)
	newFamily := false
	switch {
	case err == nil:
		if sess.UserID != req.UserID {
			return IssueResult{Failure: IssueFailureSessionConflict}
		}
	case deps.RedisNil != nil && errors.Is(err, deps.RedisNil):
		if deps.MaxActivePerUser > 0 {
			active, err := deps.RefreshStore.CountActiveByUser(ctx, req.UserID, now)
			if err != nil {
				return IssueResult{Failure: IssueFailureSessionLookup, Err: err}
			}
			if active >= deps.MaxActivePerUser {
				return IssueResult{Failure: IssueFailureSessionLimit}
			}
		}
		sess = &session.Session{
			SessionID: req.SessionID,
			UserID:    req.UserID,
			FamilyID:  deps.NewFamilyID(),
			CreatedAt: now,
			ExpiresAt: now.Add(deps.FamilyLifetime),
		}
		if err := deps.SessionStore.Save(ctx, sess, deps.FamilyLifetime); err != nil {
			return IssueResult{Failure: IssueFailureSessionSave, Err: err}
		}
		newFamily = true
	default:
		return IssueResult{Failure: IssueFailureSessionLookup, Err: err}
	}

	refreshToken, err := deps.NewRefreshToken()
	if err != nil {
		return IssueResult{Failure: IssueFailureRefreshSecret, Err: err}
	}
	expiresAt := now.Add(deps.RefreshTTL)
	if expiresAt.After(sess.ExpiresAt) {
		expiresAt = sess.ExpiresAt
	}
	rec := &refresh.Record{
		TokenHash:       deps.HashRefreshToken(refreshToken),
		UserID:          req.UserID,
		FamilyID:        sess.FamilyID,
		SessionID:       req.SessionID,
		FamilyExpiresAt: sess.ExpiresAt,
		IssuedAt:        now,
		ExpiresAt:       expiresAt,
		ClientIP:        req.ClientIP,
		UserAgent:       req.UserAgent,
	}
	if err := deps.RefreshStore.Save(ctx, rec, now); err != nil {
		return IssueResult{Failure: IssueFailureRefreshSave, Err: err}
	}

	access, claims, err := deps.MintAccess(jwt.Subject{
		UserID:    req.UserID,
		Role:      req.Role,
		SessionID: req.SessionID,
	}, key)
	if err != nil {
		_ = deps.RefreshStore.Delete(ctx, rec.TokenHash)
		return IssueResult{Failure: IssueFailureMint, Err: err}
	}

	return IssueResult{
		Pair: &session.Pair{
			AccessToken:  access,
			RefreshToken: refreshToken,
			ExpiresIn:    int64(deps.AccessTTL / time.Second),
			UserID:       req.UserID,
			FamilyID:     sess.FamilyID,
		},
		Claims:      claims,
		FamilyID:    sess.FamilyID,
		RefreshHash: rec.TokenHash,
		NewFamily:   newFamily,
	}
}

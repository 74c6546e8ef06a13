package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goToken/session"
)

type LogoutRefreshStore interface {
	DeleteByFamily(ctx context.Context, familyID string) error
	DeleteByUser(ctx context.Context, userID string) error
}

type LogoutSessionStore interface {
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	Delete(ctx context.Context, sessionID string) (bool, error)
	DeleteAllForUser(ctx context.Context, userID string) (int, error)
}

type LogoutRevocationStore interface {
	InvalidateUser(ctx context.Context, userID string, at time.Time, ttl time.Duration) error
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Now          func() time.Time
	MarkerTTL    time.Duration
	RefreshStore LogoutRefreshStore
	SessionStore LogoutSessionStore
	Revocation   LogoutRevocationStore
	RedisNil     error
}

// LogoutResult reports what a session logout removed.
type LogoutResult struct {
	UserID   string
	FamilyID string
	Removed  bool
	Err      error
}

// RunLogout deletes the session's refresh family, the session and its pair
// cache. Logging out an unknown session is not an error.
func RunLogout(ctx context.Context, sessionID string, deps LogoutDeps) LogoutResult {
	sess, err := deps.SessionStore.Get(ctx, sessionID)
	if err != nil {
		if deps.RedisNil != nil && errors.Is(err, deps.RedisNil) {
			// still drop a stray pair cache entry
			_, err = deps.SessionStore.Delete(ctx, sessionID)
			return LogoutResult{Err: err}
		}
		return LogoutResult{Err: err}
	}

	res := LogoutResult{UserID: sess.UserID, FamilyID: sess.FamilyID}
	if sess.FamilyID != "" {
		if err := deps.RefreshStore.DeleteByFamily(ctx, sess.FamilyID); err != nil {
			res.Err = err
			return res
		}
	}
	res.Removed, res.Err = deps.SessionStore.Delete(ctx, sessionID)
	return res
}

// RunLogoutAll deletes every refresh record and session of userID and writes
// the per-user invalidation marker so outstanding access tokens die too.
func RunLogoutAll(ctx context.Context, userID string, deps LogoutDeps) (int, error) {
	if err := deps.RefreshStore.DeleteByUser(ctx, userID); err != nil {
		return 0, err
	}
	n, err := deps.SessionStore.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := deps.Revocation.InvalidateUser(ctx, userID, deps.Now(), deps.MarkerTTL); err != nil {
		return n, err
	}
	return n, nil
}

package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goToken/refresh"
)

type IntrospectionRefreshStore interface {
	ListByUser(ctx context.Context, userID string) ([]*refresh.Record, error)
	CountActiveByUser(ctx context.Context, userID string, now time.Time) (int, error)
}

type IntrospectionPinger interface {
	Ping(ctx context.Context) error
}

type IntrospectionDeps struct {
	Now               func() time.Time
	RefreshStore      IntrospectionRefreshStore
	Pinger            IntrospectionPinger
	EngineNotReadyErr error
	UserNotFoundErr   error
}

func RunListRefreshTokens(ctx context.Context, userID string, deps IntrospectionDeps) ([]*refresh.Record, error) {
	if deps.RefreshStore == nil {
		return nil, deps.EngineNotReadyErr
	}
	if userID == "" {
		return nil, deps.UserNotFoundErr
	}
	return deps.RefreshStore.ListByUser(ctx, userID)
}

func RunCountActiveRefreshTokens(ctx context.Context, userID string, deps IntrospectionDeps) (int, error) {
	if deps.RefreshStore == nil {
		return 0, deps.EngineNotReadyErr
	}
	if userID == "" {
		return 0, deps.UserNotFoundErr
	}
	return deps.RefreshStore.CountActiveByUser(ctx, userID, deps.Now())
}

func RunHealth(ctx context.Context, deps IntrospectionDeps) (bool, time.Duration) {
	if deps.Pinger == nil {
		return false, 0
	}
	start := time.Now()
	err := deps.Pinger.Ping(ctx)
	return err == nil, time.Since(start)
}

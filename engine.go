package goToken

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	internalaudit "github.com/MrEthical07/goToken/internal/audit"
	"github.com/MrEthical07/goToken/internal/flows"
	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/keyring"
	"github.com/MrEthical07/goToken/refresh"
	"github.com/MrEthical07/goToken/revocation"
	"github.com/MrEthical07/goToken/session"
)

// Engine issues, validates, rotates and revokes tokens. Build one with
// [Builder.Build]; all methods are safe for concurrent use.
type Engine struct {
	config       Config
	logger       *zap.Logger
	now          func() time.Time
	jwtManager   *jwt.Manager
	keys         *keyring.Manager
	refreshStore *refresh.Store
	sessionStore *session.Store
	revocation   *revocation.Store
	userProvider UserProvider
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	flows        flows.Service

	schedMu     sync.Mutex
	schedCancel context.CancelFunc
	schedDone   chan struct{}
	closeOnce   sync.Once
}

// Start runs the key rotation scheduler until ctx is done or Close is called.
// It returns immediately; calling it again while the scheduler runs is a
// no-op.
func (e *Engine) Start(ctx context.Context) {
	if e == nil || e.keys == nil || !e.config.Keys.RotationEnabled {
		return
	}

	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	if e.schedCancel != nil {
		return
	}

	schedCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.schedCancel = cancel
	e.schedDone = done

	go func() {
		defer close(done)
		e.keys.RunScheduler(schedCtx, e.config.Keys.SchedulerTick)
	}()
	e.logger.Info("rotation scheduler started", zap.Duration("tick", e.config.Keys.SchedulerTick))
}

// Close stops the rotation scheduler and drains the audit buffer. It does not
// close the Redis client.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.schedMu.Lock()
		cancel, done := e.schedCancel, e.schedDone
		e.schedMu.Unlock()
		if cancel != nil {
			cancel()
			<-done
		}
		e.audit.Close()
	})
}

// AuditDropped reports how many audit events were dropped because the buffer
// was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of every counter and histogram.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

// opContext bounds one engine operation by Store.OperationTimeout.
func (e *Engine) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.config.Store.OperationTimeout)
}

// isStoreError reports whether err came from a store that failed or holds
// corrupt state.
func isStoreError(err error) bool {
	return errors.Is(err, keyring.ErrRedisUnavailable) ||
		errors.Is(err, keyring.ErrCorruptState) ||
		errors.Is(err, refresh.ErrRedisUnavailable) ||
		errors.Is(err, session.ErrRedisUnavailable) ||
		errors.Is(err, revocation.ErrRedisUnavailable) ||
		errors.Is(err, revocation.ErrMarkerCorrupt) ||
		errors.Is(err, context.DeadlineExceeded)
}

// opFailure logs the cause of a failed operation and returns what the caller
// sees. Store causes may name keys, so they collapse into ErrStoreUnavailable.
func (e *Engine) opFailure(op string, err error) error {
	if isStoreError(err) {
		e.logger.Warn("store operation failed", zap.String("op", op), zap.Error(err))
		return ErrStoreUnavailable
	}
	e.logger.Error("operation failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: %w", op, err)
}

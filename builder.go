package goToken

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/goToken/internal"
	internalaudit "github.com/MrEthical07/goToken/internal/audit"
	"github.com/MrEthical07/goToken/internal/flows"
	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/keyring"
	"github.com/MrEthical07/goToken/refresh"
	"github.com/MrEthical07/goToken/revocation"
	"github.com/MrEthical07/goToken/session"
)

// Builder assembles an [Engine]. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userProvider UserProvider
	auditSink    AuditSink
	logger       *zap.Logger
	now          func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The config is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the shared store. It must address a single node or a
// failover group: the rotation and revocation scripts touch keys that a
// *redis.ClusterClient or *redis.Ring would place on different shards, so
// Build rejects those.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for every component. Tests use it to move
// through rotation and expiry windows.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every store. No Redis I/O
// happens here; the keyring seeds its state on first use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	switch b.redis.(type) {
	case *redis.ClusterClient, *redis.Ring:
		return nil, fmt.Errorf("%w: sharded redis clients are not supported", ErrInvalidConfig)
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:       cfg,
		logger:       logger,
		now:          now,
		userProvider: b.userProvider,
		metrics:      NewMetrics(cfg.Metrics),
	}

	// -------- ACCESS TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:    cfg.JWT.AccessTTL,
		Issuer:       cfg.JWT.Issuer,
		Audience:     cfg.JWT.Audience,
		Leeway:       cfg.JWT.Leeway,
		RequireIAT:   cfg.JWT.RequireIAT,
		MaxFutureIAT: cfg.JWT.MaxFutureIAT,
		Now:          now,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	// -------- KEYRING --------
	keys, err := keyring.New(keyring.Config{
		Enabled:       cfg.Keys.RotationEnabled,
		StaticSecret:  cloneBytes(cfg.Keys.StaticSecret),
		SlotSecrets:   cfg.Keys.SlotSecrets,
		Interval:      cfg.Keys.Interval,
		Overlap:       cfg.Keys.Overlap,
		FailOpen:      cfg.Keys.FailOpen,
		RetryBackoff:  cfg.Keys.RetryBackoff,
		StateCacheTTL: cfg.Keys.StateCacheTTL,
		Key:           cfg.Store.KeyRotationKey,
		TickTimeout:   cfg.Store.OperationTimeout,
	}, b.redis, keyring.Options{
		Logger:          logger,
		Now:             now,
		OnRotate:        engine.onKeyRotated,
		OnRotateFailure: engine.onKeyRotationFailed,
		OnDegraded:      engine.onKeyringDegraded,
	})
	if err != nil {
		return nil, err
	}
	engine.keys = keys

	// -------- STORES --------
	engine.refreshStore = refresh.NewStore(b.redis, cfg.Store.RefreshPrefix)
	engine.sessionStore = session.NewStore(b.redis, cfg.Store.SessionPrefix, cfg.Store.PairPrefix)
	engine.revocation = revocation.NewStore(b.redis, revocation.Config{
		BlacklistPrefix: cfg.Store.BlacklistPrefix,
		GlobalKey:       cfg.Store.GlobalInvalidationKey,
		UserPrefix:      cfg.Store.UserInvalidationPrefix,
	})

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink, logger)

	// -------- FLOWS --------
	validate := flows.ValidateDeps{
		Keys:        keys,
		ParseAccess: jm.ParseAccess,
		Revocation:  engine.revocation,
	}
	engine.flows = flows.New(flows.Deps{
		Issue: flows.IssueDeps{
			Now:              now,
			Keys:             keys,
			MintAccess:       jm.CreateAccess,
			NewRefreshToken:  internal.NewRefreshToken,
			HashRefreshToken: internal.HashRefreshToken,
			NewFamilyID:      uuid.NewString,
			AccessTTL:        cfg.JWT.AccessTTL,
			RefreshTTL:       cfg.Refresh.TTL,
			FamilyLifetime:   cfg.Refresh.FamilyLifetime,
			PairGrace:        cfg.Session.PairGrace,
			MaxActivePerUser: cfg.Refresh.MaxActivePerUser,
			RefreshStore:     engine.refreshStore,
			SessionStore:     engine.sessionStore,
			RedisNil:         redis.Nil,
			CachedPairValid:  cachedPairValidator(validate),
		},
		Refresh: flows.RefreshDeps{
			Now:               now,
			Keys:              keys,
			MintAccess:        jm.CreateAccess,
			CheckRefreshToken: internal.CheckRefreshToken,
			NewRefreshToken:   internal.NewRefreshToken,
			HashRefreshToken:  internal.HashRefreshToken,
			FindUserRole:      engine.findUserRole,
			UserNotFound:      ErrUserNotFound,
			AccessTTL:         cfg.JWT.AccessTTL,
			RefreshTTL:        cfg.Refresh.TTL,
			PairGrace:         cfg.Session.PairGrace,
			RefreshStore:      engine.refreshStore,
			SessionStore:      engine.sessionStore,
			Logger:            logger.Named("refresh"),
		},
		Validate: validate,
		Logout: flows.LogoutDeps{
			Now:          now,
			MarkerTTL:    cfg.markerTTL(),
			RefreshStore: engine.refreshStore,
			SessionStore: engine.sessionStore,
			Revocation:   engine.revocation,
			RedisNil:     redis.Nil,
		},
		Introspection: flows.IntrospectionDeps{
			Now:               now,
			RefreshStore:      engine.refreshStore,
			Pinger:            engine.sessionStore,
			EngineNotReadyErr: ErrEngineNotReady,
			UserNotFoundErr:   ErrUserNotFound,
		},
	})

	b.built = true

	return engine, nil
}

// cachedPairValidator runs full validation on a cached access token. Key and
// store failures are errors so reuse fails closed.
func cachedPairValidator(deps flows.ValidateDeps) func(context.Context, string) (bool, error) {
	return func(ctx context.Context, accessToken string) (bool, error) {
		res := flows.RunValidate(ctx, accessToken, deps)
		switch res.Failure {
		case flows.ValidateFailureNone:
			return true, nil
		case flows.ValidateFailureKeys, flows.ValidateFailureStore:
			return false, res.Err
		default:
			return false, nil
		}
	}
}

func (e *Engine) findUserRole(ctx context.Context, userID string) (string, error) {
	user, err := e.userProvider.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

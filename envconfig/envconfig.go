package envconfig

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"

	goToken "github.com/MrEthical07/goToken"
)

// Prefix is prepended to every variable name.
const Prefix = "GOTOKEN_"

type jwtEnv struct {
	AccessTTL    time.Duration `env:"ACCESS_TTL"`
	Issuer       string        `env:"ISSUER"`
	Audience     string        `env:"AUDIENCE"`
	Leeway       time.Duration `env:"LEEWAY"`
	RequireIAT   bool          `env:"REQUIRE_IAT"`
	MaxFutureIAT time.Duration `env:"MAX_FUTURE_IAT"`
}

type keysEnv struct {
	StaticSecret    string            `env:"STATIC_SECRET,unset"`
	SlotSecrets     map[string]string `env:"SLOT_SECRETS,unset"`
	RotationEnabled bool              `env:"ROTATION_ENABLED"`
	Interval        time.Duration     `env:"ROTATION_INTERVAL"`
	Overlap         time.Duration     `env:"ROTATION_OVERLAP"`
	FailOpen        bool              `env:"FAIL_OPEN"`
	RetryBackoff    time.Duration     `env:"RETRY_BACKOFF"`
	StateCacheTTL   time.Duration     `env:"STATE_CACHE_TTL"`
	SchedulerTick   time.Duration     `env:"SCHEDULER_TICK"`
}

type refreshEnv struct {
	TTL              time.Duration `env:"TTL"`
	FamilyLifetime   time.Duration `env:"FAMILY_LIFETIME"`
	MaxActivePerUser int           `env:"MAX_ACTIVE_PER_USER"`
}

type storeEnv struct {
	OperationTimeout       time.Duration `env:"OPERATION_TIMEOUT"`
	KeyRotationKey         string        `env:"KEY_ROTATION_KEY"`
	RefreshPrefix          string        `env:"REFRESH_PREFIX"`
	SessionPrefix          string        `env:"SESSION_PREFIX"`
	PairPrefix             string        `env:"PAIR_PREFIX"`
	BlacklistPrefix        string        `env:"BLACKLIST_PREFIX"`
	GlobalInvalidationKey  string        `env:"GLOBAL_INVALIDATION_KEY"`
	UserInvalidationPrefix string        `env:"USER_INVALIDATION_PREFIX"`
}

type auditEnv struct {
	Enabled               bool `env:"ENABLED"`
	BufferSize            int  `env:"BUFFER_SIZE"`
	DropIfFull            bool `env:"DROP_IF_FULL"`
	EmitValidationSuccess bool `env:"EMIT_VALIDATION_SUCCESS"`
}

type config struct {
	JWT       jwtEnv        `envPrefix:"JWT_"`
	Keys      keysEnv       `envPrefix:"KEYS_"`
	Refresh   refreshEnv    `envPrefix:"REFRESH_"`
	PairGrace time.Duration `env:"SESSION_PAIR_GRACE"`
	Store     storeEnv      `envPrefix:"STORE_"`
	Audit     auditEnv      `envPrefix:"AUDIT_"`
	Metrics   bool          `env:"METRICS_ENABLED"`
	Latency   bool          `env:"METRICS_LATENCY_HISTOGRAMS"`
}

// Redis holds the connection settings read by [LoadRedisOptions].
type Redis struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD,unset"`
	DB       int    `env:"DB" envDefault:"0"`
}

// Load reads the engine configuration from the environment and validates
// it. The static secret must be provided through GOTOKEN_KEYS_STATIC_SECRET;
// it is removed from the environment once read.
func Load() (goToken.Config, error) {
	def := goToken.DefaultConfig()
	c := fromConfig(def)
	if err := env.ParseWithOptions(&c, env.Options{Prefix: Prefix}); err != nil {
		return goToken.Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := c.toConfig(def)
	if err := cfg.Validate(); err != nil {
		return goToken.Config{}, err
	}
	return cfg, nil
}

// LoadRedisOptions reads GOTOKEN_REDIS_* into go-redis options.
func LoadRedisOptions() (*redis.Options, error) {
	var r Redis
	if err := env.ParseWithOptions(&r, env.Options{Prefix: Prefix + "REDIS_"}); err != nil {
		return nil, fmt.Errorf("failed to parse redis config: %w", err)
	}
	return &redis.Options{
		Addr:     r.Addr,
		Username: r.Username,
		Password: r.Password,
		DB:       r.DB,
	}, nil
}

func fromConfig(cfg goToken.Config) config {
	return config{
		JWT: jwtEnv{
			AccessTTL:    cfg.JWT.AccessTTL,
			Issuer:       cfg.JWT.Issuer,
			Audience:     cfg.JWT.Audience,
			Leeway:       cfg.JWT.Leeway,
			RequireIAT:   cfg.JWT.RequireIAT,
			MaxFutureIAT: cfg.JWT.MaxFutureIAT,
		},
		Keys: keysEnv{
			RotationEnabled: cfg.Keys.RotationEnabled,
			Interval:        cfg.Keys.Interval,
			Overlap:         cfg.Keys.Overlap,
			FailOpen:        cfg.Keys.FailOpen,
			RetryBackoff:    cfg.Keys.RetryBackoff,
			StateCacheTTL:   cfg.Keys.StateCacheTTL,
			SchedulerTick:   cfg.Keys.SchedulerTick,
		},
		Refresh: refreshEnv{
			TTL:              cfg.Refresh.TTL,
			FamilyLifetime:   cfg.Refresh.FamilyLifetime,
			MaxActivePerUser: cfg.Refresh.MaxActivePerUser,
		},
		PairGrace: cfg.Session.PairGrace,
		Store: storeEnv{
			OperationTimeout:       cfg.Store.OperationTimeout,
			KeyRotationKey:         cfg.Store.KeyRotationKey,
			RefreshPrefix:          cfg.Store.RefreshPrefix,
			SessionPrefix:          cfg.Store.SessionPrefix,
			PairPrefix:             cfg.Store.PairPrefix,
			BlacklistPrefix:        cfg.Store.BlacklistPrefix,
			GlobalInvalidationKey:  cfg.Store.GlobalInvalidationKey,
			UserInvalidationPrefix: cfg.Store.UserInvalidationPrefix,
		},
		Audit: auditEnv{
			Enabled:               cfg.Audit.Enabled,
			BufferSize:            cfg.Audit.BufferSize,
			DropIfFull:            cfg.Audit.DropIfFull,
			EmitValidationSuccess: cfg.Audit.EmitValidationSuccess,
		},
		Metrics: cfg.Metrics.Enabled,
		Latency: cfg.Metrics.EnableLatencyHistograms,
	}
}

func (c config) toConfig(base goToken.Config) goToken.Config {
	cfg := base
	cfg.JWT = goToken.JWTConfig(c.JWT)

	cfg.Keys.StaticSecret = []byte(c.Keys.StaticSecret)
	if len(c.Keys.SlotSecrets) > 0 {
		cfg.Keys.SlotSecrets = make(map[string][]byte, len(c.Keys.SlotSecrets))
		for slot, secret := range c.Keys.SlotSecrets {
			cfg.Keys.SlotSecrets[slot] = []byte(secret)
		}
	}
	cfg.Keys.RotationEnabled = c.Keys.RotationEnabled
	cfg.Keys.Interval = c.Keys.Interval
	cfg.Keys.Overlap = c.Keys.Overlap
	cfg.Keys.FailOpen = c.Keys.FailOpen
	cfg.Keys.RetryBackoff = c.Keys.RetryBackoff
	cfg.Keys.StateCacheTTL = c.Keys.StateCacheTTL
	cfg.Keys.SchedulerTick = c.Keys.SchedulerTick

	cfg.Refresh = goToken.RefreshConfig(c.Refresh)
	cfg.Session.PairGrace = c.PairGrace

	cfg.Store.OperationTimeout = c.Store.OperationTimeout
	cfg.Store.KeyRotationKey = c.Store.KeyRotationKey
	cfg.Store.RefreshPrefix = c.Store.RefreshPrefix
	cfg.Store.SessionPrefix = c.Store.SessionPrefix
	cfg.Store.PairPrefix = c.Store.PairPrefix
	cfg.Store.BlacklistPrefix = c.Store.BlacklistPrefix
	cfg.Store.GlobalInvalidationKey = c.Store.GlobalInvalidationKey
	cfg.Store.UserInvalidationPrefix = c.Store.UserInvalidationPrefix

	cfg.Audit = goToken.AuditConfig(c.Audit)
	cfg.Metrics.Enabled = c.Metrics
	cfg.Metrics.EnableLatencyHistograms = c.Latency
	return cfg
}

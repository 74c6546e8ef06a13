package goToken

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the complete engine configuration. Build one with
// [DefaultConfig] and override fields, or load it with the envconfig package.
type Config struct {
	JWT     JWTConfig
	Keys    KeysConfig
	Refresh RefreshConfig
	Session SessionConfig
	Store   StoreConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access-token claims and parsing.
type JWTConfig struct {
	AccessTTL    time.Duration
	Issuer       string
	Audience     string
	Leeway       time.Duration
	RequireIAT   bool
	MaxFutureIAT time.Duration
}

/*
====================================
KEY ROTATION CONFIG
====================================
*/

// KeysConfig controls signing keys and their rotation.
//
// StaticSecret is always required. It signs every token while rotation is
// disabled or the keyring is degraded, and it seeds the slot secrets when
// SlotSecrets does not name them.
type KeysConfig struct {
	StaticSecret    []byte
	SlotSecrets     map[string][]byte
	RotationEnabled bool
	Interval        time.Duration
	Overlap         time.Duration
	// FailOpen keeps signing and verifying with the static key while the
	// rotation state cannot be read.
	FailOpen      bool
	RetryBackoff  time.Duration
	StateCacheTTL time.Duration
	// SchedulerTick is how often Engine.Start checks whether rotation is due.
	SchedulerTick time.Duration
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls refresh tokens and families.
type RefreshConfig struct {
	TTL            time.Duration
	FamilyLifetime time.Duration
	// MaxActivePerUser caps live refresh tokens per user when a new family is
	// started. Zero disables the cap.
	MaxActivePerUser int
}

// SessionConfig controls the per-session pair cache.
type SessionConfig struct {
	PairGrace time.Duration
}

// StoreConfig controls Redis access and the key layout.
type StoreConfig struct {
	OperationTimeout       time.Duration
	KeyRotationKey         string
	RefreshPrefix          string
	SessionPrefix          string
	PairPrefix             string
	BlacklistPrefix        string
	GlobalInvalidationKey  string
	UserInvalidationPrefix string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled               bool
	BufferSize            int
	DropIfFull            bool
	EmitValidationSuccess bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns a configuration with safe defaults. StaticSecret is
// left empty and must be set.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:    15 * time.Minute,
			Issuer:       "gotoken",
			Leeway:       30 * time.Second,
			RequireIAT:   true,
			MaxFutureIAT: time.Minute,
		},
		Keys: KeysConfig{
			RotationEnabled: true,
			Interval:        24 * time.Hour,
			Overlap:         time.Hour,
			FailOpen:        true,
			RetryBackoff:    5 * time.Second,
			StateCacheTTL:   time.Second,
			SchedulerTick:   time.Minute,
		},
		Refresh: RefreshConfig{
			TTL:            7 * 24 * time.Hour,
			FamilyLifetime: 30 * 24 * time.Hour,
		},
		Session: SessionConfig{
			PairGrace: 10 * time.Second,
		},
		Store: StoreConfig{
			OperationTimeout:       2 * time.Second,
			KeyRotationKey:         "jwt_key_rotation",
			RefreshPrefix:          "refresh_tokens",
			SessionPrefix:          "session",
			PairPrefix:             "session_token",
			BlacklistPrefix:        "blacklist",
			GlobalInvalidationKey:  "global_token_invalidation",
			UserInvalidationPrefix: "user_token_invalidation",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Keys.StaticSecret = cloneBytes(cfg.Keys.StaticSecret)
	if cfg.Keys.SlotSecrets != nil {
		out.Keys.SlotSecrets = make(map[string][]byte, len(cfg.Keys.SlotSecrets))
		for slot, secret := range cfg.Keys.SlotSecrets {
			out.Keys.SlotSecrets[slot] = cloneBytes(secret)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first invalid setting. Every returned error wraps
// ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if strings.TrimSpace(c.JWT.Issuer) == "" {
		return errors.New("JWT Issuer is required")
	}
	if c.JWT.Audience != "" && strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience must not be blank")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.MaxFutureIAT < 0 {
		return errors.New("JWT MaxFutureIAT must be >= 0")
	}

	// Keys
	if len(c.Keys.StaticSecret) < 32 {
		return errors.New("Keys StaticSecret must be at least 32 bytes")
	}
	for slot, secret := range c.Keys.SlotSecrets {
		if len(secret) < 32 {
			return fmt.Errorf("Keys SlotSecrets[%s] must be at least 32 bytes", slot)
		}
	}
	if c.Keys.RotationEnabled {
		if c.Keys.Interval <= 0 {
			return errors.New("Keys Interval must be > 0")
		}
		if c.Keys.Overlap <= 0 {
			return errors.New("Keys Overlap must be > 0")
		}
		if c.Keys.Overlap > c.Keys.Interval {
			return errors.New("Keys Overlap must be <= Interval")
		}
		if c.Keys.RetryBackoff <= 0 {
			return errors.New("Keys RetryBackoff must be > 0")
		}
		if c.Keys.StateCacheTTL < 0 {
			return errors.New("Keys StateCacheTTL must be >= 0")
		}
		if c.Keys.SchedulerTick <= 0 {
			return errors.New("Keys SchedulerTick must be > 0")
		}
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.FamilyLifetime <= 0 {
		return errors.New("Refresh FamilyLifetime must be > 0")
	}
	if c.Refresh.TTL > c.Refresh.FamilyLifetime {
		return errors.New("Refresh TTL must be <= FamilyLifetime")
	}
	if c.Refresh.MaxActivePerUser < 0 {
		return errors.New("Refresh MaxActivePerUser must be >= 0")
	}

	// Session
	if c.Session.PairGrace <= 0 {
		return errors.New("Session PairGrace must be > 0")
	}
	if c.Session.PairGrace >= c.JWT.AccessTTL {
		return errors.New("Session PairGrace must be < JWT AccessTTL")
	}

	// Store
	if c.Store.OperationTimeout <= 0 {
		return errors.New("Store OperationTimeout must be > 0")
	}
	prefixes := map[string]string{
		"KeyRotationKey":         c.Store.KeyRotationKey,
		"RefreshPrefix":          c.Store.RefreshPrefix,
		"SessionPrefix":          c.Store.SessionPrefix,
		"PairPrefix":             c.Store.PairPrefix,
		"BlacklistPrefix":        c.Store.BlacklistPrefix,
		"GlobalInvalidationKey":  c.Store.GlobalInvalidationKey,
		"UserInvalidationPrefix": c.Store.UserInvalidationPrefix,
	}
	seen := make(map[string]string, len(prefixes))
	for name, value := range prefixes {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("Store %s must not be empty", name)
		}
		if other, ok := seen[value]; ok {
			return fmt.Errorf("Store %s collides with %s", name, other)
		}
		seen[value] = name
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

// markerTTL is how long an invalidation marker must live: long enough to
// outlast every token it can cover.
func (c *Config) markerTTL() time.Duration {
	return c.JWT.AccessTTL + c.JWT.Leeway + c.JWT.MaxFutureIAT
}

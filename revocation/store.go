package revocation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultBlacklistPrefix = "blacklist"
	DefaultGlobalKey       = "global_token_invalidation"
	DefaultUserPrefix      = "user_token_invalidation"
)

var (
	// ErrRedisUnavailable is returned when Redis cannot serve a revocation operation.
	ErrRedisUnavailable = errors.New("revocation redis unavailable")
	// ErrMarkerCorrupt is returned by Check when an invalidation marker is not
	// a millisecond timestamp. Writing the marker again repairs it.
	ErrMarkerCorrupt = errors.New("revocation marker corrupt")
)

// KEYS[1] = marker key, ARGV[1] = unix ms, ARGV[2] = ttl ms
// Writes the marker only if it moves forward; the TTL is always refreshed.
// An unparsable marker counts as 0 and is overwritten.
const advanceMarkerScript = `
local cur = tonumber(redis.call("GET", KEYS[1]) or "0") or 0
local want = tonumber(ARGV[1])
if want > cur then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
  return 1
end
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return 0
`

var advanceMarkerLua = redis.NewScript(advanceMarkerScript)

// Config names the Redis keys. Empty fields fall back to the defaults.
type Config struct {
	BlacklistPrefix string
	GlobalKey       string
	UserPrefix      string
}

// Store is a Redis-backed revocation store.
type Store struct {
	redis redis.UniversalClient
	cfg   Config
}

// Status is the deny state relevant to one access token.
type Status struct {
	Blacklisted  bool
	GlobalMarker int64
	UserMarker   int64
}

// Revoked reports whether a token issued at issuedAtMs is denied. A token
// issued in the same millisecond as a marker counts as issued before it.
func (s Status) Revoked(issuedAtMs int64) bool {
	if s.Blacklisted {
		return true
	}
	if s.GlobalMarker > 0 && issuedAtMs <= s.GlobalMarker {
		return true
	}
	return s.UserMarker > 0 && issuedAtMs <= s.UserMarker
}

// NewStore creates a revocation [Store].
func NewStore(redis redis.UniversalClient, cfg Config) *Store {
	if cfg.BlacklistPrefix == "" {
		cfg.BlacklistPrefix = DefaultBlacklistPrefix
	}
	if cfg.GlobalKey == "" {
		cfg.GlobalKey = DefaultGlobalKey
	}
	if cfg.UserPrefix == "" {
		cfg.UserPrefix = DefaultUserPrefix
	}
	return &Store{redis: redis, cfg: cfg}
}

func (s *Store) blacklistKey(jti string) string {
	return s.cfg.BlacklistPrefix + ":" + jti
}

func (s *Store) userKey(userID string) string {
	return s.cfg.UserPrefix + ":" + userID
}

// Blacklist denies jti for ttl. A non-positive ttl means the token is already
// dead and nothing is written.
func (s *Store) Blacklist(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return errors.New("empty jti")
	}
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, s.blacklistKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsBlacklisted reports whether jti is denied.
func (s *Store) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// InvalidateAll denies every token issued at or before at. ttl should cover
// the longest lifetime of a token issued before at.
func (s *Store) InvalidateAll(ctx context.Context, at time.Time, ttl time.Duration) error {
	return s.advance(ctx, s.cfg.GlobalKey, at, ttl)
}

// InvalidateUser denies every token of userID issued at or before at.
func (s *Store) InvalidateUser(ctx context.Context, userID string, at time.Time, ttl time.Duration) error {
	if userID == "" {
		return errors.New("empty user id")
	}
	return s.advance(ctx, s.userKey(userID), at, ttl)
}

// Check reads the blacklist entry and both markers in one pipeline.
func (s *Store) Check(ctx context.Context, jti, userID string) (Status, error) {
	pipe := s.redis.Pipeline()
	blacklisted := pipe.Exists(ctx, s.blacklistKey(jti))
	global := pipe.Get(ctx, s.cfg.GlobalKey)
	user := pipe.Get(ctx, s.userKey(userID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Status{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var st Status
	st.Blacklisted = blacklisted.Val() == 1
	var err error
	if st.GlobalMarker, err = markerValue(global); err != nil {
		return Status{}, err
	}
	if st.UserMarker, err = markerValue(user); err != nil {
		return Status{}, err
	}
	return st, nil
}

func (s *Store) advance(ctx context.Context, key string, at time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("marker ttl must be > 0")
	}
	err := advanceMarkerLua.Run(ctx, s.redis, []string{key},
		strconv.FormatInt(at.UnixMilli(), 10),
		strconv.FormatInt(ttl.Milliseconds(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func markerValue(cmd *redis.StringCmd) (int64, error) {
	v, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms < 0 {
		return 0, fmt.Errorf("%w: %q", ErrMarkerCorrupt, v)
	}
	return ms, nil
}

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix     = "session"
	DefaultPairPrefix = "session_token"
)

// ErrRedisUnavailable is returned when Redis cannot serve a session operation.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned, joined with redis.Nil, for missing sessions.
var ErrSessionNotFound = errors.New("session not found")

// ErrPairNotFound is returned, joined with redis.Nil, when no pair is cached.
var ErrPairNotFound = errors.New("token pair not cached")

// ErrSessionCorrupt is returned when a stored session or pair cannot be decoded.
var ErrSessionCorrupt = errors.New("session corrupt")

// KEYS[1] = session key, KEYS[2] = pair key
// ARGV[1] = session id, ARGV[2] = user index prefix
const deleteSessionScript = `
local user_id = redis.call("HGET", KEYS[1], "user_id")
redis.call("DEL", KEYS[2])
if not user_id then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[2] .. user_id, ARGV[1])
return 1
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// KEYS[1] = pair key, ARGV[1] = encoded pair, ARGV[2] = ttl ms
// Returns {1, pair} when stored, {0, existing} when another pair won, {2} if
// the winner expired in between.
const cachePairScript = `
local ok = redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2])
if ok then
  return {1, ARGV[1]}
end
local existing = redis.call("GET", KEYS[1])
if not existing then
  return {2}
end
return {0, existing}
`

var cachePairLua = redis.NewScript(cachePairScript)

// Store is a Redis-backed session store.
type Store struct {
	redis      redis.UniversalClient
	prefix     string
	pairPrefix string
}

// NewStore creates a session [Store]. Empty prefixes fall back to
// DefaultPrefix and DefaultPairPrefix.
func NewStore(redis redis.UniversalClient, prefix, pairPrefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if pairPrefix == "" {
		pairPrefix = DefaultPairPrefix
	}
	return &Store{
		redis:      redis,
		prefix:     prefix,
		pairPrefix: pairPrefix,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) userPrefix() string {
	return s.prefix + ":user:"
}

func (s *Store) userKey(userID string) string {
	return s.userPrefix() + userID
}

func (s *Store) pairKey(sessionID string) string {
	return s.pairPrefix + ":" + sessionID
}

// Save persists sess with the given TTL and adds it to the user index.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	if sess == nil || sess.SessionID == "" || sess.UserID == "" {
		return ErrSessionCorrupt
	}
	if ttl <= 0 {
		return errors.New("session ttl must be > 0")
	}

	sessionKey := s.key(sess.SessionID)
	userKey := s.userKey(sess.UserID)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, sessionKey,
			"user_id", sess.UserID,
			"family_id", sess.FamilyID,
			"created_at", strconv.FormatInt(sess.CreatedAt.UnixMilli(), 10),
			"expires_at", strconv.FormatInt(sess.ExpiresAt.UnixMilli(), 10),
		)
		pipe.PExpire(ctx, sessionKey, ttl)
		pipe.SAdd(ctx, userKey, sess.SessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get retrieves a session by id.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	m, err := s.redis.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(m) == 0 {
		return nil, errors.Join(redis.Nil, ErrSessionNotFound)
	}
	return sessionFromHash(sessionID, m)
}

// Delete removes a session, its user index entry and its cached pair. It
// reports whether the session existed and is safe to repeat.
func (s *Store) Delete(ctx context.Context, sessionID string) (bool, error) {
	existed, err := deleteSessionLua.Run(ctx, s.redis,
		[]string{s.key(sessionID), s.pairKey(sessionID)},
		sessionID,
		s.userPrefix(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return existed == 1, nil
}

// DeleteAllForUser removes every session of a user and returns how many
// index entries were processed.
//
// ATOMICITY NOTE: This operation is NOT fully atomic. It reads the user's
// session set (SMembers) and deletes in a second round trip (TxPipelined). A
// session created between the two phases is not captured; it expires with its
// family or is caught by the next DeleteAllForUser call.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	userKey := s.userKey(userID)

	sessionIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, sessionID := range sessionIDs {
			pipe.Del(ctx, s.key(sessionID), s.pairKey(sessionID))
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return len(sessionIDs), nil
}

// ListForUser returns the live sessions of a user. Index entries whose
// session expired are pruned.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	userKey := s.userKey(userID)
	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	out := make([]*Session, 0, len(ids))
	stale := make([]interface{}, 0)
	for i, cmd := range cmds {
		m, err := cmd.Result()
		if err != nil || len(m) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		sess, err := sessionFromHash(ids[i], m)
		if err != nil {
			continue
		}
		out = append(out, sess)
	}
	if len(stale) > 0 {
		_ = s.redis.SRem(ctx, userKey, stale...).Err()
	}
	return out, nil
}

// GetPair returns the cached pair of a session.
func (s *Store) GetPair(ctx context.Context, sessionID string) (*Pair, error) {
	data, err := s.redis.Get(ctx, s.pairKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.Join(redis.Nil, ErrPairNotFound)
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return decodePair(data)
}

// SetPair caches pair for ttl, replacing any cached pair.
func (s *Store) SetPair(ctx context.Context, sessionID string, pair *Pair, ttl time.Duration) error {
	data, err := json.Marshal(pair)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.pairKey(sessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CachePairIfAbsent caches pair only if no pair is cached yet. It returns the
// pair that is cached after the call and whether it is the one passed in.
func (s *Store) CachePairIfAbsent(ctx context.Context, sessionID string, pair *Pair, ttl time.Duration) (*Pair, bool, error) {
	data, err := json.Marshal(pair)
	if err != nil {
		return nil, false, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		raw, err := cachePairLua.Run(ctx, s.redis,
			[]string{s.pairKey(sessionID)},
			string(data),
			strconv.FormatInt(ttl.Milliseconds(), 10),
		).Slice()
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if len(raw) == 0 {
			return nil, false, ErrSessionCorrupt
		}

		status, _ := raw[0].(int64)
		switch status {
		case 1:
			return pair, true, nil
		case 0:
			existing, _ := raw[1].(string)
			winner, err := decodePair([]byte(existing))
			if err != nil {
				return nil, false, err
			}
			return winner, false, nil
		}
		// winner expired between SET NX and GET; try once more
	}
	return nil, false, ErrPairNotFound
}

// DeletePair drops the cached pair of a session.
func (s *Store) DeletePair(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.pairKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func sessionFromHash(sessionID string, m map[string]string) (*Session, error) {
	sess := &Session{
		SessionID: sessionID,
		UserID:    m["user_id"],
		FamilyID:  m["family_id"],
	}
	if sess.UserID == "" {
		return nil, ErrSessionCorrupt
	}
	created, err := strconv.ParseInt(m["created_at"], 10, 64)
	if err != nil {
		return nil, ErrSessionCorrupt
	}
	expires, err := strconv.ParseInt(m["expires_at"], 10, 64)
	if err != nil {
		return nil, ErrSessionCorrupt
	}
	sess.CreatedAt = time.UnixMilli(created)
	sess.ExpiresAt = time.UnixMilli(expires)
	return sess, nil
}

func decodePair(data []byte) (*Pair, error) {
	var pair Pair
	if err := json.Unmarshal(data, &pair); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return nil, ErrSessionCorrupt
	}
	return &pair, nil
}

package refresh

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is the key namespace used when NewStore is given an empty prefix.
const DefaultPrefix = "refresh_tokens"

var (
	ErrRedisUnavailable = errors.New("refresh redis unavailable")
	ErrRecordNotFound   = errors.New("refresh record not found")
	ErrRecordExpired    = errors.New("refresh record expired")
	ErrRecordExists     = errors.New("refresh record already exists")
	ErrRecordCorrupt    = errors.New("refresh record corrupt")
	ErrRefreshReuse     = errors.New("refresh token reuse")
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusReuse    int64 = 2
	rotateStatusRotated  int64 = 3
)

// KEYS[1] = record key, KEYS[2] = user index, KEYS[3] = family index
// ARGV[1] = token hash, ARGV[2] = expires_at ms, ARGV[3] = family_expires_at ms,
// ARGV[4] = now ms, ARGV[5..] = field/value pairs
const saveScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end

local function extend(key, at, now)
  local want = tonumber(at) - tonumber(now)
  if want <= 0 then
    return
  end
  local ttl = redis.call("PTTL", key)
  if ttl < want then
    redis.call("PEXPIRE", key, want)
  end
end

redis.call("HSET", KEYS[1], unpack(ARGV, 5))
redis.call("PEXPIREAT", KEYS[1], ARGV[2])
redis.call("SADD", KEYS[2], ARGV[1])
redis.call("SADD", KEYS[3], ARGV[1])
extend(KEYS[2], ARGV[3], ARGV[4])
extend(KEYS[3], ARGV[3], ARGV[4])
return 1
`

var saveLua = redis.NewScript(saveScript)

// KEYS[1] = presented record key, KEYS[2] = successor record key
// ARGV[1] = now ms, ARGV[2] = successor hash, ARGV[3] = candidate expires_at ms,
// ARGV[4] = client ip, ARGV[5] = user agent, ARGV[6] = key prefix
//
// Returns {0} not found, {1} expired, {2, user, family, session} reuse,
// {3, user, family, session, expires_at} rotated.
const rotateScript = `
local raw = redis.call("HGETALL", KEYS[1])
if #raw == 0 then
  return {0}
end

local f = {}
for i = 1, #raw, 2 do
  f[raw[i]] = raw[i + 1]
end

local now = tonumber(ARGV[1])
if tonumber(f["expires_at"] or "0") <= now then
  return {1}
end

if f["revoked"] == "1" or (f["replaced_by"] and f["replaced_by"] ~= "") then
  return {2, f["user_id"], f["family_id"], f["session_id"] or ""}
end

local exp = ARGV[3]
if tonumber(f["family_expires_at"]) < tonumber(exp) then
  exp = f["family_expires_at"]
end
if tonumber(exp) <= now then
  return {1}
end

redis.call("HSET", KEYS[1], "revoked", "1", "replaced_by", ARGV[2])

redis.call("HSET", KEYS[2],
  "user_id", f["user_id"],
  "family_id", f["family_id"],
  "session_id", f["session_id"] or "",
  "family_expires_at", f["family_expires_at"],
  "issued_at", ARGV[1],
  "expires_at", exp,
  "revoked", "0",
  "replaced_by", "",
  "client_ip", ARGV[4],
  "user_agent", ARGV[5])
redis.call("PEXPIREAT", KEYS[2], exp)

local prefix = ARGV[6]
redis.call("SADD", prefix .. ":user:" .. f["user_id"], ARGV[2])
redis.call("SADD", prefix .. ":family:" .. f["family_id"], ARGV[2])

return {3, f["user_id"], f["family_id"], f["session_id"] or "", exp}
`

var rotateLua = redis.NewScript(rotateScript)

const revokeScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "revoked", "1")
return 1
`

var revokeLua = redis.NewScript(revokeScript)

// KEYS[1] = record key, ARGV[1] = token hash, ARGV[2] = key prefix
const deleteScript = `
local f = redis.call("HMGET", KEYS[1], "user_id", "family_id")
if not f[1] then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[2] .. ":user:" .. f[1], ARGV[1])
if f[2] then
  redis.call("SREM", ARGV[2] .. ":family:" .. f[2], ARGV[1])
end
return 1
`

var deleteLua = redis.NewScript(deleteScript)

// Store is a Redis-backed refresh token store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// RotateRequest describes one claim-and-rotate attempt.
type RotateRequest struct {
	TokenHash  string
	NextHash   string
	Now        time.Time
	RefreshTTL time.Duration
	ClientIP   string
	UserAgent  string
}

// RotateResult identifies the family a rotation touched. On ErrRefreshReuse it
// is still populated so the caller can lock the family out.
type RotateResult struct {
	UserID    string
	FamilyID  string
	SessionID string
	ExpiresAt time.Time
}

// NewStore creates a refresh token [Store] backed by the given Redis client.
func NewStore(redis redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		redis:  redis,
		prefix: prefix,
	}
}

func (s *Store) key(tokenHash string) string {
	return s.prefix + ":" + tokenHash
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":user:" + userID
}

func (s *Store) familyKey(familyID string) string {
	return s.prefix + ":family:" + familyID
}

// Save persists a new record atomically with its index memberships. An
// existing record under the same hash is never overwritten.
func (s *Store) Save(ctx context.Context, rec *Record, now time.Time) error {
	if rec == nil || rec.TokenHash == "" || rec.UserID == "" || rec.FamilyID == "" {
		return ErrRecordCorrupt
	}
	if !rec.ExpiresAt.After(now) {
		return ErrRecordExpired
	}

	args := make([]interface{}, 0, 24)
	args = append(args,
		rec.TokenHash,
		formatMillis(rec.ExpiresAt),
		formatMillis(rec.FamilyExpiresAt),
		formatMillis(now),
	)
	args = append(args, rec.fields()...)

	created, err := saveLua.Run(ctx, s.redis,
		[]string{s.key(rec.TokenHash), s.userKey(rec.UserID), s.familyKey(rec.FamilyID)},
		args...,
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if created == 0 {
		return ErrRecordExists
	}
	return nil
}

// Get loads one record by token hash.
func (s *Store) Get(ctx context.Context, tokenHash string) (*Record, error) {
	m, err := s.redis.HGetAll(ctx, s.key(tokenHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(m) == 0 {
		return nil, errors.Join(redis.Nil, ErrRecordNotFound)
	}
	return recordFromHash(tokenHash, m)
}

// Rotate atomically claims the record under req.TokenHash and writes its
// successor under req.NextHash in the same family.
//
// The successor expires at min(now+RefreshTTL, family expiry). A revoked or
// already replaced record yields ErrRefreshReuse together with the family.
func (s *Store) Rotate(ctx context.Context, req RotateRequest) (*RotateResult, error) {
	if req.TokenHash == "" || req.NextHash == "" || req.TokenHash == req.NextHash {
		return nil, ErrRecordCorrupt
	}

	raw, err := rotateLua.Run(ctx, s.redis,
		[]string{s.key(req.TokenHash), s.key(req.NextHash)},
		formatMillis(req.Now),
		req.NextHash,
		formatMillis(req.Now.Add(req.RefreshTTL)),
		req.ClientIP,
		req.UserAgent,
		s.prefix,
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(raw) == 0 {
		return nil, ErrRecordCorrupt
	}

	status, ok := raw[0].(int64)
	if !ok {
		return nil, ErrRecordCorrupt
	}

	switch status {
	case rotateStatusNotFound:
		return nil, errors.Join(redis.Nil, ErrRecordNotFound)
	case rotateStatusExpired:
		return nil, ErrRecordExpired
	case rotateStatusReuse:
		res, err := rotateResultFrom(raw, 4)
		if err != nil {
			return nil, err
		}
		return res, ErrRefreshReuse
	case rotateStatusRotated:
		res, err := rotateResultFrom(raw, 5)
		if err != nil {
			return nil, err
		}
		exp, err := strconv.ParseInt(stringAt(raw, 4), 10, 64)
		if err != nil {
			return nil, ErrRecordCorrupt
		}
		res.ExpiresAt = time.UnixMilli(exp)
		return res, nil
	default:
		return nil, ErrRecordCorrupt
	}
}

// RevokeFamily marks every record of a family revoked and returns how many
// records were touched. Records are kept so that a later presentation is
// still recognized as reuse. Safe to repeat.
func (s *Store) RevokeFamily(ctx context.Context, familyID string) (int, error) {
	hashes, err := s.redis.SMembers(ctx, s.familyKey(familyID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(hashes) == 0 {
		return 0, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.Cmd, len(hashes))
	for i, h := range hashes {
		cmds[i] = revokeLua.Eval(ctx, pipe, []string{s.key(h)})
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	revoked := 0
	for _, cmd := range cmds {
		if n, err := cmd.Int(); err == nil {
			revoked += n
		}
	}
	return revoked, nil
}

// ListByUser returns every live record of a user, oldest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*Record, error) {
	return s.listIndex(ctx, s.userKey(userID))
}

// ListByFamily returns every live record of a family, oldest first.
func (s *Store) ListByFamily(ctx context.Context, familyID string) ([]*Record, error) {
	return s.listIndex(ctx, s.familyKey(familyID))
}

// CountActiveByUser counts the user's records that are still exchangeable at now.
func (s *Store) CountActiveByUser(ctx context.Context, userID string, now time.Time) (int, error) {
	records, err := s.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	active := 0
	for _, rec := range records {
		if rec.Valid(now) {
			active++
		}
	}
	return active, nil
}

// Delete removes one record and its index memberships.
func (s *Store) Delete(ctx context.Context, tokenHash string) error {
	if err := deleteLua.Run(ctx, s.redis, []string{s.key(tokenHash)}, tokenHash, s.prefix).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteByFamily removes every record of a family and the family index.
//
// ATOMICITY NOTE: members are read first and deleted in a second round trip.
// A record written by a rotation in between survives this call; it is still
// bound to a deleted session and fails on its own revoked/replaced_by check
// once the family is revoked again.
func (s *Store) DeleteByFamily(ctx context.Context, familyID string) error {
	familyKey := s.familyKey(familyID)
	hashes, err := s.redis.SMembers(ctx, familyKey).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	owners := make([]*redis.StringCmd, len(hashes))
	if len(hashes) > 0 {
		pipe := s.redis.Pipeline()
		for i, h := range hashes {
			owners[i] = pipe.HGet(ctx, s.key(h), "user_id")
		}
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, h := range hashes {
			pipe.Del(ctx, s.key(h))
			if uid, err := owners[i].Result(); err == nil && uid != "" {
				pipe.SRem(ctx, s.userKey(uid), h)
			}
		}
		pipe.Del(ctx, familyKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteByUser removes every record of a user together with the user's
// family indexes and the user index.
func (s *Store) DeleteByUser(ctx context.Context, userID string) error {
	userKey := s.userKey(userID)
	hashes, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	families := make([]*redis.StringCmd, len(hashes))
	if len(hashes) > 0 {
		pipe := s.redis.Pipeline()
		for i, h := range hashes {
			families[i] = pipe.HGet(ctx, s.key(h), "family_id")
		}
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		seen := make(map[string]struct{}, len(hashes))
		for i, h := range hashes {
			pipe.Del(ctx, s.key(h))
			fid, err := families[i].Result()
			if err != nil || fid == "" {
				continue
			}
			if _, ok := seen[fid]; ok {
				continue
			}
			seen[fid] = struct{}{}
			pipe.Del(ctx, s.familyKey(fid))
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) listIndex(ctx context.Context, indexKey string) ([]*Record, error) {
	hashes, err := s.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(hashes) == 0 {
		return []*Record{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(hashes))
	for i, h := range hashes {
		cmds[i] = pipe.HGetAll(ctx, s.key(h))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	records := make([]*Record, 0, len(hashes))
	stale := make([]interface{}, 0)
	for i, cmd := range cmds {
		m, err := cmd.Result()
		if err != nil || len(m) == 0 {
			stale = append(stale, hashes[i])
			continue
		}
		rec, err := recordFromHash(hashes[i], m)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}

	if len(stale) > 0 {
		// expired members are pruned lazily; failure only delays cleanup
		_ = s.redis.SRem(ctx, indexKey, stale...).Err()
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].IssuedAt.Before(records[j].IssuedAt)
	})
	return records, nil
}

func rotateResultFrom(raw []interface{}, want int) (*RotateResult, error) {
	if len(raw) < want {
		return nil, ErrRecordCorrupt
	}
	return &RotateResult{
		UserID:    stringAt(raw, 1),
		FamilyID:  stringAt(raw, 2),
		SessionID: stringAt(raw, 3),
	}, nil
}

func stringAt(raw []interface{}, i int) string {
	if i >= len(raw) {
		return ""
	}
	v, _ := raw[i].(string)
	return v
}

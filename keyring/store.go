package keyring

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// seedScript writes the initial rotation pointers only if the hash has never
// been initialized.
// KEYS[1] = rotation hash
// ARGV[1] = initial slot
// ARGV[2] = now (unix ms)
// ARGV[3] = next rotation (unix ms)
var seedScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'initialized') == '1' then
	return 0
end
redis.call('HSET', KEYS[1],
	'current', ARGV[1],
	'previous', '',
	'current_timestamp', ARGV[2],
	'previous_timestamp', '0',
	'next_rotation', ARGV[3],
	'initialized', '1',
	'version', '1')
return 1
`)

// rotateScript is a compare-and-set on the version field.
// KEYS[1] = rotation hash
// ARGV[1] = expected version
// ARGV[2] = new current slot
// ARGV[3] = new previous slot
// ARGV[4] = now (unix ms)
// ARGV[5] = next rotation (unix ms)
//
// Returns -1 if the hash is missing, 0 if the version moved, 1 on success.
var rotateScript = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], 'version')
if not v then
	return -1
end
if v ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1],
	'previous', ARGV[3],
	'previous_timestamp', ARGV[4],
	'current', ARGV[2],
	'current_timestamp', ARGV[4],
	'next_rotation', ARGV[5])
redis.call('HINCRBY', KEYS[1], 'version', 1)
return 1
`)

func (m *Manager) seed(ctx context.Context, now time.Time) error {
	return seedScript.Run(ctx, m.redis, []string{m.cfg.Key},
		SlotPrimary,
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(now.Add(m.cfg.Interval).UnixMilli(), 10),
	).Err()
}

func (m *Manager) load(ctx context.Context) (snapshot, error) {
	fields, err := m.redis.HGetAll(ctx, m.cfg.Key).Result()
	if err != nil {
		return snapshot{}, err
	}
	return parseSnapshot(fields)
}

func parseSnapshot(fields map[string]string) (snapshot, error) {
	if len(fields) == 0 {
		return snapshot{}, errMissing
	}
	if fields["initialized"] != "1" {
		return snapshot{}, fmt.Errorf("%w: not initialized", ErrCorruptState)
	}

	var (
		s   snapshot
		err error
	)
	s.Current = fields["current"]
	s.Previous = fields["previous"]
	if !knownSlot(s.Current) || (s.Previous != "" && !knownSlot(s.Previous)) {
		return snapshot{}, fmt.Errorf("%w: unknown slot", ErrCorruptState)
	}
	if s.CurrentAt, err = parseMillis(fields["current_timestamp"]); err != nil {
		return snapshot{}, err
	}
	if s.PreviousAt, err = parseMillis(fields["previous_timestamp"]); err != nil {
		return snapshot{}, err
	}
	if s.NextRotation, err = parseMillis(fields["next_rotation"]); err != nil {
		return snapshot{}, err
	}
	if s.Version, err = strconv.ParseInt(fields["version"], 10, 64); err != nil {
		return snapshot{}, fmt.Errorf("%w: bad version", ErrCorruptState)
	}
	return s, nil
}

func parseMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrCorruptState, v)
	}
	return time.UnixMilli(ms), nil
}

func knownSlot(slot string) bool {
	for _, s := range slotRing {
		if s == slot {
			return true
		}
	}
	return false
}

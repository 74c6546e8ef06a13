package goToken

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	// miniredis expires PEXPIREAT keys against the wall clock
	return &testClock{now: time.Now().Truncate(time.Millisecond)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type mapUserProvider struct {
	mu       sync.RWMutex
	users    map[string]User
	failNext error
}

func newMapUserProvider(users ...User) *mapUserProvider {
	p := &mapUserProvider{users: make(map[string]User, len(users))}
	for _, u := range users {
		p.users[u.ID] = u
	}
	return p
}

func (p *mapUserProvider) FindByID(_ context.Context, userID string) (User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failNext; err != nil {
		p.failNext = nil
		return User{}, err
	}
	u, ok := p.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (p *mapUserProvider) set(u User) {
	p.mu.Lock()
	p.users[u.ID] = u
	p.mu.Unlock()
}

// failOnce makes the next lookup return err.
func (p *mapUserProvider) failOnce(err error) {
	p.mu.Lock()
	p.failNext = err
	p.mu.Unlock()
}

func (p *mapUserProvider) remove(userID string) {
	p.mu.Lock()
	delete(p.users, userID)
	p.mu.Unlock()
}

var (
	alice = User{ID: "u-alice", Role: "member"}
	bob   = User{ID: "u-bob", Role: "admin"}
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{
		Addr:        mr.Addr(),
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

// testEngineConfig keeps keyring reads uncached so rotation tests see every
// store change immediately.
func testEngineConfig() Config {
	cfg := validConfig()
	cfg.Keys.StateCacheTTL = 0
	cfg.Keys.Interval = time.Hour
	cfg.Keys.Overlap = 10 * time.Minute
	return cfg
}

type engineTest struct {
	engine *Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	clock  *testClock
	users  *mapUserProvider
}

func newEngineTest(t *testing.T, cfg Config, opts ...func(*Builder)) (*engineTest, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	clock := newTestClock()
	users := newMapUserProvider(alice, bob)

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(users).
		WithClock(clock.Now)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	et := &engineTest{
		engine: engine,
		mr:     mr,
		rdb:    rdb,
		clock:  clock,
		users:  users,
	}
	return et, engine.Close
}

// advance moves the engine clock and the miniredis TTL clock together.
func (et *engineTest) advance(d time.Duration) {
	et.clock.Advance(d)
	et.mr.FastForward(d)
}

func (et *engineTest) issue(t *testing.T, user User, sessionID string) *TokenPair {
	t.Helper()

	pair, err := et.engine.Issue(context.Background(), user, sessionID, "")
	if err != nil {
		t.Fatalf("issue for %s/%s: %v", user.ID, sessionID, err)
	}
	return pair
}

type captureSink struct {
	events chan AuditEvent
}

func newCaptureSink(buffer int) *captureSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &captureSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *captureSink) Emit(ctx context.Context, event AuditEvent) error {
	select {
	case s.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitFor returns the first event of eventType, discarding others.
func (s *captureSink) waitFor(t *testing.T, eventType string) AuditEvent {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-s.events:
			if ev.EventType == eventType {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for audit event %q", eventType)
			return AuditEvent{}
		}
	}
}

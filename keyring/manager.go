package keyring

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"

	"github.com/MrEthical07/goToken/jwt"
)

const (
	SlotPrimary   = "primary"
	SlotSecondary = "secondary"
	SlotTertiary  = "tertiary"

	DefaultKey = "jwt_key_rotation"

	slotSecretSize = 32
	hkdfSalt       = "gotoken-keyring-v1"
)

var slotRing = [...]string{SlotPrimary, SlotSecondary, SlotTertiary}

var (
	ErrRedisUnavailable = errors.New("keyring redis unavailable")
	ErrCorruptState     = errors.New("keyring rotation state is corrupt")

	errDegraded = errors.New("keyring degraded")
	errMissing  = errors.New("keyring rotation hash missing")
)

// State is the initialization state of a Manager.
type State int32

const (
	StateUninitialized State = iota
	StateInitialized
	StateDegradedStaticKey
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateDegradedStaticKey:
		return "degraded_static_key"
	default:
		return "uninitialized"
	}
}

// Config controls key rotation.
type Config struct {
	Enabled       bool
	StaticSecret  []byte
	SlotSecrets   map[string][]byte
	Interval      time.Duration
	Overlap       time.Duration
	FailOpen      bool
	RetryBackoff  time.Duration
	StateCacheTTL time.Duration
	Key           string
	// TickTimeout bounds each scheduler tick. Zero means DefaultTickTimeout.
	TickTimeout time.Duration
}

const DefaultTickTimeout = 2 * time.Second

// Options carries the collaborators of a Manager. All fields are optional.
type Options struct {
	Logger          *zap.Logger
	Now             func() time.Time
	OnRotate        func(ctx context.Context, from, to string, next time.Time)
	OnRotateFailure func(ctx context.Context, err error)
	// OnDegraded runs once each time the manager falls back to the static key.
	OnDegraded func(err error)
}

// Status is a read-only snapshot of the rotation state.
type Status struct {
	Enabled       bool
	Interval      time.Duration
	Overlap       time.Duration
	CurrentKeyID  string
	NextRotation  time.Time
	ValidKeyCount int
	State         State
}

type snapshot struct {
	Current      string
	Previous     string
	CurrentAt    time.Time
	PreviousAt   time.Time
	NextRotation time.Time
	Version      int64
}

// Manager resolves signing and verification keys. It is safe for concurrent use.
type Manager struct {
	cfg    Config
	redis  redis.UniversalClient
	logger *zap.Logger
	now    func() time.Time
	opts   Options

	static jwt.Key
	slots  map[string]jwt.Key

	mu          sync.Mutex
	state       State
	cached      snapshot
	hasCached   bool
	cachedAt    time.Time
	degradedAt  time.Time
	staticUntil time.Time
}

// New validates cfg and returns a Manager. No Redis I/O happens here.
func New(cfg Config, rdb redis.UniversalClient, opts Options) (*Manager, error) {
	if len(cfg.StaticSecret) < slotSecretSize {
		return nil, errors.New("static secret must be at least 32 bytes")
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.Enabled {
		if rdb == nil {
			return nil, errors.New("key rotation requires a redis client")
		}
		if cfg.Interval <= 0 {
			return nil, errors.New("rotation interval must be > 0")
		}
		if cfg.Overlap < 0 || cfg.Overlap > cfg.Interval {
			return nil, errors.New("rotation overlap must be within [0, interval]")
		}
		if cfg.RetryBackoff <= 0 {
			cfg.RetryBackoff = 5 * time.Second
		}
		if cfg.StateCacheTTL < 0 {
			return nil, errors.New("state cache ttl must be >= 0")
		}
		if cfg.TickTimeout < 0 {
			return nil, errors.New("tick timeout must be >= 0")
		}
		if cfg.TickTimeout == 0 {
			cfg.TickTimeout = DefaultTickTimeout
		}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := &Manager{
		cfg:    cfg,
		redis:  rdb,
		logger: opts.Logger.Named("keyring"),
		now:    opts.Now,
		opts:   opts,
		static: jwt.Key{ID: jwt.StaticKeyID, Secret: cfg.StaticSecret},
		slots:  make(map[string]jwt.Key, len(slotRing)),
	}

	for _, slot := range slotRing {
		secret, ok := cfg.SlotSecrets[slot]
		if !ok {
			derived, err := deriveSlotSecret(cfg.StaticSecret, slot)
			if err != nil {
				return nil, err
			}
			secret = derived
		}
		if len(secret) < slotSecretSize {
			return nil, fmt.Errorf("slot %q secret must be at least 32 bytes", slot)
		}
		m.slots[slot] = jwt.Key{ID: slot, Secret: secret}
	}

	return m, nil
}

// State reports the current initialization state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentSigningKey returns the key new tokens are signed with.
func (m *Manager) CurrentSigningKey(ctx context.Context) (jwt.Key, error) {
	if !m.cfg.Enabled {
		return m.static, nil
	}
	s, err := m.resolve(ctx, false)
	if errors.Is(err, errDegraded) {
		return m.static, nil
	}
	if err != nil {
		return jwt.Key{}, err
	}
	return m.slots[s.Current], nil
}

// ValidVerificationKeys returns the current key first, followed by the previous
// key while the overlap window after the last rotation is still open.
func (m *Manager) ValidVerificationKeys(ctx context.Context) ([]jwt.Key, error) {
	if !m.cfg.Enabled {
		return []jwt.Key{m.static}, nil
	}
	now := m.now()
	s, err := m.resolve(ctx, false)
	if errors.Is(err, errDegraded) {
		keys := []jwt.Key{m.static}
		if last, ok := m.lastKnown(); ok {
			keys = append(keys, m.keysFor(last, now)...)
		}
		return keys, nil
	}
	if err != nil {
		return nil, err
	}

	keys := m.keysFor(s, now)
	m.mu.Lock()
	acceptStatic := now.Before(m.staticUntil)
	m.mu.Unlock()
	if acceptStatic {
		keys = append(keys, m.static)
	}
	return keys, nil
}

// Rotate advances current to previous and current to the next ring slot. Unless
// forced, nothing happens before next_rotation. Losing the compare-and-set to
// another instance is not an error and reports false.
//
// Failures are logged and reported to OnRotateFailure; the previously current
// key stays current.
func (m *Manager) Rotate(ctx context.Context, forced bool) (bool, error) {
	if !m.cfg.Enabled {
		return false, nil
	}

	s, err := m.resolve(ctx, true)
	if err != nil {
		if errors.Is(err, errDegraded) {
			err = fmt.Errorf("%w: store unreachable", ErrRedisUnavailable)
		}
		m.rotateFailed(ctx, err)
		return false, err
	}

	now := m.now()
	if !forced && now.Before(s.NextRotation) {
		return false, nil
	}

	next := nextSlot(s.Current)
	nextRotation := now.Add(m.cfg.Interval)
	res, err := rotateScript.Run(ctx, m.redis, []string{m.cfg.Key},
		strconv.FormatInt(s.Version, 10),
		next,
		s.Current,
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(nextRotation.UnixMilli(), 10),
	).Int()
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		m.rotateFailed(ctx, err)
		return false, err
	}

	m.mu.Lock()
	m.cachedAt = time.Time{}
	m.mu.Unlock()

	switch {
	case res < 0:
		err = fmt.Errorf("%w: rotation hash missing", ErrCorruptState)
		m.rotateFailed(ctx, err)
		return false, err
	case res == 0:
		m.logger.Debug("rotation lost to another instance", zap.String("current", s.Current))
		return false, nil
	}

	m.logger.Info("signing key rotated",
		zap.String("from", s.Current),
		zap.String("to", next),
		zap.Time("next_rotation", nextRotation),
	)
	if m.opts.OnRotate != nil {
		m.opts.OnRotate(ctx, s.Current, next, nextRotation)
	}
	return true, nil
}

// RotateIfDue is Rotate(ctx, false) with the error already reported through
// the failure hook.
func (m *Manager) RotateIfDue(ctx context.Context) bool {
	rotated, _ := m.Rotate(ctx, false)
	return rotated
}

// RunScheduler checks for due rotations every tick until ctx is done. Each
// tick gets its own TickTimeout deadline.
func (m *Manager) RunScheduler(ctx context.Context, every time.Duration) {
	if !m.cfg.Enabled {
		return
	}
	if every <= 0 {
		every = time.Minute
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.TickTimeout)
	defer cancel()
	m.RotateIfDue(ctx)
}

// Status reports the rotation state. It never fails; an unreachable store
// shows up as an empty CurrentKeyID and zero valid keys unless FailOpen.
func (m *Manager) Status(ctx context.Context) Status {
	st := Status{
		Enabled:  m.cfg.Enabled,
		Interval: m.cfg.Interval,
		Overlap:  m.cfg.Overlap,
	}
	if !m.cfg.Enabled {
		st.CurrentKeyID = m.static.ID
		st.ValidKeyCount = 1
		st.State = StateInitialized
		return st
	}

	if key, err := m.CurrentSigningKey(ctx); err == nil {
		st.CurrentKeyID = key.ID
	}
	if keys, err := m.ValidVerificationKeys(ctx); err == nil {
		st.ValidKeyCount = len(keys)
	}

	m.mu.Lock()
	st.State = m.state
	if m.hasCached {
		st.NextRotation = m.cached.NextRotation
	}
	m.mu.Unlock()
	return st
}

// resolve returns the rotation state, seeding it on first use. It never holds
// mu across Redis calls.
func (m *Manager) resolve(ctx context.Context, fresh bool) (snapshot, error) {
	now := m.now()

	m.mu.Lock()
	switch m.state {
	case StateInitialized:
		if !fresh && m.hasCached && m.cfg.StateCacheTTL > 0 && now.Sub(m.cachedAt) < m.cfg.StateCacheTTL {
			s := m.cached
			m.mu.Unlock()
			return s, nil
		}
	case StateDegradedStaticKey:
		if !fresh && now.Sub(m.degradedAt) < m.cfg.RetryBackoff {
			m.mu.Unlock()
			return snapshot{}, errDegraded
		}
	}
	m.mu.Unlock()

	s, err := m.load(ctx)
	if errors.Is(err, errMissing) {
		if err := m.seed(ctx, now); err != nil {
			return snapshot{}, m.storeFailed(now, err)
		}
		s, err = m.load(ctx)
	}
	if err != nil {
		if errors.Is(err, ErrCorruptState) {
			return snapshot{}, err
		}
		return snapshot{}, m.storeFailed(now, err)
	}

	m.mu.Lock()
	recovered := m.state == StateDegradedStaticKey
	m.state = StateInitialized
	m.cached = s
	m.hasCached = true
	m.cachedAt = now
	if recovered {
		// tokens signed while degraded stay verifiable for one overlap window
		m.staticUntil = now.Add(m.cfg.Overlap)
	}
	m.mu.Unlock()

	if recovered {
		m.logger.Info("rotation store reachable again, leaving static key mode")
	}
	return s, nil
}

func (m *Manager) storeFailed(now time.Time, err error) error {
	wrapped := fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	if !m.cfg.FailOpen {
		return wrapped
	}

	m.mu.Lock()
	entering := m.state != StateDegradedStaticKey
	m.state = StateDegradedStaticKey
	m.degradedAt = now
	m.mu.Unlock()

	if entering {
		m.logger.Warn("rotation store unreachable, signing with static key", zap.Error(err))
		if m.opts.OnDegraded != nil {
			m.opts.OnDegraded(err)
		}
	}
	return errDegraded
}

func (m *Manager) rotateFailed(ctx context.Context, err error) {
	m.logger.Error("signing key rotation failed", zap.Error(err))
	if m.opts.OnRotateFailure != nil {
		m.opts.OnRotateFailure(ctx, err)
	}
}

func (m *Manager) lastKnown() (snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cached, m.hasCached
}

func (m *Manager) keysFor(s snapshot, now time.Time) []jwt.Key {
	keys := make([]jwt.Key, 0, 2)
	if key, ok := m.slots[s.Current]; ok {
		keys = append(keys, key)
	}
	if s.Previous != "" && s.Previous != s.Current && now.Before(s.PreviousAt.Add(m.cfg.Overlap)) {
		if key, ok := m.slots[s.Previous]; ok {
			keys = append(keys, key)
		}
	}
	return keys
}

func nextSlot(current string) string {
	for i, slot := range slotRing {
		if slot == current {
			return slotRing[(i+1)%len(slotRing)]
		}
	}
	return SlotPrimary
}

func deriveSlotSecret(static []byte, slot string) ([]byte, error) {
	r := hkdf.New(sha256.New, static, []byte(hkdfSalt), []byte(slot))
	out := make([]byte, slotSecretSize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

package goToken

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goToken/internal"
)

func TestRotateRefreshIssuesNewPair(t *testing.T) {
	et, done := newEngineTest(t, testEngineConfig())
	defer done()

	ctx := WithUserAgent(context.Background(), "test-agent/1.0")
	first := et.issue(t, alice, "s1")
	et.clock.Advance(time.Second)

	next, err := et.engine.RotateRefresh(ctx, first.RefreshToken, "198.51.100.7")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if next.RefreshToken == first.RefreshToken || next.AccessToken == first.AccessToken {
		t.Fatal("rotation must hand out a fresh pair")
	}
	if next.ExpiresIn != int64(et.engine.config.JWT.AccessTTL/time.Second) {
		t.Fatalf("unexpected expires_in %d", next.ExpiresIn)
	}

	claims, err := et.engine.Validate(ctx, next.AccessToken, "")
	if err != nil {
		t.Fatalf("rotated access token must validate: %v", err)
	}
	if claims.UserID != alice.ID || claims.Role != alice.Role || claims.SessionID != "s1" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	infos, err := et.engine.ListUserRefreshTokens(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var successor *RefreshTokenInfo
	for i := range infos {
		if infos[i].TokenHash == internal.HashRefreshToken(next.RefreshToken) {
			successor = &infos[i]
		}
	}
	if successor == nil {
		t.Fatal("successor record missing from user index")
	}
	if successor.ClientIP != "198.51.100.7" || successor.UserAgent != "test-agent/1.0" {
		t.Fatalf("successor must record the rotating client, got %+v", successor)
	}
}

func TestRotateRefreshUsesCurrentRole(t *testing.T) {
	et, done := newEngineTest(t, testEngineConfig())
	defer done()

	first := et.issue(t, alice, "s1")
	et.users.set(User{ID: alice.ID, Role: "owner"})

	next, err := et.engine.RotateRefresh(context.Background(), first.RefreshToken, "")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	claims, err := et.engine.Validate(context.Background(), next.AccessToken, "")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Role != "owner" {
		t.Fatalf("expected role from the user provider, got %q", claims.Role)
	}
}

func TestRotateRefreshTwiceIsReuse(t *testing.T) {
	et, done := newEngineTest(t, testEngineConfig())
	defer done()

	ctx := context.Background()
	first := et.issue(t, alice, "s1")

	if _, err := et.engine.RotateRefresh(ctx, first.RefreshToken, ""); err != nil {
		t.Fatalf("first rotation: %v", err)
	}
	if _, err := et.engine.RotateRefresh(ctx, first.RefreshToken, ""); !errors.Is(err, ErrTokenReuseDetected) {
		t.Fatalf("expected ErrTokenReuseDetected, got %v", err)
	}

	n, err := et.engine.CountActiveRefreshTokens(ctx, alice.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("reuse must revoke the rest of the family, %d still active", n)
	}
}

func TestStolenRefreshTokenLocksOutFamily(t *testing.T) {
	et, done := newEngineTest(t, testEngineConfig())
	defer done()

	ctx := context.Background()
	r1 := et.issue(t, alice, "s1").RefreshToken
	other := et.issue(t, alice, "s2").RefreshToken

	// the legitimate client rotates R1 into R2
	r2Pair, err := et.engine.RotateRefresh(ctx, r1, "")
	if err != nil {
		t.Fatalf("legitimate rotation: %v", err)
	}

	// the attacker replays R1
	if _, err := et.engine.RotateRefresh(ctx, r1, "203.0.113.66"); !errors.Is(err, ErrTokenReuseDetected) {
		t.Fatalf("expected ErrTokenReuseDetected on replay, got %v", err)
	}

	// R2 is now dead too
	if _, err := et.engine.RotateRefresh(ctx, r2Pair.RefreshToken, ""); !errors.Is(err, ErrTokenReuseDetected) {
		t.Fatalf("expected R2 to be locked out, got %v", err)
	}
	if et.mr.Exists("session:s1") {
		t.Fatal("session of the locked family must be deleted")
	}

	infos, err := et.engine.ListUserRefreshTokens(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, info := range infos {
		if info.SessionID == "s1" && !info.Revoked {
			t.Fatalf("family member %s survived lockout", info.TokenHash)
		}
	}

	// other families are untouched
	if _, err := et.engine.RotateRefresh(ctx, other, ""); err != nil {
		t.Fatalf("unrelated family must keep working: %v", err)
	}
}

func TestRotateRefreshRejectsInvalidTokens(t *testing.T) {
	et, done := newEngineTest(t, testEngineConfig())
	defer done()

	ctx := context.Background()
	unknown, err := internal.NewRefreshToken()
	if err != nil {
		t.Fatalf("new refresh token: %v", err)
	}

	for name, token := range map[string]string{
		"empty":     "",
		"malformed": "not-a-refresh-token",
		"unknown":   unknown,
	} {
		if _, err := et.engine.RotateRefresh(ctx, token, ""); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestRotateRefreshExpired(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Refresh.TTL = time.Hour
	et, done := newEngineTest(t, cfg)
	defer done()

	pair := et.issue(t, alice, "s1")
	et.clock.Advance(time.Hour + time.Second)

	if _, err := et.engine.RotateRefresh(context.Background(), pair.RefreshToken, ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestRotateRefreshNeverOutlivesFamily(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Refresh.TTL = 2 * time.Hour
	cfg.Refresh.FamilyLifetime = 3 * time.Hour
	et, done := newEngineTest(t, cfg)
	defer done()

	ctx := context.Background()
	token := et.issue(t, alice, "s1").RefreshToken
	for i := 0; i < 2; i++ {
		et.clock.Advance(80 * time.Minute)
		pair, err := et.engine.RotateRefresh(ctx, token, "")
		if err != nil {
			t.Fatalf("rotation %d: %v", i, err)
		}
		token = pair.RefreshToken
	}

	// the last successor is capped at the family expiry, 3h after issue
	et.clock.Advance(21 * time.Minute)
	if _, err := et.engine.RotateRefresh(ctx, token, ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected family expiry to cap the successor, got %v", err)
	}
}

func TestRotateRefreshDeletedUserLocksFamily(t *testing.T) {
	et, done := newEngineTest(t, testEngineConfig())
	defer done()

	ctx := context.Background()
	pair := et.issue(t, alice, "s1")
	et.users.remove(alice.ID)

	if _, err := et.engine.RotateRefresh(ctx, pair.RefreshToken, ""); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if et.mr.Exists("session:s1") {
		t.Fatal("session must be deleted when its user is gone")
	}
	n, err := et.engine.CountActiveRefreshTokens(ctx, alice.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("family must be revoked, %d still active", n)
	}
}

func TestRotateRefreshUserLookupErrorKeepsToken(t *testing.T) {
	et, done := newEngineTest(t, testEngineConfig())
	defer done()

	ctx := context.Background()
	pair := et.issue(t, alice, "s1")

	lookupErr := errors.New("db: connection reset")
	et.users.failOnce(lookupErr)
	_, err := et.engine.RotateRefresh(ctx, pair.RefreshToken, "")
	if err == nil || errors.Is(err, ErrTokenReuseDetected) || errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected a lookup failure, got %v", err)
	}
	if !errors.Is(err, lookupErr) {
		t.Fatalf("lookup error must be wrapped, got %v", err)
	}

	next, err := et.engine.RotateRefresh(ctx, pair.RefreshToken, "")
	if err != nil {
		t.Fatalf("retry after lookup failure: %v", err)
	}
	if _, err := et.engine.Validate(ctx, next.AccessToken, ""); err != nil {
		t.Fatalf("rotated access token must validate: %v", err)
	}
	if !et.mr.Exists("session:s1") {
		t.Fatal("session must survive a transient lookup failure")
	}
	n, err := et.engine.CountActiveRefreshTokens(ctx, alice.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly the successor active, got %d", n)
	}
}

func TestRotateRefreshStoreDownKeepsToken(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Keys.FailOpen = false
	et, done := newEngineTest(t, cfg)
	defer done()

	ctx := context.Background()
	pair := et.issue(t, alice, "s1")

	et.mr.Close()
	if _, err := et.engine.RotateRefresh(ctx, pair.RefreshToken, ""); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if err := et.mr.Restart(); err != nil {
		t.Fatalf("restart: %v", err)
	}

	if _, err := et.engine.RotateRefresh(ctx, pair.RefreshToken, ""); err != nil {
		t.Fatalf("token must survive a store outage: %v", err)
	}
}

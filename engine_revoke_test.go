package goToken

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLogoutEndsOneSession(t *testing.T) {
	et, done := newEngineTest(t, testEngineConfig())
	defer done()

	ctx := context.Background()
	s1 := et.issue(t, alice, "s1")
	next, err := et.engine.RotateRefresh(ctx, s1.RefreshToken, "")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	s2 := et.issue(t, alice, "s2")

	if err := et.engine.Logout(ctx, "s1"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if et.mr.Exists("session:s1") || et.mr.Exists("session_token:s1") {
		t.Fatal("logout must delete the session and its cached pair")
	}
	if _, err := et.engine.RotateRefresh(ctx, next.RefreshToken, ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh tokens of the session must be gone, got %v", err)
	}

	// access tokens live until they expire
	if _, err := et.engine.Validate(ctx, next.AccessToken, ""); err != nil {
		t.Fatalf("access token after logout: %v", err)
	}
	if _, err := et.engine.RotateRefresh(ctx, s2.RefreshToken, ""); err != nil {
		t.Fatalf("other sessions must keep working: %v", err)
	}

	if err := et.engine.Logout(ctx, "s1"); err != nil {
		t.Fatalf("repeated logout must succeed: %v", err)
	}
	if err := et.engine.Logout(ctx, "never-existed"); err != nil {
		t.Fatalf("logout of an unknown session must succeed: %v", err)
	}
	if err := et.engine.Logout(ctx, ""); !errors.Is(err, ErrInvalidSessionID) {
		t.Fatalf("expected ErrInvalidSessionID, got %v", err)
	}
}

func TestLogoutAllEndsEverySession(t *testing.T) {
	et, done := newEngineTest(t, testEngineConfig())
	defer done()

	ctx := context.Background()
	a1 := et.issue(t, alice, "s1")
	a2 := et.issue(t, alice, "s2")
	b1 := et.issue(t, bob, "s3")

	if err := et.engine.LogoutAll(ctx, alice.ID); err != nil {
		t.Fatalf("logout all: %v", err)
	}

	for _, pair := range []*TokenPair{a1, a2} {
		if _, err := et.engine.Validate(ctx, pair.AccessToken, ""); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("access tokens must be invalidated, got %v", err)
		}
		if _, err := et.engine.RotateRefresh(ctx, pair.RefreshToken, ""); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("refresh tokens must be deleted, got %v", err)
		}
	}
	if n, err := et.engine.CountActiveRefreshTokens(ctx, alice.ID); err != nil || n != 0 {
		t.Fatalf("count after logout all = %d, %v", n, err)
	}
	if et.mr.Exists("session:s1") || et.mr.Exists("session:s2") {
		t.Fatal("sessions must be deleted")
	}

	if _, err := et.engine.Validate(ctx, b1.AccessToken, ""); err != nil {
		t.Fatalf("other users are unaffected: %v", err)
	}

	et.clock.Advance(time.Millisecond)
	fresh := et.issue(t, alice, "s1")
	if _, err := et.engine.Validate(ctx, fresh.AccessToken, ""); err != nil {
		t.Fatalf("a new login after logout all must work: %v", err)
	}
}

func TestInvalidateSessionKeepsRefreshFamily(t *testing.T) {
	et, done := newEngineTest(t, testEngineConfig())
	defer done()

	ctx := context.Background()
	pair, err := et.engine.IssueOrReuse(ctx, alice, "s1", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if err := et.engine.InvalidateSession(ctx, "s1"); err != nil {
		t.Fatalf("invalidate session: %v", err)
	}
	if et.mr.Exists("session:s1") || et.mr.Exists("session_token:s1") {
		t.Fatal("session and cached pair must be gone")
	}

	again, err := et.engine.IssueOrReuse(ctx, alice, "s1", "")
	if err != nil {
		t.Fatalf("issue after invalidation: %v", err)
	}
	if again.RefreshToken == pair.RefreshToken {
		t.Fatal("the cached pair must not survive invalidation")
	}
	if _, err := et.engine.RotateRefresh(ctx, pair.RefreshToken, ""); err != nil {
		t.Fatalf("refresh tokens are left alone: %v", err)
	}

	if err := et.engine.InvalidateSession(ctx, "unknown"); err != nil {
		t.Fatalf("unknown session: %v", err)
	}
	if err := et.engine.InvalidateSession(ctx, ""); !errors.Is(err, ErrInvalidSessionID) {
		t.Fatalf("expected ErrInvalidSessionID, got %v", err)
	}
}

func TestIssueOrReuseSkipsRevokedCachedPair(t *testing.T) {
	revokers := map[string]func(*engineTest, *TokenPair) error{
		"user invalidation": func(et *engineTest, _ *TokenPair) error {
			return et.engine.InvalidateAllUserTokens(context.Background(), alice.ID)
		},
		"blacklist": func(et *engineTest, p *TokenPair) error {
			return et.engine.Blacklist(context.Background(), p.AccessToken)
		},
	}
	for name, revoke := range revokers {
		t.Run(name, func(t *testing.T) {
			et, done := newEngineTest(t, testEngineConfig())
			defer done()

			ctx := context.Background()
			first, err := et.engine.IssueOrReuse(ctx, alice, "s1", "")
			if err != nil {
				t.Fatalf("issue: %v", err)
			}
			if err := revoke(et, first); err != nil {
				t.Fatalf("revoke: %v", err)
			}
			et.advance(time.Millisecond)

			again, err := et.engine.IssueOrReuse(ctx, alice, "s1", "")
			if err != nil {
				t.Fatalf("issue after revocation: %v", err)
			}
			if again.AccessToken == first.AccessToken {
				t.Fatal("a revoked cached pair must not be handed out")
			}
			if _, err := et.engine.Validate(ctx, again.AccessToken, ""); err != nil {
				t.Fatalf("replacement pair must validate: %v", err)
			}

			cached, err := et.engine.IssueOrReuse(ctx, alice, "s1", "")
			if err != nil {
				t.Fatalf("reuse: %v", err)
			}
			if cached.AccessToken != again.AccessToken {
				t.Fatal("the replacement pair must be cached for later callers")
			}
		})
	}
}

func TestRevocationStoreDown(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Keys.FailOpen = false
	et, done := newEngineTest(t, cfg)
	defer done()

	ctx := context.Background()
	et.mr.Close()

	checks := map[string]error{
		"invalidate all":  et.engine.InvalidateAllTokens(ctx),
		"invalidate user": et.engine.InvalidateAllUserTokens(ctx, alice.ID),
		"session":         et.engine.InvalidateSession(ctx, "s1"),
		"logout":          et.engine.Logout(ctx, "s1"),
		"logout all":      et.engine.LogoutAll(ctx, alice.ID),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrStoreUnavailable) {
			t.Fatalf("%s: expected ErrStoreUnavailable, got %v", name, err)
		}
	}
}

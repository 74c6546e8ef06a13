package goToken

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIssueReturnsUsablePair(t *testing.T) {
	et, done := newEngineTest(t, testEngineConfig())
	defer done()

	pair := et.issue(t, alice, "s1")
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if pair.ExpiresIn != int64(et.engine.config.JWT.AccessTTL.Seconds()) {
		t.Fatalf("unexpected expires_in %d", pair.ExpiresIn)
	}

	claims, err := et.engine.Validate(context.Background(), pair.AccessToken, "")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != alice.ID || claims.Role != alice.Role || claims.SessionID != "s1" || claims.TokenID == "" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt); got <= et.engine.config.JWT.AccessTTL-time.Second || got > et.engine.config.JWT.AccessTTL {
		t.Fatalf("unexpected token lifetime %v", got)
	}
}

func TestIssueSameSessionContinuesFamily(t *testing.T) {
	et, done := newEngineTest(t, testEngineConfig())
	defer done()

	ctx := context.Background()
	first := et.issue(t, alice, "s1")
	second := et.issue(t, alice, "s1")
	if first.RefreshToken == second.RefreshToken {
		t.Fatal("Issue must always mint a new pair")
	}

	infos, err := et.engine.ListUserRefreshTokens(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 refresh tokens, got %d", len(infos))
	}
	if infos[0].FamilyID == "" || infos[0].FamilyID != infos[1].FamilyID {
		t.Fatalf("same session must share one family, got %q and %q", infos[0].FamilyID, infos[1].FamilyID)
	}

	et.issue(t, alice, "s2")
	infos, err = et.engine.ListUserRefreshTokens(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	families := map[string]bool{}
	for _, info := range infos {
		families[info.FamilyID] = true
	}
	if len(families) != 2 {
		t.Fatalf("a new session must start a new family, got %d families", len(families))
	}
}

func TestIssueRejectsForeignSession(t *testing.T) {
	et, done := newEngineTest(t, testEngineConfig())
	defer done()

	ctx := context.Background()
	et.issue(t, bob, "shared")

	if _, err := et.engine.Issue(ctx, alice, "shared", ""); !errors.Is(err, ErrSessionConflict) {
		t.Fatalf("Issue: expected ErrSessionConflict, got %v", err)
	}
	if _, err := et.engine.IssueOrReuse(ctx, alice, "shared", ""); !errors.Is(err, ErrSessionConflict) {
		t.Fatalf("IssueOrReuse: expected ErrSessionConflict, got %v", err)
	}
	if n, _ := et.engine.CountActiveRefreshTokens(ctx, alice.ID); n != 0 {
		t.Fatalf("conflicting issue must not leave refresh tokens, got %d", n)
	}
}

func TestIssueSessionLimit(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Refresh.MaxActivePerUser = 2
	et, done := newEngineTest(t, cfg)
	defer done()

	ctx := context.Background()
	et.issue(t, alice, "s1")
	et.issue(t, alice, "s2")

	if _, err := et.engine.Issue(ctx, alice, "s3", ""); !errors.Is(err, ErrSessionLimitExceeded) {
		t.Fatalf("expected ErrSessionLimitExceeded, got %v", err)
	}

	// other users are counted separately
	et.issue(t, bob, "s4")

	if err := et.engine.Logout(ctx, "s2"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	et.issue(t, alice, "s3")

	// the cap applies to new families only
	et.issue(t, alice, "s1")
}

func TestIssueRequiresIDs(t *testing.T) {
	et, done := newEngineTest(t, testEngineConfig())
	defer done()

	ctx := context.Background()
	if _, err := et.engine.Issue(ctx, User{}, "s1", ""); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := et.engine.Issue(ctx, alice, "", ""); !errors.Is(err, ErrInvalidSessionID) {
		t.Fatalf("expected ErrInvalidSessionID, got %v", err)
	}
	if _, err := et.engine.IssueOrReuse(ctx, alice, "", ""); !errors.Is(err, ErrInvalidSessionID) {
		t.Fatalf("expected ErrInvalidSessionID, got %v", err)
	}
}

func TestIssueOnUnbuiltEngine(t *testing.T) {
	var e *Engine
	if _, err := e.Issue(context.Background(), alice, "s1", ""); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := (&Engine{}).Validate(context.Background(), "x", ""); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}

func TestIssueStoreDown(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Keys.FailOpen = false
	et, done := newEngineTest(t, cfg)
	defer done()

	et.mr.Close()
	if _, err := et.engine.Issue(context.Background(), alice, "s1", ""); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestNewSessionIDIssuesDistinctIDs(t *testing.T) {
	et, done := newEngineTest(t, testEngineConfig())
	defer done()

	a, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID: %v", err)
	}
	b, _ := NewSessionID()
	if a == b || len(a) != 22 {
		t.Fatalf("unexpected session ids %q %q", a, b)
	}

	et.issue(t, alice, a)
	if !et.mr.Exists("session:" + a) {
		t.Fatal("generated id must be usable as a session id")
	}
}

package goToken

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goToken/internal"
)

func TestListUserRefreshTokens(t *testing.T) {
	et, done := newEngineTest(t, testEngineConfig())
	defer done()

	ctx := context.Background()
	first := et.issue(t, alice, "s1")
	et.clock.Advance(time.Second)
	second := et.issue(t, alice, "s2")
	et.issue(t, bob, "s3")

	infos, err := et.engine.ListUserRefreshTokens(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(infos))
	}
	if infos[0].TokenHash != internal.HashRefreshToken(first.RefreshToken) ||
		infos[1].TokenHash != internal.HashRefreshToken(second.RefreshToken) {
		t.Fatal("tokens must be listed oldest first by hash")
	}
	for _, info := range infos {
		if info.TokenHash == first.RefreshToken || info.TokenHash == second.RefreshToken {
			t.Fatal("token values must never be listed")
		}
		if info.Revoked || info.Rotated {
			t.Fatalf("fresh token listed as used: %+v", info)
		}
		if !info.ExpiresAt.After(info.IssuedAt) {
			t.Fatalf("bad lifetime in %+v", info)
		}
	}

	if _, err := et.engine.RotateRefresh(ctx, first.RefreshToken, ""); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	infos, err = et.engine.ListUserRefreshTokens(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	rotated := 0
	for _, info := range infos {
		if info.Rotated {
			rotated++
		}
	}
	if rotated != 1 {
		t.Fatalf("expected one rotated record, got %d", rotated)
	}

	if _, err := et.engine.ListUserRefreshTokens(ctx, ""); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	empty, err := et.engine.ListUserRefreshTokens(ctx, "nobody")
	if err != nil || len(empty) != 0 {
		t.Fatalf("unknown user = %v, %v", empty, err)
	}
}

func TestCountActiveRefreshTokens(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Refresh.TTL = time.Hour
	et, done := newEngineTest(t, cfg)
	defer done()

	ctx := context.Background()
	first := et.issue(t, alice, "s1")
	et.issue(t, alice, "s2")

	if n, err := et.engine.CountActiveRefreshTokens(ctx, alice.ID); err != nil || n != 2 {
		t.Fatalf("count = %d, %v", n, err)
	}

	// a rotated token no longer counts, its successor does
	if _, err := et.engine.RotateRefresh(ctx, first.RefreshToken, ""); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if n, _ := et.engine.CountActiveRefreshTokens(ctx, alice.ID); n != 2 {
		t.Fatalf("count after rotation = %d", n)
	}

	et.clock.Advance(time.Hour + time.Second)
	if n, _ := et.engine.CountActiveRefreshTokens(ctx, alice.ID); n != 0 {
		t.Fatalf("expired tokens must not count, got %d", n)
	}

	if _, err := et.engine.CountActiveRefreshTokens(ctx, ""); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	et, done := newEngineTest(t, testEngineConfig())
	defer done()

	ctx := context.Background()
	et.issue(t, alice, "s1")

	h := et.engine.Health(ctx)
	if !h.RedisAvailable || h.KeyringState != "initialized" {
		t.Fatalf("unexpected health %+v", h)
	}

	et.mr.Close()
	h = et.engine.Health(ctx)
	if h.RedisAvailable {
		t.Fatal("health must report the store as down")
	}

	if got := (*Engine)(nil).Health(ctx); got.KeyringState != "uninitialized" {
		t.Fatalf("nil engine health %+v", got)
	}
}

func TestSecurityReport(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Refresh.MaxActivePerUser = 5
	et, done := newEngineTest(t, cfg)
	defer done()

	r := et.engine.SecurityReport()
	if r.SigningAlgorithm != "HS256" || !r.RotationEnabled || !r.ReuseDetectionEnabled {
		t.Fatalf("unexpected report %+v", r)
	}
	if r.AccessTTL != cfg.JWT.AccessTTL || r.VerificationOverlap != cfg.Keys.Overlap || r.SessionLimit != 5 {
		t.Fatalf("report does not mirror config: %+v", r)
	}
	if !containsCode(r.Warnings, "rotation_fail_open") {
		t.Fatalf("expected lint warnings in the report, got %v", r.Warnings)
	}
}

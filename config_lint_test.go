package goToken

import (
	"testing"
	"time"
)

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

func TestLint_DefaultConfig(t *testing.T) {
	// defaults keep the keyring fail-open and audit off, and say so
	codes := validConfig().Lint().Codes()

	for _, code := range []string{"rotation_fail_open", "audit_disabled", "session_limit_disabled"} {
		if !containsCode(codes, code) {
			t.Errorf("expected default warning %q, got %v", code, codes)
		}
	}
	for _, code := range []string{"leeway_large", "access_ttl_long", "rotation_disabled", "overlap_shorter_than_access"} {
		if containsCode(codes, code) {
			t.Errorf("default config should not produce warning %q", code)
		}
	}
}

func TestLint_HardenedConfigNoWarnings(t *testing.T) {
	cfg := validConfig()
	cfg.Keys.FailOpen = false
	cfg.Audit.Enabled = true
	cfg.Refresh.MaxActivePerUser = 10

	if ws := cfg.Lint(); len(ws) != 0 {
		t.Fatalf("expected no warnings, got %v", ws.Codes())
	}
}

func TestLint_LargeLeeway(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.Leeway = 90 * time.Second
	if !containsCode(cfg.Lint().Codes(), "leeway_large") {
		t.Error("expected leeway_large warning")
	}
}

func TestLint_LongAccessTTL(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.AccessTTL = time.Hour
	if !containsCode(cfg.Lint().Codes(), "access_ttl_long") {
		t.Error("expected access_ttl_long warning")
	}
}

func TestLint_LongRefreshTTL(t *testing.T) {
	cfg := validConfig()
	cfg.Refresh.TTL = 30 * 24 * time.Hour
	if !containsCode(cfg.Lint().Codes(), "refresh_ttl_long") {
		t.Error("expected refresh_ttl_long warning")
	}
}

func TestLint_RotationDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.Keys.RotationEnabled = false
	codes := cfg.Lint().Codes()
	if !containsCode(codes, "rotation_disabled") {
		t.Error("expected rotation_disabled warning")
	}
	if containsCode(codes, "rotation_fail_open") {
		t.Error("fail-open is irrelevant without rotation")
	}
}

func TestLint_ShortOverlap(t *testing.T) {
	cfg := validConfig()
	cfg.Keys.Overlap = 5 * time.Minute
	if !containsCode(cfg.Lint().Codes(), "overlap_shorter_than_access") {
		t.Error("expected overlap_shorter_than_access warning")
	}
}

package jwt

import (
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var (
	testKeyA = Key{ID: "primary", Secret: []byte("0123456789abcdef0123456789abcdef")}
	testKeyB = Key{ID: "secondary", Secret: []byte("fedcba9876543210fedcba9876543210")}
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func newTestManager(t *testing.T, clock *fixedClock) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessTTL: 5 * time.Minute,
		Issuer:    "gotoken",
		Audience:  "api",
		Now:       clock.Now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestCreateAccessClaims(t *testing.T) {
	clock := &fixedClock{now: time.Unix(1_700_000_000, 250_000_000)}
	m := newTestManager(t, clock)

	token, claims, err := m.CreateAccess(Subject{UserID: "u1", Role: "admin", SessionID: "s1"}, testKeyA)
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}
	if claims.IssuedAtMs != clock.now.UnixMilli() {
		t.Fatalf("expected iat_ms %d, got %d", clock.now.UnixMilli(), claims.IssuedAtMs)
	}

	parsed, err := m.ParseAccess(token, []Key{testKeyA})
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if parsed.Subject != "u1" || parsed.Role != "admin" || parsed.SID != "s1" {
		t.Fatalf("unexpected claims: %+v", parsed)
	}
	if parsed.ID != claims.ID {
		t.Fatalf("jti mismatch: %s vs %s", parsed.ID, claims.ID)
	}
}

func TestParseAccessSelectsKeyByKid(t *testing.T) {
	clock := &fixedClock{now: time.Now()}
	m := newTestManager(t, clock)

	token, _, err := m.CreateAccess(Subject{UserID: "u1", SessionID: "s1"}, testKeyB)
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	if _, err := m.ParseAccess(token, []Key{testKeyA, testKeyB}); err != nil {
		t.Fatalf("expected token signed with secondary key to verify: %v", err)
	}
	if _, err := m.ParseAccess(token, []Key{testKeyA}); !errors.Is(err, ErrUnknownKeyID) {
		t.Fatalf("expected ErrUnknownKeyID once key is gone, got %v", err)
	}
}

func TestParseAccessRejectsForgedKid(t *testing.T) {
	clock := &fixedClock{now: time.Now()}
	m := newTestManager(t, clock)

	forged := Key{ID: testKeyA.ID, Secret: []byte("attacker-attacker-attacker-attacker")}
	token, _, err := m.CreateAccess(Subject{UserID: "u1", SessionID: "s1"}, forged)
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.ParseAccess(token, []Key{testKeyA}); !errors.Is(err, gjwt.ErrTokenSignatureInvalid) {
		t.Fatalf("expected signature failure, got %v", err)
	}
}

func TestParseAccessWithoutKidTriesEveryKey(t *testing.T) {
	clock := &fixedClock{now: time.Now()}
	m := newTestManager(t, clock)

	claims := AccessClaims{SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    "gotoken",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(clock.now.Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(clock.now),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testKeyB.Secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	parsed, err := m.ParseAccess(token, []Key{testKeyA, testKeyB})
	if err != nil {
		t.Fatalf("expected fallback verification to succeed: %v", err)
	}
	if parsed.IssuedAtMs != clock.now.Truncate(time.Second).UnixMilli() {
		t.Fatalf("expected iat_ms derived from iat, got %d", parsed.IssuedAtMs)
	}
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	clock := &fixedClock{now: time.Now()}
	m := newTestManager(t, clock)

	claims := AccessClaims{SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(clock.now.Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS512, claims)
	tok.Header["kid"] = testKeyA.ID
	token, err := tok.SignedString(testKeyA.Secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token, []Key{testKeyA}); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseAccessExpiryFollowsClock(t *testing.T) {
	clock := &fixedClock{now: time.Now()}
	m := newTestManager(t, clock)

	token, _, err := m.CreateAccess(Subject{UserID: "u1", SessionID: "s1"}, testKeyA)
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	clock.now = clock.now.Add(4 * time.Minute)
	if _, err := m.ParseAccess(token, []Key{testKeyA}); err != nil {
		t.Fatalf("expected token valid before expiry: %v", err)
	}

	clock.now = clock.now.Add(2 * time.Minute)
	if _, err := m.ParseAccess(token, []Key{testKeyA}); !errors.Is(err, gjwt.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseAccessIssuerAndAudience(t *testing.T) {
	clock := &fixedClock{now: time.Now()}
	m := newTestManager(t, clock)

	for name, claims := range map[string]AccessClaims{
		"issuer": {SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
			Issuer:    "other",
			Audience:  gjwt.ClaimStrings{"api"},
			ExpiresAt: gjwt.NewNumericDate(clock.now.Add(time.Minute)),
		}},
		"audience": {SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
			Issuer:    "gotoken",
			Audience:  gjwt.ClaimStrings{"other-api"},
			ExpiresAt: gjwt.NewNumericDate(clock.now.Add(time.Minute)),
		}},
		"no-exp": {SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
			Issuer:   "gotoken",
			Audience: gjwt.ClaimStrings{"api"},
		}},
	} {
		tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
		tok.Header["kid"] = testKeyA.ID
		token, _ := tok.SignedString(testKeyA.Secret)
		if _, err := m.ParseAccess(token, []Key{testKeyA}); err == nil {
			t.Fatalf("%s: expected token to be rejected", name)
		}
	}
}

func TestParseAccessRejectsFutureIAT(t *testing.T) {
	clock := &fixedClock{now: time.Now()}
	m := newTestManager(t, clock)

	clock.now = clock.now.Add(time.Hour)
	token, _, err := m.CreateAccess(Subject{UserID: "u1", SessionID: "s1"}, testKeyA)
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	clock.now = clock.now.Add(-time.Hour)

	if _, err := m.ParseAccess(token, []Key{testKeyA}); err == nil {
		t.Fatal("expected future iat to be rejected")
	}
}

func TestParseAccessNoKeys(t *testing.T) {
	m := newTestManager(t, &fixedClock{now: time.Now()})
	if _, err := m.ParseAccess("x.y.z", nil); !errors.Is(err, ErrNoVerificationKeys) {
		t.Fatalf("expected ErrNoVerificationKeys, got %v", err)
	}
}

func TestParseUnverifiedReadsForeignSignature(t *testing.T) {
	clock := &fixedClock{now: time.Now()}
	m := newTestManager(t, clock)

	token, claims, err := m.CreateAccess(Subject{UserID: "u1", SessionID: "s1"}, testKeyB)
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	parsed, err := m.ParseUnverified(token)
	if err != nil {
		t.Fatalf("parse unverified: %v", err)
	}
	if parsed.ID != claims.ID {
		t.Fatalf("expected jti %s, got %s", claims.ID, parsed.ID)
	}
	if _, err := m.ParseUnverified("not-a-token"); err == nil {
		t.Fatal("expected malformed input to fail")
	}
}

func TestCreateAccessRejectsWeakKey(t *testing.T) {
	m := newTestManager(t, &fixedClock{now: time.Now()})
	if _, _, err := m.CreateAccess(Subject{UserID: "u1"}, Key{ID: "k", Secret: []byte("short")}); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
	if _, _, err := m.CreateAccess(Subject{UserID: "u1"}, Key{Secret: testKeyA.Secret}); err == nil {
		t.Fatal("expected empty kid to be rejected")
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	cases := []Config{
		{AccessTTL: 0},
		{AccessTTL: time.Minute, Leeway: -time.Second},
		{AccessTTL: time.Minute, Leeway: 3 * time.Minute},
		{AccessTTL: time.Minute, MaxFutureIAT: 48 * time.Hour},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected config to be rejected", i)
		}
	}
}

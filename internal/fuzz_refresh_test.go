package internal

import (
	"testing"
)

// FuzzCheckRefreshToken exercises refresh token shape checks with arbitrary strings.
// Goal: no panics; accepted inputs must decode to exactly 32 bytes.
func FuzzCheckRefreshToken(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")

	if token, err := NewRefreshToken(); err == nil {
		f.Add(token)
	}

	// Malformed base64.
	f.Add("!!!not-base64!!!")
	f.Add("aGVsbG8=")

	f.Fuzz(func(t *testing.T, input string) {
		if err := CheckRefreshToken(input); err != nil {
			return
		}
		if len(HashRefreshToken(input)) != 64 {
			t.Fatalf("unexpected hash length for %q", input)
		}
	})
}

func TestNewRefreshTokenShape(t *testing.T) {
	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		token, err := NewRefreshToken()
		if err != nil {
			t.Fatalf("NewRefreshToken failed: %v", err)
		}
		if err := CheckRefreshToken(token); err != nil {
			t.Fatalf("generated token rejected: %v", err)
		}
		if _, dup := seen[token]; dup {
			t.Fatalf("duplicate refresh token generated")
		}
		seen[token] = struct{}{}
	}
}

func TestHashRefreshTokenStable(t *testing.T) {
	a := HashRefreshToken("token-a")
	if a != HashRefreshToken("token-a") {
		t.Fatal("hash must be deterministic")
	}
	if a == HashRefreshToken("token-b") {
		t.Fatal("distinct tokens must hash differently")
	}
}

func TestSessionIDString(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID failed: %v", err)
	}
	if len(sid.String()) != 22 {
		t.Fatalf("expected 22-char session id, got %q", sid.String())
	}
}

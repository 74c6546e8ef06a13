package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

type SessionID [16]byte

const (
	refreshTokenSize = 32
)

var errInvalidRefreshToken = errors.New("invalid refresh token")

func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

// NewRefreshToken returns an opaque base64url refresh token backed by 32 random bytes.
func NewRefreshToken() (string, error) {
	var raw [refreshTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashRefreshToken returns the hex SHA-256 of a refresh token. Only this value
// is ever persisted.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CheckRefreshToken rejects values that could not have been produced by
// NewRefreshToken without touching the store.
func CheckRefreshToken(token string) error {
	if base64.RawURLEncoding.DecodedLen(len(token)) != refreshTokenSize {
		return errInvalidRefreshToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != refreshTokenSize {
		return errInvalidRefreshToken
	}
	return nil
}

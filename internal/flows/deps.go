package flows

import (
	"context"

	"github.com/MrEthical07/goToken/jwt"
)

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Issue         IssueDeps
	Refresh       RefreshDeps
	Validate      ValidateDeps
	Logout        LogoutDeps
	Introspection IntrospectionDeps
}

// KeySource resolves signing and verification keys.
type KeySource interface {
	CurrentSigningKey(ctx context.Context) (jwt.Key, error)
	ValidVerificationKeys(ctx context.Context) ([]jwt.Key, error)
}

// MintAccessFunc signs an access token for sub with key.
type MintAccessFunc func(sub jwt.Subject, key jwt.Key) (string, *jwt.AccessClaims, error)

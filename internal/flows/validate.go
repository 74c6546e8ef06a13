package flows

import (
	"context"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/revocation"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureKeys
	ValidateFailureUnauthorized
	ValidateFailureBlacklisted
	ValidateFailureInvalidated
	ValidateFailureStore
)

// ValidateResult returns either claims or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.AccessClaims
}

type ValidateRevocationStore interface {
	Check(ctx context.Context, jti, userID string) (revocation.Status, error)
}

// ValidateDeps captures access-token validation dependencies.
type ValidateDeps struct {
	Keys        KeySource
	ParseAccess func(tokenStr string, keys []jwt.Key) (*jwt.AccessClaims, error)
	Revocation  ValidateRevocationStore
}

// RunValidate verifies the signature and registered claims of tokenStr and
// then checks the blacklist and both invalidation markers. Revocation lookups
// fail closed.
func RunValidate(ctx context.Context, tokenStr string, deps ValidateDeps) ValidateResult {
	claims, res := RunVerify(ctx, tokenStr, deps)
	if res.Failure != ValidateFailureNone {
		return res
	}

	st, err := deps.Revocation.Check(ctx, claims.ID, claims.Subject)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureStore, Err: err, Claims: claims}
	}
	if st.Blacklisted {
		return ValidateResult{Failure: ValidateFailureBlacklisted, Claims: claims}
	}
	if st.Revoked(claims.IssuedAtMs) {
		return ValidateResult{Failure: ValidateFailureInvalidated, Claims: claims}
	}
	return ValidateResult{Claims: claims}
}

// RunVerify checks signature and expiry only.
func RunVerify(ctx context.Context, tokenStr string, deps ValidateDeps) (*jwt.AccessClaims, ValidateResult) {
	keys, err := deps.Keys.ValidVerificationKeys(ctx)
	if err != nil {
		return nil, ValidateResult{Failure: ValidateFailureKeys, Err: err}
	}
	claims, err := deps.ParseAccess(tokenStr, keys)
	if err != nil {
		return nil, ValidateResult{Failure: ValidateFailureUnauthorized, Err: err}
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, ValidateResult{Failure: ValidateFailureUnauthorized}
	}
	return claims, ValidateResult{}
}

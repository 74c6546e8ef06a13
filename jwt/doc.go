// Package jwt manages HS256 access-token issuance and verification over a
// caller-supplied set of symmetric keys, with strict validation semantics
// suitable for low-latency authentication paths.
//
// The package holds no key state of its own: the signing key is passed to
// CreateAccess and the currently valid verification keys to ParseAccess, so
// key rotation stays entirely with the caller.
package jwt

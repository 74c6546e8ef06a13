// Package goToken manages the lifecycle of access and refresh tokens: signing
// key rotation, issuance, validation, refresh rotation with reuse detection,
// blacklisting and invalidation.
//
// Access tokens are short-lived HS256 JWTs signed with a key from a rotating
// three-slot ring. Refresh tokens are opaque random values; only their
// SHA-256 hash is stored, in Redis, grouped into families. Every refresh
// consumes the presented token atomically. Presenting a consumed token again
// is treated as theft and revokes the whole family.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goToken is the public surface. It exposes [Engine], [Builder], [Config], and
// value types (TokenPair, Claims, RotationStatus, etc.). The stores live in
// keyring, refresh, session and revocation; flow orchestration and audit
// dispatch live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or key material in its public API.
//   - Return errors that name key ids or store keys.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until the first call).
//
// # Performance contract
//
// Validate is the hot path: one cached key lookup and one pipelined Redis
// round trip for the blacklist and both invalidation markers. RotateRefresh
// is one Lua script plus the user lookup.
package goToken

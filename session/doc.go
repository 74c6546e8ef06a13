// Package session provides Redis-backed session records and the per-session
// token-pair cache.
//
// A session binds one refresh-token family to one logical client session. It
// is stored as a hash with a TTL equal to the remaining family lifetime and is
// indexed per user. The pair cache holds the last issued token pair for a
// short grace window so that parallel requests converge on one pair.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] and
// [Pair] models. It does NOT mint or interpret tokens; those responsibilities
// belong to the Engine.
//
// # What this package must NOT do
//
//   - Import goToken, jwt, keyring, or refresh (no upward imports).
//   - Log token values.
package session

// Package keyring owns the rotating set of HS256 signing secrets.
//
// Three slots (primary, secondary, tertiary) rotate in ring order. The
// rotation pointers live in a single Redis hash guarded by a version field,
// so any instance may rotate with a compare-and-set and every instance reads
// the same current/previous pair. Slot secrets are configured or derived from
// the static secret with HKDF, and are never written to Redis.
//
// # Initialization and degradation
//
// A Manager does not touch Redis until first use. The first call seeds the
// rotation hash if it is absent. When Redis cannot be reached and FailOpen is
// set, the Manager enters StateDegradedStaticKey: it signs with the static
// secret and verifies with the static secret plus the last known slot keys.
// The degraded state is re-checked after RetryBackoff, so the Manager returns
// to StateInitialized once Redis is back. Without FailOpen, store errors are
// returned as ErrRedisUnavailable.
package keyring

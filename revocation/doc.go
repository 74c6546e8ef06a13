// Package revocation keeps the access-token deny state in Redis: per-jti
// blacklist markers and the global and per-user invalidation timestamps.
//
// Markers carry a TTL equal to the longest time a token they cover can still
// be alive, so the keyspace cleans itself up. Invalidation timestamps only
// ever move forward.
package revocation

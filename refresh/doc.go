// Package refresh persists opaque rotating refresh tokens in Redis.
//
// # Record layout
//
// Each token is stored as a Redis hash under prefix:{sha256hex(token)}; the
// plaintext token is never written. A record carries its owner, family,
// session, expiry, revoked flag and a replaced_by pointer to the hash of its
// successor. Two secondary indexes, prefix:user:{uid} and prefix:family:{fid},
// are sets of token hashes.
//
// # Rotation
//
// Rotate is a single Lua script: it checks expiry, treats a revoked or already
// replaced record as reuse, and otherwise marks the old record replaced and
// writes the successor in the same family. Concurrent rotations of one token
// therefore produce exactly one winner; every loser observes replaced_by and
// gets ErrRefreshReuse.
//
// # Family operations
//
// RevokeFamily, DeleteByFamily and DeleteByUser fan out over the indexes
// without a transaction. They are idempotent, and a partial run is harmless
// because every record's own revoked/replaced_by check still catches reuse.
//
// # What this package must NOT do
//
//   - Import goToken, jwt, or session.
//   - Store or log plaintext refresh tokens.
package refresh

// Package middleware adapts engine validation to net/http.
//
// # Guards
//
//   - [Guard] runs the full Engine.Validate check, revocation included.
//   - [RequireSignatureOnly] checks signature and expiry only, with no
//     revocation lookup.
//   - [RequireRole] is Guard plus a role allow-list.
//
// Each guard reads the Authorization bearer token and injects what it
// verified into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Every decision is
// delegated to the Engine.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Access Redis.
//   - Tell the client why a token was rejected.
package middleware

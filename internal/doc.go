// Package internal holds helpers private to goToken: secure random session
// ids and refresh tokens, plus the refresh-token hash that is the only form
// ever persisted.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - flows: flow orchestrators for every Engine operation
//   - metrics: lock-free counters and latency histograms
package internal

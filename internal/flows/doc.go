// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunIssue, RunValidate, RunRotateRefresh, etc.) accepts a
// typed dependency struct and returns a result value that classifies the
// outcome. The Engine maps failure kinds to public errors, audit events and
// metrics, which keeps the Engine type thin.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the key source, JWT manager, refresh
// store, session store and revocation store. They do NOT own any of these
// resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goToken (to avoid import cycles).
//   - Emit audit events or metrics. That is the Engine's job.
//   - Perform I/O directly. All I/O is mediated through dependency interfaces.
package flows

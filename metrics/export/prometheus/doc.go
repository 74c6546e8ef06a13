// Package prometheus renders engine metrics in the Prometheus text exposition
// format.
//
// [NewExporter] wraps a [goToken.Engine] and exposes an [http.Handler].
// Counters are named gotoken_*_total; validate and refresh latency are
// histograms named gotoken_*_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus

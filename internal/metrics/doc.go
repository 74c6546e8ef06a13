// Package metrics keeps goToken's in-process counters and latency
// histograms.
//
// Each counter lives in its own cache-line-padded slot and is bumped with
// atomic adds; the write path never allocates. Histograms have eight fixed
// buckets from 5ms to +Inf. Exporters under metrics/export read [Snapshot]
// values and never touch the slots directly.
//
// The package does no I/O and imports nothing from goToken.
package metrics

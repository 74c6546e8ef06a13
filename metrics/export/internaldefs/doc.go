// Package internaldefs holds the metric names and bucket bounds shared by the
// exporters.
//
// Both the Prometheus and OTel exporters read these definitions so they
// publish identical names and bucket boundaries. Renaming a metric here
// renames it in every exporter.
//
// # What this package must NOT do
//
//   - Import an exporter package.
//   - Perform I/O.
package internaldefs

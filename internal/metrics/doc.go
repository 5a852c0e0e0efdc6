// Package metrics defines the prometheus collectors for envelope ingest,
// publishing and relay authentication. A nil *Metrics is valid and records
// nothing.
package metrics

// Package progress carries run milestones from the coordinator to pluggable
// sinks. Emit never blocks; a background goroutine batches events and fans
// them out to logs, Prometheus, Pub/Sub and the archive ledger.
package progress

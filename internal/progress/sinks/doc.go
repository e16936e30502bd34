// Package sinks implements progress consumers: structured logs, Prometheus
// collectors, the Postgres archive ledger and a Pub/Sub publisher.
package sinks

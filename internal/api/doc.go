// Package api hosts the HTTP control surface for a running crawl. Notable
// routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for a coordinator snapshot.
//   - POST /v1/pause, /v1/resume and /v1/stop to steer the run.
//   - POST /v1/urls to inject URLs while the run executes.
//   - GET /v1/runs/{run_id} to read a finished run from the archive ledger.
package api

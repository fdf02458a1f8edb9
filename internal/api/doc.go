// Package api hosts the read-only HTTP surface of the harvester:
//   - GET /healthz and /readyz for liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/eras and /v1/eras/{era} for the era table and artifact names.
//   - GET /v1/results for the outcome of the eras finished by this process.
//   - GET /v1/progress for live per-run tallies from the progress hub.
package api

// Package api hosts the status server for a running crawl. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/crawl for the run's state and counters.
//   - POST /v1/crawl/cancel to stop the run.
package api

// Package api hosts the admin HTTP server, middleware, and REST handlers.
// Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/tasks to request a user-origin deep crawl.
//   - PUT /v1/cookies/{platform} for the login console to store cookies.
//   - POST /v1/ingest/{source} for scrapers pushing hot-list batches.
package api

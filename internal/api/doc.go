// Package api hosts the HTTP server, middleware, and handlers of the genre
// analyzer. Notable routes:
//   - POST /calculate-text-genre-probability accepts an analysis trigger and
//     answers 204 before any scoring happens.
//   - GET /healthz / readyz for Kubernetes probes; readyz pings the store.
//   - GET /metrics for Prometheus scraping.
package api

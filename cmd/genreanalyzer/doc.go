// Package main hosts the genre analyzer service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server accepts POST /calculate-text-genre-probability, validates the
//     analysis_request_id, and enqueues it on a bounded queue. It answers 204 before any scoring,
//     or 503 with Retry-After when the queue is saturated.
//   - Dispatcher & queue: triggers flow through a bounded in-memory queue sized by analysis.queue_depth
//     and are fanned out to a fixed worker pool sized by analysis.workers.
//   - Analysis run: each worker fetches the stored text, waits a random pacing delay, scores every
//     associated genre with the keyword scorer, and PUTs one callback carrying the secret key.
//   - Persistence: read-only. Postgres via pgx in production, or an in-memory store seeded from YAML
//     for local runs (store.driver=memory).
//   - Observability: zap logs carry run and request ids; Prometheus metrics are exported on /metrics;
//     one outcome event per run goes to Pub/Sub when pubsub.enabled is set.
//
// Quick checklist:
//   - Configure env vars: GENRE_CALLBACK_URL, GENRE_CALLBACK_SECRET_KEY, GENRE_DB_DSN, and optionally
//     GENRE_ANALYSIS_WORKERS, GENRE_PUBSUB_ENABLED/PROJECT_ID. A .env file can be passed with --env-file.
//   - Run locally: go run ./cmd/genreanalyzer serve --config config.yaml
//   - Score ad hoc: go run ./cmd/genreanalyzer score --text "..." --keywords "a,b"
//   - The process reacts to SIGINT/SIGTERM by draining queued runs within server.shutdown_timeout.
package main

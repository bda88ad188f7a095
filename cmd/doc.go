// Package cmd defines and implements the CLI commands for the radar executable.
//
// Architecture overview:
//   - Ingestion: internal/ingest writes batches of hot-list rows per registered source, deduplicating on the
//     source's dedup fields and appending time-varying observations to each row's history. Every successful batch
//     runs the per-source signal detectors.
//   - Signals & candidates: internal/signal emits velocity, new-entry, position-jump and cross-platform signals;
//     internal/candidate folds them into topic clusters, decays scores every cycle and moves candidates through the
//     emerging/rising/confirmed/exploded/tracking lifecycle, emitting deep-crawl tasks on promotion.
//   - Dispatch: tasks land in a two-tier queue (memory or Redis). internal/dispatcher runs at most one task per
//     platform, prefers user tasks, retries with backoff, opens a per-platform circuit on repeated failures and
//     probes cookie health on a fixed cadence.
//   - Persistence: every record type has a memory and a Postgres store; the schema is migrated at startup.
//   - Plumbing: Viper populates config from file and RADAR_* env vars; zap provides structured logging;
//     Prometheus metrics are exported on /metrics; OpenTelemetry spans cover the worker and cycle paths.
//
// Quick checklist:
//   - Run the service: radar serve --config config.yaml
//   - Load a snapshot: radar ingest --source weibo-hot-search --file rows.jsonl
//   - One-shot maintenance: radar detect, radar cycle (both require a persistent storage provider to be useful).
package cmd

// Package queue persists workflow jobs in SQLite and exposes the claim,
// retry, and recovery operations the worker pool is built on.
//
// The Store manages database connections, schema initialization, stats
// queries, heartbeat tracking, stalled-job recovery, and retention cleanup.
// Claim is the single concurrency-critical primitive: it selects, transitions,
// and returns the next runnable job in one atomic SQL statement so a job is
// processed by at most one worker regardless of worker count or timing.
//
// Job payloads are a tagged union keyed by job type and decoded at this
// boundary; handlers never parse raw JSON. Treat this package as the single
// source of truth for queue semantics; when you add new job types or columns,
// update schema.sql and bump schemaVersion.
package queue

// Package workflow runs the job pipeline: a fixed-size worker pool polling
// the queue, a handler registry dispatching by job type, per-job heartbeats,
// and the scan → enrich → publish → sync phase chain with pass-through for
// disabled stages.
package workflow

// Package enrichment implements the artwork enrichment stage: provider
// fan-out, candidate analysis, scoring, selection, and cache settlement for
// one library entity per job.
package enrichment

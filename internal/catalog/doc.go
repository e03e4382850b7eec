// Package catalog persists the media library's durable state: entities
// discovered on disk, every candidate artwork a provider ever offered for
// them, and the bookkeeping rows for the content-addressed artwork cache.
//
// Candidate rows are a permanent catalog, not a transient cache: analysis,
// scoring, and selection update rows in place, and rows are only removed when
// their owning entity is deleted. That permanence is what makes re-enrichment
// cheap (analysis results survive) and selection deltas computable.
package catalog

package providers

import (
	"context"
	"fmt"
	"time"

	"curator/internal/catalog"
)

// Artwork is one piece of candidate artwork as a provider reported it, before
// it becomes a catalog row.
type Artwork struct {
	AssetType catalog.AssetType
	SourceURL string
	Language  string
	Votes     int
	Rating    float64
}

// Client fetches artwork candidates from one external catalog.
type Client interface {
	Name() string
	FetchArtwork(ctx context.Context, entity *catalog.Entity) ([]Artwork, error)
}

// ThrottleError reports that a provider rate limited the request. RetryAfter
// carries the provider's retry hint when it sent one; zero means the caller
// should fall back to its own backoff.
type ThrottleError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *ThrottleError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s throttled request (retry after %s)", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s throttled request", e.Provider)
}

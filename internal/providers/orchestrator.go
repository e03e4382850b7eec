package providers

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"curator/internal/catalog"
	"curator/internal/logging"
	"curator/internal/providers/ratelimit"
	"curator/internal/services"
)

// FetchResult is the merged outcome of a fan-out across all configured
// providers. FailedProviders names the sources that produced nothing this
// round; partial failure is normal operation, not an error.
type FetchResult struct {
	Candidates      []*catalog.CandidateAsset
	FailedProviders []string
}

// Orchestrator fans an artwork fetch out to every configured provider
// concurrently and merges whatever settles. One overloaded catalog degrades
// the result instead of blocking enrichment; only a round where every
// provider fails is reported as an error.
type Orchestrator struct {
	clients  []Client
	limiters *ratelimit.Registry
	logger   *slog.Logger
}

// NewOrchestrator builds an orchestrator over the given provider clients.
func NewOrchestrator(clients []Client, limiters *ratelimit.Registry, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{clients: clients, limiters: limiters, logger: logger}
}

// Fetch requests artwork for an entity from every provider at once. Each call
// first acquires the provider's rate-limit slot; throttle responses feed the
// limiter's adaptive backoff. The error is non-nil only when all providers
// fail, and is marked transient so the queue retries it.
func (o *Orchestrator) Fetch(ctx context.Context, entity *catalog.Entity) (*FetchResult, error) {
	if len(o.clients) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "providers", "fetch", "no providers configured", nil)
	}

	type settled struct {
		provider string
		artwork  []Artwork
		err      error
	}

	results := make([]settled, len(o.clients))
	var wg sync.WaitGroup
	wg.Add(len(o.clients))
	for i, client := range o.clients {
		go func(i int, client Client) {
			defer wg.Done()
			results[i] = settled{provider: client.Name()}
			results[i].artwork, results[i].err = o.fetchOne(ctx, client, entity)
		}(i, client)
	}
	wg.Wait()

	merged := &FetchResult{}
	for _, result := range results {
		if result.err != nil {
			o.logger.Warn("provider fetch failed",
				logging.String(logging.FieldProvider, result.provider),
				logging.String(logging.FieldEntityID, entity.ID),
				logging.Error(result.err))
			merged.FailedProviders = append(merged.FailedProviders, result.provider)
			continue
		}
		for _, art := range result.artwork {
			merged.Candidates = append(merged.Candidates, &catalog.CandidateAsset{
				EntityID:  entity.ID,
				AssetType: art.AssetType,
				Provider:  result.provider,
				SourceURL: art.SourceURL,
				Language:  art.Language,
				Votes:     art.Votes,
				Rating:    art.Rating,
			})
		}
	}

	if len(merged.FailedProviders) == len(o.clients) {
		return nil, services.Wrap(services.ErrTransient, "providers", "fetch", "all providers failed", nil)
	}
	return merged, nil
}

func (o *Orchestrator) fetchOne(ctx context.Context, client Client, entity *catalog.Entity) ([]Artwork, error) {
	limiter := o.limiters.Get(client.Name())
	if err := limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	artwork, err := client.FetchArtwork(ctx, entity)
	if err != nil {
		var throttle *ThrottleError
		if errors.As(err, &throttle) {
			limiter.RecordThrottle(throttle.RetryAfter)
		}
		return nil, err
	}

	limiter.RecordSuccess()
	return artwork, nil
}

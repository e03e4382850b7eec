package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"curator/internal/analyzer"
	"curator/internal/assetcache"
	"curator/internal/catalog"
	"curator/internal/config"
	"curator/internal/logging"
	"curator/internal/notifications"
	"curator/internal/providers"
	"curator/internal/providers/ratelimit"
	"curator/internal/queue"
	"curator/internal/scoring"
	"curator/internal/selection"
	"curator/internal/services"
)

// fetcher is the provider fan-out surface the handler depends on.
type fetcher interface {
	Fetch(ctx context.Context, entity *catalog.Entity) (*providers.FetchResult, error)
}

// Handler runs the enrichment stage: it fetches candidate artwork from every
// configured provider, measures and hashes the downloads, scores them, and
// applies the per-asset-type selection to the catalog and the artwork cache.
type Handler struct {
	cfg      *config.Config
	store    *catalog.Store
	fetcher  fetcher
	analyzer *analyzer.Analyzer
	engine   *scoring.Engine
	cache    *assetcache.Manager
	limiters *ratelimit.Registry
	notifier notifications.Service
	logger   *slog.Logger
}

// NewHandler wires the full enrichment pipeline from configuration.
func NewHandler(cfg *config.Config, store *catalog.Store, logger *slog.Logger, notifier notifications.Service) (*Handler, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "enrichment")
	if notifier == nil {
		notifier = notifications.NewService(cfg, logger)
	}

	clients, err := buildClients(cfg, logger)
	if err != nil {
		return nil, err
	}

	priorities := map[string]int{
		"tmdb":   cfg.Providers.TMDB.Priority,
		"fanart": cfg.Providers.Fanart.Priority,
	}
	limiters := buildLimiters(cfg)
	return &Handler{
		cfg:      cfg,
		store:    store,
		fetcher:  providers.NewOrchestrator(clients, limiters, logger),
		analyzer: analyzer.New(cfg, store, logger),
		engine:   scoring.NewEngine(cfg.Providers.Language, priorities),
		cache:    assetcache.New(cfg, store, logger),
		limiters: limiters,
		notifier: notifier,
		logger:   logger,
	}, nil
}

// PruneLimiters drops expired rate-limiter state for every provider. Called
// from the daemon's maintenance schedule.
func (h *Handler) PruneLimiters() {
	if h.limiters != nil {
		h.limiters.PruneAll()
	}
}

// SweepTransient removes leftover temp downloads older than the given age.
func (h *Handler) SweepTransient(olderThan time.Duration) (int, error) {
	return h.analyzer.SweepTransient(olderThan)
}

// Execute enriches one entity. A pass where every asset type's selection is
// unchanged performs no catalog or cache writes at all.
func (h *Handler) Execute(ctx context.Context, job *queue.Job) error {
	decoded, err := queue.DecodePayload(job)
	if err != nil {
		return services.Wrap(services.ErrValidation, "enrichment", "execute", "invalid job payload", err)
	}
	payload, ok := decoded.(queue.EnrichPayload)
	if !ok {
		return services.Wrap(services.ErrValidation, "enrichment", "execute", fmt.Sprintf("unexpected payload type %T", decoded), nil)
	}

	entity, err := h.store.GetEntity(ctx, payload.EntityID)
	if err != nil {
		return err
	}
	if entity == nil {
		return services.Wrap(services.ErrValidation, "enrichment", "execute", "entity not found: "+payload.EntityID, nil)
	}
	logger := h.logger.With(logging.String(logging.FieldEntityID, entity.ID))

	result, err := h.fetcher.Fetch(ctx, entity)
	if err != nil {
		return err
	}
	inserted, err := h.store.UpsertCandidates(ctx, result.Candidates)
	if err != nil {
		return err
	}
	logger.Info("provider fetch merged",
		logging.Int("candidates", len(result.Candidates)),
		logging.Int("new", inserted),
		logging.Int("failed_providers", len(result.FailedProviders)))

	unanalyzed, err := h.store.UnanalyzedCandidates(ctx, entity.ID)
	if err != nil {
		return err
	}
	if err := h.analyzer.AnalyzeBatch(ctx, unanalyzed); err != nil {
		return err
	}

	totalSelected := 0
	for _, assetType := range catalog.AssetTypes() {
		selected, err := h.selectAssets(ctx, entity, assetType, payload.ForceRefresh)
		if err != nil {
			return err
		}
		totalSelected += selected
	}

	if err := h.notifier.NotifyEnrichmentCompleted(ctx, entity.Title, totalSelected); err != nil {
		logger.Warn("enrichment notification failed", logging.Error(err))
	}
	return nil
}

// selectAssets scores and selects one asset type for the entity, then settles
// the cache: newly selected artwork is downloaded into the content store and
// evicted artwork is released (subject to cross-entity reference counting).
func (h *Handler) selectAssets(ctx context.Context, entity *catalog.Entity, assetType catalog.AssetType, force bool) (int, error) {
	candidates, err := h.store.CandidatesFor(ctx, entity.ID, assetType)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	pool := make([]selection.Candidate, 0, len(candidates))
	byID := make(map[int64]*catalog.CandidateAsset, len(candidates))
	for _, candidate := range candidates {
		byID[candidate.ID] = candidate
		score := 0
		if candidate.Analyzed {
			score = h.engine.Score(candidate)
			if err := h.store.SaveScore(ctx, candidate.ID, float64(score)); err != nil {
				return 0, err
			}
		}
		pool = append(pool, selection.Candidate{
			ID:             candidate.ID,
			Score:          score,
			PerceptualHash: candidate.PerceptualHash,
			Selected:       candidate.IsSelected,
			Rejected:       candidate.IsRejected,
			Analyzed:       candidate.Analyzed,
		})
	}

	result := selection.Select(pool, h.maxAllowed(assetType), h.cfg.Selection.SimilarityThreshold, entity.Locked(assetType))
	if result.Unchanged && !force {
		return len(result.Selected), nil
	}

	selectedIDs := make([]int64, 0, len(result.Selected))
	selectedAssets := make([]*catalog.CandidateAsset, 0, len(result.Selected))
	for _, pick := range result.Selected {
		selectedIDs = append(selectedIDs, pick.ID)
		selectedAssets = append(selectedAssets, byID[pick.ID])
	}
	if err := h.store.ApplySelection(ctx, entity.ID, assetType, selectedIDs, catalog.SelectedByAuto); err != nil {
		return 0, err
	}

	if _, err := h.cache.EnsureCached(ctx, selectedAssets); err != nil {
		return 0, err
	}
	evictedHashes := make([]string, 0, len(result.Evicted))
	for _, gone := range result.Evicted {
		if asset := byID[gone.ID]; asset != nil && asset.ContentHash != "" {
			evictedHashes = append(evictedHashes, asset.ContentHash)
		}
	}
	if len(evictedHashes) > 0 {
		if _, err := h.cache.Evict(ctx, evictedHashes); err != nil {
			return 0, err
		}
	}

	h.logger.Info("selection applied",
		logging.String(logging.FieldEntityID, entity.ID),
		logging.String(logging.FieldAssetType, string(assetType)),
		logging.Int("selected", len(selectedIDs)),
		logging.Int("evicted", len(result.Evicted)))
	return len(selectedIDs), nil
}

func (h *Handler) maxAllowed(assetType catalog.AssetType) int {
	switch assetType {
	case catalog.AssetPoster:
		return h.cfg.Selection.MaxPosters
	case catalog.AssetBackdrop:
		return h.cfg.Selection.MaxBackdrops
	case catalog.AssetLogo:
		return h.cfg.Selection.MaxLogos
	default:
		return 1
	}
}

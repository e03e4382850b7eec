package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"curator/internal/catalog"
	"curator/internal/config"
	"curator/internal/logging"
	"curator/internal/notifications"
	"curator/internal/queue"
	"curator/internal/services"
	"curator/internal/workflow"
)

// videoExtensions identifies files that make a directory a media entity.
var videoExtensions = map[string]struct{}{
	".mkv": {},
	".mp4": {},
	".m4v": {},
	".avi": {},
	".mov": {},
	".ts":  {},
}

// titleYearPattern matches "Title (2016)" style directory names.
var titleYearPattern = regexp.MustCompile(`^(.*\S)\s*\((\d{4})\)$`)

// Handler runs the scan stage: it walks the library layout, upserts one
// catalog entity per media directory, and fans out one follow-up job per
// entity to the next enabled stage. Heuristics are deliberately shallow; a
// directory with at least one video file is an entity, everything else is
// skipped.
type Handler struct {
	cfg      *config.Config
	catalog  *catalog.Store
	queue    *queue.Store
	chain    *workflow.Chain
	notifier notifications.Service
	logger   *slog.Logger
}

// NewHandler builds the scan stage handler.
func NewHandler(cfg *config.Config, catalogStore *catalog.Store, queueStore *queue.Store, chain *workflow.Chain, logger *slog.Logger, notifier notifications.Service) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "scanner")
	if notifier == nil {
		notifier = notifications.NewService(cfg, logger)
	}
	return &Handler{
		cfg:      cfg,
		catalog:  catalogStore,
		queue:    queueStore,
		chain:    chain,
		notifier: notifier,
		logger:   logger,
	}
}

// Execute walks the configured library roots and schedules follow-up work.
func (h *Handler) Execute(ctx context.Context, job *queue.Job) error {
	decoded, err := queue.DecodePayload(job)
	if err != nil {
		return services.Wrap(services.ErrValidation, "scanner", "execute", "invalid job payload", err)
	}
	payload, ok := decoded.(queue.ScanPayload)
	if !ok {
		return services.Wrap(services.ErrValidation, "scanner", "execute", fmt.Sprintf("unexpected payload type %T", decoded), nil)
	}

	priority := job.Priority
	if payload.Manual {
		priority = queue.ManualPriority
	}

	var discovered []*catalog.Entity
	movies, err := h.scanRoot(ctx, filepath.Join(h.cfg.Paths.LibraryDir, h.cfg.Library.MoviesDir), catalog.EntityMovie)
	if err != nil {
		return err
	}
	discovered = append(discovered, movies...)
	shows, err := h.scanRoot(ctx, filepath.Join(h.cfg.Paths.LibraryDir, h.cfg.Library.TVDir), catalog.EntitySeries)
	if err != nil {
		return err
	}
	discovered = append(discovered, shows...)

	enqueued, err := h.fanOut(ctx, discovered, priority)
	if err != nil {
		return err
	}
	h.logger.Info("library scan finished",
		logging.Int("entities", len(discovered)),
		logging.Int("enqueued", enqueued))

	if err := h.notifier.NotifyScanCompleted(ctx, len(discovered)); err != nil {
		h.logger.Warn("scan notification failed", logging.Error(err))
	}
	return nil
}

// scanRoot upserts one entity per media directory directly under root. A
// missing root is not an error: libraries are allowed to have only movies or
// only shows.
func (h *Handler) scanRoot(ctx context.Context, root string, entityType catalog.EntityType) ([]*catalog.Entity, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "scanner", "scan", "read library root "+root, err)
	}

	var found []*catalog.Entity
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		hasMedia, err := containsVideo(dir)
		if err != nil {
			h.logger.Warn("skipping unreadable directory",
				logging.String("path", dir), logging.Error(err))
			continue
		}
		if !hasMedia {
			continue
		}

		title, year := parseTitleYear(entry.Name())
		entity, err := h.catalog.UpsertEntity(ctx, entityType, title, year, dir)
		if err != nil {
			return nil, err
		}
		found = append(found, entity)
	}
	return found, nil
}

// fanOut enqueues one next-stage job per entity, skipping entities that
// already have active work of that type so repeated scheduled scans do not
// pile up duplicates.
func (h *Handler) fanOut(ctx context.Context, entities []*catalog.Entity, priority int) (int, error) {
	next, ok := h.chain.NextEnabled(queue.TypeScan)
	if !ok {
		return 0, nil
	}

	active, err := h.activeEntities(ctx, next)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, entity := range entities {
		if _, busy := active[entity.ID]; busy {
			continue
		}
		payload, err := followupPayload(next, entity)
		if err != nil {
			return enqueued, err
		}
		if _, err := h.queue.Enqueue(ctx, next, payload, priority, queue.RetryPolicy{}); err != nil {
			return enqueued, err
		}
		enqueued++
	}
	return enqueued, nil
}

// activeEntities returns the entity ids with a pending, retrying, or
// in-flight job of the given type.
func (h *Handler) activeEntities(ctx context.Context, jobType queue.Type) (map[string]struct{}, error) {
	jobs, err := h.queue.List(ctx, queue.StatusPending, queue.StatusProcessing, queue.StatusRetrying)
	if err != nil {
		return nil, err
	}
	active := make(map[string]struct{})
	for _, job := range jobs {
		if job.Type != jobType {
			continue
		}
		decoded, err := queue.DecodePayload(job)
		if err != nil {
			continue
		}
		switch p := decoded.(type) {
		case queue.EnrichPayload:
			active[p.EntityID] = struct{}{}
		case queue.PublishPayload:
			active[p.EntityID] = struct{}{}
		case queue.SyncPayload:
			active[p.EntityID] = struct{}{}
		}
	}
	return active, nil
}

func followupPayload(jobType queue.Type, entity *catalog.Entity) (any, error) {
	switch jobType {
	case queue.TypeEnrich:
		return queue.EnrichPayload{EntityID: entity.ID, EntityType: string(entity.Type)}, nil
	case queue.TypePublish:
		return queue.PublishPayload{EntityID: entity.ID, EntityType: string(entity.Type)}, nil
	case queue.TypeSync:
		return queue.SyncPayload{EntityID: entity.ID, EntityType: string(entity.Type)}, nil
	default:
		return nil, fmt.Errorf("no follow-up payload for job type %q", jobType)
	}
}

// containsVideo reports whether dir holds at least one video file at any
// depth.
func containsVideo(dir string) (bool, error) {
	found := false
	err := filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if _, ok := videoExtensions[strings.ToLower(filepath.Ext(path))]; ok {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found, err
}

// parseTitleYear splits "Title (2016)" directory names; names without a year
// suffix are used verbatim with a zero year.
func parseTitleYear(name string) (string, int) {
	match := titleYearPattern.FindStringSubmatch(name)
	if match == nil {
		return name, 0
	}
	year, err := strconv.Atoi(match[2])
	if err != nil {
		return name, 0
	}
	return match[1], year
}

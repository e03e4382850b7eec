// Package syncer implements the sync stage: after artwork lands in the
// library layout, configured playback servers are told to pick it up.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"curator/internal/catalog"
	"curator/internal/config"
	"curator/internal/logging"
	"curator/internal/notifications"
	"curator/internal/queue"
	"curator/internal/services"
)

// Target is one playback server that can be told to refresh.
type Target interface {
	Name() string
	Refresh(ctx context.Context, entity *catalog.Entity) error
}

// Handler runs the sync stage. Playback servers are best-effort peers: one
// unreachable server degrades the sync, only all of them failing marks the
// job for retry. No configured targets makes the stage a no-op.
type Handler struct {
	cfg      *config.Config
	store    *catalog.Store
	targets  []Target
	notifier notifications.Service
	logger   *slog.Logger
}

// NewHandler builds the sync stage handler from the configured players.
func NewHandler(cfg *config.Config, store *catalog.Store, logger *slog.Logger, notifier notifications.Service) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "syncer")
	if notifier == nil {
		notifier = notifications.NewService(cfg, logger)
	}

	timeout := 10 * time.Second
	var targets []Target
	if players := cfg.Players.Plex; players.Enabled && players.URL != "" && players.Token != "" {
		targets = append(targets, NewPlexClient(players.URL, players.Token, timeout))
	}
	if players := cfg.Players.Jellyfin; players.Enabled && players.URL != "" && players.APIKey != "" {
		targets = append(targets, NewJellyfinClient(players.URL, players.APIKey, timeout))
	}
	return &Handler{cfg: cfg, store: store, targets: targets, notifier: notifier, logger: logger}
}

// NewHandlerWithTargets injects explicit targets (used in tests).
func NewHandlerWithTargets(cfg *config.Config, store *catalog.Store, logger *slog.Logger, notifier notifications.Service, targets ...Target) *Handler {
	handler := NewHandler(cfg, store, logger, notifier)
	handler.targets = targets
	return handler
}

// Execute notifies every configured playback server about the entity.
func (h *Handler) Execute(ctx context.Context, job *queue.Job) error {
	decoded, err := queue.DecodePayload(job)
	if err != nil {
		return services.Wrap(services.ErrValidation, "syncer", "execute", "invalid job payload", err)
	}
	payload, ok := decoded.(queue.SyncPayload)
	if !ok {
		return services.Wrap(services.ErrValidation, "syncer", "execute", fmt.Sprintf("unexpected payload type %T", decoded), nil)
	}

	entity, err := h.store.GetEntity(ctx, payload.EntityID)
	if err != nil {
		return err
	}
	if entity == nil {
		return services.Wrap(services.ErrValidation, "syncer", "execute", "entity not found: "+payload.EntityID, nil)
	}

	if len(h.targets) == 0 {
		h.logger.Debug("no playback servers configured, sync is a no-op",
			logging.String(logging.FieldEntityID, entity.ID))
		return nil
	}

	failed := 0
	for _, target := range h.targets {
		if err := target.Refresh(ctx, entity); err != nil {
			failed++
			h.logger.Warn("playback server refresh failed",
				logging.String("target", target.Name()),
				logging.String(logging.FieldEntityID, entity.ID),
				logging.Error(err))
			continue
		}
		h.logger.Info("playback server refreshed",
			logging.String("target", target.Name()),
			logging.String(logging.FieldEntityID, entity.ID))
	}
	if failed == len(h.targets) {
		return services.Wrap(services.ErrTransient, "syncer", "refresh", "all playback servers unreachable", nil)
	}
	return nil
}

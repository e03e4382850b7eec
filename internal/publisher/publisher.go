package publisher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"curator/internal/assetcache"
	"curator/internal/catalog"
	"curator/internal/config"
	"curator/internal/logging"
	"curator/internal/notifications"
	"curator/internal/queue"
	"curator/internal/services"
)

// baseNames maps asset types to the player-visible file names most scanners
// (Plex, Jellyfin, Kodi) pick up without configuration.
var baseNames = map[catalog.AssetType]string{
	catalog.AssetPoster:   "poster",
	catalog.AssetBackdrop: "fanart",
	catalog.AssetLogo:     "logo",
}

// libraryUnavailableErrors lists syscall errors that indicate the library
// filesystem (often a network mount) is unavailable rather than the write
// being invalid.
var libraryUnavailableErrors = []error{
	syscall.ENODEV,
	syscall.ENOTCONN,
	syscall.EHOSTDOWN,
	syscall.EHOSTUNREACH,
	syscall.ETIMEDOUT,
	syscall.EIO,
	syscall.ESTALE,
}

var titleCaser = cases.Title(language.Und)

// Handler runs the publish stage: it deploys the selected artwork for one
// entity from the content-addressed cache into the entity's library directory
// under canonical names. Publishing is a pure copy; selection and cache
// population happened upstream.
type Handler struct {
	cfg      *config.Config
	store    *catalog.Store
	cache    *assetcache.Manager
	notifier notifications.Service
	logger   *slog.Logger
}

// NewHandler builds the publish stage handler.
func NewHandler(cfg *config.Config, store *catalog.Store, logger *slog.Logger, notifier notifications.Service) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "publisher")
	if notifier == nil {
		notifier = notifications.NewService(cfg, logger)
	}
	return &Handler{
		cfg:      cfg,
		store:    store,
		cache:    assetcache.New(cfg, store, logger),
		notifier: notifier,
		logger:   logger,
	}
}

// Execute deploys every selected asset for the entity. Assets missing from
// the cache are skipped with a warning so one bad candidate cannot hold back
// the rest; filesystem-unavailable failures abort as transient so the job
// retries once the mount returns.
func (h *Handler) Execute(ctx context.Context, job *queue.Job) error {
	decoded, err := queue.DecodePayload(job)
	if err != nil {
		return services.Wrap(services.ErrValidation, "publisher", "execute", "invalid job payload", err)
	}
	payload, ok := decoded.(queue.PublishPayload)
	if !ok {
		return services.Wrap(services.ErrValidation, "publisher", "execute", fmt.Sprintf("unexpected payload type %T", decoded), nil)
	}

	entity, err := h.store.GetEntity(ctx, payload.EntityID)
	if err != nil {
		return err
	}
	if entity == nil {
		return services.Wrap(services.ErrValidation, "publisher", "execute", "entity not found: "+payload.EntityID, nil)
	}
	logger := h.logger.With(logging.String(logging.FieldEntityID, entity.ID))

	if err := os.MkdirAll(entity.LibraryPath, 0o755); err != nil {
		return wrapLibraryError("create library directory", err)
	}

	deployed := 0
	for _, assetType := range catalog.AssetTypes() {
		selected, err := h.store.SelectedCandidates(ctx, entity.ID, assetType)
		if err != nil {
			return err
		}
		for i, candidate := range selected {
			ok, err := h.deployOne(ctx, entity, assetType, candidate, i)
			if err != nil {
				return err
			}
			if ok {
				deployed++
			}
		}
	}

	logger.Info("artwork published",
		logging.String("title", displayTitle(entity)),
		logging.Int("deployed", deployed))
	return nil
}

// deployOne copies a single cached asset into the library directory. The
// primary (highest-scored) asset of each type takes the bare canonical name;
// the rest are numbered.
func (h *Handler) deployOne(ctx context.Context, entity *catalog.Entity, assetType catalog.AssetType, candidate *catalog.CandidateAsset, rank int) (bool, error) {
	entry, err := h.store.GetCacheEntry(ctx, candidate.ContentHash)
	if err != nil {
		return false, err
	}
	if entry == nil {
		h.logger.Warn("selected asset missing from cache, skipping",
			logging.String(logging.FieldEntityID, entity.ID),
			logging.String(logging.FieldAssetType, string(assetType)),
			logging.Int64("candidate_id", candidate.ID))
		return false, nil
	}

	source := h.cache.AbsolutePath(entry.StorageLocator)
	target := filepath.Join(entity.LibraryPath, targetName(assetType, filepath.Ext(source), rank))

	if !h.cfg.Library.OverwriteExisting {
		if same, err := matchesHash(target, candidate.ContentHash); err == nil && same {
			return false, nil
		} else if _, statErr := os.Stat(target); statErr == nil && !same {
			h.logger.Info("keeping existing artwork",
				logging.String("path", target))
			return false, nil
		}
	}

	if err := copyAtomic(source, target); err != nil {
		return false, wrapLibraryError("deploy "+string(assetType), err)
	}
	return true, nil
}

// targetName builds the deployed file name: poster.jpg, then poster-2.jpg and
// so on for additional selections of the same type.
func targetName(assetType catalog.AssetType, ext string, rank int) string {
	base, ok := baseNames[assetType]
	if !ok {
		base = string(assetType)
	}
	if rank == 0 {
		return base + ext
	}
	return fmt.Sprintf("%s-%d%s", base, rank+1, ext)
}

// copyAtomic writes target via a temp file in the same directory and renames
// it into place so players never observe a half-written image.
func copyAtomic(source, target string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	temp, err := os.CreateTemp(filepath.Dir(target), ".publish-*")
	if err != nil {
		return err
	}
	defer func() {
		temp.Close()
		os.Remove(temp.Name())
	}()

	if _, err := io.Copy(temp, in); err != nil {
		return err
	}
	if err := temp.Sync(); err != nil {
		return err
	}
	if err := temp.Close(); err != nil {
		return err
	}
	return os.Rename(temp.Name(), target)
}

// matchesHash reports whether the file at path already holds the expected
// content. A missing file is simply "no match".
func matchesHash(path, contentHash string) (bool, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer file.Close()

	digest := sha256.New()
	if _, err := io.Copy(digest, file); err != nil {
		return false, err
	}
	return hex.EncodeToString(digest.Sum(nil)) == contentHash, nil
}

func wrapLibraryError(operation string, err error) error {
	marker := services.ErrTransient
	if !isLibraryUnavailable(err) {
		marker = services.ErrValidation
	}
	return services.Wrap(marker, "publisher", operation, "library write failed", err)
}

func isLibraryUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if os.IsNotExist(err) || os.IsPermission(err) {
		return true
	}
	for _, target := range libraryUnavailableErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// displayTitle normalizes the entity title for logs and notifications.
func displayTitle(entity *catalog.Entity) string {
	title := strings.TrimSpace(entity.Title)
	if title == "" {
		title = filepath.Base(entity.LibraryPath)
	}
	if title == strings.ToLower(title) {
		return titleCaser.String(title)
	}
	return title
}

// Package assetcache materializes selected artwork in a content-addressed
// filesystem store. Bytes live at {asset_type}/{hash[0:2]}/{hash}{ext}, so
// identical artwork shared by several entities is stored exactly once.
package assetcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"curator/internal/catalog"
	"curator/internal/config"
	"curator/internal/logging"
	"curator/internal/services"
)

type statfsFunc func(path string) (freeBytes uint64, err error)

func realStatfs(dir string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// Manager owns the content-addressed artwork store and its catalog
// bookkeeping.
type Manager struct {
	store        *catalog.Store
	root         string
	httpClient   *http.Client
	minFreeBytes uint64
	statfs       statfsFunc
	logger       *slog.Logger
}

// New builds a cache manager rooted at the configured cache dir.
func New(cfg *config.Config, store *catalog.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		store:        store,
		root:         cfg.Paths.CacheDir,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		minFreeBytes: uint64(cfg.Cache.MinFreeGiB) << 30,
		statfs:       realStatfs,
		logger:       logger,
	}
}

// Locator returns the store-relative path for a content hash.
func Locator(assetType catalog.AssetType, contentHash, ext string) string {
	return path.Join(string(assetType), contentHash[:2], contentHash+ext)
}

// AbsolutePath resolves a storage locator against the cache root.
func (m *Manager) AbsolutePath(locator string) string {
	return filepath.Join(m.root, filepath.FromSlash(locator))
}

// Exists reports whether the bytes for a content hash are materialized.
func (m *Manager) Exists(ctx context.Context, contentHash string) (bool, error) {
	entry, err := m.store.GetCacheEntry(ctx, contentHash)
	if err != nil || entry == nil {
		return false, err
	}
	_, statErr := os.Stat(m.AbsolutePath(entry.StorageLocator))
	return statErr == nil, nil
}

// EnsureCached downloads every selected candidate whose bytes are not yet in
// the store. Writes are idempotent by hash: a candidate whose hash is already
// materialized is a check-then-skip, which is what lets concurrent jobs share
// the store without cross-job locks. A hash mismatch between the download and
// the analyzed hash aborts that one asset; nothing aborts the batch. Returns
// the number of newly cached assets.
func (m *Manager) EnsureCached(ctx context.Context, selected []*catalog.CandidateAsset) (int, error) {
	if len(selected) == 0 {
		return 0, nil
	}
	if err := m.preflight(); err != nil {
		return 0, err
	}

	cached := 0
	for _, candidate := range selected {
		if candidate.ContentHash == "" {
			continue
		}
		ok, err := m.Exists(ctx, candidate.ContentHash)
		if err != nil {
			return cached, err
		}
		if ok {
			continue
		}
		if err := m.cacheOne(ctx, candidate); err != nil {
			m.logger.Warn("cache asset failed",
				logging.String(logging.FieldEntityID, candidate.EntityID),
				logging.String("url", candidate.SourceURL),
				logging.Error(err))
			continue
		}
		cached++
	}
	return cached, nil
}

func (m *Manager) cacheOne(ctx context.Context, candidate *catalog.CandidateAsset) error {
	temp, err := os.CreateTemp(m.root, "cache-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := temp.Name()
	defer func() {
		_ = temp.Close()
		_ = os.Remove(tempPath)
	}()

	downloadedHash, err := m.download(ctx, candidate.SourceURL, temp)
	if err != nil {
		return err
	}
	if err := temp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	// The analyzer measured these bytes; a different hash now means the
	// provider served different content and the measurements no longer apply.
	if downloadedHash != candidate.ContentHash {
		return fmt.Errorf("hash mismatch: analyzed %s, downloaded %s", candidate.ContentHash, downloadedHash)
	}

	locator := Locator(candidate.AssetType, candidate.ContentHash, extensionFor(candidate.SourceURL))
	finalPath := m.AbsolutePath(locator)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("create cache bucket: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("move into cache: %w", err)
	}

	return m.store.UpsertCacheEntry(ctx, &catalog.CacheEntry{
		ContentHash:    candidate.ContentHash,
		PerceptualHash: candidate.PerceptualHash,
		AssetType:      candidate.AssetType,
		StorageLocator: locator,
		Width:          candidate.Width,
		Height:         candidate.Height,
	})
}

// Evict removes cache entries and bytes for hashes no selected candidate
// references anymore. The reference check spans every entity, not just the
// caller's, because different entities may share identical artwork. Returns
// the number of evicted hashes.
func (m *Manager) Evict(ctx context.Context, contentHashes []string) (int, error) {
	evicted := 0
	for _, contentHash := range contentHashes {
		if contentHash == "" {
			continue
		}
		references, err := m.store.CountSelectedByHash(ctx, contentHash)
		if err != nil {
			return evicted, err
		}
		if references > 0 {
			continue
		}

		entry, err := m.store.GetCacheEntry(ctx, contentHash)
		if err != nil {
			return evicted, err
		}
		if entry == nil {
			continue
		}
		if err := os.Remove(m.AbsolutePath(entry.StorageLocator)); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("evict bytes failed", logging.String("hash", contentHash), logging.Error(err))
			continue
		}
		if err := m.store.DeleteCacheEntry(ctx, contentHash); err != nil {
			return evicted, err
		}
		evicted++
	}
	return evicted, nil
}

func (m *Manager) preflight() error {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "assetcache", "preflight", "create cache root", err)
	}
	if m.minFreeBytes == 0 {
		return nil
	}
	free, err := m.statfs(m.root)
	if err != nil {
		return services.Wrap(services.ErrTransient, "assetcache", "preflight", "stat cache filesystem", err)
	}
	if free < m.minFreeBytes {
		return services.Wrap(services.ErrTransient, "assetcache", "preflight",
			fmt.Sprintf("cache filesystem below free-space floor (%d < %d bytes)", free, m.minFreeBytes), nil)
	}
	return nil
}

func (m *Manager) download(ctx context.Context, sourceURL string, w io.Writer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download asset: status %d", resp.StatusCode)
	}

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(w, hasher), resp.Body); err != nil {
		return "", fmt.Errorf("stream asset: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func extensionFor(sourceURL string) string {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return ".jpg"
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp":
		return ext
	default:
		return ".jpg"
	}
}

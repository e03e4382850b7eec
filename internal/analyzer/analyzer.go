// Package analyzer measures candidate artwork: true pixel dimensions, a
// SHA-256 content hash, and a 64-bit perceptual hash. Downloads fan out with
// bounded concurrency and every transient file is removed on every exit path.
package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/corona10/goimagehash"
	"golang.org/x/sync/errgroup"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"curator/internal/catalog"
	"curator/internal/config"
	"curator/internal/logging"
)

// transientPrefix marks in-flight downloads so the crash-recovery sweep can
// tell them apart from anything else in the staging dir.
const transientPrefix = "analyze-"

// Analyzer downloads and measures candidate artwork.
type Analyzer struct {
	store         *catalog.Store
	httpClient    *http.Client
	stagingDir    string
	maxConcurrent int
	maxAttempts   int
	logger        *slog.Logger
}

// New builds an analyzer from configuration.
func New(cfg *config.Config, store *catalog.Store, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := time.Duration(cfg.Analyzer.DownloadTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxConcurrent := cfg.Analyzer.MaxConcurrentDownloads
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	maxAttempts := cfg.Analyzer.MaxDownloadAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Analyzer{
		store:         store,
		httpClient:    &http.Client{Timeout: timeout},
		stagingDir:    cfg.Paths.StagingDir,
		maxConcurrent: maxConcurrent,
		maxAttempts:   maxAttempts,
		logger:        logger,
	}
}

// AnalyzeBatch measures every candidate concurrently, bounded by the
// configured download cap. A candidate that keeps failing is marked rejected
// and skipped by scoring; it never aborts the rest of the batch. The returned
// error is only ever a context cancellation.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, candidates []*catalog.CandidateAsset) error {
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(a.maxConcurrent)

	for _, candidate := range candidates {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a.analyzeWithRetries(ctx, candidate)
			return nil
		})
	}
	return group.Wait()
}

func (a *Analyzer) analyzeWithRetries(ctx context.Context, candidate *catalog.CandidateAsset) {
	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		measured, err := a.analyzeOne(ctx, candidate)
		if err == nil {
			if saveErr := a.store.SaveAnalysis(ctx, candidate.ID, measured.width, measured.height, measured.contentHash, measured.perceptualHash); saveErr != nil {
				a.logger.Error("persist analysis failed",
					logging.String(logging.FieldEntityID, candidate.EntityID),
					logging.Error(saveErr))
				return
			}
			candidate.Analyzed = true
			candidate.Width = measured.width
			candidate.Height = measured.height
			candidate.ContentHash = measured.contentHash
			candidate.PerceptualHash = measured.perceptualHash
			return
		}
		lastErr = err
		if ctx.Err() != nil {
			return
		}
	}

	a.logger.Warn("candidate unanalyzable",
		logging.String(logging.FieldEntityID, candidate.EntityID),
		logging.String("url", candidate.SourceURL),
		logging.Int("attempts", a.maxAttempts),
		logging.Error(lastErr))
	if err := a.store.MarkRejected(ctx, candidate.ID); err != nil {
		a.logger.Error("mark rejected failed", logging.Error(err))
	}
}

type measurement struct {
	width          int
	height         int
	contentHash    string
	perceptualHash string
}

func (a *Analyzer) analyzeOne(ctx context.Context, candidate *catalog.CandidateAsset) (*measurement, error) {
	file, err := os.CreateTemp(a.stagingDir, transientPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("create transient file: %w", err)
	}
	path := file.Name()
	defer func() {
		_ = file.Close()
		_ = os.Remove(path)
	}()

	contentHash, err := a.download(ctx, candidate.SourceURL, file)
	if err != nil {
		return nil, err
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind transient file: %w", err)
	}
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	perceptual, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil, fmt.Errorf("perceptual hash: %w", err)
	}

	bounds := img.Bounds()
	return &measurement{
		width:          bounds.Dx(),
		height:         bounds.Dy(),
		contentHash:    contentHash,
		perceptualHash: fmt.Sprintf("%016x", perceptual.GetHash()),
	}, nil
}

// download streams the asset to w and returns its SHA-256 hex digest.
func (a *Analyzer) download(ctx context.Context, sourceURL string, w io.Writer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
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

// SweepTransient removes analyze files older than the threshold. Normal runs
// delete their own files; this catches leftovers of a crashed worker.
func (a *Analyzer) SweepTransient(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(a.stagingDir)
	if err != nil {
		return 0, fmt.Errorf("read staging dir: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), transientPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(a.stagingDir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

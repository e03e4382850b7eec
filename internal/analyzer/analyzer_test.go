package analyzer_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"curator/internal/analyzer"
	"curator/internal/catalog"
	"curator/internal/testsupport"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestAnalyzeBatchMeasuresCandidates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	entity := testsupport.MustUpsertEntity(t, store, cfg, "Measured")

	imageBytes := encodePNG(t, 60, 90)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "missing.png") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(imageBytes)
	}))
	defer server.Close()

	ctx := context.Background()
	batch := []*catalog.CandidateAsset{
		{EntityID: entity.ID, AssetType: catalog.AssetPoster, Provider: "tmdb", SourceURL: server.URL + "/good.png"},
		{EntityID: entity.ID, AssetType: catalog.AssetPoster, Provider: "tmdb", SourceURL: server.URL + "/missing.png"},
	}
	if _, err := store.UpsertCandidates(ctx, batch); err != nil {
		t.Fatal(err)
	}
	candidates, err := store.CandidatesFor(ctx, entity.ID, catalog.AssetPoster)
	if err != nil {
		t.Fatal(err)
	}

	a := analyzer.New(cfg, store, nil)
	if err := a.AnalyzeBatch(ctx, candidates); err != nil {
		t.Fatalf("AnalyzeBatch failed: %v", err)
	}

	refreshed, err := store.CandidatesFor(ctx, entity.ID, catalog.AssetPoster)
	if err != nil {
		t.Fatal(err)
	}

	good := refreshed[0]
	if !good.Analyzed {
		t.Fatal("expected good candidate analyzed")
	}
	if good.Width != 60 || good.Height != 90 {
		t.Fatalf("expected 60x90, got %dx%d", good.Width, good.Height)
	}
	if len(good.ContentHash) != 64 {
		t.Fatalf("expected sha-256 hex hash, got %q", good.ContentHash)
	}
	if len(good.PerceptualHash) != 16 {
		t.Fatalf("expected 16-char perceptual hash, got %q", good.PerceptualHash)
	}

	bad := refreshed[1]
	if !bad.IsRejected {
		t.Fatal("expected failing candidate marked rejected")
	}
	if bad.Analyzed {
		t.Fatal("rejected candidate must not be analyzed")
	}

	// Transient files are gone on every exit path.
	entries, err := os.ReadDir(cfg.Paths.StagingDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "analyze-") {
			t.Fatalf("leftover transient file %s", entry.Name())
		}
	}
}

func TestAnalyzeIdenticalBytesShareContentHash(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	entity := testsupport.MustUpsertEntity(t, store, cfg, "Shared")

	imageBytes := encodePNG(t, 40, 40)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(imageBytes)
	}))
	defer server.Close()

	ctx := context.Background()
	batch := []*catalog.CandidateAsset{
		{EntityID: entity.ID, AssetType: catalog.AssetBackdrop, Provider: "tmdb", SourceURL: server.URL + "/a.png"},
		{EntityID: entity.ID, AssetType: catalog.AssetBackdrop, Provider: "fanart", SourceURL: server.URL + "/b.png"},
	}
	if _, err := store.UpsertCandidates(ctx, batch); err != nil {
		t.Fatal(err)
	}
	candidates, err := store.CandidatesFor(ctx, entity.ID, catalog.AssetBackdrop)
	if err != nil {
		t.Fatal(err)
	}

	a := analyzer.New(cfg, store, nil)
	if err := a.AnalyzeBatch(ctx, candidates); err != nil {
		t.Fatal(err)
	}

	refreshed, err := store.CandidatesFor(ctx, entity.ID, catalog.AssetBackdrop)
	if err != nil {
		t.Fatal(err)
	}
	if refreshed[0].ContentHash != refreshed[1].ContentHash {
		t.Fatal("identical bytes must hash identically")
	}
	if refreshed[0].PerceptualHash != refreshed[1].PerceptualHash {
		t.Fatal("identical images must share a perceptual hash")
	}
}

func TestSweepTransientRemovesStaleFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)

	stale := filepath.Join(cfg.Paths.StagingDir, "analyze-stale")
	if err := os.WriteFile(stale, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	fresh := filepath.Join(cfg.Paths.StagingDir, "analyze-fresh")
	if err := os.WriteFile(fresh, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	unrelated := filepath.Join(cfg.Paths.StagingDir, "keep.txt")
	if err := os.WriteFile(unrelated, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(unrelated, old, old); err != nil {
		t.Fatal(err)
	}

	a := analyzer.New(cfg, store, nil)
	removed, err := a.SweepTransient(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 file swept, got %d", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("stale transient file must be gone")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatal("fresh transient file must survive")
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Fatal("unrelated file must survive")
	}
}

package enrichment

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"curator/internal/analyzer"
	"curator/internal/assetcache"
	"curator/internal/catalog"
	"curator/internal/config"
	"curator/internal/logging"
	"curator/internal/notifications"
	"curator/internal/providers"
	"curator/internal/queue"
	"curator/internal/scoring"
	"curator/internal/services"
	"curator/internal/testsupport"
)

type stubFetcher struct {
	result *providers.FetchResult
	err    error
	calls  int
}

func (s *stubFetcher) Fetch(_ context.Context, _ *catalog.Entity) (*providers.FetchResult, error) {
	s.calls++
	return s.result, s.err
}

func encodePNG(t *testing.T, width, height int, fill color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestHandler(t *testing.T, cfg *config.Config, store *catalog.Store, fetch fetcher) *Handler {
	t.Helper()
	logger := logging.NewNop()
	return &Handler{
		cfg:      cfg,
		store:    store,
		fetcher:  fetch,
		analyzer: analyzer.New(cfg, store, logger),
		engine:   scoring.NewEngine(cfg.Providers.Language, map[string]int{"tmdb": 1}),
		cache:    assetcache.New(cfg, store, logger),
		notifier: notifications.NewService(cfg, logger),
		logger:   logger,
	}
}

func enrichJob(t *testing.T, entity *catalog.Entity) *queue.Job {
	t.Helper()
	payload, err := queue.EncodePayload(queue.EnrichPayload{EntityID: entity.ID, EntityType: string(entity.Type)})
	if err != nil {
		t.Fatal(err)
	}
	return &queue.Job{ID: 1, Type: queue.TypeEnrich, Payload: payload}
}

func TestExecuteSelectsAndCachesBestCandidate(t *testing.T) {
	big := encodePNG(t, 200, 300, color.RGBA{R: 200, A: 255})
	small := encodePNG(t, 20, 30, color.RGBA{B: 200, A: 255})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/big.png":
			w.Write(big)
		case "/small.png":
			w.Write(small)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Selection.MaxPosters = 1
	cfg.Cache.MinFreeGiB = 0
	store := testsupport.MustOpenCatalog(t, cfg)
	entity := testsupport.MustUpsertEntity(t, store, cfg, "Arrival")

	fetch := &stubFetcher{result: &providers.FetchResult{Candidates: []*catalog.CandidateAsset{
		{EntityID: entity.ID, AssetType: catalog.AssetPoster, Provider: "tmdb", SourceURL: server.URL + "/big.png", Language: "en"},
		{EntityID: entity.ID, AssetType: catalog.AssetPoster, Provider: "tmdb", SourceURL: server.URL + "/small.png", Language: "en"},
	}}}
	handler := newTestHandler(t, cfg, store, fetch)

	ctx := context.Background()
	if err := handler.Execute(ctx, enrichJob(t, entity)); err != nil {
		t.Fatalf("execute: %v", err)
	}

	selected, err := store.SelectedCandidates(ctx, entity.ID, catalog.AssetPoster)
	if err != nil {
		t.Fatal(err)
	}
	if len(selected) != 1 {
		t.Fatalf("expected 1 selected poster, got %d", len(selected))
	}
	if selected[0].SourceURL != server.URL+"/big.png" {
		t.Fatalf("expected the larger poster to win, got %s", selected[0].SourceURL)
	}
	if selected[0].SelectedBy != catalog.SelectedByAuto {
		t.Fatalf("expected auto selection, got %q", selected[0].SelectedBy)
	}

	entry, err := store.GetCacheEntry(ctx, selected[0].ContentHash)
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil {
		t.Fatal("winner missing from cache index")
	}
	cache := assetcache.New(cfg, store, nil)
	if _, err := os.Stat(cache.AbsolutePath(entry.StorageLocator)); err != nil {
		t.Fatalf("cached bytes missing: %v", err)
	}
}

func TestExecuteSecondPassIsIdempotent(t *testing.T) {
	art := encodePNG(t, 200, 300, color.RGBA{G: 180, A: 255})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(art)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Cache.MinFreeGiB = 0
	store := testsupport.MustOpenCatalog(t, cfg)
	entity := testsupport.MustUpsertEntity(t, store, cfg, "Arrival")

	fetch := &stubFetcher{result: &providers.FetchResult{Candidates: []*catalog.CandidateAsset{
		{EntityID: entity.ID, AssetType: catalog.AssetPoster, Provider: "tmdb", SourceURL: server.URL + "/poster.png"},
	}}}
	handler := newTestHandler(t, cfg, store, fetch)

	ctx := context.Background()
	job := enrichJob(t, entity)
	if err := handler.Execute(ctx, job); err != nil {
		t.Fatal(err)
	}
	first, err := store.SelectedCandidates(ctx, entity.ID, catalog.AssetPoster)
	if err != nil {
		t.Fatal(err)
	}

	if err := handler.Execute(ctx, job); err != nil {
		t.Fatal(err)
	}
	second, err := store.SelectedCandidates(ctx, entity.ID, catalog.AssetPoster)
	if err != nil {
		t.Fatal(err)
	}

	if len(first) != 1 || len(second) != 1 || first[0].ID != second[0].ID {
		t.Fatalf("selection drifted across identical passes: %v vs %v", first, second)
	}
	if fetch.calls != 2 {
		t.Fatalf("expected a provider fetch per pass, got %d", fetch.calls)
	}
}

func TestExecuteRespectsLockedAssetType(t *testing.T) {
	art := encodePNG(t, 200, 300, color.RGBA{R: 90, A: 255})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(art)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Cache.MinFreeGiB = 0
	store := testsupport.MustOpenCatalog(t, cfg)
	entity := testsupport.MustUpsertEntity(t, store, cfg, "Arrival")

	ctx := context.Background()
	if err := store.SetLock(ctx, entity.ID, catalog.AssetPoster, true); err != nil {
		t.Fatal(err)
	}

	fetch := &stubFetcher{result: &providers.FetchResult{Candidates: []*catalog.CandidateAsset{
		{EntityID: entity.ID, AssetType: catalog.AssetPoster, Provider: "tmdb", SourceURL: server.URL + "/poster.png"},
	}}}
	handler := newTestHandler(t, cfg, store, fetch)

	if err := handler.Execute(ctx, enrichJob(t, entity)); err != nil {
		t.Fatal(err)
	}
	selected, err := store.SelectedCandidates(ctx, entity.ID, catalog.AssetPoster)
	if err != nil {
		t.Fatal(err)
	}
	if len(selected) != 0 {
		t.Fatal("locked asset type must not gain an automatic selection")
	}
}

func TestExecuteUnknownEntityIsValidationError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	handler := newTestHandler(t, cfg, store, &stubFetcher{result: &providers.FetchResult{}})

	payload, err := queue.EncodePayload(queue.EnrichPayload{EntityID: "missing", EntityType: "movie"})
	if err != nil {
		t.Fatal(err)
	}
	job := &queue.Job{ID: 1, Type: queue.TypeEnrich, Payload: payload}

	err = handler.Execute(context.Background(), job)
	if err == nil {
		t.Fatal("expected error for unknown entity")
	}
	if services.IsRecoverable(err) {
		t.Fatal("unknown entity must be terminal, not retried")
	}
}

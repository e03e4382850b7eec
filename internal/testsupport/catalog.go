package testsupport

import (
	"context"
	"testing"

	"curator/internal/catalog"
	"curator/internal/config"
)

// MustOpenCatalog opens a catalog store against the test config and registers
// cleanup.
func MustOpenCatalog(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()
	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("open catalog store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close catalog store: %v", err)
		}
	})
	return store
}

// MustUpsertEntity creates a movie entity rooted in the test library dir.
func MustUpsertEntity(t testing.TB, store *catalog.Store, cfg *config.Config, title string) *catalog.Entity {
	t.Helper()
	entity, err := store.UpsertEntity(context.Background(), catalog.EntityMovie, title, 2020, cfg.Paths.LibraryDir+"/"+title)
	if err != nil {
		t.Fatalf("upsert entity %q: %v", title, err)
	}
	return entity
}

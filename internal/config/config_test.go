package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"curator/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("TMDB_API_KEY", "tmdb-key")
	t.Setenv("FANART_API_KEY", "fanart-key")

	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected missing config file")
	}
	if cfg.Workflow.Workers != 3 {
		t.Fatalf("unexpected default workers: %d", cfg.Workflow.Workers)
	}
	if cfg.Providers.TMDB.APIKey != "tmdb-key" {
		t.Fatalf("expected env api key, got %q", cfg.Providers.TMDB.APIKey)
	}
	if !cfg.Stages.Enrich {
		t.Fatal("expected enrich stage enabled by default")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("TMDB_API_KEY", "tmdb-key")
	t.Setenv("FANART_API_KEY", "fanart-key")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
library_dir = "` + filepath.Join(dir, "library") + `"

[selection]
max_posters = 5
similarity_threshold = 0.85

[stages]
publish = false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: exists=%v path=%s", exists, resolved)
	}
	if cfg.Selection.MaxPosters != 5 {
		t.Fatalf("override not applied: %d", cfg.Selection.MaxPosters)
	}
	if cfg.Selection.SimilarityThreshold != 0.85 {
		t.Fatalf("threshold override not applied: %v", cfg.Selection.SimilarityThreshold)
	}
	if cfg.Stages.Publish {
		t.Fatal("expected publish stage disabled")
	}
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.Providers.TMDB.APIKey = "k"
	cfg.Providers.Fanart.APIKey = "k"
	cfg.Selection.SimilarityThreshold = 1.5
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "similarity_threshold") {
		t.Fatalf("expected threshold error, got %v", err)
	}
}

func TestValidateRequiresProviderKey(t *testing.T) {
	cfg := config.Default()
	cfg.Providers.TMDB.Enabled = true
	cfg.Providers.TMDB.APIKey = ""
	cfg.Providers.Fanart.Enabled = false
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for missing api key")
	}
}

package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.LibraryDir) == "" {
		problems = append(problems, "paths.library_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		problems = append(problems, "paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		problems = append(problems, "paths.cache_dir must be set")
	}
	if c.Stages.Enrich && !c.Providers.TMDB.Enabled && !c.Providers.Fanart.Enabled {
		problems = append(problems, "stages.enrich requires at least one enabled provider")
	}
	if c.Providers.TMDB.Enabled && strings.TrimSpace(c.Providers.TMDB.APIKey) == "" {
		problems = append(problems, "providers.tmdb.api_key must be set when tmdb is enabled (or export TMDB_API_KEY)")
	}
	if c.Providers.Fanart.Enabled && strings.TrimSpace(c.Providers.Fanart.APIKey) == "" {
		problems = append(problems, "providers.fanart.api_key must be set when fanart is enabled (or export FANART_API_KEY)")
	}
	if c.Selection.SimilarityThreshold < 0 || c.Selection.SimilarityThreshold > 1 {
		problems = append(problems, "selection.similarity_threshold must be between 0 and 1")
	}
	if c.Selection.MaxPosters < 1 || c.Selection.MaxBackdrops < 1 || c.Selection.MaxLogos < 1 {
		problems = append(problems, "selection limits must be at least 1")
	}
	if c.Players.Plex.Enabled && strings.TrimSpace(c.Players.Plex.URL) == "" {
		problems = append(problems, "players.plex.url must be set when plex is enabled")
	}
	if c.Players.Jellyfin.Enabled && strings.TrimSpace(c.Players.Jellyfin.URL) == "" {
		problems = append(problems, "players.jellyfin.url must be set when jellyfin is enabled")
	}

	if len(problems) == 0 {
		return nil
	}
	if len(problems) == 1 {
		return errors.New(problems[0])
	}
	return fmt.Errorf("configuration invalid:\n  - %s", strings.Join(problems, "\n  - "))
}

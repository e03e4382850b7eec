package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LibraryDir string `toml:"library_dir"`
	CacheDir   string `toml:"cache_dir"`
	LogDir     string `toml:"log_dir"`
}

// Library contains configuration for the player-visible library layout.
type Library struct {
	MoviesDir         string `toml:"movies_dir"`
	TVDir             string `toml:"tv_dir"`
	OverwriteExisting bool   `toml:"overwrite_existing"`
}

// Provider contains connection settings for one external metadata catalog.
type Provider struct {
	Enabled  bool   `toml:"enabled"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
	Priority int    `toml:"priority"`
}

// Providers contains configuration for external metadata catalogs.
type Providers struct {
	Language          string   `toml:"language"`
	RequestTimeout    int      `toml:"request_timeout"`
	WindowSeconds     int      `toml:"rate_window_seconds"`
	WindowLimit       int      `toml:"rate_window_limit"`
	BackoffCapSeconds int      `toml:"backoff_cap_seconds"`
	TMDB              Provider `toml:"tmdb"`
	Fanart            Provider `toml:"fanart"`
}

// Analyzer contains configuration for candidate asset analysis.
type Analyzer struct {
	MaxConcurrentDownloads int `toml:"max_concurrent_downloads"`
	DownloadTimeout        int `toml:"download_timeout"`
	MaxDownloadAttempts    int `toml:"max_download_attempts"`
}

// Selection contains configuration for artwork selection.
type Selection struct {
	MaxPosters          int     `toml:"max_posters"`
	MaxBackdrops        int     `toml:"max_backdrops"`
	MaxLogos            int     `toml:"max_logos"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
}

// Cache contains configuration for the content-addressed artwork cache.
type Cache struct {
	MinFreeGiB int `toml:"min_free_gib"`
}

// Stages toggles individual phases of the workflow chain.
type Stages struct {
	Scan    bool `toml:"scan"`
	Enrich  bool `toml:"enrich"`
	Publish bool `toml:"publish"`
	Sync    bool `toml:"sync"`
}

// Plex contains configuration for Plex Media Server integration.
type Plex struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	Token   string `toml:"token"`
}

// Jellyfin contains configuration for Jellyfin Media Server integration.
type Jellyfin struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	APIKey  string `toml:"api_key"`
}

// Players groups playback server integrations notified during the sync stage.
type Players struct {
	Plex     Plex     `toml:"plex"`
	Jellyfin Jellyfin `toml:"jellyfin"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Queue          bool   `toml:"queue"`
	Enrichment     bool   `toml:"enrichment"`
	Errors         bool   `toml:"errors"`
}

// Workflow contains configuration for worker timing and retry policy.
type Workflow struct {
	Workers                 int    `toml:"workers"`
	QueuePollInterval       int    `toml:"queue_poll_interval"`
	HeartbeatInterval       int    `toml:"heartbeat_interval"`
	HeartbeatTimeout        int    `toml:"heartbeat_timeout"`
	MaxRetries              int    `toml:"max_retries"`
	RetryBackoffBaseSeconds int    `toml:"retry_backoff_base_seconds"`
	RetryBackoffCapSeconds  int    `toml:"retry_backoff_cap_seconds"`
	CompletedRetentionDays  int    `toml:"completed_retention_days"`
	ScanSchedule            string `toml:"scan_schedule"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config is the root configuration for curator.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Library       Library       `toml:"library"`
	Providers     Providers     `toml:"providers"`
	Analyzer      Analyzer      `toml:"analyzer"`
	Selection     Selection     `toml:"selection"`
	Cache         Cache         `toml:"cache"`
	Stages        Stages        `toml:"stages"`
	Players       Players       `toml:"players"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/curator/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("curator.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// WriteSample writes the embedded sample configuration to the provided path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates required directories for daemon operation.
// LibraryDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.CacheDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LibraryDir) != "" {
		// Best-effort to avoid failing config load when storage is offline.
		_ = os.MkdirAll(c.Paths.LibraryDir, 0o755)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

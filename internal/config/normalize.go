package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeProviders()
	c.normalizePlayers()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeProviders() {
	c.Providers.Language = strings.ToLower(strings.TrimSpace(c.Providers.Language))
	if c.Providers.Language == "" {
		c.Providers.Language = defaultProviderLanguage
	}
	if c.Providers.RequestTimeout <= 0 {
		c.Providers.RequestTimeout = defaultRequestTimeout
	}
	if c.Providers.WindowSeconds <= 0 {
		c.Providers.WindowSeconds = defaultRateWindowSeconds
	}
	if c.Providers.WindowLimit <= 0 {
		c.Providers.WindowLimit = defaultRateWindowLimit
	}
	if c.Providers.BackoffCapSeconds <= 0 {
		c.Providers.BackoffCapSeconds = defaultBackoffCapSeconds
	}

	if c.Providers.TMDB.APIKey == "" {
		if value, ok := os.LookupEnv("TMDB_API_KEY"); ok {
			c.Providers.TMDB.APIKey = strings.TrimSpace(value)
		}
	}
	c.Providers.TMDB.BaseURL = strings.TrimSpace(c.Providers.TMDB.BaseURL)
	if c.Providers.TMDB.BaseURL == "" {
		c.Providers.TMDB.BaseURL = defaultTMDBBaseURL
	}

	if c.Providers.Fanart.APIKey == "" {
		if value, ok := os.LookupEnv("FANART_API_KEY"); ok {
			c.Providers.Fanart.APIKey = strings.TrimSpace(value)
		}
	}
	c.Providers.Fanart.BaseURL = strings.TrimSpace(c.Providers.Fanart.BaseURL)
	if c.Providers.Fanart.BaseURL == "" {
		c.Providers.Fanart.BaseURL = defaultFanartBaseURL
	}
}

func (c *Config) normalizePlayers() {
	c.Players.Plex.URL = strings.TrimSpace(c.Players.Plex.URL)
	c.Players.Plex.Token = strings.TrimSpace(c.Players.Plex.Token)
	if c.Players.Plex.Token == "" {
		if value, ok := os.LookupEnv("PLEX_TOKEN"); ok {
			c.Players.Plex.Token = strings.TrimSpace(value)
		}
	}
	c.Players.Jellyfin.URL = strings.TrimSpace(c.Players.Jellyfin.URL)
	c.Players.Jellyfin.APIKey = strings.TrimSpace(c.Players.Jellyfin.APIKey)
	if c.Players.Jellyfin.APIKey == "" {
		if value, ok := os.LookupEnv("JELLYFIN_API_KEY"); ok {
			c.Players.Jellyfin.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.Workers <= 0 {
		c.Workflow.Workers = defaultWorkers
	}
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		c.Workflow.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if c.Workflow.MaxRetries < 0 {
		c.Workflow.MaxRetries = defaultMaxRetries
	}
	if c.Workflow.RetryBackoffBaseSeconds <= 0 {
		c.Workflow.RetryBackoffBaseSeconds = defaultBackoffBaseSeconds
	}
	if c.Workflow.RetryBackoffCapSeconds < c.Workflow.RetryBackoffBaseSeconds {
		c.Workflow.RetryBackoffCapSeconds = defaultRetryCapSeconds
	}
	if c.Workflow.CompletedRetentionDays <= 0 {
		c.Workflow.CompletedRetentionDays = defaultRetentionDays
	}
	c.Workflow.ScanSchedule = strings.TrimSpace(c.Workflow.ScanSchedule)
	if c.Workflow.ScanSchedule == "" {
		c.Workflow.ScanSchedule = defaultScanSchedule
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = defaultLogRetentionDays
	}
}

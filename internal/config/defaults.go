package config

const (
	defaultStagingDir          = "~/.local/share/curator/staging"
	defaultLibraryDir          = "~/library"
	defaultCacheDir            = "~/.local/share/curator/cache"
	defaultLogDir              = "~/.local/share/curator/logs"
	defaultMoviesDir           = "movies"
	defaultTVDir               = "tv"
	defaultProviderLanguage    = "en"
	defaultTMDBBaseURL         = "https://api.themoviedb.org/3"
	defaultFanartBaseURL       = "https://webservice.fanart.tv/v3"
	defaultRequestTimeout      = 15
	defaultRateWindowSeconds   = 10
	defaultRateWindowLimit     = 35
	defaultBackoffCapSeconds   = 120
	defaultMaxDownloads        = 10
	defaultDownloadTimeout     = 60
	defaultDownloadAttempts    = 3
	defaultMaxPosters          = 3
	defaultMaxBackdrops        = 3
	defaultMaxLogos            = 1
	defaultSimilarityThreshold = 0.90
	defaultMinFreeGiB          = 2
	defaultWorkers             = 3
	defaultQueuePollInterval   = 5
	defaultHeartbeatInterval   = 15
	defaultHeartbeatTimeout    = 120
	defaultMaxRetries          = 3
	defaultBackoffBaseSeconds  = 30
	defaultRetryCapSeconds     = 3600
	defaultRetentionDays       = 7
	defaultScanSchedule        = "@every 6h"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LibraryDir: defaultLibraryDir,
			CacheDir:   defaultCacheDir,
			LogDir:     defaultLogDir,
		},
		Library: Library{
			MoviesDir: defaultMoviesDir,
			TVDir:     defaultTVDir,
		},
		Providers: Providers{
			Language:          defaultProviderLanguage,
			RequestTimeout:    defaultRequestTimeout,
			WindowSeconds:     defaultRateWindowSeconds,
			WindowLimit:       defaultRateWindowLimit,
			BackoffCapSeconds: defaultBackoffCapSeconds,
			TMDB: Provider{
				Enabled:  true,
				BaseURL:  defaultTMDBBaseURL,
				Priority: 2,
			},
			Fanart: Provider{
				Enabled:  true,
				BaseURL:  defaultFanartBaseURL,
				Priority: 1,
			},
		},
		Analyzer: Analyzer{
			MaxConcurrentDownloads: defaultMaxDownloads,
			DownloadTimeout:        defaultDownloadTimeout,
			MaxDownloadAttempts:    defaultDownloadAttempts,
		},
		Selection: Selection{
			MaxPosters:          defaultMaxPosters,
			MaxBackdrops:        defaultMaxBackdrops,
			MaxLogos:            defaultMaxLogos,
			SimilarityThreshold: defaultSimilarityThreshold,
		},
		Cache: Cache{
			MinFreeGiB: defaultMinFreeGiB,
		},
		Stages: Stages{
			Scan:    true,
			Enrich:  true,
			Publish: true,
			Sync:    true,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Queue:          true,
			Enrichment:     true,
			Errors:         true,
		},
		Workflow: Workflow{
			Workers:                 defaultWorkers,
			QueuePollInterval:       defaultQueuePollInterval,
			HeartbeatInterval:       defaultHeartbeatInterval,
			HeartbeatTimeout:        defaultHeartbeatTimeout,
			MaxRetries:              defaultMaxRetries,
			RetryBackoffBaseSeconds: defaultBackoffBaseSeconds,
			RetryBackoffCapSeconds:  defaultRetryCapSeconds,
			CompletedRetentionDays:  defaultRetentionDays,
			ScanSchedule:            defaultScanSchedule,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

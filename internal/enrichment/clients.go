package enrichment

import (
	"log/slog"
	"time"

	"curator/internal/config"
	"curator/internal/logging"
	"curator/internal/providers"
	"curator/internal/providers/fanart"
	"curator/internal/providers/ratelimit"
	"curator/internal/providers/tmdb"
	"curator/internal/services"
)

// buildClients assembles the provider clients enabled in the config. fanart.tv
// keys artwork by TMDB id, so its client needs a TMDB resolver even when the
// TMDB artwork provider itself is disabled; without TMDB credentials fanart is
// skipped with a warning rather than failing the stage.
func buildClients(cfg *config.Config, logger *slog.Logger) ([]providers.Client, error) {
	timeout := time.Duration(cfg.Providers.RequestTimeout) * time.Second

	var tmdbClient *tmdb.Client
	if cfg.Providers.TMDB.APIKey != "" {
		var err error
		tmdbClient, err = tmdb.New(cfg.Providers.TMDB.APIKey, cfg.Providers.TMDB.BaseURL, cfg.Providers.Language, timeout)
		if err != nil {
			return nil, err
		}
	}

	var clients []providers.Client
	if cfg.Providers.TMDB.Enabled {
		if tmdbClient == nil {
			return nil, services.Wrap(services.ErrConfiguration, "enrichment", "build-clients", "tmdb enabled without api key", nil)
		}
		clients = append(clients, tmdbClient)
	}
	if cfg.Providers.Fanart.Enabled {
		switch {
		case cfg.Providers.Fanart.APIKey == "":
			return nil, services.Wrap(services.ErrConfiguration, "enrichment", "build-clients", "fanart enabled without api key", nil)
		case tmdbClient == nil:
			logger.Warn("fanart.tv requires a TMDB key for id resolution; skipping provider",
				logging.String(logging.FieldProvider, "fanart"))
		default:
			fanartClient, err := fanart.New(cfg.Providers.Fanart.APIKey, cfg.Providers.Fanart.BaseURL, tmdbClient.ResolveID, timeout)
			if err != nil {
				return nil, err
			}
			clients = append(clients, fanartClient)
		}
	}
	return clients, nil
}

func buildLimiters(cfg *config.Config) *ratelimit.Registry {
	return ratelimit.NewRegistry(
		cfg.Providers.WindowLimit,
		time.Duration(cfg.Providers.WindowSeconds)*time.Second,
		time.Second,
		time.Duration(cfg.Providers.BackoffCapSeconds)*time.Second,
	)
}

package replenish

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuebox/internal/app/filter"
	"github.com/osa030/cuebox/internal/infra/config"
)

// NewReplenisherFromConfig creates a replenisher from configuration.
// Duplicate checks run against queue.
func NewReplenisherFromConfig(cfg *config.Config, catalog Catalog, queue filter.QueueSource) (*Replenisher, error) {
	if len(cfg.Replenish.Providers) == 0 {
		return nil, errors.New("no recommendation providers configured")
	}

	providers := make([]Provider, 0, len(cfg.Replenish.Providers))
	for i, pcfg := range cfg.Replenish.Providers {
		var provider Provider
		var err error
		zlog.Debug().Msgf("creating provider: index=%d type=%s", i+1, pcfg.Type)
		switch pcfg.Type {
		case "spotify":
			provider, err = NewRecommendationProvider(catalog, pcfg.Settings)

		case "lastfm":
			provider, err = NewLastFmProvider(catalog, pcfg.Settings)

		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", pcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
		}

		providers = append(providers, provider)
		zlog.Info().Msgf("registered provider: index=%d type=%s", i+1, pcfg.Type)
	}

	filters, err := filter.NewChainFromConfig(cfg, filter.Deps{
		Queue:  queue,
		Market: cfg.Spotify.Market,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create filter chain")
	}

	return NewReplenisher(providers, filters, cfg.Playback.RecommendationLimit), nil
}

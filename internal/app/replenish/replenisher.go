package replenish

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuebox/internal/domain/failure"
	"github.com/osa030/cuebox/internal/domain/track"
)

// CandidateFilter narrows provider candidates down to queueable tracks.
type CandidateFilter interface {
	Apply(ctx context.Context, candidates []track.Track) []track.Track
}

// Replenisher tries providers in order until one yields tracks that pass
// the filters.
type Replenisher struct {
	providers []Provider
	filters   CandidateFilter
	limit     int
}

// NewReplenisher creates a new Replenisher. filters may be nil.
func NewReplenisher(providers []Provider, filters CandidateFilter, limit int) *Replenisher {
	if limit <= 0 {
		limit = 20
	}
	return &Replenisher{
		providers: providers,
		filters:   filters,
		limit:     limit,
	}
}

// Recommend returns tracks to queue after seed. It fails with
// failure.ErrRecommendationFetchFailed only when every provider fails;
// a provider that succeeds with nothing usable yields an empty result.
func (r *Replenisher) Recommend(ctx context.Context, seed track.Track) ([]track.Track, error) {
	if len(r.providers) == 0 {
		return nil, failure.Mark(errors.New("no recommendation providers configured"), failure.ErrRecommendationFetchFailed)
	}

	var errs error
	succeeded := false
	for i, p := range r.providers {
		zlog.Debug().Msgf("trying provider: index=%d total=%d name=%s seed=%s",
			i+1, len(r.providers), p.Name(), seed.ID)

		candidates, err := p.GetCandidates(ctx, seed, r.limit)
		if err != nil {
			zlog.Warn().Msgf("provider failed, trying next: provider=%s error=%v", p.Name(), err)
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "provider %s", p.Name()))
			continue
		}
		succeeded = true

		if r.filters != nil {
			candidates = r.filters.Apply(ctx, candidates)
		}
		if len(candidates) == 0 {
			zlog.Debug().Msgf("provider returned no usable candidates: provider=%s", p.Name())
			continue
		}

		zlog.Info().Msgf("provider returned candidates: provider=%s count=%d", p.Name(), len(candidates))
		return candidates, nil
	}

	if !succeeded {
		return nil, failure.Mark(errors.Wrap(errs, "all providers failed"), failure.ErrRecommendationFetchFailed)
	}
	return []track.Track{}, nil
}

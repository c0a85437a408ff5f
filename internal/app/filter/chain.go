package filter

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuebox/internal/domain/track"
)

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain(filters ...Filter) *Chain {
	return &Chain{
		filters: append(make([]Filter, 0, len(filters)), filters...),
	}
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the track.
func (c *Chain) Execute(ctx context.Context, t track.Track) Result {
	for _, f := range c.filters {
		result := f.Check(ctx, t)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Apply returns the candidates every filter accepts, in order. Candidates
// that repeat an earlier accepted one are dropped too.
func (c *Chain) Apply(ctx context.Context, candidates []track.Track) []track.Track {
	accepted := make([]track.Track, 0, len(candidates))
	for _, t := range candidates {
		if result := c.Execute(ctx, t); !result.Accepted {
			zlog.Debug().Msgf("candidate rejected: track=%s code=%s", t.ID, result.Code)
			continue
		}
		if containsSong(accepted, t) {
			zlog.Debug().Msgf("candidate rejected: track=%s code=duplicate_track", t.ID)
			continue
		}
		accepted = append(accepted, t)
	}
	return accepted
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}

func containsSong(tracks []track.Track, t track.Track) bool {
	for _, other := range tracks {
		if SameSong(other, t) {
			return true
		}
	}
	return false
}

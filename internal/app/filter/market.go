package filter

import (
	"context"

	"github.com/osa030/cuebox/internal/domain/track"
)

// MarketFilter checks if the track is available in the configured market.
type MarketFilter struct {
	market string
}

// NewMarketFilter creates a new MarketFilter with the specified market.
func NewMarketFilter(market string) *MarketFilter {
	return &MarketFilter{market: market}
}

func (f *MarketFilter) Name() string {
	return "market"
}

func (f *MarketFilter) Description() string {
	return "Checks if the track is available in the configured market"
}

func (f *MarketFilter) ReturnCodes() []string {
	return []string{"market_restriction"}
}

func (f *MarketFilter) ValidateConfig(map[string]any) error {
	return nil
}

// Check rejects tracks known to be unavailable. Tracks without market
// data (market-scoped responses) are accepted.
func (f *MarketFilter) Check(_ context.Context, t track.Track) Result {
	if f.market == "" {
		return Accept()
	}
	if t.IsPlayable == nil && len(t.Markets) == 0 {
		return Accept()
	}
	if !t.IsAvailableInMarket(f.market) {
		return Reject("market_restriction")
	}
	return Accept()
}

func init() {
	Register("market", func(d Deps) Filter {
		return NewMarketFilter(d.Market)
	})
}

package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/cuebox/internal/domain/track"
)

func boolPtr(b bool) *bool {
	return &b
}

func TestMarketFilter_Check(t *testing.T) {
	tests := []struct {
		name         string
		filterMarket string
		trackMarkets []string
		isPlayable   *bool
		wantAccepted bool
		wantCode     string
	}{
		{
			name:         "track available in market",
			filterMarket: "JP",
			trackMarkets: []string{"JP", "US", "UK"},
			wantAccepted: true,
		},
		{
			name:         "track not available in market",
			filterMarket: "JP",
			trackMarkets: []string{"US", "UK"},
			wantAccepted: false,
			wantCode:     "market_restriction",
		},
		{
			name:         "no market filter",
			filterMarket: "",
			trackMarkets: []string{"US"},
			wantAccepted: true,
		},
		{
			name:         "no market data",
			filterMarket: "JP",
			trackMarkets: []string{},
			wantAccepted: true,
		},
		{
			name:         "relinked track not playable",
			filterMarket: "JP",
			isPlayable:   boolPtr(false),
			wantAccepted: false,
			wantCode:     "market_restriction",
		},
		{
			name:         "playable overrides markets",
			filterMarket: "JP",
			trackMarkets: []string{"US"},
			isPlayable:   boolPtr(true),
			wantAccepted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter := NewMarketFilter(tt.filterMarket)

			trk := track.Track{
				ID:         "test-track",
				Markets:    tt.trackMarkets,
				IsPlayable: tt.isPlayable,
			}

			result := filter.Check(context.Background(), trk)

			assert.Equal(t, tt.wantAccepted, result.Accepted,
				"MarketFilter.Check() accepted status mismatch")

			if !tt.wantAccepted {
				assert.Equal(t, tt.wantCode, result.Code,
					"MarketFilter.Check() rejection code mismatch")
			}
		})
	}
}

func TestRecentArtistFilter(t *testing.T) {
	queue := fakeQueue{
		{ID: "1", Artists: []string{"Queen"}},
		{ID: "2", Artists: []string{"ABBA"}},
		{ID: "3", Artists: []string{"Blur"}},
	}

	tests := []struct {
		name         string
		count        int
		artist       string
		wantAccepted bool
	}{
		{name: "disabled", count: 0, artist: "Blur", wantAccepted: true},
		{name: "last artist", count: 1, artist: "blur", wantAccepted: false},
		{name: "outside window", count: 2, artist: "Queen", wantAccepted: true},
		{name: "window larger than queue", count: 10, artist: "Queen", wantAccepted: false},
		{name: "new artist", count: 3, artist: "Oasis", wantAccepted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewRecentArtistFilter(queue)
			require.NoError(t, f.ValidateConfig(map[string]any{"count": tt.count}))

			result := f.Check(context.Background(), track.Track{ID: "x", Artists: []string{tt.artist}})
			assert.Equal(t, tt.wantAccepted, result.Accepted)
			if !tt.wantAccepted {
				assert.Equal(t, "recent_artist", result.Code)
			}
		})
	}
}

func TestRecentArtistFilter_InvalidConfig(t *testing.T) {
	f := NewRecentArtistFilter(fakeQueue{})
	assert.Error(t, f.ValidateConfig(map[string]any{"count": -1}))
	assert.Error(t, f.ValidateConfig(map[string]any{"count": "many"}))
}

func TestChain_Apply(t *testing.T) {
	queue := fakeQueue{
		{ID: "a", URI: "spotify:track:a", Name: "Alpha", Artists: []string{"Artist A"}},
	}
	chain := NewChain(NewDuplicateTrackFilter(queue), NewMarketFilter("JP"))

	candidates := []track.Track{
		{ID: "a", URI: "spotify:track:a", Name: "Alpha", Artists: []string{"Artist A"}},
		{ID: "d", URI: "spotify:track:d", Name: "Delta", Artists: []string{"Artist D"}},
		{ID: "x", URI: "spotify:track:x", Name: "Xray", Artists: []string{"Artist X"}, Markets: []string{"US"}},
		{ID: "d2", URI: "spotify:track:d2", Name: "Delta - 2011 Remaster", Artists: []string{"Artist D"}},
		{ID: "e", URI: "spotify:track:e", Name: "Echo", Artists: []string{"Artist E"}},
	}

	accepted := chain.Apply(context.Background(), candidates)

	ids := make([]string, len(accepted))
	for i, tr := range accepted {
		ids[i] = tr.ID
	}
	assert.Equal(t, []string{"d", "e"}, ids)
}

func TestChain_ExecuteStopsAtFirstReject(t *testing.T) {
	chain := NewChain()
	chain.Add(NewMarketFilter("JP"))
	chain.Add(NewDuplicateTrackFilter(fakeQueue{{ID: "a"}}))

	result := chain.Execute(context.Background(), track.Track{ID: "a", Markets: []string{"US"}})
	assert.False(t, result.Accepted)
	assert.Equal(t, "market_restriction", result.Code)
	assert.Len(t, chain.Filters(), 2)
}

type fakeSettings struct {
	disabled map[string]bool
	settings map[string]map[string]any
}

func (s fakeSettings) IsFilterEnabled(name string) bool {
	return !s.disabled[name]
}

func (s fakeSettings) FilterSettings(name string) map[string]any {
	return s.settings[name]
}

func TestNewChainFromConfig(t *testing.T) {
	chain, err := NewChainFromConfig(fakeSettings{
		disabled: map[string]bool{"market": true},
	}, Deps{Queue: fakeQueue{}, Market: "JP"})
	require.NoError(t, err)

	var names []string
	for _, f := range chain.Filters() {
		names = append(names, f.Name())
	}
	assert.Equal(t, []string{"duplicate_track", "duration_limit", "recent_artist"}, names)
}

func TestNewChainFromConfig_InvalidSettings(t *testing.T) {
	_, err := NewChainFromConfig(fakeSettings{
		settings: map[string]map[string]any{
			"duration_limit": {"min_minutes": 10, "max_minutes": 5},
		},
	}, Deps{})
	assert.Error(t, err)
}

func TestRegistered(t *testing.T) {
	assert.Equal(t, []string{"duplicate_track", "duration_limit", "market", "recent_artist"}, Registered())
}

func TestNew(t *testing.T) {
	f, ok := New("market", Deps{Market: "JP"})
	require.True(t, ok)
	assert.Equal(t, "market", f.Name())

	_, ok = New("missing", Deps{})
	assert.False(t, ok)
}

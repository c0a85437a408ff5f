package filter

import (
	"context"
	"strings"

	"github.com/osa030/cuebox/internal/domain/track"
)

// RecentArtistConfig represents the configuration for RecentArtistFilter.
type RecentArtistConfig struct {
	// Count is how many trailing queue tracks to compare against; 0 disables.
	Count int `mapstructure:"count" validate:"gte=0,lte=50"`
}

// RecentArtistFilter rejects candidates by the main artist of one of the
// last queued tracks.
type RecentArtistFilter struct {
	queue QueueSource
	count int
}

// NewRecentArtistFilter creates a new recent artist filter.
func NewRecentArtistFilter(queue QueueSource) *RecentArtistFilter {
	return &RecentArtistFilter{queue: queue}
}

func (f *RecentArtistFilter) Name() string {
	return "recent_artist"
}

func (f *RecentArtistFilter) Description() string {
	return "Avoids repeating an artist from the last queued tracks"
}

func (f *RecentArtistFilter) ReturnCodes() []string {
	return []string{"recent_artist"}
}

func (f *RecentArtistFilter) ValidateConfig(settings map[string]any) error {
	var config RecentArtistConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.count = config.Count
	return nil
}

func (f *RecentArtistFilter) Check(_ context.Context, t track.Track) Result {
	if f.count == 0 || f.queue == nil || t.MainArtist() == "" {
		return Accept()
	}

	tracks := f.queue.Tracks()
	start := max(0, len(tracks)-f.count)
	for _, recent := range tracks[start:] {
		if strings.EqualFold(recent.MainArtist(), t.MainArtist()) {
			return Reject("recent_artist")
		}
	}
	return Accept()
}

func init() {
	Register("recent_artist", func(d Deps) Filter {
		return NewRecentArtistFilter(d.Queue)
	})
}

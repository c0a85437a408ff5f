package replenish

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuebox/internal/domain/track"
	"github.com/osa030/cuebox/internal/infra/lastfm"
)

// LastFmClient defines the interface for Last.fm operations.
type LastFmClient interface {
	GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.SimilarTrack, error)
}

// LastFmProviderConfig holds the lastfm provider settings.
type LastFmProviderConfig struct {
	APIKey      string  `yaml:"api_key" mapstructure:"api_key" validate:"required"`
	MinMatch    float64 `yaml:"min_match" mapstructure:"min_match" validate:"gte=0,lte=1"`
	Parallelism int     `yaml:"parallelism" mapstructure:"parallelism" default:"4" validate:"gte=1,lte=16"`
}

// LastFmProvider finds similar tracks on Last.fm and resolves them back
// to catalog tracks by search.
type LastFmProvider struct {
	lastfm  LastFmClient
	catalog Catalog
	config  *LastFmProviderConfig

	// Catalog search results keyed by "track:artist"; nil marks a miss
	searchCache map[string]*track.Track
	cacheMutex  sync.RWMutex
}

// NewLastFmProvider creates a new LastFmProvider.
func NewLastFmProvider(catalog Catalog, settings map[string]any) (*LastFmProvider, error) {
	var config LastFmProviderConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}

	client, err := lastfm.New(lastfm.Config{APIKey: config.APIKey})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create last.fm client")
	}
	return newLastFmProvider(client, catalog, &config)
}

func newLastFmProvider(client LastFmClient, catalog Catalog, config *LastFmProviderConfig) (*LastFmProvider, error) {
	if catalog == nil {
		return nil, errors.New("catalog client is required")
	}
	return &LastFmProvider{
		lastfm:      client,
		catalog:     catalog,
		config:      config,
		searchCache: make(map[string]*track.Track),
	}, nil
}

// GetCandidates returns catalog tracks similar to seed, most similar first.
func (p *LastFmProvider) GetCandidates(ctx context.Context, seed track.Track, limit int) ([]track.Track, error) {
	if seed.MainArtist() == "" || seed.Name == "" {
		return nil, errors.New("seed track needs a name and an artist")
	}

	similar, err := p.lastfm.GetSimilarTracks(ctx, seed.Name, seed.MainArtist(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get similar tracks")
	}

	kept := make([]lastfm.SimilarTrack, 0, len(similar))
	for _, s := range similar {
		if s.Match >= p.config.MinMatch {
			kept = append(kept, s)
		}
	}

	// Resolve concurrently, keeping Last.fm's order
	resolved := make([]*track.Track, len(kept))
	sem := make(chan struct{}, p.config.Parallelism)
	var wg sync.WaitGroup
	for i, s := range kept {
		wg.Add(1)
		go func(i int, s lastfm.SimilarTrack) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			resolved[i] = p.searchCatalog(ctx, s.Name, s.Artist)
		}(i, s)
	}
	wg.Wait()

	candidates := make([]track.Track, 0, len(resolved))
	for _, t := range resolved {
		if t != nil {
			candidates = append(candidates, *t)
		}
	}
	zlog.Debug().Msgf("lastfm provider: seed=%s similar=%d resolved=%d", seed.String(), len(kept), len(candidates))
	return candidates, nil
}

// Name returns the provider name.
func (p *LastFmProvider) Name() string {
	return "lastfm"
}

// searchCatalog searches for a track in the catalog with caching.
func (p *LastFmProvider) searchCatalog(ctx context.Context, trackName, artistName string) *track.Track {
	key := strings.ToLower(fmt.Sprintf("%s:%s", trackName, artistName))

	p.cacheMutex.RLock()
	if cached, ok := p.searchCache[key]; ok {
		p.cacheMutex.RUnlock()
		return cached
	}
	p.cacheMutex.RUnlock()

	query := fmt.Sprintf("track:%s artist:%s", trackName, artistName)
	results, err := p.catalog.Search(ctx, query, 1)

	var found *track.Track
	if err == nil && len(results) > 0 {
		found = &results[0]
	} else if err != nil {
		zlog.Debug().Msgf("lastfm provider: catalog search failed: query=%q error=%v", query, err)
		// Transient failures are not cached
		return nil
	}

	p.cacheMutex.Lock()
	p.searchCache[key] = found
	p.cacheMutex.Unlock()
	return found
}

package replenish

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/cuebox/internal/domain/track"
)

// RecommendationProviderConfig holds the spotify provider settings.
type RecommendationProviderConfig struct {
	// Limit overrides the replenish limit; 0 keeps it.
	Limit int `yaml:"limit" mapstructure:"limit" validate:"gte=0,lte=100"`
}

// RecommendationProvider returns the catalog's own recommendations for
// the seed track.
type RecommendationProvider struct {
	catalog Catalog
	config  *RecommendationProviderConfig
}

// NewRecommendationProvider creates a new RecommendationProvider.
func NewRecommendationProvider(catalog Catalog, settings map[string]any) (*RecommendationProvider, error) {
	if catalog == nil {
		return nil, errors.New("catalog client is required")
	}

	var config RecommendationProviderConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	return &RecommendationProvider{catalog: catalog, config: &config}, nil
}

// GetCandidates fetches recommendations seeded by the track.
func (p *RecommendationProvider) GetCandidates(ctx context.Context, seed track.Track, limit int) ([]track.Track, error) {
	if p.config.Limit > 0 {
		limit = p.config.Limit
	}
	seedID := seed.ID
	if seedID == "" {
		seedID = seed.URI
	}
	return p.catalog.GetRecommendations(ctx, seedID, limit)
}

// Name returns the provider name.
func (p *RecommendationProvider) Name() string {
	return "spotify"
}

// Package replenish extends the play queue with related tracks when it runs
// out, trying a chain of recommendation providers.
package replenish

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/cuebox/internal/domain/track"
)

// Provider is the interface for recommendation providers.
// Different implementations find related tracks through different
// services.
type Provider interface {
	// GetCandidates returns up to limit tracks related to seed.
	GetCandidates(ctx context.Context, seed track.Track, limit int) ([]track.Track, error)

	// Name returns the provider name (used in config).
	Name() string
}

// Catalog defines the catalog operations needed by providers.
type Catalog interface {
	GetRecommendations(ctx context.Context, seedTrackID string, limit int) ([]track.Track, error)
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
}

// decodeSettings decodes provider settings into out, applies defaults and
// validates.
func decodeSettings(settings map[string]any, out any) error {
	if err := mapstructure.WeakDecode(settings, out); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}

// Package filter provides the filter chain applied to queue replenishment
// candidates.
package filter

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/cuebox/internal/domain/track"
)

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "duplicate_track", "market_restriction"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for candidate filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates and applies the filter configuration.
	ValidateConfig(settings map[string]any) error
	// Check performs the filter check.
	Check(ctx context.Context, t track.Track) Result
}

// QueueSource exposes the tracks currently queued.
type QueueSource interface {
	Tracks() []track.Track
}

// Deps holds what filter factories may need.
type Deps struct {
	Queue  QueueSource
	Market string
}

// registry holds registered filter factories.
var registry = make(map[string]func(Deps) Filter)

// Register registers a filter factory.
func Register(name string, factory func(Deps) Filter) {
	registry[name] = factory
}

// Registered returns the registered filter names in a stable order.
func Registered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates the named filter.
func New(name string, deps Deps) (Filter, bool) {
	factory, ok := registry[name]
	if !ok {
		return nil, false
	}
	return factory(deps), true
}

// Settings reports whether a filter is enabled and its settings.
type Settings interface {
	IsFilterEnabled(name string) bool
	FilterSettings(name string) map[string]any
}

// NewChainFromConfig builds a chain of every enabled registered filter.
func NewChainFromConfig(cfg Settings, deps Deps) (*Chain, error) {
	chain := NewChain()
	for _, name := range Registered() {
		if !cfg.IsFilterEnabled(name) {
			continue
		}
		f := registry[name](deps)
		if err := f.ValidateConfig(cfg.FilterSettings(name)); err != nil {
			return nil, errors.Wrapf(err, "invalid settings for filter %s", name)
		}
		chain.Add(f)
	}
	return chain, nil
}

// decodeSettings decodes settings into out, applies defaults and validates.
func decodeSettings(settings map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
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

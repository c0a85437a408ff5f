// Package failure defines the error classes shared by the playback stack.
// Concrete errors are marked with one of these sentinels so callers can
// classify them with errors.Is regardless of the wrapping chain.
package failure

import (
	"github.com/cockroachdb/errors"
)

// Error classes.
var (
	ErrNotAuthenticated          = errors.New("not authenticated")
	ErrNoDevice                  = errors.New("no playback device")
	ErrDeviceActivationFailed    = errors.New("device activation failed")
	ErrPlaybackCommandFailed     = errors.New("playback command failed")
	ErrRecommendationFetchFailed = errors.New("recommendation fetch failed")
	ErrRateLimited               = errors.New("rate limited")
)

// Mark tags err with class, keeping the original message and cause chain.
func Mark(err error, class error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, class)
}

// Message returns the user-facing message for an error.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotAuthenticated):
		return "Please sign in again to control playback."
	case errors.Is(err, ErrNoDevice):
		return "No playback device is available. Open the player and try again."
	case errors.Is(err, ErrDeviceActivationFailed):
		return "Could not activate the playback device."
	case errors.Is(err, ErrRateLimited):
		return "The music service is busy. Please try again shortly."
	case errors.Is(err, ErrPlaybackCommandFailed):
		return "The playback command failed."
	case errors.Is(err, ErrRecommendationFetchFailed):
		return "Could not load more tracks."
	default:
		return "Something went wrong."
	}
}

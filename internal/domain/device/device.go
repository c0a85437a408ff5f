// Package device provides the remote playback device entities.
package device

import "github.com/osa030/cuebox/internal/domain/track"

// Device is a remote renderer as listed by the catalog service.
type Device struct {
	ID         string
	Name       string
	Type       string
	IsActive   bool
	Restricted bool
	Volume     int // 0-100
}

// State is the playback state reported by the device session.
type State struct {
	PositionMs int
	DurationMs int
	Paused     bool
	// PreviousTracks is the window of tracks played before the current one.
	PreviousTracks []track.Track
	// CurrentTrack is nil when the device has nothing loaded.
	CurrentTrack *track.Track
}

// IsTrackEnd reports whether the state marks the end of the track that was
// playing: the device has stopped at position zero on the same track it
// just played.
func (s State) IsTrackEnd() bool {
	if s.PositionMs != 0 || !s.Paused || s.CurrentTrack == nil {
		return false
	}
	for _, prev := range s.PreviousTracks {
		if prev.Equal(*s.CurrentTrack) {
			return true
		}
	}
	return false
}

// EventType represents a device session event type.
type EventType int

const (
	EventReady        EventType = iota // Device registered and can accept commands
	EventNotReady                      // Device went away
	EventStateChanged                  // Playback state changed on the device
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventReady:
		return "ready"
	case EventNotReady:
		return "not_ready"
	case EventStateChanged:
		return "player_state_changed"
	default:
		return "unknown"
	}
}

// Event is a notification emitted by the device session.
type Event struct {
	Type     EventType
	DeviceID string // Set for ready / not_ready
	State    *State // Set for state changed
}

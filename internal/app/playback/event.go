package playback

import "github.com/osa030/cuebox/internal/domain/track"

// EventType represents a controller event type.
type EventType int

const (
	EventLoginRequired    EventType = iota // An intent needed a credential
	EventError                             // A user-visible error was recorded
	EventTrackChanged                      // The cursor moved to another track
	EventTrackEnded                        // The device finished a track
	EventQueueReplenished                  // Recommendations were added
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventLoginRequired:
		return "login_required"
	case EventError:
		return "error"
	case EventTrackChanged:
		return "track_changed"
	case EventTrackEnded:
		return "track_ended"
	case EventQueueReplenished:
		return "queue_replenished"
	default:
		return "unknown"
	}
}

// Event represents a controller event.
type Event struct {
	Type  EventType
	Track *track.Track // Current track (nil for some events)
	State State        // Controller state when emitted
	Err   error        // Set for EventError and EventLoginRequired
}

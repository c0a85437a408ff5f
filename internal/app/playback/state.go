// Package playback keeps the local queue and the remote playback device in step.
package playback

// State represents the conceptual controller state.
type State int

const (
	StateIdle          State = iota // No current track
	StateActivating                 // Device activation in flight
	StatePlaying                    // Track is playing
	StatePaused                     // Track is paused
	StateTransitioning              // Track end or next/previous in flight
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActivating:
		return "activating"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateTransitioning:
		return "transitioning"
	default:
		return "unknown"
	}
}

// Package queue provides the playback queue store: the ordered track list,
// the current cursor and the local playback state, mutated atomically.
package queue

import (
	"sync"

	"github.com/osa030/cuebox/internal/domain/track"
)

// RepeatMode controls what happens at the end of a track or the queue.
type RepeatMode int

const (
	RepeatOff    RepeatMode = iota // Stop at queue end
	RepeatSingle                   // Repeat the current track
	RepeatAll                      // Wrap the queue
)

// String returns the string representation of the repeat mode.
func (r RepeatMode) String() string {
	switch r {
	case RepeatOff:
		return "off"
	case RepeatSingle:
		return "single"
	case RepeatAll:
		return "all"
	default:
		return "unknown"
	}
}

// Next returns the following mode in the Off -> Single -> All cycle.
func (r RepeatMode) Next() RepeatMode {
	switch r {
	case RepeatOff:
		return RepeatSingle
	case RepeatSingle:
		return RepeatAll
	default:
		return RepeatOff
	}
}

// ParseRepeatMode parses a repeat mode name. Unknown names map to RepeatOff.
func ParseRepeatMode(s string) RepeatMode {
	switch s {
	case "single", "track":
		return RepeatSingle
	case "all", "context":
		return RepeatAll
	default:
		return RepeatOff
	}
}

// ErrorLevel tells the UI how to surface an error.
type ErrorLevel int

const (
	ErrorNone       ErrorLevel = iota
	ErrorBackground            // Non-blocking, informational
	ErrorAlert                 // Blocking, user must see it
)

// String returns the string representation of the error level.
func (l ErrorLevel) String() string {
	switch l {
	case ErrorNone:
		return "none"
	case ErrorBackground:
		return "background"
	case ErrorAlert:
		return "alert"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent copy of the store contents.
type Snapshot struct {
	Queue         []track.Track
	CurrentIndex  int          // -1 when nothing is current
	CurrentTrack  *track.Track // Always Queue[CurrentIndex] or nil
	IsPlaying     bool
	ProgressMs    int
	DurationMs    int
	Volume        int
	RepeatMode    RepeatMode
	DeviceID      string
	IsDeviceReady bool
	IsSDKLoaded   bool
	Error         string
	ErrorLevel    ErrorLevel
}

// Store holds the queue and playback state.
// All methods are safe for concurrent use and never fail.
type Store struct {
	mu sync.RWMutex

	queue        []track.Track
	currentIndex int

	isPlaying     bool
	progressMs    int
	durationMs    int
	volume        int
	repeatMode    RepeatMode
	deviceID      string
	isDeviceReady bool
	isSDKLoaded   bool

	errMsg   string
	errLevel ErrorLevel

	observersMu sync.RWMutex
	observers   []func(Snapshot)
}

// DefaultVolume is the volume a fresh store starts with.
const DefaultVolume = 50

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		queue:        make([]track.Track, 0),
		currentIndex: -1,
		volume:       DefaultVolume,
	}
}

// OnChange registers an observer called with a snapshot after every mutation.
// Observers run on the mutating goroutine, outside the store lock.
func (s *Store) OnChange(fn func(Snapshot)) {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	s.observers = append(s.observers, fn)
}

// mutate applies fn under the write lock and notifies observers.
func (s *Store) mutate(fn func() bool) {
	s.mu.Lock()
	changed := fn()
	var snap Snapshot
	if changed {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()

	if !changed {
		return
	}

	s.observersMu.RLock()
	observers := make([]func(Snapshot), len(s.observers))
	copy(observers, s.observers)
	s.observersMu.RUnlock()

	for _, fn := range observers {
		fn(snap)
	}
}

// ReplaceQueue sets the queue and the current index in one step.
// An empty list is ignored; an out-of-range index falls back to 0.
func (s *Store) ReplaceQueue(tracks []track.Track, startIndex int) {
	if len(tracks) == 0 {
		return
	}
	s.mutate(func() bool {
		s.queue = make([]track.Track, len(tracks))
		copy(s.queue, tracks)
		if startIndex < 0 || startIndex >= len(tracks) {
			startIndex = 0
		}
		s.currentIndex = startIndex
		return true
	})
}

// AppendToQueue adds tracks to the end of the queue.
func (s *Store) AppendToQueue(tracks []track.Track) {
	if len(tracks) == 0 {
		return
	}
	s.mutate(func() bool {
		s.queue = append(s.queue, tracks...)
		return true
	})
}

// Advance moves the cursor forward, wrapping only under RepeatAll.
// Returns false when the cursor did not move.
func (s *Store) Advance() bool {
	moved := false
	s.mutate(func() bool {
		if len(s.queue) == 0 {
			return false
		}
		switch {
		case s.currentIndex+1 < len(s.queue):
			s.currentIndex++
			moved = true
		case s.repeatMode == RepeatAll:
			s.currentIndex = 0
			moved = true
		}
		return moved
	})
	return moved
}

// Retreat moves the cursor backward, wrapping to the last track only
// under RepeatAll. Returns false when the cursor did not move.
func (s *Store) Retreat() bool {
	moved := false
	s.mutate(func() bool {
		if len(s.queue) == 0 {
			return false
		}
		switch {
		case s.currentIndex > 0:
			s.currentIndex--
			moved = true
		case s.repeatMode == RepeatAll:
			s.currentIndex = len(s.queue) - 1
			moved = true
		}
		return moved
	})
	return moved
}

// SetCurrent points the cursor at t. index is a hint: if t sits there it
// is used, otherwise the first queued occurrence of t. A track that is not
// queued replaces the queue with [t] so the cursor invariant holds before
// any remote confirmation.
func (s *Store) SetCurrent(t track.Track, index int) {
	s.mutate(func() bool {
		if index >= 0 && index < len(s.queue) && s.queue[index].Equal(t) {
			s.currentIndex = index
			return true
		}
		for i, queued := range s.queue {
			if queued.Equal(t) {
				s.currentIndex = i
				return true
			}
		}
		s.queue = []track.Track{t}
		s.currentIndex = 0
		return true
	})
}

// SetIndex moves the cursor to index. Out-of-range values are ignored.
func (s *Store) SetIndex(index int) {
	s.mutate(func() bool {
		if index < 0 || index >= len(s.queue) {
			return false
		}
		s.currentIndex = index
		return true
	})
}

// SetProgress sets the playback position.
func (s *Store) SetProgress(ms int) {
	s.mutate(func() bool {
		if ms < 0 {
			ms = 0
		}
		s.progressMs = ms
		return true
	})
}

// SetDuration sets the duration of the current track.
func (s *Store) SetDuration(ms int) {
	s.mutate(func() bool {
		if ms < 0 {
			ms = 0
		}
		s.durationMs = ms
		return true
	})
}

// SetPlaying sets the play/pause flag.
func (s *Store) SetPlaying(playing bool) {
	s.mutate(func() bool {
		s.isPlaying = playing
		return true
	})
}

// SetVolume sets the volume, clamped to 0-100.
func (s *Store) SetVolume(v int) {
	s.mutate(func() bool {
		s.volume = clampVolume(v)
		return true
	})
}

// SetRepeatMode sets the repeat mode.
func (s *Store) SetRepeatMode(mode RepeatMode) {
	s.mutate(func() bool {
		s.repeatMode = mode
		return true
	})
}

// CycleRepeatMode rotates Off -> Single -> All -> Off and returns the new mode.
func (s *Store) CycleRepeatMode() RepeatMode {
	var mode RepeatMode
	s.mutate(func() bool {
		s.repeatMode = s.repeatMode.Next()
		mode = s.repeatMode
		return true
	})
	return mode
}

// SetDeviceReady sets the device ready flag.
func (s *Store) SetDeviceReady(ready bool) {
	s.mutate(func() bool {
		s.isDeviceReady = ready
		return true
	})
}

// SetDeviceID sets the known device ID.
func (s *Store) SetDeviceID(id string) {
	s.mutate(func() bool {
		s.deviceID = id
		return true
	})
}

// SetSDKLoaded sets the device session loaded flag.
func (s *Store) SetSDKLoaded(loaded bool) {
	s.mutate(func() bool {
		s.isSDKLoaded = loaded
		return true
	})
}

// SetError records a user-visible error.
func (s *Store) SetError(level ErrorLevel, msg string) {
	s.mutate(func() bool {
		s.errMsg = msg
		s.errLevel = level
		return true
	})
}

// ClearError clears the user-visible error.
func (s *Store) ClearError() {
	s.mutate(func() bool {
		if s.errLevel == ErrorNone && s.errMsg == "" {
			return false
		}
		s.errMsg = ""
		s.errLevel = ErrorNone
		return true
	})
}

// Reset returns the store to its initial state (logout).
func (s *Store) Reset() {
	s.mutate(func() bool {
		s.queue = make([]track.Track, 0)
		s.currentIndex = -1
		s.isPlaying = false
		s.progressMs = 0
		s.durationMs = 0
		s.volume = DefaultVolume
		s.repeatMode = RepeatOff
		s.deviceID = ""
		s.isDeviceReady = false
		s.isSDKLoaded = false
		s.errMsg = ""
		s.errLevel = ErrorNone
		return true
	})
}

// Index returns the current cursor (-1 if none).
// Read it at the moment of use; never cache it across a suspension.
func (s *Store) Index() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentIndex
}

// Len returns the number of tracks in the queue.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queue)
}

// TrackAt returns the track at index.
func (s *Store) TrackAt(index int) (track.Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.queue) {
		return track.Track{}, false
	}
	return s.queue[index], true
}

// Current returns the current track.
func (s *Store) Current() (track.Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentIndex < 0 || s.currentIndex >= len(s.queue) {
		return track.Track{}, false
	}
	return s.queue[s.currentIndex], true
}

// Tracks returns a copy of the queue.
func (s *Store) Tracks() []track.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]track.Track, len(s.queue))
	copy(result, s.queue)
	return result
}

// RepeatMode returns the repeat mode.
func (s *Store) RepeatMode() RepeatMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repeatMode
}

// IsPlaying returns the play/pause flag.
func (s *Store) IsPlaying() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isPlaying
}

// DeviceID returns the last known device ID.
func (s *Store) DeviceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deviceID
}

// IsDeviceReady returns the device ready flag.
func (s *Store) IsDeviceReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isDeviceReady
}

// Snapshot returns a consistent copy of the whole state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	q := make([]track.Track, len(s.queue))
	copy(q, s.queue)

	snap := Snapshot{
		Queue:         q,
		CurrentIndex:  s.currentIndex,
		IsPlaying:     s.isPlaying,
		ProgressMs:    s.progressMs,
		DurationMs:    s.durationMs,
		Volume:        s.volume,
		RepeatMode:    s.repeatMode,
		DeviceID:      s.deviceID,
		IsDeviceReady: s.isDeviceReady,
		IsSDKLoaded:   s.isSDKLoaded,
		Error:         s.errMsg,
		ErrorLevel:    s.errLevel,
	}
	if s.currentIndex >= 0 && s.currentIndex < len(q) {
		cur := q[s.currentIndex]
		snap.CurrentTrack = &cur
	} else {
		snap.CurrentIndex = -1
	}
	return snap
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

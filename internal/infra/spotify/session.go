package spotify

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuebox/internal/domain/device"
	"github.com/osa030/cuebox/internal/domain/failure"
	"github.com/osa030/cuebox/internal/domain/track"
)

// DefaultPollInterval is how often the player session polls the Web API.
const DefaultPollInterval = time.Second

// PlayerSession tracks the named playback device through the Web API and
// reports it as a device.Event stream.
type PlayerSession struct {
	client   *Client
	interval time.Duration
	events   chan device.Event

	mu        sync.Mutex
	deviceID  string
	lastTrack *track.Track
	last      *device.State
	running   bool
}

// NewPlayerSession creates a session polling every interval.
func NewPlayerSession(client *Client, interval time.Duration) *PlayerSession {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PlayerSession{
		client:   client,
		interval: interval,
		events:   make(chan device.Event, 32),
	}
}

// Events returns the event channel. It is closed when Run returns.
func (s *PlayerSession) Events() <-chan device.Event {
	return s.events
}

// Run polls until ctx is done.
func (s *PlayerSession) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("player session already running")
	}
	s.running = true
	s.mu.Unlock()

	defer close(s.events)

	zlog.Info().Msgf("spotify: player session started: device=%q interval=%v", s.client.DeviceName(), s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			zlog.Info().Msg("spotify: player session stopped")
			return nil
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}

// Poll performs one device and state check, emitting events for changes.
func (s *PlayerSession) Poll(ctx context.Context) {
	dev, err := s.client.ListDevices(ctx)
	if err != nil {
		zlog.Debug().Msgf("spotify: device poll failed: %v", err)
		return
	}

	s.mu.Lock()
	prevID := s.deviceID
	switch {
	case dev != nil && dev.ID != prevID:
		s.deviceID = dev.ID
		s.last = nil
		s.emitLocked(device.Event{Type: device.EventReady, DeviceID: dev.ID})
	case dev == nil && prevID != "":
		s.deviceID = ""
		s.last = nil
		s.lastTrack = nil
		s.emitLocked(device.Event{Type: device.EventNotReady, DeviceID: prevID})
	}
	deviceID := s.deviceID
	s.mu.Unlock()

	if deviceID == "" {
		return
	}

	st, err := s.client.PlayerState(ctx)
	if err != nil {
		zlog.Debug().Msgf("spotify: state poll failed: %v", err)
		return
	}
	if st == nil || st.DeviceID != deviceID {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.buildStateLocked(st)
	if stateChanged(s.last, state) {
		s.emitLocked(device.Event{Type: device.EventStateChanged, DeviceID: deviceID, State: state})
	}
	s.last = state
	s.lastTrack = st.Track
}

// CurrentState returns the device state, or nil when the device has
// nothing loaded.
func (s *PlayerSession) CurrentState(ctx context.Context) (*device.State, error) {
	st, err := s.client.PlayerState(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st == nil || s.deviceID == "" || st.DeviceID != s.deviceID {
		return nil, nil
	}
	return s.buildStateLocked(st), nil
}

// Seek moves the playback position of the session device.
func (s *PlayerSession) Seek(ctx context.Context, positionMs int) error {
	id := s.DeviceID()
	if id == "" {
		return failure.ErrNoDevice
	}
	return s.client.Seek(ctx, id, positionMs)
}

// SetVolume sets the session device volume, level in [0, 1].
func (s *PlayerSession) SetVolume(ctx context.Context, level float64) error {
	id := s.DeviceID()
	if id == "" {
		return failure.ErrNoDevice
	}
	level = math.Max(0, math.Min(1, level))
	return s.client.SetVolume(ctx, id, int(math.Round(level*100)))
}

// DeviceID returns the ID of the ready device, or "".
func (s *PlayerSession) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID
}

// buildStateLocked converts API state into device state. The previous
// window holds the track seen on the prior poll.
func (s *PlayerSession) buildStateLocked(st *PlaybackState) *device.State {
	state := &device.State{
		PositionMs:   st.PositionMs,
		Paused:       !st.Playing,
		CurrentTrack: st.Track,
	}
	if st.Track != nil {
		state.DurationMs = st.Track.DurationMs
	}
	if s.lastTrack != nil {
		state.PreviousTracks = []track.Track{*s.lastTrack}
	}
	return state
}

// emitLocked sends without blocking. Events are dropped when the
// consumer falls behind.
func (s *PlayerSession) emitLocked(ev device.Event) {
	select {
	case s.events <- ev:
	default:
		zlog.Warn().Msgf("spotify: event dropped: type=%s", ev.Type)
	}
}

func stateChanged(prev, cur *device.State) bool {
	if prev == nil {
		return true
	}
	if prev.Paused != cur.Paused {
		return true
	}
	if !sameTrack(prev.CurrentTrack, cur.CurrentTrack) {
		return true
	}
	// Rewound to the start, or jumped backwards
	return cur.PositionMs < prev.PositionMs
}

func sameTrack(a, b *track.Track) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

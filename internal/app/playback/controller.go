package playback

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuebox/internal/app/queue"
	"github.com/osa030/cuebox/internal/domain/device"
	"github.com/osa030/cuebox/internal/domain/failure"
	"github.com/osa030/cuebox/internal/domain/track"
)

// Transport issues remote playback commands.
type Transport interface {
	ActivateDevice(ctx context.Context, deviceID string) bool
	PlayTrack(ctx context.Context, t track.Track, deviceReady bool, deviceID string) bool
	PausePlayback(ctx context.Context, deviceID string) error
	ResumePlayback(ctx context.Context, deviceID string) error
}

// Recommender returns tracks to queue after a seed track.
type Recommender interface {
	Recommend(ctx context.Context, seed track.Track) ([]track.Track, error)
}

// DeviceSession is the live connection to the playback device.
// Only the controller calls it.
type DeviceSession interface {
	Run(ctx context.Context) error
	Events() <-chan device.Event
	CurrentState(ctx context.Context) (*device.State, error)
	Seek(ctx context.Context, positionMs int) error
	SetVolume(ctx context.Context, level float64) error
}

// DefaultTrackEndCooldown is how long the track-end latch stays closed
// after a track end has been handled.
const DefaultTrackEndCooldown = time.Second

// Config holds controller configuration.
type Config struct {
	TrackEndCooldown time.Duration
}

// Deps are the controller collaborators.
type Deps struct {
	Store       *queue.Store
	Transport   Transport
	Recommender Recommender
	Session     DeviceSession
	// Authenticated reports whether a usable credential exists.
	Authenticated func() bool
	// OnLogout drops the credential.
	OnLogout func()
}

// Controller drives the playback device from the local queue.
type Controller struct {
	mu         sync.Mutex
	state      State
	generation uint64
	pending    int

	store         *queue.Store
	transport     Transport
	recommender   Recommender
	session       DeviceSession
	authenticated func() bool
	onLogout      func()

	trackEnd *latch
	handlers sync.WaitGroup

	eventCh     chan Event
	stopSession context.CancelFunc
}

// NewController creates a new playback controller.
func NewController(deps Deps, config Config) *Controller {
	if config.TrackEndCooldown < 0 {
		config.TrackEndCooldown = 0
	}
	store := deps.Store
	if store == nil {
		store = queue.NewStore()
	}
	return &Controller{
		state:         StateIdle,
		store:         store,
		transport:     deps.Transport,
		recommender:   deps.Recommender,
		session:       deps.Session,
		authenticated: deps.Authenticated,
		onLogout:      deps.OnLogout,
		trackEnd:      newLatch(config.TrackEndCooldown),
		eventCh:       make(chan Event, 32),
	}
}

// Events returns the event channel.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Store returns the queue store the controller writes to.
func (c *Controller) Store() *queue.Store {
	return c.store
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PlaySingleTrack plays t. With extendQueue the queue becomes t followed by
// its recommendations once the device confirms. explicitIndex points at t
// inside the current queue when the caller knows it.
func (c *Controller) PlaySingleTrack(ctx context.Context, t track.Track, extendQueue bool, explicitIndex *int) error {
	if err := c.checkPreconditions(); err != nil {
		return err
	}

	index := -1
	if explicitIndex != nil {
		index = *explicitIndex
	}

	gen := c.begin(StateActivating)
	defer c.finish()

	c.store.ClearError()
	c.store.SetCurrent(t, index)
	c.loadTrack(t)
	c.store.SetPlaying(true)
	c.emitTrack(EventTrackChanged)

	if err := c.startPlayback(ctx, t); err != nil {
		return err
	}
	if !extendQueue || c.recommender == nil {
		return nil
	}

	recs, err := c.recommender.Recommend(ctx, t)
	if err != nil {
		c.background(err)
		return nil
	}
	if !c.isLatest(gen) {
		zlog.Info().Msgf("playback: recommendations for %s are stale, skipped", t.ID)
		return nil
	}
	c.store.ReplaceQueue(append([]track.Track{t}, recs...), 0)
	c.emitTrack(EventQueueReplenished)
	return nil
}

// PlayTrackList replaces the queue with tracks and plays the one at
// startIndex. Tracks without album art get coverImage.
func (c *Controller) PlayTrackList(ctx context.Context, tracks []track.Track, coverImage string, startIndex int) error {
	if len(tracks) == 0 {
		return errors.New("track list is empty")
	}
	if err := c.checkPreconditions(); err != nil {
		return err
	}

	normalized := make([]track.Track, len(tracks))
	for i, t := range tracks {
		normalized[i] = t.WithCoverImage(coverImage)
	}

	c.begin(StateActivating)
	defer c.finish()

	c.store.ClearError()
	c.store.ReplaceQueue(normalized, startIndex)
	cur, _ := c.store.Current()
	c.loadTrack(cur)
	c.store.SetPlaying(true)
	c.emitTrack(EventTrackChanged)

	return c.startPlayback(ctx, cur)
}

// AdvanceToNext moves to the next track, wrapping under RepeatAll and
// replenishing the queue when it runs out.
func (c *Controller) AdvanceToNext(ctx context.Context) error {
	c.begin(StateTransitioning)
	defer c.finish()

	next := c.store.Index() + 1
	if next >= c.store.Len() {
		if c.store.RepeatMode() == queue.RepeatAll {
			next = 0
		} else {
			c.replenish(ctx)
			// The cursor may have moved while replenishing.
			next = c.store.Index() + 1
		}
	}

	t, ok := c.store.TrackAt(next)
	if !ok {
		zlog.Info().Msg("playback: no next track")
		return nil
	}
	c.store.SetCurrent(t, next)
	c.loadTrack(t)
	c.emitTrack(EventTrackChanged)
	return c.play(ctx, t)
}

// RetreatToPrevious moves back one track, wrapping to the last one under
// RepeatAll. At the head of the queue it is a no-op otherwise.
func (c *Controller) RetreatToPrevious(ctx context.Context) error {
	prev := c.store.Index() - 1
	if prev < 0 {
		if c.store.RepeatMode() != queue.RepeatAll {
			return nil
		}
		prev = c.store.Len() - 1
	}
	t, ok := c.store.TrackAt(prev)
	if !ok {
		return nil
	}

	c.begin(StateTransitioning)
	defer c.finish()

	c.store.SetCurrent(t, prev)
	c.loadTrack(t)
	c.emitTrack(EventTrackChanged)
	return c.play(ctx, t)
}

// HandlePlaybackPause pauses the device.
func (c *Controller) HandlePlaybackPause(ctx context.Context) error {
	c.store.SetPlaying(false)
	c.settle()
	if err := c.transport.PausePlayback(ctx, c.store.DeviceID()); err != nil {
		return c.alert(err)
	}
	return nil
}

// HandlePlaybackResume resumes on the last known device.
func (c *Controller) HandlePlaybackResume(ctx context.Context) error {
	c.store.SetPlaying(true)
	c.settle()
	if err := c.transport.ResumePlayback(ctx, c.store.DeviceID()); err != nil {
		return c.alert(err)
	}
	return nil
}

// SetVolumeLevel sets the volume (0-100).
func (c *Controller) SetVolumeLevel(ctx context.Context, volume int) error {
	volume = min(max(volume, 0), 100)
	c.store.SetVolume(volume)
	if c.session == nil {
		return nil
	}
	if err := c.session.SetVolume(ctx, float64(volume)/100); err != nil {
		c.background(err)
		return err
	}
	return nil
}

// SeekTo seeks to a fraction (0..1) of the current track. Before the
// device has reported a duration, the track's catalog duration is used.
func (c *Controller) SeekTo(ctx context.Context, fraction float64) error {
	durationMs := c.store.Snapshot().DurationMs
	if durationMs <= 0 {
		if cur, ok := c.store.Current(); ok {
			durationMs = cur.DurationMs
		}
	}
	if durationMs <= 0 {
		return nil
	}
	fraction = math.Min(math.Max(fraction, 0), 1)
	positionMs := int(math.Round(fraction * float64(durationMs)))
	c.store.SetProgress(positionMs)
	if c.session == nil {
		return nil
	}
	if err := c.session.Seek(ctx, positionMs); err != nil {
		c.background(err)
		return err
	}
	return nil
}

// CycleRepeatMode advances Off → Single → All → Off.
func (c *Controller) CycleRepeatMode() queue.RepeatMode {
	mode := c.store.CycleRepeatMode()
	zlog.Debug().Msgf("playback: repeat mode %s", mode)
	return mode
}

// HandleDeviceEvent applies a device session event.
func (c *Controller) HandleDeviceEvent(ctx context.Context, ev device.Event) {
	switch ev.Type {
	case device.EventReady:
		zlog.Info().Msgf("playback: device ready: %s", ev.DeviceID)
		c.store.SetDeviceID(ev.DeviceID)
		c.store.SetDeviceReady(true)
	case device.EventNotReady:
		zlog.Warn().Msgf("playback: device not ready: %s", ev.DeviceID)
		c.store.SetDeviceReady(false)
	case device.EventStateChanged:
		st := ev.State
		if st == nil {
			return
		}
		c.store.SetProgress(st.PositionMs)
		c.store.SetDuration(st.DurationMs)
		if st.IsTrackEnd() {
			c.HandleTrackEnd(ctx)
			return
		}
		if c.pendingTransitions() == 0 {
			c.store.SetPlaying(!st.Paused)
			c.settle()
		}
	}
}

// HandleTrackEnd starts track-end handling unless one is already in
// progress or cooling down. Returns false when the call was dropped.
func (c *Controller) HandleTrackEnd(ctx context.Context) bool {
	epoch, ok := c.trackEnd.TryAcquire()
	if !ok {
		zlog.Debug().Msg("playback: track end already handled, dropped")
		return false
	}

	c.handlers.Add(1)
	go func() {
		defer c.handlers.Done()
		defer c.trackEnd.Release(epoch)
		c.onTrackEnd(ctx)
	}()
	return true
}

// Wait blocks until in-flight track-end handling is done.
func (c *Controller) Wait() {
	c.handlers.Wait()
}

func (c *Controller) onTrackEnd(ctx context.Context) {
	c.emitTrack(EventTrackEnded)

	if c.store.RepeatMode() == queue.RepeatSingle {
		c.replayCurrent(ctx)
	} else if err := c.AdvanceToNext(ctx); err != nil {
		zlog.Warn().Msgf("playback: advance after track end failed: %v", err)
	}

	c.store.SetPlaying(true)
	c.settle()
	if err := c.transport.ResumePlayback(ctx, c.store.DeviceID()); err != nil {
		c.background(err)
	}
}

func (c *Controller) replayCurrent(ctx context.Context) {
	cur, ok := c.store.Current()
	if !ok {
		return
	}

	c.begin(StateTransitioning)
	defer c.finish()

	zlog.Info().Msgf("playback: repeating %s", cur)
	c.loadTrack(cur)
	if err := c.play(ctx, cur); err != nil {
		zlog.Warn().Msgf("playback: replay failed: %v", err)
	}
}

// Run consumes device session events until ctx is done or the session
// stops.
func (c *Controller) Run(ctx context.Context) error {
	if c.session == nil {
		return errors.New("no device session")
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.stopSession != nil {
		c.mu.Unlock()
		cancel()
		return errors.New("controller already running")
	}
	c.stopSession = cancel
	c.mu.Unlock()

	defer func() {
		cancel()
		c.handlers.Wait()
		c.mu.Lock()
		c.stopSession = nil
		c.mu.Unlock()
	}()

	sessionErr := make(chan error, 1)
	go func() {
		sessionErr <- c.session.Run(sessionCtx)
	}()
	c.store.SetSDKLoaded(true)

	events := c.session.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sessionErr:
			c.store.SetDeviceReady(false)
			c.store.SetSDKLoaded(false)
			if err != nil {
				return errors.Wrap(err, "device session")
			}
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.HandleDeviceEvent(ctx, ev)
		}
	}
}

// Logout stops the device session, drops the credential and resets the
// store.
func (c *Controller) Logout() {
	c.mu.Lock()
	stop := c.stopSession
	c.generation++
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	c.trackEnd.Stop()
	if c.onLogout != nil {
		c.onLogout()
	}
	c.store.Reset()
	c.settle()
	zlog.Info().Msg("playback: logged out")
}

// checkPreconditions enforces an authenticated session and a known device.
func (c *Controller) checkPreconditions() error {
	if c.authenticated != nil && !c.authenticated() {
		err := failure.Mark(errors.New("no valid credential"), failure.ErrNotAuthenticated)
		zlog.Warn().Msg("playback: login required")
		c.emit(Event{Type: EventLoginRequired, State: c.State(), Err: err})
		return err
	}
	if c.store.DeviceID() == "" {
		err := failure.Mark(errors.New("device id is not known"), failure.ErrNoDevice)
		zlog.Warn().Msgf("playback: %v", err)
		c.store.SetError(queue.ErrorAlert, failure.Message(err))
		return err
	}
	return nil
}

// loadTrack resets position bookkeeping for the track now under the cursor.
func (c *Controller) loadTrack(t track.Track) {
	c.store.SetProgress(0)
	c.store.SetDuration(t.DurationMs)
}

// startPlayback activates the device and plays t on it.
func (c *Controller) startPlayback(ctx context.Context, t track.Track) error {
	deviceID := c.store.DeviceID()
	if !c.transport.ActivateDevice(ctx, deviceID) {
		return c.alert(failure.Mark(errors.Newf("activate device %s", deviceID), failure.ErrDeviceActivationFailed))
	}
	return c.play(ctx, t)
}

func (c *Controller) play(ctx context.Context, t track.Track) error {
	deviceID := c.store.DeviceID()
	if c.transport.PlayTrack(ctx, t, c.store.IsDeviceReady(), deviceID) {
		return nil
	}
	if deviceID == "" {
		return c.alert(failure.Mark(errors.Newf("play %s: device id is not known", t.ID), failure.ErrNoDevice))
	}
	return c.alert(failure.Mark(errors.Newf("play %s", t.ID), failure.ErrPlaybackCommandFailed))
}

func (c *Controller) replenish(ctx context.Context) {
	seed, ok := c.store.Current()
	if !ok || c.recommender == nil {
		return
	}
	recs, err := c.recommender.Recommend(ctx, seed)
	if err != nil {
		c.background(err)
		return
	}
	if len(recs) == 0 {
		zlog.Info().Msgf("playback: no recommendations after %s", seed)
		return
	}
	c.store.AppendToQueue(recs)
	zlog.Info().Msgf("playback: queue replenished with %d tracks", len(recs))
	c.emitTrack(EventQueueReplenished)
}

// alert records a blocking user-visible error.
func (c *Controller) alert(err error) error {
	zlog.Error().Msgf("playback: %v", err)
	c.store.SetError(queue.ErrorAlert, failure.Message(err))
	c.emit(Event{Type: EventError, State: c.State(), Err: err})
	return err
}

// background records a non-blocking error.
func (c *Controller) background(err error) {
	zlog.Warn().Msgf("playback: %v", err)
	c.store.SetError(queue.ErrorBackground, failure.Message(err))
}

// begin marks a transition in flight and returns its generation.
func (c *Controller) begin(state State) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.pending++
	c.state = state
	return c.generation
}

func (c *Controller) finish() {
	c.mu.Lock()
	c.pending--
	c.mu.Unlock()
	c.settle()
}

func (c *Controller) isLatest(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen
}

func (c *Controller) pendingTransitions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// settle derives the resting state from the store once nothing is in
// flight.
func (c *Controller) settle() {
	_, hasTrack := c.store.Current()
	playing := c.store.IsPlaying()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending > 0 {
		return
	}
	switch {
	case !hasTrack:
		c.state = StateIdle
	case playing:
		c.state = StatePlaying
	default:
		c.state = StatePaused
	}
}

func (c *Controller) emitTrack(typ EventType) {
	ev := Event{Type: typ, State: c.State()}
	if cur, ok := c.store.Current(); ok {
		ev.Track = &cur
	}
	c.emit(ev)
}

func (c *Controller) emit(ev Event) {
	select {
	case c.eventCh <- ev:
	default:
		zlog.Debug().Msgf("playback: event dropped: %s", ev.Type)
	}
}

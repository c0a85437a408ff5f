package connect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/cuebox/internal/app/notification"
	"github.com/osa030/cuebox/internal/app/queue"
	"github.com/osa030/cuebox/internal/domain/failure"
	"github.com/osa030/cuebox/internal/domain/track"
)

type playCall struct {
	track  track.Track
	extend bool
	index  *int
}

type fakePlayer struct {
	mu       sync.Mutex
	store    *queue.Store
	err      error
	plays    []playCall
	lists    [][]track.Track
	cover    string
	start    int
	volume   int
	fraction float64
	calls    []string
}

func (p *fakePlayer) record(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, name)
}

func (p *fakePlayer) PlaySingleTrack(_ context.Context, t track.Track, extend bool, index *int) error {
	p.mu.Lock()
	p.plays = append(p.plays, playCall{track: t, extend: extend, index: index})
	p.mu.Unlock()
	if p.err == nil {
		p.store.SetCurrent(t, -1)
	}
	return p.err
}

func (p *fakePlayer) PlayTrackList(_ context.Context, tracks []track.Track, cover string, start int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lists = append(p.lists, tracks)
	p.cover = cover
	p.start = start
	return p.err
}

func (p *fakePlayer) AdvanceToNext(context.Context) error {
	p.record("next")
	return p.err
}

func (p *fakePlayer) RetreatToPrevious(context.Context) error {
	p.record("previous")
	return p.err
}

func (p *fakePlayer) HandlePlaybackPause(context.Context) error {
	p.record("pause")
	return p.err
}

func (p *fakePlayer) HandlePlaybackResume(context.Context) error {
	p.record("resume")
	return p.err
}

func (p *fakePlayer) SeekTo(_ context.Context, fraction float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fraction = fraction
	return p.err
}

func (p *fakePlayer) SetVolumeLevel(_ context.Context, volume int) error {
	p.mu.Lock()
	p.volume = volume
	p.mu.Unlock()
	p.store.SetVolume(volume)
	return p.err
}

// locked runs fn with the recorder locked.
func (p *fakePlayer) locked(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn()
}

func (p *fakePlayer) CycleRepeatMode() queue.RepeatMode {
	return p.store.CycleRepeatMode()
}

func (p *fakePlayer) Resync(context.Context) error {
	p.record("resync")
	return p.err
}

func (p *fakePlayer) Logout() {
	p.record("logout")
	p.store.Reset()
}

type fakeCatalog struct {
	mu      sync.Mutex
	tracks  map[string]track.Track
	lookups int
}

func (c *fakeCatalog) GetTrack(_ context.Context, id string) (*track.Track, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookups++
	t, ok := c.tracks[id]
	if !ok {
		return nil, errors.Newf("track %s not found", id)
	}
	return &t, nil
}

func (c *fakeCatalog) Lookups() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookups
}

func (c *fakeCatalog) Search(_ context.Context, query string, limit int) ([]track.Track, error) {
	var out []track.Track
	for _, t := range c.tracks {
		if t.Name == query && len(out) < limit {
			out = append(out, t)
		}
	}
	return out, nil
}

type apiFixture struct {
	player        *fakePlayer
	catalog       *fakeCatalog
	store         *queue.Store
	notifications *notification.Manager
	service       *PlayerService
	server        *httptest.Server
}

func newAPIFixture(t *testing.T, token string) *apiFixture {
	t.Helper()
	store := queue.NewStore()
	store.SetDeviceID("dev")
	player := &fakePlayer{store: store}
	catalog := &fakeCatalog{tracks: map[string]track.Track{
		"a": {ID: "a", URI: track.URIFromID("a"), Name: "Alpha", Artists: []string{"Artist A"}},
		"b": {ID: "b", URI: track.URIFromID("b"), Name: "Bravo", Artists: []string{"Artist B"}},
	}}
	notifications := notification.NewManager()
	service := NewPlayerService(player, store, catalog, notifications)

	mux := http.NewServeMux()
	path, handler := NewPlayerServiceHandler(service, connect.WithInterceptors(NewTokenInterceptor(token)))
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		service.Close()
		server.Close()
	})

	return &apiFixture{
		player:        player,
		catalog:       catalog,
		store:         store,
		notifications: notifications,
		service:       service,
		server:        server,
	}
}

func (f *apiFixture) client(token string) *Client {
	return NewClient(f.server.Client(), f.server.URL, connect.WithInterceptors(NewTokenInterceptor(token)))
}

func request(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	msg, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return msg
}

func TestPlaySingleTrack(t *testing.T) {
	f := newAPIFixture(t, "")
	ctx := context.Background()

	res, err := f.client("").Call(ctx, PlaySingleTrackProcedure, request(t, map[string]any{"track_id": "a"}))
	require.NoError(t, err)
	assert.Equal(t, "a", res.Fields["current_track"].GetStructValue().Fields["id"].GetStringValue())

	_, err = f.client("").Call(ctx, PlaySingleTrackProcedure, request(t, map[string]any{
		"track_id":     "b",
		"extend_queue": false,
		"index":        2,
	}))
	require.NoError(t, err)

	var plays []playCall
	f.player.locked(func() { plays = append(plays, f.player.plays...) })
	require.Len(t, plays, 2)
	assert.Equal(t, "a", plays[0].track.ID)
	assert.True(t, plays[0].extend)
	assert.Nil(t, plays[0].index)
	assert.False(t, plays[1].extend)
	require.NotNil(t, plays[1].index)
	assert.Equal(t, 2, *plays[1].index)
}

func TestPlaySingleTrack_InvalidArgument(t *testing.T) {
	f := newAPIFixture(t, "")

	_, err := f.client("").Call(context.Background(), PlaySingleTrackProcedure, nil)
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	f.player.locked(func() { assert.Empty(t, f.player.plays) })
}

func TestPlayTrackList(t *testing.T) {
	f := newAPIFixture(t, "")

	_, err := f.client("").Call(context.Background(), PlayTrackListProcedure, request(t, map[string]any{
		"track_ids":   []any{"a", "b"},
		"cover_image": "http://img/cover",
		"start_index": 1,
	}))
	require.NoError(t, err)

	f.player.locked(func() {
		require.Len(t, f.player.lists, 1)
		assert.Len(t, f.player.lists[0], 2)
		assert.Equal(t, "http://img/cover", f.player.cover)
		assert.Equal(t, 1, f.player.start)
	})
}

func TestPlay_NoDeviceSkipsCatalog(t *testing.T) {
	f := newAPIFixture(t, "")
	f.store.SetDeviceID("")
	f.player.err = failure.Mark(errors.New("device id is not known"), failure.ErrNoDevice)
	ctx := context.Background()

	_, err := f.client("").Call(ctx, PlaySingleTrackProcedure, request(t, map[string]any{"track_id": "a"}))
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	_, err = f.client("").Call(ctx, PlayTrackListProcedure, request(t, map[string]any{"track_ids": []any{"a", "b"}}))
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	assert.Zero(t, f.catalog.Lookups())
	f.player.locked(func() {
		require.Len(t, f.player.plays, 1)
		assert.Equal(t, "a", f.player.plays[0].track.ID)
		require.Len(t, f.player.lists, 1)
		assert.Len(t, f.player.lists[0], 2)
	})
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code connect.Code
	}{
		{"no device", failure.Mark(errors.New("x"), failure.ErrNoDevice), connect.CodeFailedPrecondition},
		{"not authenticated", failure.Mark(errors.New("x"), failure.ErrNotAuthenticated), connect.CodeUnauthenticated},
		{"rate limited", failure.Mark(failure.Mark(errors.New("x"), failure.ErrPlaybackCommandFailed), failure.ErrRateLimited), connect.CodeResourceExhausted},
		{"command failed", failure.Mark(errors.New("x"), failure.ErrPlaybackCommandFailed), connect.CodeUnavailable},
		{"unknown", errors.New("x"), connect.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t, "")
			f.player.err = tt.err

			_, err := f.client("").Call(context.Background(), NextProcedure, nil)
			require.Error(t, err)
			assert.Equal(t, tt.code, connect.CodeOf(err))

			var connectErr *connect.Error
			require.True(t, errors.As(err, &connectErr))
			assert.Equal(t, failure.Message(tt.err), connectErr.Message())
		})
	}
}

func TestSimpleCommands(t *testing.T) {
	f := newAPIFixture(t, "")
	client := f.client("")
	ctx := context.Background()

	for _, procedure := range []string{NextProcedure, PreviousProcedure, PauseProcedure, ResumeProcedure, ResyncProcedure} {
		_, err := client.Call(ctx, procedure, nil)
		require.NoError(t, err, procedure)
	}
	f.player.locked(func() {
		assert.Equal(t, []string{"next", "previous", "pause", "resume", "resync"}, f.player.calls)
	})

	res, err := client.Call(ctx, SetVolumeProcedure, request(t, map[string]any{"volume": 30}))
	require.NoError(t, err)
	assert.Equal(t, float64(30), res.Fields["volume"].GetNumberValue())

	_, err = client.Call(ctx, SeekProcedure, request(t, map[string]any{"fraction": 0.25}))
	require.NoError(t, err)
	f.player.locked(func() { assert.InDelta(t, 0.25, f.player.fraction, 1e-9) })

	_, err = client.Call(ctx, SeekProcedure, nil)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	res, err = client.Call(ctx, CycleRepeatProcedure, nil)
	require.NoError(t, err)
	assert.Equal(t, queue.RepeatSingle.String(), res.Fields["repeat_mode"].GetStringValue())
}

func TestSearch(t *testing.T) {
	f := newAPIFixture(t, "")

	res, err := f.client("").Call(context.Background(), SearchProcedure, request(t, map[string]any{"query": "Bravo"}))
	require.NoError(t, err)
	tracks := res.Fields["tracks"].GetListValue().GetValues()
	require.Len(t, tracks, 1)
	assert.Equal(t, "b", DecodeTrack(tracks[0].GetStructValue()).ID)
}

func TestLogout(t *testing.T) {
	f := newAPIFixture(t, "")
	f.store.SetDeviceID("dev")

	res, err := f.client("").Call(context.Background(), LogoutProcedure, nil)
	require.NoError(t, err)
	f.player.locked(func() { assert.Equal(t, []string{"logout"}, f.player.calls) })
	assert.Empty(t, res.Fields["device_id"].GetStringValue())
}

func TestTokenInterceptor(t *testing.T) {
	f := newAPIFixture(t, "secret")
	ctx := context.Background()

	_, err := f.client("").Call(ctx, GetStateProcedure, nil)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	_, err = f.client("wrong").Call(ctx, GetStateProcedure, nil)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	_, err = f.client("secret").Call(ctx, GetStateProcedure, nil)
	assert.NoError(t, err)

	err = f.client("").Subscribe(ctx, func(*structpb.Struct) error { return nil })
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}

func TestSubscribe(t *testing.T) {
	f := newAPIFixture(t, "")
	f.store.SetVolume(70)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var received []*structpb.Struct
	done := make(chan error, 1)
	go func() {
		done <- f.client("").Subscribe(ctx, func(msg *structpb.Struct) error {
			mu.Lock()
			defer mu.Unlock()
			received = append(received, msg)
			return nil
		})
	}()

	require.Eventually(t, func() bool { return f.notifications.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	f.store.SetVolume(10)
	f.notifications.Broadcast(EncodeSnapshot(f.store.Snapshot()))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, float64(70), received[0].Fields["volume"].GetNumberValue())
	assert.Equal(t, float64(1), received[0].Fields[notification.SequenceField].GetNumberValue())
	assert.Equal(t, float64(10), received[1].Fields["volume"].GetNumberValue())
	assert.Equal(t, float64(2), received[1].Fields[notification.SequenceField].GetNumberValue())
	mu.Unlock()

	f.service.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not end")
	}
}

func TestEncodeSnapshot(t *testing.T) {
	store := queue.NewStore()
	snap := EncodeSnapshot(store.Snapshot())
	assert.Equal(t, float64(-1), snap.Fields["current_index"].GetNumberValue())
	_, isNull := snap.Fields["current_track"].GetKind().(*structpb.Value_NullValue)
	assert.True(t, isNull)
	assert.Equal(t, "none", snap.Fields["error_level"].GetStringValue())

	tr := track.Track{
		ID:         "a",
		URI:        track.URIFromID("a"),
		Name:       "Alpha",
		Artists:    []string{"One", "Two"},
		Album:      track.Album{Name: "First", Images: []track.Image{{URL: "http://img/a"}}},
		DurationMs: 180000,
	}
	store.ReplaceQueue([]track.Track{tr}, 0)
	snap = EncodeSnapshot(store.Snapshot())
	decoded := DecodeTrack(snap.Fields["current_track"].GetStructValue())
	assert.Equal(t, tr.ID, decoded.ID)
	assert.Equal(t, tr.Artists, decoded.Artists)
	assert.Equal(t, "http://img/a", decoded.CoverURL())
	assert.Equal(t, 180000, decoded.DurationMs)
}

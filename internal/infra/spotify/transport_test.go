package spotify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/cuebox/internal/domain/failure"
	"github.com/osa030/cuebox/internal/domain/track"
)

func TestPlayTrack_RefusesWithoutDevice(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil, Config{})
	tr := track.Track{ID: "a", URI: "spotify:track:a"}

	assert.False(t, c.PlayTrack(context.Background(), tr, false, "dev1"))
	assert.False(t, c.PlayTrack(context.Background(), tr, true, ""))
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestPlayTrack(t *testing.T) {
	var gotDevice string
	var gotBody struct {
		URIs []string `json:"uris"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/me/player/play"))
		gotDevice = r.URL.Query().Get("device_id")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil, Config{})
	ok := c.PlayTrack(context.Background(), track.Track{ID: "a", URI: "spotify:track:a"}, true, "dev1")

	assert.True(t, ok)
	assert.Equal(t, "dev1", gotDevice)
	assert.Equal(t, []string{"spotify:track:a"}, gotBody.URIs)
}

func TestPlayTrack_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil, Config{})
	assert.False(t, c.PlayTrack(context.Background(), track.Track{ID: "a", URI: "spotify:track:a"}, true, "dev1"))
}

func TestActivateDevice(t *testing.T) {
	var gotBody struct {
		DeviceIDs []string `json:"device_ids"`
		Play      bool     `json:"play"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/me/player"))
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil, Config{})
	assert.True(t, c.ActivateDevice(context.Background(), "dev1"))
	assert.Equal(t, []string{"dev1"}, gotBody.DeviceIDs)
	assert.True(t, gotBody.Play)

	assert.False(t, c.ActivateDevice(context.Background(), ""))
}

func TestActivateDevice_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil, Config{})
	assert.False(t, c.ActivateDevice(context.Background(), "dev1"))
}

func TestPauseResume_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil, Config{})

	err := c.PausePlayback(context.Background(), "dev1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrPlaybackCommandFailed))

	err = c.ResumePlayback(context.Background(), "dev1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrPlaybackCommandFailed))
}

func TestPause_RateLimitedKeepsClass(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil, Config{})
	err := c.PausePlayback(context.Background(), "dev1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrPlaybackCommandFailed))
	assert.True(t, errors.Is(err, failure.ErrRateLimited))
	assert.Equal(t, "The music service is busy. Please try again shortly.", failure.Message(err))
}

func TestPause(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil, Config{})
	require.NoError(t, c.PausePlayback(context.Background(), "dev1"))
	assert.True(t, strings.HasSuffix(path, "/me/player/pause"))
}

const devicesJSON = `{"devices":[
  {"id":"other","name":"Kitchen","type":"Speaker","is_active":true,"is_restricted":false,"volume_percent":30},
  {"id":"dev1","name":"cuebox","type":"Computer","is_active":false,"is_restricted":false,"volume_percent":55}
]}`

func TestListDevices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/me/player/devices"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(devicesJSON))
	}))
	defer srv.Close()

	t.Run("matches by name", func(t *testing.T) {
		c := newTestClient(t, srv, nil, Config{DeviceName: "cuebox"})
		d, err := c.ListDevices(context.Background())
		require.NoError(t, err)
		require.NotNil(t, d)
		assert.Equal(t, "dev1", d.ID)
		assert.Equal(t, 55, d.Volume)
	})

	t.Run("unknown name", func(t *testing.T) {
		c := newTestClient(t, srv, nil, Config{DeviceName: "missing"})
		d, err := c.ListDevices(context.Background())
		require.NoError(t, err)
		assert.Nil(t, d)
	})

	t.Run("no name falls back to active", func(t *testing.T) {
		c := newTestClient(t, srv, nil, Config{})
		d, err := c.ListDevices(context.Background())
		require.NoError(t, err)
		require.NotNil(t, d)
		assert.Equal(t, "other", d.ID)
	})
}

func TestPlayerState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"device": {"id":"dev1","name":"cuebox","type":"Computer","is_active":true,"volume_percent":50},
			"progress_ms": 1234,
			"is_playing": true,
			"item": {"id":"a","uri":"spotify:track:a","name":"Alpha","duration_ms":5000,"artists":[{"name":"Artist A"}],"album":{"name":"A","images":[]}}
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil, Config{})
	st, err := c.PlayerState(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)

	assert.Equal(t, "dev1", st.DeviceID)
	assert.Equal(t, 1234, st.PositionMs)
	assert.True(t, st.Playing)
	require.NotNil(t, st.Track)
	assert.Equal(t, "a", st.Track.ID)
	assert.Equal(t, 5000, st.Track.DurationMs)
}

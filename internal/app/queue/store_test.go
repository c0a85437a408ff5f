package queue

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/cuebox/internal/domain/track"
)

func makeTracks(ids ...string) []track.Track {
	tracks := make([]track.Track, len(ids))
	for i, id := range ids {
		tracks[i] = track.Track{ID: id, URI: track.URIFromID(id), Name: "Track " + id}
	}
	return tracks
}

func TestStore_ReplaceQueue_SetsCurrentTrack(t *testing.T) {
	for n := 1; n <= 4; n++ {
		for i := 0; i < n; i++ {
			t.Run(fmt.Sprintf("len=%d index=%d", n, i), func(t *testing.T) {
				ids := make([]string, n)
				for k := range ids {
					ids[k] = fmt.Sprintf("t%d", k)
				}
				tracks := makeTracks(ids...)

				s := NewStore()
				s.ReplaceQueue(tracks, i)

				snap := s.Snapshot()
				require.NotNil(t, snap.CurrentTrack)
				assert.Equal(t, tracks[i], *snap.CurrentTrack)
				assert.Equal(t, i, snap.CurrentIndex)
			})
		}
	}
}

func TestStore_ReplaceQueue_EmptyIsNoop(t *testing.T) {
	s := NewStore()
	s.ReplaceQueue(makeTracks("a", "b"), 1)
	s.ReplaceQueue(nil, 0)

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 1, s.Index())
}

func TestStore_ReplaceQueue_OutOfRangeIndex(t *testing.T) {
	s := NewStore()
	s.ReplaceQueue(makeTracks("a", "b"), 5)
	assert.Equal(t, 0, s.Index())
}

func TestStore_ReplaceQueue_CopiesInput(t *testing.T) {
	tracks := makeTracks("a", "b")
	s := NewStore()
	s.ReplaceQueue(tracks, 0)
	tracks[0].Name = "mutated"

	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "Track a", cur.Name)
}

func TestStore_AppendToQueue(t *testing.T) {
	s := NewStore()
	s.ReplaceQueue(makeTracks("a", "b", "c"), 2)
	s.AppendToQueue(makeTracks("d", "e"))

	assert.Equal(t, 5, s.Len())
	assert.Equal(t, 2, s.Index())
	d, ok := s.TrackAt(3)
	require.True(t, ok)
	assert.Equal(t, "d", d.ID)
}

func TestStore_Advance(t *testing.T) {
	tests := []struct {
		name      string
		start     int
		mode      RepeatMode
		wantMoved bool
		wantIndex int
	}{
		{name: "middle moves forward", start: 0, mode: RepeatOff, wantMoved: true, wantIndex: 1},
		{name: "last with repeat off stays", start: 2, mode: RepeatOff, wantMoved: false, wantIndex: 2},
		{name: "last with repeat single stays", start: 2, mode: RepeatSingle, wantMoved: false, wantIndex: 2},
		{name: "last with repeat all wraps", start: 2, mode: RepeatAll, wantMoved: true, wantIndex: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			s.ReplaceQueue(makeTracks("a", "b", "c"), tt.start)
			s.SetRepeatMode(tt.mode)

			assert.Equal(t, tt.wantMoved, s.Advance())
			assert.Equal(t, tt.wantIndex, s.Index())
		})
	}
}

func TestStore_Retreat(t *testing.T) {
	tests := []struct {
		name      string
		start     int
		mode      RepeatMode
		wantMoved bool
		wantIndex int
	}{
		{name: "middle moves back", start: 2, mode: RepeatOff, wantMoved: true, wantIndex: 1},
		{name: "first with repeat off stays", start: 0, mode: RepeatOff, wantMoved: false, wantIndex: 0},
		{name: "first with repeat all wraps", start: 0, mode: RepeatAll, wantMoved: true, wantIndex: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			s.ReplaceQueue(makeTracks("a", "b", "c"), tt.start)
			s.SetRepeatMode(tt.mode)

			assert.Equal(t, tt.wantMoved, s.Retreat())
			assert.Equal(t, tt.wantIndex, s.Index())
		})
	}
}

func TestStore_AdvanceRetreat_EmptyQueue(t *testing.T) {
	s := NewStore()
	s.SetRepeatMode(RepeatAll)
	assert.False(t, s.Advance())
	assert.False(t, s.Retreat())
	assert.Equal(t, -1, s.Index())
}

func TestStore_CycleRepeatMode_IsCyclic(t *testing.T) {
	for _, start := range []RepeatMode{RepeatOff, RepeatSingle, RepeatAll} {
		t.Run(start.String(), func(t *testing.T) {
			s := NewStore()
			s.SetRepeatMode(start)
			s.CycleRepeatMode()
			s.CycleRepeatMode()
			s.CycleRepeatMode()
			assert.Equal(t, start, s.RepeatMode())
		})
	}
}

func TestStore_CycleRepeatMode_Order(t *testing.T) {
	s := NewStore()
	assert.Equal(t, RepeatSingle, s.CycleRepeatMode())
	assert.Equal(t, RepeatAll, s.CycleRepeatMode())
	assert.Equal(t, RepeatOff, s.CycleRepeatMode())
}

func TestStore_SetCurrent(t *testing.T) {
	s := NewStore()
	tracks := makeTracks("a", "b", "c")
	s.ReplaceQueue(tracks, 0)

	// Track already at index: cursor moves, queue kept
	s.SetCurrent(tracks[2], 2)
	assert.Equal(t, 2, s.Index())
	assert.Equal(t, 3, s.Len())

	// Stale or missing hint: the queued track is found, queue kept
	s.SetCurrent(tracks[1], 0)
	assert.Equal(t, 1, s.Index())
	assert.Equal(t, 3, s.Len())
	s.SetCurrent(tracks[0], -1)
	assert.Equal(t, 0, s.Index())
	assert.Equal(t, 3, s.Len())

	// Unknown track: queue collapses to the single track
	x := makeTracks("x")[0]
	s.SetCurrent(x, 7)
	snap := s.Snapshot()
	assert.Equal(t, 0, snap.CurrentIndex)
	require.NotNil(t, snap.CurrentTrack)
	assert.Equal(t, x, *snap.CurrentTrack)
	assert.Len(t, snap.Queue, 1)
}

func TestStore_SetVolume_Clamps(t *testing.T) {
	s := NewStore()
	s.SetVolume(150)
	assert.Equal(t, 100, s.Snapshot().Volume)
	s.SetVolume(-3)
	assert.Equal(t, 0, s.Snapshot().Volume)
	s.SetVolume(42)
	assert.Equal(t, 42, s.Snapshot().Volume)
}

func TestStore_Errors(t *testing.T) {
	s := NewStore()
	s.SetError(ErrorAlert, "no device")
	snap := s.Snapshot()
	assert.Equal(t, "no device", snap.Error)
	assert.Equal(t, ErrorAlert, snap.ErrorLevel)

	s.ClearError()
	snap = s.Snapshot()
	assert.Empty(t, snap.Error)
	assert.Equal(t, ErrorNone, snap.ErrorLevel)
}

func TestStore_Reset(t *testing.T) {
	s := NewStore()
	s.ReplaceQueue(makeTracks("a"), 0)
	s.SetPlaying(true)
	s.SetDeviceID("dev")
	s.SetDeviceReady(true)
	s.SetRepeatMode(RepeatAll)

	s.Reset()
	snap := s.Snapshot()
	assert.Empty(t, snap.Queue)
	assert.Nil(t, snap.CurrentTrack)
	assert.Equal(t, -1, snap.CurrentIndex)
	assert.False(t, snap.IsPlaying)
	assert.Empty(t, snap.DeviceID)
	assert.False(t, snap.IsDeviceReady)
	assert.Equal(t, RepeatOff, snap.RepeatMode)
	assert.Equal(t, DefaultVolume, snap.Volume)
}

func TestStore_OnChange(t *testing.T) {
	s := NewStore()
	var got []Snapshot
	s.OnChange(func(snap Snapshot) { got = append(got, snap) })

	s.ReplaceQueue(makeTracks("a", "b"), 0)
	s.Advance()
	s.Advance() // no movement, no notification

	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].CurrentIndex)
	assert.Equal(t, 1, got[1].CurrentIndex)
}

func TestStore_ConcurrentMutations(t *testing.T) {
	s := NewStore()
	s.ReplaceQueue(makeTracks("a", "b", "c"), 0)
	s.SetRepeatMode(RepeatAll)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Advance()
		}()
		go func() {
			defer wg.Done()
			s.AppendToQueue(makeTracks("x"))
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Len(t, snap.Queue, 53)
	require.NotNil(t, snap.CurrentTrack)
	assert.Equal(t, snap.Queue[snap.CurrentIndex], *snap.CurrentTrack)
}

func TestParseRepeatMode(t *testing.T) {
	assert.Equal(t, RepeatSingle, ParseRepeatMode("single"))
	assert.Equal(t, RepeatSingle, ParseRepeatMode("track"))
	assert.Equal(t, RepeatAll, ParseRepeatMode("all"))
	assert.Equal(t, RepeatOff, ParseRepeatMode("off"))
	assert.Equal(t, RepeatOff, ParseRepeatMode("bogus"))
}

// Package connect provides the Connect RPC control API.
package connect

import (
	"context"
	"net/http"
	"sync"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/cuebox/internal/app/notification"
	"github.com/osa030/cuebox/internal/app/queue"
	"github.com/osa030/cuebox/internal/domain/track"
)

// ServiceName is the fully-qualified name of the player service.
const ServiceName = "cuebox.v1.PlayerService"

// Procedure paths.
const (
	PlaySingleTrackProcedure = "/" + ServiceName + "/PlaySingleTrack"
	PlayTrackListProcedure   = "/" + ServiceName + "/PlayTrackList"
	NextProcedure            = "/" + ServiceName + "/Next"
	PreviousProcedure        = "/" + ServiceName + "/Previous"
	PauseProcedure           = "/" + ServiceName + "/Pause"
	ResumeProcedure          = "/" + ServiceName + "/Resume"
	SeekProcedure            = "/" + ServiceName + "/Seek"
	SetVolumeProcedure       = "/" + ServiceName + "/SetVolume"
	CycleRepeatProcedure     = "/" + ServiceName + "/CycleRepeat"
	ResyncProcedure          = "/" + ServiceName + "/Resync"
	GetStateProcedure        = "/" + ServiceName + "/GetState"
	SearchProcedure          = "/" + ServiceName + "/Search"
	LogoutProcedure          = "/" + ServiceName + "/Logout"
	SubscribeProcedure       = "/" + ServiceName + "/Subscribe"
)

// Player is the playback surface the service drives.
type Player interface {
	PlaySingleTrack(ctx context.Context, t track.Track, extendQueue bool, explicitIndex *int) error
	PlayTrackList(ctx context.Context, tracks []track.Track, coverImage string, startIndex int) error
	AdvanceToNext(ctx context.Context) error
	RetreatToPrevious(ctx context.Context) error
	HandlePlaybackPause(ctx context.Context) error
	HandlePlaybackResume(ctx context.Context) error
	SeekTo(ctx context.Context, fraction float64) error
	SetVolumeLevel(ctx context.Context, volume int) error
	CycleRepeatMode() queue.RepeatMode
	Resync(ctx context.Context) error
	Logout()
}

// Catalog resolves tracks by ID and query.
type Catalog interface {
	GetTrack(ctx context.Context, trackID string) (*track.Track, error)
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
}

// PlayerService implements the player service.
type PlayerService struct {
	player        Player
	store         *queue.Store
	catalog       Catalog
	notifications *notification.Manager

	done      chan struct{}
	closeOnce sync.Once
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(player Player, store *queue.Store, catalog Catalog, notifications *notification.Manager) *PlayerService {
	return &PlayerService{
		player:        player,
		store:         store,
		catalog:       catalog,
		notifications: notifications,
		done:          make(chan struct{}),
	}
}

// NewPlayerServiceHandler builds the HTTP handler serving every procedure
// and returns the path prefix to mount it on.
func NewPlayerServiceHandler(svc *PlayerService, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	unary := map[string]func(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error){
		PlaySingleTrackProcedure: svc.PlaySingleTrack,
		PlayTrackListProcedure:   svc.PlayTrackList,
		NextProcedure:            svc.Next,
		PreviousProcedure:        svc.Previous,
		PauseProcedure:           svc.Pause,
		ResumeProcedure:          svc.Resume,
		SeekProcedure:            svc.Seek,
		SetVolumeProcedure:       svc.SetVolume,
		CycleRepeatProcedure:     svc.CycleRepeat,
		ResyncProcedure:          svc.Resync,
		GetStateProcedure:        svc.GetState,
		SearchProcedure:          svc.Search,
		LogoutProcedure:          svc.Logout,
	}
	for procedure, fn := range unary {
		mux.Handle(procedure, connect.NewUnaryHandler(procedure, fn, opts...))
	}
	mux.Handle(SubscribeProcedure, connect.NewServerStreamHandler(SubscribeProcedure, svc.Subscribe, opts...))
	return "/" + ServiceName + "/", mux
}

// Close ends all open subscriptions.
func (s *PlayerService) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// PlaySingleTrack plays one track, by default extending the queue with
// recommendations.
func (s *PlayerService) PlaySingleTrack(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	id := stringField(req.Msg, "track_id")
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("track_id is required"))
	}
	t, err := s.resolve(ctx, id)
	if err != nil {
		return nil, toConnectError(err)
	}

	var index *int
	if n, ok := numberField(req.Msg, "index"); ok {
		i := int(n)
		index = &i
	}
	extend := boolField(req.Msg, "extend_queue", true)
	if err := s.player.PlaySingleTrack(ctx, *t, extend, index); err != nil {
		return nil, toConnectError(err)
	}
	return s.state(), nil
}

// PlayTrackList replaces the queue with the given tracks.
func (s *PlayerService) PlayTrackList(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	ids := listField(req.Msg, "track_ids")
	if len(ids) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("track_ids is required"))
	}

	tracks := make([]track.Track, 0, len(ids))
	for _, v := range ids {
		t, err := s.resolve(ctx, v.GetStringValue())
		if err != nil {
			return nil, toConnectError(err)
		}
		tracks = append(tracks, *t)
	}

	cover := stringField(req.Msg, "cover_image")
	start := intField(req.Msg, "start_index", 0)
	if err := s.player.PlayTrackList(ctx, tracks, cover, start); err != nil {
		return nil, toConnectError(err)
	}
	return s.state(), nil
}

// Next advances to the next track.
func (s *PlayerService) Next(ctx context.Context, _ *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return s.run(s.player.AdvanceToNext(ctx))
}

// Previous goes back one track.
func (s *PlayerService) Previous(ctx context.Context, _ *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return s.run(s.player.RetreatToPrevious(ctx))
}

// Pause pauses playback.
func (s *PlayerService) Pause(ctx context.Context, _ *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return s.run(s.player.HandlePlaybackPause(ctx))
}

// Resume resumes playback.
func (s *PlayerService) Resume(ctx context.Context, _ *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return s.run(s.player.HandlePlaybackResume(ctx))
}

// Seek seeks to "fraction" (0..1) of the current track.
func (s *PlayerService) Seek(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	fraction, ok := numberField(req.Msg, "fraction")
	if !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("fraction is required"))
	}
	return s.run(s.player.SeekTo(ctx, fraction))
}

// SetVolume sets "volume" (0-100).
func (s *PlayerService) SetVolume(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	volume, ok := numberField(req.Msg, "volume")
	if !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("volume is required"))
	}
	return s.run(s.player.SetVolumeLevel(ctx, int(volume)))
}

// CycleRepeat advances the repeat mode.
func (s *PlayerService) CycleRepeat(_ context.Context, _ *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	s.player.CycleRepeatMode()
	return s.state(), nil
}

// Resync reconciles local and device play state.
func (s *PlayerService) Resync(ctx context.Context, _ *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return s.run(s.player.Resync(ctx))
}

// GetState returns the current state snapshot.
func (s *PlayerService) GetState(_ context.Context, _ *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return s.state(), nil
}

// Search looks up tracks by "query".
func (s *PlayerService) Search(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	query := stringField(req.Msg, "query")
	if query == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("query is required"))
	}
	tracks, err := s.catalog.Search(ctx, query, intField(req.Msg, "limit", 10))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&structpb.Struct{Fields: map[string]*structpb.Value{
		"tracks": EncodeTracks(tracks),
	}}), nil
}

// Logout stops the device session and clears all state.
func (s *PlayerService) Logout(_ context.Context, _ *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	s.player.Logout()
	return s.state(), nil
}

// Subscribe streams state snapshots, starting with the current one.
func (s *PlayerService) Subscribe(
	ctx context.Context,
	_ *connect.Request[structpb.Struct],
	stream *connect.ServerStream[structpb.Struct],
) error {
	initial := s.notifications.Stamp(EncodeSnapshot(s.store.Snapshot()))
	if err := stream.Send(initial); err != nil {
		return err
	}

	id := s.notifications.Subscribe(stream)
	defer s.notifications.Unsubscribe(id)

	select {
	case <-ctx.Done():
	case <-s.done:
	}
	return nil
}

// resolve looks a track up in the catalog. Without a known device the
// player rejects the play before any network call, so the catalog is not
// asked and a bare track carrying the ID is returned.
func (s *PlayerService) resolve(ctx context.Context, id string) (*track.Track, error) {
	if s.store.DeviceID() == "" {
		return &track.Track{ID: id}, nil
	}
	return s.catalog.GetTrack(ctx, id)
}

func (s *PlayerService) run(err error) (*connect.Response[structpb.Struct], error) {
	if err != nil {
		return nil, toConnectError(err)
	}
	return s.state(), nil
}

func (s *PlayerService) state() *connect.Response[structpb.Struct] {
	return connect.NewResponse(EncodeSnapshot(s.store.Snapshot()))
}

func logRPCError(err error, code connect.Code) {
	zlog.Debug().Msgf("rpc error: code=%s err=%v", code, err)
}

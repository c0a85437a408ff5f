// Package main provides the command-line client for the control API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"google.golang.org/protobuf/types/known/structpb"

	apiconnect "github.com/osa030/cuebox/internal/api/connect"
)

var (
	app    = kingpin.New("cuebox", "cuebox playback control client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").Envar("CUEBOX_SERVER").String()
	token  = app.Flag("token", "Control API token").Envar("CUEBOX_API_TOKEN").String()

	playCmd      = app.Command("play", "Play a track and queue recommendations after it")
	playTrackID  = playCmd.Arg("track", "Spotify track ID, URI or URL").Required().String()
	playNoExtend = playCmd.Flag("no-extend", "Do not queue recommendations").Bool()
	playIndex    = playCmd.Flag("index", "Position of the track in the current queue").Default("-1").Int()

	listCmd      = app.Command("list", "Replace the queue with tracks and play")
	listTrackIDs = listCmd.Arg("tracks", "Spotify track IDs, URIs or URLs").Required().Strings()
	listCover    = listCmd.Flag("cover", "Album art URL for tracks without one").String()
	listStart    = listCmd.Flag("start", "Index to start at").Default("0").Int()

	nextCmd   = app.Command("next", "Skip to the next track")
	prevCmd   = app.Command("prev", "Go back to the previous track")
	pauseCmd  = app.Command("pause", "Pause playback")
	resumeCmd = app.Command("resume", "Resume playback")

	seekCmd      = app.Command("seek", "Seek within the current track")
	seekFraction = seekCmd.Arg("fraction", "Position as a fraction of the track (0-1)").Required().Float64()

	volumeCmd   = app.Command("volume", "Set the volume")
	volumeLevel = volumeCmd.Arg("level", "Volume (0-100)").Required().Int()

	repeatCmd    = app.Command("repeat", "Cycle the repeat mode")
	resyncCmd    = app.Command("resync", "Reconcile local and device play state")
	statusCmd    = app.Command("status", "Show the current state")
	logoutCmd    = app.Command("logout", "Stop the device session and clear state")
	subscribeCmd = app.Command("subscribe", "Follow state changes")

	searchCmd   = app.Command("search", "Search the catalog")
	searchQuery = searchCmd.Arg("query", "Search query").Required().Strings()
	searchLimit = searchCmd.Flag("limit", "Maximum results").Default("10").Int()
)

func main() {
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewClient(
		http.DefaultClient,
		*server,
		connect.WithInterceptors(apiconnect.NewTokenInterceptor(*token)),
	)

	if command == subscribeCmd.FullCommand() {
		subscribe(client)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	procedure, msg, err := buildRequest(command)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	res, err := client.Call(ctx, procedure, msg)
	if err != nil {
		fmt.Printf("Error: %s\n", errorMessage(err))
		os.Exit(1)
	}

	if command == searchCmd.FullCommand() {
		printTracks(res)
		return
	}
	printState(res)
}

func buildRequest(command string) (string, *structpb.Struct, error) {
	switch command {
	case playCmd.FullCommand():
		fields := map[string]any{
			"track_id":     *playTrackID,
			"extend_queue": !*playNoExtend,
		}
		if *playIndex >= 0 {
			fields["index"] = *playIndex
		}
		msg, err := structpb.NewStruct(fields)
		return apiconnect.PlaySingleTrackProcedure, msg, err
	case listCmd.FullCommand():
		ids := make([]any, len(*listTrackIDs))
		for i, id := range *listTrackIDs {
			ids[i] = id
		}
		msg, err := structpb.NewStruct(map[string]any{
			"track_ids":   ids,
			"cover_image": *listCover,
			"start_index": *listStart,
		})
		return apiconnect.PlayTrackListProcedure, msg, err
	case nextCmd.FullCommand():
		return apiconnect.NextProcedure, nil, nil
	case prevCmd.FullCommand():
		return apiconnect.PreviousProcedure, nil, nil
	case pauseCmd.FullCommand():
		return apiconnect.PauseProcedure, nil, nil
	case resumeCmd.FullCommand():
		return apiconnect.ResumeProcedure, nil, nil
	case seekCmd.FullCommand():
		msg, err := structpb.NewStruct(map[string]any{"fraction": *seekFraction})
		return apiconnect.SeekProcedure, msg, err
	case volumeCmd.FullCommand():
		msg, err := structpb.NewStruct(map[string]any{"volume": *volumeLevel})
		return apiconnect.SetVolumeProcedure, msg, err
	case repeatCmd.FullCommand():
		return apiconnect.CycleRepeatProcedure, nil, nil
	case resyncCmd.FullCommand():
		return apiconnect.ResyncProcedure, nil, nil
	case statusCmd.FullCommand():
		return apiconnect.GetStateProcedure, nil, nil
	case logoutCmd.FullCommand():
		return apiconnect.LogoutProcedure, nil, nil
	case searchCmd.FullCommand():
		msg, err := structpb.NewStruct(map[string]any{
			"query": strings.Join(*searchQuery, " "),
			"limit": *searchLimit,
		})
		return apiconnect.SearchProcedure, msg, err
	}
	return "", nil, errors.Newf("unknown command %q", command)
}

func subscribe(client *apiconnect.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Subscribed to state changes. Press Ctrl+C to exit.")
	err := client.Subscribe(ctx, func(msg *structpb.Struct) error {
		fmt.Printf("\n[Sequence: %.0f]\n", msg.Fields["sequence_no"].GetNumberValue())
		printState(msg)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		fmt.Printf("Stream error: %s\n", errorMessage(err))
		os.Exit(1)
	}
	fmt.Println("\nUnsubscribed.")
}

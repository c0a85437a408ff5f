package main

import (
	"fmt"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/structpb"

	apiconnect "github.com/osa030/cuebox/internal/api/connect"
)

func printState(s *structpb.Struct) {
	f := s.GetFields()

	status := "⏸  Paused"
	if f["is_playing"].GetBoolValue() {
		status = "▶️  Playing"
	}
	device := "not ready"
	if f["is_device_ready"].GetBoolValue() {
		device = "ready (" + f["device_id"].GetStringValue() + ")"
	}

	fmt.Printf("State:   %s\n", status)
	fmt.Printf("Device:  %s\n", device)
	fmt.Printf("Volume:  %.0f\n", f["volume"].GetNumberValue())
	fmt.Printf("Repeat:  %s\n", f["repeat_mode"].GetStringValue())

	if cur := f["current_track"].GetStructValue(); cur != nil {
		t := apiconnect.DecodeTrack(cur)
		fmt.Printf("Track:   %s\n", t)
		fmt.Printf("Time:    %s / %s\n",
			formatMs(f["progress_ms"].GetNumberValue()),
			formatMs(f["duration_ms"].GetNumberValue()))
	}

	queue := f["queue"].GetListValue().GetValues()
	if len(queue) > 0 {
		current := int(f["current_index"].GetNumberValue())
		fmt.Printf("Queue (%d):\n", len(queue))
		for i, v := range queue {
			marker := "  "
			if i == current {
				marker = "> "
			}
			fmt.Printf("  %s%2d. %s\n", marker, i, apiconnect.DecodeTrack(v.GetStructValue()))
		}
	}

	if msg := f["error"].GetStringValue(); msg != "" {
		fmt.Printf("Error [%s]: %s\n", f["error_level"].GetStringValue(), msg)
	}
}

func printTracks(s *structpb.Struct) {
	tracks := s.GetFields()["tracks"].GetListValue().GetValues()
	if len(tracks) == 0 {
		fmt.Println("No tracks found")
		return
	}
	for i, v := range tracks {
		t := apiconnect.DecodeTrack(v.GetStructValue())
		fmt.Printf("%2d. %-40s %s\n", i+1, t.String(), t.ID)
	}
}

func formatMs(ms float64) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func errorMessage(err error) string {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return fmt.Sprintf("%s (%s)", connectErr.Message(), strings.ReplaceAll(connectErr.Code().String(), "_", " "))
	}
	return err.Error()
}

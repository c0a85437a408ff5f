package connect

import (
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/cuebox/internal/app/queue"
	"github.com/osa030/cuebox/internal/domain/track"
)

// EncodeTrack converts a track to its wire form.
func EncodeTrack(t track.Track) *structpb.Struct {
	artists := make([]*structpb.Value, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = structpb.NewStringValue(a)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":          structpb.NewStringValue(t.ID),
		"uri":         structpb.NewStringValue(t.URI),
		"name":        structpb.NewStringValue(t.Name),
		"artists":     structpb.NewListValue(&structpb.ListValue{Values: artists}),
		"album":       structpb.NewStringValue(t.Album.Name),
		"cover_url":   structpb.NewStringValue(t.CoverURL()),
		"duration_ms": structpb.NewNumberValue(float64(t.DurationMs)),
	}}
}

// DecodeTrack converts a wire track back. Unknown fields are ignored.
func DecodeTrack(s *structpb.Struct) track.Track {
	t := track.Track{
		ID:         stringField(s, "id"),
		URI:        stringField(s, "uri"),
		Name:       stringField(s, "name"),
		DurationMs: intField(s, "duration_ms", 0),
	}
	t.Album.Name = stringField(s, "album")
	if cover := stringField(s, "cover_url"); cover != "" {
		t.Album.Images = []track.Image{{URL: cover}}
	}
	for _, v := range listField(s, "artists") {
		t.Artists = append(t.Artists, v.GetStringValue())
	}
	return t
}

// EncodeTracks converts a track list to a list value.
func EncodeTracks(tracks []track.Track) *structpb.Value {
	values := make([]*structpb.Value, len(tracks))
	for i, t := range tracks {
		values[i] = structpb.NewStructValue(EncodeTrack(t))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

// EncodeSnapshot converts a queue snapshot to its wire form.
func EncodeSnapshot(s queue.Snapshot) *structpb.Struct {
	current := structpb.NewNullValue()
	if s.CurrentTrack != nil {
		current = structpb.NewStructValue(EncodeTrack(*s.CurrentTrack))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"queue":           EncodeTracks(s.Queue),
		"current_index":   structpb.NewNumberValue(float64(s.CurrentIndex)),
		"current_track":   current,
		"is_playing":      structpb.NewBoolValue(s.IsPlaying),
		"progress_ms":     structpb.NewNumberValue(float64(s.ProgressMs)),
		"duration_ms":     structpb.NewNumberValue(float64(s.DurationMs)),
		"volume":          structpb.NewNumberValue(float64(s.Volume)),
		"repeat_mode":     structpb.NewStringValue(s.RepeatMode.String()),
		"device_id":       structpb.NewStringValue(s.DeviceID),
		"is_device_ready": structpb.NewBoolValue(s.IsDeviceReady),
		"is_sdk_loaded":   structpb.NewBoolValue(s.IsSDKLoaded),
		"error":           structpb.NewStringValue(s.Error),
		"error_level":     structpb.NewStringValue(s.ErrorLevel.String()),
	}}
}

func stringField(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[key].GetStringValue()
}

func boolField(s *structpb.Struct, key string, fallback bool) bool {
	if s == nil {
		return fallback
	}
	v, ok := s.GetFields()[key]
	if !ok {
		return fallback
	}
	if _, isBool := v.GetKind().(*structpb.Value_BoolValue); !isBool {
		return fallback
	}
	return v.GetBoolValue()
}

func numberField(s *structpb.Struct, key string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	v, ok := s.GetFields()[key]
	if !ok {
		return 0, false
	}
	if _, isNumber := v.GetKind().(*structpb.Value_NumberValue); !isNumber {
		return 0, false
	}
	return v.GetNumberValue(), true
}

func intField(s *structpb.Struct, key string, fallback int) int {
	n, ok := numberField(s, key)
	if !ok {
		return fallback
	}
	return int(n)
}

func listField(s *structpb.Struct, key string) []*structpb.Value {
	if s == nil {
		return nil
	}
	return s.GetFields()[key].GetListValue().GetValues()
}

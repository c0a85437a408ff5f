package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/cuebox/internal/domain/track"
)

// DuplicateTrackFilter rejects candidates already in the queue.
// Detects:
// - Exact track matches
// - Remasters (normalized track name + same artist)
// Excludes:
// - Cover songs (same track name but different artist)
type DuplicateTrackFilter struct {
	queue QueueSource
}

// NewDuplicateTrackFilter creates a new duplicate track filter.
func NewDuplicateTrackFilter(queue QueueSource) *DuplicateTrackFilter {
	return &DuplicateTrackFilter{queue: queue}
}

// Name returns the filter name.
func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track"
}

// Description returns the filter description.
func (f *DuplicateTrackFilter) Description() string {
	return "Rejects tracks already queued, including remasters; covers by other artists are allowed"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateTrackFilter) ValidateConfig(map[string]any) error {
	// No configuration needed
	return nil
}

// Check checks if the track is a duplicate.
func (f *DuplicateTrackFilter) Check(_ context.Context, candidate track.Track) Result {
	if f.queue == nil {
		return Accept()
	}
	if containsSong(f.queue.Tracks(), candidate) {
		return Reject("duplicate_track")
	}
	return Accept()
}

// SameSong reports whether two tracks are the same recording or a
// remaster/alternate version of it by the same main artist.
func SameSong(a, b track.Track) bool {
	if a.Equal(b) {
		return true
	}
	if normalizeTrackName(a.Name) != normalizeTrackName(b.Name) {
		return false
	}
	// Different artists means a cover
	return isSameArtist(a, b)
}

var (
	remasterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*\(.*?remaster.*?\)`),              // "(Any Remaster text)"
		regexp.MustCompile(`\s*\[.*?remaster.*?\]`),              // "[Any Remaster text]"
	}
	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*\(.*?version\)`),        // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),           // "(Radio Edit)"
		regexp.MustCompile(`\s*-\s*live\b.*$`),         // "- Live at Budokan"
		regexp.MustCompile(`\s*\(live\)`),              // "(Live)"
		regexp.MustCompile(`\s*-?\s*radio\s+edit`),     // "- Radio Edit"
		regexp.MustCompile(`\s*-?\s*single\s+version`), // "- Single Version"
	}
	spaces = regexp.MustCompile(`\s+`)
)

// normalizeTrackName removes remaster information and version details.
func normalizeTrackName(name string) string {
	normalized := strings.ToLower(name)

	for _, pattern := range remasterPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	normalized = strings.TrimSpace(normalized)
	normalized = spaces.ReplaceAllString(normalized, " ")
	return strings.TrimRight(normalized, " -")
}

// isSameArtist checks if two tracks have the same main artist.
func isSameArtist(a, b track.Track) bool {
	if a.MainArtist() == "" || b.MainArtist() == "" {
		return false
	}
	return strings.EqualFold(a.MainArtist(), b.MainArtist())
}

func init() {
	Register("duplicate_track", func(d Deps) Filter {
		return NewDuplicateTrackFilter(d.Queue)
	})
}

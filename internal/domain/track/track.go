// Package track provides the Track domain entity.
package track

import (
	"fmt"
	"time"
)

// Image is a single album artwork rendition.
type Image struct {
	URL    string
	Width  int
	Height int
}

// Album is the album reference carried by a track.
type Album struct {
	Name   string
	Images []Image // Largest first, as returned by the catalog
}

// Track represents a playable catalog track.
// Tracks are immutable once fetched; collections hold their own copies.
type Track struct {
	ID         string   // Catalog track ID
	URI        string   // Playable URI (spotify:track:...)
	Name       string   // Track name
	Artists    []string // Artist names
	Album      Album    // Album name and artwork
	DurationMs int      // Track duration in milliseconds
	Markets    []string // Available markets
	IsPlayable *bool    // Playable in the requested market (nil if market not specified)
}

// Duration returns the track length as a time.Duration.
func (t Track) Duration() time.Duration {
	return time.Duration(t.DurationMs) * time.Millisecond
}

// MainArtist returns the first artist name, or "" when unknown.
func (t Track) MainArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// HasCoverImage reports whether the album carries at least one image URL.
func (t Track) HasCoverImage() bool {
	for _, img := range t.Album.Images {
		if img.URL != "" {
			return true
		}
	}
	return false
}

// CoverURL returns the largest album image URL, or "".
func (t Track) CoverURL() string {
	for _, img := range t.Album.Images {
		if img.URL != "" {
			return img.URL
		}
	}
	return ""
}

// WithCoverImage returns a copy of the track whose album art is set to
// cover when the track has none of its own.
func (t Track) WithCoverImage(cover string) Track {
	if cover == "" || t.HasCoverImage() {
		return t
	}
	t.Album.Images = []Image{{URL: cover}}
	return t
}

// Equal reports whether two tracks refer to the same catalog entry.
// URI is compared first; ID is the fallback when either URI is missing.
func (t Track) Equal(other Track) bool {
	if t.URI != "" && other.URI != "" {
		return t.URI == other.URI
	}
	return t.ID != "" && t.ID == other.ID
}

// String returns "Artist - Name" for logs.
func (t Track) String() string {
	if a := t.MainArtist(); a != "" {
		return fmt.Sprintf("%s - %s", a, t.Name)
	}
	return t.Name
}

// IsAvailableInMarket checks if the track is available in the specified market.
func (t *Track) IsAvailableInMarket(market string) bool {
	// IsPlayable takes precedence (track relinking)
	if t.IsPlayable != nil {
		return *t.IsPlayable
	}

	for _, m := range t.Markets {
		if m == market {
			return true
		}
	}
	return false
}

// URIFromID builds a playable track URI from a bare catalog ID.
func URIFromID(id string) string {
	return "spotify:track:" + id
}

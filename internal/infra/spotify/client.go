// Package spotify provides the Spotify Web API client used for playback
// commands, recommendations and catalog lookups.
package spotify

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"github.com/osa030/cuebox/internal/domain/failure"
	"github.com/osa030/cuebox/internal/domain/track"
)

// DefaultRecommendationLimit is the number of tracks requested per seed.
const DefaultRecommendationLimit = 20

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	deviceName string
}

// Config represents Spotify client configuration.
type Config struct {
	Market     string
	DeviceName string // Name of the client-rendered playback device

	// BaseURL overrides the Web API root (tests).
	BaseURL string
	// MaxRetries overrides the rate-limit retry budget (default 3).
	MaxRetries int
	// Sleep overrides the rate-limit backoff wait (tests).
	Sleep SleepFunc
	// Timeout is the per-request timeout (default 30s).
	Timeout time.Duration
}

// New creates a new Spotify client. Every request carries the credential
// from creds and is subject to the rate-limit policy.
func New(creds CredentialProvider, cfg Config) (*Client, error) {
	if creds == nil {
		return nil, errors.New("credential provider is required")
	}

	rl := NewRateLimitTransport(http.DefaultTransport)
	if cfg.MaxRetries > 0 {
		rl.MaxRetries = cfg.MaxRetries
	}
	if cfg.Sleep != nil {
		rl.Sleep = cfg.Sleep
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &oauth2.Transport{
			Source: TokenSource(creds),
			Base:   rl,
		},
	}

	var opts []spotify.ClientOption
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, spotify.WithBaseURL(base))
	}

	return &Client{
		client:     spotify.New(httpClient, opts...),
		market:     cfg.Market,
		deviceName: cfg.DeviceName,
	}, nil
}

// DeviceName returns the name of the device this client targets.
func (c *Client) DeviceName() string {
	return c.deviceName
}

// GetRecommendations returns tracks related to the seed track.
// Any failure, including exhausted rate-limit retries and a missing
// credential, is reported as failure.ErrRecommendationFetchFailed.
func (c *Client) GetRecommendations(ctx context.Context, seedTrackID string, limit int) ([]track.Track, error) {
	id := extractTrackID(seedTrackID)
	if id == "" {
		return nil, failure.Mark(errors.New("seed track is required"), failure.ErrRecommendationFetchFailed)
	}
	if limit <= 0 {
		limit = DefaultRecommendationLimit
	}
	if limit > 100 {
		limit = 100
	}

	opts := []spotify.RequestOption{spotify.Limit(limit)}
	if c.market != "" {
		opts = append(opts, spotify.Market(c.market))
	}

	recs, err := c.client.GetRecommendations(ctx, spotify.Seeds{Tracks: []spotify.ID{spotify.ID(id)}}, nil, opts...)
	if err != nil {
		zlog.Error().Msgf("spotify: recommendations failed: seed=%s error=%v", id, err)
		return nil, failure.Mark(errors.Wrap(err, "failed to get recommendations"), failure.ErrRecommendationFetchFailed)
	}

	tracks := make([]track.Track, 0, len(recs.Tracks))
	for _, t := range recs.Tracks {
		if t.ID == "" {
			continue
		}
		tracks = append(tracks, convertSimpleTrack(t))
	}
	zlog.Debug().Msgf("spotify: recommendations: seed=%s count=%d", id, len(tracks))
	return tracks, nil
}

// GetTrack retrieves track information by ID, URL, or URI.
func (c *Client) GetTrack(ctx context.Context, trackID string) (*track.Track, error) {
	id := extractTrackID(trackID)
	if id == "" {
		return nil, errors.New("track id is required")
	}

	var opts []spotify.RequestOption
	if c.market != "" {
		opts = append(opts, spotify.Market(c.market))
	}

	t, err := c.client.GetTrack(ctx, spotify.ID(id), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get track")
	}
	result := c.convertFullTrack(t)
	return &result, nil
}

// Search searches for tracks.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if query == "" {
		return nil, errors.New("search query is required")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	opts := []spotify.RequestOption{spotify.Limit(limit)}
	if c.market != "" {
		opts = append(opts, spotify.Market(c.market))
	}

	result, err := c.client.Search(ctx, query, spotify.SearchTypeTrack, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search")
	}
	if result.Tracks == nil {
		return []track.Track{}, nil
	}

	tracks := make([]track.Track, 0, len(result.Tracks.Tracks))
	for i := range result.Tracks.Tracks {
		tracks = append(tracks, c.convertFullTrack(&result.Tracks.Tracks[i]))
	}
	return tracks, nil
}

// convertFullTrack converts a Spotify FullTrack to a domain Track.
func (c *Client) convertFullTrack(t *spotify.FullTrack) track.Track {
	result := convertSimpleTrack(t.SimpleTrack)
	result.Album = convertAlbum(t.Album)
	result.IsPlayable = t.IsPlayable

	// Market-scoped lookups omit available_markets; assume the requested market
	if len(result.Markets) == 0 && c.market != "" {
		result.Markets = []string{c.market}
	}
	return result
}

func convertSimpleTrack(t spotify.SimpleTrack) track.Track {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	markets := make([]string, len(t.AvailableMarkets))
	for i, m := range t.AvailableMarkets {
		markets[i] = string(m)
	}

	uri := string(t.URI)
	if uri == "" && t.ID != "" {
		uri = track.URIFromID(string(t.ID))
	}

	return track.Track{
		ID:         string(t.ID),
		URI:        uri,
		Name:       t.Name,
		Artists:    artists,
		Album:      convertAlbum(t.Album),
		DurationMs: int(t.Duration),
		Markets:    markets,
	}
}

func convertAlbum(a spotify.SimpleAlbum) track.Album {
	images := make([]track.Image, 0, len(a.Images))
	for _, img := range a.Images {
		images = append(images, track.Image{
			URL:    img.URL,
			Width:  int(img.Width),
			Height: int(img.Height),
		})
	}
	return track.Album{Name: a.Name, Images: images}
}

// extractTrackID extracts the track ID from a Spotify track URL or URI.
func extractTrackID(input string) string {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "spotify:track:") {
		return strings.TrimPrefix(input, "spotify:track:")
	}

	// https://open.spotify.com/track/ID or https://open.spotify.com/intl-XX/track/ID
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/track/") {
		parts := strings.Split(input, "/track/")
		if len(parts) >= 2 {
			id := strings.Split(parts[len(parts)-1], "?")[0]
			return strings.TrimRight(id, "/")
		}
	}

	return input
}

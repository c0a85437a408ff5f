package spotify

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"

	"github.com/osa030/cuebox/internal/domain/device"
	"github.com/osa030/cuebox/internal/domain/failure"
	"github.com/osa030/cuebox/internal/domain/track"
)

// ActivateDevice transfers playback to the device, keeping it playing.
// Failures are logged and reported as false.
func (c *Client) ActivateDevice(ctx context.Context, deviceID string) bool {
	if deviceID == "" {
		zlog.Warn().Msg("spotify: activate device: empty device id")
		return false
	}
	if err := c.client.TransferPlayback(ctx, spotify.ID(deviceID), true); err != nil {
		zlog.Error().Msgf("spotify: activate device failed: device=%s error=%v", deviceID, err)
		return false
	}
	zlog.Debug().Msgf("spotify: device activated: device=%s", deviceID)
	return true
}

// PlayTrack starts the track on the device. It refuses without a network
// call when the device is not ready or has no ID. Failures are logged and
// reported as false.
func (c *Client) PlayTrack(ctx context.Context, t track.Track, deviceReady bool, deviceID string) bool {
	if !deviceReady || deviceID == "" {
		zlog.Warn().Msgf("spotify: play refused: device not ready: track=%s", t.ID)
		return false
	}
	if t.URI == "" {
		zlog.Warn().Msgf("spotify: play refused: track has no uri: track=%s", t.ID)
		return false
	}

	id := spotify.ID(deviceID)
	err := c.client.PlayOpt(ctx, &spotify.PlayOptions{
		DeviceID: &id,
		URIs:     []spotify.URI{spotify.URI(t.URI)},
	})
	if err != nil {
		zlog.Error().Msgf("spotify: play failed: track=%s device=%s error=%v", t.ID, deviceID, err)
		return false
	}
	zlog.Info().Msgf("spotify: playing: track=%s (%s)", t.ID, t.String())
	return true
}

// PausePlayback pauses the device.
func (c *Client) PausePlayback(ctx context.Context, deviceID string) error {
	err := c.client.PauseOpt(ctx, playOptions(deviceID))
	if err != nil {
		return commandError(err, "pause")
	}
	return nil
}

// ResumePlayback resumes the current track on the device.
func (c *Client) ResumePlayback(ctx context.Context, deviceID string) error {
	err := c.client.PlayOpt(ctx, playOptions(deviceID))
	if err != nil {
		return commandError(err, "resume")
	}
	return nil
}

// Seek moves the playback position of the device.
func (c *Client) Seek(ctx context.Context, deviceID string, positionMs int) error {
	if positionMs < 0 {
		positionMs = 0
	}
	if err := c.client.SeekOpt(ctx, positionMs, playOptions(deviceID)); err != nil {
		return commandError(err, "seek")
	}
	return nil
}

// SetVolume sets the device volume in percent.
func (c *Client) SetVolume(ctx context.Context, deviceID string, percent int) error {
	percent = max(0, min(100, percent))
	if err := c.client.VolumeOpt(ctx, percent, playOptions(deviceID)); err != nil {
		return commandError(err, "volume")
	}
	return nil
}

// ListDevices returns the device whose name matches the configured device
// name, or nil when it is not registered.
func (c *Client) ListDevices(ctx context.Context) (*device.Device, error) {
	devices, err := c.client.PlayerDevices(ctx)
	if err != nil {
		return nil, commandError(err, "list devices")
	}

	for _, d := range devices {
		if c.deviceName != "" && d.Name != c.deviceName {
			continue
		}
		if c.deviceName == "" && !d.Active {
			continue
		}
		return &device.Device{
			ID:         d.ID.String(),
			Name:       d.Name,
			Type:       d.Type,
			IsActive:   d.Active,
			Restricted: d.Restricted,
			Volume:     int(d.Volume),
		}, nil
	}
	return nil, nil
}

// PlaybackState is the player state reported by the Web API.
type PlaybackState struct {
	DeviceID   string
	Track      *track.Track
	PositionMs int
	Playing    bool
}

// PlayerState returns the current player state, or nil when nothing is
// loaded on any device.
func (c *Client) PlayerState(ctx context.Context) (*PlaybackState, error) {
	var opts []spotify.RequestOption
	if c.market != "" {
		opts = append(opts, spotify.Market(c.market))
	}

	st, err := c.client.PlayerState(ctx, opts...)
	if err != nil {
		return nil, commandError(err, "player state")
	}
	if st == nil {
		return nil, nil
	}

	result := &PlaybackState{
		DeviceID:   st.Device.ID.String(),
		PositionMs: int(st.Progress),
		Playing:    st.Playing,
	}
	if st.Item != nil && st.Item.ID != "" {
		t := c.convertFullTrack(st.Item)
		result.Track = &t
	}
	if result.DeviceID == "" && result.Track == nil {
		return nil, nil
	}
	return result, nil
}

func playOptions(deviceID string) *spotify.PlayOptions {
	if deviceID == "" {
		return &spotify.PlayOptions{}
	}
	id := spotify.ID(deviceID)
	return &spotify.PlayOptions{DeviceID: &id}
}

// commandError marks err as a playback command failure, keeping the
// rate-limit and authentication classes visible.
func commandError(err error, op string) error {
	return failure.Mark(errors.Wrapf(err, "spotify %s", op), failure.ErrPlaybackCommandFailed)
}

package playback

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Resync reconciles the local play flag with the device after the UI
// comes back to the foreground. Failures are recorded as background
// errors.
func (c *Controller) Resync(ctx context.Context) error {
	if c.session == nil {
		return nil
	}

	st, err := c.session.CurrentState(ctx)
	if err != nil {
		err = errors.Wrap(err, "resync: read device state")
		c.background(err)
		return err
	}
	if st == nil {
		return nil
	}

	deviceID := c.store.DeviceID()
	switch playing := c.store.IsPlaying(); {
	case playing && st.Paused:
		zlog.Info().Msgf("playback: resync: device paused at %dms, resuming", st.PositionMs)
		if err := c.transport.ResumePlayback(ctx, deviceID); err != nil {
			c.background(err)
			return err
		}
		if err := c.session.Seek(ctx, st.PositionMs); err != nil {
			c.background(err)
			return err
		}
		c.store.SetProgress(st.PositionMs)
	case !playing && !st.Paused:
		zlog.Info().Msg("playback: resync: device playing, pausing")
		if err := c.transport.PausePlayback(ctx, deviceID); err != nil {
			c.background(err)
			return err
		}
	}
	return nil
}

package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLatch(t *testing.T) {
	l := newLatch(30 * time.Millisecond)

	epoch, ok := l.TryAcquire()
	assert.True(t, ok)
	_, ok = l.TryAcquire()
	assert.False(t, ok)

	l.Release(epoch)
	assert.True(t, l.Held())
	assert.Eventually(t, func() bool { return !l.Held() }, time.Second, 5*time.Millisecond)
	_, ok = l.TryAcquire()
	assert.True(t, ok)
}

func TestLatch_NoCooldown(t *testing.T) {
	l := newLatch(0)
	epoch, ok := l.TryAcquire()
	assert.True(t, ok)
	l.Release(epoch)
	_, ok = l.TryAcquire()
	assert.True(t, ok)
}

func TestLatch_Stop(t *testing.T) {
	l := newLatch(time.Hour)
	epoch, ok := l.TryAcquire()
	assert.True(t, ok)
	l.Release(epoch)
	l.Stop()
	assert.False(t, l.Held())
}

func TestLatch_StaleReleaseAfterStop(t *testing.T) {
	l := newLatch(10 * time.Millisecond)
	stale, ok := l.TryAcquire()
	assert.True(t, ok)

	// Holder outlives Stop; a new holder takes the latch.
	l.Stop()
	current, ok := l.TryAcquire()
	assert.True(t, ok)

	l.Release(stale)
	time.Sleep(50 * time.Millisecond)
	assert.True(t, l.Held())
	_, ok = l.TryAcquire()
	assert.False(t, ok)

	l.Release(current)
	assert.Eventually(t, func() bool { return !l.Held() }, time.Second, 5*time.Millisecond)
}

func TestLatch_StopCancelsPendingRelease(t *testing.T) {
	l := newLatch(20 * time.Millisecond)
	stale, _ := l.TryAcquire()
	l.Release(stale)
	l.Stop()

	_, ok := l.TryAcquire()
	assert.True(t, ok)
	time.Sleep(60 * time.Millisecond)
	assert.True(t, l.Held())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "transitioning", StateTransitioning.String())
	assert.Equal(t, "login_required", EventLoginRequired.String())
	assert.Equal(t, "unknown", State(99).String())
}

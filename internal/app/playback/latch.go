package playback

import (
	"sync"
	"time"
)

// latch admits one holder at a time. A released latch stays closed for
// the cooldown so a burst of notifications for the same end is absorbed.
// Each acquisition gets an epoch; Release and the cooldown timer only act
// on the epoch that is current, so a holder outliving Stop cannot reopen
// a later acquisition.
type latch struct {
	mu       sync.Mutex
	held     bool
	epoch    uint64
	cooldown time.Duration
	timer    *time.Timer
}

func newLatch(cooldown time.Duration) *latch {
	return &latch{cooldown: cooldown}
}

// TryAcquire takes the latch and returns the epoch to release it with.
// ok is false if it is already held.
func (l *latch) TryAcquire() (epoch uint64, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return 0, false
	}
	l.epoch++
	l.held = true
	return l.epoch, true
}

// Release opens the latch after the cooldown. A stale epoch is ignored.
func (l *latch) Release(epoch uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if epoch != l.epoch || !l.held {
		return
	}
	if l.cooldown <= 0 {
		l.held = false
		return
	}
	l.timer = time.AfterFunc(l.cooldown, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.epoch != epoch {
			return
		}
		l.held = false
		l.timer = nil
	})
}

// Held reports whether the latch is closed.
func (l *latch) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Stop cancels a pending release, invalidates the current holder and
// opens the latch.
func (l *latch) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.epoch++
	l.held = false
}

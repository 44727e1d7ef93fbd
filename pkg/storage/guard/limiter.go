package guard

import (
	"context"
	"sync"
	"time"
)

// rateLimiter tracks store calls against a sliding window ceiling and a
// minimum inter-call interval. Wait blocks the caller until a call slot is
// free; the wait is cancellable through the caller's context.
type rateLimiter struct {
	sync.Mutex
	ceiling     int
	window      time.Duration
	minInterval time.Duration

	calls    []time.Time
	lastCall time.Time
}

func newRateLimiter(ceiling int, window, minInterval time.Duration) *rateLimiter {
	return &rateLimiter{
		ceiling:     ceiling,
		window:      window,
		minInterval: minInterval,
	}
}

// Wait blocks until the next call is allowed and records it. It returns the
// context error if the caller goes away while waiting.
func (l *rateLimiter) Wait(ctx context.Context) error {
	for {
		delay := l.reserve()
		if delay <= 0 {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// reserve records the call and returns zero if it may proceed now, otherwise
// the duration to sleep before trying again.
func (l *rateLimiter) reserve() time.Duration {
	l.Lock()
	defer l.Unlock()

	now := time.Now()
	l.prune(now)

	// Enforce the burst-smoothing floor regardless of window state.
	if !l.lastCall.IsZero() {
		if gap := l.minInterval - now.Sub(l.lastCall); gap > 0 {
			return gap
		}
	}

	if len(l.calls) >= l.ceiling {
		// Window is full, wait until the oldest call slides out.
		return l.calls[0].Add(l.window).Sub(now)
	}

	l.calls = append(l.calls, now)
	l.lastCall = now
	return 0
}

func (l *rateLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for ; i < len(l.calls); i++ {
		if l.calls[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}

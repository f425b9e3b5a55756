// Package clock abstracts timers and tickers so the agent's backoff,
// idle and build timing can be driven deterministically in tests.
//
// Production code uses Real(). Tests use Fake() and call Advance; use
// WaitForTimers before advancing so the goroutine under test has
// registered its timer first.
package clock

import (
	"context"
	"time"
)

type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) *Timer
	NewTicker(d time.Duration) *Ticker
}

// Timer fires once on C. Stop releases it.
type Timer struct {
	C    <-chan time.Time
	stop func() bool
}

func (t *Timer) Stop() bool { return t.stop() }

// Ticker delivers ticks on C until stopped. Ticks are dropped when the
// reader falls behind.
type Ticker struct {
	C    <-chan time.Time
	stop func()
}

func (t *Ticker) Stop() { t.stop() }

// Sleep blocks for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, c Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := c.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

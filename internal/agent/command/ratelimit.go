package command

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles commands per participant with a token bucket each.
type Limiter struct {
	mu      sync.Mutex
	every   rate.Limit
	burst   int
	senders map[string]*rate.Limiter
}

// NewLimiter allows perSecond commands per participant with the given
// burst. A non-positive perSecond disables throttling.
func NewLimiter(perSecond float64, burst int) *Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		every:   rate.Limit(perSecond),
		burst:   burst,
		senders: map[string]*rate.Limiter{},
	}
}

func (l *Limiter) Allow(sender string, now time.Time) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	lim := l.senders[sender]
	if lim == nil {
		lim = rate.NewLimiter(l.every, l.burst)
		l.senders[sender] = lim
	}
	return lim.AllowN(now, 1)
}

package session

import "time"

// Backoff is the reconnect delay. It doubles after every ended attempt up
// to max and is reset only when the agent spawns.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	cur     time.Duration
}

func NewBackoff(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = 5 * time.Second
	}
	if max < initial {
		max = initial
	}
	return &Backoff{initial: initial, max: max, cur: initial}
}

// Next returns the delay to wait now and doubles the stored value.
func (b *Backoff) Next() time.Duration {
	d := b.cur
	b.cur *= 2
	if b.cur > b.max {
		b.cur = b.max
	}
	return d
}

func (b *Backoff) Reset() { b.cur = b.initial }

func (b *Backoff) Current() time.Duration { return b.cur }

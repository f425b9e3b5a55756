package worldtest

import (
	"context"
	"errors"
	"sync"

	"github.com/abdel0909/mc-bot/internal/world"
)

var ErrRefused = errors.New("worldtest: connection refused")

// Dialer hands out connections from Next. Every attempt is reported on
// Dialed, which is buffered generously so Dial never blocks on tests.
type Dialer struct {
	mu       sync.Mutex
	attempts int
	opts     []world.Options

	// Next returns the connection for the n-th attempt (zero-based).
	// When nil, every attempt returns a fresh Conn for the dialed user.
	Next   func(n int) (world.Conn, error)
	Dialed chan *Conn
}

func NewDialer() *Dialer {
	return &Dialer{Dialed: make(chan *Conn, 128)}
}

func (d *Dialer) Dial(ctx context.Context, opts world.Options) (world.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	n := d.attempts
	d.attempts++
	d.opts = append(d.opts, opts)
	next := d.Next
	d.mu.Unlock()

	var (
		conn world.Conn
		err  error
	)
	if next != nil {
		conn, err = next(n)
	} else {
		conn = NewConn(opts.Username)
	}
	fc, _ := conn.(*Conn)
	d.Dialed <- fc
	return conn, err
}

func (d *Dialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *Dialer) Options() []world.Options {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]world.Options(nil), d.opts...)
}

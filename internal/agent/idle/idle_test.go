package idle

import (
	"context"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abdel0909/mc-bot/internal/clock"
	"github.com/abdel0909/mc-bot/internal/world"
	"github.com/abdel0909/mc-bot/internal/world/worldtest"
)

func TestIdlePulsesOnInterval(t *testing.T) {
	c := worldtest.NewConn("bot")
	clk := clock.Fake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		Run(ctx, c, clk, log.New(io.Discard, "", 0), Config{Interval: time.Minute, Pulse: 300 * time.Millisecond})
	}()

	clk.WaitForTimers(1)
	clk.Advance(59 * time.Second)
	if len(c.ControlLog()) != 0 {
		t.Fatalf("pulsed before the interval elapsed")
	}

	clk.Advance(time.Second)
	if !worldtest.WaitFor(time.Second, func() bool { return c.ControlOn(world.ControlJump) }) {
		t.Fatalf("jump not pressed after one interval")
	}
	clk.WaitForTimers(2) // ticker + pulse
	clk.Advance(300 * time.Millisecond)
	if !worldtest.WaitFor(time.Second, func() bool { return len(c.ControlLog()) == 2 }) {
		t.Fatalf("jump not released: %+v", c.ControlLog())
	}
	if c.ControlOn(world.ControlJump) {
		t.Fatalf("jump still held")
	}

	cancel()
	<-done
	if clk.Pending() != 0 {
		t.Fatalf("ticker leaked after cancel")
	}
}

func TestIdleStopsWithContext(t *testing.T) {
	c := worldtest.NewConn("bot")
	clk := clock.Fake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	Run(ctx, c, clk, log.New(io.Discard, "", 0), Config{})
	if len(c.ControlLog()) != 0 {
		t.Fatalf("cancelled idle loop should not act")
	}
}

func TestIdleSkipsPulseWhileBusy(t *testing.T) {
	c := worldtest.NewConn("bot")
	clk := clock.Fake(time.Unix(0, 0))
	var busy atomic.Bool
	var checks atomic.Int32
	busy.Store(true)
	cfg := Config{
		Interval: time.Minute,
		Pulse:    300 * time.Millisecond,
		Busy: func() bool {
			checks.Add(1)
			return busy.Load()
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		Run(ctx, c, clk, log.New(io.Discard, "", 0), cfg)
	}()
	defer func() {
		cancel()
		<-done
	}()

	clk.WaitForTimers(1)
	clk.Advance(time.Minute)
	if !worldtest.WaitFor(time.Second, func() bool { return checks.Load() == 1 }) {
		t.Fatalf("busy check not consulted on tick")
	}
	if len(c.ControlLog()) != 0 {
		t.Fatalf("pulsed while busy: %+v", c.ControlLog())
	}

	busy.Store(false)
	clk.Advance(time.Minute)
	if !worldtest.WaitFor(time.Second, func() bool { return c.ControlOn(world.ControlJump) }) {
		t.Fatalf("jump not pressed once idle again")
	}
}

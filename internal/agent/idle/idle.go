// Package idle keeps the agent from being kicked for inactivity by
// pulsing a jump on a fixed interval.
package idle

import (
	"context"
	"log"
	"time"

	"github.com/abdel0909/mc-bot/internal/clock"
	"github.com/abdel0909/mc-bot/internal/world"
)

type Controls interface {
	SetControlState(c world.Control, on bool) error
}

type Config struct {
	Interval time.Duration
	Pulse    time.Duration
	// Busy, when set and true, skips that tick's pulse. The tower build
	// drives jump itself.
	Busy func() bool
}

func DefaultConfig() Config {
	return Config{Interval: time.Minute, Pulse: 300 * time.Millisecond}
}

// Run pulses until ctx is done. Callers tie ctx to one connection so a
// dropped session never keeps a stale loop alive.
func Run(ctx context.Context, body Controls, clk clock.Clock, logger *log.Logger, cfg Config) {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Pulse <= 0 {
		cfg.Pulse = def.Pulse
	}

	tk := clk.NewTicker(cfg.Interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
		}
		if cfg.Busy != nil && cfg.Busy() {
			continue
		}
		if err := body.SetControlState(world.ControlJump, true); err != nil {
			logger.Printf("idle: jump: %v", err)
			continue
		}
		_ = clock.Sleep(ctx, clk, cfg.Pulse)
		if err := body.SetControlState(world.ControlJump, false); err != nil {
			logger.Printf("idle: release jump: %v", err)
		}
	}
}

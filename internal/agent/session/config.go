package session

import (
	"time"

	"github.com/abdel0909/mc-bot/internal/agent/build"
	"github.com/abdel0909/mc-bot/internal/agent/command"
	"github.com/abdel0909/mc-bot/internal/agent/idle"
	"github.com/abdel0909/mc-bot/internal/config"
	"github.com/abdel0909/mc-bot/internal/world"
)

type Config struct {
	Options world.Options

	BackoffInitial time.Duration
	BackoffMax     time.Duration

	Command       command.Config
	RatePerSecond float64
	RateBurst     int

	// AutoBuild starts a tower BuildDelay after each spawn.
	AutoBuild  bool
	BuildDelay time.Duration
	Build      build.Config

	IdleEnabled bool
	Idle        idle.Config
}

// FromConfig maps the process configuration onto the control loop.
func FromConfig(c config.Config) Config {
	t := c.Tuning
	return Config{
		Options:        c.Options(),
		BackoffInitial: t.Backoff.Initial,
		BackoffMax:     t.Backoff.Max,
		Command: command.Config{
			Prefix:        t.CommandPrefix,
			ComeTolerance: t.Come.Tolerance,
			BuildHeight:   t.Build.Height,
			ActionTimeout: t.ActionTimeout,
		},
		RatePerSecond: t.RateLimit.PerSecond,
		RateBurst:     t.RateLimit.Burst,
		AutoBuild:     t.Build.AutoStart,
		BuildDelay:    t.Build.StartDelay,
		Build: build.Config{
			Height:        t.Build.Height,
			JumpPulse:     t.Build.JumpPulse,
			Settle:        t.Build.Settle,
			Materials:     build.Materials(t.Build.Materials),
			ActionTimeout: t.ActionTimeout,
		},
		IdleEnabled: t.Idle.Enabled,
		Idle:        idle.Config{Interval: t.Idle.Interval, Pulse: t.Idle.Pulse},
	}
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Tuning holds behaviour knobs read from an optional YAML file. Missing
// keys keep their defaults; non-positive values are reset by Normalize.
type Tuning struct {
	CommandPrefix string        `yaml:"command_prefix"`
	Backoff       BackoffTuning `yaml:"backoff"`
	Build         BuildTuning   `yaml:"build"`
	Idle          IdleTuning    `yaml:"idle"`
	Come          ComeTuning    `yaml:"come"`
	RateLimit     RateTuning    `yaml:"rate_limit"`
	ActionTimeout time.Duration `yaml:"action_timeout"`
}

type BackoffTuning struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
}

type BuildTuning struct {
	AutoStart  bool          `yaml:"auto_start"`
	Height     int           `yaml:"height"`
	StartDelay time.Duration `yaml:"start_delay"`
	JumpPulse  time.Duration `yaml:"jump_pulse"`
	Settle     time.Duration `yaml:"settle"`
	Materials  []string      `yaml:"materials"`
}

type IdleTuning struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Pulse    time.Duration `yaml:"pulse"`
}

type ComeTuning struct {
	Tolerance float64 `yaml:"tolerance"`
}

type RateTuning struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

func DefaultTuning() Tuning {
	return Tuning{
		CommandPrefix: "!",
		Backoff:       BackoffTuning{Initial: 5 * time.Second, Max: 30 * time.Second},
		Build: BuildTuning{
			AutoStart:  true,
			Height:     10,
			StartDelay: 2 * time.Second,
			JumpPulse:  450 * time.Millisecond,
			Settle:     250 * time.Millisecond,
			Materials:  []string{"planks", "stone", "cobblestone", "dirt", "sandstone", "netherrack"},
		},
		Idle:          IdleTuning{Enabled: true, Interval: time.Minute, Pulse: 300 * time.Millisecond},
		Come:          ComeTuning{Tolerance: 1},
		RateLimit:     RateTuning{PerSecond: 2, Burst: 4},
		ActionTimeout: 15 * time.Second,
	}
}

// LoadTuning reads path over the defaults. An empty path yields the
// defaults.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	d := DefaultTuning()
	t.CommandPrefix = strings.TrimSpace(t.CommandPrefix)
	if t.CommandPrefix == "" {
		t.CommandPrefix = d.CommandPrefix
	}
	if t.Backoff.Initial <= 0 {
		t.Backoff.Initial = d.Backoff.Initial
	}
	if t.Backoff.Max <= 0 {
		t.Backoff.Max = d.Backoff.Max
	}
	if t.Build.Height <= 0 {
		t.Build.Height = d.Build.Height
	}
	if t.Build.StartDelay < 0 {
		t.Build.StartDelay = d.Build.StartDelay
	}
	if t.Build.JumpPulse <= 0 {
		t.Build.JumpPulse = d.Build.JumpPulse
	}
	if t.Build.Settle < 0 {
		t.Build.Settle = d.Build.Settle
	}
	if len(t.Build.Materials) == 0 {
		t.Build.Materials = d.Build.Materials
	}
	if t.Idle.Interval <= 0 {
		t.Idle.Interval = d.Idle.Interval
	}
	if t.Idle.Pulse <= 0 {
		t.Idle.Pulse = d.Idle.Pulse
	}
	if t.Come.Tolerance <= 0 {
		t.Come.Tolerance = d.Come.Tolerance
	}
	if t.RateLimit.Burst <= 0 {
		t.RateLimit.Burst = d.RateLimit.Burst
	}
	if t.ActionTimeout <= 0 {
		t.ActionTimeout = d.ActionTimeout
	}
}

func (t Tuning) Validate() error {
	if strings.ContainsAny(t.CommandPrefix, " \t") {
		return fmt.Errorf("command_prefix must not contain whitespace")
	}
	if t.Backoff.Max < t.Backoff.Initial {
		return fmt.Errorf("backoff.max (%s) below backoff.initial (%s)", t.Backoff.Max, t.Backoff.Initial)
	}
	if t.Build.Height > 256 {
		return fmt.Errorf("build.height %d above 256", t.Build.Height)
	}
	if t.Idle.Pulse >= t.Idle.Interval {
		return fmt.Errorf("idle.pulse must be shorter than idle.interval")
	}
	return nil
}

package command

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/abdel0909/mc-bot/internal/agent/build"
	"github.com/abdel0909/mc-bot/internal/agent/nav"
	"github.com/abdel0909/mc-bot/internal/clock"
	"github.com/abdel0909/mc-bot/internal/world"
)

// World is the slice of world.Conn the handlers read and act on.
type World interface {
	Username() string
	Pose() world.Pose
	BlockAt(p world.Vec3) (world.Block, bool)
	Participant(name string) (world.Participant, bool)
	Dig(ctx context.Context, b world.Block) error
	Chat(text string) error
}

type Navigator interface {
	GoTo(x, y, z float64) error
	ComeNear(pos nav.PositionFunc, tolerance float64) error
	Stop() error
	Active() *world.Goal
}

// Builder starts and stops tower builds on the current connection.
type Builder interface {
	Start(height int) error
	Stop() bool
	Progress() (build.Progress, bool)
}

type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeUsage     Outcome = "usage"
	OutcomeFailed    Outcome = "failed"
	OutcomeUnknown   Outcome = "unknown"
	OutcomeThrottled Outcome = "throttled"
	OutcomeIgnored   Outcome = "ignored"
)

// Record describes one dispatched line, for journaling.
type Record struct {
	At      time.Time
	Sender  string
	Command string
	Args    []string
	Outcome Outcome
	Detail  string
}

type Config struct {
	Prefix        string
	ComeTolerance float64
	BuildHeight   int
	ActionTimeout time.Duration
}

type Deps struct {
	World   World
	Nav     Navigator
	Build   Builder // optional
	Limiter *Limiter
	Clock   clock.Clock
	Log     *log.Logger
	// Status, when set, supplies the connection part of !status.
	Status func() string
	// OnDispatch, when set, observes every invocation that reached a
	// command lookup.
	OnDispatch func(Record)
}

// Dispatcher is driven by the agent's control loop only.
type Dispatcher struct {
	cfg   Config
	deps  Deps
	table map[string]*Command
	order []*Command
}

func NewDispatcher(cfg Config, deps Deps) *Dispatcher {
	if cfg.Prefix == "" {
		cfg.Prefix = "!"
	}
	if cfg.ComeTolerance <= 0 {
		cfg.ComeTolerance = 1
	}
	if cfg.BuildHeight <= 0 {
		cfg.BuildHeight = 10
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 15 * time.Second
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	d := &Dispatcher{cfg: cfg, deps: deps, table: map[string]*Command{}}
	for _, c := range builtins() {
		if c.Name == "build" && deps.Build == nil {
			continue
		}
		d.register(c)
	}
	return d
}

func (d *Dispatcher) register(c *Command) {
	d.table[c.Name] = c
	d.order = append(d.order, c)
}

// Summary lists the available commands, e.g. for a greeting.
func (d *Dispatcher) Summary() string {
	parts := make([]string, 0, len(d.order))
	for _, c := range d.order {
		parts = append(parts, d.usage(c))
	}
	return strings.Join(parts, " | ")
}

func (d *Dispatcher) usage(c *Command) string {
	if c.Args == "" {
		return d.cfg.Prefix + c.Name
	}
	return d.cfg.Prefix + c.Name + " " + c.Args
}

func (d *Dispatcher) say(text string) {
	if err := d.deps.World.Chat(text); err != nil {
		d.deps.Log.Printf("announce failed: %v", err)
	}
}

// Dispatch handles one chat line from sender. It never panics and never
// returns an error: every failure is announced to chat.
func (d *Dispatcher) Dispatch(ctx context.Context, sender, line string) Outcome {
	if sender == d.deps.World.Username() {
		return OutcomeIgnored
	}
	inv, ok := Parse(line, d.cfg.Prefix)
	if !ok {
		return OutcomeIgnored
	}
	inv.Sender = sender

	rec := Record{At: d.deps.Clock.Now(), Sender: sender, Command: inv.Name, Args: inv.Args}
	defer func() {
		if d.deps.OnDispatch != nil {
			d.deps.OnDispatch(rec)
		}
	}()

	c := d.table[inv.Name]
	if (c == nil || !c.Unthrottled) && !d.deps.Limiter.Allow(sender, rec.At) {
		d.deps.Log.Printf("throttled sender=%s command=%s", sender, inv.Name)
		rec.Outcome = OutcomeThrottled
		return rec.Outcome
	}
	if c == nil {
		d.say(fmt.Sprintf("unknown command: %s (try %shelp)", inv.Name, d.cfg.Prefix))
		rec.Outcome = OutcomeUnknown
		return rec.Outcome
	}

	err := d.run(ctx, c, inv)
	rec.Outcome, rec.Detail = d.report(c, err)
	return rec.Outcome
}

func (d *Dispatcher) run(ctx context.Context, c *Command, inv Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", c.Name, r)
		}
	}()
	return c.Run(ctx, d, inv)
}

func (d *Dispatcher) report(c *Command, err error) (Outcome, string) {
	if err == nil {
		return OutcomeOK, ""
	}
	var ue *UsageError
	if errors.As(err, &ue) {
		d.say("usage: " + ue.Usage)
		return OutcomeUsage, ue.Usage
	}
	var f *Failure
	if errors.As(err, &f) {
		if f.Err != nil {
			d.deps.Log.Printf("%s failed: %v", c.Name, f.Err)
		}
		d.say(f.Msg)
		return OutcomeFailed, f.Error()
	}
	d.deps.Log.Printf("%s failed: %v", c.Name, err)
	d.say(c.Name + " failed.")
	return OutcomeFailed, err.Error()
}

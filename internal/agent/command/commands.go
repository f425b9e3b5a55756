package command

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/abdel0909/mc-bot/internal/agent/build"
	"github.com/abdel0909/mc-bot/internal/world"
)

const maxBuildHeight = 256

type Command struct {
	Name    string
	Args    string // usage fragment after the name
	Summary string
	// Unthrottled commands bypass the per-sender limiter.
	Unthrottled bool
	Run         func(ctx context.Context, d *Dispatcher, inv Invocation) error
}

func builtins() []*Command {
	return []*Command{
		{Name: "help", Summary: "list commands", Unthrottled: true, Run: runHelp},
		{Name: "pos", Summary: "report my position", Run: runPos},
		{Name: "say", Args: "<text...>", Summary: "repeat text", Run: runSay},
		{Name: "stop", Summary: "stop moving and building", Unthrottled: true, Run: runStop},
		{Name: "goto", Args: "<x> <y> <z>", Summary: "walk to a block", Run: runGoto},
		{Name: "come", Args: "[name]", Summary: "walk to a participant", Run: runCome},
		{Name: "dig", Summary: "dig the block ahead or below", Run: runDig},
		{Name: "build", Args: "[height]", Summary: "build a tower", Run: runBuild},
		{Name: "status", Summary: "connection, goal and build status", Run: runStatus},
	}
}

func runHelp(_ context.Context, d *Dispatcher, _ Invocation) error {
	d.say(d.Summary())
	return nil
}

func runPos(_ context.Context, d *Dispatcher, _ Invocation) error {
	p := d.deps.World.Pose().Pos
	d.say(fmt.Sprintf("Pos: %.1f %.1f %.1f", p.X, p.Y, p.Z))
	return nil
}

func runSay(_ context.Context, d *Dispatcher, inv Invocation) error {
	if inv.Rest == "" {
		return nil
	}
	d.say(inv.Rest)
	return nil
}

func runStop(_ context.Context, d *Dispatcher, _ Invocation) error {
	if err := d.deps.Nav.Stop(); err != nil {
		d.deps.Log.Printf("stop: %v", err)
	}
	if d.deps.Build != nil && d.deps.Build.Stop() {
		d.deps.Log.Printf("stop: build cancel requested")
	}
	d.say("Stopped.")
	return nil
}

func runGoto(_ context.Context, d *Dispatcher, inv Invocation) error {
	usage := &UsageError{Usage: d.usage(d.table["goto"])}
	if len(inv.Args) < 3 {
		return usage
	}
	var xyz [3]float64
	for i := range xyz {
		v, err := ParseFinite(inv.Args[i])
		if err != nil {
			return usage
		}
		xyz[i] = v
	}
	d.say(fmt.Sprintf("heading to %s %s %s...", fmtCoord(xyz[0]), fmtCoord(xyz[1]), fmtCoord(xyz[2])))
	if err := d.deps.Nav.GoTo(xyz[0], xyz[1], xyz[2]); err != nil {
		return fail("cannot head there.", err)
	}
	return nil
}

func runCome(_ context.Context, d *Dispatcher, inv Invocation) error {
	name := inv.Sender
	if len(inv.Args) > 0 {
		name = inv.Args[0]
	}
	if _, ok := d.deps.World.Participant(name); !ok {
		return fail("participant not found: "+name, nil)
	}
	pos := func() (world.Vec3, bool) {
		p, ok := d.deps.World.Participant(name)
		return p.Pos, ok
	}
	d.say(fmt.Sprintf("coming to %s...", name))
	if err := d.deps.Nav.ComeNear(pos, d.cfg.ComeTolerance); err != nil {
		return fail("cannot come to "+name+".", err)
	}
	return nil
}

// digTarget picks the block in front of the agent along its yaw, falling
// back to the block beneath. It reports false when both are empty.
func digTarget(w World) (world.Block, bool) {
	pose := w.Pose()
	front := pose.Pos.Offset(math.Cos(pose.Yaw), 0, math.Sin(pose.Yaw))
	if b, ok := w.BlockAt(front); ok && !b.IsAir() {
		return b, true
	}
	if b, ok := w.BlockAt(pose.Pos.Offset(0, -1, 0)); ok && !b.IsAir() {
		return b, true
	}
	return world.Block{}, false
}

func runDig(ctx context.Context, d *Dispatcher, _ Invocation) error {
	b, ok := digTarget(d.deps.World)
	if !ok {
		d.say("nothing to dig.")
		return nil
	}
	if !b.Diggable {
		return fail("cannot dig: "+b.Name, nil)
	}
	d.say("digging: " + b.Name)
	dctx, cancel := context.WithTimeout(ctx, d.cfg.ActionTimeout)
	defer cancel()
	if err := d.deps.World.Dig(dctx, b); err != nil {
		return fail("dig failed.", err)
	}
	d.say("done.")
	return nil
}

func runBuild(_ context.Context, d *Dispatcher, inv Invocation) error {
	height := d.cfg.BuildHeight
	if len(inv.Args) > 0 {
		n, err := strconv.Atoi(inv.Args[0])
		if err != nil || n <= 0 || n > maxBuildHeight {
			return &UsageError{Usage: d.usage(d.table["build"]) + fmt.Sprintf(" (1-%d)", maxBuildHeight)}
		}
		height = n
	}
	if err := d.deps.Build.Start(height); err != nil {
		if errors.Is(err, build.ErrAlreadyRunning) {
			return fail("already building.", nil)
		}
		return fail("cannot start building.", err)
	}
	return nil
}

func runStatus(_ context.Context, d *Dispatcher, _ Invocation) error {
	var parts []string
	if d.deps.Status != nil {
		if s := d.deps.Status(); s != "" {
			parts = append(parts, s)
		}
	}
	if g := d.deps.Nav.Active(); g != nil {
		parts = append(parts, "goal: "+g.String())
	} else {
		parts = append(parts, "goal: none")
	}
	if d.deps.Build != nil {
		if p, ok := d.deps.Build.Progress(); ok {
			state := "idle"
			if p.Running {
				state = "running"
			}
			parts = append(parts, fmt.Sprintf("build: %s %d/%d", state, p.Placed(), p.Height))
		}
	}
	d.say(strings.Join(parts, " | "))
	return nil
}

func fmtCoord(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

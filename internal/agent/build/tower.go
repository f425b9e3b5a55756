// Package build raises a vertical column beneath the agent: place a block
// under its feet, hop onto it, repeat.
package build

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/abdel0909/mc-bot/internal/clock"
	"github.com/abdel0909/mc-bot/internal/world"
)

var (
	ErrNoMaterial     = errors.New("build: no build material in inventory")
	ErrNoBlockBeneath = errors.New("build: no block beneath")
	ErrAlreadyRunning = errors.New("build: a build is already running")
)

// Body is the slice of world.Conn a build drives.
type Body interface {
	Pose() world.Pose
	BlockAt(p world.Vec3) (world.Block, bool)
	Items() []world.Item
	Equip(ctx context.Context, it world.Item) error
	Look(yaw, pitch float64) error
	PlaceBlock(ctx context.Context, ref world.Block, face world.Vec3) error
	SetControlState(c world.Control, on bool) error
	Chat(text string) error
}

type Config struct {
	Height        int
	JumpPulse     time.Duration
	Settle        time.Duration
	Materials     Materials
	ActionTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Height:        10,
		JumpPulse:     450 * time.Millisecond,
		Settle:        250 * time.Millisecond,
		Materials:     DefaultMaterials,
		ActionTimeout: 15 * time.Second,
	}
}

type Progress struct {
	Height    int
	Remaining int
	Running   bool
}

// Placed is the number of blocks laid so far.
func (p Progress) Placed() int { return p.Height - p.Remaining }

var up = world.Vec3{Y: 1}

// Task is one tower build. Run may be called once.
type Task struct {
	body Body
	clk  clock.Clock
	log  *log.Logger
	cfg  Config

	mu       sync.Mutex
	progress Progress
}

func NewTask(body Body, clk clock.Clock, logger *log.Logger, cfg Config) *Task {
	def := DefaultConfig()
	if cfg.Height <= 0 {
		cfg.Height = def.Height
	}
	if cfg.JumpPulse <= 0 {
		cfg.JumpPulse = def.JumpPulse
	}
	if cfg.Settle <= 0 {
		cfg.Settle = def.Settle
	}
	if len(cfg.Materials) == 0 {
		cfg.Materials = def.Materials
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = def.ActionTimeout
	}
	return &Task{
		body:     body,
		clk:      clk,
		log:      logger,
		cfg:      cfg,
		progress: Progress{Height: cfg.Height, Remaining: cfg.Height},
	}
}

func (t *Task) Progress() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

func (t *Task) setRunning(on bool) {
	t.mu.Lock()
	t.progress.Running = on
	t.mu.Unlock()
}

func (t *Task) placedOne() {
	t.mu.Lock()
	t.progress.Remaining--
	t.mu.Unlock()
}

func (t *Task) say(text string) {
	if err := t.body.Chat(text); err != nil {
		t.log.Printf("build: announce failed: %v", err)
	}
}

// Run builds the tower. Cancellation is observed between iterations,
// never while a placement is in flight. Blocks already placed stay put.
func (t *Task) Run(ctx context.Context) error {
	t.setRunning(true)
	defer t.setRunning(false)

	if err := t.equip(ctx); err != nil {
		if errors.Is(err, ErrNoMaterial) {
			t.say("no build material in inventory.")
		} else {
			t.say("could not equip build material.")
		}
		t.log.Printf("build: abort before start: %v", err)
		return err
	}
	t.say(fmt.Sprintf("building a tower (height %d)...", t.cfg.Height))

	for i := 0; i < t.cfg.Height; i++ {
		if err := ctx.Err(); err != nil {
			t.say(fmt.Sprintf("build cancelled (%d placed).", i))
			t.log.Printf("build: cancelled placed=%d remaining=%d", i, t.cfg.Height-i)
			return err
		}
		if err := t.step(ctx, i); err != nil {
			if errors.Is(err, ErrNoBlockBeneath) {
				t.say("no block beneath me.")
			} else {
				t.say("could not keep building.")
			}
			t.log.Printf("build: abort placed=%d: %v", i, err)
			return err
		}
	}

	t.say("tower finished.")
	t.log.Printf("build: finished height=%d", t.cfg.Height)
	return nil
}

func (t *Task) equip(ctx context.Context) error {
	item, ok := t.cfg.Materials.Select(t.body.Items())
	if !ok {
		return ErrNoMaterial
	}
	ectx, cancel := context.WithTimeout(ctx, t.cfg.ActionTimeout)
	defer cancel()
	if err := t.body.Equip(ectx, item); err != nil {
		return fmt.Errorf("equip %s: %w", item.Name, err)
	}
	return nil
}

func (t *Task) step(ctx context.Context, i int) error {
	pose := t.body.Pose()
	base, ok := t.body.BlockAt(pose.Pos.Offset(0, -1, 0))
	if !ok || base.IsAir() {
		return ErrNoBlockBeneath
	}

	// Looking straight down keeps the placement target on the top face.
	if err := t.body.Look(pose.Yaw, -math.Pi/2); err != nil {
		return fmt.Errorf("look down: %w", err)
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.ActionTimeout)
	err := t.body.PlaceBlock(pctx, base, up)
	cancel()
	if err != nil {
		return fmt.Errorf("place block %d on %s: %w", i+1, base.Name, err)
	}
	t.placedOne()

	if err := t.body.SetControlState(world.ControlJump, true); err != nil {
		return fmt.Errorf("jump: %w", err)
	}
	// The hop always completes; a cancel is picked up at the next iteration.
	_ = clock.Sleep(context.WithoutCancel(ctx), t.clk, t.cfg.JumpPulse)
	if err := t.body.SetControlState(world.ControlJump, false); err != nil {
		return fmt.Errorf("release jump: %w", err)
	}
	_ = clock.Sleep(ctx, t.clk, t.cfg.Settle)
	return nil
}

// Package worldtest provides in-memory world.Conn and world.Dialer fakes
// for driving the agent's control core without a server.
package worldtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/abdel0909/mc-bot/internal/world"
)

var ErrClosed = errors.New("worldtest: connection closed")

type ControlCall struct {
	Control world.Control
	On      bool
}

// Conn is a scriptable world.Conn. Zero hooks mean every action succeeds.
type Conn struct {
	mu sync.Mutex

	events   chan world.Event
	closed   chan struct{}
	ended    bool
	username string
	version  string

	pose         world.Pose
	blocks       map[[3]int]world.Block
	items        []world.Item
	held         string
	participants map[string]world.Participant
	controls     map[world.Control]bool

	chats      []string
	goals      []*world.Goal
	movements  []world.Movements
	controlLog []ControlCall
	looks      [][2]float64
	placed     []world.Vec3
	dug        []world.Block
	stalled    int

	// PlaceErr, when set, is consulted before each placement with the
	// zero-based placement index.
	PlaceErr func(n int, ref world.Block) error
	DigErr   error
	EquipErr error
	// PlaceHook runs after a successful placement, outside the lock.
	PlaceHook func(n int)
	// Tower makes a successful placement fill ref+face and lift the agent
	// onto it, like a jump-and-place cycle in a real world.
	Tower bool
	// StallPlace makes PlaceBlock wait for its ctx or Close, like a
	// request the server never answers.
	StallPlace bool
}

func NewConn(username string) *Conn {
	return &Conn{
		events:       make(chan world.Event, 64),
		closed:       make(chan struct{}),
		username:     username,
		version:      "1.0",
		blocks:       map[[3]int]world.Block{},
		participants: map[string]world.Participant{},
		controls:     map[world.Control]bool{},
	}
}

func key(p world.Vec3) [3]int {
	f := p.Floored()
	return [3]int{int(f.X), int(f.Y), int(f.Z)}
}

func (c *Conn) SetVersion(v string) {
	c.mu.Lock()
	c.version = v
	c.mu.Unlock()
}

func (c *Conn) SetPose(p world.Pose) {
	c.mu.Lock()
	c.pose = p
	c.mu.Unlock()
}

func (c *Conn) SetBlock(name string, x, y, z int, diggable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos := world.Vec3{X: float64(x), Y: float64(y), Z: float64(z)}
	c.blocks[key(pos)] = world.Block{Name: name, Pos: pos, Diggable: diggable}
}

func (c *Conn) SetItems(items ...world.Item) {
	c.mu.Lock()
	c.items = append([]world.Item(nil), items...)
	c.mu.Unlock()
}

func (c *Conn) AddParticipant(name string, pos world.Vec3) {
	c.mu.Lock()
	c.participants[name] = world.Participant{Name: name, Pos: pos}
	c.mu.Unlock()
}

func (c *Conn) RemoveParticipant(name string) {
	c.mu.Lock()
	delete(c.participants, name)
	c.mu.Unlock()
}

// Push delivers an event to the consumer.
func (c *Conn) Push(ev world.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	c.events <- ev
}

func (c *Conn) Spawn() { c.Push(world.Event{Kind: world.EventSpawn}) }

func (c *Conn) Say(sender, text string) {
	c.Push(world.Event{Kind: world.EventChat, Sender: sender, Text: text})
}

// End delivers EventEnd and closes the event channel.
func (c *Conn) End(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	c.ended = true
	close(c.closed)
	c.events <- world.Event{Kind: world.EventEnd, At: time.Now(), Reason: reason}
	close(c.events)
}

func (c *Conn) Events() <-chan world.Event { return c.events }
func (c *Conn) Username() string            { return c.username }

func (c *Conn) Version() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

func (c *Conn) Close() error {
	c.End("closed")
	return nil
}

func (c *Conn) Pose() world.Pose {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pose
}

func (c *Conn) BlockAt(p world.Vec3) (world.Block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.blocks[key(p)]
	return b, ok
}

func (c *Conn) Items() []world.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]world.Item(nil), c.items...)
}

func (c *Conn) Participant(name string) (world.Participant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.participants[name]
	return p, ok
}

func (c *Conn) Chat(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return ErrClosed
	}
	c.chats = append(c.chats, text)
	return nil
}

func (c *Conn) Equip(ctx context.Context, it world.Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.EquipErr != nil {
		return c.EquipErr
	}
	c.held = it.Name
	return nil
}

func (c *Conn) Look(yaw, pitch float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.looks = append(c.looks, [2]float64{yaw, pitch})
	c.pose.Yaw, c.pose.Pitch = yaw, pitch
	return nil
}

func (c *Conn) SetControlState(ctl world.Control, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controls[ctl] = on
	c.controlLog = append(c.controlLog, ControlCall{Control: ctl, On: on})
	return nil
}

func (c *Conn) ClearControlStates() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ctl, on := range c.controls {
		if on {
			c.controls[ctl] = false
			c.controlLog = append(c.controlLog, ControlCall{Control: ctl, On: false})
		}
	}
	return nil
}

func (c *Conn) PlaceBlock(ctx context.Context, ref world.Block, face world.Vec3) error {
	c.mu.Lock()
	n := len(c.placed)
	if c.PlaceErr != nil {
		if err := c.PlaceErr(n, ref); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	if c.held == "" {
		c.mu.Unlock()
		return fmt.Errorf("worldtest: nothing held")
	}
	if c.StallPlace {
		c.stalled++
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return ErrClosed
		}
	}
	at := ref.Pos.Add(face)
	c.placed = append(c.placed, at)
	if c.Tower {
		c.blocks[key(at)] = world.Block{Name: c.held, Pos: at.Floored(), Diggable: true}
		c.pose.Pos.Y = math.Floor(at.Y) + 1
	}
	hook := c.PlaceHook
	c.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return nil
}

func (c *Conn) Dig(ctx context.Context, b world.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.DigErr != nil {
		return c.DigErr
	}
	c.dug = append(c.dug, b)
	delete(c.blocks, key(b.Pos))
	return nil
}

func (c *Conn) Movements() world.Movements {
	c.mu.Lock()
	defer c.mu.Unlock()
	return world.Movements{Version: c.version, AllowDig: true, AllowPlace: true}
}

func (c *Conn) SetGoal(g *world.Goal, m world.Movements) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g != nil {
		cp := *g
		g = &cp
	}
	c.goals = append(c.goals, g)
	c.movements = append(c.movements, m)
	return nil
}

func (c *Conn) Chats() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.chats...)
}

// LastChat returns the most recent announcement, or "".
func (c *Conn) LastChat() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.chats) == 0 {
		return ""
	}
	return c.chats[len(c.chats)-1]
}

// Goals returns every SetGoal submission in order; nil entries are clears.
func (c *Conn) Goals() []*world.Goal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*world.Goal(nil), c.goals...)
}

func (c *Conn) SubmittedMovements() []world.Movements {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]world.Movements(nil), c.movements...)
}

func (c *Conn) ControlLog() []ControlCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ControlCall(nil), c.controlLog...)
}

func (c *Conn) ControlOn(ctl world.Control) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controls[ctl]
}

func (c *Conn) Looks() [][2]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][2]float64(nil), c.looks...)
}

func (c *Conn) Placed() []world.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]world.Vec3(nil), c.placed...)
}

// Stalled counts placements parked by StallPlace.
func (c *Conn) Stalled() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stalled
}

func (c *Conn) Dug() []world.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]world.Block(nil), c.dug...)
}

func (c *Conn) Held() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.held
}

// HasChat reports whether any announcement contains substr.
func (c *Conn) HasChat(substr string) bool {
	for _, m := range c.Chats() {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

// WaitFor polls cond until it holds or timeout passes (real time).
func WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

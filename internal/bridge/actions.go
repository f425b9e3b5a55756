package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/gorilla/websocket"

	"github.com/abdel0909/mc-bot/internal/protocol"
	"github.com/abdel0909/mc-bot/internal/world"
)

func (c *Conn) Pose() world.Pose {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.pose
}

func (c *Conn) BlockAt(p world.Vec3) (world.Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.blockAt(p)
}

func (c *Conn) Items() []world.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]world.Item(nil), c.view.items...)
}

func (c *Conn) Participant(name string) (world.Participant, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.participant(name)
}

func (c *Conn) nextID(prefix string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return fmt.Sprintf("%s_%d", prefix, c.seq)
}

func (c *Conn) send(act protocol.ActMsg) error {
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}
	c.mu.RLock()
	act.Type = protocol.TypeAct
	act.ProtocolVersion = c.version
	act.Tick = c.tick
	act.AgentID = c.agentID
	c.mu.RUnlock()
	if act.ProtocolVersion == "" {
		act.ProtocolVersion = protocol.Version
	}
	b, err := json.Marshal(act)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

// await sends act and blocks until the ACTION_RESULT for id arrives, ctx
// is done, or the connection ends.
func (c *Conn) await(ctx context.Context, id string, act protocol.ActMsg) error {
	ch := make(chan actionResult, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	drop := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	if err := c.send(act); err != nil {
		drop()
		return err
	}
	select {
	case res := <-ch:
		if !res.ok {
			return &ActionError{Ref: id, Code: c.normalize("action "+id, res.code), Message: res.message}
		}
		return nil
	case <-ctx.Done():
		drop()
		return ctx.Err()
	case <-c.done:
		return ErrNotConnected
	}
}

func (c *Conn) instant(req protocol.InstantReq) error {
	req.ID = c.nextID("I")
	return c.send(protocol.ActMsg{Instants: []protocol.InstantReq{req}})
}

func (c *Conn) Chat(text string) error {
	return c.instant(protocol.InstantReq{Type: protocol.InstantSay, Channel: "LOCAL", Text: text})
}

func (c *Conn) Equip(ctx context.Context, it world.Item) error {
	id := c.nextID("I")
	req := protocol.InstantReq{ID: id, Type: protocol.InstantEquip, ItemID: it.Name}
	if err := c.await(ctx, id, protocol.ActMsg{Instants: []protocol.InstantReq{req}}); err != nil {
		return fmt.Errorf("equip %s: %w", it.Name, err)
	}
	c.mu.Lock()
	c.view.held = it.Name
	c.mu.Unlock()
	return nil
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

func (c *Conn) Look(yaw, pitch float64) error {
	return c.instant(protocol.InstantReq{Type: protocol.InstantLook, Yaw: degrees(yaw), Pitch: degrees(pitch)})
}

func (c *Conn) SetControlState(ctl world.Control, on bool) error {
	if err := c.instant(protocol.InstantReq{Type: protocol.InstantControl, Control: string(ctl), State: on}); err != nil {
		return err
	}
	c.mu.Lock()
	if on {
		c.controls[ctl] = true
	} else {
		delete(c.controls, ctl)
	}
	c.mu.Unlock()
	return nil
}

func (c *Conn) ClearControlStates() error {
	c.mu.Lock()
	var reqs []protocol.InstantReq
	for ctl := range c.controls {
		c.seq++
		reqs = append(reqs, protocol.InstantReq{
			ID:      fmt.Sprintf("I_%d", c.seq),
			Type:    protocol.InstantControl,
			Control: string(ctl),
		})
	}
	c.controls = map[world.Control]bool{}
	c.mu.Unlock()
	if len(reqs) == 0 {
		return nil
	}
	return c.send(protocol.ActMsg{Instants: reqs})
}

func blockPos(p world.Vec3) [3]int {
	f := p.Floored()
	return [3]int{int(f.X), int(f.Y), int(f.Z)}
}

// PlaceBlock places the held item in the cell at ref+face.
func (c *Conn) PlaceBlock(ctx context.Context, ref world.Block, face world.Vec3) error {
	c.mu.RLock()
	held := c.view.held
	c.mu.RUnlock()
	if held == "" {
		return ErrNothingHeld
	}
	at := blockPos(ref.Pos.Add(face))
	id := c.nextID("K")
	task := protocol.TaskReq{ID: id, Type: protocol.TaskPlace, BlockPos: at, ItemID: held}
	if err := c.await(ctx, id, protocol.ActMsg{Tasks: []protocol.TaskReq{task}}); err != nil {
		return fmt.Errorf("place %s at %v: %w", held, at, err)
	}
	return nil
}

func (c *Conn) Dig(ctx context.Context, b world.Block) error {
	at := blockPos(b.Pos)
	id := c.nextID("K")
	task := protocol.TaskReq{ID: id, Type: protocol.TaskMine, BlockPos: at}
	if err := c.await(ctx, id, protocol.ActMsg{Tasks: []protocol.TaskReq{task}}); err != nil {
		return fmt.Errorf("mine %s at %v: %w", b.Name, at, err)
	}
	return nil
}

// Movements derives pathfinder constraints from the negotiated version and
// the block catalog.
func (c *Conn) Movements() world.Movements {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return world.Movements{
		Version:       c.version,
		AllowDig:      true,
		AllowPlace:    true,
		ScaffoldItems: c.view.scaffold(c.cfg.scaffold),
		Avoid:         c.view.avoid(),
	}
}

// SetGoal replaces the navigation task. A nil goal only cancels.
func (c *Conn) SetGoal(g *world.Goal, m world.Movements) error {
	c.mu.Lock()
	prev := c.navTask
	c.navTask = ""
	c.mu.Unlock()

	var act protocol.ActMsg
	if prev != "" {
		act.Cancel = []string{prev}
	}
	if g != nil {
		id := c.nextID("K")
		tol := g.Tolerance
		if g.Kind == world.GoalBlock {
			tol = 0
		}
		act.Tasks = []protocol.TaskReq{{
			ID:        id,
			Type:      protocol.TaskMoveTo,
			Target:    [3]float64{g.Pos.X, g.Pos.Y, g.Pos.Z},
			Tolerance: tol,
			Movements: &protocol.MovementsReq{
				AllowDig:   m.AllowDig,
				AllowPlace: m.AllowPlace,
				Scaffold:   m.ScaffoldItems,
				Avoid:      m.Avoid,
			},
		}}
		c.mu.Lock()
		c.navTask = id
		c.mu.Unlock()
	}
	if act.Cancel == nil && act.Tasks == nil {
		return nil
	}
	return c.send(act)
}

// Package nav turns destination requests into navigation goals. One goal
// is active at a time and every submission supersedes the previous one.
package nav

import (
	"errors"
	"fmt"

	"github.com/abdel0909/mc-bot/internal/world"
)

// Engine is the navigation slice of world.Conn.
type Engine interface {
	Movements() world.Movements
	SetGoal(g *world.Goal, m world.Movements) error
	ClearControlStates() error
}

// PositionFunc reads a target position at submission time.
type PositionFunc func() (world.Vec3, bool)

var ErrTargetUnavailable = errors.New("nav: target position unavailable")

// Issuer is not safe for concurrent use; the agent's control loop is its
// only caller.
type Issuer struct {
	engine Engine
	active *world.Goal
}

func NewIssuer(e Engine) *Issuer { return &Issuer{engine: e} }

// GoTo submits a reach-block goal at (x,y,z).
func (n *Issuer) GoTo(x, y, z float64) error {
	return n.submit(world.Goal{Kind: world.GoalBlock, Pos: world.Vec3{X: x, Y: y, Z: z}})
}

// ComeNear submits a goal within tolerance of the position pos reports
// now. The goal is not refreshed if the target moves afterwards.
func (n *Issuer) ComeNear(pos PositionFunc, tolerance float64) error {
	p, ok := pos()
	if !ok {
		return ErrTargetUnavailable
	}
	return n.submit(world.Goal{Kind: world.GoalNear, Pos: p, Tolerance: tolerance})
}

func (n *Issuer) submit(g world.Goal) error {
	m := n.engine.Movements()
	if err := n.engine.SetGoal(&g, m); err != nil {
		return fmt.Errorf("set goal %s: %w", g, err)
	}
	n.active = &g
	return nil
}

// Stop clears the active goal and releases every held control state.
// The slot is cleared even when the engine reports an error.
func (n *Issuer) Stop() error {
	n.active = nil
	goalErr := n.engine.SetGoal(nil, world.Movements{})
	ctlErr := n.engine.ClearControlStates()
	if goalErr != nil {
		return fmt.Errorf("clear goal: %w", goalErr)
	}
	if ctlErr != nil {
		return fmt.Errorf("clear controls: %w", ctlErr)
	}
	return nil
}

// Active returns the last submitted goal, or nil.
func (n *Issuer) Active() *world.Goal {
	if n.active == nil {
		return nil
	}
	g := *n.active
	return &g
}

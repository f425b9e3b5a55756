// Package world describes the game-world capabilities the agent's control
// core consumes. Implementations live elsewhere (internal/bridge for the
// websocket voxel protocol, fakes in tests).
package world

import (
	"fmt"
	"math"
)

type Vec3 struct{ X, Y, Z float64 }

func (v Vec3) Offset(dx, dy, dz float64) Vec3 { return Vec3{v.X + dx, v.Y + dy, v.Z + dz} }

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Floored returns the block cell containing v.
func (v Vec3) Floored() Vec3 {
	return Vec3{math.Floor(v.X), math.Floor(v.Y), math.Floor(v.Z)}
}

func (v Vec3) String() string { return fmt.Sprintf("%.1f %.1f %.1f", v.X, v.Y, v.Z) }

// Pose is the agent's position and look direction. Angles are radians.
type Pose struct {
	Pos   Vec3
	Yaw   float64
	Pitch float64
}

const AirBlock = "air"

type Block struct {
	Name     string
	Pos      Vec3 // block cell, integral coordinates
	Diggable bool
}

// IsAir reports whether b is empty space.
func (b Block) IsAir() bool { return b.Name == "" || b.Name == AirBlock }

type Item struct {
	Name  string
	Count int
}

type Participant struct {
	Name string
	Pos  Vec3
}

type Control string

const (
	ControlJump    Control = "jump"
	ControlForward Control = "forward"
	ControlBack    Control = "back"
	ControlLeft    Control = "left"
	ControlRight   Control = "right"
	ControlSneak   Control = "sneak"
	ControlSprint  Control = "sprint"
)

type GoalKind string

const (
	GoalBlock GoalKind = "block"
	GoalNear  GoalKind = "near"
)

// Goal is a navigation target. GoalBlock ignores Tolerance.
type Goal struct {
	Kind      GoalKind
	Pos       Vec3
	Tolerance float64
}

func (g Goal) String() string {
	if g.Kind == GoalNear {
		return fmt.Sprintf("near %s (±%g)", g.Pos, g.Tolerance)
	}
	return fmt.Sprintf("block %s", g.Pos)
}

// Movements constrains how the navigation engine may move the agent.
// Built per negotiated world version.
type Movements struct {
	Version       string
	AllowDig      bool
	AllowPlace    bool
	ScaffoldItems []string
	Avoid         []string
}

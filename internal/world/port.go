package world

import (
	"context"
	"time"
)

type AuthMode string

const (
	AuthOffline   AuthMode = "offline"
	AuthMicrosoft AuthMode = "microsoft"
)

// Options is the immutable session configuration handed to a Dialer.
type Options struct {
	Host      string
	Port      int
	Path      string
	Username  string
	Auth      AuthMode
	AuthToken string
	Version   string // empty: negotiate
}

type Dialer interface {
	Dial(ctx context.Context, opts Options) (Conn, error)
}

// Conn is one live connection. Events is closed after EventEnd has been
// delivered. Query methods return the latest observed state; action
// methods that wait for a server result honour ctx.
type Conn interface {
	Events() <-chan Event
	Username() string
	Version() string
	Close() error

	Pose() Pose
	BlockAt(p Vec3) (Block, bool)
	Items() []Item
	Participant(name string) (Participant, bool)

	Chat(text string) error
	Equip(ctx context.Context, it Item) error
	Look(yaw, pitch float64) error
	SetControlState(c Control, on bool) error
	ClearControlStates() error
	PlaceBlock(ctx context.Context, ref Block, face Vec3) error
	Dig(ctx context.Context, b Block) error

	Movements() Movements
	SetGoal(g *Goal, m Movements) error
}

type EventKind int

const (
	EventSpawn EventKind = iota + 1
	EventChat
	EventEnd
	EventKick
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventSpawn:
		return "spawn"
	case EventChat:
		return "chat"
	case EventEnd:
		return "end"
	case EventKick:
		return "kick"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind   EventKind
	At     time.Time
	Sender string // EventChat
	Text   string // EventChat
	Reason string // EventEnd, EventKick
	Err    error  // EventError
}

package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/abdel0909/mc-bot/internal/protocol"
	"github.com/abdel0909/mc-bot/internal/world"
)

type connConfig struct {
	username  string
	pinned    string
	scaffold  []string
	log       *log.Logger
	onWelcome func(protocol.WelcomeMsg)
	onKick    func(code string)
}

type actionResult struct {
	ok      bool
	code    string
	message string
}

// Conn is one websocket connection to the world server. A single reader
// goroutine owns inbound frames; actions may be sent from any goroutine.
type Conn struct {
	cfg connConfig
	ws  *websocket.Conn

	events  chan world.Event
	closing chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	writeMu   sync.Mutex

	mu         sync.RWMutex
	version    string
	agentID    string
	welcomed   bool
	spawned    bool
	kickReason string
	tick       uint64
	view       view
	controls   map[world.Control]bool
	navTask    string
	pending    map[string]chan actionResult
	seq        uint64
}

func newConn(ws *websocket.Conn, cfg connConfig) *Conn {
	return &Conn{
		cfg:      cfg,
		ws:       ws,
		events:   make(chan world.Event, eventBuffer),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
		version:  cfg.pinned,
		view:     newView(),
		controls: map[world.Control]bool{},
		pending:  map[string]chan actionResult{},
	}
}

func (c *Conn) Events() <-chan world.Event { return c.events }

func (c *Conn) Username() string { return c.cfg.username }

// Version is the negotiated world version, or the pinned one before
// WELCOME.
func (c *Conn) Version() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func (c *Conn) AgentID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.agentID
}

// Close tears the connection down. The reader delivers EventEnd on a
// best-effort basis afterwards.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) emit(ev world.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case c.events <- ev:
		return
	default:
	}
	select {
	case c.events <- ev:
	case <-c.closing:
	}
}

func (c *Conn) readLoop() {
	reason := "connection closed"
	defer func() { c.finish(reason) }()

	for {
		_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			reason = c.endReason(err)
			return
		}
		if err := c.handle(msg); err != nil {
			c.emit(world.Event{Kind: world.EventError, Err: err})
			if errors.Is(err, errUnsupportedVersion) {
				reason = err.Error()
				_ = c.ws.Close()
				return
			}
		}
	}
}

func (c *Conn) endReason(err error) string {
	c.mu.RLock()
	kicked := c.kickReason
	c.mu.RUnlock()
	if kicked != "" {
		return "kicked: " + kicked
	}
	select {
	case <-c.closing:
		return "closed by client"
	default:
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Text != "" {
			return ce.Text
		}
		return fmt.Sprintf("close %d", ce.Code)
	}
	return err.Error()
}

func (c *Conn) finish(reason string) {
	// Waiters still in pending observe c.done.
	c.mu.Lock()
	c.pending = map[string]chan actionResult{}
	c.mu.Unlock()
	close(c.done)
	c.emit(world.Event{Kind: world.EventEnd, Reason: reason})
	close(c.events)
	_ = c.ws.Close()
}

func (c *Conn) handle(msg []byte) error {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return fmt.Errorf("decode welcome: %w", err)
		}
		return c.onWelcome(w)

	case protocol.TypeCatalog:
		var m protocol.CatalogMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return fmt.Errorf("decode catalog: %w", err)
		}
		if strings.ToLower(strings.TrimSpace(m.Name)) != protocol.CatalogBlockDefs {
			return nil
		}
		var defs []protocol.BlockDef
		if err := json.Unmarshal(m.Data, &defs); err != nil {
			return fmt.Errorf("decode block_defs: %w", err)
		}
		c.mu.Lock()
		c.view.setDefs(defs)
		c.mu.Unlock()
		return nil

	case protocol.TypeObs:
		var o protocol.ObsMsg
		if err := json.Unmarshal(msg, &o); err != nil {
			return fmt.Errorf("decode obs: %w", err)
		}
		return c.onObs(o)

	case protocol.TypeKick:
		var k protocol.KickMsg
		if err := json.Unmarshal(msg, &k); err != nil {
			return fmt.Errorf("decode kick: %w", err)
		}
		code := c.normalize("kick", k.Code)
		c.mu.Lock()
		c.kickReason = k.Reason
		c.mu.Unlock()
		if c.cfg.onKick != nil {
			c.cfg.onKick(code)
		}
		c.emit(world.Event{Kind: world.EventKick, Reason: k.Reason})
		return nil

	default:
		return fmt.Errorf("unexpected frame type %q", base.Type)
	}
}

// normalize logs codes outside the known table and reports them as
// E_INTERNAL.
func (c *Conn) normalize(what, code string) string {
	n := protocol.NormalizeCode(code)
	if n != code {
		c.cfg.log.Printf("%s: unknown code %q reported as %s", what, code, n)
	}
	return n
}

func (c *Conn) onWelcome(w protocol.WelcomeMsg) error {
	v := w.Negotiated()
	if !protocol.IsSupportedVersion(v) || (c.cfg.pinned != "" && v != c.cfg.pinned) {
		return fmt.Errorf("%w: server selected %q", errUnsupportedVersion, v)
	}
	c.mu.Lock()
	c.version = v
	c.agentID = w.AgentID
	c.welcomed = true
	c.mu.Unlock()
	c.cfg.log.Printf("welcome agent_id=%s version=%s", w.AgentID, v)
	if c.cfg.onWelcome != nil {
		c.cfg.onWelcome(w)
	}
	return nil
}

func (c *Conn) onObs(o protocol.ObsMsg) error {
	c.mu.Lock()
	if !c.welcomed {
		c.mu.Unlock()
		return errObsBeforeWelcome
	}
	spawn := !c.spawned
	c.spawned = true
	c.tick = o.Tick
	c.view.pose = world.Pose{
		Pos:   world.Vec3{X: o.Self.Pos[0], Y: o.Self.Pos[1], Z: o.Self.Pos[2]},
		Yaw:   o.Self.Yaw * math.Pi / 180,
		Pitch: o.Self.Pitch * math.Pi / 180,
	}
	c.view.setInventory(o.Inventory, o.Equipment.MainHand)
	c.view.setEntities(o.Entities, c.agentID)
	voxErr := c.view.applyVoxels(o.Voxels)

	var chats []world.Event
	var results []resolved
	for _, ev := range o.Events {
		switch ev.Type() {
		case protocol.EventChat:
			chats = append(chats, world.Event{Kind: world.EventChat, Sender: ev.Str("from"), Text: ev.Str("text")})
		case protocol.EventActionResult:
			ref := ev.Str("ref")
			if ch, ok := c.pending[ref]; ok {
				delete(c.pending, ref)
				results = append(results, resolved{ch: ch, res: actionResult{ok: ev.Bool("ok"), code: ev.Str("code"), message: ev.Str("message")}})
			}
		}
	}
	c.mu.Unlock()

	for _, r := range results {
		r.ch <- r.res
	}
	if spawn {
		c.emit(world.Event{Kind: world.EventSpawn})
	}
	for _, ev := range chats {
		c.emit(ev)
	}
	if voxErr != nil {
		return fmt.Errorf("voxels at tick %d: %w", o.Tick, voxErr)
	}
	return nil
}

type resolved struct {
	ch  chan actionResult
	res actionResult
}

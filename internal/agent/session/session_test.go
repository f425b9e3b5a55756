package session

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/abdel0909/mc-bot/internal/agent/build"
	"github.com/abdel0909/mc-bot/internal/agent/idle"
	"github.com/abdel0909/mc-bot/internal/clock"
	"github.com/abdel0909/mc-bot/internal/persistence/record"
	"github.com/abdel0909/mc-bot/internal/world"
	"github.com/abdel0909/mc-bot/internal/world/worldtest"
)

var discard = log.New(io.Discard, "", 0)

type memRecorder struct {
	mu       sync.Mutex
	sessions []record.Session
	commands []record.Command
}

func (m *memRecorder) RecordSession(s record.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, s)
	return nil
}

func (m *memRecorder) RecordCommand(c record.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, c)
	return nil
}

func (m *memRecorder) Close() error { return nil }

func (m *memRecorder) Sessions() []record.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]record.Session(nil), m.sessions...)
}

func (m *memRecorder) Commands() []record.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]record.Command(nil), m.commands...)
}

func (m *memRecorder) ofKind(kind string) []record.Session {
	var out []record.Session
	for _, s := range m.Sessions() {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func testConfig() Config {
	return Config{
		Options:        world.Options{Host: "localhost", Port: 25565, Username: "bot", Auth: world.AuthOffline},
		BackoffInitial: 5 * time.Second,
		BackoffMax:     30 * time.Second,
		BuildDelay:     2 * time.Second,
		Build: build.Config{
			Height:    10,
			JumpPulse: 450 * time.Millisecond,
			Settle:    250 * time.Millisecond,
		},
		Idle: idle.Config{Interval: time.Minute, Pulse: 300 * time.Millisecond},
	}
}

func newTowerConn() *worldtest.Conn {
	c := worldtest.NewConn("bot")
	c.Tower = true
	c.SetPose(world.Pose{Pos: world.Vec3{X: 0.5, Y: 64, Z: 0.5}})
	c.SetBlock("grass", 0, 63, 0, true)
	c.SetItems(world.Item{Name: "cobblestone", Count: 64})
	c.AddParticipant("alice", world.Vec3{X: 4, Y: 64, Z: 4})
	return c
}

type harness struct {
	clk    *clock.FakeClock
	dialer *worldtest.Dialer
	rec    *memRecorder

	cancel context.CancelFunc
	done   chan error
	once   sync.Once
}

func newHarness() *harness {
	return &harness{
		clk:    clock.Fake(time.Unix(1_700_000_000, 0)),
		dialer: worldtest.NewDialer(),
		rec:    &memRecorder{},
		done:   make(chan error, 1),
	}
}

func (h *harness) start(t *testing.T, cfg Config) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	a := New(cfg, h.dialer, h.clk, discard, h.rec)
	go func() { h.done <- a.Run(ctx) }()
	t.Cleanup(func() { h.stop(t) })
}

// stop cancels Run and keeps the fake clock moving until it returns, so
// a build parked on its jump pulse can finish tearing down.
func (h *harness) stop(t *testing.T) {
	h.once.Do(func() {
		h.cancel()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case err := <-h.done:
				if err != nil {
					t.Errorf("Run: %v", err)
				}
				return
			case <-deadline:
				t.Errorf("Run did not return after cancel")
				return
			case <-time.After(time.Millisecond):
				if h.clk.Pending() > 0 {
					h.clk.Advance(time.Second)
				}
			}
		}
	})
}

// pump advances the clock in small steps while anything is parked on it.
func (h *harness) pump() (stop func()) {
	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-quit:
				return
			case <-time.After(time.Millisecond):
				if h.clk.Pending() > 0 {
					h.clk.Advance(50 * time.Millisecond)
				}
			}
		}
	}()
	return func() {
		close(quit)
		wg.Wait()
	}
}

func (h *harness) waitKind(t *testing.T, kind string, n int) {
	t.Helper()
	if !worldtest.WaitFor(2*time.Second, func() bool { return len(h.rec.ofKind(kind)) >= n }) {
		t.Fatalf("timed out waiting for %d %q records; have %+v", n, kind, h.rec.Sessions())
	}
}

func waitChat(t *testing.T, c *worldtest.Conn, substr string) {
	t.Helper()
	if !worldtest.WaitFor(2*time.Second, func() bool { return c.HasChat(substr) }) {
		t.Fatalf("no chat containing %q; chats %q", substr, c.Chats())
	}
}

func TestRunBacksOffUntilCap(t *testing.T) {
	h := newHarness()
	var (
		mu sync.Mutex
		at []time.Time
	)
	h.dialer.Next = func(int) (world.Conn, error) {
		mu.Lock()
		at = append(at, h.clk.Now())
		mu.Unlock()
		return nil, worldtest.ErrRefused
	}
	h.start(t, testConfig())

	for h.dialer.Attempts() < 6 {
		h.clk.WaitForTimers(1)
		h.clk.Advance(time.Second)
	}
	h.waitKind(t, record.KindDialFailed, 6)
	h.stop(t)

	mu.Lock()
	defer mu.Unlock()
	want := []time.Duration{5, 10, 20, 30, 30}
	for i, w := range want {
		if got := at[i+1].Sub(at[i]); got != w*time.Second {
			t.Fatalf("delay %d: got %s want %s", i, got, w*time.Second)
		}
	}
	failed := h.rec.ofKind(record.KindDialFailed)
	if failed[0].RetryMS != 5000 || failed[4].RetryMS != 30000 {
		t.Fatalf("retry_ms %d / %d", failed[0].RetryMS, failed[4].RetryMS)
	}
	if !strings.Contains(failed[0].Reason, "connection refused") {
		t.Fatalf("reason %q", failed[0].Reason)
	}
}

func TestSpawnResetsBackoffAndGreets(t *testing.T) {
	h := newHarness()
	conns := []*worldtest.Conn{nil, worldtest.NewConn("bot"), worldtest.NewConn("bot")}
	conns[1].SetPose(world.Pose{Pos: world.Vec3{X: 1, Y: 65, Z: -2}})
	h.dialer.Next = func(n int) (world.Conn, error) {
		switch {
		case n == 0:
			return nil, worldtest.ErrRefused
		case n < len(conns):
			return conns[n], nil
		default:
			return worldtest.NewConn("bot"), nil
		}
	}
	h.start(t, testConfig())

	// The failed first attempt leaves the next delay at 10s.
	h.clk.WaitForTimers(1)
	h.clk.Advance(5 * time.Second)
	h.waitKind(t, record.KindAttempt, 2)

	c := conns[1]
	c.Spawn()
	c.Spawn()
	c.Say("alice", "!pos")
	waitChat(t, c, "Pos: 1.0 65.0 -2.0")

	greetings := 0
	for _, m := range c.Chats() {
		if strings.HasPrefix(m, "Hi! ") {
			greetings++
		}
	}
	if greetings != 1 {
		t.Fatalf("greetings %d; chats %q", greetings, c.Chats())
	}
	if got, want := c.Chats()[0], "Hi! !help | !pos | !say <text...> | !stop | !goto <x> <y> <z> | !come [name] | !dig | !build [height] | !status"; got != want {
		t.Fatalf("greeting %q want %q", got, want)
	}
	if n := len(h.rec.ofKind(record.KindSpawn)); n != 1 {
		t.Fatalf("spawn records %d", n)
	}

	h.clk.Advance(90 * time.Second)
	c.Say("alice", "!status")
	waitChat(t, c, "up 1m30s | goal: none")

	c.End("server restart")
	h.waitKind(t, record.KindEnd, 1)
	end := h.rec.ofKind(record.KindEnd)[0]
	if end.RetryMS != 5000 || end.Reason != "server restart" {
		t.Fatalf("end record %+v", end)
	}

	h.clk.WaitForTimers(1)
	h.clk.Advance(5 * time.Second)
	h.waitKind(t, record.KindAttempt, 3)

	cmds := h.rec.Commands()
	if len(cmds) != 2 || cmds[0].Command != "pos" || cmds[0].Outcome != "ok" || cmds[0].Sender != "alice" {
		t.Fatalf("commands %+v", cmds)
	}
	attempts := h.rec.ofKind(record.KindAttempt)
	if cmds[0].ConnID != attempts[1].ConnID || attempts[1].ConnID == attempts[0].ConnID {
		t.Fatalf("conn ids: command %q attempts %q %q", cmds[0].ConnID, attempts[0].ConnID, attempts[1].ConnID)
	}
}

func TestAutoBuildAfterSpawn(t *testing.T) {
	h := newHarness()
	c := newTowerConn()
	h.dialer.Next = func(n int) (world.Conn, error) {
		if n == 0 {
			return c, nil
		}
		return worldtest.NewConn("bot"), nil
	}
	cfg := testConfig()
	cfg.AutoBuild = true
	h.start(t, cfg)

	c.Spawn()
	h.clk.WaitForTimers(1)
	h.clk.Advance(1999 * time.Millisecond)
	if len(c.Placed()) != 0 || c.HasChat("building") {
		t.Fatalf("build started before the delay")
	}

	stopPump := h.pump()
	defer stopPump()
	waitChat(t, c, "tower finished.")
	if got := len(c.Placed()); got != 10 {
		t.Fatalf("placed %d, want 10", got)
	}
	if !c.HasChat("building a tower (height 10)...") {
		t.Fatalf("chats %q", c.Chats())
	}
}

func TestStopCommandCancelsBuild(t *testing.T) {
	h := newHarness()
	c := newTowerConn()
	c.PlaceHook = func(n int) {
		if n != 1 {
			return
		}
		c.Say("alice", "!stop")
		worldtest.WaitFor(2*time.Second, func() bool { return c.HasChat("Stopped.") })
	}
	h.dialer.Next = func(n int) (world.Conn, error) {
		if n == 0 {
			return c, nil
		}
		return worldtest.NewConn("bot"), nil
	}
	h.start(t, testConfig())

	c.Spawn()
	c.Say("alice", "!build 5")
	stopPump := h.pump()
	defer stopPump()

	waitChat(t, c, "build cancelled (2 placed).")
	if got := len(c.Placed()); got != 2 {
		t.Fatalf("placed %d, want 2", got)
	}
	goals := c.Goals()
	if len(goals) == 0 || goals[len(goals)-1] != nil {
		t.Fatalf("stop should clear the goal; goals %v", goals)
	}
	if c.HasChat("tower finished.") {
		t.Fatalf("cancelled build announced completion")
	}
}

func TestIdleStopsWhenConnectionEnds(t *testing.T) {
	h := newHarness()
	c := worldtest.NewConn("bot")
	h.dialer.Next = func(n int) (world.Conn, error) {
		if n == 0 {
			return c, nil
		}
		return worldtest.NewConn("bot"), nil
	}
	cfg := testConfig()
	cfg.IdleEnabled = true
	h.start(t, cfg)

	c.Spawn()
	h.clk.WaitForTimers(1)
	h.clk.Advance(time.Minute)
	if !worldtest.WaitFor(2*time.Second, func() bool { return c.ControlOn(world.ControlJump) }) {
		t.Fatalf("idle pulse did not press jump")
	}
	h.clk.WaitForTimers(2)
	h.clk.Advance(300 * time.Millisecond)
	if !worldtest.WaitFor(2*time.Second, func() bool { return !c.ControlOn(world.ControlJump) }) {
		t.Fatalf("idle pulse did not release jump")
	}

	c.End("timeout")
	h.waitKind(t, record.KindEnd, 1)
	h.clk.WaitForTimers(1)
	if n := h.clk.Pending(); n != 1 {
		t.Fatalf("pending timers after end %d, want only the retry", n)
	}
}

func TestKickAndErrorAreRecorded(t *testing.T) {
	h := newHarness()
	c := worldtest.NewConn("bot")
	h.dialer.Next = func(n int) (world.Conn, error) {
		if n == 0 {
			return c, nil
		}
		return worldtest.NewConn("bot"), nil
	}
	h.start(t, testConfig())

	c.Push(world.Event{Kind: world.EventError, Err: errors.New("bad frame")})
	c.Push(world.Event{Kind: world.EventKick, Reason: "afk"})
	c.End("kicked: afk")
	h.waitKind(t, record.KindEnd, 1)

	var kinds []string
	for _, s := range h.rec.Sessions() {
		kinds = append(kinds, s.Kind)
	}
	want := []string{record.KindAttempt, record.KindError, record.KindKick, record.KindEnd}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Fatalf("kinds %v want %v", kinds, want)
	}
	s := h.rec.Sessions()
	if s[1].Reason != "bad frame" || s[2].Reason != "afk" || s[3].Reason != "kicked: afk" {
		t.Fatalf("reasons %+v", s)
	}
	if s[3].RetryMS != 5000 || s[3].Attempt != 1 {
		t.Fatalf("end record %+v", s[3])
	}
	if len(c.Chats()) != 0 {
		t.Fatalf("no spawn, no greeting; chats %q", c.Chats())
	}
}

func TestShutdownClosesConnection(t *testing.T) {
	h := newHarness()
	c := worldtest.NewConn("bot")
	h.dialer.Next = func(int) (world.Conn, error) { return c, nil }
	h.start(t, testConfig())

	c.Spawn()
	waitChat(t, c, "Hi! ")
	h.stop(t)

	if err := c.Chat("after"); !errors.Is(err, worldtest.ErrClosed) {
		t.Fatalf("conn still open after shutdown: %v", err)
	}
	if n := len(h.rec.ofKind(record.KindEnd)); n != 0 {
		t.Fatalf("shutdown should not schedule a retry")
	}
}

func TestIdleSkipsPulseWhileBuilding(t *testing.T) {
	h := newHarness()
	c := newTowerConn()
	c.StallPlace = true
	h.dialer.Next = func(n int) (world.Conn, error) {
		if n == 0 {
			return c, nil
		}
		return worldtest.NewConn("bot"), nil
	}
	cfg := testConfig()
	cfg.IdleEnabled = true
	h.start(t, cfg)

	c.Spawn()
	c.Say("alice", "!build 3")
	if !worldtest.WaitFor(2*time.Second, func() bool { return c.Stalled() == 1 }) {
		t.Fatalf("build never reached its first placement; chats %q", c.Chats())
	}

	h.clk.WaitForTimers(1)
	h.clk.Advance(time.Minute)
	if worldtest.WaitFor(200*time.Millisecond, func() bool { return len(c.ControlLog()) > 0 }) {
		t.Fatalf("idle pulsed during a build: %+v", c.ControlLog())
	}
}

func TestShutdownReleasesStalledBuild(t *testing.T) {
	h := newHarness()
	c := newTowerConn()
	c.StallPlace = true
	h.dialer.Next = func(int) (world.Conn, error) { return c, nil }
	h.start(t, testConfig())

	c.Spawn()
	c.Say("alice", "!build 3")
	if !worldtest.WaitFor(2*time.Second, func() bool { return c.Stalled() == 1 }) {
		t.Fatalf("build never reached its first placement; chats %q", c.Chats())
	}

	// The placement ignores cancellation and would otherwise hold shutdown
	// for the whole action timeout.
	start := time.Now()
	h.stop(t)
	if d := time.Since(start); d > 2*time.Second {
		t.Fatalf("shutdown took %s with a placement in flight", d)
	}
	if len(c.Placed()) != 0 {
		t.Fatalf("placed %v", c.Placed())
	}
}

// Package session owns the agent's connection lifecycle: it dials, serves
// one connection's events on a single control loop and reconnects with a
// capped exponential backoff when the connection ends.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abdel0909/mc-bot/internal/agent/build"
	"github.com/abdel0909/mc-bot/internal/agent/command"
	"github.com/abdel0909/mc-bot/internal/agent/idle"
	"github.com/abdel0909/mc-bot/internal/agent/nav"
	"github.com/abdel0909/mc-bot/internal/clock"
	"github.com/abdel0909/mc-bot/internal/persistence/record"
	"github.com/abdel0909/mc-bot/internal/world"
)

// Agent is the Connection Session. Run is its only entry point and the
// only goroutine that touches the backoff.
type Agent struct {
	cfg    Config
	dialer world.Dialer
	clk    clock.Clock
	log    *log.Logger
	rec    record.Recorder

	backoff  *Backoff
	limiter  *command.Limiter
	attempts int
}

// New builds an agent. rec may be nil.
func New(cfg Config, dialer world.Dialer, clk clock.Clock, logger *log.Logger, rec record.Recorder) *Agent {
	if clk == nil {
		clk = clock.Real()
	}
	if rec == nil {
		rec = record.Multi(nil)
	}
	return &Agent{
		cfg:     cfg,
		dialer:  dialer,
		clk:     clk,
		log:     logger,
		rec:     rec,
		backoff: NewBackoff(cfg.BackoffInitial, cfg.BackoffMax),
		limiter: command.NewLimiter(cfg.RatePerSecond, cfg.RateBurst),
	}
}

// Run connects and reconnects until ctx is cancelled. There is no retry
// limit.
func (a *Agent) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		id := uuid.NewString()
		kind, reason := a.connect(ctx, id)
		if ctx.Err() != nil {
			return nil
		}

		delay := a.backoff.Next()
		a.log.Printf("disconnected id=%s reason=%q retry_in=%s", id, reason, delay)
		a.record(record.Session{ConnID: id, Kind: kind, Reason: reason, RetryMS: delay.Milliseconds()})
		if err := clock.Sleep(ctx, a.clk, delay); err != nil {
			return nil
		}
	}
}

func (a *Agent) connect(ctx context.Context, id string) (kind, reason string) {
	a.attempts++
	opts := a.cfg.Options
	a.log.Printf("connect attempt=%d id=%s addr=%s:%d user=%s", a.attempts, id, opts.Host, opts.Port, opts.Username)
	a.record(record.Session{ConnID: id, Kind: record.KindAttempt})

	conn, err := a.dialer.Dial(ctx, opts)
	if err != nil {
		return record.KindDialFailed, fmt.Sprintf("dial: %v", err)
	}
	return record.KindEnd, a.serve(ctx, id, conn)
}

// serve runs the control loop for one connection and returns the end
// reason. Everything started for the connection is stopped before it
// returns.
func (a *Agent) serve(ctx context.Context, id string, conn world.Conn) string {
	cctx, cancel := context.WithCancel(ctx)
	runner := build.NewRunner(a.clk, a.log)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		runner.Stop()
		// Closing first fails any action still awaiting the server, so the
		// build does not sit out its action timeout.
		_ = conn.Close()
		if err := runner.Wait(); err != nil {
			a.log.Printf("build ended: %v", err)
		}
		wg.Wait()
	}()

	bld := &builder{ctx: cctx, runner: runner, body: conn, cfg: a.cfg.Build}
	var spawnedAt time.Time
	d := command.NewDispatcher(a.cfg.Command, command.Deps{
		World:   conn,
		Nav:     nav.NewIssuer(conn),
		Build:   bld,
		Limiter: a.limiter,
		Clock:   a.clk,
		Log:     a.log,
		Status: func() string {
			return fmt.Sprintf("up %s", a.clk.Now().Sub(spawnedAt).Truncate(time.Second))
		},
		OnDispatch: func(r command.Record) {
			a.recordCommand(id, r)
		},
	})

	var buildTimer <-chan time.Time
	events := conn.Events()
	for {
		select {
		case <-ctx.Done():
			return "shutdown"

		case <-buildTimer:
			buildTimer = nil
			if err := bld.Start(a.cfg.Build.Height); err != nil {
				a.log.Printf("auto build: %v", err)
			}

		case ev, ok := <-events:
			if !ok {
				return "event stream closed"
			}
			switch ev.Kind {
			case world.EventSpawn:
				if !spawnedAt.IsZero() {
					continue
				}
				spawnedAt = a.clk.Now()
				a.backoff.Reset()
				a.log.Printf("spawned id=%s version=%s", id, conn.Version())
				a.record(record.Session{ConnID: id, Kind: record.KindSpawn})
				if err := conn.Chat("Hi! " + d.Summary()); err != nil {
					a.log.Printf("greeting: %v", err)
				}
				if a.cfg.IdleEnabled {
					wg.Add(1)
					icfg := a.cfg.Idle
					icfg.Busy = func() bool {
						p, ok := runner.Progress()
						return ok && p.Running
					}
					go func() {
						defer wg.Done()
						idle.Run(cctx, conn, a.clk, a.log, icfg)
					}()
				}
				if a.cfg.AutoBuild {
					t := a.clk.NewTimer(a.cfg.BuildDelay)
					defer t.Stop()
					buildTimer = t.C
				}

			case world.EventChat:
				d.Dispatch(cctx, ev.Sender, ev.Text)

			case world.EventKick:
				a.log.Printf("kicked id=%s reason=%q", id, ev.Reason)
				a.record(record.Session{ConnID: id, Kind: record.KindKick, Reason: ev.Reason})

			case world.EventError:
				a.log.Printf("connection error id=%s: %v", id, ev.Err)
				a.record(record.Session{ConnID: id, Kind: record.KindError, Reason: errString(ev.Err)})

			case world.EventEnd:
				if ev.Reason == "" {
					return "ended"
				}
				return ev.Reason
			}
		}
	}
}

func (a *Agent) record(s record.Session) {
	s.At = a.clk.Now()
	s.Attempt = a.attempts
	if err := a.rec.RecordSession(s); err != nil {
		a.log.Printf("record %s: %v", s.Kind, err)
	}
}

func (a *Agent) recordCommand(id string, r command.Record) {
	err := a.rec.RecordCommand(record.Command{
		At:      r.At,
		ConnID:  id,
		Sender:  r.Sender,
		Command: r.Command,
		Args:    r.Args,
		Outcome: string(r.Outcome),
		Detail:  r.Detail,
	})
	if err != nil {
		a.log.Printf("record command %s: %v", r.Command, err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// builder binds the build runner to one connection's context.
type builder struct {
	ctx    context.Context
	runner *build.Runner
	body   build.Body
	cfg    build.Config
}

func (b *builder) Start(height int) error {
	cfg := b.cfg
	cfg.Height = height
	return b.runner.Start(b.ctx, b.body, cfg)
}

func (b *builder) Stop() bool { return b.runner.Stop() }

func (b *builder) Progress() (build.Progress, bool) { return b.runner.Progress() }

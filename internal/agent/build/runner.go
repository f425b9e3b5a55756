package build

import (
	"context"
	"log"
	"sync"

	"github.com/abdel0909/mc-bot/internal/clock"
)

// Runner owns at most one running Task. The control loop starts and stops
// builds through it; the task itself runs on its own goroutine so the loop
// keeps serving chat while a tower goes up.
type Runner struct {
	clk clock.Clock
	log *log.Logger

	mu     sync.Mutex
	task   *Task
	cancel context.CancelFunc
	done   chan struct{}
	last   error
}

func NewRunner(clk clock.Clock, logger *log.Logger) *Runner {
	return &Runner{clk: clk, log: logger}
}

// Start launches a build bound to ctx. It fails with ErrAlreadyRunning
// while another build is in progress.
func (r *Runner) Start(ctx context.Context, body Body, cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		select {
		case <-r.done:
		default:
			return ErrAlreadyRunning
		}
	}

	task := NewTask(body, r.clk, r.log, cfg)
	tctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	task.setRunning(true)
	r.task, r.cancel, r.done, r.last = task, cancel, done, nil

	go func() {
		defer close(done)
		defer cancel()
		err := task.Run(tctx)
		r.mu.Lock()
		r.last = err
		r.mu.Unlock()
	}()
	return nil
}

// Stop cancels the running build, if any, and reports whether one was
// running. It does not wait for the build to observe the cancel.
func (r *Runner) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
	}
	r.cancel()
	return true
}

// Wait blocks until the current build, if any, has returned.
func (r *Runner) Wait() error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Progress reports the current or most recent build.
func (r *Runner) Progress() (Progress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.task == nil {
		return Progress{}, false
	}
	return r.task.Progress(), true
}

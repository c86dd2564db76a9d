// Package runner owns the live wrapped-application instance and executes
// lifecycle commands against it with mutual exclusion.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rbright/adaptord/internal/adaptor"
	"github.com/rbright/adaptord/internal/fsm"
)

// Runner serializes start/run/stop against one adaptor. Any number of
// connection handlers may call in concurrently; command bodies never
// interleave.
type Runner struct {
	logger  *slog.Logger
	adaptor adaptor.Adaptor

	// cmdMu is the single mutual-exclusion guard for command execution.
	cmdMu sync.Mutex

	stateMu sync.RWMutex
	state   fsm.State

	cancelMu  sync.Mutex
	cancelRun context.CancelFunc
}

func New(logger *slog.Logger, a adaptor.Adaptor) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		logger:  logger,
		adaptor: a,
		state:   fsm.StateNotStarted,
	}
}

// State returns the current lifecycle state snapshot.
func (r *Runner) State() fsm.State {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.state
}

func (r *Runner) transition(event fsm.Event) error {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	next, err := fsm.Transition(r.state, event)
	if err != nil {
		return err
	}
	r.state = next
	return nil
}

func (r *Runner) setState(state fsm.State) {
	r.stateMu.Lock()
	r.state = state
	r.stateMu.Unlock()
}

// Start initializes the wrapped application. Starting twice is a reported
// error, never silently ignored.
func (r *Runner) Start(ctx context.Context) error {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()

	if err := r.transition(fsm.EventStart); err != nil {
		return err
	}
	if err := r.adaptor.Start(ctx); err != nil {
		r.setState(fsm.StateNotStarted)
		return fmt.Errorf("start adaptor: %w", err)
	}
	r.logger.Info("adaptor started")
	return nil
}

// Run executes one unit of work against the started application.
func (r *Runner) Run(ctx context.Context, payload map[string]any) (map[string]any, error) {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()

	if err := r.transition(fsm.EventRun); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancelMu.Lock()
	r.cancelRun = cancel
	r.cancelMu.Unlock()
	defer func() {
		r.cancelMu.Lock()
		r.cancelRun = nil
		r.cancelMu.Unlock()
		cancel()
	}()

	result, err := r.adaptor.Run(runCtx, payload)
	if runCtx.Err() != nil {
		// Interrupted mid-run; the runner stays consistent and still
		// accepts a stop.
		_ = r.transition(fsm.EventCancel)
		r.logger.Info("run canceled")
		return nil, fmt.Errorf("run canceled: %w", runCtx.Err())
	}
	if transErr := r.transition(fsm.EventRunDone); transErr != nil {
		return nil, transErr
	}
	if err != nil {
		return nil, fmt.Errorf("run adaptor: %w", err)
	}
	return result, nil
}

// Stop requests graceful termination of the wrapped application. Valid from
// the started and canceled states; repeated stops are benign.
func (r *Runner) Stop(ctx context.Context) error {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()

	if err := r.transition(fsm.EventStop); err != nil {
		return err
	}
	if err := r.adaptor.Stop(ctx); err != nil {
		return fmt.Errorf("stop adaptor: %w", err)
	}
	r.logger.Info("adaptor stopped")
	return nil
}

// Cancel interrupts an in-flight run. It deliberately bypasses the command
// guard so it can fire while Run holds it; without a run in flight it is a
// no-op.
func (r *Runner) Cancel() {
	r.cancelMu.Lock()
	cancel := r.cancelRun
	r.cancelMu.Unlock()

	if cancel == nil {
		r.logger.Debug("cancel requested with no run in flight")
		return
	}
	cancel()
}

// Cleanup releases adaptor resources. Always safe to call last, regardless
// of how the lifecycle ended.
func (r *Runner) Cleanup(ctx context.Context) error {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()

	if err := r.adaptor.Cleanup(ctx); err != nil {
		return fmt.Errorf("cleanup adaptor: %w", err)
	}
	return nil
}

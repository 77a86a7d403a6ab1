// Package lifecycle coordinates graceful shutdown of background tasks. It
// implements the two-phase stop the monitor relies on: a soft signal that
// lets in-flight work finish, a bounded grace wait, then a hard cancel of
// whatever is still running.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Signal is a one-way latch observable over a channel. It replaces the
// process-global aborted flag of older designs: each Coordinator owns its
// own Signal, so independent monitors (and tests) cannot interfere.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

// NewSignal returns an untripped Signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Trip latches the signal. Safe to call any number of times.
func (s *Signal) Trip() {
	s.once.Do(func() { close(s.ch) })
}

// Done returns a channel closed once the signal trips.
func (s *Signal) Done() <-chan struct{} {
	return s.ch
}

// Tripped reports whether the signal has fired.
func (s *Signal) Tripped() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

type task struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Coordinator tracks named background tasks and bounds how long shutdown can
// take. Tasks observe the soft stop via Signal; their contexts are only
// cancelled after the grace window.
type Coordinator struct {
	signal *Signal
	logger *zap.Logger

	mu    sync.Mutex
	tasks []*task
}

// NewCoordinator returns a Coordinator logging through logger.
func NewCoordinator(logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		signal: NewSignal(),
		logger: logger,
	}
}

// Signal exposes the soft stop signal for tasks constructed elsewhere.
func (c *Coordinator) Signal() *Signal {
	return c.signal
}

// Go runs fn on its own goroutine under a context the coordinator can cancel
// during the hard phase of shutdown. fn should exit promptly once either the
// coordinator's Signal trips or its context is cancelled.
func (c *Coordinator) Go(name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.mu.Lock()
	c.tasks = append(c.tasks, t)
	c.mu.Unlock()

	go func() {
		defer close(t.done)
		t.err = fn(ctx)
	}()
}

// RequestShutdown trips the soft stop signal. Idempotent; tasks keep their
// contexts until AwaitShutdown escalates.
func (c *Coordinator) RequestShutdown() {
	c.signal.Trip()
}

// AwaitShutdown trips the soft signal, waits up to grace for tasks to drain
// on their own, then cancels every task still outstanding and waits for all
// of them to return. Individual task errors caused by that cancellation are
// tolerated; anything else is logged. The ctx bounds the final wait so
// shutdown can never hang on a stuck task observer.
func (c *Coordinator) AwaitShutdown(ctx context.Context, grace time.Duration) error {
	c.RequestShutdown()

	c.mu.Lock()
	tasks := append([]*task(nil), c.tasks...)
	c.mu.Unlock()

	if len(tasks) == 0 {
		c.logger.Info("shutdown complete", zap.Int("tasks", 0))
		return nil
	}

	drained := make(chan struct{})
	go func() {
		for _, t := range tasks {
			<-t.done
		}
		close(drained)
	}()

	if grace > 0 {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-drained:
		case <-timer.C:
		case <-ctx.Done():
			return fmt.Errorf("await shutdown: %w", ctx.Err())
		}
	}

	// Hard phase: cancel whatever the grace window did not drain.
	cancelled := 0
	for _, t := range tasks {
		select {
		case <-t.done:
		default:
			cancelled++
			c.logger.Warn("cancelling outstanding task", zap.String("task", t.name))
		}
		t.cancel()
	}

	select {
	case <-drained:
	case <-ctx.Done():
		return fmt.Errorf("await shutdown: %w", ctx.Err())
	}

	for _, t := range tasks {
		if t.err != nil && !errors.Is(t.err, context.Canceled) {
			c.logger.Warn("task exited with error",
				zap.String("task", t.name),
				zap.Error(t.err),
			)
		}
	}
	c.logger.Info("shutdown complete",
		zap.Int("tasks", len(tasks)),
		zap.Int("force_cancelled", cancelled),
	)
	return nil
}

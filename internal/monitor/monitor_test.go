package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/batchops/batchwatch/internal/batch"
	"github.com/batchops/batchwatch/internal/bus"
	"github.com/batchops/batchwatch/internal/lifecycle"
	"github.com/batchops/batchwatch/internal/registry"
)

type stubProvider struct {
	mu         sync.Mutex
	submitID   batch.JobID
	submitErr  error
	snapshots  map[batch.JobID]batch.StatusSnapshot
	statusErrs map[batch.JobID]error
	checkCalls int
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		snapshots:  make(map[batch.JobID]batch.StatusSnapshot),
		statusErrs: make(map[batch.JobID]error),
	}
}

func (p *stubProvider) Submit(context.Context, string, string) (batch.JobID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.submitErr != nil {
		return "", p.submitErr
	}
	return p.submitID, nil
}

func (p *stubProvider) CheckStatus(_ context.Context, id batch.JobID) (batch.StatusSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkCalls++
	if err := p.statusErrs[id]; err != nil {
		return batch.StatusSnapshot{}, err
	}
	return p.snapshots[id], nil
}

func (p *stubProvider) RetrieveResult(context.Context, batch.ResultRef) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (p *stubProvider) UploadInput(context.Context, string) (batch.ResultRef, error) {
	return "", errors.New("not implemented")
}

func (p *stubProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkCalls
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type eventRecorder struct {
	mu       sync.Mutex
	payloads []any
}

func (r *eventRecorder) handler(_ context.Context, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *eventRecorder) events() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.payloads...)
}

func newTestMonitor(p batch.Provider, b *bus.Bus) *Monitor {
	return New(
		registry.New(),
		p,
		b,
		fixedClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		lifecycle.NewSignal(),
		nil,
		zap.NewNop(),
		Config{Interval: 10 * time.Millisecond},
	)
}

func TestSubmitRegistersJob(t *testing.T) {
	t.Parallel()

	p := newStubProvider()
	p.submitID = "b1"
	m := newTestMonitor(p, bus.New())

	id, err := m.Submit(context.Background(), "a.jsonl")
	require.NoError(t, err)
	require.Equal(t, batch.JobID("b1"), id)
	require.Equal(t, 1, m.Registry().Len())

	job, ok := m.Registry().Get("b1")
	require.True(t, ok)
	require.Equal(t, "batch prompts job", job.Description)
	require.False(t, job.SubmittedAt.IsZero())
}

func TestSubmitFailurePropagates(t *testing.T) {
	t.Parallel()

	p := newStubProvider()
	p.submitErr = &batch.SubmissionError{Path: "a.jsonl", Err: errors.New("auth")}
	m := newTestMonitor(p, bus.New())

	_, err := m.Submit(context.Background(), "a.jsonl")
	var subErr *batch.SubmissionError
	require.ErrorAs(t, err, &subErr)
	require.Zero(t, m.Registry().Len())
}

// TestTickKeepsWaitingJobs submits N jobs that all report in-flight statuses
// and verifies one tick removes nothing and fires nothing.
func TestTickKeepsWaitingJobs(t *testing.T) {
	t.Parallel()

	p := newStubProvider()
	b := bus.New()
	rec := &eventRecorder{}
	b.Register(batch.EventJobCompleted, rec.handler)
	m := newTestMonitor(p, b)

	waiting := []batch.Status{batch.StatusValidating, batch.StatusInProgress, batch.StatusFinalizing}
	for i, status := range waiting {
		id := batch.JobID(string(rune('a' + i)))
		require.NoError(t, m.Registry().Add(batch.MonitoredJob{ID: id}))
		p.snapshots[id] = batch.StatusSnapshot{ID: id, Status: status}
	}

	m.tick(context.Background())

	require.Equal(t, len(waiting), m.Registry().Len())
	require.Empty(t, rec.events())
}

// TestTickCompletedJob runs the concrete end-to-end scenario: submit a.jsonl,
// poll once with status completed, expect an empty registry and exactly one
// success event carrying the original ID and result reference.
func TestTickCompletedJob(t *testing.T) {
	t.Parallel()

	p := newStubProvider()
	p.submitID = "b1"
	b := bus.New()
	rec := &eventRecorder{}
	b.Register(batch.EventJobCompleted, rec.handler)
	m := newTestMonitor(p, b)

	id, err := m.Submit(context.Background(), "a.jsonl")
	require.NoError(t, err)
	p.snapshots[id] = batch.StatusSnapshot{ID: id, Status: batch.StatusCompleted, OutputRef: "r1"}

	m.tick(context.Background())

	require.Zero(t, m.Registry().Len())
	events := rec.events()
	require.Len(t, events, 1)
	success, ok := events[0].(batch.JobSucceeded)
	require.True(t, ok)
	require.Equal(t, batch.JobID("b1"), success.ID)
	require.Equal(t, batch.ResultRef("r1"), success.ResultRef)
}

// TestTickFailureStatuses verifies every non-completed terminal status
// removes the job and fires exactly one failure event with the provider's
// diagnostics.
func TestTickFailureStatuses(t *testing.T) {
	t.Parallel()

	for _, status := range []batch.Status{
		batch.StatusFailed, batch.StatusCancelled, batch.StatusCancelling, batch.StatusExpired,
	} {
		p := newStubProvider()
		b := bus.New()
		rec := &eventRecorder{}
		b.Register(batch.EventJobCompleted, rec.handler)
		m := newTestMonitor(p, b)

		require.NoError(t, m.Registry().Add(batch.MonitoredJob{ID: "b1"}))
		p.snapshots["b1"] = batch.StatusSnapshot{
			ID:     "b1",
			Status: status,
			Counts: batch.RequestCounts{Total: 10, Completed: 4, Failed: 6},
			Errors: []batch.JobError{{Code: "rate_limited", Message: "too fast"}},
		}

		m.tick(context.Background())

		require.Zero(t, m.Registry().Len(), "status %q", status)
		events := rec.events()
		require.Len(t, events, 1, "status %q", status)
		failure, ok := events[0].(batch.JobFailed)
		require.True(t, ok, "status %q", status)
		require.Equal(t, status, failure.Status)
		require.Equal(t, 6, failure.Counts.Failed)
		require.Len(t, failure.Errors, 1)
	}
}

// TestTickPollErrorRetainsJobAndContinues verifies a per-job check failure
// neither drops the job nor aborts the rest of the pass.
func TestTickPollErrorRetainsJobAndContinues(t *testing.T) {
	t.Parallel()

	p := newStubProvider()
	b := bus.New()
	rec := &eventRecorder{}
	b.Register(batch.EventJobCompleted, rec.handler)
	m := newTestMonitor(p, b)

	require.NoError(t, m.Registry().Add(batch.MonitoredJob{ID: "flaky"}))
	require.NoError(t, m.Registry().Add(batch.MonitoredJob{ID: "done"}))
	p.statusErrs["flaky"] = &batch.TransientError{Op: "check status", Err: errors.New("timeout")}
	p.snapshots["done"] = batch.StatusSnapshot{ID: "done", Status: batch.StatusCompleted, OutputRef: "r2"}

	m.tick(context.Background())

	require.Equal(t, 1, m.Registry().Len())
	_, stillThere := m.Registry().Get("flaky")
	require.True(t, stillThere)
	require.Len(t, rec.events(), 1)
}

// TestTickUnknownStatusKeepsJob covers the documented fallback: out-of-set
// statuses are retained, not misclassified as terminal.
func TestTickUnknownStatusKeepsJob(t *testing.T) {
	t.Parallel()

	p := newStubProvider()
	b := bus.New()
	rec := &eventRecorder{}
	b.Register(batch.EventJobCompleted, rec.handler)
	m := newTestMonitor(p, b)

	require.NoError(t, m.Registry().Add(batch.MonitoredJob{ID: "b1"}))
	p.snapshots["b1"] = batch.StatusSnapshot{ID: "b1", Status: "paused"}

	m.tick(context.Background())

	require.Equal(t, 1, m.Registry().Len())
	require.Empty(t, rec.events())
}

// TestRunStopsOnSignal verifies the loop exits once the stop signal trips and
// stops issuing status checks.
func TestRunStopsOnSignal(t *testing.T) {
	t.Parallel()

	p := newStubProvider()
	stop := lifecycle.NewSignal()
	m := New(
		registry.New(),
		p,
		bus.New(),
		fixedClock{t: time.Now()},
		stop,
		nil,
		zap.NewNop(),
		Config{Interval: 5 * time.Millisecond},
	)
	require.NoError(t, m.Registry().Add(batch.MonitoredJob{ID: "b1"}))
	p.snapshots["b1"] = batch.StatusSnapshot{ID: "b1", Status: batch.StatusInProgress}

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	require.Eventually(t, func() bool { return p.calls() > 0 }, time.Second, time.Millisecond)
	stop.Trip()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop after signal")
	}

	after := p.calls()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, after, p.calls())
}

// TestInitWiresCoordinator verifies the Init convenience starts the loop
// under the coordinator and that AwaitShutdown stops it within the grace
// window.
func TestInitWiresCoordinator(t *testing.T) {
	t.Parallel()

	p := newStubProvider()
	p.submitID = "b1"
	p.snapshots["b1"] = batch.StatusSnapshot{ID: "b1", Status: batch.StatusValidating}
	coord := lifecycle.NewCoordinator(zap.NewNop())
	b := bus.New()

	submit, m := Init(p, b, coord, fixedClock{t: time.Now()}, nil, zap.NewNop(), Config{
		Interval: 5 * time.Millisecond,
	})

	id, err := submit(context.Background(), "a.jsonl")
	require.NoError(t, err)
	require.Equal(t, batch.JobID("b1"), id)
	require.Eventually(t, func() bool { return p.calls() > 0 }, time.Second, time.Millisecond)

	require.NoError(t, coord.AwaitShutdown(context.Background(), 100*time.Millisecond))
	require.Equal(t, 1, m.Registry().Len())
}

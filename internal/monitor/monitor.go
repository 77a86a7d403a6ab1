// Package monitor runs the polling loop that drives monitored batch jobs to
// a terminal state. Each tick it snapshots the registry, asks the provider
// for every job's status, classifies it, and publishes a completion event the
// moment a job turns terminal. Submission and monitoring only meet through
// the shared registry.
package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/batchops/batchwatch/internal/batch"
	"github.com/batchops/batchwatch/internal/bus"
	"github.com/batchops/batchwatch/internal/lifecycle"
	"github.com/batchops/batchwatch/internal/metrics"
	"github.com/batchops/batchwatch/internal/registry"
)

const (
	defaultInterval    = 30 * time.Second
	defaultDescription = "batch prompts job"
)

// Config controls Monitor behavior.
//   - Interval: how long the loop sleeps between ticks (default 30s).
//   - Description: metadata attached to submitted jobs.
type Config struct {
	Interval    time.Duration
	Description string
}

// Monitor owns the polling loop and the submission path into the registry.
type Monitor struct {
	registry *registry.Registry
	provider batch.Provider
	bus      *bus.Bus
	clock    batch.Clock
	stop     *lifecycle.Signal
	metrics  *metrics.Collector
	logger   *zap.Logger
	cfg      Config
}

// New constructs a Monitor. The stop signal is the soft shutdown token: once
// it trips the loop exits at its next wake-up without starting another tick.
// metrics may be nil.
func New(
	reg *registry.Registry,
	provider batch.Provider,
	eventBus *bus.Bus,
	clock batch.Clock,
	stop *lifecycle.Signal,
	collector *metrics.Collector,
	logger *zap.Logger,
	cfg Config,
) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Description == "" {
		cfg.Description = defaultDescription
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if stop == nil {
		stop = lifecycle.NewSignal()
	}
	return &Monitor{
		registry: reg,
		provider: provider,
		bus:      eventBus,
		clock:    clock,
		stop:     stop,
		metrics:  collector,
		logger:   logger,
		cfg:      cfg,
	}
}

// SubmitFunc submits an input file as a batch job and registers it for
// monitoring.
type SubmitFunc func(ctx context.Context, inputPath string) (batch.JobID, error)

// Init creates a fresh registry, starts the monitor loop under the
// coordinator, and returns the submit function bound to the same registry.
func Init(
	provider batch.Provider,
	eventBus *bus.Bus,
	coord *lifecycle.Coordinator,
	clock batch.Clock,
	collector *metrics.Collector,
	logger *zap.Logger,
	cfg Config,
) (SubmitFunc, *Monitor) {
	m := New(registry.New(), provider, eventBus, clock, coord.Signal(), collector, logger, cfg)
	coord.Go("monitor", m.Run)
	return m.Submit, m
}

// Registry exposes the job registry for read-side consumers such as the API.
func (m *Monitor) Registry() *registry.Registry {
	return m.registry
}

// Submit uploads the input file as a new batch job and registers the returned
// ID for monitoring. A provider failure propagates unchanged and nothing is
// registered; this layer never retries a submission.
func (m *Monitor) Submit(ctx context.Context, inputPath string) (batch.JobID, error) {
	m.logger.Debug("submitting batch job", zap.String("input", inputPath))
	id, err := m.provider.Submit(ctx, inputPath, m.cfg.Description)
	if err != nil {
		return "", fmt.Errorf("submit batch job: %w", err)
	}
	job := batch.MonitoredJob{
		ID:          id,
		SubmittedAt: m.clock.Now(),
		Description: m.cfg.Description,
	}
	if err := m.registry.Add(job); err != nil {
		return "", fmt.Errorf("register job: %w", err)
	}
	m.metrics.JobSubmitted()
	m.metrics.SetMonitored(m.registry.Len())
	m.logger.Info("batch job submitted",
		zap.String("job_id", string(id)),
		zap.String("input", inputPath),
	)
	return id, nil
}

// Run executes the polling loop until the stop signal trips or ctx is
// cancelled. The sleep between ticks is the loop's only suspension point;
// a tripped stop signal skips it and returns immediately.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started", zap.Duration("interval", m.cfg.Interval))
	for {
		select {
		case <-m.stop.Done():
			m.logger.Info("monitor stopped")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		m.tick(ctx)

		select {
		case <-m.stop.Done():
			m.logger.Info("monitor stopped")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.Interval):
		}
	}
}

// tick runs one sequential pass over the IDs tracked when the pass began.
// Jobs submitted mid-pass are picked up on the next tick.
func (m *Monitor) tick(ctx context.Context) {
	ids := m.registry.IDs()
	if len(ids) > 0 {
		m.logger.Debug("checking monitored jobs", zap.Int("count", len(ids)))
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		m.checkJob(ctx, id)
	}
	m.metrics.SetMonitored(m.registry.Len())
	m.metrics.TickCompleted()
}

// checkJob polls one job. Errors are logged at per-job granularity and leave
// the job registered, so the next tick retries it; they never abort the rest
// of the pass.
func (m *Monitor) checkJob(ctx context.Context, id batch.JobID) {
	start := time.Now()
	snap, err := m.provider.CheckStatus(ctx, id)
	elapsed := time.Since(start)
	if err != nil {
		m.metrics.PollObserved(metrics.OutcomeError, elapsed)
		m.logger.Error("status check failed",
			zap.String("job_id", string(id)),
			zap.Error(err),
		)
		return
	}

	disp, known := batch.Classify(snap.Status)
	if !known {
		m.metrics.PollObserved(metrics.OutcomeUnknown, elapsed)
		m.logger.Warn("unrecognized batch status, keeping job monitored",
			zap.String("job_id", string(id)),
			zap.String("status", string(snap.Status)),
		)
		return
	}

	switch disp {
	case batch.ContinueWaiting:
		m.metrics.PollObserved(metrics.OutcomeWaiting, elapsed)
		m.logger.Debug("job still in flight",
			zap.String("job_id", string(id)),
			zap.String("status", string(snap.Status)),
		)
	case batch.TerminalSuccess:
		m.metrics.PollObserved(metrics.OutcomeSuccess, elapsed)
		m.completeSuccess(ctx, id, snap)
	case batch.TerminalFailure:
		m.metrics.PollObserved(metrics.OutcomeFailure, elapsed)
		m.completeFailure(ctx, id, snap)
	}
}

func (m *Monitor) completeSuccess(ctx context.Context, id batch.JobID, snap batch.StatusSnapshot) {
	job, _ := m.registry.Get(id)
	m.registry.Remove(id)
	m.metrics.JobCompleted(metrics.ResultSuccess)
	m.logger.Info("batch job completed",
		zap.String("job_id", string(id)),
		zap.String("result_ref", string(snap.OutputRef)),
	)
	payload := batch.JobSucceeded{
		ID:          id,
		ResultRef:   snap.OutputRef,
		SubmittedAt: job.SubmittedAt,
		CompletedAt: m.clock.Now(),
	}
	if err := m.bus.Trigger(ctx, batch.EventJobCompleted, payload); err != nil {
		m.logger.Error("completion event handler failed",
			zap.String("job_id", string(id)),
			zap.Error(err),
		)
	}
}

func (m *Monitor) completeFailure(ctx context.Context, id batch.JobID, snap batch.StatusSnapshot) {
	job, _ := m.registry.Get(id)
	m.registry.Remove(id)
	m.metrics.JobCompleted(metrics.ResultFailure)
	m.logger.Warn("batch job failed",
		zap.String("job_id", string(id)),
		zap.String("status", string(snap.Status)),
		zap.Int("completed", snap.Counts.Completed),
		zap.Int("failed", snap.Counts.Failed),
	)
	payload := batch.JobFailed{
		ID:          id,
		Status:      snap.Status,
		Counts:      snap.Counts,
		Errors:      snap.Errors,
		ErrorRef:    snap.ErrorRef,
		SubmittedAt: job.SubmittedAt,
		CompletedAt: m.clock.Now(),
	}
	if err := m.bus.Trigger(ctx, batch.EventJobCompleted, payload); err != nil {
		m.logger.Error("completion event handler failed",
			zap.String("job_id", string(id)),
			zap.Error(err),
		)
	}
}

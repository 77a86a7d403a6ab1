// Package metrics exposes Prometheus collectors for the batch monitor.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Poll outcome labels.
const (
	OutcomeWaiting = "waiting"
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeUnknown = "unknown"
	OutcomeError   = "error"
)

// Completion result labels.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Collector owns every collector the monitor and API report into. It is safe
// for concurrent use.
type Collector struct {
	jobsSubmitted prometheus.Counter
	jobsMonitored prometheus.Gauge
	pollsTotal    *prometheus.CounterVec
	pollDuration  prometheus.Histogram
	completions   *prometheus.CounterVec
	ticksTotal    prometheus.Counter
}

// NewCollector registers the collectors against reg. A nil reg falls back to
// the default registerer.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "batchwatch_jobs_submitted_total",
			Help: "Total batch jobs submitted to the provider.",
		}),
		jobsMonitored: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "batchwatch_jobs_monitored",
			Help: "Jobs currently awaiting a terminal state.",
		}),
		pollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batchwatch_polls_total",
			Help: "Status polls partitioned by classification outcome.",
		}, []string{"outcome"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "batchwatch_poll_duration_seconds",
			Help:    "Latency of individual provider status checks.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batchwatch_jobs_completed_total",
			Help: "Terminal jobs partitioned by result.",
		}, []string{"result"}),
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "batchwatch_monitor_ticks_total",
			Help: "Completed passes over the monitored job set.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		c.jobsSubmitted,
		c.jobsMonitored,
		c.pollsTotal,
		c.pollDuration,
		c.completions,
		c.ticksTotal,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return c, nil
}

// JobSubmitted records one successful submission.
func (c *Collector) JobSubmitted() {
	if c == nil {
		return
	}
	c.jobsSubmitted.Inc()
}

// SetMonitored records the current registry size.
func (c *Collector) SetMonitored(n int) {
	if c == nil {
		return
	}
	c.jobsMonitored.Set(float64(n))
}

// PollObserved records one status check with its classification outcome and
// latency.
func (c *Collector) PollObserved(outcome string, dur time.Duration) {
	if c == nil {
		return
	}
	c.pollsTotal.WithLabelValues(outcome).Inc()
	c.pollDuration.Observe(dur.Seconds())
}

// JobCompleted records one terminal job by result.
func (c *Collector) JobCompleted(result string) {
	if c == nil {
		return
	}
	c.completions.WithLabelValues(result).Inc()
}

// TickCompleted records one full monitor pass.
func (c *Collector) TickCompleted() {
	if c == nil {
		return
	}
	c.ticksTotal.Inc()
}

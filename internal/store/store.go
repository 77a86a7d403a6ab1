// Package store records terminal job outcomes durably. The registry itself
// is deliberately in-memory and rebuilt each run; this store is an event
// sink that gives operators a queryable history of what completed and how.
package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/batchops/batchwatch/internal/batch"
	"github.com/batchops/batchwatch/internal/bus"
	"github.com/batchops/batchwatch/internal/relay"
)

// CompletionRecord is one terminal outcome row.
type CompletionRecord struct {
	ID          string
	Success     bool
	Status      string
	ResultRef   string
	ErrorRef    string
	Total       int
	Completed   int
	Failed      int
	SubmittedAt time.Time
	CompletedAt time.Time
}

// Completions persists terminal outcomes.
type Completions interface {
	RecordCompletion(ctx context.Context, rec CompletionRecord) error
	Close()
}

// NoOpCompletions discards records; used when no database is configured.
type NoOpCompletions struct{}

// RecordCompletion does nothing.
func (NoOpCompletions) RecordCompletion(context.Context, CompletionRecord) error { return nil }

// Close does nothing.
func (NoOpCompletions) Close() {}

// Recorder adapts a Completions store to the event bus.
type Recorder struct {
	completions Completions
	logger      *zap.Logger
}

// NewRecorder returns a Recorder writing through completions.
func NewRecorder(completions Completions, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{completions: completions, logger: logger}
}

// Attach subscribes the recorder to completion events on b.
func (r *Recorder) Attach(b *bus.Bus) {
	b.Register(batch.EventJobCompleted, r.Handle)
}

// Handle persists one completion event.
func (r *Recorder) Handle(ctx context.Context, payload any) error {
	completion, ok := relay.Normalize(payload)
	if !ok {
		r.logger.Warn("dropping non-completion payload", zap.Any("payload", payload))
		return nil
	}
	rec := CompletionRecord{
		ID:          completion.ID,
		Success:     completion.Success,
		Status:      completion.Status,
		ResultRef:   completion.ResultRef,
		ErrorRef:    completion.ErrorRef,
		Total:       completion.Counts.Total,
		Completed:   completion.Counts.Completed,
		Failed:      completion.Counts.Failed,
		SubmittedAt: completion.SubmittedAt,
		CompletedAt: completion.CompletedAt,
	}
	return r.completions.RecordCompletion(ctx, rec)
}

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/batchops/batchwatch/internal/batch"
	"github.com/batchops/batchwatch/internal/bus"
)

type fakeCompletions struct {
	mu   sync.Mutex
	recs []CompletionRecord
}

func (f *fakeCompletions) RecordCompletion(_ context.Context, rec CompletionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
	return nil
}

func (f *fakeCompletions) Close() {}

func TestRecorderPersistsSuccessPayload(t *testing.T) {
	t.Parallel()

	completions := &fakeCompletions{}
	b := bus.New()
	NewRecorder(completions, zap.NewNop()).Attach(b)

	submitted := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	err := b.Trigger(context.Background(), batch.EventJobCompleted, batch.JobSucceeded{
		ID:          "b1",
		ResultRef:   "r1",
		SubmittedAt: submitted,
		CompletedAt: submitted.Add(time.Hour),
	})
	require.NoError(t, err)

	require.Len(t, completions.recs, 1)
	rec := completions.recs[0]
	require.Equal(t, "b1", rec.ID)
	require.True(t, rec.Success)
	require.Equal(t, "r1", rec.ResultRef)
	require.Equal(t, submitted, rec.SubmittedAt)
}

func TestRecorderPersistsFailurePayload(t *testing.T) {
	t.Parallel()

	completions := &fakeCompletions{}
	b := bus.New()
	NewRecorder(completions, zap.NewNop()).Attach(b)

	err := b.Trigger(context.Background(), batch.EventJobCompleted, batch.JobFailed{
		ID:     "b2",
		Status: batch.StatusFailed,
		Counts: batch.RequestCounts{Total: 4, Completed: 1, Failed: 3},
	})
	require.NoError(t, err)

	require.Len(t, completions.recs, 1)
	rec := completions.recs[0]
	require.False(t, rec.Success)
	require.Equal(t, "failed", rec.Status)
	require.Equal(t, 3, rec.Failed)
}

func TestRecorderIgnoresUnknownPayloads(t *testing.T) {
	t.Parallel()

	completions := &fakeCompletions{}
	r := NewRecorder(completions, zap.NewNop())
	require.NoError(t, r.Handle(context.Background(), 42))
	require.Empty(t, completions.recs)
}

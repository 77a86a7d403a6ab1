package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/batchops/batchwatch/internal/store"
)

func sampleRecord() store.CompletionRecord {
	now := time.Unix(1700000000, 0).UTC()
	return store.CompletionRecord{
		ID:          "b1",
		Success:     true,
		Status:      "completed",
		ResultRef:   "r1",
		Total:       10,
		Completed:   10,
		SubmittedAt: now.Add(-time.Hour),
		CompletedAt: now,
	}
}

func TestRecordCompletionInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewWithPool(mock, "batch_completions")
	require.NoError(t, err)

	rec := sampleRecord()
	mock.ExpectExec("INSERT INTO batch_completions").
		WithArgs(
			rec.ID,
			rec.Success,
			rec.Status,
			rec.ResultRef,
			rec.ErrorRef,
			rec.Total,
			rec.Completed,
			rec.Failed,
			rec.SubmittedAt,
			rec.CompletedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.RecordCompletion(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCompletionRequiresID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewWithPool(mock, "")
	require.NoError(t, err)

	rec := sampleRecord()
	rec.ID = ""
	require.Error(t, s.RecordCompletion(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCompletionWrapsExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewWithPool(mock, "batch_completions")
	require.NoError(t, err)

	boom := errors.New("connection reset")
	rec := sampleRecord()
	mock.ExpectExec("INSERT INTO batch_completions").
		WithArgs(
			rec.ID,
			rec.Success,
			rec.Status,
			rec.ResultRef,
			rec.ErrorRef,
			rec.Total,
			rec.Completed,
			rec.Failed,
			rec.SubmittedAt,
			rec.CompletedAt,
		).
		WillReturnError(boom)

	err = s.RecordCompletion(context.Background(), rec)
	require.ErrorIs(t, err, boom)
}

func TestNewWithPoolRejectsBadTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "bad;table")
	require.Error(t, err)
}

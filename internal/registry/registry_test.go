package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/batchops/batchwatch/internal/batch"
)

func sampleJob(id string) batch.MonitoredJob {
	return batch.MonitoredJob{
		ID:          batch.JobID(id),
		SubmittedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Description: "batch prompts job",
	}
}

func TestAddAndList(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Add(sampleJob("b1")))
	require.NoError(t, r.Add(sampleJob("b2")))

	require.Equal(t, 2, r.Len())
	require.ElementsMatch(t, []batch.JobID{"b1", "b2"}, r.IDs())

	job, ok := r.Get("b1")
	require.True(t, ok)
	require.Equal(t, "batch prompts job", job.Description)
}

func TestAddRejectsDuplicate(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Add(sampleJob("b1")))
	require.Error(t, r.Add(sampleJob("b1")))
	require.Equal(t, 1, r.Len())
}

// TestRemoveIsIdempotent verifies removing twice leaves the same state as
// removing once.
func TestRemoveIsIdempotent(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Add(sampleJob("b1")))

	r.Remove("b1")
	require.Zero(t, r.Len())
	r.Remove("b1")
	require.Zero(t, r.Len())

	r.Remove("never-added")
	require.Zero(t, r.Len())
}

// TestRemovedIDIsNeverReAdded verifies a completed job cannot re-enter
// monitoring.
func TestRemovedIDIsNeverReAdded(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Add(sampleJob("b1")))
	r.Remove("b1")

	require.Error(t, r.Add(sampleJob("b1")))
	require.Zero(t, r.Len())
}

// TestIDsIsASnapshot verifies mutating the registry does not disturb a
// previously taken ID snapshot.
func TestIDsIsASnapshot(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Add(sampleJob("b1")))
	require.NoError(t, r.Add(sampleJob("b2")))

	snapshot := r.IDs()
	r.Remove("b1")
	require.NoError(t, r.Add(sampleJob("b3")))

	require.Len(t, snapshot, 2)
	require.ElementsMatch(t, []batch.JobID{"b1", "b2"}, snapshot)
}

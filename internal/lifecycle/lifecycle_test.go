package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSignalTripIsIdempotent(t *testing.T) {
	t.Parallel()

	s := NewSignal()
	require.False(t, s.Tripped())
	s.Trip()
	s.Trip()
	require.True(t, s.Tripped())

	select {
	case <-s.Done():
	default:
		t.Fatal("Done channel should be closed after Trip")
	}
}

// TestAwaitShutdownWithNoTasks verifies AwaitShutdown returns promptly even
// when nothing was ever started.
func TestAwaitShutdownWithNoTasks(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(zap.NewNop())
	done := make(chan error, 1)
	go func() {
		done <- c.AwaitShutdown(context.Background(), 50*time.Millisecond)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("AwaitShutdown hung with zero tasks")
	}
}

// TestAwaitShutdownDrainsCooperativeTask verifies a task that honors the soft
// signal finishes inside the grace window without being cancelled.
func TestAwaitShutdownDrainsCooperativeTask(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(zap.NewNop())
	stopped := make(chan struct{})
	c.Go("cooperative", func(ctx context.Context) error {
		select {
		case <-c.Signal().Done():
			close(stopped)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	require.NoError(t, c.AwaitShutdown(context.Background(), time.Second))
	select {
	case <-stopped:
	default:
		t.Fatal("task did not observe the soft signal")
	}
}

// TestAwaitShutdownCancelsStuckTask verifies the hard phase cancels a task
// that ignores the soft signal, and that its cancellation error is tolerated.
func TestAwaitShutdownCancelsStuckTask(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(zap.NewNop())
	c.Go("stuck", func(ctx context.Context) error {
		<-ctx.Done() // never watches the soft signal
		return ctx.Err()
	})

	start := time.Now()
	require.NoError(t, c.AwaitShutdown(context.Background(), 20*time.Millisecond))
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestRequestShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(zap.NewNop())
	c.RequestShutdown()
	c.RequestShutdown()
	require.True(t, c.Signal().Tripped())
}

package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestTriggerInvokesInRegistrationOrder verifies two subscribers both run,
// in the order they were registered.
func TestTriggerInvokesInRegistrationOrder(t *testing.T) {
	t.Parallel()

	b := New()
	var order []string
	b.Register("job_completed", func(context.Context, any) error {
		order = append(order, "first")
		return nil
	})
	b.Register("job_completed", func(context.Context, any) error {
		order = append(order, "second")
		return nil
	})

	require.NoError(t, b.Trigger(context.Background(), "job_completed", nil))
	require.Equal(t, []string{"first", "second"}, order)
}

// TestTriggerUnknownNameIsNoOp verifies triggering a name with no subscribers
// succeeds silently.
func TestTriggerUnknownNameIsNoOp(t *testing.T) {
	t.Parallel()

	b := New()
	require.NoError(t, b.Trigger(context.Background(), "nobody_listens", "data"))
}

// TestTriggerPassesPayload verifies the payload reaches the handler as-is.
func TestTriggerPassesPayload(t *testing.T) {
	t.Parallel()

	b := New()
	type payload struct{ ID string }
	var got any
	b.Register("evt", func(_ context.Context, p any) error {
		got = p
		return nil
	})

	want := payload{ID: "b1"}
	require.NoError(t, b.Trigger(context.Background(), "evt", want))
	require.Equal(t, want, got)
}

// TestTriggerDuplicateHandlerRunsTwice verifies there is no deduplication.
func TestTriggerDuplicateHandlerRunsTwice(t *testing.T) {
	t.Parallel()

	b := New()
	calls := 0
	h := func(context.Context, any) error {
		calls++
		return nil
	}
	b.Register("evt", h)
	b.Register("evt", h)

	require.NoError(t, b.Trigger(context.Background(), "evt", nil))
	require.Equal(t, 2, calls)
}

// TestTriggerStopsOnHandlerError verifies a failing handler aborts delivery
// to handlers registered after it and surfaces the error.
func TestTriggerStopsOnHandlerError(t *testing.T) {
	t.Parallel()

	b := New()
	boom := errors.New("boom")
	laterRan := false
	b.Register("evt", func(context.Context, any) error { return boom })
	b.Register("evt", func(context.Context, any) error {
		laterRan = true
		return nil
	})

	err := b.Trigger(context.Background(), "evt", nil)
	require.ErrorIs(t, err, boom)
	require.False(t, laterRan)
}

// TestSubscriberCount covers the registration bookkeeping used by wiring code.
func TestSubscriberCount(t *testing.T) {
	t.Parallel()

	b := New()
	require.Zero(t, b.SubscriberCount("evt"))
	b.Register("evt", func(context.Context, any) error { return nil })
	require.Equal(t, 1, b.SubscriberCount("evt"))
}

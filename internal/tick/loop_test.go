package tick

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoopRunsPostedWorkInOrder(t *testing.T) {
	loop := New(nil)
	var got []int
	for i := 1; i <= 3; i++ {
		i := i
		require.NoError(t, loop.Post(func() { got = append(got, i) }))
	}
	require.Equal(t, 3, loop.RunPending())
	require.Equal(t, []int{1, 2, 3}, got)
}

func TestLoopDoWaitsForExecution(t *testing.T) {
	loop := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	ran := false
	require.NoError(t, loop.Do(context.Background(), func() { ran = true }))
	require.True(t, ran)

	cancel()
	require.NoError(t, <-done)
	require.ErrorIs(t, loop.Post(func() {}), ErrClosed)
}

func TestSlotFiresOnce(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	loop := New(clock)
	slot := loop.NewSlot()

	fired := 0
	slot.Start(time.Second, func() { fired++ })
	require.True(t, slot.Live())

	clock.Advance(999 * time.Millisecond)
	loop.RunPending()
	require.Equal(t, 0, fired)

	clock.Advance(time.Millisecond)
	loop.RunPending()
	require.Equal(t, 1, fired)
	require.False(t, slot.Live())
}

func TestSlotRestartCancelsPrevious(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	loop := New(clock)
	slot := loop.NewSlot()

	var fired []string
	slot.Start(time.Second, func() { fired = append(fired, "first") })
	slot.Start(2*time.Second, func() { fired = append(fired, "second") })
	require.Equal(t, 1, clock.Pending())

	clock.Advance(3 * time.Second)
	loop.RunPending()
	require.Equal(t, []string{"second"}, fired)
}

func TestSlotCancelSuppressesAlreadyQueuedFire(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	loop := New(clock)
	slot := loop.NewSlot()

	fired := false
	slot.Start(time.Second, func() { fired = true })

	// The clock fires and queues the callback before the loop processes the cancel.
	clock.Advance(time.Second)
	slot.Cancel()
	loop.RunPending()

	require.False(t, fired)
	require.False(t, slot.Live())
}

func TestSlotStaleFireAfterRestartIsIgnored(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	loop := New(clock)
	slot := loop.NewSlot()

	var fired []string
	slot.Start(time.Second, func() { fired = append(fired, "stale") })
	clock.Advance(time.Second)
	slot.Start(time.Second, func() { fired = append(fired, "fresh") })
	loop.RunPending()
	require.Empty(t, fired)
	require.True(t, slot.Live())

	clock.Advance(time.Second)
	loop.RunPending()
	require.Equal(t, []string{"fresh"}, fired)
}

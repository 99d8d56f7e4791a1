package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect[T any](t *testing.T, ch <-chan T) []T {
	t.Helper()
	var got []T
	timeout := time.After(2 * time.Second)
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, v)
		case <-timeout:
			t.Fatal("stream did not close")
			return nil
		}
	}
}

func TestUnboundedPushNeverBlocks(t *testing.T) {
	t.Parallel()

	u := NewUnbounded[int](context.Background())
	for i := range 10_000 {
		require.NoError(t, u.Push(i))
	}
	u.Close()

	got := collect(t, u.Out())
	require.Len(t, got, 10_000)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestUnboundedConcurrentProducers(t *testing.T) {
	t.Parallel()

	u := NewUnbounded[int](context.Background())
	var wg sync.WaitGroup
	for p := range 8 {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := range 100 {
				assert.NoError(t, u.Push(base*100+i))
			}
		}(p)
	}
	go func() {
		wg.Wait()
		u.Close()
	}()

	got := collect(t, u.Out())
	require.Len(t, got, 800)
}

func TestUnboundedPushAfterClose(t *testing.T) {
	t.Parallel()

	u := NewUnbounded[string](context.Background())
	u.Close()
	require.ErrorIs(t, u.Push("late"), ErrClosed)
	require.Empty(t, collect(t, u.Out()))
}

func TestUnboundedAbandonedOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	u := NewUnbounded[int](ctx)
	require.NoError(t, u.Push(1))
	require.NoError(t, u.Push(2))
	cancel()

	require.Eventually(t, func() bool {
		return u.Push(3) == ErrAbandoned
	}, time.Second, 5*time.Millisecond)
	collect(t, u.Out())
	require.Zero(t, u.Len())
}

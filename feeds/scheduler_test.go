package feeds

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRun(t *testing.T) {
	var count int32
	s := &Scheduler{
		Interval: 20 * time.Millisecond,
		Delay:    10 * time.Millisecond,
		Task: func(ctx context.Context) {
			atomic.AddInt32(&count, 1)
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&count) >= 3
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSchedulerCanceledBeforeDelay(t *testing.T) {
	var count int32
	s := &Scheduler{
		Interval: time.Hour,
		Delay:    time.Hour,
		Task: func(ctx context.Context) {
			atomic.AddInt32(&count, 1)
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, int32(0), atomic.LoadInt32(&count))
}

func TestSchedulerInvalid(t *testing.T) {
	err := (&Scheduler{Task: func(ctx context.Context) {}}).Run(context.Background())
	assert.Error(t, err)

	err = (&Scheduler{Interval: time.Second}).Run(context.Background())
	assert.Error(t, err)
}

func TestSchedulerWithQueueUpdate(t *testing.T) {
	store := newMemStore()
	store.add(1, feedA, strPtr("a"))
	fetcher := newFakeFetcher()
	fetcher.set(feedA, docWith("A", "b", "a"))
	dispatcher := newFakeDispatcher()
	f := newTestFeeds(store, fetcher, dispatcher, Options{})

	s := &Scheduler{
		Interval: time.Hour,
		Task:     f.QueueUpdate,
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool {
		return len(dispatcher.to(1)) == 1
	}, 5*time.Second, 5*time.Millisecond)
}

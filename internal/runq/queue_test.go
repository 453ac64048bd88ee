package runq

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startQueue runs the queue on its own goroutine and returns a wait func
// that blocks until Run returns.
func startQueue(t *testing.T, q *Queue) func() error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- q.Run(context.Background())
	}()
	return func() error {
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("queue did not stop")
			return nil
		}
	}
}

func TestQueue_FIFO(t *testing.T) {
	q := New()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, q.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	q.Close()

	wait := startQueue(t, q)
	require.NoError(t, wait())

	require.Len(t, order, 100)
	for i, got := range order {
		assert.Equal(t, i, got)
	}
}

func TestQueue_PostAfterCloseRefused(t *testing.T) {
	q := New()
	q.Close()

	assert.False(t, q.Post(func() {}))
	assert.Equal(t, 0, q.Len())
}

func TestQueue_NilTaskRefused(t *testing.T) {
	q := New()
	assert.False(t, q.Post(nil))
}

func TestQueue_CloseIdempotent(t *testing.T) {
	q := New()
	q.Close()
	q.Close()
}

func TestQueue_DrainsPendingOnClose(t *testing.T) {
	q := New()

	ran := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		q.Post(func() { ran <- struct{}{} })
	}
	q.Close()

	wait := startQueue(t, q)
	require.NoError(t, wait())
	assert.Len(t, ran, 3)
}

func TestQueue_PanicIsolated(t *testing.T) {
	q := New()

	survived := false
	q.Post(func() { panic("boom") })
	q.Post(func() { survived = true })
	q.Close()

	wait := startQueue(t, q)
	require.NoError(t, wait())
	assert.True(t, survived)
}

func TestQueue_PostFromTask(t *testing.T) {
	q := New()
	wait := startQueue(t, q)

	done := make(chan struct{})
	q.Post(func() {
		q.Post(func() {
			close(done)
			q.Close()
		})
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("nested post never ran")
	}
	require.NoError(t, wait())
}

func TestQueue_ContextCancelStopsRun(t *testing.T) {
	q := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- q.Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// Cancellation also closes the queue.
	assert.False(t, q.Post(func() {}))
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := New()
	wait := startQueue(t, q)

	const producers = 8
	const perProducer = 200

	var count int // touched only by queue tasks
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Post(func() { count++ })
			}
		}()
	}
	wg.Wait()
	q.Close()

	require.NoError(t, wait())
	assert.Equal(t, producers*perProducer, count)
}

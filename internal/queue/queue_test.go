package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[string]()

	assert.True(t, q.Enqueue("a"))
	assert.True(t, q.Enqueue("b"))
	assert.True(t, q.Enqueue("c"))

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestQueue_CloseKeepsBacklog(t *testing.T) {
	q := New[int]()
	q.Enqueue(1)
	q.Enqueue(2)

	q.Close()
	q.Close()

	assert.False(t, q.Enqueue(3))

	got, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, 1, got)
	got, ok = q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, 2, got)
	_, ok = q.TryDequeue()
	assert.False(t, ok)
}

func TestQueue_WaitReportsClosed(t *testing.T) {
	q := New[int]()
	q.Enqueue(1)
	q.Close()

	// A signal raised before Close may still be pending.
	signals := 0
	for range q.Wait() {
		signals++
	}
	assert.LessOrEqual(t, signals, 1)

	_, open := <-q.Wait()
	assert.False(t, open)
}

func TestQueue_SignalCoalesces(t *testing.T) {
	q := New[int]()
	q.Enqueue(1)
	q.Enqueue(2)

	<-q.Wait()
	select {
	case <-q.Wait():
		t.Fatal("expected a single coalesced signal")
	default:
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := New[int]()

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Enqueue(i)
			}
		}()
	}
	wg.Wait()
	q.Close()

	n := 0
	for {
		if _, ok := q.TryDequeue(); ok {
			n++
			continue
		}
		if _, open := <-q.Wait(); !open {
			break
		}
	}
	assert.Equal(t, 400, n)
}

package simulated

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()

	for i := 1; i <= 3; i++ {
		require.True(t, q.Enqueue(event{kind: eventUtterance, seq: int64(i)}))
	}

	for i := 1; i <= 3; i++ {
		e, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, int64(i), e.seq)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestEventQueue_EnqueueAfterClose(t *testing.T) {
	q := newEventQueue()
	q.Close()
	q.Close() // idempotent

	assert.False(t, q.Enqueue(event{kind: eventUpdate}))
	assert.True(t, q.Done())
}

func TestEventQueue_DoneRequiresDrain(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(event{kind: eventUpdate})
	q.Close()

	assert.False(t, q.Done(), "closed queue with pending events is not done")
	_, ok := q.TryDequeue()
	require.True(t, ok)
	assert.True(t, q.Done())
}

func TestEventQueue_WaitWakesOnEnqueue(t *testing.T) {
	q := newEventQueue()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-q.Wait()
	}()

	time.Sleep(10 * time.Millisecond)
	q.Enqueue(event{kind: eventUpdate})

	waitOrFail(t, &wg)
	assert.Equal(t, 1, q.Len())
}

func TestEventQueue_WaitWakesOnClose(t *testing.T) {
	q := newEventQueue()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-q.Wait()
	}()

	q.Close()
	waitOrFail(t, &wg)
}

func TestEventQueue_ConcurrentEnqueue(t *testing.T) {
	q := newEventQueue()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Enqueue(event{kind: eventUtterance})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 800, q.Len())
}

func TestClock_Monotonic(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting")
	}
}

package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTasksRunInOrderWithSingleWorker(t *testing.T) {
	q := NewTaskQueue(1)
	defer q.Stop()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 50; i++ {
		i := i
		err := q.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
		require.NoError(t, err)
	}
	q.Drain()

	require.Len(t, order, 50)
	for i, v := range order {
		require.Equal(t, i, v)
	}
}

func TestPauseWaitsForInflightTask(t *testing.T) {
	q := NewTaskQueue(1)
	defer q.Stop()

	started := make(chan struct{})
	release := make(chan struct{})
	done := false

	var mu sync.Mutex
	q.Submit(func() {
		close(started)
		<-release
		mu.Lock()
		done = true
		mu.Unlock()
	})

	<-started
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	q.Pause()

	mu.Lock()
	defer mu.Unlock()
	require.True(t, done, "Pause returned before the in-flight task finished")
}

func TestPausedQueueKeepsWork(t *testing.T) {
	q := NewTaskQueue(2)
	defer q.Stop()

	q.Pause()

	var mu sync.Mutex
	count := 0
	for i := 0; i < 5; i++ {
		q.Submit(func() {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}

	// Nothing may run while paused
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	require.Equal(t, 0, count)
	mu.Unlock()
	require.Equal(t, 5, q.Len())

	q.Resume()
	q.Drain()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 5, count)
}

func TestSubmitAfterStop(t *testing.T) {
	q := NewTaskQueue(1)
	q.Stop()
	err := q.Submit(func() {})
	require.ErrorIs(t, err, ErrQueueStopped)
}

func TestStopDrainsQueuedTasks(t *testing.T) {
	q := NewTaskQueue(2)

	var mu sync.Mutex
	count := 0
	for i := 0; i < 20; i++ {
		q.Submit(func() {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}
	q.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 20, count)
}

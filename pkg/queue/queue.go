package queue

import (
	"errors"
	"sync"
)

var ErrQueueStopped = errors.New("queue stopped")

// TaskQueue runs submitted tasks on a fixed number of workers. With
// concurrency 1 it degenerates into a strict FIFO executor: tasks complete
// in submission order. Pause gates the workers without discarding queued
// work; in-flight tasks always run to completion.
type TaskQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	tasks    []func()
	inflight int
	paused   bool
	stopped  bool
	workers  int
}

func NewTaskQueue(concurrency int) *TaskQueue {
	if concurrency < 1 {
		concurrency = 1
	}
	q := &TaskQueue{workers: concurrency}
	q.cond = sync.NewCond(&q.mu)
	for i := 0; i < concurrency; i++ {
		go q.worker()
	}
	return q
}

// Submit enqueues a task. It never blocks on execution.
func (q *TaskQueue) Submit(task func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return ErrQueueStopped
	}
	q.tasks = append(q.tasks, task)
	q.cond.Broadcast()
	return nil
}

// Pause stops workers from picking up new tasks and waits for in-flight
// tasks to finish, so nothing is half-done when Pause returns.
func (q *TaskQueue) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = true
	for q.inflight > 0 {
		q.cond.Wait()
	}
}

// Resume lets workers pick up queued tasks again.
func (q *TaskQueue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = false
	q.cond.Broadcast()
}

// Drain blocks until the queue is empty and no task is in flight. Tasks
// submitted while draining are waited on as well.
func (q *TaskQueue) Drain() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.tasks) > 0 || q.inflight > 0 {
		q.cond.Wait()
	}
}

// Stop drains the queue and shuts the workers down. Submit returns
// ErrQueueStopped afterwards.
func (q *TaskQueue) Stop() {
	q.mu.Lock()
	q.paused = false
	q.cond.Broadcast()
	for len(q.tasks) > 0 || q.inflight > 0 {
		q.cond.Wait()
	}
	q.stopped = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Len returns the number of queued, not yet started tasks.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *TaskQueue) worker() {
	for {
		q.mu.Lock()
		for !q.stopped && (q.paused || len(q.tasks) == 0) {
			q.cond.Wait()
		}
		if q.stopped && len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.inflight++
		q.mu.Unlock()

		task()

		q.mu.Lock()
		q.inflight--
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}

package dispatch

import (
	"sync"
)

type Task func()

// WorkQueue executes submitted tasks exactly once, in submission order, on a
// single worker goroutine. The queue starts paused: nothing runs until the
// first Resume, which happens when the topic subscription goes live. Pause is
// a gate in the worker's task-acquisition step, not a cancellation: an
// in-flight task runs to completion and queued tasks survive to execute once
// resumed.
type WorkQueue struct {
	mu     sync.Mutex
	tasks  []Task
	paused bool
	closed bool

	wake    chan struct{}
	stopped chan struct{}
}

func NewWorkQueue() *WorkQueue {
	q := &WorkQueue{
		paused:  true,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go q.run()
	return q
}

// Submit enqueues a task. It never blocks; submitting while paused is the
// normal case (the user keeps typing while offline).
func (q *WorkQueue) Submit(task Task) error {
	if task == nil {
		return ErrInvalidInput
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
	q.signal()
	return nil
}

// Pause prevents the worker from starting any new task. A task already
// running is not interrupted.
func (q *WorkQueue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

// Resume reopens the gate. Tasks queued during the pause execute in their
// original submission order.
func (q *WorkQueue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	q.signal()
}

// Shutdown stops the worker. No further tasks are started; the task in
// flight, if any, runs to completion. Safe to call more than once.
func (q *WorkQueue) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.signal()
	<-q.stopped
}

// Depth reports the number of tasks waiting to run.
func (q *WorkQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *WorkQueue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

func (q *WorkQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *WorkQueue) run() {
	defer close(q.stopped)
	for {
		q.mu.Lock()
		for q.paused || len(q.tasks) == 0 {
			if q.closed {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			<-q.wake
			q.mu.Lock()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()
		task()
	}
}

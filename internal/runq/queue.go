// Package runq provides the single-threaded execution queue that every
// instance drains its script callbacks from.
//
// All callback invocations for an instance's script contexts - event
// handlers, connection callbacks, load/unload hooks - are posted here and
// executed one at a time in FIFO order. Script code therefore never observes
// concurrent mutation of its own state, while producers (the bus, session
// workers, backend adapters) run fully in parallel and only synchronize on
// the post.
package runq

import (
	"context"
	"log/slog"
	"sync"
)

// Task is a unit of script callback work. Tasks run on the queue's Run
// goroutine, strictly one at a time. An alias so *Queue satisfies the
// Post(func()) bool interfaces the bus and session manager declare.
type Task = func()

// Queue is a thread-safe unbounded FIFO of tasks.
//
// The queue is unbounded so that I/O completions and broadcasts can always
// be posted without blocking their producer goroutines.
//
// The signal channel is buffered with size 1 so multiple posts coalesce into
// a single wakeup, and closing it wakes a blocked Run loop.
type Queue struct {
	mu     sync.Mutex
	tasks  []Task
	closed bool
	signal chan struct{}
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		tasks:  make([]Task, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Post appends a task to the back of the queue.
// Thread-safe: may be called from any goroutine, including from a task
// already running on this queue.
// Returns false if the queue has been closed; the task is dropped.
func (q *Queue) Post(t Task) bool {
	if t == nil {
		return false
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// tryNext removes and returns the front task without blocking.
func (q *Queue) tryNext() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}

	t := q.tasks[0]

	// Nil out the slot so the closure and everything it captures can be
	// collected before the backing array is reallocated.
	q.tasks[0] = nil
	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}
	return t, true
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close stops the queue. Pending tasks are drained by Run before it returns;
// posts after Close are refused. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Run drains the queue until the context is cancelled or the queue is closed
// and empty. Must be called from exactly one goroutine; that goroutine is
// the instance's logical script thread.
//
// A panicking task is recovered and logged so one misbehaving callback
// cannot take down the instance.
func (q *Queue) Run(ctx context.Context) error {
	for {
		if t, ok := q.tryNext(); ok {
			runTask(t)
			continue
		}

		select {
		case <-ctx.Done():
			q.Close()
			return ctx.Err()

		case <-q.signal:
			// Either a post arrived or the queue was closed. The signal
			// channel closes on Close, so this case fires immediately once
			// closed; exit when nothing is left to drain.
			if q.Len() == 0 {
				q.mu.Lock()
				closed := q.closed
				q.mu.Unlock()
				if closed {
					return nil
				}
			}
		}
	}
}

func runTask(t Task) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("task panicked", "panic", r)
		}
	}()
	t()
}

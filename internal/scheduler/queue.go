package scheduler

import "sync"

// Queue is an unbounded FIFO of tasks. Pop blocks until a task is available
// or the queue is closed and empty.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*Task
	closed bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends t. It fails with ErrQueueClosed once Close was called.
func (q *Queue) Push(t *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, t)
	q.cond.Signal()
	return nil
}

// Pop removes the oldest task. ok is false when the queue is closed and
// nothing is left.
func (q *Queue) Pop() (t *Task, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}

	t = q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return t, true
}

// Close stops accepting tasks and wakes all waiters. Queued tasks can still
// be popped.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// Drain removes and returns every queued task.
func (q *Queue) Drain() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close was called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Package scheduler provides the FIFO task queue and the worker pool that
// drains it.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the scheduler package.
var (
	// ErrQueueClosed is returned by Push after the queue was closed.
	ErrQueueClosed = errors.New("task queue closed")

	// ErrPoolStarted is returned when Start is called twice.
	ErrPoolStarted = errors.New("worker pool already started")
)

// Task is one unit of queued work. Payload carries the caller's task value;
// the pool never inspects it.
type Task struct {
	// ID correlates log lines of one task.
	ID string

	// Name is a short label for logs, for example "relay_to_admin".
	Name string

	Payload any

	EnqueuedAt time.Time
}

// NewTask creates a task with a fresh id.
func NewTask(name string, payload any) *Task {
	return &Task{
		ID:         uuid.NewString(),
		Name:       name,
		Payload:    payload,
		EnqueuedAt: time.Now(),
	}
}

// Handler executes a task. A returned error is logged and the task dropped.
type Handler func(ctx context.Context, task *Task) error

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers   int   `json:"workers"`
	Pending   int   `json:"pending"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Closed    bool  `json:"closed"`
}

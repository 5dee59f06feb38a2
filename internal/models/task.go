package models

import (
	"context"
	"time"
)

// Priority orders ready tasks at dispatch time. Smaller values dispatch
// first; CRITICAL outranks HIGH outranks NORMAL outranks LOW. Priority
// does not preempt tasks that are already running.
type Priority int

const (
	PriorityCritical Priority = 0
	PriorityHigh     Priority = 1
	PriorityNormal   Priority = 2
	PriorityLow      Priority = 3
)

// TaskState is the lifecycle state of a scheduler Task.
type TaskState string

const (
	TaskPending   TaskState = "PENDING"
	TaskRunning   TaskState = "RUNNING"
	TaskCompleted TaskState = "COMPLETED"
	TaskFailed    TaskState = "FAILED"
	TaskCancelled TaskState = "CANCELLED"
	TaskPaused    TaskState = "PAUSED"
)

// Executor is the async unit of work a Task runs. It must observe
// ctx.Done() and settle promptly once cancellation is requested.
type Executor func(ctx context.Context) error

// Task is the scheduler's unit of dispatch.
type Task struct {
	ID         uint64
	Run        Executor
	Priority   Priority
	RetryCount int
	MaxRetries int
	State      TaskState
	// Metadata carries free-form tags used for group operations, e.g.
	// {"fileId": "abc123", "chunkIndex": "4"}.
	Metadata  map[string]string
	StartedAt time.Time
	EndedAt   time.Time
	LastError error

	// Sequence breaks priority ties in FIFO order; assigned by the
	// scheduler at insertion time.
	Sequence uint64
}

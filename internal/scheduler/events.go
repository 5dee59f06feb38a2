package scheduler

import "github.com/cascadewire/chunkupload/internal/models"

// TaskEvent is the payload for taskQueued/taskStarted/taskCompleted/
// taskFailed/taskCancelled events.
type TaskEvent struct {
	TaskID     uint64
	Priority   models.Priority
	Metadata   map[string]string
	RetryCount int
	Err        error
}

// ConcurrencyChangeEvent is the payload for the concurrencyChange event.
type ConcurrencyChangeEvent struct {
	Previous int
	Current  int
	Reason   string
}

// NetworkStatusChange is the payload subsystems publish on
// "networkStatusChange" to drive the scheduler's offline handling and
// its adaptive-concurrency stability window.
type NetworkStatusChange struct {
	Online  bool
	Quality string
}

func taskEvent(t *models.Task) TaskEvent {
	return TaskEvent{
		TaskID:     t.ID,
		Priority:   t.Priority,
		Metadata:   t.Metadata,
		RetryCount: t.RetryCount,
		Err:        t.LastError,
	}
}

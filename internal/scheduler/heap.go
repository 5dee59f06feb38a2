package scheduler

import (
	"container/heap"

	"github.com/cascadewire/chunkupload/internal/models"
)

// taskHeap is a container/heap min-heap over (priority, sequence), so
// smaller priority values dispatch first and ties resolve FIFO by
// insertion order.
type taskHeap []*models.Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].Sequence < h[j].Sequence
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x interface{}) {
	*h = append(*h, x.(*models.Task))
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// removeByID removes the task with the given id from the heap, if
// present, preserving the heap invariant. Returns the removed task,
// or nil if no task with that id was queued.
func (h *taskHeap) removeByID(id uint64) *models.Task {
	for i, t := range *h {
		if t.ID == id {
			return heap.Remove(h, i).(*models.Task)
		}
	}
	return nil
}

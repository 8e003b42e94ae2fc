package msg

import (
	"sync/atomic"
)

// TaskProgressBar tracks completed/total compile tasks with an atomic
// counter so concurrent workers can report progress without holding a lock
// of their own; only the final print is serialized (via Progress).
type TaskProgressBar struct {
	Total     int64
	completed atomic.Int64
}

func NewTaskProgressBar(total int64) *TaskProgressBar {
	return &TaskProgressBar{Total: total}
}

// Advance increments the completed count and prints "[completed/total] name".
func (pb *TaskProgressBar) Advance(name string) {
	c := pb.completed.Add(1)
	Progress(int(c), int(pb.Total), "%s", name)
}

func (pb *TaskProgressBar) Completed() int64 { return pb.completed.Load() }

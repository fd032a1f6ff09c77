package engine

import "context"

// Task is one unit of work submitted to an Engine. A task is owned
// exclusively by the queue from Schedule until its completion is recorded;
// Run executes exactly once, on the engine's worker.
type Task interface {
	ID() uint64
	Priority() uint8
	Run(ctx context.Context) (uint64, error)
}

// Completion is the recorded outcome of a finished task
type Completion struct {
	TaskID uint64
	Value  uint64
	Err    error
}

// FuncTask adapts a closure into a Task
type FuncTask struct {
	TaskID uint64
	Prio   uint8
	Fn     func(ctx context.Context) (uint64, error)
}

// ID returns the task id
func (t *FuncTask) ID() uint64 { return t.TaskID }

// Priority returns the scheduling priority used for device arbitration
func (t *FuncTask) Priority() uint8 { return t.Prio }

// Run executes the wrapped closure
func (t *FuncTask) Run(ctx context.Context) (uint64, error) {
	if t.Fn == nil {
		return 0, nil
	}
	return t.Fn(ctx)
}

package engine

// engineError is a simple error type for the engine package
type engineError string

func (e engineError) Error() string { return string(e) }

// Errors for engine operations
const (
	ErrAlreadyStarted = engineError("engine already started")
	ErrNotStarted     = engineError("engine not started")
	ErrEngineStopped  = engineError("engine is stopped")
	ErrQueueFull      = engineError("task queue is full")
)

package pipeline

import "errors"

var (
	// ErrQueueFull signals backpressure: the target queue is at capacity
	// and the caller should retry later or shed load.
	ErrQueueFull = errors.New("queue is full")

	// ErrNotRunning is returned by Submit before Start or after Stop
	ErrNotRunning = errors.New("pipeline is not running")

	// ErrInvalidTask wraps synchronous task rejection at Submit
	ErrInvalidTask = errors.New("invalid task")
)

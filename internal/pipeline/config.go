package pipeline

import "time"

// Config controls the scheduler's pools, queues and retry behaviour
type Config struct {
	RegularWorkers    int           // Workers draining the regular queue
	PriorityWorkers   int           // Workers dedicated to the priority queue
	RegularQueueSize  int           // Capacity of the regular queue
	PriorityQueueSize int           // Capacity of the priority queue
	PriorityThreshold int           // Tasks at or above this priority use the priority queue
	DefaultTimeout    time.Duration // Per-task fetch timeout when the task sets none
	DefaultMaxRetries int           // Retry budget when the task sets none
	RetryBackoffBase  time.Duration // Unit for the 2^retry backoff delay
	RetryBackoffCap   time.Duration // Upper bound on a single backoff delay
	QualityThreshold  float64       // Batch sweeps below this average trigger a notification
	MetricsInterval   time.Duration // How often queue depth is polled into metrics
}

// DefaultConfig returns the production defaults
func DefaultConfig() *Config {
	return &Config{
		RegularWorkers:    10,
		PriorityWorkers:   2,
		RegularQueueSize:  100,
		PriorityQueueSize: 50,
		PriorityThreshold: 8,
		DefaultTimeout:    30 * time.Second,
		DefaultMaxRetries: 3,
		RetryBackoffBase:  time.Second,
		RetryBackoffCap:   60 * time.Second,
		QualityThreshold:  60,
		MetricsInterval:   30 * time.Second,
	}
}

// backoffDelay computes the delay before re-enqueueing a task on its
// retryCount-th retry: base * 2^retryCount, capped.
func (c *Config) backoffDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	// Shift overflow guard: past 2^20 units the cap always wins
	if retryCount > 20 {
		return c.RetryBackoffCap
	}
	delay := c.RetryBackoffBase * time.Duration(1<<uint(retryCount))
	if delay > c.RetryBackoffCap {
		return c.RetryBackoffCap
	}
	return delay
}

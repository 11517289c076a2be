package pipeline

import (
	"time"

	"github.com/hivemind-works/pagepipe/internal/validation"
)

// TaskStatus represents the current status of a scraping task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusSkipped    TaskStatus = "skipped"
	TaskStatusRetry      TaskStatus = "retry"
)

// Priority bounds for task submission
const (
	MinPriority = 1
	MaxPriority = 10
)

// ScrapingTask is a single unit of scraping work. The scheduler owns a
// task exclusively from submission until it reaches a terminal state.
type ScrapingTask struct {
	ID              string            `json:"id"`
	TargetURL       string            `json:"target_url"`
	JobID           string            `json:"job_id,omitempty"`
	JobName         string            `json:"job_name,omitempty"`
	JobType         string            `json:"job_type,omitempty"`
	Priority        int               `json:"priority"`
	RetryCount      int               `json:"retry_count"`
	MaxRetries      int               `json:"max_retries"`
	Timeout         time.Duration     `json:"timeout"`
	ValidationLevel validation.Level  `json:"validation_level"`
	Headers         map[string]string `json:"headers,omitempty"`
	ExtractionRules map[string]string `json:"extraction_rules,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`

	lastErr error
}

// LastError returns the most recent processing error, kept for diagnostics
func (t *ScrapingTask) LastError() error {
	return t.lastErr
}

// ProcessingResult is the outcome of one task attempt. Results are built
// once per attempt and never mutated afterwards.
type ProcessingResult struct {
	TaskID       string         `json:"task_id"`
	Status       TaskStatus     `json:"status"`
	Data         map[string]any `json:"data,omitempty"`
	Errors       []string       `json:"errors,omitempty"`
	Warnings     []string       `json:"warnings,omitempty"`
	DurationMS   int64          `json:"duration_ms"`
	QualityScore float64        `json:"quality_score"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// QueueStatus is a point-in-time view of the scheduler's queues
type QueueStatus struct {
	RegularSize   int  `json:"regular_size"`
	PrioritySize  int  `json:"priority_size"`
	ActiveWorkers int  `json:"active_workers"`
	MaxWorkers    int  `json:"max_workers"`
	Running       bool `json:"running"`
}

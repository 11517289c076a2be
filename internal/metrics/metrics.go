package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// DefaultPollInterval is how often the collector refreshes queue depth
// and worker counts from the scheduler.
const DefaultPollInterval = 30 * time.Second

// throughputWindow is the rolling window used for per-minute throughput
const throughputWindow = time.Minute

// ProcessingMetrics is a point-in-time view of pipeline activity
type ProcessingMetrics struct {
	TotalTasks            int64         `json:"total_tasks"`
	CompletedTasks        int64         `json:"completed_tasks"`
	FailedTasks           int64         `json:"failed_tasks"`
	SkippedTasks          int64         `json:"skipped_tasks"`
	RetriedTasks          int64         `json:"retried_tasks"`
	AverageProcessingTime time.Duration `json:"average_processing_time"`
	ThroughputPerMinute   float64       `json:"throughput_per_minute"`
	ErrorRate             float64       `json:"error_rate"` // percent of finished tasks that failed
	QueueSize             int           `json:"queue_size"`
	PriorityQueueSize     int           `json:"priority_queue_size"`
	ActiveWorkers         int           `json:"active_workers"`
	LastUpdated           time.Time     `json:"last_updated"`
}

// QueueStats is what the collector polls from the scheduler
type QueueStats struct {
	RegularSize   int
	PrioritySize  int
	ActiveWorkers int
}

// Collector accumulates pipeline metrics. All methods are safe for
// concurrent use and never block on I/O.
type Collector struct {
	mu      sync.Mutex
	current ProcessingMetrics

	// completion timestamps within the rolling throughput window
	completions []time.Time

	registry     *prometheus.Registry
	tasksTotal   *prometheus.CounterVec
	taskDuration prometheus.Histogram
	queueSize    *prometheus.GaugeVec
	workerGauge  prometheus.Gauge
}

// NewCollector creates a Collector with its own Prometheus registry
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	c := &Collector{
		registry: registry,
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pagepipe_tasks_total",
			Help: "Task outcomes processed by the pipeline",
		}, []string{"status"}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pagepipe_task_duration_seconds",
			Help:    "Time taken to process a scraping task",
			Buckets: prometheus.DefBuckets,
		}),
		queueSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pagepipe_queue_size",
			Help: "Tasks currently waiting in each queue",
		}, []string{"queue"}),
		workerGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pagepipe_active_workers",
			Help: "Workers currently processing a task",
		}),
	}
	registry.MustRegister(c.tasksTotal, c.taskDuration, c.queueSize, c.workerGauge)
	return c
}

// Handler returns an HTTP handler serving this collector's registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// TaskSubmitted records a task accepted into a queue
func (c *Collector) TaskSubmitted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.TotalTasks++
	c.current.LastUpdated = time.Now()
	c.tasksTotal.WithLabelValues("submitted").Inc()
}

// TaskCompleted records a successful task and its processing duration.
// The average is recomputed incrementally.
func (c *Collector) TaskCompleted(duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current.CompletedTasks++
	c.current.AverageProcessingTime += (duration - c.current.AverageProcessingTime) / time.Duration(c.current.CompletedTasks)

	now := time.Now()
	c.completions = append(c.completions, now)
	c.pruneCompletions(now)
	c.recomputeDerived(now)

	c.tasksTotal.WithLabelValues("completed").Inc()
	c.taskDuration.Observe(duration.Seconds())
}

// TaskFailed records a terminally failed task
func (c *Collector) TaskFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.FailedTasks++
	c.recomputeDerived(time.Now())
	c.tasksTotal.WithLabelValues("failed").Inc()
}

// TaskSkipped records a task skipped before processing
func (c *Collector) TaskSkipped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.SkippedTasks++
	c.current.LastUpdated = time.Now()
	c.tasksTotal.WithLabelValues("skipped").Inc()
}

// TaskRetried records a task re-queued after a transient failure
func (c *Collector) TaskRetried() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.RetriedTasks++
	c.current.LastUpdated = time.Now()
	c.tasksTotal.WithLabelValues("retried").Inc()
}

// UpdateQueueStats refreshes queue depth and active-worker counts
func (c *Collector) UpdateQueueStats(stats QueueStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.QueueSize = stats.RegularSize
	c.current.PriorityQueueSize = stats.PrioritySize
	c.current.ActiveWorkers = stats.ActiveWorkers
	c.current.LastUpdated = time.Now()

	c.queueSize.WithLabelValues("regular").Set(float64(stats.RegularSize))
	c.queueSize.WithLabelValues("priority").Set(float64(stats.PrioritySize))
	c.workerGauge.Set(float64(stats.ActiveWorkers))
}

// Snapshot returns a copy of the current metrics
func (c *Collector) Snapshot() ProcessingMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneCompletions(time.Now())
	c.current.ThroughputPerMinute = float64(len(c.completions))
	return c.current
}

// StartPolling refreshes queue stats from source every interval until the
// context is cancelled. Runs in its own goroutine.
func (c *Collector) StartPolling(ctx context.Context, source func() QueueStats, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Debug().Msg("Metrics queue poller stopped")
				return
			case <-ticker.C:
				c.UpdateQueueStats(source())
			}
		}
	}()
}

// pruneCompletions drops completion timestamps outside the rolling window.
// Caller must hold c.mu.
func (c *Collector) pruneCompletions(now time.Time) {
	cutoff := now.Add(-throughputWindow)
	start := 0
	for start < len(c.completions) && c.completions[start].Before(cutoff) {
		start++
	}
	if start > 0 {
		c.completions = append([]time.Time(nil), c.completions[start:]...)
	}
}

// recomputeDerived refreshes error rate and throughput. Caller must hold c.mu.
func (c *Collector) recomputeDerived(now time.Time) {
	finished := c.current.FailedTasks + c.current.CompletedTasks
	if finished > 0 {
		c.current.ErrorRate = float64(c.current.FailedTasks) / float64(finished) * 100
	}
	c.current.ThroughputPerMinute = float64(len(c.completions))
	c.current.LastUpdated = now
}

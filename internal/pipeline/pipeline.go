package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hivemind-works/pagepipe/internal/dedup"
	"github.com/hivemind-works/pagepipe/internal/extract"
	"github.com/hivemind-works/pagepipe/internal/fetch"
	"github.com/hivemind-works/pagepipe/internal/metrics"
	"github.com/hivemind-works/pagepipe/internal/quality"
	"github.com/hivemind-works/pagepipe/internal/store"
	"github.com/hivemind-works/pagepipe/internal/util"
	"github.com/hivemind-works/pagepipe/internal/validation"
)

// Pipeline schedules scraping tasks onto a fixed pool of workers, runs
// each result through validation and deduplication, and records every
// transition in the metrics collector.
type Pipeline struct {
	config      *Config
	fetcher     Fetcher
	extractor   Extractor
	recordStore store.Store
	validator   *validation.Validator
	dedup       *dedup.Deduplicator
	analyzer    *quality.Analyzer
	collector   *metrics.Collector
	notifier    Notifier

	regularQueue  chan *ScrapingTask
	priorityQueue chan *ScrapingTask

	stopCh        chan struct{}
	wg            sync.WaitGroup
	stopping      atomic.Bool
	running       atomic.Bool
	activeWorkers atomic.Int32

	timersMu sync.Mutex
	timers   map[string]*time.Timer

	pollCancel context.CancelFunc
}

// New creates a Pipeline. The fetcher, extractor and store are required;
// the notifier may be nil.
func New(config *Config, fetcher Fetcher, extractor Extractor, recordStore store.Store, notifier Notifier) *Pipeline {
	if fetcher == nil {
		panic("fetcher is required")
	}
	if extractor == nil {
		panic("extractor is required")
	}
	if recordStore == nil {
		panic("record store is required")
	}
	if config == nil {
		config = DefaultConfig()
	}

	return &Pipeline{
		config:        config,
		fetcher:       fetcher,
		extractor:     extractor,
		recordStore:   recordStore,
		validator:     validation.New(),
		dedup:         dedup.New(recordStore, nil),
		analyzer:      quality.NewAnalyzer(recordStore),
		collector:     metrics.NewCollector(),
		notifier:      notifier,
		regularQueue:  make(chan *ScrapingTask, config.RegularQueueSize),
		priorityQueue: make(chan *ScrapingTask, config.PriorityQueueSize),
		stopCh:        make(chan struct{}),
		timers:        make(map[string]*time.Timer),
	}
}

// Start launches the worker pools and the metrics poller
func (p *Pipeline) Start(ctx context.Context) {
	if p.running.Swap(true) {
		return
	}

	log.Info().
		Int("regular_workers", p.config.RegularWorkers).
		Int("priority_workers", p.config.PriorityWorkers).
		Msg("Starting pipeline")

	p.wg.Add(p.config.RegularWorkers + p.config.PriorityWorkers)
	for i := 0; i < p.config.RegularWorkers; i++ {
		go p.worker(ctx, i, p.regularQueue, "regular")
	}
	for i := 0; i < p.config.PriorityWorkers; i++ {
		go p.worker(ctx, p.config.RegularWorkers+i, p.priorityQueue, "priority")
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	p.pollCancel = cancel
	p.collector.StartPolling(pollCtx, p.queueStats, p.config.MetricsInterval)
}

// Stop shuts the pipeline down gracefully: submissions are rejected,
// pending retries are dropped, and in-flight tasks finish before return.
func (p *Pipeline) Stop() {
	if !p.running.Load() || p.stopping.Swap(true) {
		return
	}
	log.Debug().Msg("Stopping pipeline")

	p.timersMu.Lock()
	for id, timer := range p.timers {
		timer.Stop()
		delete(p.timers, id)
	}
	p.timersMu.Unlock()

	close(p.stopCh)
	p.wg.Wait()
	if p.pollCancel != nil {
		p.pollCancel()
	}
	p.running.Store(false)
	log.Info().Msg("Pipeline stopped")
}

// Submit validates and enqueues a task, returning its ID. A full queue
// returns ErrQueueFull immediately; the caller owns the backoff.
func (p *Pipeline) Submit(task *ScrapingTask) (string, error) {
	if !p.running.Load() || p.stopping.Load() {
		return "", ErrNotRunning
	}
	if task == nil {
		return "", fmt.Errorf("%w: task is nil", ErrInvalidTask)
	}
	if err := util.ValidateURL(task.TargetURL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	if task.Priority == 0 {
		task.Priority = 5
	}
	if task.Priority < MinPriority || task.Priority > MaxPriority {
		return "", fmt.Errorf("%w: priority %d out of range [%d,%d]", ErrInvalidTask, task.Priority, MinPriority, MaxPriority)
	}

	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.MaxRetries == 0 {
		task.MaxRetries = p.config.DefaultMaxRetries
	}
	if task.Timeout <= 0 {
		task.Timeout = p.config.DefaultTimeout
	}
	if task.ValidationLevel == "" {
		task.ValidationLevel = validation.LevelStandard
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	if err := p.enqueue(task); err != nil {
		return "", err
	}
	p.collector.TaskSubmitted()

	log.Debug().
		Str("task_id", task.ID).
		Str("url", task.TargetURL).
		Int("priority", task.Priority).
		Msg("Task submitted")
	return task.ID, nil
}

func (p *Pipeline) enqueue(task *ScrapingTask) error {
	if task.Priority >= p.config.PriorityThreshold {
		select {
		case p.priorityQueue <- task:
			return nil
		default:
			return fmt.Errorf("priority %w", ErrQueueFull)
		}
	}
	select {
	case p.regularQueue <- task:
		return nil
	default:
		return fmt.Errorf("regular %w", ErrQueueFull)
	}
}

func (p *Pipeline) worker(ctx context.Context, workerID int, queue chan *ScrapingTask, lane string) {
	defer p.wg.Done()
	log.Debug().Int("worker_id", workerID).Str("lane", lane).Msg("Starting worker")

	for {
		select {
		case <-p.stopCh:
			log.Debug().Int("worker_id", workerID).Msg("Worker received stop signal")
			return
		case <-ctx.Done():
			log.Debug().Int("worker_id", workerID).Msg("Worker context cancelled")
			return
		case task := <-queue:
			p.processTask(ctx, task)
		}
	}
}

// processTask runs one attempt of a task through fetch, extract,
// validate, store and dedup, and records the outcome.
func (p *Pipeline) processTask(ctx context.Context, task *ScrapingTask) *ProcessingResult {
	p.activeWorkers.Add(1)
	defer p.activeWorkers.Add(-1)

	span := sentry.StartSpan(ctx, "pipeline.process_task")
	defer span.Finish()
	span.SetTag("task_id", task.ID)

	start := time.Now()
	result := &ProcessingResult{
		TaskID:   task.ID,
		Status:   TaskStatusProcessing,
		Metadata: map[string]any{"url": task.TargetURL, "attempt": task.RetryCount + 1},
	}

	fetched, err := p.fetcher.Fetch(ctx, task.TargetURL, task.Headers, task.Timeout)
	if err != nil {
		span.SetTag("error", "true")
		return p.handleFetchFailure(task, result, err, start)
	}

	content := p.extractor.Extract(fetched.Body, task.TargetURL)
	record := p.buildRecord(task, fetched, content)

	vres := p.validator.Validate(record, task.ValidationLevel)
	result.Errors = vres.Errors
	result.Warnings = vres.Warnings
	result.QualityScore = vres.QualityScore

	if !vres.Passed {
		// Bad content will not improve on retry
		record.ValidationStatus = store.ValidationInvalid
		record.ValidationNotes = strings.Join(vres.Errors, "; ")
		if _, saveErr := p.recordStore.Save(ctx, record); saveErr != nil {
			log.Error().Err(saveErr).Str("task_id", task.ID).Msg("Failed to save invalid record")
			result.Metadata["store_error"] = saveErr.Error()
		}
		p.collector.TaskFailed()
		log.Warn().
			Str("task_id", task.ID).
			Str("url", task.TargetURL).
			Strs("errors", vres.Errors).
			Msg("Task failed validation")
		return p.finish(result, TaskStatusFailed, start)
	}

	record.ValidationStatus = store.ValidationValid
	record.QualityScore = vres.QualityScore
	id, err := p.recordStore.Save(ctx, record)
	if err != nil {
		span.SetTag("error", "true")
		sentry.CaptureException(err)
		log.Error().Err(err).Str("task_id", task.ID).Msg("Failed to save record")
		result.Metadata["store_error"] = err.Error()
		p.collector.TaskFailed()
		return p.finish(result, TaskStatusFailed, start)
	}
	record.ID = id
	result.Metadata["record_id"] = id
	result.Data = record.ProcessedData

	if matches, dupErr := p.dedup.FindDuplicates(ctx, record); dupErr != nil {
		log.Warn().Err(dupErr).Str("record_id", id).Msg("Duplicate search failed")
		result.Metadata["dedup_error"] = dupErr.Error()
	} else if len(matches) > 0 {
		// The earliest existing record stays canonical; the new one is marked
		canonical := matches[0]
		if markErr := p.dedup.MarkDuplicates(ctx, canonical.RecordID, []dedup.Match{{
			RecordID:   id,
			Similarity: canonical.Similarity,
			Method:     canonical.Method,
		}}); markErr != nil {
			log.Warn().Err(markErr).Str("record_id", id).Msg("Failed to mark duplicate")
		} else {
			result.Metadata["duplicate_of"] = canonical.RecordID
			result.Metadata["similarity"] = canonical.Similarity
		}
	}

	duration := time.Since(start)
	p.collector.TaskCompleted(duration)
	log.Info().
		Str("task_id", task.ID).
		Str("url", task.TargetURL).
		Dur("duration", duration).
		Float64("quality_score", vres.QualityScore).
		Int("warnings", len(vres.Warnings)).
		Msg("Task completed")
	return p.finish(result, TaskStatusCompleted, start)
}

// handleFetchFailure retries transient errors with exponential backoff
// until the retry budget runs out; everything else is terminal.
func (p *Pipeline) handleFetchFailure(task *ScrapingTask, result *ProcessingResult, err error, start time.Time) *ProcessingResult {
	task.lastErr = err
	result.Errors = append(result.Errors, err.Error())
	transient := fetch.IsTransient(err)

	if transient && task.RetryCount < task.MaxRetries {
		task.RetryCount++
		delay := p.config.backoffDelay(task.RetryCount)
		p.collector.TaskRetried()
		log.Warn().
			Err(err).
			Str("task_id", task.ID).
			Str("url", task.TargetURL).
			Int("retry", task.RetryCount).
			Int("max_retries", task.MaxRetries).
			Dur("delay", delay).
			Msg("Fetch failed, retry scheduled")
		p.scheduleRetry(task, delay)
		return p.finish(result, TaskStatusRetry, start)
	}

	p.collector.TaskFailed()
	log.Error().
		Err(err).
		Str("task_id", task.ID).
		Str("url", task.TargetURL).
		Int("retries_used", task.RetryCount).
		Bool("transient", transient).
		Msg("Task failed terminally")
	if transient && p.notifier != nil {
		p.notifier.NotifyTaskExhausted(task.ID, task.TargetURL, task.RetryCount, err)
	}
	return p.finish(result, TaskStatusFailed, start)
}

// scheduleRetry re-enqueues the task after delay without occupying a
// worker slot in the meantime.
func (p *Pipeline) scheduleRetry(task *ScrapingTask, delay time.Duration) {
	p.timersMu.Lock()
	defer p.timersMu.Unlock()
	if p.stopping.Load() {
		log.Debug().Str("task_id", task.ID).Msg("Retry dropped, pipeline stopping")
		return
	}
	p.timers[task.ID] = time.AfterFunc(delay, func() {
		p.timersMu.Lock()
		delete(p.timers, task.ID)
		p.timersMu.Unlock()
		if p.stopping.Load() {
			return
		}
		if err := p.enqueue(task); err != nil {
			p.collector.TaskFailed()
			log.Error().
				Err(err).
				Str("task_id", task.ID).
				Msg("Retry re-enqueue failed, task abandoned")
		}
	})
}

func (p *Pipeline) finish(result *ProcessingResult, status TaskStatus, start time.Time) *ProcessingResult {
	result.Status = status
	result.DurationMS = time.Since(start).Milliseconds()
	return result
}

func (p *Pipeline) buildRecord(task *ScrapingTask, fetched *fetch.Result, content *extract.Content) *store.DataRecord {
	now := time.Now().UTC()

	fingerprintSource := content.Text
	if fingerprintSource == "" {
		fingerprintSource = string(fetched.Body)
	}

	processed := map[string]any{
		"headings":          content.Headings,
		"links":             content.Links,
		"images":            content.Images,
		"readability_score": content.ReadabilityScore,
		"status_code":       fetched.StatusCode,
		"content_type":      fetched.ContentType,
		"response_time_ms":  fetched.ResponseTime,
	}
	if len(task.ExtractionRules) > 0 {
		if custom := p.extractor.Apply(fetched.Body, task.ExtractionRules); len(custom) > 0 {
			processed["custom_fields"] = custom
		}
	}

	return &store.DataRecord{
		JobID:            task.JobID,
		SourceURL:        task.TargetURL,
		Domain:           util.DomainOf(task.TargetURL),
		Title:            content.Title,
		Summary:          content.Description,
		ExtractedText:    content.Text,
		RawData:          string(fetched.Body),
		ProcessedData:    processed,
		DataType:         content.DataType,
		Language:         content.Language,
		Category:         task.JobType,
		Fingerprint:      dedup.Fingerprint(fingerprintSource),
		ScrapedAt:        now,
		IngestedAt:       now,
		ValidationStatus: store.ValidationPending,
		Stats: store.ContentStats{
			WordCount:  content.WordCount,
			LinkCount:  len(content.Links),
			ImageCount: len(content.Images),
		},
	}
}

func (p *Pipeline) queueStats() metrics.QueueStats {
	return metrics.QueueStats{
		RegularSize:   len(p.regularQueue),
		PrioritySize:  len(p.priorityQueue),
		ActiveWorkers: int(p.activeWorkers.Load()),
	}
}

// GetMetrics returns a snapshot of the processing metrics
func (p *Pipeline) GetMetrics() metrics.ProcessingMetrics {
	p.collector.UpdateQueueStats(p.queueStats())
	return p.collector.Snapshot()
}

// MetricsHandler exposes the collector's Prometheus registry
func (p *Pipeline) MetricsHandler() http.Handler {
	return p.collector.Handler()
}

// GetQueueStatus returns the live state of both queues and the pool
func (p *Pipeline) GetQueueStatus() QueueStatus {
	return QueueStatus{
		RegularSize:   len(p.regularQueue),
		PrioritySize:  len(p.priorityQueue),
		ActiveWorkers: int(p.activeWorkers.Load()),
		MaxWorkers:    p.config.RegularWorkers + p.config.PriorityWorkers,
		Running:       p.running.Load() && !p.stopping.Load(),
	}
}

// AssessQuality assesses a single stored record
func (p *Pipeline) AssessQuality(ctx context.Context, recordID string) (*quality.Report, error) {
	record, err := p.recordStore.Get(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to load record for assessment: %w", err)
	}
	return p.analyzer.Assess(record), nil
}

// RunQualitySweep assesses up to limit recent records, persists their
// scores and notifies on a systemic quality drop.
func (p *Pipeline) RunQualitySweep(ctx context.Context, limit int) (*quality.BatchResult, error) {
	result, err := p.analyzer.AssessBatch(ctx, limit)
	if err != nil {
		return nil, err
	}
	if result.Assessed > 0 && result.AverageScore < p.config.QualityThreshold && p.notifier != nil {
		p.notifier.NotifyQualityDrop(result.AverageScore, p.config.QualityThreshold, result.Assessed)
	}
	return result, nil
}

// CleanupDuplicates runs a fingerprint housekeeping sweep over the store
func (p *Pipeline) CleanupDuplicates(ctx context.Context, batchSize int) (*dedup.CleanupResult, error) {
	return p.dedup.CleanupDuplicates(ctx, batchSize)
}

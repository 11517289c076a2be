package quality

import (
	"context"
	"fmt"
	"sync"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hivemind-works/pagepipe/internal/store"
)

// DefaultBatchConcurrency bounds how many records a batch sweep assesses in parallel
const DefaultBatchConcurrency = 5

// Analyzer assesses stored records across four quality dimensions
type Analyzer struct {
	store            store.Store
	batchConcurrency int
}

// NewAnalyzer creates an Analyzer backed by the given store
func NewAnalyzer(recordStore store.Store) *Analyzer {
	if recordStore == nil {
		panic("record store is required")
	}
	return &Analyzer{
		store:            recordStore,
		batchConcurrency: DefaultBatchConcurrency,
	}
}

// Assess scores a record on completeness, accuracy, consistency and
// timeliness. The overall score is the mean of the non-zero dimensions.
func (a *Analyzer) Assess(record *store.DataRecord) *Report {
	report := &Report{RecordID: record.ID}

	report.Completeness = assessCompleteness(record, report)
	report.Accuracy = assessAccuracy(record, report)
	report.Consistency = assessConsistency(record, report)
	report.Timeliness = assessTimeliness(record, report)

	sum, count := 0.0, 0
	for _, dimension := range []float64{report.Completeness, report.Accuracy, report.Consistency, report.Timeliness} {
		if dimension > 0 {
			sum += dimension
			count++
		}
	}
	if count > 0 {
		report.OverallScore = sum / float64(count)
	}

	report.Recommendations = recommend(report)
	return report
}

// BatchResult summarises one batch quality sweep
type BatchResult struct {
	Assessed     int     `json:"assessed"`
	AverageScore float64 `json:"average_score"`
	Errors       int     `json:"errors"`
}

// AssessBatch assesses up to limit recently ingested records with bounded
// parallelism and persists the updated scores. Per-record persistence
// failures are counted, never abort the sweep.
func (a *Analyzer) AssessBatch(ctx context.Context, limit int) (*BatchResult, error) {
	span := sentry.StartSpan(ctx, "quality.assess_batch")
	defer span.Finish()

	if limit <= 0 {
		limit = 100
	}

	records, err := a.store.ListRecent(ctx, limit)
	if err != nil {
		span.SetTag("error", "true")
		sentry.CaptureException(err)
		return nil, fmt.Errorf("failed to list records for assessment: %w", err)
	}

	var mu sync.Mutex
	result := &BatchResult{}
	totalScore := 0.0

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(a.batchConcurrency)
	for _, record := range records {
		record := record
		group.Go(func() error {
			report := a.Assess(record)

			mu.Lock()
			result.Assessed++
			totalScore += report.OverallScore
			mu.Unlock()

			if err := a.store.UpdateQuality(groupCtx, record.ID, report.OverallScore, report.Completeness); err != nil {
				log.Error().Err(err).
					Str("record_id", record.ID).
					Msg("Failed to persist quality scores")
				mu.Lock()
				result.Errors++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	if result.Assessed > 0 {
		result.AverageScore = totalScore / float64(result.Assessed)
	}

	log.Info().
		Int("assessed", result.Assessed).
		Float64("average_score", result.AverageScore).
		Int("errors", result.Errors).
		Msg("Quality batch sweep completed")

	return result, nil
}

// recommend turns low dimensions and observed issue kinds into actionable advice
func recommend(report *Report) []string {
	var recommendations []string

	if report.Completeness < 70 {
		recommendations = append(recommendations, "Improve extraction rules to capture missing essential fields")
	}
	if report.Accuracy < 70 {
		recommendations = append(recommendations, "Review source content filters and charset handling")
	}
	if report.Consistency < 70 {
		recommendations = append(recommendations, "Implement stricter validation at ingestion time")
	}
	if report.Timeliness < 70 {
		recommendations = append(recommendations, "Increase scrape frequency for this source")
	}
	if report.HasIssue(IssueSpamContent) {
		recommendations = append(recommendations, "Add this source to the spam review queue")
	}
	if report.HasIssue(IssueDuplicateContent) {
		recommendations = append(recommendations, "Run a deduplication sweep for this source's domain")
	}
	return recommendations
}

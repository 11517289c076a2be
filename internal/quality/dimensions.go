package quality

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hivemind-works/pagepipe/internal/store"
	"github.com/hivemind-works/pagepipe/internal/util"
)

// Phrases that mark a record as likely spam when two or more appear
var spamIndicators = []string{
	"buy now",
	"limited time offer",
	"click here",
	"act now",
	"100% free",
	"make money fast",
	"winner winner",
	"congratulations you have won",
}

// Byte sequences typical of double-encoded or replacement-character text
var encodingArtifacts = []string{
	"�",
	"â€™",
	"â€œ",
	"â€�",
	"Ã©",
	"Ã¨",
	"Ã¼",
	"\x00",
}

// Substrings that should never survive extraction into clean text
var suspiciousPatterns = []string{
	"<script",
	"javascript:",
	"onclick=",
	"onerror=",
	"<iframe",
	"document.cookie",
}

var essentialFields = []string{"title", "extracted_text", "source_url", "data_type", "scraped_at", "domain"}

// assessCompleteness scores field coverage, weighted roughly 70/30 between
// essential and optional fields. Missing essentials each raise an issue.
func assessCompleteness(record *store.DataRecord, report *Report) float64 {
	present := map[string]bool{
		"title":          record.Title != "",
		"extracted_text": record.ExtractedText != "",
		"source_url":     record.SourceURL != "",
		"data_type":      record.DataType != "",
		"scraped_at":     !record.ScrapedAt.IsZero(),
		"domain":         record.Domain != "",
	}

	essentialHits := 0
	for _, field := range essentialFields {
		if present[field] {
			essentialHits++
			continue
		}
		report.Issues = append(report.Issues, Issue{
			Kind:        IssueMissingContent,
			Severity:    SeverityHigh,
			Description: fmt.Sprintf("essential field %q is empty", field),
			Field:       field,
			Suggestion:  "review the extraction rules for this source",
		})
	}

	optional := []bool{
		record.Summary != "",
		record.Language != "",
		record.Category != "",
		record.Stats.WordCount > 0,
		record.PublishedAt != nil,
		record.Stats.LinkCount > 0,
		record.Stats.ImageCount > 0,
	}
	optionalHits := 0
	for _, ok := range optional {
		if ok {
			optionalHits++
		}
	}

	score := 70*float64(essentialHits)/float64(len(essentialFields)) +
		30*float64(optionalHits)/float64(len(optional))
	if score < 50 {
		report.Issues = append(report.Issues, Issue{
			Kind:        IssueLowCompleteness,
			Severity:    severityFor(100 - score),
			Description: fmt.Sprintf("record is missing most expected fields (completeness %.0f)", score),
		})
	}
	return score
}

// assessAccuracy starts at 100 and deducts for spam phrases, encoding
// artifacts, markup remnants and an invalid source URL.
func assessAccuracy(record *store.DataRecord, report *Report) float64 {
	score := 100.0
	text := strings.ToLower(record.Title + " " + record.ExtractedText)

	spamHits := 0
	for _, phrase := range spamIndicators {
		if strings.Contains(text, phrase) {
			spamHits++
		}
	}
	if spamHits >= 2 {
		score -= 30
		report.Issues = append(report.Issues, Issue{
			Kind:        IssueSpamContent,
			Severity:    severityFor(30),
			Description: fmt.Sprintf("content matches %d spam indicator phrases", spamHits),
			Suggestion:  "flag the source for manual review",
		})
	}

	for _, artifact := range encodingArtifacts {
		if strings.Contains(record.ExtractedText, artifact) {
			score -= 20
			report.Issues = append(report.Issues, Issue{
				Kind:        IssueEncodingError,
				Severity:    severityFor(20),
				Description: "extracted text contains encoding artifacts",
				Field:       "extracted_text",
				Suggestion:  "check the source charset handling",
			})
			break
		}
	}

	patternHits := 0
	for _, pattern := range suspiciousPatterns {
		patternHits += strings.Count(text, pattern)
	}
	if patternHits > 0 {
		deduction := math.Min(float64(patternHits)*5, 25)
		score -= deduction
		report.Issues = append(report.Issues, Issue{
			Kind:        IssueSuspiciousPattern,
			Severity:    severityFor(deduction),
			Description: fmt.Sprintf("found %d suspicious markup fragments in extracted text", patternHits),
			Field:       "extracted_text",
			Suggestion:  "strip script and event-handler content during extraction",
		})
	}

	if err := util.ValidateURL(record.SourceURL); err != nil {
		score -= 15
		report.Issues = append(report.Issues, Issue{
			Kind:        IssueInvalidFormat,
			Severity:    severityFor(15),
			Description: fmt.Sprintf("source URL failed validation: %v", err),
			Field:       "source_url",
		})
	}

	return math.Max(score, 0)
}

// assessConsistency starts at 100 and deducts where stored values
// contradict each other or the content itself.
func assessConsistency(record *store.DataRecord, report *Report) float64 {
	score := 100.0

	actualWords := len(strings.Fields(record.ExtractedText))
	if record.Stats.WordCount > 0 && actualWords > 0 {
		deviation := math.Abs(float64(record.Stats.WordCount-actualWords)) / float64(actualWords)
		if deviation > 0.20 {
			score -= 15
			report.Issues = append(report.Issues, Issue{
				Kind:        IssueMalformedData,
				Severity:    severityFor(15),
				Description: fmt.Sprintf("stored word count %d deviates %.0f%% from actual %d", record.Stats.WordCount, deviation*100, actualWords),
				Field:       "word_count",
			})
		}
	}

	if record.PublishedAt != nil && record.PublishedAt.After(record.ScrapedAt) {
		score -= 10
		report.Issues = append(report.Issues, Issue{
			Kind:        IssueMalformedData,
			Severity:    severityFor(10),
			Description: "published date postdates the scrape date",
			Field:       "published_at",
		})
	}

	if !record.ScrapedAt.IsZero() && record.ScrapedAt.After(time.Now().Add(time.Minute)) {
		score -= 20
		report.Issues = append(report.Issues, Issue{
			Kind:        IssueMalformedData,
			Severity:    severityFor(20),
			Description: "scrape date is in the future",
			Field:       "scraped_at",
		})
	}

	if math.Abs(record.QualityScore-record.CompletenessScore) > 30 {
		score -= 10
		report.Issues = append(report.Issues, Issue{
			Kind:        IssueMalformedData,
			Severity:    severityFor(10),
			Description: fmt.Sprintf("quality score %.0f and completeness score %.0f disagree", record.QualityScore, record.CompletenessScore),
		})
	}

	if len(record.ExtractedText) < 50 && record.QualityScore > 70 {
		score -= 20
		report.Issues = append(report.Issues, Issue{
			Kind:        IssueMalformedData,
			Severity:    severityFor(20),
			Description: "high quality score on a near-empty record",
			Field:       "quality_score",
		})
	}

	return math.Max(score, 0)
}

// assessTimeliness starts at 100 and deducts for stale content and slow
// ingestion. Content age is measured from the published date when known,
// otherwise from the scrape date.
func assessTimeliness(record *store.DataRecord, report *Report) float64 {
	score := 100.0
	now := time.Now()

	reference := record.ScrapedAt
	if record.PublishedAt != nil {
		reference = *record.PublishedAt
	}
	if !reference.IsZero() && reference.Before(now) {
		age := now.Sub(reference)
		var deduction float64
		switch {
		case age > 365*24*time.Hour:
			deduction = 30
		case age > 180*24*time.Hour:
			deduction = 15
		case age > 90*24*time.Hour:
			deduction = 5
		}
		if deduction > 0 {
			score -= deduction
			report.Issues = append(report.Issues, Issue{
				Kind:        IssueOutdatedContent,
				Severity:    severityFor(deduction),
				Description: fmt.Sprintf("content is %.0f days old", age.Hours()/24),
				Suggestion:  "schedule a re-scrape of this source",
			})
		}
	}

	if !record.IngestedAt.IsZero() && !record.ScrapedAt.IsZero() {
		if gap := record.IngestedAt.Sub(record.ScrapedAt); gap > 24*time.Hour {
			score -= 10
			report.Issues = append(report.Issues, Issue{
				Kind:        IssueOutdatedContent,
				Severity:    severityFor(10),
				Description: fmt.Sprintf("record sat %.0f hours between scrape and ingestion", gap.Hours()),
			})
		}
	}

	return math.Max(score, 0)
}

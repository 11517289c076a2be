package validation

import (
	"fmt"
	"strings"

	"github.com/hivemind-works/pagepipe/internal/store"
	"github.com/rs/zerolog/log"
)

// Level is one of the four escalating validation strictness tiers.
type Level string

const (
	LevelBasic         Level = "basic"
	LevelStandard      Level = "standard"
	LevelComprehensive Level = "comprehensive"
	LevelStrict        Level = "strict"
)

// ParseLevel maps a string to a validation level, defaulting to standard.
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelBasic:
		return LevelBasic
	case LevelComprehensive:
		return LevelComprehensive
	case LevelStrict:
		return LevelStrict
	case LevelStandard, "":
		return LevelStandard
	default:
		log.Warn().Str("level", s).Msg("Unknown validation level, using standard")
		return LevelStandard
	}
}

// Result is the verdict of validating one record.
type Result struct {
	Passed       bool     `json:"passed"`
	Errors       []string `json:"errors,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
	QualityScore float64  `json:"quality_score"`
}

// checkFunc is one independent validation predicate. Each check reports its
// own errors and warnings; checks never mutate the record.
type checkFunc func(record *store.DataRecord) (errs, warns []string)

// Validator applies a level's ordered check table to a record. Each level is
// a superset of the previous one.
type Validator struct {
	checks map[Level][]checkFunc
}

// New creates a Validator with the built-in check tables.
func New() *Validator {
	basic := []checkFunc{checkSourceURL, checkHasContent}
	standard := append(append([]checkFunc{}, basic...),
		checkURLLength, checkTitleLength, checkTextBounds, checkDataType)
	comprehensive := append(append([]checkFunc{}, standard...),
		checkSuspiciousPatterns, checkRepetitiveContent, checkScrapeTime, checkQualityRange)
	strict := append(append([]checkFunc{}, comprehensive...),
		checkStrictMandatoryFields, checkStrictTextLength, checkStrictQuality)

	return &Validator{checks: map[Level][]checkFunc{
		LevelBasic:         basic,
		LevelStandard:      standard,
		LevelComprehensive: comprehensive,
		LevelStrict:        strict,
	}}
}

// Validate runs the level's checks over a record and computes its quality score.
func (v *Validator) Validate(record *store.DataRecord, level Level) *Result {
	result := &Result{}

	checks, ok := v.checks[level]
	if !ok {
		checks = v.checks[LevelStandard]
	}

	for _, check := range checks {
		errs, warns := check(record)
		result.Errors = append(result.Errors, errs...)
		result.Warnings = append(result.Warnings, warns...)
	}

	result.Passed = len(result.Errors) == 0
	result.QualityScore = Score(record, len(result.Errors), len(result.Warnings))

	log.Debug().
		Str("record_id", record.ID).
		Str("level", string(level)).
		Int("errors", len(result.Errors)).
		Int("warnings", len(result.Warnings)).
		Float64("quality_score", result.QualityScore).
		Bool("passed", result.Passed).
		Msg("Validated record")

	return result
}

// Score computes the 0-100 quality score for a record given its validation
// error and warning counts. Independent of validation level.
func Score(record *store.DataRecord, errorCount, warningCount int) float64 {
	score := 100.0
	score -= 20.0 * float64(errorCount)
	score -= 5.0 * float64(warningCount)

	textLen := len(record.ExtractedText)
	switch {
	case textLen >= 200 && textLen <= 10000:
		score += 10
	case textLen < 100:
		score -= 20
	}

	// Bonus proportional to how many descriptive fields are populated
	populated := 0
	if record.Title != "" {
		populated++
	}
	if record.DataType != "" {
		populated++
	}
	if record.Language != "" {
		populated++
	}
	if record.Stats.WordCount > 0 {
		populated++
	}
	score += 20.0 * float64(populated) / 4.0

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func errorf(format string, args ...any) []string {
	return []string{fmt.Sprintf(format, args...)}
}

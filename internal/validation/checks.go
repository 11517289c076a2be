package validation

import (
	"strings"
	"time"
	"unicode"

	"github.com/hivemind-works/pagepipe/internal/store"
	"github.com/hivemind-works/pagepipe/internal/util"
)

const (
	maxURLLength    = 2048
	maxTitleLength  = 500
	shortTextChars  = 50
	hugeTextChars   = 1_000_000
	futureTolerance = 5 * time.Minute
)

// --- basic ---

func checkSourceURL(record *store.DataRecord) (errs, warns []string) {
	if record.SourceURL == "" {
		return errorf("source URL is missing"), nil
	}
	if err := util.ValidateURL(record.SourceURL); err != nil {
		return errorf("source URL is invalid: %v", err), nil
	}
	return nil, nil
}

func checkHasContent(record *store.DataRecord) (errs, warns []string) {
	if record.RawData == "" && record.Title == "" && record.ExtractedText == "" {
		return errorf("record has no content: raw data, title and extracted text are all empty"), nil
	}
	return nil, nil
}

// --- standard ---

func checkURLLength(record *store.DataRecord) (errs, warns []string) {
	if len(record.SourceURL) > maxURLLength {
		return nil, errorf("source URL exceeds %d characters", maxURLLength)
	}
	return nil, nil
}

func checkTitleLength(record *store.DataRecord) (errs, warns []string) {
	if len(record.Title) > maxTitleLength {
		return nil, errorf("title exceeds %d characters", maxTitleLength)
	}
	return nil, nil
}

func checkTextBounds(record *store.DataRecord) (errs, warns []string) {
	textLen := len(record.ExtractedText)
	if textLen > 0 && textLen < shortTextChars {
		return nil, errorf("extracted text is very short (%d characters)", textLen)
	}
	if textLen > hugeTextChars {
		return nil, errorf("extracted text is very large (%d characters)", textLen)
	}
	return nil, nil
}

func checkDataType(record *store.DataRecord) (errs, warns []string) {
	if record.DataType != "" && !store.IsKnownDataType(record.DataType) {
		return nil, errorf("unknown data type %q", record.DataType)
	}
	return nil, nil
}

// --- comprehensive ---

func checkSuspiciousPatterns(record *store.DataRecord) (errs, warns []string) {
	text := record.ExtractedText
	if text == "" {
		return nil, nil
	}

	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) >= 10 {
		counts := make(map[string]int, len(tokens))
		for _, token := range tokens {
			counts[token]++
		}
		for token, count := range counts {
			if float64(count) > 0.1*float64(len(tokens)) {
				warns = append(warns, "suspicious pattern: token \""+token+"\" dominates the text")
				break
			}
		}
	}

	nonAlnum := 0
	total := 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			nonAlnum++
		}
	}
	if total > 0 && float64(nonAlnum) > 0.3*float64(total) {
		warns = append(warns, "suspicious pattern: over 30% non-alphanumeric characters")
	}

	return nil, warns
}

func checkRepetitiveContent(record *store.DataRecord) (errs, warns []string) {
	sentences := splitSentences(record.ExtractedText)
	if len(sentences) < 3 {
		return nil, nil
	}

	unique := make(map[string]struct{}, len(sentences))
	for _, sentence := range sentences {
		unique[strings.TrimSpace(strings.ToLower(sentence))] = struct{}{}
	}

	if float64(len(unique)) < 0.7*float64(len(sentences)) {
		return nil, errorf("repetitive content: only %d of %d sentences are unique", len(unique), len(sentences))
	}
	return nil, nil
}

func checkScrapeTime(record *store.DataRecord) (errs, warns []string) {
	if !record.ScrapedAt.IsZero() && record.ScrapedAt.After(time.Now().Add(futureTolerance)) {
		return errorf("scrape timestamp is more than 5 minutes in the future"), nil
	}
	return nil, nil
}

func checkQualityRange(record *store.DataRecord) (errs, warns []string) {
	if record.QualityScore < 0 || record.QualityScore > 100 {
		return errorf("quality score %.1f is outside [0,100]", record.QualityScore), nil
	}
	return nil, nil
}

// --- strict ---

func checkStrictMandatoryFields(record *store.DataRecord) (errs, warns []string) {
	if record.Title == "" {
		errs = append(errs, "title is required")
	}
	if record.ExtractedText == "" {
		errs = append(errs, "extracted text is required")
	}
	if record.DataType == "" {
		errs = append(errs, "data type is required")
	}
	if record.JobID == "" {
		errs = append(errs, "source job id is required")
	}
	return errs, nil
}

func checkStrictTextLength(record *store.DataRecord) (errs, warns []string) {
	if textLen := len(record.ExtractedText); textLen > 0 && textLen < 100 {
		return errorf("extracted text must be at least 100 characters, got %d", textLen), nil
	}
	return nil, nil
}

func checkStrictQuality(record *store.DataRecord) (errs, warns []string) {
	if record.QualityScore > 0 && record.QualityScore < 50 {
		return errorf("quality score %.1f is below the strict minimum of 50", record.QualityScore), nil
	}
	return nil, nil
}

// splitSentences breaks text on terminal punctuation, dropping empties.
func splitSentences(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	sentences := make([]string, 0, len(raw))
	for _, s := range raw {
		if strings.TrimSpace(s) != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

package extract

import "strings"

// Stopword samples per language. A handful of very frequent function words is
// enough to separate the languages this pipeline commonly sees.
var stopwords = map[string][]string{
	"en": {"the", "and", "is", "of", "to", "in", "that", "for", "with", "was"},
	"es": {"el", "la", "de", "que", "los", "una", "por", "con", "para", "las"},
	"fr": {"le", "la", "les", "des", "est", "dans", "pour", "une", "que", "sur"},
	"de": {"der", "die", "und", "das", "ist", "ein", "mit", "von", "den", "für"},
}

// detectLanguage guesses the dominant language by counting stopword hits.
// Returns an empty string when no language stands out.
func detectLanguage(text string) string {
	if len(text) < 20 {
		return ""
	}

	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return ""
	}

	counts := make(map[string]int, len(stopwords))
	for _, word := range words {
		word = strings.Trim(word, ".,;:!?\"'()")
		for lang, markers := range stopwords {
			for _, marker := range markers {
				if word == marker {
					counts[lang]++
				}
			}
		}
	}

	best := ""
	bestCount := 0
	for lang, count := range counts {
		if count > bestCount {
			best = lang
			bestCount = count
		}
	}

	// Require a minimal signal before claiming a language
	if bestCount < 3 {
		return ""
	}
	return best
}

// readabilityScore approximates a Flesch reading-ease score from average
// sentence length and average word length. Clamped to [0,100].
func readabilityScore(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}

	sentences := 0
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			sentences++
		}
	}
	if sentences == 0 {
		sentences = 1
	}

	chars := 0
	for _, word := range words {
		chars += len(word)
	}

	avgSentenceLen := float64(len(words)) / float64(sentences)
	avgWordLen := float64(chars) / float64(len(words))

	score := 206.835 - 1.015*avgSentenceLen - 21.0*(avgWordLen/4.7)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

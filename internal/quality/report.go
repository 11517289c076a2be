package quality

// IssueKind classifies a detected quality defect
type IssueKind string

const (
	IssueMissingContent    IssueKind = "missing-content"
	IssueDuplicateContent  IssueKind = "duplicate-content"
	IssueInvalidFormat     IssueKind = "invalid-format"
	IssueLowCompleteness   IssueKind = "low-completeness"
	IssueSuspiciousPattern IssueKind = "suspicious-pattern"
	IssueEncodingError     IssueKind = "encoding-error"
	IssueBrokenLink        IssueKind = "broken-link"
	IssueOutdatedContent   IssueKind = "outdated-content"
	IssueSpamContent       IssueKind = "spam-content"
	IssueMalformedData     IssueKind = "malformed-data"
)

// Severity ranks how damaging an issue is
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityFor maps a score deduction to a severity band
func severityFor(deduction float64) Severity {
	switch {
	case deduction >= 30:
		return SeverityHigh
	case deduction >= 10:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Issue is one detected defect on a record
type Issue struct {
	Kind        IssueKind `json:"kind"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
	Field       string    `json:"field,omitempty"`
	Suggestion  string    `json:"suggestion,omitempty"`
}

// Report is the outcome of one quality assessment. Reports are built once
// and never mutated; re-assessing a record produces a fresh report.
type Report struct {
	RecordID        string   `json:"record_id"`
	OverallScore    float64  `json:"overall_score"`
	Completeness    float64  `json:"completeness"`
	Accuracy        float64  `json:"accuracy"`
	Consistency     float64  `json:"consistency"`
	Timeliness      float64  `json:"timeliness"`
	Issues          []Issue  `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// HasIssue reports whether the report contains an issue of the given kind
func (r *Report) HasIssue(kind IssueKind) bool {
	for _, issue := range r.Issues {
		if issue.Kind == kind {
			return true
		}
	}
	return false
}

package store

import (
	"time"
)

// ValidationStatus represents the validation state of a stored record
type ValidationStatus string

const (
	ValidationPending   ValidationStatus = "pending"
	ValidationValid     ValidationStatus = "valid"
	ValidationInvalid   ValidationStatus = "invalid"
	ValidationDuplicate ValidationStatus = "duplicate"
)

// Known content classifications for scraped records
const (
	DataTypeArticle  = "article"
	DataTypeProduct  = "product"
	DataTypeListing  = "listing"
	DataTypeProfile  = "profile"
	DataTypeDocument = "document"
	DataTypeMedia    = "media"
	DataTypeOther    = "other"
)

// KnownDataTypes lists the accepted content-type classifications.
var KnownDataTypes = []string{
	DataTypeArticle, DataTypeProduct, DataTypeListing,
	DataTypeProfile, DataTypeDocument, DataTypeMedia, DataTypeOther,
}

// IsKnownDataType reports whether dataType is one of the accepted classifications.
func IsKnownDataType(dataType string) bool {
	for _, known := range KnownDataTypes {
		if dataType == known {
			return true
		}
	}
	return false
}

// ContentStats holds basic statistics about a record's extracted content
type ContentStats struct {
	WordCount  int `json:"word_count"`
	LinkCount  int `json:"link_count"`
	ImageCount int `json:"image_count"`
}

// DataRecord is the canonical unit of scraped content
type DataRecord struct {
	ID                string           `json:"id"`
	JobID             string           `json:"job_id,omitempty"`
	SourceURL         string           `json:"source_url"`
	Domain            string           `json:"domain"`
	Title             string           `json:"title,omitempty"`
	Summary           string           `json:"summary,omitempty"`
	ExtractedText     string           `json:"extracted_text,omitempty"`
	RawData           string           `json:"raw_data,omitempty"`
	ProcessedData     map[string]any   `json:"processed_data,omitempty"`
	DataType          string           `json:"data_type,omitempty"`
	Language          string           `json:"language,omitempty"`
	Category          string           `json:"category,omitempty"`
	Fingerprint       string           `json:"fingerprint"`
	ScrapedAt         time.Time        `json:"scraped_at"`
	IngestedAt        time.Time        `json:"ingested_at"`
	PublishedAt       *time.Time       `json:"published_at,omitempty"`
	QualityScore      float64          `json:"quality_score"`
	CompletenessScore float64          `json:"completeness_score"`
	ValidationStatus  ValidationStatus `json:"validation_status"`
	ValidationNotes   string           `json:"validation_notes,omitempty"`
	Stats             ContentStats     `json:"stats"`
}

// DeduplicationGroup records one canonical record and the records judged duplicates of it
type DeduplicationGroup struct {
	ID           string    `json:"id"`
	CanonicalID  string    `json:"canonical_id"`
	DuplicateIDs []string  `json:"duplicate_ids"`
	Method       string    `json:"method"` // "exact_hash" or "jaccard"
	Similarity   float64   `json:"similarity"` // 0-100
	CreatedAt    time.Time `json:"created_at"`
}

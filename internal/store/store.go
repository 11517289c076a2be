package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Store persists scraped records and deduplication groups.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save persists a record and returns its ID, assigning one if empty.
	Save(ctx context.Context, record *DataRecord) (string, error)

	// Get returns the record with the given ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*DataRecord, error)

	// FindByFingerprint returns all records sharing a content fingerprint.
	FindByFingerprint(ctx context.Context, fingerprint string) ([]*DataRecord, error)

	// FindCandidates returns up to limit records from a domain whose word count
	// falls within [minWords, maxWords], ordered by scrape time descending.
	FindCandidates(ctx context.Context, domain string, minWords, maxWords, limit int) ([]*DataRecord, error)

	// UpdateValidation sets a record's validation status and notes.
	UpdateValidation(ctx context.Context, id string, status ValidationStatus, notes string) error

	// MarkDuplicate flips a record to duplicate status, linked to its canonical record.
	MarkDuplicate(ctx context.Context, id, canonicalID string) error

	// SaveGroup persists a deduplication group.
	SaveGroup(ctx context.Context, group *DeduplicationGroup) error

	// ListFingerprintGroups returns fingerprints shared by more than one record,
	// with their records ordered by scrape time ascending, up to batchSize groups.
	ListFingerprintGroups(ctx context.Context, batchSize int) (map[string][]*DataRecord, error)

	// UpdateQuality sets a record's quality and completeness scores.
	UpdateQuality(ctx context.Context, id string, quality, completeness float64) error

	// ListRecent returns the most recently ingested records, up to limit.
	ListRecent(ctx context.Context, limit int) ([]*DataRecord, error)
}

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation. It backs tests and
// single-process deployments that run without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*DataRecord
	groups  map[string]*DeduplicationGroup
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*DataRecord),
		groups:  make(map[string]*DeduplicationGroup),
	}
}

func (s *MemoryStore) Save(_ context.Context, record *DataRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.IngestedAt.IsZero() {
		record.IngestedAt = time.Now().UTC()
	}
	if record.ValidationStatus == "" {
		record.ValidationStatus = ValidationPending
	}

	clone := *record
	s.records[record.ID] = &clone
	return record.ID, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*DataRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *MemoryStore) FindByFingerprint(_ context.Context, fingerprint string) ([]*DataRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*DataRecord
	for _, record := range s.records {
		if record.Fingerprint == fingerprint {
			clone := *record
			matches = append(matches, &clone)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].ScrapedAt.Before(matches[j].ScrapedAt)
	})
	return matches, nil
}

func (s *MemoryStore) FindCandidates(_ context.Context, domain string, minWords, maxWords, limit int) ([]*DataRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*DataRecord
	for _, record := range s.records {
		if record.Domain != domain {
			continue
		}
		if record.Stats.WordCount < minWords || record.Stats.WordCount > maxWords {
			continue
		}
		clone := *record
		matches = append(matches, &clone)
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].ScrapedAt.After(matches[j].ScrapedAt)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *MemoryStore) UpdateValidation(_ context.Context, id string, status ValidationStatus, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	record.ValidationStatus = status
	record.ValidationNotes = notes
	return nil
}

func (s *MemoryStore) MarkDuplicate(_ context.Context, id, canonicalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	record.ValidationStatus = ValidationDuplicate
	record.ValidationNotes = "duplicate of " + canonicalID
	return nil
}

func (s *MemoryStore) SaveGroup(_ context.Context, group *DeduplicationGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}
	clone := *group
	clone.DuplicateIDs = append([]string(nil), group.DuplicateIDs...)
	s.groups[group.ID] = &clone
	return nil
}

func (s *MemoryStore) ListFingerprintGroups(_ context.Context, batchSize int) (map[string][]*DataRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byFingerprint := make(map[string][]*DataRecord)
	for _, record := range s.records {
		if record.Fingerprint == "" {
			continue
		}
		clone := *record
		byFingerprint[record.Fingerprint] = append(byFingerprint[record.Fingerprint], &clone)
	}

	groups := make(map[string][]*DataRecord)
	for fingerprint, records := range byFingerprint {
		if len(records) < 2 {
			continue
		}
		sort.Slice(records, func(i, j int) bool {
			return records[i].ScrapedAt.Before(records[j].ScrapedAt)
		})
		groups[fingerprint] = records
		if batchSize > 0 && len(groups) >= batchSize {
			break
		}
	}
	return groups, nil
}

func (s *MemoryStore) UpdateQuality(_ context.Context, id string, quality, completeness float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	record.QualityScore = quality
	record.CompletenessScore = completeness
	return nil
}

func (s *MemoryStore) ListRecent(_ context.Context, limit int) ([]*DataRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*DataRecord, 0, len(s.records))
	for _, record := range s.records {
		clone := *record
		records = append(records, &clone)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].IngestedAt.After(records[j].IngestedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Groups returns all persisted deduplication groups. Test helper.
func (s *MemoryStore) Groups() []*DeduplicationGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]*DeduplicationGroup, 0, len(s.groups))
	for _, group := range s.groups {
		clone := *group
		groups = append(groups, &clone)
	}
	return groups
}

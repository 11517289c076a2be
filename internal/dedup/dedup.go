package dedup

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/getsentry/sentry-go"
	"github.com/hivemind-works/pagepipe/internal/cache"
	"github.com/hivemind-works/pagepipe/internal/store"
	"github.com/rs/zerolog/log"
)

// Similarity methods recorded on deduplication groups
const (
	MethodExactHash = "exact_hash"
	MethodJaccard   = "jaccard"
)

// Config holds the tunable parameters of duplicate detection. The threshold
// and tolerance defaults follow observed behaviour rather than any principled
// derivation, so both are configurable.
type Config struct {
	SimilarityThreshold float64 // Jaccard similarity at or above which records are duplicates
	WordCountTolerance  float64 // Candidate word count must be within this fraction of the record's
	MaxCandidates       int     // Upper bound on the near-duplicate candidate set
	MinTextLength       int     // Near-duplicate search only runs above this text length
	CacheSize           int     // Recent fingerprint lookup cache entries
}

// DefaultConfig returns a Config instance with default values
func DefaultConfig() *Config {
	return &Config{
		SimilarityThreshold: 0.85,
		WordCountTolerance:  0.20,
		MaxCandidates:       50,
		MinTextLength:       100,
		CacheSize:           1024,
	}
}

// Match is one record judged a duplicate of the record under examination.
type Match struct {
	RecordID   string
	Similarity float64 // 0-100
	Method     string
}

// CleanupResult summarises one housekeeping sweep.
type CleanupResult struct {
	GroupsProcessed  int `json:"groups_processed"`
	DuplicatesMarked int `json:"duplicates_marked"`
	Errors           int `json:"errors"`
}

// Deduplicator finds exact and near-duplicate records.
type Deduplicator struct {
	store  store.Store
	config *Config

	// Caches recent fingerprint lookups to spare the store on hot paths
	fingerprints *cache.InMemoryCache

	// Serialises cleanup per fingerprint so concurrent sweeps never race on
	// canonical-record selection
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates a Deduplicator backed by the given store.
func New(recordStore store.Store, config *Config) *Deduplicator {
	if recordStore == nil {
		panic("record store is required")
	}
	if config == nil {
		config = DefaultConfig()
	}

	return &Deduplicator{
		store:        recordStore,
		config:       config,
		fingerprints: cache.NewBoundedCache(config.CacheSize),
		locks:        make(map[string]*sync.Mutex),
	}
}

// FindDuplicates returns the records judged duplicates of the given record,
// excluding the record itself. Exact fingerprint matches score 100; near
// duplicates score by Jaccard similarity over normalised word sets. The
// search is read-only: marking is a separate step.
func (d *Deduplicator) FindDuplicates(ctx context.Context, record *store.DataRecord) ([]Match, error) {
	span := sentry.StartSpan(ctx, "dedup.find_duplicates")
	defer span.Finish()
	span.SetTag("record_id", record.ID)

	var matches []Match
	seen := map[string]struct{}{record.ID: {}}

	// Step 1: exact fingerprint matches. A cache hit means a prior search
	// already resolved this fingerprint's canonical record, so the store
	// lookup is skipped.
	if record.Fingerprint != "" {
		if cached, ok := d.fingerprints.Get(record.Fingerprint); ok {
			if canonicalID, _ := cached.(string); canonicalID != "" && canonicalID != record.ID {
				seen[canonicalID] = struct{}{}
				matches = append(matches, Match{
					RecordID:   canonicalID,
					Similarity: 100,
					Method:     MethodExactHash,
				})
			}
		} else {
			exact, err := d.store.FindByFingerprint(ctx, record.Fingerprint)
			if err != nil {
				span.SetTag("error", "true")
				return nil, fmt.Errorf("fingerprint lookup failed: %w", err)
			}
			for _, candidate := range exact {
				if _, ok := seen[candidate.ID]; ok {
					continue
				}
				seen[candidate.ID] = struct{}{}
				matches = append(matches, Match{
					RecordID:   candidate.ID,
					Similarity: 100,
					Method:     MethodExactHash,
				})
			}
			// The earliest holder of the fingerprint answers future lookups
			holder := record.ID
			if len(exact) > 0 {
				holder = exact[0].ID
			}
			d.fingerprints.Set(record.Fingerprint, holder)
		}
	}

	// Step 2: near-duplicate search over same-domain candidates
	if len(record.ExtractedText) > d.config.MinTextLength {
		nearMatches, err := d.findNearDuplicates(ctx, record, seen)
		if err != nil {
			return nil, err
		}
		matches = append(matches, nearMatches...)
	}

	log.Debug().
		Str("record_id", record.ID).
		Int("matches", len(matches)).
		Msg("Duplicate search completed")

	return matches, nil
}

func (d *Deduplicator) findNearDuplicates(ctx context.Context, record *store.DataRecord, seen map[string]struct{}) ([]Match, error) {
	wordCount := record.Stats.WordCount
	if wordCount == 0 {
		return nil, nil
	}

	tolerance := float64(wordCount) * d.config.WordCountTolerance
	minWords := wordCount - int(tolerance)
	maxWords := wordCount + int(tolerance)

	candidates, err := d.store.FindCandidates(ctx, record.Domain, minWords, maxWords, d.config.MaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("candidate search failed: %w", err)
	}

	// Candidates arrive newest-first; callers treat the first match as the
	// canonical record, which must be the earliest scraped
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ScrapedAt.Before(candidates[j].ScrapedAt)
	})

	recordWords := WordSet(record.ExtractedText)

	var matches []Match
	for _, candidate := range candidates {
		if _, ok := seen[candidate.ID]; ok {
			continue
		}
		// Marked duplicates resolve through their canonical record
		if candidate.ValidationStatus == store.ValidationDuplicate {
			continue
		}
		similarity := Jaccard(recordWords, WordSet(candidate.ExtractedText))
		if similarity >= d.config.SimilarityThreshold {
			seen[candidate.ID] = struct{}{}
			matches = append(matches, Match{
				RecordID:   candidate.ID,
				Similarity: similarity * 100,
				Method:     MethodJaccard,
			})
		}
	}
	return matches, nil
}

// MarkDuplicates persists a deduplication group and flips each duplicate's
// validation status. The canonical record is left untouched.
func (d *Deduplicator) MarkDuplicates(ctx context.Context, canonicalID string, duplicates []Match) error {
	if len(duplicates) == 0 {
		return nil
	}

	span := sentry.StartSpan(ctx, "dedup.mark_duplicates")
	defer span.Finish()
	span.SetTag("canonical_id", canonicalID)

	duplicateIDs := make([]string, 0, len(duplicates))
	method := duplicates[0].Method
	minSimilarity := duplicates[0].Similarity
	for _, match := range duplicates {
		duplicateIDs = append(duplicateIDs, match.RecordID)
		if match.Similarity < minSimilarity {
			minSimilarity = match.Similarity
		}
		if match.Method != method {
			method = MethodJaccard
		}
	}

	group := &store.DeduplicationGroup{
		CanonicalID:  canonicalID,
		DuplicateIDs: duplicateIDs,
		Method:       method,
		Similarity:   minSimilarity,
	}
	if err := d.store.SaveGroup(ctx, group); err != nil {
		span.SetTag("error", "true")
		return fmt.Errorf("failed to save dedup group: %w", err)
	}

	for _, id := range duplicateIDs {
		if err := d.store.MarkDuplicate(ctx, id, canonicalID); err != nil {
			log.Error().Err(err).
				Str("record_id", id).
				Str("canonical_id", canonicalID).
				Msg("Failed to mark record as duplicate")
			return fmt.Errorf("failed to mark duplicate %s: %w", id, err)
		}
	}

	log.Info().
		Str("canonical_id", canonicalID).
		Int("duplicates", len(duplicateIDs)).
		Str("method", method).
		Msg("Marked duplicate records")

	return nil
}

// CleanupDuplicates groups stored records by fingerprint, keeps the earliest
// of each group as canonical and marks the rest as duplicates. Per-record
// failures are counted, never abort the sweep.
func (d *Deduplicator) CleanupDuplicates(ctx context.Context, batchSize int) (*CleanupResult, error) {
	span := sentry.StartSpan(ctx, "dedup.cleanup_duplicates")
	defer span.Finish()

	if batchSize <= 0 {
		batchSize = 100
	}

	groups, err := d.store.ListFingerprintGroups(ctx, batchSize)
	if err != nil {
		span.SetTag("error", "true")
		sentry.CaptureException(err)
		return nil, fmt.Errorf("failed to list fingerprint groups: %w", err)
	}

	result := &CleanupResult{}
	for fingerprint, records := range groups {
		if len(records) < 2 {
			continue
		}

		unlock := d.lockFingerprint(fingerprint)
		// Records arrive ordered by scrape time; the earliest is canonical
		canonical := records[0]
		matches := make([]Match, 0, len(records)-1)
		for _, record := range records[1:] {
			if record.ValidationStatus == store.ValidationDuplicate {
				continue
			}
			matches = append(matches, Match{
				RecordID:   record.ID,
				Similarity: 100,
				Method:     MethodExactHash,
			})
		}

		if len(matches) > 0 {
			if err := d.MarkDuplicates(ctx, canonical.ID, matches); err != nil {
				log.Error().Err(err).
					Str("fingerprint", fingerprint).
					Msg("Failed to mark duplicates during cleanup")
				result.Errors++
				unlock()
				continue
			}
			result.DuplicatesMarked += len(matches)
		}
		d.fingerprints.Set(fingerprint, canonical.ID)
		result.GroupsProcessed++
		unlock()
	}

	log.Info().
		Int("groups_processed", result.GroupsProcessed).
		Int("duplicates_marked", result.DuplicatesMarked).
		Int("errors", result.Errors).
		Msg("Duplicate cleanup completed")

	return result, nil
}

// lockFingerprint acquires the per-fingerprint mutex and returns its unlock.
func (d *Deduplicator) lockFingerprint(fingerprint string) func() {
	d.locksMu.Lock()
	lock, ok := d.locks[fingerprint]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[fingerprint] = lock
	}
	d.locksMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

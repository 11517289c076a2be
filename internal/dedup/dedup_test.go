package dedup

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hivemind-works/pagepipe/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saveRecord(t *testing.T, s store.Store, record *store.DataRecord) string {
	t.Helper()
	id, err := s.Save(context.Background(), record)
	require.NoError(t, err)
	return id
}

func textRecord(domain, text string, scrapedAt time.Time) *store.DataRecord {
	return &store.DataRecord{
		SourceURL:     "https://" + domain + "/page",
		Domain:        domain,
		ExtractedText: text,
		Fingerprint:   Fingerprint(text),
		ScrapedAt:     scrapedAt,
		Stats:         store.ContentStats{WordCount: len(strings.Fields(text))},
	}
}

// countingStore counts fingerprint lookups hitting the backing store.
type countingStore struct {
	store.Store
	fingerprintLookups int
}

func (c *countingStore) FindByFingerprint(ctx context.Context, fingerprint string) ([]*store.DataRecord, error) {
	c.fingerprintLookups++
	return c.Store.FindByFingerprint(ctx, fingerprint)
}

func TestNew_RequiresStore(t *testing.T) {
	assert.PanicsWithValue(t, "record store is required", func() {
		New(nil, nil)
	})
}

func TestFindDuplicates_ExactMatch(t *testing.T) {
	s := store.NewMemoryStore()
	d := New(s, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	text := strings.Repeat("an article about bees and their habits in the garden ", 5)
	existingID := saveRecord(t, s, textRecord("example.com", text, now.Add(-time.Hour)))
	record := textRecord("example.com", text, now)
	record.ID = saveRecord(t, s, record)

	matches, err := d.FindDuplicates(ctx, record)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, existingID, matches[0].RecordID)
	assert.Equal(t, 100.0, matches[0].Similarity)
	assert.Equal(t, MethodExactHash, matches[0].Method)
}

func TestFindDuplicates_ExcludesSelf(t *testing.T) {
	s := store.NewMemoryStore()
	d := New(s, nil)

	text := strings.Repeat("some distinctive content for this record ", 5)
	record := textRecord("example.com", text, time.Now())
	record.ID = saveRecord(t, s, record)

	matches, err := d.FindDuplicates(context.Background(), record)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFindDuplicates_NearDuplicate(t *testing.T) {
	s := store.NewMemoryStore()
	d := New(s, nil)
	now := time.Now().UTC()

	// Build two long texts sharing most of their vocabulary
	var shared []string
	for i := 0; i < 95; i++ {
		shared = append(shared, fmt.Sprintf("word%03d", i))
	}
	textA := strings.Join(append(append([]string{}, shared...), "alpha", "beta", "gamma"), " ")
	textB := strings.Join(append(append([]string{}, shared...), "delta", "epsilon", "zeta"), " ")

	existingID := saveRecord(t, s, textRecord("news.example", textA, now.Add(-time.Hour)))
	record := textRecord("news.example", textB, now)
	record.ID = saveRecord(t, s, record)

	matches, err := d.FindDuplicates(context.Background(), record)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, existingID, matches[0].RecordID)
	assert.Equal(t, MethodJaccard, matches[0].Method)
	assert.GreaterOrEqual(t, matches[0].Similarity, 85.0)
	assert.Less(t, matches[0].Similarity, 100.0)
}

func TestFindDuplicates_CachesFingerprintLookups(t *testing.T) {
	s := &countingStore{Store: store.NewMemoryStore()}
	d := New(s, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	text := strings.Repeat("the very same press release mirrored on several pages ", 5)
	canonicalID := saveRecord(t, s, textRecord("example.com", text, now.Add(-2*time.Hour)))

	first := textRecord("example.com", text, now.Add(-time.Hour))
	first.ID = saveRecord(t, s, first)
	matches, err := d.FindDuplicates(ctx, first)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, canonicalID, matches[0].RecordID)
	assert.Equal(t, 1, s.fingerprintLookups)
	require.NoError(t, d.MarkDuplicates(ctx, canonicalID, []Match{
		{RecordID: first.ID, Similarity: 100, Method: MethodExactHash},
	}))

	// A later record with the same fingerprint resolves from the cache
	second := textRecord("example.com", text, now)
	second.ID = saveRecord(t, s, second)
	matches, err = d.FindDuplicates(ctx, second)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, canonicalID, matches[0].RecordID)
	assert.Equal(t, MethodExactHash, matches[0].Method)
	assert.Equal(t, 1, s.fingerprintLookups, "second lookup is served from the cache")
}

func TestFindDuplicates_NearDuplicateEarliestWins(t *testing.T) {
	s := store.NewMemoryStore()
	d := New(s, nil)
	now := time.Now().UTC()

	var shared []string
	for i := 0; i < 95; i++ {
		shared = append(shared, fmt.Sprintf("word%03d", i))
	}
	oldest := strings.Join(append(append([]string{}, shared...), "one", "two", "three"), " ")
	newer := strings.Join(append(append([]string{}, shared...), "four", "five", "six"), " ")
	probe := strings.Join(append(append([]string{}, shared...), "seven", "eight", "nine"), " ")

	oldestID := saveRecord(t, s, textRecord("news.example", oldest, now.Add(-3*time.Hour)))
	newerID := saveRecord(t, s, textRecord("news.example", newer, now.Add(-time.Hour)))

	record := textRecord("news.example", probe, now)
	record.ID = saveRecord(t, s, record)

	matches, err := d.FindDuplicates(context.Background(), record)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, oldestID, matches[0].RecordID, "earliest-scraped match comes first")
	assert.Equal(t, newerID, matches[1].RecordID)
}

func TestCleanupDuplicates_PrimesFingerprintCache(t *testing.T) {
	s := &countingStore{Store: store.NewMemoryStore()}
	d := New(s, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	text := strings.Repeat("swept content that keeps arriving from the same feed ", 4)
	canonicalID := saveRecord(t, s, textRecord("example.com", text, now.Add(-2*time.Hour)))
	saveRecord(t, s, textRecord("example.com", text, now.Add(-time.Hour)))

	_, err := d.CleanupDuplicates(ctx, 100)
	require.NoError(t, err)

	record := textRecord("example.com", text, now)
	record.ID = saveRecord(t, s, record)
	matches, err := d.FindDuplicates(ctx, record)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, canonicalID, matches[0].RecordID)
	assert.Equal(t, 0, s.fingerprintLookups, "cleanup primes the fingerprint cache")
}

func TestFindDuplicates_DifferentDomainNotCandidates(t *testing.T) {
	s := store.NewMemoryStore()
	d := New(s, nil)
	now := time.Now().UTC()

	text := strings.Repeat("identical content spread across different publishers every day ", 10)
	other := textRecord("other.example", text, now.Add(-time.Hour))
	other.Fingerprint = "forced-different-fingerprint"
	saveRecord(t, s, other)

	record := textRecord("news.example", text, now)
	record.ID = saveRecord(t, s, record)

	matches, err := d.FindDuplicates(context.Background(), record)
	require.NoError(t, err)
	assert.Empty(t, matches, "near-duplicate search is scoped to the record's domain")
}

func TestFindDuplicates_ShortTextSkipsNearSearch(t *testing.T) {
	s := store.NewMemoryStore()
	d := New(s, nil)
	now := time.Now().UTC()

	text := "short text under the threshold"
	other := textRecord("example.com", text, now.Add(-time.Hour))
	other.Fingerprint = "different-fingerprint"
	saveRecord(t, s, other)

	record := textRecord("example.com", text, now)
	record.ID = saveRecord(t, s, record)

	matches, err := d.FindDuplicates(context.Background(), record)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMarkDuplicates(t *testing.T) {
	s := store.NewMemoryStore()
	d := New(s, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	text := strings.Repeat("the same story published twice by the same site ", 5)
	canonicalID := saveRecord(t, s, textRecord("example.com", text, now.Add(-time.Hour)))
	duplicateID := saveRecord(t, s, textRecord("example.com", text, now))

	err := d.MarkDuplicates(ctx, canonicalID, []Match{
		{RecordID: duplicateID, Similarity: 100, Method: MethodExactHash},
	})
	require.NoError(t, err)

	duplicate, err := s.Get(ctx, duplicateID)
	require.NoError(t, err)
	assert.Equal(t, store.ValidationDuplicate, duplicate.ValidationStatus)

	canonical, err := s.Get(ctx, canonicalID)
	require.NoError(t, err)
	assert.NotEqual(t, store.ValidationDuplicate, canonical.ValidationStatus, "canonical record is left untouched")

	groups := s.Groups()
	require.Len(t, groups, 1)
	assert.Equal(t, canonicalID, groups[0].CanonicalID)
	assert.Equal(t, []string{duplicateID}, groups[0].DuplicateIDs)
}

func TestMarkDuplicates_EmptyIsNoop(t *testing.T) {
	s := store.NewMemoryStore()
	d := New(s, nil)
	require.NoError(t, d.MarkDuplicates(context.Background(), "whatever", nil))
	assert.Empty(t, s.Groups())
}

func TestCleanupDuplicates(t *testing.T) {
	s := store.NewMemoryStore()
	d := New(s, nil)
	ctx := context.Background()
	base := time.Now().UTC()

	text := strings.Repeat("housekeeping sweep content repeated in several records ", 4)
	earliestID := saveRecord(t, s, textRecord("example.com", text, base.Add(-3*time.Hour)))
	laterID1 := saveRecord(t, s, textRecord("example.com", text, base.Add(-2*time.Hour)))
	laterID2 := saveRecord(t, s, textRecord("example.com", text, base.Add(-time.Hour)))

	// Unrelated record stays alone
	saveRecord(t, s, textRecord("example.com", "something else entirely in this one", base))

	result, err := d.CleanupDuplicates(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, result.GroupsProcessed)
	assert.Equal(t, 2, result.DuplicatesMarked)
	assert.Equal(t, 0, result.Errors)

	canonical, err := s.Get(ctx, earliestID)
	require.NoError(t, err)
	assert.NotEqual(t, store.ValidationDuplicate, canonical.ValidationStatus)

	for _, id := range []string{laterID1, laterID2} {
		record, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, store.ValidationDuplicate, record.ValidationStatus)
	}
}

func TestCleanupDuplicates_SecondSweepIsIdempotent(t *testing.T) {
	s := store.NewMemoryStore()
	d := New(s, nil)
	ctx := context.Background()
	base := time.Now().UTC()

	text := strings.Repeat("repeated content for the idempotency check ", 4)
	saveRecord(t, s, textRecord("example.com", text, base.Add(-2*time.Hour)))
	saveRecord(t, s, textRecord("example.com", text, base.Add(-time.Hour)))

	first, err := d.CleanupDuplicates(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, first.DuplicatesMarked)

	second, err := d.CleanupDuplicates(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, second.DuplicatesMarked, "already-marked duplicates are not re-marked")
}

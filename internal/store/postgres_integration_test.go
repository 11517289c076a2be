package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivemind-works/pagepipe/internal/testutil"
)

// TestPostgresStore_Roundtrip exercises the real database path. It is
// skipped unless DATABASE_URL (or TEST_DATABASE_URL in .env.test) is set.
func TestPostgresStore_Roundtrip(t *testing.T) {
	testutil.LoadTestEnv(t)
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	s, err := InitFromEnv()
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	record := &DataRecord{
		SourceURL:     "https://integration.example/page",
		Domain:        "integration.example",
		Title:         "Integration fixture",
		ExtractedText: "a body of text persisted and read back through the live database",
		DataType:      DataTypeArticle,
		Fingerprint:   "integration-fixture-fingerprint",
		ScrapedAt:     time.Now().UTC(),
		Stats:         ContentStats{WordCount: 12},
	}

	id, err := s.Save(ctx, record)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	loaded, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, record.SourceURL, loaded.SourceURL)
	assert.Equal(t, record.Fingerprint, loaded.Fingerprint)

	matches, err := s.FindByFingerprint(ctx, record.Fingerprint)
	require.NoError(t, err)
	assert.NotEmpty(t, matches)

	require.NoError(t, s.UpdateValidation(ctx, id, ValidationValid, ""))
	require.NoError(t, s.UpdateQuality(ctx, id, 88, 75))

	loaded, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ValidationValid, loaded.ValidationStatus)
	assert.Equal(t, 88.0, loaded.QualityScore)
}

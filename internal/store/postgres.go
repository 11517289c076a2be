package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
)

// PostgresStore is a Store implementation backed by PostgreSQL
type PostgresStore struct {
	client *sql.DB
	config *Config
}

// Config holds PostgreSQL connection configuration
type Config struct {
	Host         string        // Database host
	Port         string        // Database port
	User         string        // Database user
	Password     string        // Database password
	Database     string        // Database name
	SSLMode      string        // SSL mode (disable, require, verify-ca, verify-full)
	MaxIdleConns int           // Maximum number of idle connections
	MaxOpenConns int           // Maximum number of open connections
	MaxLifetime  time.Duration // Maximum lifetime of a connection
	DatabaseURL  string        // Original DATABASE_URL if used
}

// ConnectionString returns the PostgreSQL connection string
func (c *Config) ConnectionString() string {
	// If we have a DatabaseURL, use it directly
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// NewPostgres creates a new PostgreSQL-backed store
func NewPostgres(config *Config) (*PostgresStore, error) {
	if config.DatabaseURL == "" {
		if config.Host == "" {
			return nil, fmt.Errorf("database host is required")
		}
		if config.User == "" {
			return nil, fmt.Errorf("database user is required")
		}
		if config.Database == "" {
			return nil, fmt.Errorf("database name is required")
		}
		if config.Port == "" {
			config.Port = "5432"
		}
		if config.SSLMode == "" {
			config.SSLMode = "disable"
		}
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 10
	}
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 25
	}
	if config.MaxLifetime == 0 {
		config.MaxLifetime = 20 * time.Minute
	}

	client, err := sql.Open("pgx", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	client.SetMaxOpenConns(config.MaxOpenConns)
	client.SetMaxIdleConns(config.MaxIdleConns)
	client.SetConnMaxLifetime(config.MaxLifetime)

	if err := client.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	if err := setupSchema(client); err != nil {
		return nil, fmt.Errorf("failed to setup schema: %w", err)
	}

	return &PostgresStore{client: client, config: config}, nil
}

// InitFromEnv creates a PostgreSQL store using the DATABASE_URL environment variable
func InitFromEnv() (*PostgresStore, error) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	return NewPostgres(&Config{DatabaseURL: url})
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.client.Close()
}

// setupSchema creates the records and dedup_groups tables with the indexes
// the candidate and fingerprint queries depend on
func setupSchema(client *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			job_id TEXT,
			source_url TEXT NOT NULL,
			domain TEXT NOT NULL,
			title TEXT,
			summary TEXT,
			extracted_text TEXT,
			raw_data TEXT,
			processed_data JSONB,
			data_type TEXT,
			language TEXT,
			category TEXT,
			fingerprint TEXT NOT NULL,
			scraped_at TIMESTAMPTZ NOT NULL,
			ingested_at TIMESTAMPTZ NOT NULL,
			published_at TIMESTAMPTZ,
			quality_score DOUBLE PRECISION DEFAULT 0,
			completeness_score DOUBLE PRECISION DEFAULT 0,
			validation_status TEXT NOT NULL DEFAULT 'pending',
			validation_notes TEXT,
			word_count INTEGER DEFAULT 0,
			link_count INTEGER DEFAULT 0,
			image_count INTEGER DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_records_fingerprint ON records(fingerprint);
		CREATE INDEX IF NOT EXISTS idx_records_domain_words ON records(domain, word_count);
		CREATE INDEX IF NOT EXISTS idx_records_data_type ON records(data_type);
		CREATE INDEX IF NOT EXISTS idx_records_quality ON records(quality_score);

		CREATE TABLE IF NOT EXISTS dedup_groups (
			id TEXT PRIMARY KEY,
			canonical_id TEXT NOT NULL,
			duplicate_ids JSONB NOT NULL,
			method TEXT NOT NULL,
			similarity DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_dedup_groups_canonical ON dedup_groups(canonical_id);
	`
	if _, err := client.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	log.Debug().Msg("Store schema initialised")
	return nil
}

const recordColumns = `id, job_id, source_url, domain, title, summary, extracted_text, raw_data,
	processed_data, data_type, language, category, fingerprint, scraped_at, ingested_at,
	published_at, quality_score, completeness_score, validation_status, validation_notes,
	word_count, link_count, image_count`

func (s *PostgresStore) Save(ctx context.Context, record *DataRecord) (string, error) {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.IngestedAt.IsZero() {
		record.IngestedAt = time.Now().UTC()
	}
	if record.ValidationStatus == "" {
		record.ValidationStatus = ValidationPending
	}

	processed, err := json.Marshal(record.ProcessedData)
	if err != nil {
		return "", fmt.Errorf("failed to serialise processed data: %w", err)
	}

	_, err = s.client.ExecContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`,
		record.ID, nullable(record.JobID), record.SourceURL, record.Domain,
		nullable(record.Title), nullable(record.Summary), nullable(record.ExtractedText), nullable(record.RawData),
		processed, nullable(record.DataType), nullable(record.Language), nullable(record.Category),
		record.Fingerprint, record.ScrapedAt, record.IngestedAt, record.PublishedAt,
		record.QualityScore, record.CompletenessScore, string(record.ValidationStatus),
		nullable(record.ValidationNotes),
		record.Stats.WordCount, record.Stats.LinkCount, record.Stats.ImageCount,
	)
	if err != nil {
		return "", fmt.Errorf("failed to save record: %w", err)
	}
	return record.ID, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*DataRecord, error) {
	row := s.client.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = $1`, id)
	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) FindByFingerprint(ctx context.Context, fingerprint string) ([]*DataRecord, error) {
	rows, err := s.client.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE fingerprint = $1
		ORDER BY scraped_at ASC
	`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to query by fingerprint: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *PostgresStore) FindCandidates(ctx context.Context, domain string, minWords, maxWords, limit int) ([]*DataRecord, error) {
	rows, err := s.client.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE domain = $1 AND word_count BETWEEN $2 AND $3
		ORDER BY scraped_at DESC
		LIMIT $4
	`, domain, minWords, maxWords, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *PostgresStore) UpdateValidation(ctx context.Context, id string, status ValidationStatus, notes string) error {
	result, err := s.client.ExecContext(ctx, `
		UPDATE records SET validation_status = $1, validation_notes = $2 WHERE id = $3
	`, string(status), nullable(notes), id)
	if err != nil {
		return fmt.Errorf("failed to update validation status: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) MarkDuplicate(ctx context.Context, id, canonicalID string) error {
	result, err := s.client.ExecContext(ctx, `
		UPDATE records SET validation_status = $1, validation_notes = $2 WHERE id = $3
	`, string(ValidationDuplicate), "duplicate of "+canonicalID, id)
	if err != nil {
		return fmt.Errorf("failed to mark record as duplicate: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) SaveGroup(ctx context.Context, group *DeduplicationGroup) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}

	duplicates, err := json.Marshal(group.DuplicateIDs)
	if err != nil {
		return fmt.Errorf("failed to serialise duplicate ids: %w", err)
	}

	_, err = s.client.ExecContext(ctx, `
		INSERT INTO dedup_groups (id, canonical_id, duplicate_ids, method, similarity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, group.ID, group.CanonicalID, duplicates, group.Method, group.Similarity, group.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save dedup group: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFingerprintGroups(ctx context.Context, batchSize int) (map[string][]*DataRecord, error) {
	rows, err := s.client.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE fingerprint IN (
			SELECT fingerprint FROM records
			GROUP BY fingerprint
			HAVING COUNT(*) > 1
			LIMIT $1
		)
		ORDER BY fingerprint, scraped_at ASC
	`, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprint groups: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]*DataRecord)
	for _, record := range records {
		groups[record.Fingerprint] = append(groups[record.Fingerprint], record)
	}
	return groups, nil
}

func (s *PostgresStore) UpdateQuality(ctx context.Context, id string, quality, completeness float64) error {
	result, err := s.client.ExecContext(ctx, `
		UPDATE records SET quality_score = $1, completeness_score = $2 WHERE id = $3
	`, quality, completeness, id)
	if err != nil {
		return fmt.Errorf("failed to update quality scores: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*DataRecord, error) {
	rows, err := s.client.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM records
		ORDER BY ingested_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*DataRecord, error) {
	var record DataRecord
	var jobID, title, summary, text, raw, dataType, language, category, notes sql.NullString
	var processed []byte
	var publishedAt sql.NullTime
	var status string

	err := row.Scan(
		&record.ID, &jobID, &record.SourceURL, &record.Domain,
		&title, &summary, &text, &raw,
		&processed, &dataType, &language, &category,
		&record.Fingerprint, &record.ScrapedAt, &record.IngestedAt, &publishedAt,
		&record.QualityScore, &record.CompletenessScore, &status, &notes,
		&record.Stats.WordCount, &record.Stats.LinkCount, &record.Stats.ImageCount,
	)
	if err != nil {
		return nil, err
	}

	record.JobID = jobID.String
	record.Title = title.String
	record.Summary = summary.String
	record.ExtractedText = text.String
	record.RawData = raw.String
	record.DataType = dataType.String
	record.Language = language.String
	record.Category = category.String
	record.ValidationStatus = ValidationStatus(status)
	record.ValidationNotes = notes.String
	if publishedAt.Valid {
		record.PublishedAt = &publishedAt.Time
	}
	if len(processed) > 0 {
		if err := json.Unmarshal(processed, &record.ProcessedData); err != nil {
			return nil, fmt.Errorf("failed to parse processed data: %w", err)
		}
	}
	return &record, nil
}

func scanRecords(rows *sql.Rows) ([]*DataRecord, error) {
	var records []*DataRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

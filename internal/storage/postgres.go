package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	-- Resolution log
	CREATE TABLE IF NOT EXISTS lookups (
		id UUID PRIMARY KEY,
		code_hash TEXT NOT NULL,
		network TEXT NOT NULL,
		verifier TEXT NOT NULL,
		status TEXT NOT NULL,
		record_address TEXT,
		manifest_uri TEXT,
		file_count INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	-- API keys
	CREATE TABLE IF NOT EXISTS api_keys (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		last_used_at TIMESTAMPTZ,
		revoked_at TIMESTAMPTZ
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_lookups_created ON lookups(created_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_lookups_code_hash ON lookups(code_hash);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations complete")
	return nil
}

// RecordLookup appends a resolution to the log. ID and CreatedAt are
// filled in when empty.
func (s *PostgresStore) RecordLookup(ctx context.Context, l *Lookup) error {
	if l.ID == "" {
		l.ID = generateID()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	l.CreatedAt = l.CreatedAt.UTC().Truncate(time.Microsecond)

	query := `
		INSERT INTO lookups (id, code_hash, network, verifier, status, record_address, manifest_uri, file_count, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		l.ID, l.CodeHash, l.Network, l.Verifier, l.Status,
		l.RecordAddress, l.ManifestURI, l.FileCount, l.Error, l.CreatedAt,
	)
	return err
}

// ListLookups lists logged resolutions, newest first
func (s *PostgresStore) ListLookups(ctx context.Context, filter LookupFilter, pagination PaginationParams) (*PaginatedResult[Lookup], error) {
	limit := normalizeLimit(pagination.Limit)

	var cur *lookupCursor
	if pagination.Cursor != "" {
		c, err := decodeCursor(pagination.Cursor)
		if err != nil {
			return nil, err
		}
		cur = &c
	}

	where, args := lookupWhere(filter, cur,
		func(n int) string { return "$" + strconv.Itoa(n) },
		func(t time.Time) any { return t },
	)
	args = append(args, limit+1)
	query := `
		SELECT id, code_hash, network, verifier, status, record_address, manifest_uri, file_count, error, created_at
		FROM lookups` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lookups []Lookup
	for rows.Next() {
		var l Lookup
		var recordAddr, manifestURI, errMsg sql.NullString
		if err := rows.Scan(&l.ID, &l.CodeHash, &l.Network, &l.Verifier, &l.Status, &recordAddr, &manifestURI, &l.FileCount, &errMsg, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.RecordAddress = recordAddr.String
		l.ManifestURI = manifestURI.String
		l.Error = errMsg.String
		l.CreatedAt = l.CreatedAt.UTC()
		lookups = append(lookups, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return page(lookups, limit), nil
}

// PruneLookups deletes log entries created before olderThan
func (s *PostgresStore) PruneLookups(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM lookups WHERE created_at < $1", olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CreateAPIKey creates a new API key
func (s *PostgresStore) CreateAPIKey(ctx context.Context, name string) (string, error) {
	key := generateAPIKey()
	hash := hashAPIKey(key)
	id := generateID()
	_, err := s.db.ExecContext(ctx, "INSERT INTO api_keys (id, key_hash, name) VALUES ($1, $2, $3)", id, hash, name)
	if err != nil {
		return "", err
	}
	return key, nil
}

// ValidateAPIKey validates an API key
func (s *PostgresStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	hash := hashAPIKey(key)
	var ak APIKey
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, "SELECT id, key_hash, name, created_at FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL", hash).Scan(
		&ak.ID, &ak.KeyHash, &ak.Name, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ak.CreatedAt = createdAt.Format("2006-01-02 15:04:05")
	// Update last used
	_, _ = s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = NOW() WHERE id = $1", ak.ID)
	return &ak, nil
}

// ListAPIKeys lists all API keys
func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at, last_used_at FROM api_keys WHERE revoked_at IS NULL ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		var createdAt time.Time
		var lastUsed sql.NullTime
		if err := rows.Scan(&k.ID, &k.Name, &createdAt, &lastUsed); err != nil {
			return nil, err
		}
		k.CreatedAt = createdAt.Format("2006-01-02 15:04:05")
		if lastUsed.Valid {
			k.LastUsedAt = lastUsed.Time.Format("2006-01-02 15:04:05")
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey revokes an API key
func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE api_keys SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

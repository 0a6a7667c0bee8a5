package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	-- Resolution log
	CREATE TABLE IF NOT EXISTS lookups (
		id TEXT PRIMARY KEY,
		code_hash TEXT NOT NULL,
		network TEXT NOT NULL,
		verifier TEXT NOT NULL,
		status TEXT NOT NULL,
		record_address TEXT,
		manifest_uri TEXT,
		file_count INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		created_at TEXT NOT NULL
	);

	-- API keys
	CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at TEXT DEFAULT (datetime('now')),
		last_used_at TEXT,
		revoked_at TEXT
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
func (s *SQLiteStore) RecordLookup(ctx context.Context, l *Lookup) error {
	if l.ID == "" {
		l.ID = generateID()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	l.CreatedAt = l.CreatedAt.UTC().Truncate(time.Microsecond)

	query := `
		INSERT INTO lookups (id, code_hash, network, verifier, status, record_address, manifest_uri, file_count, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		l.ID, l.CodeHash, l.Network, l.Verifier, l.Status,
		l.RecordAddress, l.ManifestURI, l.FileCount, l.Error,
		l.CreatedAt.Format(sqliteTimeLayout),
	)
	return err
}

// ListLookups lists logged resolutions, newest first
func (s *SQLiteStore) ListLookups(ctx context.Context, filter LookupFilter, pagination PaginationParams) (*PaginatedResult[Lookup], error) {
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
		func(int) string { return "?" },
		func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) },
	)
	query := `
		SELECT id, code_hash, network, verifier, status, record_address, manifest_uri, file_count, error, created_at
		FROM lookups` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lookups []Lookup
	for rows.Next() {
		var l Lookup
		var recordAddr, manifestURI, errMsg sql.NullString
		var createdAt string
		if err := rows.Scan(&l.ID, &l.CodeHash, &l.Network, &l.Verifier, &l.Status, &recordAddr, &manifestURI, &l.FileCount, &errMsg, &createdAt); err != nil {
			return nil, err
		}
		l.RecordAddress = recordAddr.String
		l.ManifestURI = manifestURI.String
		l.Error = errMsg.String
		if l.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at of lookup %s: %w", l.ID, err)
		}
		lookups = append(lookups, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return page(lookups, limit), nil
}

// PruneLookups deletes log entries created before olderThan
func (s *SQLiteStore) PruneLookups(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM lookups WHERE created_at < ?", olderThan.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CreateAPIKey creates a new API key
func (s *SQLiteStore) CreateAPIKey(ctx context.Context, name string) (string, error) {
	key := generateAPIKey()
	hash := hashAPIKey(key)
	id := generateID()
	_, err := s.db.ExecContext(ctx, "INSERT INTO api_keys (id, key_hash, name, created_at) VALUES (?, ?, ?, datetime('now'))", id, hash, name)
	if err != nil {
		return "", err
	}
	return key, nil
}

// ValidateAPIKey validates an API key
func (s *SQLiteStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	hash := hashAPIKey(key)
	var ak APIKey
	err := s.db.QueryRowContext(ctx, "SELECT id, key_hash, name, created_at FROM api_keys WHERE key_hash = ? AND revoked_at IS NULL", hash).Scan(
		&ak.ID, &ak.KeyHash, &ak.Name, &ak.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	// Update last used
	_, _ = s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = datetime('now') WHERE id = ?", ak.ID)
	return &ak, nil
}

// ListAPIKeys lists all API keys
func (s *SQLiteStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at, last_used_at FROM api_keys WHERE revoked_at IS NULL ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		var lastUsed sql.NullString
		if err := rows.Scan(&k.ID, &k.Name, &k.CreatedAt, &lastUsed); err != nil {
			return nil, err
		}
		if lastUsed.Valid {
			k.LastUsedAt = lastUsed.String
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey revokes an API key
func (s *SQLiteStore) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE api_keys SET revoked_at = datetime('now') WHERE id = ? AND revoked_at IS NULL", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

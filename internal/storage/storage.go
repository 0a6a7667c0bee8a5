package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pendergraft/verisource/internal/config"
)

// LookupStore keeps the log of source resolutions. The log is an audit
// trail only; resolutions never read it back.
type LookupStore interface {
	RecordLookup(ctx context.Context, l *Lookup) error
	ListLookups(ctx context.Context, filter LookupFilter, pagination PaginationParams) (*PaginatedResult[Lookup], error)
	PruneLookups(ctx context.Context, olderThan time.Time) (int64, error)
}

// APIKeyStore handles API key operations
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, name string) (key string, err error)
	ValidateAPIKey(ctx context.Context, key string) (*APIKey, error)
	ListAPIKeys(ctx context.Context) ([]APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
}

// Store combines all storage interfaces with lifecycle methods.
// Domain services define their own minimal interfaces based on their actual usage.
type Store interface {
	LookupStore
	APIKeyStore

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
}

// Lookup outcomes.
const (
	LookupFound    = "found"
	LookupNotFound = "not_found"
	LookupFailed   = "failed"
)

// Lookup is one recorded resolution.
type Lookup struct {
	ID            string
	CodeHash      string // hex
	Network       string
	Verifier      string
	Status        string
	RecordAddress string
	ManifestURI   string
	FileCount     int
	Error         string
	CreatedAt     time.Time
}

// APIKey represents an API key
type APIKey struct {
	ID         string
	Name       string
	KeyHash    string
	CreatedAt  string
	LastUsedAt string
	RevokedAt  string
}

// LookupFilter contains filter options for listing lookups
type LookupFilter struct {
	Status   string
	Network  string
	CodeHash string
}

// PaginationParams contains pagination options
type PaginationParams struct {
	Limit  int
	Cursor string
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data       []T
	HasMore    bool
	NextCursor string
}

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

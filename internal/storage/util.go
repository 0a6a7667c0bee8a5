package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// APIKeyPrefix marks keys issued by this server.
const APIKeyPrefix = "vs_key_"

// sqliteTimeLayout sorts lexically in the same order as the times it encodes.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z"

// generateID generates a new UUID
func generateID() string {
	return uuid.New().String()
}

// generateAPIKey generates a new API key
func generateAPIKey() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return APIKeyPrefix + hex.EncodeToString(b)
}

// hashAPIKey hashes an API key for storage
func hashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// lookupCursor is the position after the last row of a page: lookups are
// listed newest first, ties broken by id.
type lookupCursor struct {
	CreatedAt time.Time
	ID        string
}

func encodeCursor(c lookupCursor) string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (lookupCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return lookupCursor{}, ErrInvalidCursor
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return lookupCursor{}, ErrInvalidCursor
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return lookupCursor{}, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}
	return lookupCursor{CreatedAt: t, ID: id}, nil
}

// page trims a limit+1 result set and computes the next cursor.
func page(lookups []Lookup, limit int) *PaginatedResult[Lookup] {
	hasMore := len(lookups) > limit
	if hasMore {
		lookups = lookups[:limit]
	}
	var next string
	if hasMore && len(lookups) > 0 {
		last := lookups[len(lookups)-1]
		next = encodeCursor(lookupCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return &PaginatedResult[Lookup]{Data: lookups, HasMore: hasMore, NextCursor: next}
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 500:
		return 500
	}
	return limit
}

// lookupWhere builds the WHERE clause for ListLookups. bind renders the
// n-th placeholder and ts converts a time to the driver's column value.
func lookupWhere(filter LookupFilter, cur *lookupCursor, bind func(n int) string, ts func(time.Time) any) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, vals ...any) {
		for _, v := range vals {
			args = append(args, v)
			cond = strings.Replace(cond, "?", bind(len(args)), 1)
		}
		conds = append(conds, cond)
	}

	if filter.Status != "" {
		add("status = ?", filter.Status)
	}
	if filter.Network != "" {
		add("network = ?", filter.Network)
	}
	if filter.CodeHash != "" {
		add("code_hash = ?", filter.CodeHash)
	}
	if cur != nil {
		t := ts(cur.CreatedAt)
		add("(created_at < ? OR (created_at = ? AND id < ?))", t, t, cur.ID)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

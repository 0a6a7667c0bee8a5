// Package auth provides API key authentication for the HTTP API.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/pendergraft/verisource/internal/storage"
)

// KeyValidator looks up API keys. storage.APIKeyStore satisfies it.
type KeyValidator interface {
	ValidateAPIKey(ctx context.Context, key string) (*storage.APIKey, error)
}

// ErrorWriter writes an error response in the API's error format.
type ErrorWriter func(w http.ResponseWriter, status int, code, message string)

// Context key type for avoiding collisions
type contextKey string

const apiKeyContextKey contextKey = "apiKey"

// GetAPIKeyFromContext retrieves the API key info from context.
func GetAPIKeyFromContext(ctx context.Context) *storage.APIKey {
	if key, ok := ctx.Value(apiKeyContextKey).(*storage.APIKey); ok {
		return key
	}
	return nil
}

// KeyIDFromContext returns the id of the authenticated key, or "".
func KeyIDFromContext(ctx context.Context) string {
	if key := GetAPIKeyFromContext(ctx); key != nil {
		return key.ID
	}
	return ""
}

// KeyFromRequest returns the key sent in X-API-Key or as a bearer token.
func KeyFromRequest(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// Middleware returns an HTTP middleware that rejects requests without a
// valid API key.
func Middleware(store KeyValidator, writeError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := KeyFromRequest(r)
			if apiKey == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key required")
				return
			}

			key, err := store.ValidateAPIKey(r.Context(), apiKey)
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key")
				return
			}
			if err != nil {
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not validate API key")
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyContextKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

//go:build e2e

package e2e

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/verisource/pkg/client"
)

// TestAuth_PublicSources tests that resolution works without authentication
func TestAuth_PublicSources(t *testing.T) {
	codeHash := publishSources(t, "authpub",
		SourceFile{Name: "main.fc", Content: ";; main", IsEntrypoint: true},
	)
	c := newClient(testCtx.TestServer, "")

	t.Run("get sources without auth", func(t *testing.T) {
		src, err := c.GetSources(context.Background(), codeHash, client.ResolveOptions{})
		require.NoError(t, err)
		assert.Equal(t, codeHash, src.CodeHash)
	})

	t.Run("get manifest pointer without auth", func(t *testing.T) {
		p, err := c.GetManifestURI(context.Background(), codeHash, client.ResolveOptions{})
		require.NoError(t, err)
		assert.Equal(t, "ipfs://Qmauthpubmanifest", p.ManifestURI)
	})
}

// TestAuth_LookupsRequireKey tests that the resolution log is protected
func TestAuth_LookupsRequireKey(t *testing.T) {
	t.Run("no key", func(t *testing.T) {
		_, err := newClient(testCtx.TestServer, "").ListLookups(context.Background(), client.LookupsQuery{})
		assertHTTPError(t, err, "UNAUTHORIZED")
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := newClient(testCtx.TestServer, "vs_key_doesnotexist").ListLookups(context.Background(), client.LookupsQuery{})
		assertHTTPError(t, err, "UNAUTHORIZED")
	})

	t.Run("valid key via X-API-Key", func(t *testing.T) {
		apiKey := createTestAPIKey(t, testCtx.Store, "test-lookups")
		_, err := newClient(testCtx.TestServer, apiKey).ListLookups(context.Background(), client.LookupsQuery{Limit: 1})
		require.NoError(t, err)
	})

	t.Run("valid key via bearer token", func(t *testing.T) {
		apiKey := createTestAPIKey(t, testCtx.Store, "test-bearer")
		resp := get(t, "/api/v1/lookups?limit=1", "Authorization", "Bearer "+apiKey)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

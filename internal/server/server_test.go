package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/verisource/internal/chains"
	"github.com/pendergraft/verisource/internal/chains/ton"
	"github.com/pendergraft/verisource/internal/chains/ton/tontest"
	"github.com/pendergraft/verisource/internal/config"
	"github.com/pendergraft/verisource/internal/observability/metrics"
	"github.com/pendergraft/verisource/internal/storage"
	"github.com/pendergraft/verisource/internal/validation"
)

const sampleHash = "/rX/aCDi/w2Ug+fg1iyBfYRniftK5YDIeIZtlZ2r1cA="

type testEnv struct {
	server *httptest.Server
	node   *tontest.Node
	store  storage.Store
}

func newTestEnv(t *testing.T, authType string) *testEnv {
	t.Helper()
	metrics.Init(true)

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ipfs/Qmabc":
			fmt.Fprint(w, `{"sources":[{"url":"ipfs://QmA","filename":"A.fc"},{"url":"ipfs://QmB","filename":"B.fc","isEntrypoint":true}],"compiler":"tact","compilerSettings":{"tactVersion":"1.4.0"},"verificationDate":1682935200000}`)
		case "/ipfs/QmA":
			fmt.Fprint(w, "A")
		case "/ipfs/QmB":
			fmt.Fprint(w, "B")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(gateway.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { store.Close() })

	node := tontest.New()
	registry := chains.NewRegistry()
	registry.Register(ton.NewChain(ton.NetworkConfig{Network: ton.Mainnet, Registry: tontest.Registry}, node))

	cfg := &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5},
		Auth:   config.AuthConfig{Type: authType},
		TON:    config.TONConfig{DefaultNetwork: "mainnet", VerifierID: config.DefaultVerifierID},
		IPFS: config.IPFSConfig{
			GatewayMode:    "path",
			MainnetGateway: gateway.URL + "/ipfs/",
			TestnetGateway: gateway.URL + "/testnet/",
		},
	}

	srv := New(cfg, store, registry, logger)
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, node: node, store: store}
}

func (e *testEnv) get(t *testing.T, path string, header ...string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.server.URL+path, nil)
	require.NoError(t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 && data[0] == '{' {
		require.NoError(t, json.Unmarshal(data, &body))
	}
	return resp, body
}

func TestServer_ResolveSources(t *testing.T) {
	env := newTestEnv(t, "none")
	hash, err := validation.ParseCodeHash(sampleHash)
	require.NoError(t, err)
	env.node.Publish(config.DefaultVerifierID, hash, "ipfs://Qmabc")

	resp, body := env.get(t, "/api/v1/sources/"+url.PathEscape(sampleHash))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Contains(t, body["ipfsHttpLink"], "/ipfs/Qmabc")
	assert.Equal(t, "tact", body["compiler"])
	assert.Equal(t, "1.4.0", body["compilerVersion"])
	files := body["files"].([]any)
	require.Len(t, files, 2)
	assert.Equal(t, "B.fc", files[0].(map[string]any)["name"])
	assert.Equal(t, "A.fc", files[1].(map[string]any)["name"])

	resp, body = env.get(t, "/api/v1/sources/"+url.PathEscape(sampleHash)+"/manifest")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ipfs://Qmabc", body["manifestUri"])

	resp, body = env.get(t, "/api/v1/lookups?status=found")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"].([]any), 2)
}

func TestServer_NoSource(t *testing.T) {
	env := newTestEnv(t, "none")

	resp, body := env.get(t, "/api/v1/sources/"+url.PathEscape(sampleHash))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NO_VERIFIED_SOURCE", body["error"].(map[string]any)["code"])

	resp, _ = env.get(t, "/api/v1/sources/not-a-hash")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.get(t, "/api/v1/sources/"+url.PathEscape(sampleHash)+"?network=testnet")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_LookupsRequireKey(t *testing.T) {
	env := newTestEnv(t, "api-key")

	resp, _ := env.get(t, "/api/v1/lookups")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	key, err := env.store.CreateAPIKey(context.Background(), "ops")
	require.NoError(t, err)

	resp, _ = env.get(t, "/api/v1/lookups", "X-API-Key", key)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Sources stay public.
	resp, _ = env.get(t, "/api/v1/sources/"+url.PathEscape(sampleHash))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t, "none")

	resp, body := env.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, body = env.get(t, "/readyz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"mainnet"}, body["networks"])

	resp, _ = env.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_CORSPreflight(t *testing.T) {
	env := newTestEnv(t, "none")

	req, err := http.NewRequest(http.MethodOptions, env.server.URL+"/api/v1/sources/x", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

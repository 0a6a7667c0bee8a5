//go:build e2e

package e2e

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pendergraft/verisource/internal/chains"
	"github.com/pendergraft/verisource/internal/chains/ton"
	"github.com/pendergraft/verisource/internal/chains/ton/tontest"
	"github.com/pendergraft/verisource/internal/config"
	"github.com/pendergraft/verisource/internal/server"
	"github.com/pendergraft/verisource/internal/storage"
	"github.com/pendergraft/verisource/internal/validation"
	"github.com/pendergraft/verisource/pkg/client"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
	Gateway           *Gateway
	Node              *tontest.Node
	TestServer        *httptest.Server
	Store             storage.Store
}

// Gateway is an IPFS path gateway serving documents published by tests.
type Gateway struct {
	*httptest.Server
	mu   sync.Mutex
	docs map[string]string
}

func newGateway() *Gateway {
	g := &Gateway{docs: make(map[string]string)}
	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		doc, ok := g.docs[r.URL.Path]
		g.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, doc)
	}))
	return g
}

// Put serves content at /ipfs/<cid>.
func (g *Gateway) Put(cid, content string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.docs["/ipfs/"+cid] = content
}

// Remove stops serving /ipfs/<cid>.
func (g *Gateway) Remove(cid string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.docs, "/ipfs/"+cid)
}

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("verisource"),
		postgres.WithUsername("verisource"),
		postgres.WithPassword("verisource"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

// startServerE starts the verisource server in-process against Postgres,
// an in-memory mainnet node and the test gateway.
func startServerE(connString string, node *tontest.Node, gw *Gateway) (*httptest.Server, storage.Store, error) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:           8080,
			Host:           "0.0.0.0",
			RequestTimeout: 10,
		},
		Storage: config.StorageConfig{
			Type: "postgres",
			Postgres: config.PostgresConfig{
				URL: connString,
			},
		},
		Auth:      config.AuthConfig{Type: "api-key"},
		Logging:   config.LoggingConfig{Level: "debug", Format: "text"},
		RateLimit: config.RateLimitConfig{Enabled: false},
		Proxy:     config.ProxyConfig{TrustProxy: false},
		TON: config.TONConfig{
			DefaultNetwork: "mainnet",
			VerifierID:     config.DefaultVerifierID,
		},
		IPFS: config.IPFSConfig{
			GatewayMode:    "path",
			MainnetGateway: gw.URL + "/ipfs/",
		},
		Fetch: config.FetchConfig{MaxBytes: 1 << 20},
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	registry := chains.NewRegistry()
	registry.Register(ton.NewChain(ton.NetworkConfig{Network: ton.Mainnet, Registry: tontest.Registry}, node))

	srv := server.New(cfg, store, registry, logger)

	return httptest.NewServer(srv.Handler()), store, nil
}

// newClient creates a new API client for the test server
func newClient(testServer *httptest.Server, apiKey string) *client.Client {
	return client.New(testServer.URL, apiKey)
}

// createTestAPIKey creates a test API key using the store directly
func createTestAPIKey(t *testing.T, store storage.Store, name string) string {
	key, err := store.CreateAPIKey(context.Background(), name)
	require.NoError(t, err, "Failed to create API key")
	return key
}

// SourceFile is one file of a bundle published with publishSources.
type SourceFile struct {
	Name         string
	Content      string
	IsEntrypoint bool
}

// publishSources serves a func bundle on the gateway and deploys its
// record on the node. The code hash is derived from prefix so tests do not
// collide.
func publishSources(t *testing.T, prefix string, files ...SourceFile) string {
	t.Helper()

	var hash [32]byte
	copy(hash[:], prefix)
	codeHash := fmt.Sprintf("%x", hash)

	manifest := `{"sources":[`
	for i, f := range files {
		cid := fmt.Sprintf("Qm%s%d", prefix, i)
		testCtx.Gateway.Put(cid, f.Content)
		if i > 0 {
			manifest += ","
		}
		manifest += fmt.Sprintf(`{"url":"ipfs://%s","filename":%q,"isEntrypoint":%t}`, cid, f.Name, f.IsEntrypoint)
	}
	manifest += `],"compiler":"func","compilerSettings":{"funcVersion":"0.4.4"},"verificationDate":"2024-02-01T12:00:00Z"}`

	manifestCID := "Qm" + prefix + "manifest"
	testCtx.Gateway.Put(manifestCID, manifest)

	parsed, err := validation.ParseCodeHash(codeHash)
	require.NoError(t, err)
	testCtx.Node.Publish(config.DefaultVerifierID, parsed, "ipfs://"+manifestCID)

	return codeHash
}

// assertHTTPError asserts that an error is an APIError with the expected code
func assertHTTPError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	require.Error(t, err, "Expected an error")
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr), "Error should be an APIError")
	require.Equal(t, expectedCode, apiErr.Code, "Error code mismatch")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pendergraft/verisource/internal/chains"
	"github.com/pendergraft/verisource/internal/chains/ton"
	"github.com/pendergraft/verisource/internal/config"
	"github.com/pendergraft/verisource/internal/observability/metrics"
	"github.com/pendergraft/verisource/internal/server"
	"github.com/pendergraft/verisource/internal/storage"
)

// dialTimeout bounds connecting to the liteservers of one network.
const dialTimeout = 30 * time.Second

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "verisource-server",
		Short:   "Verisource server - verified TON contract sources over HTTP",
		Version: version,
	}

	// Default behavior (no subcommand) is to serve
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runServe()
	}

	// Add subcommands
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newKeysCmd())
	rootCmd.AddCommand(newLookupsCmd())

	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys",
	}

	cmd.AddCommand(newKeysCreateCmd())
	cmd.AddCommand(newKeysListCmd())
	cmd.AddCommand(newKeysRevokeCmd())

	return cmd
}

func newKeysCreateCmd() *cobra.Command {
	var name string
	var outputFile string
	var quiet bool
	var show bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long: `Create a new API key for reading the lookup log.

By default, the key is written to a file in the current directory.
The key is only shown once - it cannot be retrieved later.

EXAMPLES:
  # Create key, write to file (default)
  verisource-server keys create --name "ci-release"

  # Create key, write to specific file
  verisource-server keys create --name "ci-release" --output /secure/path/key.txt

  # Create key, print only (for piping to secrets manager)
  verisource-server keys create --name "ci-release" --quiet | gh secret set VERISOURCE_API_KEY

  # Create key, display on screen
  verisource-server keys create --name "ci-release" --show
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeysCreate(name, outputFile, quiet, show)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "name/label for the key (required)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "write key to file (default: ./verisource-key-{name}.txt)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the key (for piping)")
	cmd.Flags().BoolVar(&show, "show", false, "display key on screen")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newKeysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeysList()
		},
	}
}

func newKeysRevokeCmd() *cobra.Command {
	var keyID string

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke an API key",
		Long: `Revoke an API key to prevent further use.

Use 'verisource-server keys list' to find the key ID.

EXAMPLES:
  verisource-server keys revoke --id abc123
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeysRevoke(keyID)
		},
	}

	cmd.Flags().StringVar(&keyID, "id", "", "key ID to revoke (required)")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func newLookupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookups",
		Short: "Manage the resolution log",
	}

	cmd.AddCommand(newLookupsPruneCmd())

	return cmd
}

func newLookupsPruneCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old lookup log entries",
		Long: `Delete resolution log entries older than the given age.

EXAMPLES:
  verisource-server lookups prune --older-than 720h
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookupsPrune(olderThan)
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of the entries to delete")

	return cmd
}

// openStore opens and migrates the configured storage for admin commands.
func openStore() (storage.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	store, err := storage.New(cfg.Storage, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}

	// Ensure migrations are run
	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

func runLookupsPrune(olderThan time.Duration) error {
	if olderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.PruneLookups(context.Background(), time.Now().Add(-olderThan))
	if err != nil {
		return fmt.Errorf("pruning lookups: %w", err)
	}

	fmt.Printf("✅ Deleted %d lookup(s) older than %s\n", n, olderThan)
	return nil
}

// Key management commands

func runKeysCreate(name, outputFile string, quiet, show bool) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	// Create the key
	key, err := store.CreateAPIKey(context.Background(), name)
	if err != nil {
		return fmt.Errorf("creating API key: %w", err)
	}

	// Handle output modes
	if quiet {
		// Just print the key for piping
		fmt.Println(key)
		return nil
	}

	if show {
		// Display on screen with warning
		fmt.Println("⚠️  API key (save this - it cannot be retrieved later):")
		fmt.Println()
		fmt.Println("   ", key)
		fmt.Println()
		return nil
	}

	// Default: write to file
	if outputFile == "" {
		outputFile = fmt.Sprintf("./verisource-key-%s.txt", name)
	}

	// Create directory if needed
	dir := filepath.Dir(outputFile)
	if dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}

	// Write key to file with secure permissions
	if err := os.WriteFile(outputFile, []byte(key+"\n"), 0600); err != nil {
		return fmt.Errorf("writing key to file: %w", err)
	}

	fmt.Printf("✅ API key created: %s\n", name)
	fmt.Printf("   Written to: %s (mode 0600)\n", outputFile)
	fmt.Println()
	fmt.Println("   ⚠️  This key cannot be retrieved later. Keep it safe!")
	fmt.Println()
	fmt.Println("   Usage:")
	fmt.Println("     export VERISOURCE_API_KEY=$(cat", outputFile+")")
	fmt.Println("     verisource lookups")

	return nil
}

func runKeysList() error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	keys, err := store.ListAPIKeys(context.Background())
	if err != nil {
		return fmt.Errorf("listing API keys: %w", err)
	}

	if len(keys) == 0 {
		fmt.Println("No API keys found")
		fmt.Println()
		fmt.Println("Create one with: verisource-server keys create --name \"my-key\"")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCREATED\tLAST USED")
	for _, k := range keys {
		lastUsed := "never"
		if k.LastUsedAt != "" {
			lastUsed = k.LastUsedAt
		}
		created := k.CreatedAt
		// Truncate ID for display
		idDisplay := k.ID
		if len(k.ID) > 8 {
			idDisplay = k.ID[:8] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", idDisplay, k.Name, created, lastUsed)
	}
	w.Flush()

	return nil
}

func runKeysRevoke(keyID string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	// Find the full key ID if partial was provided
	keys, err := store.ListAPIKeys(context.Background())
	if err != nil {
		return fmt.Errorf("listing API keys: %w", err)
	}

	var fullKeyID string
	for _, k := range keys {
		if k.ID == keyID || (len(keyID) >= 8 && k.ID[:8] == keyID[:8]) {
			fullKeyID = k.ID
			break
		}
	}

	if fullKeyID == "" {
		return fmt.Errorf("key not found: %s", keyID)
	}

	if err := store.RevokeAPIKey(context.Background(), fullKeyID); err != nil {
		return fmt.Errorf("revoking API key: %w", err)
	}

	fmt.Printf("✅ API key revoked: %s\n", keyID)
	return nil
}

// Server command

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.Logging)
	logger.Info("starting verisource-server", "version", version)
	metrics.Init(cfg.Metrics.Enabled)

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(context.Background()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	registry, err := connectNetworks(cfg, logger)
	if err != nil {
		return err
	}
	defer registry.Close()

	srv := server.New(cfg, store, registry, logger)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", httpServer.Addr, "networks", networkNames(registry))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func networkNames(r *chains.Registry) []string {
	var names []string
	for _, c := range r.List() {
		names = append(names, c.Name())
	}
	return names
}

// parseNetworks parses TON_ENABLED_NETWORKS, keeping the first occurrence
// of each network so none is dialed twice.
func parseNetworks(names []string) ([]ton.Network, error) {
	seen := make(map[ton.Network]bool, len(names))
	networks := make([]ton.Network, 0, len(names))
	for _, name := range names {
		n, err := ton.ParseNetwork(name)
		if err != nil {
			return nil, fmt.Errorf("TON_ENABLED_NETWORKS: %w", err)
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		networks = append(networks, n)
	}
	return networks, nil
}

// connectNetworks dials every enabled network in parallel. Only the
// default network is required; the others are skipped on failure.
func connectNetworks(cfg *config.Config, logger *slog.Logger) (*chains.Registry, error) {
	networks, err := parseNetworks(cfg.TON.EnabledNetworks)
	if err != nil {
		return nil, err
	}

	connected := make([]*ton.Chain, len(networks))
	var g errgroup.Group
	for i, n := range networks {
		g.Go(func() error {
			nc, err := ton.NetworkFromConfig(cfg.TON, n)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
			defer cancel()

			start := time.Now()
			chain, err := ton.Connect(ctx, nc)
			if err != nil {
				if string(n) == cfg.TON.DefaultNetwork {
					return fmt.Errorf("connecting to %s: %w", n, err)
				}
				logger.Error("network unavailable, skipping", "network", n, "error", err)
				return nil
			}
			logger.Info("connected to network", "network", n, "registry", nc.Registry.String(), "duration", time.Since(start))
			connected[i] = chain
			return nil
		})
	}

	registry := chains.NewRegistry()
	err = g.Wait()
	for _, c := range connected {
		if c != nil {
			registry.Register(c)
		}
	}
	if err != nil {
		registry.Close()
		return nil, err
	}
	return registry, nil
}

// newLogger builds the process logger. Unknown levels fall back to info.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// Package cli implements the verisource command line client.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	server  string
	apiKey  string
	format  string
	timeout time.Duration
)

// Output formats accepted by --format.
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// Execute runs the CLI
func Execute(version string) error {
	rootCmd := &cobra.Command{
		Use:     "verisource",
		Short:   "Verified TON contract sources CLI",
		Long:    `Verisource fetches the verified source code of TON contracts by code hash.`,
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return checkFormat(getFormat())
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: verisource.toml or vs.toml)")
	rootCmd.PersistentFlags().StringVar(&server, "server", "", "server URL (default from config)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for authentication")
	rootCmd.PersistentFlags().StringVar(&format, "format", "", "output format: text, json or yaml")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "overall deadline for a command")

	// Add subcommands
	rootCmd.AddCommand(createResolveCmd())
	rootCmd.AddCommand(createFetchCmd())
	rootCmd.AddCommand(createLookupsCmd())
	rootCmd.AddCommand(createAuthCmd())
	rootCmd.AddCommand(createConfigCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

// commandContext derives the deadline-bound context of a command run.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// getServer returns the server URL from flag, env, config file, or credentials
func getServer() string {
	// 1. Command line flag
	if server != "" {
		return server
	}

	// 2. Environment variable
	if env := os.Getenv("VERISOURCE_SERVER"); env != "" {
		return env
	}

	// 3. Project config file (TOML)
	if config := loadProjectConfigSilent(); config != nil && config.Server != "" {
		return config.Server
	}

	// 4. Default
	return "http://localhost:8080"
}

// getAPIKey returns the API key from flag, env, config, or credentials file
func getAPIKey() string {
	// 1. Command line flag
	if apiKey != "" {
		return apiKey
	}

	// 2. Environment variable
	if env := os.Getenv("VERISOURCE_API_KEY"); env != "" {
		return env
	}

	// 3. Credentials file (keyed by server URL)
	serverURL := getServer()
	if cred := getCredential(serverURL); cred != "" {
		return cred
	}

	return ""
}

// getFormat returns the output format from flag, config file, or default
func getFormat() string {
	if format != "" {
		return format
	}
	if config := loadProjectConfigSilent(); config != nil && config.Format != "" {
		return config.Format
	}
	return outputText
}

// getNetwork returns the network from flag, env, or config file. Empty
// means the server default.
func getNetwork(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("VERISOURCE_NETWORK"); env != "" {
		return env
	}
	if config := loadProjectConfigSilent(); config != nil {
		return config.Network
	}
	return ""
}

// getVerifier returns the verifier from flag or config file. Empty means
// the server default.
func getVerifier(flag string) string {
	if flag != "" {
		return flag
	}
	if config := loadProjectConfigSilent(); config != nil {
		return config.Verifier
	}
	return ""
}

func checkFormat(f string) error {
	switch f {
	case outputText, outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", f)
	}
}

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/pendergraft/verisource/pkg/client"
)

// Credentials stores API keys per server
type Credentials struct {
	Servers map[string]ServerCredential `yaml:"servers"`
}

// ServerCredential stores credentials for a single server
type ServerCredential struct {
	APIKey string `yaml:"api_key"`
	Name   string `yaml:"name,omitempty"` // Optional name/description
}

func createAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication commands",
		Long: `Manage API keys for servers that protect their lookup log.

Resolving sources never needs a key.`,
	}

	cmd.AddCommand(createAuthLoginCmd())
	cmd.AddCommand(createAuthLogoutCmd())
	cmd.AddCommand(createAuthStatusCmd())

	return cmd
}

func createAuthLoginCmd() *cobra.Command {
	var serverFlag string
	var apiKeyFlag string
	var name string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with server",
		Long: `Save API key credentials for a Verisource server.

The API key is stored in ~/.verisource/credentials with secure file permissions.

EXAMPLES:
  # Interactive login (prompts for API key)
  verisource auth login

  # Login to a specific server
  verisource auth login --server https://verisource.example.com

  # Non-interactive login (for CI)
  verisource auth login --api-key $VERISOURCE_API_KEY
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			return runAuthLogin(ctx, serverFlag, apiKeyFlag, name)
		},
	}

	cmd.Flags().StringVar(&serverFlag, "server", "", "server URL (default from config)")
	cmd.Flags().StringVar(&apiKeyFlag, "api-key", "", "API key (prompts if not provided)")
	cmd.Flags().StringVar(&name, "name", "", "label stored with the key")

	return cmd
}

func createAuthLogoutCmd() *cobra.Command {
	var serverFlag string
	var allFlag bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Clear credentials",
		Long: `Remove saved credentials for a server.

EXAMPLES:
  # Logout from default server
  verisource auth logout

  # Logout from a specific server
  verisource auth logout --server https://verisource.example.com

  # Clear all credentials
  verisource auth logout --all
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogout(serverFlag, allFlag)
		},
	}

	cmd.Flags().StringVar(&serverFlag, "server", "", "server URL (default from config)")
	cmd.Flags().BoolVar(&allFlag, "all", false, "clear all credentials")

	return cmd
}

func createAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long: `Show current authentication status for all configured servers.

EXAMPLES:
  verisource auth status
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthStatus()
		},
	}
}

func runAuthLogin(ctx context.Context, serverURL, key, name string) error {
	if serverURL == "" {
		serverURL = getServer()
	}

	if key == "" {
		var err error
		key, err = promptSecret(fmt.Sprintf("Enter API key for %s: ", serverURL))
		if err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}
	}
	if key == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	fmt.Printf("Validating credentials with %s...\n", serverURL)
	valid, err := validateAPIKey(ctx, serverURL, key)
	if err != nil {
		return fmt.Errorf("failed to validate credentials: %w", err)
	}
	if !valid {
		return fmt.Errorf("invalid API key")
	}

	if err := saveCredential(serverURL, ServerCredential{APIKey: key, Name: name}); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Printf("✅ Authenticated to %s (key: %s)\n", serverURL, maskAPIKey(key))
	fmt.Printf("   Credentials saved to %s\n", credentialsFilePath())

	return nil
}

// promptSecret reads a line without echo from a terminal, or a trimmed
// line from piped stdin.
func promptSecret(prompt string) (string, error) {
	fmt.Print(prompt)

	stdinFd := int(os.Stdin.Fd())
	if term.IsTerminal(stdinFd) {
		b, err := term.ReadPassword(stdinFd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func runAuthLogout(serverURL string, all bool) error {
	if all {
		if err := os.Remove(credentialsFilePath()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove credentials: %w", err)
		}
		fmt.Println("✅ All credentials cleared")
		return nil
	}

	if serverURL == "" {
		serverURL = getServer()
	}

	creds, err := loadCredentials()
	if os.IsNotExist(err) {
		fmt.Printf("No credentials found for %s\n", serverURL)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	if _, exists := creds.Servers[serverURL]; !exists {
		fmt.Printf("No credentials found for %s\n", serverURL)
		return nil
	}
	delete(creds.Servers, serverURL)

	if err := writeCredentials(creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Printf("✅ Logged out from %s\n", serverURL)
	return nil
}

func runAuthStatus() error {
	creds, err := loadCredentials()
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	if creds == nil || len(creds.Servers) == 0 {
		fmt.Println("Not authenticated to any servers")
		fmt.Println("\nRun 'verisource auth login' to authenticate")
		return nil
	}

	servers := make([]string, 0, len(creds.Servers))
	for s := range creds.Servers {
		servers = append(servers, s)
	}
	sort.Strings(servers)

	fmt.Println("Authenticated servers:")
	for _, s := range servers {
		cred := creds.Servers[s]
		masked := maskAPIKey(cred.APIKey)
		if cred.Name != "" {
			fmt.Printf("  • %s (%s, key: %s)\n", s, cred.Name, masked)
		} else {
			fmt.Printf("  • %s (key: %s)\n", s, masked)
		}
	}

	return nil
}

// Credential file helpers

func credentialsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".verisource"
	}
	return filepath.Join(home, ".verisource")
}

func credentialsFilePath() string {
	return filepath.Join(credentialsDir(), "credentials")
}

func loadCredentials() (*Credentials, error) {
	data, err := os.ReadFile(credentialsFilePath())
	if err != nil {
		return nil, err
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, err
	}

	if creds.Servers == nil {
		creds.Servers = make(map[string]ServerCredential)
	}

	return &creds, nil
}

func writeCredentials(creds *Credentials) error {
	if err := os.MkdirAll(credentialsDir(), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(creds)
	if err != nil {
		return err
	}

	return os.WriteFile(credentialsFilePath(), data, 0600)
}

func saveCredential(serverURL string, cred ServerCredential) error {
	creds, err := loadCredentials()
	if os.IsNotExist(err) {
		creds = &Credentials{Servers: make(map[string]ServerCredential)}
	} else if err != nil {
		return err
	}

	creds.Servers[serverURL] = cred
	return writeCredentials(creds)
}

func getCredential(serverURL string) string {
	creds, err := loadCredentials()
	if err != nil {
		return ""
	}
	return creds.Servers[serverURL].APIKey
}

// validateAPIKey probes the key against the lookup log, the one route the
// server protects. Only a 401 rejects the key.
func validateAPIKey(ctx context.Context, serverURL, key string) (bool, error) {
	_, err := client.New(serverURL, key).ListLookups(ctx, client.LookupsQuery{Limit: 1})

	var apiErr *client.APIError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &apiErr):
		return apiErr.StatusCode != http.StatusUnauthorized, nil
	default:
		return false, err
	}
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:8] + "..." + key[len(key)-4:]
}

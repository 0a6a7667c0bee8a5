package cli

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

// projectConfigFiles is the search order for project config files
var projectConfigFiles = []string{"verisource.toml", "vs.toml"}

// ProjectConfig is the project-level TOML configuration
type ProjectConfig struct {
	Server   string `toml:"server"`
	Network  string `toml:"network,omitempty"`
	Verifier string `toml:"verifier,omitempty"`
	Format   string `toml:"format,omitempty"`
}

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var cfg ProjectConfig
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create a verisource.toml configuration file in the current directory.

This file stores the server URL and the default network, verifier and
output format.

EXAMPLES:
  # Create config with default server
  verisource config init

  # Create config for a specific server, reading testnet
  verisource config init --server https://verisource.example.com --network testnet

  # Overwrite existing config
  verisource config init --force
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cfg, force)
		},
	}

	cmd.Flags().StringVar(&cfg.Server, "server", "http://localhost:8080", "server URL")
	cmd.Flags().StringVar(&cfg.Network, "network", "mainnet", "default network (mainnet or testnet)")
	cmd.Flags().StringVar(&cfg.Verifier, "verifier", "", "default verifier id (empty: server default)")
	cmd.Flags().StringVar(&cfg.Format, "format", outputText, "default output format")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current config",
		Long: `Display the current configuration.

Shows every configuration source in order of precedence and the
effective values.

EXAMPLES:
  verisource config show
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	return cmd
}

func runConfigInit(cfg ProjectConfig, force bool) error {
	configPath := projectConfigFiles[0]

	// Check if any config file already exists
	for _, cfgFile := range projectConfigFiles {
		if _, err := os.Stat(cfgFile); err == nil && !force {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", cfgFile)
		}
	}

	if err := checkFormat(cfg.Format); err != nil {
		return err
	}

	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer f.Close()

	fmt.Fprintln(f, "# Verisource project configuration")
	fmt.Fprintln(f)
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", configPath)
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Server:  %s\n", cfg.Server)
	fmt.Printf("  Network: %s\n", cfg.Network)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Run 'verisource resolve <code-hash>' to look up verified sources")
	fmt.Println("  2. Run 'verisource auth login' to read the server's lookup log")

	return nil
}

func runConfigShow() error {
	fmt.Println("Configuration sources (in order of precedence):")
	fmt.Println()

	// 1. Command line flags
	fmt.Println("1. Command line flags")
	fmt.Println("   --server, --api-key, --config, --format, --network, --verifier")
	fmt.Println()

	// 2. Environment variables
	fmt.Println("2. Environment variables")
	for _, name := range []string{"VERISOURCE_SERVER", "VERISOURCE_NETWORK"} {
		if v := os.Getenv(name); v != "" {
			fmt.Printf("   %s=%s\n", name, v)
		} else {
			fmt.Printf("   %s=(not set)\n", name)
		}
	}
	if keyEnv := os.Getenv("VERISOURCE_API_KEY"); keyEnv != "" {
		fmt.Printf("   VERISOURCE_API_KEY=%s\n", maskAPIKey(keyEnv))
	} else {
		fmt.Println("   VERISOURCE_API_KEY=(not set)")
	}
	fmt.Println()

	// 3. Local project config
	fmt.Println("3. Local project config (verisource.toml or vs.toml)")
	projectConfig, configPath, err := loadProjectConfig()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("   (not found)")
		} else {
			fmt.Printf("   Error: %v\n", err)
		}
	} else {
		fmt.Printf("   Loaded from: %s\n", configPath)
		if projectConfig.Server != "" {
			fmt.Printf("   server: %s\n", projectConfig.Server)
		}
		if projectConfig.Network != "" {
			fmt.Printf("   network: %s\n", projectConfig.Network)
		}
		if projectConfig.Verifier != "" {
			fmt.Printf("   verifier: %s\n", projectConfig.Verifier)
		}
		if projectConfig.Format != "" {
			fmt.Printf("   format: %s\n", projectConfig.Format)
		}
	}
	fmt.Println()

	// 4. Credentials
	fmt.Println("4. Credentials (~/.verisource/credentials)")
	creds, err := loadCredentials()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("   (not found)")
		} else {
			fmt.Printf("   Error: %v\n", err)
		}
	} else {
		if len(creds.Servers) == 0 {
			fmt.Println("   (no credentials stored)")
		} else {
			for server, cred := range creds.Servers {
				fmt.Printf("   %s: %s\n", server, maskAPIKey(cred.APIKey))
			}
		}
	}
	fmt.Println()

	// Effective config
	fmt.Println("Effective configuration:")
	fmt.Printf("   Server:   %s\n", getServer())
	fmt.Printf("   Network:  %s\n", orDefault(getNetwork(""), "(server default)"))
	fmt.Printf("   Verifier: %s\n", orDefault(getVerifier(""), "(server default)"))
	fmt.Printf("   Format:   %s\n", getFormat())
	if key := getAPIKey(); key != "" {
		fmt.Printf("   API Key:  %s\n", maskAPIKey(key))
	} else {
		fmt.Println("   API Key:  (not set)")
	}

	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// loadProjectConfig loads the project config from the first matching config file.
// Returns the config, the path it was loaded from, and an error.
func loadProjectConfig() (*ProjectConfig, string, error) {
	// If --config flag was provided, use that directly
	if cfgFile != "" {
		config, err := loadProjectConfigFromPath(cfgFile)
		if err != nil {
			return nil, cfgFile, err
		}
		return config, cfgFile, nil
	}

	// Search for config files in order
	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil {
			config, err := loadProjectConfigFromPath(name)
			if err != nil {
				return nil, name, err
			}
			return config, name, nil
		}
	}
	return nil, "", os.ErrNotExist
}

// loadProjectConfigFromPath loads a project config from a specific path
func loadProjectConfigFromPath(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config ProjectConfig
	if _, err := toml.Decode(string(data), &config); err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}

	return &config, nil
}

// loadProjectConfigSilent loads the project config without returning errors for missing files.
// Returns nil if the file doesn't exist, but returns errors for parse failures.
func loadProjectConfigSilent() *ProjectConfig {
	config, _, err := loadProjectConfig()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		// Show actionable errors (parse failures)
		fmt.Fprintf(os.Stderr, "Warning: failed to load project config: %v\n", err)
		return nil
	}
	return config
}

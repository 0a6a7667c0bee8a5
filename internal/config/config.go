package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the server
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Auth      AuthConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	RateLimit RateLimitConfig
	Proxy     ProxyConfig
	TON       TONConfig
	IPFS      IPFSConfig
	Fetch     FetchConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ReadTimeout    int // seconds
	WriteTimeout   int // seconds
	IdleTimeout    int // seconds
	RequestTimeout int // seconds, upper bound for one resolution
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type     string // "sqlite" or "postgres"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	Type string // "none" or "api-key"
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	CleanupMinutes int
}

// ProxyConfig holds trusted proxy settings for X-Forwarded-For handling
type ProxyConfig struct {
	TrustProxy     bool
	TrustedProxies []string // CIDR notation
}

// TONConfig selects the networks the server talks to and the registry
// contract used on each of them.
type TONConfig struct {
	DefaultNetwork   string   // "mainnet" or "testnet"
	EnabledNetworks  []string // networks dialed at startup
	VerifierID       string
	MainnetConfigURL string // liteserver global config
	TestnetConfigURL string
	MainnetRegistry  string
	TestnetRegistry  string
}

// IPFSConfig controls how ipfs:// pointers are turned into fetchable URLs.
type IPFSConfig struct {
	GatewayMode    string // "path" or "subdomain"
	MainnetGateway string
	TestnetGateway string
	SubdomainHost  string
}

// FetchConfig bounds remote manifest and source downloads.
type FetchConfig struct {
	MaxBytes int64
}

// Well-known defaults for the TON sources registry.
const (
	DefaultVerifierID       = "orbs.com"
	DefaultMainnetRegistry  = "EQD-BJSVUJviud_Qv7Ymfd3qzXdrmV525e3YDzWQoHIAiInL"
	DefaultTestnetRegistry  = "EQCsdKYwUaXkgJkz2l0ol6qT_WxeRbE_wBCwnEybmR0u5TO8"
	DefaultMainnetConfigURL = "https://ton.org/global.config.json"
	DefaultTestnetConfigURL = "https://ton.org/testnet-global.config.json"
	DefaultMainnetGateway   = "https://tonsource.infura-ipfs.io/ipfs/"
	DefaultTestnetGateway   = "https://tonsource-testnet.infura-ipfs.io/ipfs/"
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 8080),
			Host:           getEnv("HOST", "0.0.0.0"),
			ReadTimeout:    getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout:   getEnvInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:    getEnvInt("SERVER_IDLE_TIMEOUT", 120),
			RequestTimeout: getEnvInt("SERVER_REQUEST_TIMEOUT", 30),
		},
		Storage: StorageConfig{
			Type: getEnv("STORAGE_TYPE", "sqlite"),
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "./data/verisource.db"),
			},
		},
		Auth: AuthConfig{
			Type: getEnv("AUTH_TYPE", "none"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin: getEnvInt("RATE_LIMIT_RPM", 300),
			BurstSize:      getEnvInt("RATE_LIMIT_BURST", 50),
			CleanupMinutes: getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", 10),
		},
		Proxy: ProxyConfig{
			TrustProxy:     getEnvBool("TRUST_PROXY", false),
			TrustedProxies: getEnvStringSlice("TRUSTED_PROXIES", []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}),
		},
		TON: TONConfig{
			DefaultNetwork:   strings.ToLower(getEnv("TON_NETWORK", "mainnet")),
			EnabledNetworks:  getEnvStringSlice("TON_ENABLED_NETWORKS", []string{"mainnet", "testnet"}),
			VerifierID:       getEnv("TON_VERIFIER_ID", DefaultVerifierID),
			MainnetConfigURL: getEnv("TON_MAINNET_CONFIG_URL", DefaultMainnetConfigURL),
			TestnetConfigURL: getEnv("TON_TESTNET_CONFIG_URL", DefaultTestnetConfigURL),
			MainnetRegistry:  getEnv("TON_MAINNET_REGISTRY", DefaultMainnetRegistry),
			TestnetRegistry:  getEnv("TON_TESTNET_REGISTRY", DefaultTestnetRegistry),
		},
		IPFS: IPFSConfig{
			GatewayMode:    strings.ToLower(getEnv("IPFS_GATEWAY_MODE", "path")),
			MainnetGateway: getEnv("IPFS_MAINNET_GATEWAY", DefaultMainnetGateway),
			TestnetGateway: getEnv("IPFS_TESTNET_GATEWAY", DefaultTestnetGateway),
			SubdomainHost:  getEnv("IPFS_SUBDOMAIN_HOST", "dweb.link"),
		},
		Fetch: FetchConfig{
			MaxBytes: int64(getEnvInt("FETCH_MAX_BYTES", 10<<20)),
		},
	}

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	// The default network is always dialed
	if !containsFold(cfg.TON.EnabledNetworks, cfg.TON.DefaultNetwork) {
		cfg.TON.EnabledNetworks = append(cfg.TON.EnabledNetworks, cfg.TON.DefaultNetwork)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

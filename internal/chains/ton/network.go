package ton

import (
	"fmt"
	"strings"

	"github.com/xssnick/tonutils-go/address"

	"github.com/pendergraft/verisource/internal/config"
)

// Network names a TON network that hosts a sources registry.
type Network string

// Supported networks.
const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// ParseNetwork parses a network name. An empty name is rejected so callers
// apply their own default first.
func ParseNetwork(s string) (Network, error) {
	switch Network(strings.ToLower(strings.TrimSpace(s))) {
	case Mainnet:
		return Mainnet, nil
	case Testnet:
		return Testnet, nil
	default:
		return "", fmt.Errorf("unknown network %q (want mainnet or testnet)", s)
	}
}

// IsTestnet reports whether n is the test network.
func (n Network) IsTestnet() bool {
	return n == Testnet
}

// NetworkConfig is everything that differs between networks: the
// registry contract and where to find liteservers.
type NetworkConfig struct {
	Network       Network
	Registry      *address.Address
	LiteConfigURL string
}

// NetworkFromConfig builds the NetworkConfig for n from server settings.
func NetworkFromConfig(cfg config.TONConfig, n Network) (NetworkConfig, error) {
	registry, configURL := cfg.MainnetRegistry, cfg.MainnetConfigURL
	if n.IsTestnet() {
		registry, configURL = cfg.TestnetRegistry, cfg.TestnetConfigURL
	}

	addr, err := address.ParseAddr(registry)
	if err != nil {
		return NetworkConfig{}, fmt.Errorf("parsing %s registry address %q: %w", n, registry, err)
	}

	return NetworkConfig{
		Network:       n,
		Registry:      addr,
		LiteConfigURL: configURL,
	}, nil
}

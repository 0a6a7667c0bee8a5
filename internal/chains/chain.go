// Package chains provides the network modules that locate verified source
// records on-chain.
package chains

import (
	"context"
	"fmt"
	"sort"
)

// Chain locates the verified-source record of a code hash on one network.
type Chain interface {
	// Metadata
	Name() string        // "mainnet", "testnet"
	DisplayName() string // "TON Mainnet"
	Testnet() bool

	// LocateSources returns the manifest pointer stored for codeHash by
	// verifier. A nil record and nil error mean no verified source exists.
	LocateSources(ctx context.Context, verifier string, codeHash [32]byte) (*SourceRecord, error)
}

// SourceRecord is a deployed source record and the block it was read at.
type SourceRecord struct {
	RecordAddress string
	ManifestURI   string
	BlockSeqNo    uint32
}

// Registry holds the chain modules available to the server
type Registry struct {
	chains map[string]Chain
}

// NewRegistry creates a new chain registry
func NewRegistry() *Registry {
	return &Registry{
		chains: make(map[string]Chain),
	}
}

// Register adds a chain module to the registry
func (r *Registry) Register(c Chain) {
	r.chains[c.Name()] = c
}

// Get retrieves a chain module by name
func (r *Registry) Get(name string) (Chain, bool) {
	c, ok := r.chains[name]
	return c, ok
}

// MustGet is Get for names the caller registered itself.
func (r *Registry) MustGet(name string) Chain {
	c, ok := r.chains[name]
	if !ok {
		panic(fmt.Sprintf("chains: %q not registered", name))
	}
	return c
}

// List returns all registered chain modules ordered by name
func (r *Registry) List() []Chain {
	chains := make([]Chain, 0, len(r.chains))
	for _, c := range r.chains {
		chains = append(chains, c)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i].Name() < chains[j].Name() })
	return chains
}

// Close releases the connections held by chain modules that own any.
func (r *Registry) Close() {
	for _, c := range r.chains {
		if closer, ok := c.(interface{ Close() }); ok {
			closer.Close()
		}
	}
}

// Package ton provides the TON chain module: lookup key derivation, the
// sources registry client and the record content decoder.
package ton

import (
	"context"
	"fmt"

	"github.com/pendergraft/verisource/internal/chains"
)

// Chain implements chains.Chain for one TON network.
type Chain struct {
	network  NetworkConfig
	registry *RegistryClient
	close    func()
}

// NewChain creates a chain module reading through node.
func NewChain(nc NetworkConfig, node Node) *Chain {
	c := &Chain{
		network:  nc,
		registry: NewRegistryClient(node),
	}
	if lite, ok := node.(*LiteNode); ok {
		c.close = lite.Close
	}
	return c
}

// Connect dials the network's liteservers and returns its chain module.
func Connect(ctx context.Context, nc NetworkConfig) (*Chain, error) {
	node, err := DialLiteNode(ctx, nc.LiteConfigURL)
	if err != nil {
		return nil, err
	}
	return NewChain(nc, node), nil
}

// Name returns the network identifier
func (c *Chain) Name() string {
	return string(c.network.Network)
}

// DisplayName returns a human-readable name
func (c *Chain) DisplayName() string {
	if c.network.Network.IsTestnet() {
		return "TON Testnet"
	}
	return "TON Mainnet"
}

// Testnet reports whether this module reads the test network.
func (c *Chain) Testnet() bool {
	return c.network.Network.IsTestnet()
}

// LocateSources runs the on-chain half of a resolution against a single
// block snapshot: derive the key, ask the registry for the record address,
// check deployment and decode the record content.
func (c *Chain) LocateSources(ctx context.Context, verifier string, codeHash [32]byte) (*chains.SourceRecord, error) {
	block, err := c.registry.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	key := DeriveLookupKey(verifier, codeHash)
	addr, err := c.registry.RecordAddress(ctx, block, c.network.Registry, key)
	if err != nil {
		return nil, err
	}

	deployed, err := c.registry.IsDeployed(ctx, block, addr)
	if err != nil {
		return nil, err
	}
	if !deployed {
		return nil, nil
	}

	payload, err := c.registry.RecordPayload(ctx, block, addr)
	if err != nil {
		return nil, err
	}
	desc, err := DecodeDescriptor(payload)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", addr, err)
	}

	return &chains.SourceRecord{
		RecordAddress: addr.String(),
		ManifestURI:   desc.ManifestURI,
		BlockSeqNo:    block.SeqNo,
	}, nil
}

// Close drops the node connection if this module owns one.
func (c *Chain) Close() {
	if c.close != nil {
		c.close()
	}
}

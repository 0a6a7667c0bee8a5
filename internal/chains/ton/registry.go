package ton

import (
	"context"
	"fmt"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// Get-methods exposed by the sources registry and its items.
const (
	MethodSourceItemAddress = "get_source_item_address"
	MethodSourceItemData    = "get_source_item_data"
)

// RegistryClient performs the read-only calls against the sources registry.
// It keeps no state between calls.
type RegistryClient struct {
	node Node
}

// NewRegistryClient creates a registry client on top of node.
func NewRegistryClient(node Node) *RegistryClient {
	return &RegistryClient{node: node}
}

// Snapshot returns the block every subsequent read is pinned to.
func (c *RegistryClient) Snapshot(ctx context.Context) (*ton.BlockIDExt, error) {
	block, err := c.node.LatestBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching latest block: %w", ErrNetwork, err)
	}
	if block == nil {
		return nil, fmt.Errorf("%w: node returned no block", ErrProtocol)
	}
	return block, nil
}

// RecordAddress asks the registry at registry for the address of the
// source item identified by key.
func (c *RegistryClient) RecordAddress(ctx context.Context, block *ton.BlockIDExt, registry *address.Address, key LookupKey) (*address.Address, error) {
	stack, err := c.node.RunGetMethod(ctx, block, registry, MethodSourceItemAddress, key.VerifierID, key.CodeHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNetwork, MethodSourceItemAddress, err)
	}
	if len(stack) == 0 {
		return nil, fmt.Errorf("%w: %s returned an empty stack", ErrProtocol, MethodSourceItemAddress)
	}

	s, err := asSlice(stack[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProtocol, MethodSourceItemAddress, err)
	}
	addr, err := s.LoadAddr()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: loading address: %w", ErrProtocol, MethodSourceItemAddress, err)
	}
	if len(addr.Data()) != 32 {
		return nil, fmt.Errorf("%w: %s returned a non-standard address", ErrProtocol, MethodSourceItemAddress)
	}
	return addr, nil
}

// IsDeployed reports whether a record contract is active at block.
func (c *RegistryClient) IsDeployed(ctx context.Context, block *ton.BlockIDExt, addr *address.Address) (bool, error) {
	active, err := c.node.IsActive(ctx, block, addr)
	if err != nil {
		return false, fmt.Errorf("%w: fetching account %s: %w", ErrNetwork, addr, err)
	}
	return active, nil
}

// RecordPayload returns the raw get_source_item_data stack of a deployed
// record. Callers must check IsDeployed first; an undeployed account fails
// at the node.
func (c *RegistryClient) RecordPayload(ctx context.Context, block *ton.BlockIDExt, addr *address.Address) (Payload, error) {
	stack, err := c.node.RunGetMethod(ctx, block, addr, MethodSourceItemData)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNetwork, MethodSourceItemData, err)
	}
	return Payload(stack), nil
}

// asSlice returns a fresh reader over a stack entry holding a cell or slice.
func asSlice(v any) (*cell.Slice, error) {
	switch c := v.(type) {
	case *cell.Slice:
		if c == nil {
			break
		}
		return c.Copy(), nil
	case *cell.Cell:
		if c == nil {
			break
		}
		return c.BeginParse(), nil
	}
	return nil, fmt.Errorf("stack entry is %T, want cell or slice", v)
}

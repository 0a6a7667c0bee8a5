package ton

import (
	"context"
	"fmt"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/ton"
)

// Node is the read-only view of a TON node the registry client needs.
// Every call after LatestBlock is pinned to the block it returned.
type Node interface {
	LatestBlock(ctx context.Context) (*ton.BlockIDExt, error)
	// RunGetMethod returns the result stack as produced by tonutils-go:
	// *big.Int for integers, *cell.Slice / *cell.Cell for cells, nil for null.
	RunGetMethod(ctx context.Context, block *ton.BlockIDExt, addr *address.Address, method string, args ...any) ([]any, error)
	IsActive(ctx context.Context, block *ton.BlockIDExt, addr *address.Address) (bool, error)
}

// LiteNode implements Node over a pool of liteserver connections.
type LiteNode struct {
	pool *liteclient.ConnectionPool
	api  *ton.APIClient
}

// DialLiteNode connects to the liteservers listed in the global config at
// configURL.
func DialLiteNode(ctx context.Context, configURL string) (*LiteNode, error) {
	pool := liteclient.NewConnectionPool()
	if err := pool.AddConnectionsFromConfigUrl(ctx, configURL); err != nil {
		return nil, fmt.Errorf("%w: connecting to liteservers from %s: %w", ErrNetwork, configURL, err)
	}
	return &LiteNode{
		pool: pool,
		api:  ton.NewAPIClient(pool),
	}, nil
}

// LatestBlock returns the last masterchain block known to the node.
func (n *LiteNode) LatestBlock(ctx context.Context) (*ton.BlockIDExt, error) {
	return n.api.CurrentMasterchainInfo(ctx)
}

// RunGetMethod executes a get-method at the given block.
func (n *LiteNode) RunGetMethod(ctx context.Context, block *ton.BlockIDExt, addr *address.Address, method string, args ...any) ([]any, error) {
	res, err := n.api.RunGetMethod(ctx, block, addr, method, args...)
	if err != nil {
		return nil, err
	}
	return res.AsTuple(), nil
}

// IsActive reports whether the account at addr has been deployed.
func (n *LiteNode) IsActive(ctx context.Context, block *ton.BlockIDExt, addr *address.Address) (bool, error) {
	acc, err := n.api.GetAccount(ctx, block, addr)
	if err != nil {
		return false, err
	}
	return acc.IsActive, nil
}

// Close drops all liteserver connections.
func (n *LiteNode) Close() {
	n.pool.Stop()
}

// Package tontest provides an in-memory TON node serving a sources
// registry, for tests of code built on ton.Node.
package tontest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math/big"
	"sync"

	"github.com/xssnick/tonutils-go/address"
	tonapi "github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/pendergraft/verisource/internal/chains/ton"
)

// Registry is the address tests pass as the registry contract.
var Registry = address.NewAddress(0, 0, make([]byte, 32))

// Node is a fake ton.Node. Record addresses are derived from the lookup
// key, so any (verifier, hash) pair resolves to an address; only published
// records are deployed.
type Node struct {
	SeqNo uint32

	mu       sync.Mutex
	records  map[string]ton.Payload
	failures map[string]error
	calls    []string
}

// New returns an empty node at block 1.
func New() *Node {
	return &Node{
		SeqNo:    1,
		records:  make(map[string]ton.Payload),
		failures: make(map[string]error),
	}
}

// Publish deploys a version 1 record pointing at manifestURI.
func (n *Node) Publish(verifier string, codeHash [32]byte, manifestURI string) *address.Address {
	content := cell.BeginCell().
		MustStoreUInt(ton.DescriptorV1, 8).
		MustStoreStringSnake(manifestURI).
		EndCell()
	return n.PublishContent(verifier, codeHash, content)
}

// PublishContent deploys a record with an arbitrary content cell.
func (n *Node) PublishContent(verifier string, codeHash [32]byte, content *cell.Cell) *address.Address {
	key := ton.DeriveLookupKey(verifier, codeHash)
	addr := RecordAddress(key)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.records[addr.String()] = ton.Payload{
		key.VerifierID,
		key.CodeHash,
		cell.BeginCell().MustStoreAddr(Registry).EndCell().BeginParse(),
		content,
	}
	return addr
}

// FailOn makes every call of method ("latest", "account" or a get-method
// name) return err.
func (n *Node) FailOn(method string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures[method] = err
}

// Calls returns the names of the calls served so far, in order.
func (n *Node) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

// RecordAddress is the address the fake registry returns for key.
func RecordAddress(key ton.LookupKey) *address.Address {
	buf := make([]byte, 64)
	key.VerifierID.FillBytes(buf[:32])
	key.CodeHash.FillBytes(buf[32:])
	sum := sha256.Sum256(buf)
	return address.NewAddress(0, 0, sum[:])
}

func (n *Node) enter(method string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, method)
	return n.failures[method]
}

// LatestBlock implements ton.Node.
func (n *Node) LatestBlock(ctx context.Context) (*tonapi.BlockIDExt, error) {
	if err := n.enter("latest"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &tonapi.BlockIDExt{Workchain: -1, SeqNo: n.SeqNo}, nil
}

// RunGetMethod implements ton.Node.
func (n *Node) RunGetMethod(ctx context.Context, block *tonapi.BlockIDExt, addr *address.Address, method string, args ...any) ([]any, error) {
	if err := n.enter(method); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch method {
	case ton.MethodSourceItemAddress:
		if len(args) != 2 {
			return nil, fmt.Errorf("%s: got %d args", method, len(args))
		}
		verifierID, ok1 := args[0].(*big.Int)
		codeHash, ok2 := args[1].(*big.Int)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%s: args must be integers", method)
		}
		rec := RecordAddress(ton.LookupKey{VerifierID: verifierID, CodeHash: codeHash})
		return []any{cell.BeginCell().MustStoreAddr(rec).EndCell().BeginParse()}, nil

	case ton.MethodSourceItemData:
		n.mu.Lock()
		payload, ok := n.records[addr.String()]
		n.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("contract %s is not initialized", addr)
		}
		return []any(payload), nil
	}
	return nil, fmt.Errorf("unknown get-method %s", method)
}

// IsActive implements ton.Node.
func (n *Node) IsActive(ctx context.Context, block *tonapi.BlockIDExt, addr *address.Address) (bool, error) {
	if err := n.enter("account"); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.records[addr.String()]
	return ok, nil
}

package manifest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pendergraft/verisource/internal/config"
)

func TestDefaultRewriter(t *testing.T) {
	assert.Equal(t, "https://tonsource.infura-ipfs.io/ipfs/Qmabc", DefaultRewriter("ipfs://Qmabc", false))
	assert.Equal(t, "https://tonsource-testnet.infura-ipfs.io/ipfs/Qmabc", DefaultRewriter("ipfs://Qmabc", true))
	assert.Equal(t, "https://example.com/a.fc", DefaultRewriter("https://example.com/a.fc", false))
}

func TestPathGatewayRewriter_OnlyPrefix(t *testing.T) {
	rw := PathGatewayRewriter("http://gw/ipfs/", "http://gw-test/ipfs/")
	assert.Equal(t, "http://gw/ipfs/Qmabc/ipfs://x", rw("ipfs://Qmabc/ipfs://x", false))
	assert.Equal(t, "xipfs://Qmabc", rw("xipfs://Qmabc", false))
}

func TestSubdomainRewriter(t *testing.T) {
	rw := SubdomainRewriter("dweb.link")

	got := rw("ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG/readme", false)
	assert.True(t, strings.HasPrefix(got, "https://bafy"), got)
	assert.True(t, strings.HasSuffix(got, ".ipfs.dweb.link/readme"), got)

	// network does not matter for subdomain gateways
	assert.Equal(t, got, rw("ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG/readme", true))

	bare := rw("ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", false)
	assert.True(t, strings.HasSuffix(bare, ".ipfs.dweb.link/"), bare)
}

func TestSubdomainRewriter_PassThrough(t *testing.T) {
	rw := SubdomainRewriter("dweb.link")
	assert.Equal(t, "ipfs://Qmabc", rw("ipfs://Qmabc", false))
	assert.Equal(t, "https://example.com/x", rw("https://example.com/x", false))
}

func TestNewRewriter(t *testing.T) {
	path := NewRewriter(config.IPFSConfig{
		GatewayMode:    "path",
		MainnetGateway: "http://main/ipfs/",
		TestnetGateway: "http://test/ipfs/",
	})
	assert.Equal(t, "http://test/ipfs/Qmabc", path("ipfs://Qmabc", true))

	sub := NewRewriter(config.IPFSConfig{GatewayMode: "subdomain", SubdomainHost: "example.net"})
	assert.Contains(t, sub("ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", false), ".ipfs.example.net/")
}

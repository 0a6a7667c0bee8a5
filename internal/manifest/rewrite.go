package manifest

import (
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"

	"github.com/pendergraft/verisource/internal/config"
)

// IPFSScheme is the storage scheme used by manifests and their sources.
const IPFSScheme = "ipfs://"

// Rewriter maps a storage URI to a URL that can be fetched over HTTP.
// It must be pure; it is applied to the manifest URI and every source URL.
type Rewriter func(uri string, testnet bool) string

// DefaultRewriter maps ipfs:// to the public tonsource gateways.
var DefaultRewriter = PathGatewayRewriter(config.DefaultMainnetGateway, config.DefaultTestnetGateway)

// PathGatewayRewriter maps ipfs://<path> to <base><path>, choosing the base
// by network. Other URIs are returned unchanged.
func PathGatewayRewriter(mainnetBase, testnetBase string) Rewriter {
	return func(uri string, testnet bool) string {
		rest, ok := strings.CutPrefix(uri, IPFSScheme)
		if !ok {
			return uri
		}
		if testnet {
			return testnetBase + rest
		}
		return mainnetBase + rest
	}
}

// SubdomainRewriter maps ipfs://<cid>/<path> to
// https://<cid>.ipfs.<host>/<path> with the CID in base32 CIDv1 form, as
// subdomain gateways require. URIs whose CID does not parse are returned
// unchanged. The network does not affect the result.
func SubdomainRewriter(host string) Rewriter {
	return func(uri string, _ bool) string {
		rest, ok := strings.CutPrefix(uri, IPFSScheme)
		if !ok {
			return uri
		}
		id, path, _ := strings.Cut(rest, "/")

		c, err := cid.Parse(id)
		if err != nil {
			return uri
		}
		label, err := cid.NewCidV1(c.Type(), c.Hash()).StringOfBase(multibase.Base32)
		if err != nil {
			return uri
		}

		out := "https://" + label + ".ipfs." + host + "/"
		return out + path
	}
}

// NewRewriter builds the rewriter selected by cfg.
func NewRewriter(cfg config.IPFSConfig) Rewriter {
	if cfg.GatewayMode == "subdomain" {
		return SubdomainRewriter(cfg.SubdomainHost)
	}
	return PathGatewayRewriter(cfg.MainnetGateway, cfg.TestnetGateway)
}

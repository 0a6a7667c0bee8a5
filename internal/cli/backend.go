package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/pendergraft/verisource/internal/chains"
	"github.com/pendergraft/verisource/internal/chains/ton"
	"github.com/pendergraft/verisource/internal/config"
	"github.com/pendergraft/verisource/internal/manifest"
	"github.com/pendergraft/verisource/internal/sources/domain"
	"github.com/pendergraft/verisource/pkg/client"
)

// sourceBackend resolves code hashes. *client.Client talks to a server;
// directBackend runs the resolution in-process.
type sourceBackend interface {
	GetSources(ctx context.Context, codeHash string, opts client.ResolveOptions) (*client.Sources, error)
	GetManifestURI(ctx context.Context, codeHash string, opts client.ResolveOptions) (*client.Pointer, error)
}

// openBackend returns the backend for a command run and a function
// releasing it.
func openBackend(ctx context.Context, direct bool, network string) (sourceBackend, func(), error) {
	if !direct {
		return client.New(getServer(), getAPIKey()), func() {}, nil
	}

	b, err := dialDirect(ctx, network)
	if err != nil {
		return nil, nil, err
	}
	return b, b.registry.Close, nil
}

// isNoSource reports whether err means the record is not deployed.
func isNoSource(err error) bool {
	return client.IsNotFound(err) || errors.Is(err, domain.ErrNoSource)
}

type resolver interface {
	ManifestURI(ctx context.Context, req domain.ResolveRequest) (*domain.Pointer, error)
	Resolve(ctx context.Context, req domain.ResolveRequest) (*domain.Sources, error)
}

type directBackend struct {
	svc      resolver
	registry *chains.Registry
}

// dialDirect connects to the liteservers of one network using the server's
// environment configuration.
func dialDirect(ctx context.Context, network string) (*directBackend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if network == "" {
		network = cfg.TON.DefaultNetwork
	}

	n, err := ton.ParseNetwork(network)
	if err != nil {
		return nil, err
	}
	nc, err := ton.NetworkFromConfig(cfg.TON, n)
	if err != nil {
		return nil, err
	}

	chain, err := ton.Connect(ctx, nc)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", n, err)
	}

	registry := chains.NewRegistry()
	registry.Register(chain)
	return newDirectBackend(registry, cfg, string(n)), nil
}

func newDirectBackend(registry *chains.Registry, cfg *config.Config, network string) *directBackend {
	fetcher := manifest.NewHTTPFetcher(manifest.WithMaxBytes(cfg.Fetch.MaxBytes))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	svc := domain.NewService(registry, manifest.NewResolver(fetcher), nil, domain.Config{
		DefaultNetwork:  network,
		DefaultVerifier: cfg.TON.VerifierID,
		Rewriter:        manifest.NewRewriter(cfg.IPFS),
	}, logger)

	return &directBackend{svc: svc, registry: registry}
}

func (b *directBackend) GetSources(ctx context.Context, codeHash string, opts client.ResolveOptions) (*client.Sources, error) {
	src, err := b.svc.Resolve(ctx, domain.ResolveRequest{CodeHash: codeHash, Network: opts.Network, Verifier: opts.Verifier})
	if err != nil {
		return nil, err
	}

	files := make([]client.File, len(src.Files))
	for i, f := range src.Files {
		files[i] = client.File{Name: f.Name, Content: f.Content, IsEntrypoint: f.IsEntrypoint}
	}
	return &client.Sources{
		Pointer:          toClientPointer(src.Pointer),
		Files:            files,
		Compiler:         string(src.Compiler),
		CompilerVersion:  src.CompilerVersion,
		CompilerSettings: src.CompilerSettings,
		VerificationDate: src.VerificationDate,
		IPFSHttpLink:     src.ManifestURL,
	}, nil
}

func (b *directBackend) GetManifestURI(ctx context.Context, codeHash string, opts client.ResolveOptions) (*client.Pointer, error) {
	p, err := b.svc.ManifestURI(ctx, domain.ResolveRequest{CodeHash: codeHash, Network: opts.Network, Verifier: opts.Verifier})
	if err != nil {
		return nil, err
	}
	cp := toClientPointer(*p)
	return &cp, nil
}

func toClientPointer(p domain.Pointer) client.Pointer {
	return client.Pointer{
		CodeHash:      p.CodeHash,
		Network:       p.Network,
		Verifier:      p.Verifier,
		RecordAddress: p.RecordAddress,
		ManifestURI:   p.ManifestURI,
		BlockSeqNo:    p.BlockSeqNo,
	}
}

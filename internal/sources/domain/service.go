package domain

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pendergraft/verisource/internal/chains"
	"github.com/pendergraft/verisource/internal/manifest"
	"github.com/pendergraft/verisource/internal/observability/metrics"
	"github.com/pendergraft/verisource/internal/storage"
	"github.com/pendergraft/verisource/internal/validation"
)

// Common errors returned by the sources service.
var (
	ErrNoSource        = errors.New("no verified source")
	ErrInvalidCodeHash = errors.New("invalid code hash")
	ErrInvalidNetwork  = errors.New("invalid network")
	ErrInvalidVerifier = errors.New("invalid verifier")
	ErrInvalidFilter   = errors.New("invalid filter")
)

// recordTimeout bounds the lookup log write, which outlives the request
// context so failed and timed out resolutions are still logged.
const recordTimeout = 5 * time.Second

// LookupStore defines the storage operations needed by the sources domain.
type LookupStore interface {
	RecordLookup(ctx context.Context, l *storage.Lookup) error
	ListLookups(ctx context.Context, filter storage.LookupFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Lookup], error)
}

// ManifestResolver turns a manifest URI into source files.
type ManifestResolver interface {
	Resolve(ctx context.Context, manifestURI string, rewrite manifest.Rewriter, testnet bool) (*manifest.Result, error)
}

// Config holds the service defaults.
type Config struct {
	DefaultNetwork  string
	DefaultVerifier string
	Rewriter        manifest.Rewriter
}

type service struct {
	registry *chains.Registry
	resolver ManifestResolver
	lookups  LookupStore
	cfg      Config
	logger   *slog.Logger
}

// NewService creates a new sources service. lookups may be nil, in which
// case nothing is logged.
func NewService(registry *chains.Registry, resolver ManifestResolver, lookups LookupStore, cfg Config, logger *slog.Logger) *service {
	if cfg.Rewriter == nil {
		cfg.Rewriter = manifest.DefaultRewriter
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		registry: registry,
		resolver: resolver,
		lookups:  lookups,
		cfg:      cfg,
		logger:   logger,
	}
}

// located is a validated request and what the chain returned for it.
type located struct {
	chain   chains.Chain
	pointer Pointer
	found   bool
}

// locate validates req and reads the source record on-chain.
func (s *service) locate(ctx context.Context, req ResolveRequest) (*located, error) {
	hash, err := validation.ParseCodeHash(req.CodeHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCodeHash, err)
	}

	verifier := req.Verifier
	if verifier == "" {
		verifier = s.cfg.DefaultVerifier
	}
	if err := validation.ValidateVerifier(verifier); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerifier, err)
	}

	network := strings.ToLower(strings.TrimSpace(req.Network))
	if network == "" {
		network = s.cfg.DefaultNetwork
	}
	chain, ok := s.registry.Get(network)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not enabled", ErrInvalidNetwork, network)
	}

	loc := &located{
		chain: chain,
		pointer: Pointer{
			Network:  network,
			Verifier: verifier,
			CodeHash: hex.EncodeToString(hash[:]),
		},
	}

	rec, err := chain.LocateSources(ctx, verifier, hash)
	if err != nil {
		return loc, err
	}
	if rec != nil {
		loc.found = true
		loc.pointer.RecordAddress = rec.RecordAddress
		loc.pointer.ManifestURI = rec.ManifestURI
		loc.pointer.BlockSeqNo = rec.BlockSeqNo
	}
	return loc, nil
}

// ManifestURI returns the manifest pointer stored for a code hash without
// fetching the manifest.
func (s *service) ManifestURI(ctx context.Context, req ResolveRequest) (*Pointer, error) {
	start := time.Now()
	loc, err := s.locate(ctx, req)
	if loc == nil {
		return nil, err
	}
	s.finish(ctx, loc, 0, err, start)

	if err != nil {
		return nil, err
	}
	if !loc.found {
		return nil, ErrNoSource
	}
	p := loc.pointer
	return &p, nil
}

// Resolve locates the source record of a code hash and fetches every file
// its manifest lists.
func (s *service) Resolve(ctx context.Context, req ResolveRequest) (*Sources, error) {
	start := time.Now()
	loc, err := s.locate(ctx, req)
	if loc == nil {
		return nil, err
	}
	if err != nil || !loc.found {
		s.finish(ctx, loc, 0, err, start)
		if err != nil {
			return nil, err
		}
		return nil, ErrNoSource
	}

	res, err := s.resolver.Resolve(ctx, loc.pointer.ManifestURI, s.cfg.Rewriter, loc.chain.Testnet())
	if err != nil {
		s.finish(ctx, loc, 0, err, start)
		return nil, err
	}
	s.finish(ctx, loc, len(res.Files), nil, start)

	return &Sources{
		Pointer:          loc.pointer,
		Files:            res.Files,
		Compiler:         res.Compiler,
		CompilerVersion:  res.CompilerVersion(),
		CompilerSettings: res.CompilerSettings,
		VerificationDate: res.VerificationDate,
		ManifestURL:      res.ManifestURL,
	}, nil
}

// finish records metrics and the lookup log entry of a resolution.
func (s *service) finish(ctx context.Context, loc *located, files int, resolveErr error, start time.Time) {
	status := storage.LookupFound
	switch {
	case resolveErr != nil:
		status = storage.LookupFailed
	case !loc.found:
		status = storage.LookupNotFound
	}

	metrics.Resolution(loc.pointer.Network, status, time.Since(start))
	metrics.FilesFetched(loc.pointer.Network, files)

	if s.lookups == nil {
		return
	}

	entry := &storage.Lookup{
		CodeHash:      loc.pointer.CodeHash,
		Network:       loc.pointer.Network,
		Verifier:      loc.pointer.Verifier,
		Status:        status,
		RecordAddress: loc.pointer.RecordAddress,
		ManifestURI:   loc.pointer.ManifestURI,
		FileCount:     files,
	}
	if resolveErr != nil {
		entry.Error = resolveErr.Error()
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := s.lookups.RecordLookup(rctx, entry); err != nil {
		s.logger.Warn("recording lookup failed",
			"code_hash", entry.CodeHash,
			"network", entry.Network,
			"error", err,
		)
	}
}

// ListLookups returns a page of the resolution log, newest first.
func (s *service) ListLookups(ctx context.Context, filter LookupFilter, pagination PaginationParams) (*LookupList, error) {
	switch filter.Status {
	case "", storage.LookupFound, storage.LookupNotFound, storage.LookupFailed:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, filter.Status)
	}
	if filter.CodeHash != "" {
		hash, err := validation.ParseCodeHash(filter.CodeHash)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
		filter.CodeHash = hex.EncodeToString(hash[:])
	}

	if s.lookups == nil {
		return &LookupList{Lookups: []Lookup{}}, nil
	}

	res, err := s.lookups.ListLookups(ctx,
		storage.LookupFilter{Status: filter.Status, Network: strings.ToLower(filter.Network), CodeHash: filter.CodeHash},
		storage.PaginationParams{Limit: pagination.Limit, Cursor: pagination.Cursor},
	)
	if errors.Is(err, storage.ErrInvalidCursor) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	if err != nil {
		return nil, fmt.Errorf("listing lookups: %w", err)
	}

	out := &LookupList{
		Lookups:    make([]Lookup, 0, len(res.Data)),
		HasMore:    res.HasMore,
		NextCursor: res.NextCursor,
	}
	for _, l := range res.Data {
		out.Lookups = append(out.Lookups, Lookup(l))
	}
	return out, nil
}

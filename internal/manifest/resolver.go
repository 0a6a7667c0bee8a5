package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pendergraft/verisource/internal/validation"
)

// File is a fetched source file.
type File struct {
	Name         string `json:"name"`
	Content      string `json:"content"`
	IsEntrypoint bool   `json:"isEntrypoint"`
}

// Result is a fully resolved manifest.
type Result struct {
	Files            []File
	Compiler         Compiler
	CompilerSettings json.RawMessage
	VerificationDate time.Time
	// ManifestURL is the URL actually fetched for the manifest.
	ManifestURL string
}

// CompilerVersion returns the compiler version recorded in the settings,
// or "" when none is present.
func (r *Result) CompilerVersion() string {
	return validation.CompilerVersion(string(r.Compiler), r.CompilerSettings)
}

// Resolver fetches manifests and the files they list.
type Resolver struct {
	fetcher Fetcher
}

// NewResolver creates a resolver that downloads through fetcher.
func NewResolver(fetcher Fetcher) *Resolver {
	return &Resolver{fetcher: fetcher}
}

// Resolve fetches the manifest at manifestURI and every source it lists.
// rewrite is applied to each URI before fetching. The result is all or
// nothing: any failed fetch fails the whole call and cancels the fetches
// still in flight.
func (r *Resolver) Resolve(ctx context.Context, manifestURI string, rewrite Rewriter, testnet bool) (*Result, error) {
	if rewrite == nil {
		rewrite = DefaultRewriter
	}

	manifestURL := rewrite(manifestURI, testnet)
	data, err := r.fetcher.Fetch(ctx, manifestURL)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest %s: %w", ErrFetch, manifestURL, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", manifestURL, err)
	}

	files := make([]File, len(m.Sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range m.Sources {
		g.Go(func() error {
			url := rewrite(src.URL, testnet)
			body, err := r.fetcher.Fetch(gctx, url)
			if err != nil {
				return fmt.Errorf("%w: source %q: %w", ErrFetch, src.Filename, err)
			}
			files[i] = File{
				Name:         src.Filename,
				Content:      string(body),
				IsEntrypoint: src.IsEntrypoint,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Result{
		Files:            orderFiles(files),
		Compiler:         m.Compiler,
		CompilerSettings: m.CompilerSettings,
		VerificationDate: m.VerificationDate.Time,
		ManifestURL:      manifestURL,
	}, nil
}

package cli

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/verisource/internal/validation"
	"github.com/pendergraft/verisource/pkg/client"
)

func createFetchCmd() *cobra.Command {
	var output string
	var network string
	var verifier string
	var direct bool

	cmd := &cobra.Command{
		Use:   "fetch <code-hash>",
		Short: "Download the verified sources of a contract",
		Long: `Download the verified source files of a TON contract.

Files are written under <output>/<code hash in hex>/ keeping their relative
paths, next to a manifest.json describing the bundle.

EXAMPLES:
  # Fetch into the current directory
  verisource fetch /rX/aCDi/w2Ug+fg1iyBfYRniftK5YDIeIZtlZ2r1cA=

  # Fetch to a specific directory
  verisource fetch <hash> --output ./sources

  # Fetch a testnet contract without a server
  verisource fetch <hash> --network testnet --direct
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			nw := getNetwork(network)
			b, closeFn, err := openBackend(ctx, direct, nw)
			if err != nil {
				return err
			}
			defer closeFn()

			opts := client.ResolveOptions{Network: nw, Verifier: getVerifier(verifier)}
			dir, err := runFetch(ctx, b, args[0], output, opts, os.Stdout)
			if err != nil {
				return err
			}
			fmt.Printf("\n✅ Sources saved to %s\n", dir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", ".", "output directory")
	cmd.Flags().StringVar(&network, "network", "", "network: mainnet or testnet (default from server)")
	cmd.Flags().StringVar(&verifier, "verifier", "", "verifier id (default from server)")
	cmd.Flags().BoolVar(&direct, "direct", false, "query liteservers directly instead of the server")

	return cmd
}

// bundleManifest is the manifest.json written next to fetched files.
type bundleManifest struct {
	CodeHash         string          `json:"codeHash"`
	Network          string          `json:"network"`
	Verifier         string          `json:"verifier"`
	RecordAddress    string          `json:"recordAddress"`
	ManifestURI      string          `json:"manifestUri"`
	Compiler         string          `json:"compiler"`
	CompilerVersion  string          `json:"compilerVersion,omitempty"`
	CompilerSettings json.RawMessage `json:"compilerSettings,omitempty"`
	VerificationDate time.Time       `json:"verificationDate"`
	Files            []bundleFile    `json:"files"`
}

type bundleFile struct {
	Name         string `json:"name"`
	IsEntrypoint bool   `json:"isEntrypoint"`
}

// runFetch resolves codeHash and writes the bundle, returning the directory
// it was written to. Nothing is written unless every file name is safe.
func runFetch(ctx context.Context, b sourceBackend, codeHash, output string, opts client.ResolveOptions, log io.Writer) (string, error) {
	hash, err := validation.ParseCodeHash(codeHash)
	if err != nil {
		return "", err
	}

	src, err := b.GetSources(ctx, codeHash, opts)
	if err != nil {
		return "", describeError(codeHash, err)
	}

	for _, f := range src.Files {
		if err := validation.SafeFilename(f.Name); err != nil {
			return "", fmt.Errorf("refusing to write bundle: %w", err)
		}
	}

	outDir := filepath.Join(output, hex.EncodeToString(hash[:]))
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	fmt.Fprintf(log, "📦 Fetching %s (%s)\n", src.CodeHash, src.Network)

	m := bundleManifest{
		CodeHash:         src.CodeHash,
		Network:          src.Network,
		Verifier:         src.Verifier,
		RecordAddress:    src.RecordAddress,
		ManifestURI:      src.ManifestURI,
		Compiler:         src.Compiler,
		CompilerVersion:  src.CompilerVersion,
		CompilerSettings: src.CompilerSettings,
		VerificationDate: src.VerificationDate,
		Files:            make([]bundleFile, 0, len(src.Files)),
	}

	for _, f := range src.Files {
		path := filepath.Join(outDir, filepath.FromSlash(f.Name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return "", fmt.Errorf("failed to create directory for %s: %w", f.Name, err)
		}
		if err := os.WriteFile(path, []byte(f.Content), 0644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
		fmt.Fprintf(log, "  ✓ %s\n", f.Name)
		m.Files = append(m.Files, bundleFile{Name: f.Name, IsEntrypoint: f.IsEntrypoint})
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(outDir, "manifest.json"), data, 0644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}

	return outDir, nil
}

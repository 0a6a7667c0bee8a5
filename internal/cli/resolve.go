package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/verisource/pkg/client"
)

type resolveFlags struct {
	network      string
	verifier     string
	direct       bool
	manifestOnly bool
	showSource   bool
}

func createResolveCmd() *cobra.Command {
	var f resolveFlags

	cmd := &cobra.Command{
		Use:   "resolve <code-hash>",
		Short: "Show the verified sources of a contract",
		Long: `Resolve the verified source bundle of a TON contract by its code hash.

The code hash is the 32-byte hash of the contract code cell, as hex or
base64 (standard or URL-safe).

EXAMPLES:
  # Resolve through the configured server
  verisource resolve /rX/aCDi/w2Ug+fg1iyBfYRniftK5YDIeIZtlZ2r1cA=

  # Only read the on-chain record
  verisource resolve <hash> --manifest-only

  # Resolve on testnet straight from the liteservers
  verisource resolve <hash> --network testnet --direct

  # Print every file
  verisource resolve <hash> --show-source
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			network := getNetwork(f.network)
			b, closeFn, err := openBackend(ctx, f.direct, network)
			if err != nil {
				return err
			}
			defer closeFn()

			opts := client.ResolveOptions{Network: network, Verifier: getVerifier(f.verifier)}
			if f.manifestOnly {
				p, err := b.GetManifestURI(ctx, args[0], opts)
				if err != nil {
					return describeError(args[0], err)
				}
				return render(os.Stdout, p, func(w io.Writer) error { return printPointer(w, p) })
			}

			src, err := b.GetSources(ctx, args[0], opts)
			if err != nil {
				return describeError(args[0], err)
			}
			return render(os.Stdout, src, func(w io.Writer) error { return printSources(w, src, f.showSource) })
		},
	}

	cmd.Flags().StringVar(&f.network, "network", "", "network: mainnet or testnet (default from server)")
	cmd.Flags().StringVar(&f.verifier, "verifier", "", "verifier id (default from server)")
	cmd.Flags().BoolVar(&f.direct, "direct", false, "query liteservers directly instead of the server")
	cmd.Flags().BoolVar(&f.manifestOnly, "manifest-only", false, "only read the on-chain record")
	cmd.Flags().BoolVar(&f.showSource, "show-source", false, "print file contents")

	return cmd
}

func describeError(codeHash string, err error) error {
	if isNoSource(err) {
		return fmt.Errorf("no verified source for %s", codeHash)
	}
	return err
}

func printPointer(w io.Writer, p *client.Pointer) error {
	return fields(w,
		[2]string{"Code hash", p.CodeHash},
		[2]string{"Network", p.Network},
		[2]string{"Verifier", p.Verifier},
		[2]string{"Record", p.RecordAddress},
		[2]string{"Manifest", p.ManifestURI},
		[2]string{"Block", fmt.Sprint(p.BlockSeqNo)},
	)
}

func printSources(w io.Writer, src *client.Sources, showSource bool) error {
	compiler := src.Compiler
	if src.CompilerVersion != "" {
		compiler += " " + src.CompilerVersion
	}
	verified := ""
	if !src.VerificationDate.IsZero() {
		verified = src.VerificationDate.UTC().Format(time.RFC3339)
	}

	if err := printPointer(w, &src.Pointer); err != nil {
		return err
	}
	if err := fields(w,
		[2]string{"Fetched from", src.IPFSHttpLink},
		[2]string{"Compiler", compiler},
		[2]string{"Verified", verified},
	); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nFiles (%d):\n", len(src.Files))
	for _, file := range src.Files {
		marker := " "
		if file.IsEntrypoint {
			marker = "*"
		}
		fmt.Fprintf(w, "  %s %s\n", marker, file.Name)
	}

	if showSource {
		for _, file := range src.Files {
			fmt.Fprintf(w, "\n==> %s <==\n", file.Name)
			fmt.Fprint(w, file.Content)
			if !strings.HasSuffix(file.Content, "\n") {
				fmt.Fprintln(w)
			}
		}
	}
	return nil
}

package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/verisource/pkg/client"
)

func createLookupsCmd() *cobra.Command {
	var q client.LookupsQuery

	cmd := &cobra.Command{
		Use:   "lookups",
		Short: "List recent resolutions recorded by the server",
		Long: `List the server's resolution log, newest first.

EXAMPLES:
  # Recent lookups
  verisource lookups

  # Code hashes that had no verified source
  verisource lookups --status not_found

  # Next page
  verisource lookups --cursor <next-cursor>
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			c := client.New(getServer(), getAPIKey())
			resp, err := c.ListLookups(ctx, q)
			if err != nil {
				return fmt.Errorf("failed to list lookups: %w", err)
			}
			return render(os.Stdout, resp, func(w io.Writer) error { return printLookups(w, resp) })
		},
	}

	cmd.Flags().StringVar(&q.Status, "status", "", "filter by status: found, not_found or failed")
	cmd.Flags().StringVar(&q.Network, "network", "", "filter by network")
	cmd.Flags().StringVar(&q.CodeHash, "code-hash", "", "filter by code hash")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "page size (server default when 0)")
	cmd.Flags().StringVar(&q.Cursor, "cursor", "", "cursor from a previous page")

	return cmd
}

func printLookups(w io.Writer, resp *client.ListLookupsResponse) error {
	if len(resp.Data) == 0 {
		fmt.Fprintln(w, "No lookups found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tNETWORK\tCODE HASH\tSTATUS\tFILES\tDETAIL")
	for _, l := range resp.Data {
		detail := l.Error
		if detail == "" {
			detail = l.ManifestURI
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			l.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			l.Network, truncateHash(l.CodeHash), l.Status, l.FileCount, detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if resp.Pagination.HasMore {
		fmt.Fprintf(w, "\nMore results: --cursor %s\n", resp.Pagination.NextCursor)
	}
	return nil
}

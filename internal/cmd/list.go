package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stowgate/stowgate/internal/observability"
	"github.com/stowgate/stowgate/pkg/listing"
)

var (
	listPattern    string
	listPageToken  string
	listMaxResults int
	listJSON       bool
)

var listCmd = &cobra.Command{
	Use:   "list <connection-id>",
	Short: "List files on a connection",
	Long: `List files visible through a connection, one page at a time.

Examples:
  stowgate list minio-archive
  stowgate list minio-archive --pattern "reports/**/*.pdf"
  stowgate list drive-main --page-token <token-from-previous-page>`,
	Args: cobra.ExactArgs(1),
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listPattern, "pattern", "", "Glob pattern filter")
	listCmd.Flags().StringVar(&listPageToken, "page-token", "", "Continue from a previous page")
	listCmd.Flags().IntVar(&listMaxResults, "max-results", 0, "Page size cap (0 uses the provider default)")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Emit the raw JSON page")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	page, err := a.gateway.ListFiles(ctx, id, listing.Filter{
		Pattern:    listPattern,
		PageToken:  listPageToken,
		MaxResults: listMaxResults,
	})
	if err != nil {
		return err
	}

	if listJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	}

	for _, f := range page.Files {
		observability.CLILogger.Info(f.Key,
			zap.Int64("size", f.Size),
			zap.Time("modified", f.LastModified),
			zap.String("visibility", string(f.Visibility)))
	}
	if page.NextPageToken != "" {
		observability.CLILogger.Info("more results available",
			zap.String("page_token", page.NextPageToken))
	}
	return nil
}

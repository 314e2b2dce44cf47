package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stowgate/stowgate/internal/observability"
)

var grantCmd = &cobra.Command{
	Use:   "grant <connection-id> <key>",
	Short: "Issue a short-lived access grant for one object",
	Long: `Issue a fresh access grant (presigned or temporary URL) for an object.

Grants are never cached; each invocation derives a new one. Public
objects yield a direct URL with no expiry.`,
	Args: cobra.ExactArgs(2),
	RunE: runGrant,
}

func init() {
	rootCmd.AddCommand(grantCmd)
}

func runGrant(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, key := args[0], args[1]

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	grant, err := a.gateway.GetAccessGrant(ctx, id, key)
	if err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("connection", id),
		zap.String("key", key),
		zap.String("url", grant.URL),
	}
	if grant.ExpiresInSeconds != nil {
		fields = append(fields, zap.Int64("expires_in_seconds", *grant.ExpiresInSeconds))
	}
	observability.CLILogger.Info("grant issued", fields...)
	return nil
}

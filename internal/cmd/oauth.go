package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stowgate/stowgate/internal/observability"
)

var oauthCmd = &cobra.Command{
	Use:   "oauth",
	Short: "Drive the OAuth authorization flow for a connection",
}

var (
	oauthClientID     string
	oauthClientSecret string
)

var oauthBeginCmd = &cobra.Command{
	Use:   "begin <connection-id>",
	Short: "Start authorization and print the consent URL",
	Long: `Start the authorization flow. Open the printed URL in a browser,
approve access, then feed the returned code to "oauth complete".`,
	Args: cobra.ExactArgs(1),
	RunE: runOAuthBegin,
}

var oauthCompleteCmd = &cobra.Command{
	Use:   "complete <connection-id> <code>",
	Short: "Finish authorization with the provider's code",
	Args:  cobra.ExactArgs(2),
	RunE:  runOAuthComplete,
}

func init() {
	rootCmd.AddCommand(oauthCmd)
	oauthCmd.AddCommand(oauthBeginCmd)
	oauthCmd.AddCommand(oauthCompleteCmd)

	oauthBeginCmd.Flags().StringVar(&oauthClientID, "client-id", "", "OAuth client id")
	oauthBeginCmd.Flags().StringVar(&oauthClientSecret, "client-secret", "", "OAuth client secret")
	_ = oauthBeginCmd.MarkFlagRequired("client-id")
	_ = oauthBeginCmd.MarkFlagRequired("client-secret")
}

func runOAuthBegin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.gateway.BeginOAuth(ctx, id, oauthClientID, oauthClientSecret)
	if err != nil {
		return err
	}

	observability.CLILogger.Info("open this URL in a browser and approve access",
		zap.String("connection", id),
		zap.String("url", result.AuthorizationURL))
	return nil
}

func runOAuthComplete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, code := args[0], args[1]

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.gateway.CompleteOAuth(ctx, id, code)
	if err != nil {
		return err
	}

	// The refresh token is shown once so operators running without a
	// writable connections file can persist it themselves.
	observability.CLILogger.Info("authorization complete",
		zap.String("connection", id),
		zap.Bool("success", result.Success),
		zap.String("refresh_token", result.RefreshToken))
	return nil
}

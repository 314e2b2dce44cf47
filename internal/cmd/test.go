package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stowgate/stowgate/internal/observability"
)

var testCmd = &cobra.Command{
	Use:   "test <connection-id>",
	Short: "Probe a connection's reachability and credentials",
	Args:  cobra.ExactArgs(1),
	RunE:  runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.gateway.TestConnection(ctx, id, nil)
	if err != nil {
		return err
	}

	if result.Success {
		observability.CLILogger.Info("connection ok",
			zap.String("connection", id),
			zap.Duration("latency", result.Latency))
	} else {
		observability.CLILogger.Error("connection failed",
			zap.String("connection", id),
			zap.String("code", result.ErrorCode),
			zap.String("message", result.Message))
	}
	return nil
}

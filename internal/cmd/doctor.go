package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stowgate/stowgate/internal/observability"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor <connection-id>",
	Short: "Run the full diagnostic ladder for a connection",
	Long: `Run diagnostic checks for a connection and report each step.

Examples:
  stowgate doctor minio-archive
  stowgate doctor drive-main`,
	Args: cobra.ExactArgs(1),
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.gateway.Diagnose(ctx, id)
	if err != nil {
		return err
	}

	observability.CLILogger.Info(fmt.Sprintf("=== diagnosing %s (%s) ===", id, report.Kind))
	for i, step := range report.Steps {
		line := fmt.Sprintf("[%d/%d] %s", i+1, len(report.Steps), step.Name)
		fields := []zap.Field{}
		if step.Detail != "" {
			fields = append(fields, zap.String("detail", step.Detail))
		}
		if step.Latency > 0 {
			fields = append(fields, zap.Duration("latency", step.Latency))
		}
		if step.OK {
			observability.CLILogger.Info(line+" ... ok", fields...)
		} else {
			observability.CLILogger.Error(line+" ... failed", fields...)
		}
	}

	if !report.Healthy {
		return fmt.Errorf("connection %s is unhealthy", id)
	}
	observability.CLILogger.Info("all checks passed")
	return nil
}

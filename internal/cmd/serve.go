package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stowgate/stowgate/internal/observability"
	"github.com/stowgate/stowgate/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the gateway over HTTP",
	Long: `Serve the gateway operations as a JSON HTTP API.

The listener address and timeouts come from configuration
(STOWGATE_SERVER_HOST, STOWGATE_SERVER_PORT, or stowgate.yaml).`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	srv := server.New(a.cfg.Server.Host, a.cfg.Server.Port,
		a.gateway, observability.CLILogger, server.WithVersion(Version))

	observability.CLILogger.Info("starting gateway server",
		zap.String("addr", a.cfg.Server.Addr()),
		zap.String("version", Version))

	return srv.ListenAndServe(ctx,
		a.cfg.Server.ReadTimeout,
		a.cfg.Server.WriteTimeout,
		a.cfg.Server.IdleTimeout,
		a.cfg.Server.ShutdownTimeout)
}

// Package cmd holds the stowgate CLI.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	appconfig "github.com/stowgate/stowgate/internal/config"
	"github.com/stowgate/stowgate/internal/observability"
	"github.com/stowgate/stowgate/pkg/gateway"
	"github.com/stowgate/stowgate/pkg/grants"
	"github.com/stowgate/stowgate/pkg/listing"
	"github.com/stowgate/stowgate/pkg/oauthflow"
	"github.com/stowgate/stowgate/pkg/registry"
)

// Version is stamped by the build.
var Version = "dev"

var (
	flagLogLevel  string
	flagLogFormat string
)

var rootCmd = &cobra.Command{
	Use:   "stowgate",
	Short: "Uniform gateway to external storage backends",
	Long: `stowgate adapts S3-compatible object stores, Google Drive, OneDrive,
and Dropbox behind one operation set: connection testing, throttled
file listing, OAuth credential flows, and short-lived access grants.

Connections are declared in a YAML file (see --help of each command).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		observability.Configure(flagLogLevel, flagLogFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "console", "Log format (console|json)")
}

// Execute runs the CLI.
func Execute() {
	defer observability.Sync()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		observability.CLILogger.Error(err.Error())
		os.Exit(1)
	}
}

// app is the assembled gateway plus its configuration.
type app struct {
	cfg     *appconfig.Config
	gateway *gateway.Gateway
}

// buildApp loads configuration, reads the connections file, and wires
// the gateway subsystems together.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := appconfig.Load(ctx)
	if err != nil {
		return nil, err
	}

	store, err := loadStore(cfg.ConnectionsFile)
	if err != nil {
		return nil, err
	}

	logger := observability.CLILogger

	orch := oauthflow.New(nil, logger,
		oauthflow.WithRefreshMargin(cfg.Gateway.RefreshMargin))
	reg := registry.New(store, orch, logger,
		registry.WithAdapterTimeout(cfg.Gateway.AdapterTimeout))
	orch.SetTokenStore(reg)

	ls := listing.New(reg, logger,
		listing.WithInterval(cfg.Gateway.ListInterval),
		listing.WithRefreshDelay(cfg.Gateway.AutoRefreshDelay))
	broker := grants.New(reg, logger,
		grants.WithDefaultTTL(cfg.Gateway.GrantTTL))

	return &app{
		cfg:     cfg,
		gateway: gateway.New(reg, ls, broker, logger),
	}, nil
}

func loadStore(path string) (*registry.MemoryStore, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return registry.NewMemoryStore(), nil
	}
	store, err := registry.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load connections %s: %w", path, err)
	}
	return store, nil
}

func (a *app) close() {
	if err := a.gateway.Registry().Close(); err != nil {
		observability.CLILogger.Warn("registry close: " + err.Error())
	}
}

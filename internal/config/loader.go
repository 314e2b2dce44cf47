// Package config loads gateway configuration from file, environment,
// and defaults, in that order of increasing precedence for env.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const envPrefix = "STOWGATE"

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// GatewayConfig holds the behavioral knobs of the gateway subsystems.
type GatewayConfig struct {
	// AdapterTimeout bounds every single provider call.
	AdapterTimeout time.Duration `mapstructure:"adapter_timeout"`
	// RefreshMargin is how long before expiry an access token counts
	// as stale.
	RefreshMargin time.Duration `mapstructure:"refresh_margin"`
	// ListInterval is the minimum spacing between backend listing
	// calls per connection and filter.
	ListInterval time.Duration `mapstructure:"list_interval"`
	// AutoRefreshDelay is the idle delay between automatic listing
	// refreshes.
	AutoRefreshDelay time.Duration `mapstructure:"auto_refresh_delay"`
	// GrantTTL is the default lifetime of issued access grants.
	GrantTTL time.Duration `mapstructure:"grant_ttl"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the root configuration document.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Logging LoggingConfig `mapstructure:"logging"`

	// ConnectionsFile points at the YAML document declaring storage
	// connections.
	ConnectionsFile string `mapstructure:"connections_file"`
}

// Load reads configuration. A config file is optional; when given via
// STOWGATE_CONFIG or found as stowgate.yaml in the working directory
// it is merged under the defaults, and environment variables
// (STOWGATE_SERVER_PORT and friends) override both.
func Load(_ context.Context) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("gateway.adapter_timeout", 30*time.Second)
	v.SetDefault("gateway.refresh_margin", time.Minute)
	v.SetDefault("gateway.list_interval", time.Second)
	v.SetDefault("gateway.auto_refresh_delay", 2*time.Second)
	v.SetDefault("gateway.grant_ttl", 5*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("connections_file", "connections.yaml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("stowgate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Gateway.ListInterval <= 0 {
		return fmt.Errorf("gateway.list_interval must be positive")
	}
	if c.Gateway.AutoRefreshDelay < c.Gateway.ListInterval {
		return fmt.Errorf("gateway.auto_refresh_delay must be at least gateway.list_interval")
	}
	if c.Gateway.GrantTTL <= 0 {
		return fmt.Errorf("gateway.grant_ttl must be positive")
	}
	return nil
}

// Addr renders the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Package grants issues short-lived access grants for single objects
// through the connection registry. No grant is ever cached or
// persisted; every call derives a fresh one.
package grants

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stowgate/stowgate/pkg/provider"
	"github.com/stowgate/stowgate/pkg/registry"
)

// DefaultTTL bounds private-object grants when the connection does not
// configure its own.
const DefaultTTL = 5 * time.Minute

// Grant is the caller-facing result: the URL plus the exact remaining
// seconds, nil for direct URLs that never expire.
type Grant struct {
	URL              string `json:"url"`
	ConnectionID     string `json:"connection_id"`
	Key              string `json:"key"`
	ExpiresInSeconds *int64 `json:"expires_in_seconds"`
}

// Resolver yields the adapter and config bound to a connection id.
// Satisfied by registry.Registry.
type Resolver interface {
	Resolve(ctx context.Context, id string) (provider.Adapter, *registry.ConnectionConfig, error)
}

// Broker is the secure access layer over the registry.
type Broker struct {
	registry   Resolver
	logger     *zap.Logger
	defaultTTL time.Duration
	now        func() time.Time
}

// Option configures a Broker.
type Option func(*Broker)

// WithDefaultTTL overrides the fallback grant lifetime.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(b *Broker) { b.defaultTTL = ttl }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) { b.now = now }
}

// New creates a broker.
func New(reg Resolver, logger *zap.Logger, opts ...Option) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Broker{
		registry:   reg,
		logger:     logger,
		defaultTTL: DefaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// IssueGrant derives a fresh access grant for one object. The
// connection's grant settings gate issuance: disabled grants and keys
// outside the configured prefixes fail with ErrUnsupportedOperation.
func (b *Broker) IssueGrant(ctx context.Context, connectionID, key string) (*Grant, error) {
	adapter, cfg, err := b.registry.Resolve(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	if !cfg.Grants.Enabled {
		return nil, &provider.AdapterError{
			Op: "IssueGrant", Kind: cfg.Kind, ConnectionID: connectionID, Key: key,
			Err: provider.ErrUnsupportedOperation,
		}
	}
	if !keyAllowed(key, cfg.Grants.KeyPrefixes) {
		return nil, &provider.AdapterError{
			Op: "IssueGrant", Kind: cfg.Kind, ConnectionID: connectionID, Key: key,
			Err: provider.ErrUnsupportedOperation,
		}
	}

	ttl := cfg.Grants.TTL.Std()
	if ttl <= 0 {
		ttl = b.defaultTTL
	}

	grant, err := adapter.Grant(ctx, key, ttl)
	if err != nil {
		return nil, err
	}

	out := &Grant{
		URL:          grant.URL,
		ConnectionID: connectionID,
		Key:          key,
	}
	if secs, ok := grant.ExpiresIn(b.now()); ok {
		out.ExpiresInSeconds = &secs
	}

	b.logger.Debug("grant issued",
		zap.String("connection", connectionID),
		zap.String("key", key),
		zap.Bool("expiring", out.ExpiresInSeconds != nil))
	return out, nil
}

// keyAllowed applies the per-connection key prefix restriction. An
// empty restriction allows every key.
func keyAllowed(key string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

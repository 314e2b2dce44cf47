package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stowgate/stowgate/pkg/oauthflow"
	"github.com/stowgate/stowgate/pkg/provider"
	"github.com/stowgate/stowgate/pkg/provider/dropbox"
	"github.com/stowgate/stowgate/pkg/provider/googledrive"
	"github.com/stowgate/stowgate/pkg/provider/onedrive"
	"github.com/stowgate/stowgate/pkg/provider/s3compat"
)

// Registry owns the mapping connection id → (config, bound adapter,
// OAuth lifecycle state). Adapters are built on first resolve and cached
// until the config changes or the connection is disabled.
type Registry struct {
	store   Store
	orch    *oauthflow.Orchestrator
	logger  *zap.Logger
	timeout time.Duration

	mu       sync.Mutex
	adapters map[string]provider.Adapter
}

var _ oauthflow.TokenStore = (*Registry)(nil)

// Option configures a Registry.
type Option func(*Registry)

// WithAdapterTimeout sets the default bound on adapter network calls.
func WithAdapterTimeout(timeout time.Duration) Option {
	return func(r *Registry) { r.timeout = timeout }
}

// New creates a registry over the given store and orchestrator.
func New(store Store, orch *oauthflow.Orchestrator, logger *zap.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		store:    store,
		orch:     orch,
		logger:   logger,
		timeout:  provider.DefaultTimeout,
		adapters: make(map[string]provider.Adapter),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Orchestrator exposes the OAuth lifecycle owner for this registry.
func (r *Registry) Orchestrator() *oauthflow.Orchestrator {
	return r.orch
}

// Resolve returns the bound adapter and config for a connection id.
// Fails with ErrConnectionNotFound for absent ids and
// ErrConnectionDisabled for disabled ones; a disabled connection never
// falls through to a stale cached adapter.
func (r *Registry) Resolve(ctx context.Context, id string) (provider.Adapter, *ConnectionConfig, error) {
	cfg, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Enabled {
		r.evict(id)
		return nil, nil, fmt.Errorf("connection %q: %w", id, ErrConnectionDisabled)
	}

	adapter, err := r.adapter(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return adapter, cfg, nil
}

// adapter returns the cached adapter for cfg, building one if needed.
func (r *Registry) adapter(ctx context.Context, cfg *ConnectionConfig) (provider.Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.adapters[cfg.ID]; ok {
		return a, nil
	}

	a, err := r.build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r.adapters[cfg.ID] = a
	r.logger.Debug("adapter bound",
		zap.String("connection", cfg.ID),
		zap.String("provider", cfg.Kind.String()))
	return a, nil
}

// BuildAdapter constructs an adapter without caching it. Callers own
// the returned adapter and must Close it. Used for probing ad hoc
// configurations that are not (yet) stored.
func (r *Registry) BuildAdapter(ctx context.Context, cfg *ConnectionConfig) (provider.Adapter, error) {
	return r.build(ctx, cfg)
}

// build constructs an adapter for the config's kind. OAuth kinds are
// wired to the orchestrator's credential source and seeded with the
// persisted refresh token.
func (r *Registry) build(ctx context.Context, cfg *ConnectionConfig) (provider.Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = r.timeout
	}

	switch cfg.Kind {
	case provider.KindS3Compatible:
		return s3compat.New(ctx, s3compat.Config{
			ConnectionID:    cfg.ID,
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			ForcePathStyle:  cfg.ForcePathStyle,
			PublicRead:      cfg.PublicRead,
		}, timeout)

	case provider.KindGoogleDrive:
		a, err := googledrive.New(googledrive.Config{
			ConnectionID: cfg.ID,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			FolderID:     cfg.Folder,
			RedirectURL:  cfg.RedirectURL,
		}, r.orch.Source(cfg.ID), timeout)
		if err != nil {
			return nil, err
		}
		r.orch.Bind(cfg.ID, a, cfg.RefreshToken)
		return a, nil

	case provider.KindOneDrive:
		a, err := onedrive.New(onedrive.Config{
			ConnectionID: cfg.ID,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Tenant:       cfg.Tenant,
			FolderPath:   cfg.Folder,
			RedirectURL:  cfg.RedirectURL,
		}, r.orch.Source(cfg.ID), timeout)
		if err != nil {
			return nil, err
		}
		r.orch.Bind(cfg.ID, a, cfg.RefreshToken)
		return a, nil

	case provider.KindDropbox:
		a, err := dropbox.New(dropbox.Config{
			ConnectionID: cfg.ID,
			AppKey:       cfg.ClientID,
			AppSecret:    cfg.ClientSecret,
			FolderPath:   cfg.Folder,
			RedirectURL:  cfg.RedirectURL,
		}, r.orch.Source(cfg.ID), timeout)
		if err != nil {
			return nil, err
		}
		r.orch.Bind(cfg.ID, a, cfg.RefreshToken)
		return a, nil

	default:
		return nil, &provider.ConfigError{Kind: cfg.Kind, Field: "Kind", Message: "unknown provider kind"}
	}
}

// ResolveOAuth resolves a connection whose adapter must be
// OAuth-capable.
func (r *Registry) ResolveOAuth(ctx context.Context, id string) (provider.OAuthAdapter, *ConnectionConfig, error) {
	adapter, cfg, err := r.Resolve(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	oa, ok := adapter.(provider.OAuthAdapter)
	if !ok {
		return nil, nil, &provider.AdapterError{
			Op: "ResolveOAuth", Kind: cfg.Kind, ConnectionID: id,
			Err: provider.ErrUnsupportedOperation,
		}
	}
	return oa, cfg, nil
}

// AssignFolder binds an application folder id to a connection,
// enforcing the registry-wide uniqueness invariant at write time: a
// folder may belong to at most one enabled connection. The rejection is
// idempotent and order-independent.
func (r *Registry) AssignFolder(ctx context.Context, id, folderID string) error {
	if folderID == "" {
		return errors.New("folder id is required")
	}

	cfg, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}

	all, err := r.store.All(ctx)
	if err != nil {
		return err
	}
	for _, other := range all {
		if other.ID == id || !other.Enabled {
			continue
		}
		if other.HasFolder(folderID) {
			return &FolderAssignedError{FolderID: folderID, OwnerID: other.ID}
		}
	}

	if cfg.HasFolder(folderID) {
		return nil
	}
	cfg.AssignedFolders = append(cfg.AssignedFolders, folderID)
	if err := r.store.Put(ctx, cfg); err != nil {
		return err
	}
	r.logger.Info("folder assigned",
		zap.String("connection", id), zap.String("folder", folderID))
	return nil
}

// AvailableFolders filters candidates down to folder ids not owned by
// any other enabled connection: the connection's own assignments plus
// unassigned ids. Derived read, no side effects.
func (r *Registry) AvailableFolders(ctx context.Context, id string, candidates []string) ([]string, error) {
	all, err := r.store.All(ctx)
	if err != nil {
		return nil, err
	}

	owned := make(map[string]string)
	for _, cfg := range all {
		if cfg.ID == id || !cfg.Enabled {
			continue
		}
		for _, f := range cfg.AssignedFolders {
			owned[f] = cfg.ID
		}
	}

	out := make([]string, 0, len(candidates))
	for _, f := range candidates {
		if _, taken := owned[f]; !taken {
			out = append(out, f)
		}
	}
	return out, nil
}

// SetEnabled flips the enabled flag. Disabling evicts the cached
// adapter and revokes any cached OAuth credential; re-enabling clears
// the revocation so the connection rebuilds from its persisted refresh
// token.
func (r *Registry) SetEnabled(ctx context.Context, id string, enabled bool) error {
	cfg, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if cfg.Enabled == enabled {
		return nil
	}

	cfg.Enabled = enabled
	if err := r.store.Put(ctx, cfg); err != nil {
		return err
	}

	if !enabled {
		r.evict(id)
		if cfg.Kind.OAuth() && r.orch != nil {
			r.orch.Revoke(id)
		}
	} else if cfg.Kind.OAuth() && r.orch != nil {
		// Re-enabling drops the revoked lifecycle record so the next
		// resolve re-seeds from the persisted refresh token.
		r.orch.Forget(id)
	}
	r.logger.Info("connection enabled flag changed",
		zap.String("connection", id), zap.Bool("enabled", enabled))
	return nil
}

// SaveRefreshToken implements oauthflow.TokenStore: write-back of the
// derived OAuth field after successful exchange or rotation.
func (r *Registry) SaveRefreshToken(ctx context.Context, id, refreshToken string) error {
	cfg, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	cfg.RefreshToken = refreshToken
	return r.store.Put(ctx, cfg)
}

// Invalidate drops the cached adapter for a connection, forcing a
// rebuild on next resolve. Call after editing its configuration.
func (r *Registry) Invalidate(id string) {
	r.evict(id)
}

// Store exposes the backing configuration store.
func (r *Registry) Store() Store {
	return r.store
}

// Close releases all cached adapters.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for id, a := range r.adapters {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.adapters, id)
	}
	return firstErr
}

func (r *Registry) evict(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.adapters[id]; ok {
		_ = a.Close()
		delete(r.adapters, id)
	}
}

// Package oauthflow manages the three-legged OAuth lifecycle for
// connections whose provider requires it.
//
// Each connection moves through a small state machine:
//
//	Unauthenticated → AuthorizationRequested → AwaitingCallback → Authenticated
//	Authenticated → Refreshing → Authenticated   (lazy, near expiry)
//	any → Revoked                                (user action or invalid grant)
//
// Refreshes are single-flight per connection id: concurrent callers
// observing an expired token share one in-flight refresh and its result.
package oauthflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stowgate/stowgate/pkg/provider"
)

// State names a position in the per-connection lifecycle.
type State string

const (
	StateUnauthenticated        State = "unauthenticated"
	StateAuthorizationRequested State = "authorization_requested"
	StateAwaitingCallback       State = "awaiting_callback"
	StateAuthenticated          State = "authenticated"
	StateRefreshing             State = "refreshing"
	StateRevoked                State = "revoked"
)

// Lifecycle errors.
var (
	// ErrMissingCredentials indicates Begin was called without a client
	// id or secret. No state transition occurs.
	ErrMissingCredentials = errors.New("missing oauth client credentials")

	// ErrAuthorizationFailed indicates a code exchange was rejected.
	// The connection returns to Unauthenticated.
	ErrAuthorizationFailed = errors.New("authorization failed")

	// ErrCredentialRevoked indicates the provider rejected the refresh
	// token. The caller must restart from Begin.
	ErrCredentialRevoked = errors.New("credential revoked")

	// ErrNotAuthenticated indicates no credential exists yet for the
	// connection.
	ErrNotAuthenticated = errors.New("connection not authenticated")
)

// DefaultRefreshMargin is how long before access token expiry a refresh
// is triggered.
const DefaultRefreshMargin = time.Minute

// TokenStore receives the durable refresh token after a successful
// exchange or rotation. Implemented by the connection registry; the
// backing store encrypts the value. Access tokens never pass through.
type TokenStore interface {
	SaveRefreshToken(ctx context.Context, connectionID, refreshToken string) error
}

// Orchestrator owns the OAuth lifecycle state for all connections.
type Orchestrator struct {
	store  TokenStore
	logger *zap.Logger
	margin time.Duration
	now    func() time.Time

	mu    sync.Mutex
	conns map[string]*connection
}

// connection is the per-id lifecycle record.
type connection struct {
	mu      sync.Mutex
	state   State
	adapter provider.OAuthAdapter
	cred    *provider.Credential
	refresh *refreshCall
}

// refreshCall is one in-flight refresh shared by concurrent callers.
type refreshCall struct {
	done chan struct{}
	cred *provider.Credential
	err  error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRefreshMargin overrides the expiry safety margin.
func WithRefreshMargin(margin time.Duration) Option {
	return func(o *Orchestrator) { o.margin = margin }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator. store may be nil when refresh tokens need
// no write-back (tests).
func New(store TokenStore, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		store:  store,
		logger: logger,
		margin: DefaultRefreshMargin,
		now:    time.Now,
		conns:  make(map[string]*connection),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetTokenStore installs the refresh token sink. Called once during
// assembly, before any flow runs; the registry cannot be passed to New
// because it is constructed around this orchestrator.
func (o *Orchestrator) SetTokenStore(store TokenStore) {
	o.store = store
}

// conn returns the lifecycle record for id, creating it Unauthenticated.
func (o *Orchestrator) conn(id string) *connection {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.conns[id]
	if !ok {
		c = &connection{state: StateUnauthenticated}
		o.conns[id] = c
	}
	return c
}

// Bind associates an adapter with a connection and seeds its credential
// from the persisted refresh token. Called by the registry whenever it
// builds an adapter. A non-empty refresh token puts the connection in
// Authenticated with an expired access token, so the first data-plane
// call refreshes lazily.
func (o *Orchestrator) Bind(id string, adapter provider.OAuthAdapter, refreshToken string) {
	c := o.conn(id)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.adapter = adapter
	if refreshToken != "" && c.cred == nil && c.state != StateRevoked {
		c.cred = &provider.Credential{RefreshToken: refreshToken}
		c.state = StateAuthenticated
	}
}

// State reports the current lifecycle state for a connection.
func (o *Orchestrator) State(id string) State {
	c := o.conn(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Begin starts the authorization flow: validates the client credentials,
// binds the adapter, and hands back the consent URL. The connection ends
// in AwaitingCallback. Revoked connections re-enter the flow here.
func (o *Orchestrator) Begin(id string, adapter provider.OAuthAdapter, clientID, clientSecret, state, redirectURL string) (string, error) {
	if clientID == "" || clientSecret == "" {
		return "", ErrMissingCredentials
	}

	c := o.conn(id)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.adapter = adapter
	c.state = StateAuthorizationRequested

	url, err := adapter.AuthorizationURL(state, redirectURL)
	if err != nil {
		c.state = StateUnauthenticated
		return "", fmt.Errorf("%w: %v", ErrAuthorizationFailed, err)
	}

	c.state = StateAwaitingCallback
	o.logger.Info("oauth authorization requested",
		zap.String("connection", id),
		zap.String("provider", adapter.Kind().String()))
	return url, nil
}

// Complete exchanges the delivered authorization code. Only a
// connection in AwaitingCallback accepts the exchange; any other state
// fails with ErrNotAuthenticated. Success moves the connection to
// Authenticated and persists the refresh token; failure returns it to
// Unauthenticated with ErrAuthorizationFailed.
func (o *Orchestrator) Complete(ctx context.Context, id, code string) (*provider.Credential, error) {
	c := o.conn(id)
	c.mu.Lock()
	adapter := c.adapter
	state := c.state
	c.mu.Unlock()

	if adapter == nil || state != StateAwaitingCallback {
		return nil, ErrNotAuthenticated
	}

	cred, err := adapter.ExchangeCode(ctx, code)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateUnauthenticated
		c.cred = nil
		o.logger.Warn("oauth code exchange failed",
			zap.String("connection", id), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrAuthorizationFailed, err)
	}

	c.cred = cred
	c.state = StateAuthenticated
	o.logger.Info("oauth connection authenticated", zap.String("connection", id))

	if o.store != nil && cred.RefreshToken != "" {
		if err := o.store.SaveRefreshToken(ctx, id, cred.RefreshToken); err != nil {
			o.logger.Error("persisting refresh token failed",
				zap.String("connection", id), zap.Error(err))
		}
	}

	snapshot := *cred
	return &snapshot, nil
}

// TokenFor returns a live credential for data-plane calls, refreshing
// lazily when the access token is within the safety margin of expiry.
// At most one refresh per connection is in flight; late arrivals wait
// for it and observe the same result.
func (o *Orchestrator) TokenFor(ctx context.Context, id string) (*provider.Credential, error) {
	c := o.conn(id)

	c.mu.Lock()
	switch c.state {
	case StateRevoked:
		c.mu.Unlock()
		return nil, ErrCredentialRevoked
	case StateAuthenticated, StateRefreshing:
	default:
		c.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	if c.cred == nil || c.cred.RefreshToken == "" {
		c.mu.Unlock()
		return nil, ErrNotAuthenticated
	}

	// Fresh enough: no refresh needed.
	if !c.cred.ExpiresWithin(o.now(), o.margin) {
		snapshot := *c.cred
		c.mu.Unlock()
		return &snapshot, nil
	}

	// A refresh is already in flight: wait for its result.
	if c.refresh != nil {
		call := c.refresh
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-call.done:
			return call.cred, call.err
		}
	}

	// We own the refresh.
	call := &refreshCall{done: make(chan struct{})}
	c.refresh = call
	c.state = StateRefreshing
	prior := c.cred
	adapter := c.adapter
	c.mu.Unlock()

	cred, err := adapter.Refresh(ctx, prior)

	c.mu.Lock()
	c.refresh = nil
	switch {
	case err == nil:
		c.cred = cred
		c.state = StateAuthenticated
		if o.store != nil && cred.RefreshToken != "" && cred.RefreshToken != prior.RefreshToken {
			// Rotated refresh token: persist, or the next process start
			// is locked out.
			if saveErr := o.store.SaveRefreshToken(ctx, id, cred.RefreshToken); saveErr != nil {
				o.logger.Error("persisting rotated refresh token failed",
					zap.String("connection", id), zap.Error(saveErr))
			}
		}
		snapshot := *cred
		call.cred = &snapshot
	case provider.IsGrantRevoked(err):
		c.cred = nil
		c.state = StateRevoked
		err = fmt.Errorf("%w: %v", ErrCredentialRevoked, err)
		o.logger.Warn("oauth grant revoked", zap.String("connection", id))
	default:
		// Transient failure: keep the credential, stay Authenticated so
		// the next call retries the refresh.
		c.state = StateAuthenticated
		o.logger.Warn("token refresh failed",
			zap.String("connection", id), zap.Error(err))
	}
	call.err = err
	close(call.done)
	c.mu.Unlock()

	return call.cred, call.err
}

// Revoke clears the connection's credential and parks it in Revoked.
// Called when a user disconnects or a connection is disabled or deleted.
func (o *Orchestrator) Revoke(id string) {
	c := o.conn(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cred = nil
	c.state = StateRevoked
	o.logger.Info("oauth connection revoked", zap.String("connection", id))
}

// Forget drops all lifecycle state for a connection, returning it to
// Unauthenticated on next use. Called when a connection is deleted.
func (o *Orchestrator) Forget(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.conns, id)
}

// Source returns a provider.CredentialSource bound to one connection,
// for wiring into OAuth adapters.
func (o *Orchestrator) Source(id string) provider.CredentialSource {
	return &boundSource{orch: o, id: id}
}

type boundSource struct {
	orch *Orchestrator
	id   string
}

func (s *boundSource) Token(ctx context.Context) (*provider.Credential, error) {
	return s.orch.TokenFor(ctx, s.id)
}

// Package gateway is the external surface of the storage gateway: the
// operation set consumed by UI and CLI layers. It is a thin facade over
// the registry, the OAuth orchestrator, the listing service, and the
// access broker, returning structured results the caller can render
// directly.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stowgate/stowgate/pkg/grants"
	"github.com/stowgate/stowgate/pkg/listing"
	"github.com/stowgate/stowgate/pkg/oauthflow"
	"github.com/stowgate/stowgate/pkg/provider"
	"github.com/stowgate/stowgate/pkg/registry"
)

// ErrInlineCredentialsRejected indicates inline credentials were
// supplied for an already-stored connection. Secret material is never
// re-transmitted once persisted; stored connections always test with
// stored credentials.
var ErrInlineCredentialsRejected = errors.New("inline credentials not allowed for a stored connection")

// Gateway bundles the registry, listing service, and access broker
// behind the caller-facing operation set.
type Gateway struct {
	registry *registry.Registry
	listing  *listing.Service
	broker   *grants.Broker
	logger   *zap.Logger
}

// New assembles a gateway.
func New(reg *registry.Registry, ls *listing.Service, broker *grants.Broker, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{registry: reg, listing: ls, broker: broker, logger: logger}
}

// Registry exposes the underlying registry.
func (g *Gateway) Registry() *registry.Registry {
	return g.registry
}

// TestConnection probes a connection. When inline is non-nil the probe
// runs against the inline configuration instead of a stored one; this
// is allowed only while the connection id is not yet persisted.
func (g *Gateway) TestConnection(ctx context.Context, connectionID string, inline *registry.ConnectionConfig) (*provider.TestResult, error) {
	if inline != nil {
		if _, err := g.registry.Store().Get(ctx, connectionID); err == nil {
			return nil, ErrInlineCredentialsRejected
		} else if !errors.Is(err, registry.ErrConnectionNotFound) {
			return nil, err
		}

		adapter, err := g.registry.BuildAdapter(ctx, inline)
		if err != nil {
			return nil, err
		}
		defer func() { _ = adapter.Close() }()
		return adapter.TestConnection(ctx), nil
	}

	adapter, _, err := g.registry.Resolve(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return adapter.TestConnection(ctx), nil
}

// ListFiles returns one throttled listing page.
func (g *Gateway) ListFiles(ctx context.Context, connectionID string, filter listing.Filter) (*provider.ListResult, error) {
	return g.listing.ListFiles(ctx, connectionID, filter)
}

// GetAccessGrant derives a fresh access grant for one object.
func (g *Gateway) GetAccessGrant(ctx context.Context, connectionID, key string) (*grants.Grant, error) {
	return g.broker.IssueGrant(ctx, connectionID, key)
}

// BeginOAuthResult carries the consent URL the caller must open.
type BeginOAuthResult struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// BeginOAuth starts the authorization flow for an OAuth connection,
// persisting the supplied client credentials first. Empty credentials
// fail with oauthflow.ErrMissingCredentials without touching state.
func (g *Gateway) BeginOAuth(ctx context.Context, connectionID, clientID, clientSecret string) (*BeginOAuthResult, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("connection %q: %w", connectionID, oauthflow.ErrMissingCredentials)
	}

	cfg, err := g.registry.Store().Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if !cfg.Kind.OAuth() {
		return nil, &provider.AdapterError{
			Op: "BeginOAuth", Kind: cfg.Kind, ConnectionID: connectionID,
			Err: provider.ErrUnsupportedOperation,
		}
	}

	if cfg.ClientID != clientID || cfg.ClientSecret != clientSecret {
		cfg.ClientID = clientID
		cfg.ClientSecret = clientSecret
		if err := g.registry.Store().Put(ctx, cfg); err != nil {
			return nil, err
		}
		g.registry.Invalidate(connectionID)
	}

	adapter, cfg, err := g.registry.ResolveOAuth(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	state := uuid.New().String()
	url, err := g.registry.Orchestrator().Begin(connectionID, adapter, clientID, clientSecret, state, cfg.RedirectURL)
	if err != nil {
		return nil, err
	}
	return &BeginOAuthResult{AuthorizationURL: url, State: state}, nil
}

// CompleteOAuthResult reports the exchange outcome. The refresh token
// is surfaced once, for stores that persist it out of band.
type CompleteOAuthResult struct {
	Success      bool   `json:"success"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// CompleteOAuth finishes the flow with the delivered authorization
// code.
func (g *Gateway) CompleteOAuth(ctx context.Context, connectionID, code string) (*CompleteOAuthResult, error) {
	cred, err := g.registry.Orchestrator().Complete(ctx, connectionID, code)
	if err != nil {
		return nil, err
	}
	g.logger.Info("oauth flow completed", zap.String("connection", connectionID))
	return &CompleteOAuthResult{Success: true, RefreshToken: cred.RefreshToken}, nil
}

// DiagnosticStep is one check in a diagnostic report.
type DiagnosticStep struct {
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Detail  string        `json:"detail,omitempty"`
	Latency time.Duration `json:"latency,omitempty"`
}

// DiagnosticReport is the extended troubleshooting output: a superset
// of TestConnection.
type DiagnosticReport struct {
	ConnectionID string           `json:"connection_id"`
	Kind         provider.Kind    `json:"kind"`
	Healthy      bool             `json:"healthy"`
	Steps        []DiagnosticStep `json:"steps"`
}

// Diagnose runs the full check ladder for a connection: configuration,
// resolution, connectivity, listing, and grant settings. Secrets never
// appear in the report.
func (g *Gateway) Diagnose(ctx context.Context, connectionID string) (*DiagnosticReport, error) {
	cfg, err := g.registry.Store().Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	report := &DiagnosticReport{
		ConnectionID: connectionID,
		Kind:         cfg.Kind,
		Healthy:      true,
	}
	fail := func(step DiagnosticStep) {
		report.Healthy = false
		report.Steps = append(report.Steps, step)
	}
	pass := func(step DiagnosticStep) {
		step.OK = true
		report.Steps = append(report.Steps, step)
	}

	// Configuration completeness, before any network call.
	if err := cfg.Validate(); err != nil {
		fail(DiagnosticStep{Name: "configuration", Detail: err.Error()})
		return report, nil
	}
	pass(DiagnosticStep{Name: "configuration", Detail: configSummary(cfg)})

	if !cfg.Enabled {
		fail(DiagnosticStep{Name: "enabled", Detail: "connection is disabled"})
		return report, nil
	}
	pass(DiagnosticStep{Name: "enabled"})

	adapter, _, err := g.registry.Resolve(ctx, connectionID)
	if err != nil {
		fail(DiagnosticStep{Name: "adapter", Detail: err.Error()})
		return report, nil
	}
	pass(DiagnosticStep{Name: "adapter", Detail: string(cfg.Kind)})

	probe := adapter.TestConnection(ctx)
	step := DiagnosticStep{Name: "connectivity", Detail: probe.Message, Latency: probe.Latency}
	if probe.Success {
		pass(step)
	} else {
		fail(step)
		return report, nil
	}

	start := time.Now()
	page, err := adapter.List(ctx, provider.ListOptions{MaxResults: 1})
	if err != nil {
		fail(DiagnosticStep{Name: "listing", Detail: err.Error(), Latency: time.Since(start)})
	} else {
		pass(DiagnosticStep{
			Name:    "listing",
			Detail:  fmt.Sprintf("listing permitted (%d object(s) on first page)", len(page.Files)),
			Latency: time.Since(start),
		})
	}

	if cfg.Grants.Enabled {
		ttl := cfg.Grants.TTL.Std()
		if ttl <= 0 {
			ttl = grants.DefaultTTL
		}
		pass(DiagnosticStep{Name: "grants", Detail: fmt.Sprintf("enabled, ttl %s", ttl)})
	} else {
		pass(DiagnosticStep{Name: "grants", Detail: "disabled"})
	}

	return report, nil
}

// configSummary renders the non-secret identity of a connection, with
// key material masked.
func configSummary(cfg *registry.ConnectionConfig) string {
	switch cfg.Kind {
	case provider.KindS3Compatible:
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "aws"
		}
		return fmt.Sprintf("bucket %q via %s, access key %s", cfg.Bucket, endpoint, MaskSecret(cfg.AccessKeyID))
	default:
		return fmt.Sprintf("client id %s, folder %q", MaskSecret(cfg.ClientID), cfg.Folder)
	}
}

// MaskSecret masks all but the last four characters of a secret for
// display.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

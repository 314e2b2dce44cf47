// Package onedrive implements the storage adapter for OneDrive through
// the Microsoft Graph API with three-legged OAuth.
package onedrive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/stowgate/stowgate/pkg/provider"
)

// graphBase is the Microsoft Graph v1.0 endpoint.
const graphBase = "https://graph.microsoft.com/v1.0"

// DefaultPageSize is the Graph default page size for children listings.
const DefaultPageSize = 200

// Scopes requested during authorization. offline_access yields the
// refresh token.
var Scopes = []string{"offline_access", "Files.ReadWrite"}

// Config configures a OneDrive adapter.
type Config struct {
	// ConnectionID names the owning connection.
	ConnectionID string

	// ClientID and ClientSecret identify the OAuth application
	// (both required).
	ClientID     string
	ClientSecret string

	// Tenant is the Azure AD tenant, "common" for consumer accounts.
	Tenant string

	// FolderPath is the drive-relative folder the connection is rooted
	// at. Empty means the drive root.
	FolderPath string

	// RedirectURL is the OAuth callback the surrounding application
	// serves.
	RedirectURL string
}

// Adapter implements provider.OAuthAdapter for OneDrive.
type Adapter struct {
	cfg     Config
	oauth   *oauth2.Config
	source  provider.CredentialSource
	client  *http.Client
	timeout time.Duration
}

var _ provider.OAuthAdapter = (*Adapter)(nil)

// New creates a OneDrive adapter.
func New(cfg Config, source provider.CredentialSource, timeout time.Duration) (*Adapter, error) {
	if cfg.ClientID == "" {
		return nil, &provider.ConfigError{Kind: provider.KindOneDrive, Field: "ClientID", Message: "client id is required"}
	}
	if cfg.ClientSecret == "" {
		return nil, &provider.ConfigError{Kind: provider.KindOneDrive, Field: "ClientSecret", Message: "client secret is required"}
	}
	if cfg.Tenant == "" {
		cfg.Tenant = "common"
	}
	if timeout <= 0 {
		timeout = provider.DefaultTimeout
	}

	return &Adapter{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     microsoft.AzureADEndpoint(cfg.Tenant),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       Scopes,
		},
		source:  source,
		client:  provider.NewHTTPClient(timeout),
		timeout: timeout,
	}, nil
}

// Kind implements provider.Adapter.
func (a *Adapter) Kind() provider.Kind {
	return provider.KindOneDrive
}

// AuthorizationURL implements provider.OAuthAdapter.
func (a *Adapter) AuthorizationURL(state, redirectURL string) (string, error) {
	cfg := *a.oauth
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}
	return provider.AuthCodeURL(&cfg, state), nil
}

// ExchangeCode implements provider.OAuthAdapter.
func (a *Adapter) ExchangeCode(ctx context.Context, code string) (*provider.Credential, error) {
	cred, err := provider.ExchangeCode(ctx, a.oauth, a.client, code, a.timeout)
	if err != nil {
		return nil, a.wrapError("ExchangeCode", "", err)
	}
	return cred, nil
}

// Refresh implements provider.OAuthAdapter.
func (a *Adapter) Refresh(ctx context.Context, cred *provider.Credential) (*provider.Credential, error) {
	next, err := provider.RefreshCredential(ctx, a.oauth, a.client, cred, a.timeout)
	if err != nil {
		return nil, a.wrapError("Refresh", "", err)
	}
	return next, nil
}

// driveItem is the subset of the Graph driveItem resource the gateway
// reads.
type driveItem struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModifiedDateTime"`
	Folder       *struct{} `json:"folder,omitempty"`
	File         *struct{} `json:"file,omitempty"`
}

type childrenPage struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

type graphError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// TestConnection fetches the drive metadata, or the configured folder
// when one is set.
func (a *Adapter) TestConnection(ctx context.Context) *provider.TestResult {
	start := time.Now()

	endpoint := graphBase + "/me/drive"
	if a.cfg.FolderPath != "" {
		endpoint = a.itemURL(a.cfg.FolderPath, "")
	}

	var item driveItem
	err := a.do(ctx, http.MethodGet, endpoint, nil, &item)
	latency := time.Since(start)
	if err != nil {
		wrapped := a.wrapError("TestConnection", a.cfg.FolderPath, err)
		msg := wrapped.Error()
		switch {
		case errors.Is(wrapped, provider.ErrObjectNotFound):
			msg = fmt.Sprintf("onedrive folder %q not found", a.cfg.FolderPath)
		case errors.Is(wrapped, provider.ErrGrantRevoked):
			msg = "authorization revoked, reconnect the drive"
		case errors.Is(wrapped, provider.ErrInvalidCredentials):
			msg = "onedrive credentials rejected"
		case errors.Is(wrapped, provider.ErrNetworkTimeout):
			msg = "graph endpoint did not respond within the timeout"
		}
		return &provider.TestResult{
			Success:   false,
			Message:   msg,
			ErrorCode: provider.ErrorCode(wrapped),
			Latency:   latency,
		}
	}

	if a.cfg.FolderPath != "" && item.Folder == nil {
		return &provider.TestResult{
			Success:   false,
			Message:   fmt.Sprintf("onedrive item %q is not a folder", a.cfg.FolderPath),
			ErrorCode: "CONFIGURATION",
			Latency:   latency,
		}
	}

	return &provider.TestResult{
		Success: true,
		Message: "onedrive reachable",
		Latency: latency,
	}
}

// List returns one page of children of the configured folder. The page
// token is the Graph @odata.nextLink URL, passed through opaquely.
func (a *Adapter) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	endpoint := a.childrenURL(opts)
	if opts.PageToken != "" {
		if !strings.HasPrefix(opts.PageToken, graphBase) {
			return nil, &provider.AdapterError{
				Op: "List", Kind: provider.KindOneDrive, ConnectionID: a.cfg.ConnectionID,
				Err: provider.ErrInvalidPageToken,
			}
		}
		endpoint = opts.PageToken
	}

	var page childrenPage
	if err := a.do(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return nil, a.wrapError("List", "", err)
	}

	files := make([]provider.RemoteFile, 0, len(page.Value))
	for _, item := range page.Value {
		if item.Folder != nil {
			continue
		}
		files = append(files, provider.RemoteFile{
			Key:          path.Join(a.cfg.FolderPath, item.Name),
			Size:         item.Size,
			LastModified: item.LastModified,
			Visibility:   provider.VisibilityPrivate,
			ConnectionID: a.cfg.ConnectionID,
		})
	}

	return &provider.ListResult{
		Files:         files,
		NextPageToken: page.NextLink,
	}, nil
}

// Grant creates an anonymous view link bounded by ttl via the Graph
// createLink action.
func (a *Adapter) Grant(ctx context.Context, key string, ttl time.Duration) (*provider.AccessGrant, error) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	expiresAt := time.Now().Add(ttl)

	body := map[string]any{
		"type":               "view",
		"scope":              "anonymous",
		"expirationDateTime": expiresAt.UTC().Format(time.RFC3339),
	}

	var resp struct {
		Link struct {
			WebURL string `json:"webUrl"`
		} `json:"link"`
	}
	if err := a.do(ctx, http.MethodPost, a.itemURL(key, "createLink"), body, &resp); err != nil {
		return nil, a.wrapError("Grant", key, err)
	}

	return &provider.AccessGrant{
		URL:          resp.Link.WebURL,
		ConnectionID: a.cfg.ConnectionID,
		Key:          key,
		ExpiresAt:    expiresAt,
	}, nil
}

// Close implements provider.Adapter.
func (a *Adapter) Close() error {
	return nil
}

// childrenURL builds the listing endpoint for the configured folder.
func (a *Adapter) childrenURL(opts provider.ListOptions) string {
	top := opts.MaxResults
	if top <= 0 {
		top = DefaultPageSize
	}
	base := graphBase + "/me/drive/root/children"
	if a.cfg.FolderPath != "" {
		base = fmt.Sprintf("%s/me/drive/root:/%s:/children", graphBase, escapePath(a.cfg.FolderPath))
	}
	return fmt.Sprintf("%s?$top=%d", base, top)
}

// itemURL addresses a drive item by path, with an optional action
// segment.
func (a *Adapter) itemURL(key, action string) string {
	u := fmt.Sprintf("%s/me/drive/root:/%s", graphBase, escapePath(key))
	if action != "" {
		u += ":/" + action
	}
	return u
}

func escapePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// do performs one authenticated Graph request. Transient failures are
// retried by the underlying retryable transport.
func (a *Adapter) do(ctx context.Context, method, endpoint string, body, out any) error {
	if a.source == nil {
		return provider.ErrInvalidCredentials
	}
	cred, err := a.source.Token(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := provider.BoundContext(ctx, a.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return provider.ErrNetworkTimeout
		}
		return provider.ErrProviderUnavailable
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return graphStatusError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// graphStatusError maps a Graph error response to the adapter taxonomy.
func graphStatusError(resp *http.Response) error {
	var gerr graphError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	_ = json.Unmarshal(raw, &gerr)
	code := gerr.Error.Code

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return provider.ErrObjectNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return provider.ErrInvalidCredentials
	case resp.StatusCode == http.StatusForbidden:
		return provider.ErrAccessDenied
	case resp.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(gerr.Error.Message), "token"):
		return provider.ErrInvalidPageToken
	case code == "notSupported", code == "notAllowed":
		return provider.ErrUnsupportedOperation
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return provider.ErrProviderUnavailable
	default:
		return fmt.Errorf("graph: %s (%s)", gerr.Error.Message, code)
	}
}

// wrapError attaches operation context to a mapped error.
func (a *Adapter) wrapError(op, key string, err error) error {
	var existing *provider.AdapterError
	if errors.As(err, &existing) {
		return err
	}
	return &provider.AdapterError{
		Op:           op,
		Kind:         provider.KindOneDrive,
		ConnectionID: a.cfg.ConnectionID,
		Key:          key,
		Err:          err,
	}
}

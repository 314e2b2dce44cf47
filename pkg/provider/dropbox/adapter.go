// Package dropbox implements the storage adapter for Dropbox through
// its HTTP API v2 with three-legged OAuth.
package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/stowgate/stowgate/pkg/provider"
)

const apiBase = "https://api.dropboxapi.com/2"

// DefaultPageSize is the default limit for list_folder calls.
const DefaultPageSize = 500

// temporaryLinkTTL is how long Dropbox temporary links stay valid. The
// API fixes this at four hours; requested TTLs are ignored.
const temporaryLinkTTL = 4 * time.Hour

// Config configures a Dropbox adapter.
type Config struct {
	// ConnectionID names the owning connection.
	ConnectionID string

	// AppKey and AppSecret identify the Dropbox app (both required).
	AppKey    string
	AppSecret string

	// FolderPath is the app-relative folder the connection is rooted
	// at. Empty means the app folder root.
	FolderPath string

	// RedirectURL is the OAuth callback the surrounding application
	// serves.
	RedirectURL string
}

// Adapter implements provider.OAuthAdapter for Dropbox.
type Adapter struct {
	cfg     Config
	oauth   *oauth2.Config
	source  provider.CredentialSource
	client  *http.Client
	timeout time.Duration
}

var _ provider.OAuthAdapter = (*Adapter)(nil)

// New creates a Dropbox adapter.
func New(cfg Config, source provider.CredentialSource, timeout time.Duration) (*Adapter, error) {
	if cfg.AppKey == "" {
		return nil, &provider.ConfigError{Kind: provider.KindDropbox, Field: "AppKey", Message: "app key is required"}
	}
	if cfg.AppSecret == "" {
		return nil, &provider.ConfigError{Kind: provider.KindDropbox, Field: "AppSecret", Message: "app secret is required"}
	}
	if timeout <= 0 {
		timeout = provider.DefaultTimeout
	}

	return &Adapter{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.AppKey,
			ClientSecret: cfg.AppSecret,
			Endpoint:     endpoints.Dropbox,
			RedirectURL:  cfg.RedirectURL,
		},
		source:  source,
		client:  provider.NewHTTPClient(timeout),
		timeout: timeout,
	}, nil
}

// Kind implements provider.Adapter.
func (a *Adapter) Kind() provider.Kind {
	return provider.KindDropbox
}

// AuthorizationURL implements provider.OAuthAdapter. Dropbox uses
// token_access_type=offline instead of the standard offline access
// parameter to issue a refresh token.
func (a *Adapter) AuthorizationURL(state, redirectURL string) (string, error) {
	cfg := *a.oauth
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}
	return cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("token_access_type", "offline")), nil
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

type entry struct {
	Tag            string    `json:".tag"`
	Name           string    `json:"name"`
	PathDisplay    string    `json:"path_display"`
	Size           int64     `json:"size"`
	ServerModified time.Time `json:"server_modified"`
}

type listFolderResult struct {
	Entries []entry `json:"entries"`
	Cursor  string  `json:"cursor"`
	HasMore bool    `json:"has_more"`
}

type apiError struct {
	Summary string `json:"error_summary"`
}

// TestConnection calls users/get_current_account: the cheapest call that
// proves the token is live.
func (a *Adapter) TestConnection(ctx context.Context) *provider.TestResult {
	start := time.Now()

	var account struct {
		Name struct {
			DisplayName string `json:"display_name"`
		} `json:"name"`
	}
	err := a.rpc(ctx, "/users/get_current_account", nil, &account)
	latency := time.Since(start)
	if err != nil {
		wrapped := a.wrapError("TestConnection", "", err)
		msg := wrapped.Error()
		switch {
		case errors.Is(wrapped, provider.ErrGrantRevoked):
			msg = "authorization revoked, reconnect dropbox"
		case errors.Is(wrapped, provider.ErrInvalidCredentials):
			msg = "dropbox credentials rejected"
		case errors.Is(wrapped, provider.ErrNetworkTimeout):
			msg = "dropbox did not respond within the timeout"
		}
		return &provider.TestResult{
			Success:   false,
			Message:   msg,
			ErrorCode: provider.ErrorCode(wrapped),
			Latency:   latency,
		}
	}

	return &provider.TestResult{
		Success: true,
		Message: fmt.Sprintf("dropbox account %q reachable", account.Name.DisplayName),
		Latency: latency,
	}
}

// List returns one page of files under the configured folder. The page
// token is the Dropbox cursor, resumed via list_folder/continue.
func (a *Adapter) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	var result listFolderResult
	var err error
	if opts.PageToken != "" {
		err = a.rpc(ctx, "/files/list_folder/continue", map[string]any{"cursor": opts.PageToken}, &result)
	} else {
		limit := opts.MaxResults
		if limit <= 0 {
			limit = DefaultPageSize
		}
		err = a.rpc(ctx, "/files/list_folder", map[string]any{
			"path":      a.rootPath(),
			"recursive": false,
			"limit":     limit,
		}, &result)
	}
	if err != nil {
		return nil, a.wrapError("List", "", err)
	}

	files := make([]provider.RemoteFile, 0, len(result.Entries))
	for _, e := range result.Entries {
		if e.Tag != "file" {
			continue
		}
		files = append(files, provider.RemoteFile{
			Key:          e.PathDisplay,
			Size:         e.Size,
			LastModified: e.ServerModified,
			Visibility:   provider.VisibilityPrivate,
			ConnectionID: a.cfg.ConnectionID,
		})
	}

	out := &provider.ListResult{Files: files}
	if result.HasMore {
		out.NextPageToken = result.Cursor
	}
	return out, nil
}

// Grant issues a temporary link. Dropbox fixes the lifetime at four
// hours; the requested TTL is ignored.
func (a *Adapter) Grant(ctx context.Context, key string, _ time.Duration) (*provider.AccessGrant, error) {
	var resp struct {
		Link string `json:"link"`
	}
	if err := a.rpc(ctx, "/files/get_temporary_link", map[string]any{"path": key}, &resp); err != nil {
		return nil, a.wrapError("Grant", key, err)
	}

	return &provider.AccessGrant{
		URL:          resp.Link,
		ConnectionID: a.cfg.ConnectionID,
		Key:          key,
		ExpiresAt:    time.Now().Add(temporaryLinkTTL),
	}, nil
}

// Close implements provider.Adapter.
func (a *Adapter) Close() error {
	return nil
}

// rootPath normalizes the configured folder to the Dropbox path
// convention: "" for root, otherwise "/folder".
func (a *Adapter) rootPath() string {
	p := strings.Trim(a.cfg.FolderPath, "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// rpc performs one authenticated RPC-style call. Transient failures are
// retried by the underlying retryable transport.
func (a *Adapter) rpc(ctx context.Context, endpoint string, body, out any) error {
	if a.source == nil {
		return provider.ErrInvalidCredentials
	}
	cred, err := a.source.Token(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := provider.BoundContext(ctx, a.timeout)
	defer cancel()

	payload := []byte("null")
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiBase+endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return provider.ErrNetworkTimeout
		}
		return provider.ErrProviderUnavailable
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return dropboxStatusError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// dropboxStatusError maps an API error response to the adapter taxonomy.
// Dropbox reports operation errors as 409 with a machine-readable
// error_summary.
func dropboxStatusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var aerr apiError
	_ = json.Unmarshal(raw, &aerr)
	summary := aerr.Summary

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return provider.ErrInvalidCredentials
	case resp.StatusCode == http.StatusForbidden:
		return provider.ErrAccessDenied
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return provider.ErrProviderUnavailable
	case strings.Contains(summary, "not_found"):
		return provider.ErrObjectNotFound
	case strings.Contains(summary, "reset"), strings.Contains(summary, "invalid_cursor"):
		return provider.ErrInvalidPageToken
	case strings.Contains(summary, "unsupported"):
		return provider.ErrUnsupportedOperation
	default:
		return fmt.Errorf("dropbox: %s", summary)
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
		Kind:         provider.KindDropbox,
		ConnectionID: a.cfg.ConnectionID,
		Key:          key,
		Err:          err,
	}
}

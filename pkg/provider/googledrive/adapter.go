// Package googledrive implements the storage adapter for Google Drive
// using the Drive v3 API with three-legged OAuth.
package googledrive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/stowgate/stowgate/pkg/provider"
)

// Scope grants access to files the app created or was given. Matches the
// consent the connection requests during authorization.
const Scope = "https://www.googleapis.com/auth/drive.file"

const folderMimeType = "application/vnd.google-apps.folder"

// DefaultPageSize is the Drive default page size for file listings.
const DefaultPageSize = 100

// Config configures a Google Drive adapter.
type Config struct {
	// ConnectionID names the owning connection.
	ConnectionID string

	// ClientID and ClientSecret identify the OAuth application
	// (both required).
	ClientID     string
	ClientSecret string

	// FolderID is the Drive folder the connection is rooted at
	// (required for listing and testing).
	FolderID string

	// RedirectURL is the OAuth callback the surrounding application
	// serves.
	RedirectURL string
}

// Adapter implements provider.OAuthAdapter for Google Drive.
type Adapter struct {
	cfg     Config
	oauth   *oauth2.Config
	source  provider.CredentialSource
	client  *http.Client
	timeout time.Duration
}

var _ provider.OAuthAdapter = (*Adapter)(nil)

// New creates a Google Drive adapter. The credential source supplies
// access tokens for data-plane calls; it may be nil for adapters used
// only to run the authorization flow.
func New(cfg Config, source provider.CredentialSource, timeout time.Duration) (*Adapter, error) {
	if cfg.ClientID == "" {
		return nil, &provider.ConfigError{Kind: provider.KindGoogleDrive, Field: "ClientID", Message: "client id is required"}
	}
	if cfg.ClientSecret == "" {
		return nil, &provider.ConfigError{Kind: provider.KindGoogleDrive, Field: "ClientSecret", Message: "client secret is required"}
	}
	if timeout <= 0 {
		timeout = provider.DefaultTimeout
	}

	return &Adapter{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoints.Google,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{Scope},
		},
		source:  source,
		client:  provider.NewHTTPClient(timeout),
		timeout: timeout,
	}, nil
}

// Kind implements provider.Adapter.
func (a *Adapter) Kind() provider.Kind {
	return provider.KindGoogleDrive
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

// TestConnection fetches the configured folder's metadata: one GET that
// proves the token works and the folder exists and really is a folder.
func (a *Adapter) TestConnection(ctx context.Context) *provider.TestResult {
	start := time.Now()

	if a.cfg.FolderID == "" {
		return &provider.TestResult{
			Success:   false,
			Message:   "no folder id configured",
			ErrorCode: "CONFIGURATION",
		}
	}

	svc, err := a.service(ctx)
	if err != nil {
		return a.testFailure(err, time.Since(start))
	}

	ctx, cancel := provider.BoundContext(ctx, a.timeout)
	defer cancel()

	meta, err := svc.Files.Get(a.cfg.FolderID).
		Fields("id", "name", "mimeType").
		SupportsAllDrives(true).
		Context(ctx).Do()
	latency := time.Since(start)
	if err != nil {
		return a.testFailure(a.wrapError("TestConnection", a.cfg.FolderID, err), latency)
	}
	if meta.MimeType != folderMimeType {
		return &provider.TestResult{
			Success:   false,
			Message:   fmt.Sprintf("drive item %q is not a folder", meta.Name),
			ErrorCode: "CONFIGURATION",
			Latency:   latency,
		}
	}

	return &provider.TestResult{
		Success: true,
		Message: fmt.Sprintf("drive folder %q reachable", meta.Name),
		Latency: latency,
	}
}

func (a *Adapter) testFailure(err error, latency time.Duration) *provider.TestResult {
	msg := err.Error()
	switch {
	case errors.Is(err, provider.ErrObjectNotFound), errors.Is(err, provider.ErrContainerNotFound):
		msg = "drive folder not found"
	case errors.Is(err, provider.ErrGrantRevoked):
		msg = "authorization revoked, reconnect the drive"
	case errors.Is(err, provider.ErrInvalidCredentials):
		msg = "drive credentials rejected"
	case errors.Is(err, provider.ErrNetworkTimeout):
		msg = "drive did not respond within the timeout"
	}
	return &provider.TestResult{
		Success:   false,
		Message:   msg,
		ErrorCode: provider.ErrorCode(err),
		Latency:   latency,
	}
}

// List returns one page of non-trashed files under the configured
// folder. Drive page tokens pass through opaquely.
func (a *Adapter) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	svc, err := a.service(ctx)
	if err != nil {
		return nil, err
	}

	pageSize := int64(opts.MaxResults)
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	query := fmt.Sprintf("'%s' in parents and trashed = false", a.cfg.FolderID)
	if opts.Prefix != "" {
		query += fmt.Sprintf(" and name contains '%s'", strings.ReplaceAll(opts.Prefix, "'", `\'`))
	}

	var page *drive.FileList
	err = provider.RetryOnce(ctx, func(ctx context.Context) error {
		ctx, cancel := provider.BoundContext(ctx, a.timeout)
		defer cancel()

		call := svc.Files.List().
			Q(query).
			PageSize(pageSize).
			Fields("nextPageToken", "files(id,name,size,modifiedTime,shared,webContentLink)").
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Context(ctx)
		if opts.PageToken != "" {
			call = call.PageToken(opts.PageToken)
		}

		var callErr error
		page, callErr = call.Do()
		if callErr != nil {
			return a.wrapError("List", "", callErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	files := make([]provider.RemoteFile, 0, len(page.Files))
	for _, f := range page.Files {
		visibility := provider.VisibilityPrivate
		if f.Shared && f.WebContentLink != "" {
			visibility = provider.VisibilityPublic
		}
		modified, _ := time.Parse(time.RFC3339, f.ModifiedTime)
		files = append(files, provider.RemoteFile{
			Key:          f.Id,
			Size:         f.Size,
			LastModified: modified,
			Visibility:   visibility,
			ConnectionID: a.cfg.ConnectionID,
		})
	}

	return &provider.ListResult{
		Files:         files,
		NextPageToken: page.NextPageToken,
	}, nil
}

// Grant returns the direct content link for shared files. Drive cannot
// mint time-limited URLs for private file content, so private files fail
// with ErrUnsupportedOperation.
func (a *Adapter) Grant(ctx context.Context, key string, _ time.Duration) (*provider.AccessGrant, error) {
	svc, err := a.service(ctx)
	if err != nil {
		return nil, err
	}

	var meta *drive.File
	err = provider.RetryOnce(ctx, func(ctx context.Context) error {
		ctx, cancel := provider.BoundContext(ctx, a.timeout)
		defer cancel()
		var callErr error
		meta, callErr = svc.Files.Get(key).
			Fields("id", "shared", "webContentLink").
			SupportsAllDrives(true).
			Context(ctx).Do()
		if callErr != nil {
			return a.wrapError("Grant", key, callErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !meta.Shared || meta.WebContentLink == "" {
		return nil, &provider.AdapterError{
			Op:           "Grant",
			Kind:         provider.KindGoogleDrive,
			ConnectionID: a.cfg.ConnectionID,
			Key:          key,
			Err:          provider.ErrUnsupportedOperation,
		}
	}

	return &provider.AccessGrant{
		URL:          meta.WebContentLink,
		ConnectionID: a.cfg.ConnectionID,
		Key:          key,
	}, nil
}

// Close implements provider.Adapter.
func (a *Adapter) Close() error {
	return nil
}

// service builds a Drive service whose HTTP client injects tokens from
// the credential source.
func (a *Adapter) service(ctx context.Context) (*drive.Service, error) {
	if a.source == nil {
		return nil, &provider.AdapterError{
			Op:           "service",
			Kind:         provider.KindGoogleDrive,
			ConnectionID: a.cfg.ConnectionID,
			Err:          provider.ErrInvalidCredentials,
		}
	}

	ts := &credentialTokenSource{ctx: ctx, source: a.source}
	httpClient := &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: a.client.Transport},
		Timeout:   a.timeout,
	}

	svc, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, &provider.AdapterError{
			Op:           "service",
			Kind:         provider.KindGoogleDrive,
			ConnectionID: a.cfg.ConnectionID,
			Err:          err,
		}
	}
	return svc, nil
}

// credentialTokenSource adapts provider.CredentialSource to
// oauth2.TokenSource.
type credentialTokenSource struct {
	ctx    context.Context
	source provider.CredentialSource
}

func (t *credentialTokenSource) Token() (*oauth2.Token, error) {
	cred, err := t.source.Token(t.ctx)
	if err != nil {
		return nil, err
	}
	return cred.OAuth2Token(), nil
}

// wrapError converts Drive API errors to the adapter taxonomy.
func (a *Adapter) wrapError(op, key string, err error) error {
	wrapped := &provider.AdapterError{
		Op:           op,
		Kind:         provider.KindGoogleDrive,
		ConnectionID: a.cfg.ConnectionID,
		Key:          key,
		Err:          err,
	}

	if mapped := provider.MapOAuthError(err); mapped != err {
		wrapped.Err = mapped
		return wrapped
	}
	if errors.Is(err, context.DeadlineExceeded) {
		wrapped.Err = provider.ErrNetworkTimeout
		return wrapped
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusNotFound:
			wrapped.Err = provider.ErrObjectNotFound
		case apiErr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "page token"):
			wrapped.Err = provider.ErrInvalidPageToken
		case apiErr.Code == http.StatusUnauthorized:
			wrapped.Err = provider.ErrInvalidCredentials
		case apiErr.Code == http.StatusForbidden && strings.Contains(apiErr.Message, "rate"):
			wrapped.Err = provider.ErrProviderUnavailable
		case apiErr.Code == http.StatusForbidden:
			wrapped.Err = provider.ErrAccessDenied
		case apiErr.Code >= 500:
			wrapped.Err = provider.ErrProviderUnavailable
		}
	}
	return wrapped
}

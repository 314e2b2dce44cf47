package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"
)

// DefaultTimeout bounds every adapter network call unless the connection
// configures its own.
const DefaultTimeout = 30 * time.Second

// NewHTTPClient builds the HTTP client adapters use for REST calls.
//
// RetryMax is 1: transient failures are retried at most once inside the
// adapter before surfacing, per the gateway's propagation policy. The
// client logger is silenced; adapters do their own structured logging.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = 1
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = timeout
	rc.Logger = nil

	c := rc.StandardClient()
	c.Timeout = timeout
	return c
}

// AuthCodeURL builds a three-legged consent URL requesting offline
// access so the exchange yields a refresh token.
func AuthCodeURL(cfg *oauth2.Config, state string, extra ...oauth2.AuthCodeOption) string {
	opts := append([]oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.ApprovalForce}, extra...)
	return cfg.AuthCodeURL(state, opts...)
}

// ExchangeCode trades an authorization code for a credential, bounding
// the call and mapping provider rejections to typed errors.
func ExchangeCode(ctx context.Context, cfg *oauth2.Config, client *http.Client, code string, timeout time.Duration) (*Credential, error) {
	ctx, cancel := BoundContext(ctx, timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, MapOAuthError(err)
	}
	return CredentialFromToken(tok, nil), nil
}

// RefreshCredential obtains a fresh access token from the credential's
// refresh token. A revoked grant surfaces as ErrGrantRevoked.
func RefreshCredential(ctx context.Context, cfg *oauth2.Config, client *http.Client, cred *Credential, timeout time.Duration) (*Credential, error) {
	if cred == nil || cred.RefreshToken == "" {
		return nil, ErrGrantRevoked
	}

	ctx, cancel := BoundContext(ctx, timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)

	// TokenSource with an expired token forces a refresh grant request.
	seed := &oauth2.Token{RefreshToken: cred.RefreshToken}
	tok, err := cfg.TokenSource(ctx, seed).Token()
	if err != nil {
		return nil, MapOAuthError(err)
	}
	return CredentialFromToken(tok, cred), nil
}

// MapOAuthError converts oauth2 transport failures to the adapter error
// taxonomy.
func MapOAuthError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		switch rerr.ErrorCode {
		case "invalid_grant":
			return ErrGrantRevoked
		case "invalid_client", "unauthorized_client":
			return ErrInvalidCredentials
		case "invalid_request":
			return err
		}
		if rerr.Response != nil && rerr.Response.StatusCode >= 500 {
			return ErrProviderUnavailable
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrNetworkTimeout
	}
	return err
}

// BoundContext applies the adapter timeout unless the caller's deadline
// is already tighter.
func BoundContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

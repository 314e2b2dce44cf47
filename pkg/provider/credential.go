package provider

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// Credential holds the OAuth token pair for one connection.
//
// The access token lives in process memory only; callers must never
// persist it. The refresh token is the only durable field and is stored
// encrypted by the external configuration store.
type Credential struct {
	// AccessToken is the ephemeral bearer token. Never persisted.
	AccessToken string

	// RefreshToken is the durable grant. Persisted by the external store.
	RefreshToken string

	// Expiry is the absolute access token expiry. Zero means unknown,
	// which is treated as expired.
	Expiry time.Time
}

// ExpiresWithin reports whether the access token is missing, already
// expired, or will expire within margin of now.
func (c *Credential) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if c == nil || c.AccessToken == "" {
		return true
	}
	if c.Expiry.IsZero() {
		return true
	}
	return !now.Add(margin).Before(c.Expiry)
}

// OAuth2Token converts the credential to an oauth2.Token.
func (c *Credential) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		Expiry:       c.Expiry,
		TokenType:    "Bearer",
	}
}

// CredentialFromToken converts an oauth2.Token to a Credential. When the
// provider omits a rotated refresh token, prior carries the one to keep.
func CredentialFromToken(tok *oauth2.Token, prior *Credential) *Credential {
	cred := &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if cred.RefreshToken == "" && prior != nil {
		cred.RefreshToken = prior.RefreshToken
	}
	return cred
}

// StaticSource is a CredentialSource returning a fixed credential.
// Used in tests and for short-lived inline probes.
type StaticSource Credential

// Token implements CredentialSource.
func (s *StaticSource) Token(_ context.Context) (*Credential, error) {
	c := Credential(*s)
	return &c, nil
}

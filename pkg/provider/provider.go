// Package provider defines the uniform capability interface that every
// external storage backend implements.
//
// An Adapter binds one configured connection to one backend (an
// S3-compatible bucket or an OAuth consumer drive) and exposes the same
// test/list/grant contract regardless of provider. Operations that can
// fail due to external service state return typed errors; only missing
// required configuration fails before any network call.
package provider

import (
	"context"
	"time"
)

// Adapter abstracts the storage capability set of one connection.
//
// Implementations must be safe for concurrent use and must apply a
// bounded timeout to every network call.
type Adapter interface {
	// Kind identifies the backing provider.
	Kind() Kind

	// TestConnection performs the cheapest round trip that proves the
	// credentials and target container are reachable. Expected failure
	// modes (bad credentials, unreachable endpoint, missing container)
	// are reported in the result, never as an error.
	TestConnection(ctx context.Context) *TestResult

	// List returns one page of objects. The page token is opaque and
	// provider-defined; passing an unknown or expired token fails with
	// ErrInvalidPageToken.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// Grant issues an access grant for a single object. Public objects
	// yield a direct URL with no expiry; private objects yield a
	// provider-native time-limited URL. Returns ErrObjectNotFound if the
	// key does not exist and ErrUnsupportedOperation if the provider
	// cannot issue time-limited URLs for the object's class.
	Grant(ctx context.Context, key string, ttl time.Duration) (*AccessGrant, error)

	// Close releases any resources held by the adapter.
	Close() error
}

// OAuthAdapter is implemented by adapters whose provider requires
// three-legged OAuth (Google Drive, OneDrive, Dropbox).
type OAuthAdapter interface {
	Adapter

	// AuthorizationURL builds the consent URL the user must visit.
	// The state value round-trips through the provider's redirect.
	AuthorizationURL(state, redirectURL string) (string, error)

	// ExchangeCode trades an authorization code for a credential.
	ExchangeCode(ctx context.Context, code string) (*Credential, error)

	// Refresh obtains a fresh access token from the credential's refresh
	// token. A revoked grant fails with ErrGrantRevoked.
	Refresh(ctx context.Context, cred *Credential) (*Credential, error)
}

// CredentialSource supplies the current credential for an OAuth adapter's
// data-plane calls. The OAuth flow orchestrator implements this with
// lazy, single-flight refresh; adapters never refresh on their own
// during TestConnection/List/Grant.
type CredentialSource interface {
	Token(ctx context.Context) (*Credential, error)
}

// ListOptions configures a List operation.
type ListOptions struct {
	// Prefix filters results to keys starting with this value.
	Prefix string

	// PageToken resumes listing from a previous ListResult.
	// Empty string starts from the beginning.
	PageToken string

	// MaxResults limits the page size. Zero uses the provider default.
	MaxResults int
}

// ListResult contains one page of a listing.
type ListResult struct {
	Files []RemoteFile `json:"files"`

	// NextPageToken retrieves the next page. Empty means no more pages.
	NextPageToken string `json:"next_page_token,omitempty"`
}

// Visibility classifies who can fetch an object without a grant.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// RemoteFile is a normalized listing row. It is an immutable snapshot of
// remote state at list time, never cached across calls.
type RemoteFile struct {
	// Key is the provider-native object key (path or file id).
	Key string `json:"key"`

	// Size is the object size in bytes.
	Size int64 `json:"size"`

	// LastModified is when the object last changed.
	LastModified time.Time `json:"last_modified"`

	// Visibility is public for objects fetchable without a grant.
	Visibility Visibility `json:"visibility"`

	// ConnectionID names the connection the file was listed through.
	ConnectionID string `json:"connection_id"`
}

// TestResult reports the outcome of a connection test. Produced per
// invocation, never stored.
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`

	// ErrorCode carries the normalized failure class for diagnostics,
	// empty on success.
	ErrorCode string `json:"error_code,omitempty"`

	// Latency is the duration of the probe round trip.
	Latency time.Duration `json:"latency"`
}

// AccessGrant is an ephemeral capability for fetching a single object.
// It is consumed once and never persisted; there is no revocation beyond
// natural expiry.
type AccessGrant struct {
	URL          string `json:"url"`
	ConnectionID string `json:"connection_id"`
	Key          string `json:"key"`

	// ExpiresAt is the absolute expiry. The zero value means the URL is
	// a direct static link that does not expire.
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Expires reports whether the grant has a bounded lifetime.
func (g *AccessGrant) Expires() bool {
	return !g.ExpiresAt.IsZero()
}

// ExpiresIn returns the remaining whole seconds until expiry, or false
// for non-expiring grants.
func (g *AccessGrant) ExpiresIn(now time.Time) (int64, bool) {
	if !g.Expires() {
		return 0, false
	}
	secs := int64(g.ExpiresAt.Sub(now) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return secs, true
}

// Kind identifies a storage provider.
type Kind string

const (
	// KindS3Compatible represents AWS S3 and S3-compatible stores
	// (MinIO, Wasabi, DigitalOcean Spaces).
	KindS3Compatible Kind = "s3_compatible"

	// KindGoogleDrive represents Google Drive via the Drive v3 API.
	KindGoogleDrive Kind = "google_drive"

	// KindOneDrive represents OneDrive via the Microsoft Graph API.
	KindOneDrive Kind = "onedrive"

	// KindDropbox represents Dropbox via its HTTP API v2.
	KindDropbox Kind = "dropbox"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// OAuth reports whether the kind authenticates with three-legged OAuth
// rather than static keys.
func (k Kind) OAuth() bool {
	switch k {
	case KindGoogleDrive, KindOneDrive, KindDropbox:
		return true
	}
	return false
}

// Valid reports whether k names a known provider kind.
func (k Kind) Valid() bool {
	switch k {
	case KindS3Compatible, KindGoogleDrive, KindOneDrive, KindDropbox:
		return true
	}
	return false
}

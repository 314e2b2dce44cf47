// Package registry owns connection configuration and the binding of
// connection ids to live provider adapters.
package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stowgate/stowgate/pkg/provider"
)

// Duration is a time.Duration that round-trips as "5m"-style strings in
// YAML and JSON, so connections files stay human-editable.
type Duration time.Duration

// Std returns the standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler, accepting either a duration
// string or nanoseconds.
func (d *Duration) UnmarshalJSON(raw []byte) error {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return err
	}
	*d = Duration(n)
	return nil
}

// ConnectionConfig is the persisted record for one connection. It is
// created and edited by the external configuration store; the gateway
// reads it and writes back only the derived OAuth refresh token.
//
// Secret fields are excluded from JSON so they never surface in API
// responses once stored.
type ConnectionConfig struct {
	// ID is the unique connection id.
	ID string `yaml:"id" json:"id"`

	// Kind selects the provider variant.
	Kind provider.Kind `yaml:"kind" json:"kind"`

	// Title is a display name for UI layers.
	Title string `yaml:"title" json:"title"`

	// Enabled gates resolution: disabled connections never yield an
	// adapter.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// S3-compatible fields.
	Endpoint        string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Region          string `yaml:"region,omitempty" json:"region,omitempty"`
	Bucket          string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"-"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"-"`
	ForcePathStyle  bool   `yaml:"force_path_style,omitempty" json:"force_path_style,omitempty"`
	PublicRead      bool   `yaml:"public_read,omitempty" json:"public_read,omitempty"`

	// OAuth provider fields.
	ClientID     string `yaml:"client_id,omitempty" json:"-"`
	ClientSecret string `yaml:"client_secret,omitempty" json:"-"`
	Tenant       string `yaml:"tenant,omitempty" json:"tenant,omitempty"`
	RedirectURL  string `yaml:"redirect_url,omitempty" json:"redirect_url,omitempty"`

	// RefreshToken is the derived OAuth field written back after a
	// successful flow. The backing store encrypts it at rest.
	RefreshToken string `yaml:"refresh_token,omitempty" json:"-"`

	// Folder is the remote folder (Drive folder id or drive-relative
	// path) the connection is rooted at.
	Folder string `yaml:"folder,omitempty" json:"folder,omitempty"`

	// AssignedFolders are application folder ids offloaded to this
	// connection. A folder id may belong to at most one enabled
	// connection across the registry.
	AssignedFolders []string `yaml:"assigned_folders,omitempty" json:"assigned_folders,omitempty"`

	// Grants controls access grant issuance for this connection.
	Grants GrantSettings `yaml:"grants,omitempty" json:"grants,omitempty"`

	// Timeout bounds each adapter network call. Zero uses the gateway
	// default.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// GrantSettings are the per-connection access grant switches.
type GrantSettings struct {
	// Enabled allows grant issuance at all.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// TTL is the grant lifetime for private objects. Zero uses the
	// gateway default.
	TTL Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`

	// KeyPrefixes, when non-empty, restricts grant issuance to object
	// keys starting with one of these prefixes.
	KeyPrefixes []string `yaml:"key_prefixes,omitempty" json:"key_prefixes,omitempty"`
}

// HasFolder reports whether the folder id is assigned to this
// connection.
func (c *ConnectionConfig) HasFolder(folderID string) bool {
	for _, f := range c.AssignedFolders {
		if f == folderID {
			return true
		}
	}
	return false
}

// Validate checks the fields required for the configured kind, before
// any adapter is built.
func (c *ConnectionConfig) Validate() error {
	if c.ID == "" {
		return &provider.ConfigError{Kind: c.Kind, Field: "ID", Message: "connection id is required"}
	}
	if !c.Kind.Valid() {
		return &provider.ConfigError{Kind: c.Kind, Field: "Kind", Message: "unknown provider kind"}
	}

	switch c.Kind {
	case provider.KindS3Compatible:
		if c.Bucket == "" {
			return &provider.ConfigError{Kind: c.Kind, Field: "Bucket", Message: "bucket name is required"}
		}
		if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
			return &provider.ConfigError{Kind: c.Kind, Field: "AccessKeyID/SecretAccessKey",
				Message: "access key and secret must be provided together"}
		}
	default:
		if (c.ClientID == "") != (c.ClientSecret == "") {
			return &provider.ConfigError{Kind: c.Kind, Field: "ClientID/ClientSecret",
				Message: "client id and secret must be provided together"}
		}
	}
	return nil
}

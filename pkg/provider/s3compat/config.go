// Package s3compat implements the storage adapter for AWS S3 and
// S3-compatible object stores (MinIO, Wasabi, DigitalOcean Spaces).
package s3compat

// Config configures an S3-compatible adapter.
//
// Authentication uses static keys from the connection record. For
// S3-compatible stores, set Endpoint and typically ForcePathStyle.
type Config struct {
	// ConnectionID names the owning connection, stamped onto listing
	// rows and grants.
	ConnectionID string

	// Bucket is the target bucket name (required).
	Bucket string

	// Region is the AWS region. Defaults to us-east-1 for AWS S3 when
	// unset; no default is applied when Endpoint is set.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible stores.
	// Leave empty for AWS S3.
	Endpoint string

	// AccessKeyID and SecretAccessKey are the static credentials
	// (both required).
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle forces path-style URLs (bucket in path, not
	// subdomain). Required for most S3-compatible stores.
	ForcePathStyle bool

	// PublicRead marks the bucket as world-readable: listed objects are
	// public and grants are direct static URLs with no expiry.
	PublicRead bool

	// MaxResults is the default page size for List. Zero uses
	// DefaultPageSize; values over MaxPageSize are clamped.
	MaxResults int
}

// DefaultPageSize is the default page size for List operations.
const DefaultPageSize = 1000

// MaxPageSize is the maximum page size allowed by S3.
const MaxPageSize = 1000

// DefaultRegion is the fallback region for AWS S3 when not specified.
const DefaultRegion = "us-east-1"

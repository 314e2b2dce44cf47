package provider

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for adapter operations.
var (
	// ErrObjectNotFound indicates the requested object does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrContainerNotFound indicates the bucket or folder does not exist.
	ErrContainerNotFound = errors.New("container not found")

	// ErrInvalidPageToken indicates an unknown or expired page token.
	ErrInvalidPageToken = errors.New("invalid page token")

	// ErrUnsupportedOperation indicates the provider cannot perform the
	// operation for the object's class.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrInvalidCredentials indicates authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccessDenied indicates insufficient permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrGrantRevoked indicates the OAuth grant behind a refresh token
	// was revoked by the user or provider.
	ErrGrantRevoked = errors.New("oauth grant revoked")

	// ErrNetworkTimeout indicates a bounded call deadline elapsed.
	// Safe to retry with backoff.
	ErrNetworkTimeout = errors.New("network timeout")

	// ErrProviderUnavailable indicates the provider service is down or
	// throttling. Safe to retry with backoff.
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// AdapterError wraps provider-specific failures with operation context.
type AdapterError struct {
	// Op is the operation that failed (e.g. "List", "Grant").
	Op string

	// Kind is the provider kind.
	Kind Kind

	// ConnectionID names the connection, if bound.
	ConnectionID string

	// Key is the object key, if applicable.
	Key string

	// Err is the underlying error, usually one of the sentinels.
	Err error
}

// Error implements the error interface.
func (e *AdapterError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Kind, e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AdapterError) Unwrap() error {
	return e.Err
}

// ConfigError reports missing or invalid required configuration. It is
// caller-fixable and raised before any network call.
type ConfigError struct {
	Kind    Kind
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s config: %s: %s", e.Kind, e.Field, e.Message)
}

// IsObjectNotFound reports whether err indicates a missing object.
func IsObjectNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}

// IsInvalidPageToken reports whether err indicates a bad page token.
func IsInvalidPageToken(err error) bool {
	return errors.Is(err, ErrInvalidPageToken)
}

// IsUnsupported reports whether err indicates an unsupported operation.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedOperation)
}

// IsGrantRevoked reports whether err indicates a revoked OAuth grant.
func IsGrantRevoked(err error) bool {
	return errors.Is(err, ErrGrantRevoked)
}

// IsTransient reports whether err is safe to retry with backoff.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetworkTimeout) ||
		errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ErrorCode normalizes err to a stable code string for diagnostics and
// HTTP envelopes.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrObjectNotFound):
		return "OBJECT_NOT_FOUND"
	case errors.Is(err, ErrContainerNotFound):
		return "CONTAINER_NOT_FOUND"
	case errors.Is(err, ErrInvalidPageToken):
		return "INVALID_PAGE_TOKEN"
	case errors.Is(err, ErrUnsupportedOperation):
		return "UNSUPPORTED_OPERATION"
	case errors.Is(err, ErrInvalidCredentials):
		return "INVALID_CREDENTIALS"
	case errors.Is(err, ErrAccessDenied):
		return "ACCESS_DENIED"
	case errors.Is(err, ErrGrantRevoked):
		return "GRANT_REVOKED"
	case errors.Is(err, ErrNetworkTimeout), errors.Is(err, context.DeadlineExceeded):
		return "NETWORK_TIMEOUT"
	case errors.Is(err, ErrProviderUnavailable):
		return "PROVIDER_UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

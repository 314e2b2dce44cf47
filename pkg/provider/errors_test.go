package provider

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapterError_Unwrap(t *testing.T) {
	inner := ErrObjectNotFound
	err := &AdapterError{Op: "Grant", Kind: KindS3Compatible, ConnectionID: "c1", Key: "a/b.txt", Err: inner}

	assert.True(t, errors.Is(err, ErrObjectNotFound))
	assert.Contains(t, err.Error(), "Grant")
	assert.Contains(t, err.Error(), "a/b.txt")

	var ae *AdapterError
	require.True(t, errors.As(fmt.Errorf("outer: %w", err), &ae))
	assert.Equal(t, "c1", ae.ConnectionID)
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"object not found direct", ErrObjectNotFound, IsObjectNotFound, true},
		{"object not found wrapped", &AdapterError{Err: ErrObjectNotFound}, IsObjectNotFound, true},
		{"container is not object", ErrContainerNotFound, IsObjectNotFound, false},
		{"invalid page token", &AdapterError{Err: ErrInvalidPageToken}, IsInvalidPageToken, true},
		{"unsupported", ErrUnsupportedOperation, IsUnsupported, true},
		{"grant revoked", &AdapterError{Err: ErrGrantRevoked}, IsGrantRevoked, true},
		{"timeout is transient", ErrNetworkTimeout, IsTransient, true},
		{"unavailable is transient", &AdapterError{Err: ErrProviderUnavailable}, IsTransient, true},
		{"revoked is not transient", ErrGrantRevoked, IsTransient, false},
		{"credentials are not transient", ErrInvalidCredentials, IsTransient, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"object not found", ErrObjectNotFound, "OBJECT_NOT_FOUND"},
		{"container not found", ErrContainerNotFound, "CONTAINER_NOT_FOUND"},
		{"invalid page token", ErrInvalidPageToken, "INVALID_PAGE_TOKEN"},
		{"unsupported", ErrUnsupportedOperation, "UNSUPPORTED_OPERATION"},
		{"invalid credentials", ErrInvalidCredentials, "INVALID_CREDENTIALS"},
		{"access denied", ErrAccessDenied, "ACCESS_DENIED"},
		{"grant revoked", ErrGrantRevoked, "GRANT_REVOKED"},
		{"network timeout", ErrNetworkTimeout, "NETWORK_TIMEOUT"},
		{"provider unavailable", ErrProviderUnavailable, "PROVIDER_UNAVAILABLE"},
		{"wrapped in adapter error", &AdapterError{Err: ErrAccessDenied}, "ACCESS_DENIED"},
		{"unknown", errors.New("boom"), "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestConfigError(t *testing.T) {
	err := &ConfigError{Kind: KindS3Compatible, Field: "bucket", Message: "required"}
	assert.Contains(t, err.Error(), "bucket")
	assert.Contains(t, err.Error(), "required")
}

package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stowgate/stowgate/pkg/gateway"
	"github.com/stowgate/stowgate/pkg/oauthflow"
	"github.com/stowgate/stowgate/pkg/provider"
	"github.com/stowgate/stowgate/pkg/registry"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "connection not found",
			err:        &registry.NotFoundError{ConnectionID: "x"},
			wantStatus: http.StatusNotFound,
			wantCode:   "CONNECTION_NOT_FOUND",
		},
		{
			name:       "connection disabled",
			err:        fmt.Errorf("connection %q: %w", "x", registry.ErrConnectionDisabled),
			wantStatus: http.StatusConflict,
			wantCode:   "CONNECTION_DISABLED",
		},
		{
			name:       "inline credentials rejected",
			err:        gateway.ErrInlineCredentialsRejected,
			wantStatus: http.StatusForbidden,
			wantCode:   "INLINE_CREDENTIALS_REJECTED",
		},
		{
			name:       "folder conflict",
			err:        &registry.FolderAssignedError{FolderID: "f", OwnerID: "other"},
			wantStatus: http.StatusConflict,
			wantCode:   "FOLDER_ALREADY_ASSIGNED",
		},
		{
			name:       "missing oauth credentials",
			err:        oauthflow.ErrMissingCredentials,
			wantStatus: http.StatusBadRequest,
			wantCode:   "MISSING_CREDENTIALS",
		},
		{
			name:       "not authenticated",
			err:        oauthflow.ErrNotAuthenticated,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "NOT_AUTHENTICATED",
		},
		{
			name:       "credential revoked",
			err:        oauthflow.ErrCredentialRevoked,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "CREDENTIAL_REVOKED",
		},
		{
			name:       "authorization failed",
			err:        oauthflow.ErrAuthorizationFailed,
			wantStatus: http.StatusBadGateway,
			wantCode:   "AUTHORIZATION_FAILED",
		},
		{
			name:       "invalid configuration",
			err:        &provider.ConfigError{Kind: provider.KindS3Compatible, Field: "Bucket", Message: "required"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_CONFIGURATION",
		},
		{
			name: "object not found through adapter error",
			err: &provider.AdapterError{
				Op: "Grant", Kind: provider.KindS3Compatible, ConnectionID: "c1",
				Key: "a.txt", Err: provider.ErrObjectNotFound,
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "OBJECT_NOT_FOUND",
		},
		{
			name:       "container not found",
			err:        provider.ErrContainerNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   "CONTAINER_NOT_FOUND",
		},
		{
			name:       "invalid page token",
			err:        provider.ErrInvalidPageToken,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_PAGE_TOKEN",
		},
		{
			name:       "unsupported operation",
			err:        provider.ErrUnsupportedOperation,
			wantStatus: http.StatusNotImplemented,
			wantCode:   "UNSUPPORTED_OPERATION",
		},
		{
			name:       "invalid credentials",
			err:        provider.ErrInvalidCredentials,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "INVALID_CREDENTIALS",
		},
		{
			name:       "grant revoked",
			err:        provider.ErrGrantRevoked,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "GRANT_REVOKED",
		},
		{
			name:       "access denied",
			err:        provider.ErrAccessDenied,
			wantStatus: http.StatusForbidden,
			wantCode:   "ACCESS_DENIED",
		},
		{
			name:       "network timeout",
			err:        provider.ErrNetworkTimeout,
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   "NETWORK_TIMEOUT",
		},
		{
			name:       "provider unavailable",
			err:        provider.ErrProviderUnavailable,
			wantStatus: http.StatusBadGateway,
			wantCode:   "PROVIDER_UNAVAILABLE",
		},
		{
			name:       "unknown error",
			err:        context.Canceled,
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := StatusFor(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestRespondWithError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/connections/x", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, &registry.NotFoundError{ConnectionID: "x"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var envelope HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "CONNECTION_NOT_FOUND", envelope.Error.Code)
	assert.Equal(t, "req-42", envelope.Error.RequestID)
	assert.NotEmpty(t, envelope.Error.Message)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusBadRequest, "INVALID_BODY", "bad payload", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var envelope HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "INVALID_BODY", envelope.Error.Code)
	assert.Equal(t, "bad payload", envelope.Error.Message)
	assert.Empty(t, envelope.Error.RequestID)
}

// Package errors maps gateway errors onto the HTTP error envelope.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stowgate/stowgate/pkg/gateway"
	"github.com/stowgate/stowgate/pkg/oauthflow"
	"github.com/stowgate/stowgate/pkg/provider"
	"github.com/stowgate/stowgate/pkg/registry"
)

// HTTPErrorResponse is the JSON envelope returned for every error.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// HTTPErrorDetail carries the stable code, the human message, and the
// request id when one is known.
type HTTPErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError emits the envelope with the given status.
func WriteError(w http.ResponseWriter, status int, code, message, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{
		Error: HTTPErrorDetail{Code: code, Message: message, RequestID: requestID},
	})
}

// StatusFor resolves an error to its HTTP status and stable code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, registry.ErrConnectionNotFound):
		return http.StatusNotFound, "CONNECTION_NOT_FOUND"
	case errors.Is(err, registry.ErrConnectionDisabled):
		return http.StatusConflict, "CONNECTION_DISABLED"
	case errors.Is(err, gateway.ErrInlineCredentialsRejected):
		return http.StatusForbidden, "INLINE_CREDENTIALS_REJECTED"
	case registry.IsFolderAssigned(err):
		return http.StatusConflict, "FOLDER_ALREADY_ASSIGNED"
	case errors.Is(err, oauthflow.ErrMissingCredentials):
		return http.StatusBadRequest, "MISSING_CREDENTIALS"
	case errors.Is(err, oauthflow.ErrNotAuthenticated):
		return http.StatusUnauthorized, "NOT_AUTHENTICATED"
	case errors.Is(err, oauthflow.ErrCredentialRevoked):
		return http.StatusUnauthorized, "CREDENTIAL_REVOKED"
	case errors.Is(err, oauthflow.ErrAuthorizationFailed):
		return http.StatusBadGateway, "AUTHORIZATION_FAILED"
	}

	var cfgErr *provider.ConfigError
	if errors.As(err, &cfgErr) {
		return http.StatusBadRequest, "INVALID_CONFIGURATION"
	}

	code := provider.ErrorCode(err)
	switch code {
	case "OBJECT_NOT_FOUND", "CONTAINER_NOT_FOUND":
		return http.StatusNotFound, code
	case "INVALID_PAGE_TOKEN":
		return http.StatusBadRequest, code
	case "UNSUPPORTED_OPERATION":
		return http.StatusNotImplemented, code
	case "INVALID_CREDENTIALS", "GRANT_REVOKED":
		return http.StatusUnauthorized, code
	case "ACCESS_DENIED":
		return http.StatusForbidden, code
	case "NETWORK_TIMEOUT":
		return http.StatusGatewayTimeout, code
	case "PROVIDER_UNAVAILABLE":
		return http.StatusBadGateway, code
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// RespondWithError maps err through StatusFor and writes the envelope.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	WriteError(w, status, code, err.Error(), requestIDFrom(r))
}

func requestIDFrom(r *http.Request) string {
	if r == nil {
		return ""
	}
	return r.Header.Get("X-Request-ID")
}

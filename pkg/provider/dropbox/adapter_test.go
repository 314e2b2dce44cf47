package dropbox

import (
	"bytes"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stowgate/stowgate/pkg/provider"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := New(Config{
		ConnectionID: "dbx-1",
		AppKey:       "key",
		AppSecret:    "secret",
		FolderPath:   "shared/exports",
		RedirectURL:  "https://app.example.com/callback",
	}, nil, time.Second)
	require.NoError(t, err)
	return a
}

func TestNew_Validation(t *testing.T) {
	var cfgErr *provider.ConfigError

	_, err := New(Config{AppSecret: "s"}, nil, 0)
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "AppKey", cfgErr.Field)

	_, err = New(Config{AppKey: "k"}, nil, 0)
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "AppSecret", cfgErr.Field)
}

func TestAuthorizationURL(t *testing.T) {
	a := newTestAdapter(t)

	url, err := a.AuthorizationURL("state-xyz", "")
	require.NoError(t, err)

	assert.Contains(t, url, "dropbox.com/oauth2/authorize")
	assert.Contains(t, url, "token_access_type=offline")
	assert.Contains(t, url, "state=state-xyz")
}

func TestRootPath(t *testing.T) {
	tests := []struct {
		folder string
		want   string
	}{
		{"", ""},
		{"/", ""},
		{"exports", "/exports"},
		{"/shared/exports/", "/shared/exports"},
	}

	for _, tt := range tests {
		t.Run(tt.folder, func(t *testing.T) {
			a, err := New(Config{AppKey: "k", AppSecret: "s", FolderPath: tt.folder}, nil, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.rootPath())
		})
	}
}

func dropboxResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func TestDropboxStatusError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", 401, `{"error_summary":"invalid_access_token/"}`, provider.ErrInvalidCredentials},
		{"forbidden", 403, `{"error_summary":"no_permission/"}`, provider.ErrAccessDenied},
		{"throttled", 429, `{"error_summary":"too_many_requests/"}`, provider.ErrProviderUnavailable},
		{"server fault", 500, `{}`, provider.ErrProviderUnavailable},
		{"path not found", 409, `{"error_summary":"path/not_found/"}`, provider.ErrObjectNotFound},
		{"cursor reset", 409, `{"error_summary":"reset/"}`, provider.ErrInvalidPageToken},
		{"invalid cursor", 400, `{"error_summary":"invalid_cursor"}`, provider.ErrInvalidPageToken},
		{"unsupported file", 409, `{"error_summary":"unsupported_file/"}`, provider.ErrUnsupportedOperation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, dropboxStatusError(dropboxResponse(tt.status, tt.body)), tt.want)
		})
	}

	t.Run("unmapped summary keeps detail", func(t *testing.T) {
		err := dropboxStatusError(dropboxResponse(409, `{"error_summary":"to/conflict/file"}`))
		assert.Contains(t, err.Error(), "to/conflict/file")
	})
}

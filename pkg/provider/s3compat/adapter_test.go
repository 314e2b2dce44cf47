package s3compat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stowgate/stowgate/pkg/provider"
)

func TestValidate(t *testing.T) {
	base := Config{
		ConnectionID:    "c1",
		Bucket:          "archive",
		AccessKeyID:     "AKIAEXAMPLE",
		SecretAccessKey: "secret",
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing bucket", func(c *Config) { c.Bucket = "" }, "Bucket"},
		{"missing access key", func(c *Config) { c.AccessKeyID = "" }, "AccessKeyID"},
		{"missing secret key", func(c *Config) { c.SecretAccessKey = "" }, "SecretAccessKey"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := validate(cfg)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *provider.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}

func TestNew_InvalidConfigNoNetwork(t *testing.T) {
	_, err := New(context.Background(), Config{}, 0)
	var cfgErr *provider.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestPlausibleToken(t *testing.T) {
	assert.True(t, plausibleToken("dG9rZW4="))
	assert.True(t, plausibleToken(""))
	assert.False(t, plausibleToken("not!!base64###"))
}

func TestObjectURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		key  string
		want string
	}{
		{
			name: "aws virtual hosted",
			cfg:  Config{Bucket: "archive", Region: "eu-west-1"},
			key:  "reports/q1.pdf",
			want: "https://archive.s3.eu-west-1.amazonaws.com/reports/q1.pdf",
		},
		{
			name: "aws default region",
			cfg:  Config{Bucket: "archive"},
			key:  "a.txt",
			want: "https://archive.s3.us-east-1.amazonaws.com/a.txt",
		},
		{
			name: "custom endpoint path style",
			cfg:  Config{Bucket: "archive", Endpoint: "https://minio.example.com:9000", ForcePathStyle: true},
			key:  "a.txt",
			want: "https://minio.example.com:9000/archive/a.txt",
		},
		{
			name: "custom endpoint virtual hosted",
			cfg:  Config{Bucket: "archive", Endpoint: "https://spaces.example.com"},
			key:  "a.txt",
			want: "https://archive.spaces.example.com/a.txt",
		},
		{
			name: "key with spaces is escaped",
			cfg:  Config{Bucket: "archive", Region: "us-east-1"},
			key:  "dir/my file.txt",
			want: "https://archive.s3.us-east-1.amazonaws.com/dir/my%20file.txt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Adapter{cfg: tt.cfg}
			assert.Equal(t, tt.want, a.objectURL(tt.key))
		})
	}
}

// mockAPIError implements smithy.APIError for error mapping tests.
type mockAPIError struct {
	code    string
	message string
}

func (e *mockAPIError) Error() string                 { return e.code + ": " + e.message }
func (e *mockAPIError) ErrorCode() string             { return e.code }
func (e *mockAPIError) ErrorMessage() string          { return e.message }
func (e *mockAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }

func TestWrapError(t *testing.T) {
	a := &Adapter{cfg: Config{ConnectionID: "c1", Bucket: "archive"}}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"typed no such key", &types.NoSuchKey{}, provider.ErrObjectNotFound},
		{"typed not found", &types.NotFound{}, provider.ErrObjectNotFound},
		{"typed no such bucket", &types.NoSuchBucket{}, provider.ErrContainerNotFound},
		{"deadline exceeded", context.DeadlineExceeded, provider.ErrNetworkTimeout},
		{"api access denied", &mockAPIError{code: "AccessDenied"}, provider.ErrAccessDenied},
		{"api bad key id", &mockAPIError{code: "InvalidAccessKeyId"}, provider.ErrInvalidCredentials},
		{"api bad signature", &mockAPIError{code: "SignatureDoesNotMatch"}, provider.ErrInvalidCredentials},
		{"api invalid token", &mockAPIError{code: "InvalidToken"}, provider.ErrInvalidPageToken},
		{"api slow down", &mockAPIError{code: "SlowDown"}, provider.ErrProviderUnavailable},
		{"api request timeout", &mockAPIError{code: "RequestTimeout"}, provider.ErrNetworkTimeout},
		{"string fallback 403", errors.New("http status 403 returned"), provider.ErrAccessDenied},
		{"string fallback refused", errors.New("dial tcp: connection refused"), provider.ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.wrapError("List", "k", tt.err)
			assert.ErrorIs(t, err, tt.want)

			var ae *provider.AdapterError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, "c1", ae.ConnectionID)
			assert.Equal(t, "List", ae.Op)
		})
	}

	t.Run("unknown error passes through", func(t *testing.T) {
		unknown := errors.New("something odd")
		err := a.wrapError("List", "", unknown)
		assert.ErrorIs(t, err, unknown)
		assert.Equal(t, "INTERNAL", provider.ErrorCode(err))
	})
}

func TestTestFailureMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"missing bucket", provider.ErrContainerNotFound, `bucket "archive" does not exist`},
		{"bad credentials", provider.ErrInvalidCredentials, "credentials rejected by the endpoint"},
		{"denied", provider.ErrAccessDenied, `access denied to bucket "archive"`},
		{"timeout", provider.ErrNetworkTimeout, "endpoint did not respond within the timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, testFailureMessage(tt.err, "archive"))
		})
	}
}

func newProbeAdapter(t *testing.T, endpoint string) *Adapter {
	t.Helper()
	adapter, err := New(context.Background(), Config{
		ConnectionID:    "c1",
		Bucket:          "probe-bucket",
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     "AKIAEXAMPLE",
		SecretAccessKey: "secret",
		ForcePathStyle:  true,
	}, 5*time.Second)
	require.NoError(t, err)
	return adapter
}

func TestTestConnection(t *testing.T) {
	ctx := context.Background()

	t.Run("reachable bucket", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodHead, r.Method)
			assert.Equal(t, "/probe-bucket", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		result := newProbeAdapter(t, srv.URL).TestConnection(ctx)

		assert.True(t, result.Success)
		assert.Contains(t, result.Message, "probe-bucket")
		assert.Empty(t, result.ErrorCode)
	})

	t.Run("credentials rejected by the endpoint", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		result := newProbeAdapter(t, srv.URL).TestConnection(ctx)

		assert.False(t, result.Success)
		assert.Equal(t, "ACCESS_DENIED", result.ErrorCode)
		assert.Equal(t, `access denied to bucket "probe-bucket"`, result.Message)
	})

	t.Run("unreachable endpoint reports instead of panicking", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		result := newProbeAdapter(t, srv.URL).TestConnection(ctx)

		assert.False(t, result.Success)
		assert.NotEmpty(t, result.Message)
	})
}

package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/stowgate/stowgate/pkg/provider"
)

func TestConnectionConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ConnectionConfig
		wantErr bool
	}{
		{
			name: "valid s3",
			cfg: ConnectionConfig{
				ID: "s3-1", Kind: provider.KindS3Compatible,
				Bucket: "b", AccessKeyID: "k", SecretAccessKey: "s",
			},
		},
		{
			name: "s3 without credentials is valid",
			cfg:  ConnectionConfig{ID: "s3-2", Kind: provider.KindS3Compatible, Bucket: "b"},
		},
		{
			name: "s3 missing bucket",
			cfg: ConnectionConfig{
				ID: "s3-3", Kind: provider.KindS3Compatible,
				AccessKeyID: "k", SecretAccessKey: "s",
			},
			wantErr: true,
		},
		{
			name: "s3 key without secret",
			cfg: ConnectionConfig{
				ID: "s3-4", Kind: provider.KindS3Compatible,
				Bucket: "b", AccessKeyID: "k",
			},
			wantErr: true,
		},
		{
			name: "valid oauth",
			cfg: ConnectionConfig{
				ID: "dbx-1", Kind: provider.KindDropbox,
				ClientID: "c", ClientSecret: "s",
			},
		},
		{
			name: "oauth secret without id",
			cfg: ConnectionConfig{
				ID: "dbx-2", Kind: provider.KindDropbox, ClientSecret: "s",
			},
			wantErr: true,
		},
		{
			name:    "missing id",
			cfg:     ConnectionConfig{Kind: provider.KindDropbox},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			cfg:     ConnectionConfig{ID: "x", Kind: provider.Kind("ftp")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				var cfgErr *provider.ConfigError
				assert.ErrorAs(t, err, &cfgErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConnectionConfig_SecretsNeverMarshalled(t *testing.T) {
	cfg := ConnectionConfig{
		ID:              "c1",
		Kind:            provider.KindS3Compatible,
		Bucket:          "archive",
		AccessKeyID:     "AKIASECRETEXAMPLE",
		SecretAccessKey: "super-secret",
		ClientID:        "oauth-client",
		ClientSecret:    "oauth-secret",
		RefreshToken:    "refresh-token-value",
		Grants:          GrantSettings{Enabled: true, TTL: Duration(time.Minute)},
	}

	raw, err := json.Marshal(cfg)
	require.NoError(t, err)

	body := string(raw)
	assert.NotContains(t, body, "AKIASECRETEXAMPLE")
	assert.NotContains(t, body, "super-secret")
	assert.NotContains(t, body, "oauth-client")
	assert.NotContains(t, body, "oauth-secret")
	assert.NotContains(t, body, "refresh-token-value")
	assert.Contains(t, body, "archive")
}

func TestDuration(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		var s GrantSettings
		require.NoError(t, yaml.Unmarshal([]byte("enabled: true\nttl: 90s\n"), &s))
		assert.Equal(t, 90*time.Second, s.TTL.Std())

		out, err := yaml.Marshal(s)
		require.NoError(t, err)
		assert.Contains(t, string(out), "1m30s")
	})

	t.Run("yaml invalid", func(t *testing.T) {
		var s GrantSettings
		assert.Error(t, yaml.Unmarshal([]byte("ttl: shortly\n"), &s))
	})

	t.Run("json string and number", func(t *testing.T) {
		var d Duration
		require.NoError(t, json.Unmarshal([]byte(`"2m"`), &d))
		assert.Equal(t, 2*time.Minute, d.Std())

		require.NoError(t, json.Unmarshal([]byte(`60000000000`), &d))
		assert.Equal(t, time.Minute, d.Std())
	})
}

func TestConnectionConfig_HasFolder(t *testing.T) {
	cfg := ConnectionConfig{AssignedFolders: []string{"f1", "f2"}}
	assert.True(t, cfg.HasFolder("f1"))
	assert.False(t, cfg.HasFolder("f3"))
}

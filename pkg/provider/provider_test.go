package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	tests := []struct {
		kind  Kind
		valid bool
		oauth bool
	}{
		{KindS3Compatible, true, false},
		{KindGoogleDrive, true, true},
		{KindOneDrive, true, true},
		{KindDropbox, true, true},
		{Kind("ftp"), false, false},
		{Kind(""), false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.kind.Valid())
			assert.Equal(t, tt.oauth, tt.kind.OAuth())
		})
	}
}

func TestAccessGrant_ExpiresIn(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("expiring grant", func(t *testing.T) {
		g := &AccessGrant{URL: "https://example.com/x", ExpiresAt: now.Add(5 * time.Minute)}
		assert.True(t, g.Expires())
		secs, ok := g.ExpiresIn(now)
		assert.True(t, ok)
		assert.Equal(t, int64(300), secs)
	})

	t.Run("already expired clamps to zero", func(t *testing.T) {
		g := &AccessGrant{ExpiresAt: now.Add(-time.Minute)}
		secs, ok := g.ExpiresIn(now)
		assert.True(t, ok)
		assert.Equal(t, int64(0), secs)
	})

	t.Run("direct url never expires", func(t *testing.T) {
		g := &AccessGrant{URL: "https://example.com/pub"}
		assert.False(t, g.Expires())
		_, ok := g.ExpiresIn(now)
		assert.False(t, ok)
	})
}

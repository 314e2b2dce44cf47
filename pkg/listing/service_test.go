package listing

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stowgate/stowgate/pkg/provider"
	"github.com/stowgate/stowgate/pkg/registry"
)

// countingAdapter serves canned listings and counts List invocations.
type countingAdapter struct {
	listCalls int32
	files     []provider.RemoteFile
	nextToken string
	err       error
}

func (a *countingAdapter) Kind() provider.Kind { return provider.KindS3Compatible }

func (a *countingAdapter) TestConnection(context.Context) *provider.TestResult {
	return &provider.TestResult{Success: true}
}

func (a *countingAdapter) List(_ context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	atomic.AddInt32(&a.listCalls, 1)
	if a.err != nil {
		return nil, a.err
	}
	return &provider.ListResult{Files: a.files, NextPageToken: a.nextToken}, nil
}

func (a *countingAdapter) Grant(context.Context, string, time.Duration) (*provider.AccessGrant, error) {
	return nil, provider.ErrUnsupportedOperation
}

func (a *countingAdapter) Close() error { return nil }

func (a *countingAdapter) calls() int32 { return atomic.LoadInt32(&a.listCalls) }

// fakeResolver maps connection ids to adapters.
type fakeResolver struct {
	adapters map[string]provider.Adapter
}

func (r *fakeResolver) Resolve(_ context.Context, id string) (provider.Adapter, *registry.ConnectionConfig, error) {
	a, ok := r.adapters[id]
	if !ok {
		return nil, nil, &registry.NotFoundError{ConnectionID: id}
	}
	return a, &registry.ConnectionConfig{ID: id, Enabled: true}, nil
}

func sampleFiles() []provider.RemoteFile {
	return []provider.RemoteFile{
		{Key: "reports/q1.pdf", Size: 100},
		{Key: "reports/q2.pdf", Size: 200},
		{Key: "images/logo.png", Size: 300},
	}
}

func newTestService(t *testing.T, adapter provider.Adapter, opts ...Option) *Service {
	t.Helper()
	resolver := &fakeResolver{adapters: map[string]provider.Adapter{"c1": adapter}}
	return New(resolver, nil, opts...)
}

func TestListFiles(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown connection", func(t *testing.T) {
		svc := newTestService(t, &countingAdapter{})
		_, err := svc.ListFiles(ctx, "ghost", Filter{})
		assert.ErrorIs(t, err, registry.ErrConnectionNotFound)
	})

	t.Run("first call fetches", func(t *testing.T) {
		adapter := &countingAdapter{files: sampleFiles(), nextToken: "tok-2"}
		svc := newTestService(t, adapter)

		page, err := svc.ListFiles(ctx, "c1", Filter{})
		require.NoError(t, err)
		assert.Len(t, page.Files, 3)
		assert.Equal(t, "tok-2", page.NextPageToken)
		assert.Equal(t, int32(1), adapter.calls())
	})

	t.Run("call within interval reuses previous result", func(t *testing.T) {
		adapter := &countingAdapter{files: sampleFiles()}
		svc := newTestService(t, adapter, WithInterval(time.Hour))

		first, err := svc.ListFiles(ctx, "c1", Filter{})
		require.NoError(t, err)

		second, err := svc.ListFiles(ctx, "c1", Filter{})
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, int32(1), adapter.calls())
	})

	t.Run("interval elapsed fetches again", func(t *testing.T) {
		adapter := &countingAdapter{files: sampleFiles()}
		svc := newTestService(t, adapter, WithInterval(30*time.Millisecond))

		_, err := svc.ListFiles(ctx, "c1", Filter{})
		require.NoError(t, err)

		time.Sleep(50 * time.Millisecond)

		_, err = svc.ListFiles(ctx, "c1", Filter{})
		require.NoError(t, err)
		assert.Equal(t, int32(2), adapter.calls())
	})

	t.Run("distinct filters throttle independently", func(t *testing.T) {
		adapter := &countingAdapter{files: sampleFiles()}
		svc := newTestService(t, adapter, WithInterval(time.Hour))

		_, err := svc.ListFiles(ctx, "c1", Filter{})
		require.NoError(t, err)
		_, err = svc.ListFiles(ctx, "c1", Filter{Pattern: "reports/*.pdf"})
		require.NoError(t, err)

		assert.Equal(t, int32(2), adapter.calls())
	})

	t.Run("concurrent callers share one fetch", func(t *testing.T) {
		adapter := &countingAdapter{files: sampleFiles()}
		svc := newTestService(t, adapter, WithInterval(time.Hour))

		const callers = 8
		var wg sync.WaitGroup
		for range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.ListFiles(ctx, "c1", Filter{})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		// Coalesced callers join the in-flight fetch; stragglers hit the
		// cached result. Either way the adapter sees exactly one call.
		assert.Equal(t, int32(1), adapter.calls())
	})

	t.Run("invalid pattern fails before any fetch", func(t *testing.T) {
		adapter := &countingAdapter{files: sampleFiles()}
		svc := newTestService(t, adapter)

		_, err := svc.ListFiles(ctx, "c1", Filter{Pattern: "reports/[unclosed"})

		var cfgErr *provider.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "Pattern", cfgErr.Field)
		assert.Equal(t, int32(0), adapter.calls())
	})

	t.Run("pattern filters client side", func(t *testing.T) {
		adapter := &countingAdapter{files: sampleFiles()}
		svc := newTestService(t, adapter)

		page, err := svc.ListFiles(ctx, "c1", Filter{Pattern: "reports/*.pdf"})
		require.NoError(t, err)
		require.Len(t, page.Files, 2)
		assert.Equal(t, "reports/q1.pdf", page.Files[0].Key)
	})

	t.Run("listing error is cached within interval", func(t *testing.T) {
		adapter := &countingAdapter{err: provider.ErrAccessDenied}
		svc := newTestService(t, adapter, WithInterval(time.Hour))

		_, err := svc.ListFiles(ctx, "c1", Filter{})
		assert.ErrorIs(t, err, provider.ErrAccessDenied)

		_, err = svc.ListFiles(ctx, "c1", Filter{})
		assert.ErrorIs(t, err, provider.ErrAccessDenied)
		assert.Equal(t, int32(1), adapter.calls())
	})
}

func TestGlobPrefix(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"", ""},
		{"*.pdf", ""},
		{"reports/*.pdf", "reports/"},
		{"reports/2026/**/*.csv", "reports/2026/"},
		{"reports/q1.pdf", "reports/"},
		{"file[12].txt", ""},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, globPrefix(tt.pattern))
		})
	}
}

func TestAutoRefresh(t *testing.T) {
	t.Run("delivers refreshed pages until stopped", func(t *testing.T) {
		adapter := &countingAdapter{files: sampleFiles()}
		svc := newTestService(t, adapter,
			WithInterval(5*time.Millisecond),
			WithRefreshDelay(10*time.Millisecond))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var mu sync.Mutex
		var delivered int
		svc.StartAutoRefresh(ctx, "c1", Filter{}, func(page *provider.ListResult, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err == nil && page != nil {
				delivered++
			}
		})

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return delivered >= 2
		}, 2*time.Second, 10*time.Millisecond)

		svc.StopAutoRefresh("c1", Filter{})
		mu.Lock()
		after := delivered
		mu.Unlock()

		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		assert.LessOrEqual(t, delivered, after+1)
		mu.Unlock()
	})

	t.Run("context cancellation stops the loop", func(t *testing.T) {
		adapter := &countingAdapter{files: sampleFiles()}
		svc := newTestService(t, adapter,
			WithInterval(5*time.Millisecond),
			WithRefreshDelay(5*time.Millisecond))

		ctx, cancel := context.WithCancel(context.Background())
		svc.StartAutoRefresh(ctx, "c1", Filter{}, func(*provider.ListResult, error) {})
		cancel()

		time.Sleep(30 * time.Millisecond)
		calls := adapter.calls()
		time.Sleep(50 * time.Millisecond)
		assert.LessOrEqual(t, adapter.calls(), calls+1)
	})
}

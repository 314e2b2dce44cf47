// Package listing wraps adapter listing calls with request coalescing
// and an optional auto-refresh schedule.
//
// For each (connection, filter) pair, at most one adapter invocation
// happens per throttle interval. A call arriving before the interval
// elapses returns the previous result when one exists, or joins the
// deferred call that fires at the interval boundary. Nothing queues
// unboundedly.
package listing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/stowgate/stowgate/pkg/provider"
	"github.com/stowgate/stowgate/pkg/registry"
)

// DefaultInterval is the minimum spacing between adapter listing calls
// for one (connection, filter) pair.
const DefaultInterval = 1000 * time.Millisecond

// DefaultRefreshDelay is the pause before an auto-refresh follow-up
// call.
const DefaultRefreshDelay = 2000 * time.Millisecond

// Filter selects and pages a listing.
type Filter struct {
	// Pattern is a glob matched against object keys (doublestar
	// syntax). Empty matches everything.
	Pattern string `json:"pattern,omitempty"`

	// PageToken resumes a prior listing page.
	PageToken string `json:"page_token,omitempty"`

	// MaxResults bounds the page size. Zero uses the provider default.
	MaxResults int `json:"max_results,omitempty"`
}

// key identifies the throttle bucket for a connection+filter pair.
func (f Filter) key(connectionID string) string {
	return strings.Join([]string{connectionID, f.Pattern, f.PageToken, strconv.Itoa(f.MaxResults)}, "\x00")
}

// Resolver yields the adapter and config bound to a connection id.
// Satisfied by registry.Registry.
type Resolver interface {
	Resolve(ctx context.Context, id string) (provider.Adapter, *registry.ConnectionConfig, error)
}

// Service is the throttled listing layer over the registry.
type Service struct {
	registry     Resolver
	logger       *zap.Logger
	interval     time.Duration
	refreshDelay time.Duration

	mu     sync.Mutex
	states map[string]*throttleState
	loops  map[string]context.CancelFunc
}

// throttleState is the per-key coalescing record.
type throttleState struct {
	limiter    *rate.Limiter
	inflight   *listCall
	lastResult *provider.ListResult
	lastErr    error
}

// listCall is one in-flight adapter invocation shared by coalesced
// callers.
type listCall struct {
	done   chan struct{}
	result *provider.ListResult
	err    error
}

// Option configures a Service.
type Option func(*Service)

// WithInterval overrides the minimum call spacing.
func WithInterval(d time.Duration) Option {
	return func(s *Service) { s.interval = d }
}

// WithRefreshDelay overrides the auto-refresh pause.
func WithRefreshDelay(d time.Duration) Option {
	return func(s *Service) { s.refreshDelay = d }
}

// New creates a listing service.
func New(reg Resolver, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		registry:     reg,
		logger:       logger,
		interval:     DefaultInterval,
		refreshDelay: DefaultRefreshDelay,
		states:       make(map[string]*throttleState),
		loops:        make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListFiles returns one listing page for the connection, throttled per
// (connection, filter) pair. Within the interval, callers receive the
// previous result; concurrent callers share a single adapter
// invocation.
func (s *Service) ListFiles(ctx context.Context, connectionID string, filter Filter) (*provider.ListResult, error) {
	if filter.Pattern != "" && !doublestar.ValidatePattern(filter.Pattern) {
		return nil, &provider.ConfigError{
			Field:   "Pattern",
			Message: fmt.Sprintf("invalid glob pattern %q", filter.Pattern),
		}
	}

	key := filter.key(connectionID)

	s.mu.Lock()
	st, ok := s.states[key]
	if !ok {
		st = &throttleState{limiter: rate.NewLimiter(rate.Every(s.interval), 1)}
		s.states[key] = st
	}

	// Join an in-flight call rather than stacking another.
	if st.inflight != nil {
		call := st.inflight
		s.mu.Unlock()
		return awaitCall(ctx, call)
	}

	if !st.limiter.Allow() {
		// Inside the interval. Serve the previous result when there is
		// one; otherwise defer to the interval boundary.
		if st.lastResult != nil || st.lastErr != nil {
			result, err := st.lastResult, st.lastErr
			s.mu.Unlock()
			return result, err
		}
		call := &listCall{done: make(chan struct{})}
		st.inflight = call
		s.mu.Unlock()

		if err := st.limiter.Wait(ctx); err != nil {
			s.finish(key, st, call, nil, err)
			return nil, err
		}
		result, err := s.fetch(ctx, connectionID, filter)
		s.finish(key, st, call, result, err)
		return result, err
	}

	call := &listCall{done: make(chan struct{})}
	st.inflight = call
	s.mu.Unlock()

	result, err := s.fetch(ctx, connectionID, filter)
	s.finish(key, st, call, result, err)
	return result, err
}

// finish records the call outcome and releases coalesced waiters.
func (s *Service) finish(key string, st *throttleState, call *listCall, result *provider.ListResult, err error) {
	s.mu.Lock()
	st.lastResult, st.lastErr = result, err
	st.inflight = nil
	s.mu.Unlock()

	call.result, call.err = result, err
	close(call.done)
}

func awaitCall(ctx context.Context, call *listCall) (*provider.ListResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-call.done:
		return call.result, call.err
	}
}

// fetch performs the actual adapter listing and applies the glob
// filter.
func (s *Service) fetch(ctx context.Context, connectionID string, filter Filter) (*provider.ListResult, error) {
	adapter, _, err := s.registry.Resolve(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	result, err := adapter.List(ctx, provider.ListOptions{
		Prefix:     globPrefix(filter.Pattern),
		PageToken:  filter.PageToken,
		MaxResults: filter.MaxResults,
	})
	if err != nil {
		return nil, err
	}

	if filter.Pattern == "" {
		return result, nil
	}

	// The pattern was validated on entry, so matching cannot fail here.
	matched := result.Files[:0:0]
	for _, f := range result.Files {
		if doublestar.MatchUnvalidated(filter.Pattern, f.Key) {
			matched = append(matched, f)
		}
	}
	return &provider.ListResult{Files: matched, NextPageToken: result.NextPageToken}, nil
}

// globPrefix extracts the literal key prefix of a glob pattern, so
// providers that support prefixed listing fetch less.
func globPrefix(pattern string) string {
	if pattern == "" {
		return ""
	}
	if i := strings.IndexAny(pattern, "*?[{"); i >= 0 {
		pattern = pattern[:i]
	}
	if j := strings.LastIndex(pattern, "/"); j >= 0 {
		return pattern[:j+1]
	}
	return ""
}

// StartAutoRefresh begins periodic re-listing for one
// (connection, filter) context: one follow-up call per refresh delay,
// results delivered to notify. A listing failure is delivered but does
// not stop the schedule; the next tick retries. Starting a second loop
// for the same key replaces the first. The loop ends when ctx is
// cancelled or StopAutoRefresh is called.
func (s *Service) StartAutoRefresh(ctx context.Context, connectionID string, filter Filter, notify func(*provider.ListResult, error)) {
	key := filter.key(connectionID)
	loopCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if prev, ok := s.loops[key]; ok {
		prev()
	}
	s.loops[key] = cancel
	s.mu.Unlock()

	go func() {
		timer := time.NewTimer(s.refreshDelay)
		defer timer.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-timer.C:
			}

			result, err := s.ListFiles(loopCtx, connectionID, filter)
			if loopCtx.Err() != nil {
				// Context changed while the call was in flight: discard.
				return
			}
			notify(result, err)
			timer.Reset(s.refreshDelay)
		}
	}()
}

// StopAutoRefresh cancels the pending auto-refresh for one
// (connection, filter) context, if any.
func (s *Service) StopAutoRefresh(connectionID string, filter Filter) {
	key := filter.key(connectionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.loops[key]; ok {
		cancel()
		delete(s.loops, key)
	}
}

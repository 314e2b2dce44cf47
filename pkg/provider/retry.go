package provider

import (
	"context"
	"time"
)

// retryDelay is the pause before the single transparent retry of a
// transient failure.
const retryDelay = 250 * time.Millisecond

// RetryOnce runs op and, if it fails with a transient error (timeout or
// provider unavailable), retries exactly once after a short pause.
// Configuration and invariant errors surface immediately.
func RetryOnce(ctx context.Context, op func(ctx context.Context) error) error {
	err := op(ctx)
	if err == nil || !IsTransient(err) {
		return err
	}

	select {
	case <-ctx.Done():
		return err
	case <-time.After(retryDelay):
	}

	return op(ctx)
}

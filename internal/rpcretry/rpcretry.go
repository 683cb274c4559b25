// Package rpcretry implements the publisher's bounded-attempt retry helper
// for flaky chain RPC calls (gas price, nonce, send, receipt, eth_call).
//
// Whether an error is worth retrying is decided by domainerr.Kind rather
// than by matching substrings of the stringified error: callers that
// originate a transport error (replica divergence, timeout, "pending",
// "already known", no response) classify it via domainerr.AsTransport or
// one of the transport sentinels, and Do retries exactly when the error
// classifies as KindTransport. A plain context.DeadlineExceeded/Canceled
// is never retried.
package rpcretry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainrelay/publisher/internal/domainerr"
)

const (
	// MaxAttempts is the number of tries Do spends on a transient RPC
	// failure before giving up.
	MaxAttempts = 5
	// Backoff is the fixed delay between attempts.
	Backoff = time.Second
)

// Op is a single RPC operation to retry.
type Op[T any] func(ctx context.Context) (T, error)

// Do runs op, retrying up to MaxAttempts times with a fixed Backoff whenever
// the returned error classifies as domainerr.KindTransport. Any other error
// kind (or no classification at all) is returned immediately.
func Do[T any](ctx context.Context, op Op[T]) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return zero, err
		}
		if attempt == MaxAttempts {
			break
		}

		select {
		case <-time.After(Backoff):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	return zero, fmt.Errorf("rpc call failed after %d attempts: %w", MaxAttempts, lastErr)
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return domainerr.KindOf(err) == domainerr.KindTransport
}

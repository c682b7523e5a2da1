package chain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

// revertCode is the JSON-RPC error code nodes report for a reverted eth_call.
const revertCode = 3

const maxRetryDelay = 5 * time.Second

// withRetry calls fn until it succeeds, returns an error that retrying
// cannot fix, or maxRetries retries are spent. The delay doubles after each
// failed attempt. It reports how many attempts were made.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(ctx context.Context, attempt int) error) (int, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 1; ; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		if attempt > maxRetries || !isRetryable(err) {
			return attempt, err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}

		if delay *= 2; delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

// isRetryable reports whether err may clear on a later attempt. Reverts and
// errors carrying revert data are answers from the node, not outages.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return false
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertCode {
		return false
	}
	return !strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

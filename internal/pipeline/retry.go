package pipeline

import (
	"context"
	"fmt"
	"time"
)

// retryWithBackoff calls fn until it succeeds, retryable reports false, or
// maxRetries retries have been spent. The wait before retry i is base<<i.
func retryWithBackoff(ctx context.Context, maxRetries int, base time.Duration, fn func() error, retryable func(err error, attempt int) bool) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt == maxRetries || !retryable(err, attempt) {
			break
		}

		timer := time.NewTimer(base << attempt)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}
	}

	return lastErr
}

// callWithContext runs fn in its own goroutine and stops waiting once ctx is
// done, so a client that ignores cancellation cannot hold up the batch.
func callWithContext[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}

	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// RetryPolicy bounds retries of idempotent reads.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetryPolicy makes three attempts one second apart.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Backoff: time.Second}

// Retry calls fn until it succeeds, fails with anything other than HTTP
// 500, or the attempts run out. Exhaustion returns ErrRetriesExhausted
// wrapping the last error.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	attempts := max(p.Attempts, 1)
	var (
		zero T
		err  error
	)
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(p.Backoff):
			}
		}
		var v T
		v, err = fn(ctx)
		if err == nil {
			return v, nil
		}
		if StatusCode(err) != http.StatusInternalServerError {
			return zero, err
		}
	}
	return zero, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
}

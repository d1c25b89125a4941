package dbload

import (
	"context"
	"log"
	"time"

	"github.com/adlens/adlens/pkg/errors"
)

const (
	retryAttempts  = 3
	retryBaseDelay = time.Second
)

// withRetry runs fn up to retryAttempts times with exponential backoff
// (1s, 2s, 4s). Context cancellation and validation errors are never
// retried. Both bulk-write paths share this policy.
func withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= retryAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || errors.IsValidation(lastErr) {
			return lastErr
		}
		if attempt == retryAttempts {
			break
		}

		delay := retryBaseDelay << (attempt - 1)
		log.Printf("[dbload] %s attempt %d/%d failed, retrying in %s: %v",
			op, attempt, retryAttempts, delay, lastErr)

		select {
		case <-ctx.Done():
			return errors.ContextCanceled(op)
		case <-time.After(delay):
		}
	}

	return errors.Wrapf(lastErr, errors.CodeRetryExhausted,
		"%s failed after %d attempts", op, retryAttempts)
}

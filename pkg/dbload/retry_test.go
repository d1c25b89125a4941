package dbload

import (
	"context"
	"fmt"
	"testing"

	"github.com/adlens/adlens/pkg/errors"
)

func TestWithRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), "op", func() error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Errorf("err=%v calls=%d", err, calls)
	}
}

func TestWithRetryRecoversAfterFailure(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), "op", func() error {
		calls++
		if calls < 2 {
			return fmt.Errorf("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestWithRetryExhaustion(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), "op", func() error {
		calls++
		return fmt.Errorf("always fails")
	})
	if calls != retryAttempts {
		t.Errorf("calls = %d, want %d", calls, retryAttempts)
	}
	if !errors.IsCode(err, errors.CodeRetryExhausted) {
		t.Errorf("err = %v, want retry exhausted", err)
	}
}

func TestWithRetryStopsOnValidationError(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), "op", func() error {
		calls++
		return errors.New(errors.CodeMissingColumn, "required columns not found in header")
	})
	if calls != 1 {
		t.Errorf("validation error retried %d times", calls)
	}
	if !errors.IsCode(err, errors.CodeMissingColumn) {
		t.Errorf("err = %v", err)
	}
}

func TestWithRetryStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := withRetry(ctx, "op", func() error {
		calls++
		cancel()
		return fmt.Errorf("failing while canceled")
	})
	if calls != 1 {
		t.Errorf("canceled context retried %d times", calls)
	}
	if err == nil {
		t.Error("expected error")
	}
}

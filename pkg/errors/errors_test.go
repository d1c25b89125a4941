package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(CodeFileTooLarge, "file exceeds the maximum accepted size").
		WithContext("size", 1024)

	msg := err.Error()
	if !strings.Contains(msg, "[E102]") || !strings.Contains(msg, "size=1024") {
		t.Errorf("unexpected message: %s", msg)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(cause, CodeResultWrite, "persist result snapshot")

	if !stderrors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}
	if GetCode(err) != CodeResultWrite {
		t.Errorf("code = %s", GetCode(err))
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, CodeUnknown, "x") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestGetCodeThroughChain(t *testing.T) {
	inner := New(CodeMissingColumn, "required columns not found in header")
	outer := fmt.Errorf("job failed: %w", inner)

	if GetCode(outer) != CodeMissingColumn {
		t.Errorf("code lost through wrapping: %s", GetCode(outer))
	}
	if !IsValidation(outer) {
		t.Error("missing column should classify as validation")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(New(CodeCopyFailed, "x")) {
		t.Error("copy failure should be retryable")
	}
	if IsRetryable(New(CodeMissingColumn, "x")) {
		t.Error("validation failure should not be retryable")
	}
}

func TestSanitizeHidesInternals(t *testing.T) {
	raw := fmt.Errorf("open /var/secret/path: permission denied")
	if got := Sanitize(raw); got != "internal processing error" {
		t.Errorf("raw error leaked: %s", got)
	}

	coded := Wrap(raw, CodeReadFailed, "read row")
	got := Sanitize(coded)
	if strings.Contains(got, "/var/secret") {
		t.Errorf("cause leaked through sanitize: %s", got)
	}
	if !strings.Contains(got, "[E201]") {
		t.Errorf("code missing from sanitized message: %s", got)
	}
}

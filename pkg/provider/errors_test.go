package provider

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsContextWindowExceeded_TypedError(t *testing.T) {
	err := &ProviderError{
		Code:    ErrCodeContextWindowExceeded,
		Message: "some message",
	}
	if !IsContextWindowExceeded(err) {
		t.Fatal("expected IsContextWindowExceeded to return true for typed error")
	}
}

func TestIsContextWindowExceeded_WrappedTypedError(t *testing.T) {
	inner := &ProviderError{
		Code:    ErrCodeContextWindowExceeded,
		Message: "inner",
	}
	err := fmt.Errorf("outer: %w", inner)
	if !IsContextWindowExceeded(err) {
		t.Fatal("expected IsContextWindowExceeded to return true for wrapped typed error")
	}
}

func TestIsContextWindowExceeded_KeywordFallback(t *testing.T) {
	keywords := []string{
		"context window exceeded",
		"context length exceeded",
		"maximum context length",
		"token limit exceeded",
		"too many tokens",
	}
	for _, kw := range keywords {
		err := errors.New("provider error: " + kw + " for this model")
		if !IsContextWindowExceeded(err) {
			t.Fatalf("expected IsContextWindowExceeded to return true for keyword %q", kw)
		}
	}
}

func TestIsContextWindowExceeded_NegativeCases(t *testing.T) {
	cases := []error{
		errors.New("invalid request"),
		errors.New("rate limit exceeded"),
		&ProviderError{Code: ErrCodeRateLimited, Message: "rate limited"},
		nil,
	}
	for _, err := range cases {
		if IsContextWindowExceeded(err) {
			t.Fatalf("expected IsContextWindowExceeded to return false for %v", err)
		}
	}
}

func TestNewProviderErrorRetryable(t *testing.T) {
	tests := []struct {
		code      ErrorCode
		retryable bool
	}{
		{ErrCodeRateLimited, true},
		{ErrCodeServiceUnavailable, true},
		{ErrCodeTimeout, true},
		{ErrCodeAuthFailed, false},
		{ErrCodeInvalidRequest, false},
		{ErrCodeContextWindowExceeded, false},
	}
	for _, tt := range tests {
		err := NewProviderError("test", tt.code, "msg")
		if err.Retryable != tt.retryable {
			t.Errorf("NewProviderError(%s).Retryable = %v, want %v", tt.code, err.Retryable, tt.retryable)
		}
		if IsRetryable(err) != tt.retryable {
			t.Errorf("IsRetryable(%s) = %v, want %v", tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestIsRetryableUntypedError(t *testing.T) {
	if IsRetryable(errors.New("plain error")) {
		t.Error("IsRetryable should be false for untyped errors")
	}
}

package provider

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode classifies provider errors.
type ErrorCode string

const (
	ErrCodeAuthFailed            ErrorCode = "auth_failed"
	ErrCodeRateLimited           ErrorCode = "rate_limited"
	ErrCodeContextWindowExceeded ErrorCode = "context_window_exceeded"
	ErrCodeModelNotFound         ErrorCode = "model_not_found"
	ErrCodeInvalidRequest        ErrorCode = "invalid_request"
	ErrCodeServiceUnavailable    ErrorCode = "service_unavailable"
	ErrCodeTimeout               ErrorCode = "timeout"
	ErrCodeCanceled              ErrorCode = "canceled"
	ErrCodeUnknown               ErrorCode = "unknown"
)

// ProviderError is a classified error from a backend.
type ProviderError struct {
	Code      ErrorCode
	Message   string
	Provider  string
	Retryable bool
	// RetryAfter is the backend-suggested wait before retrying,
	// zero when the backend gave no hint.
	RetryAfter time.Duration
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Code)
}

// NewProviderError creates a ProviderError with retryability inferred
// from the code.
func NewProviderError(provider string, code ErrorCode, message string) *ProviderError {
	retryable := false
	switch code {
	case ErrCodeRateLimited, ErrCodeServiceUnavailable, ErrCodeTimeout:
		retryable = true
	}
	return &ProviderError{
		Code:      code,
		Message:   message,
		Provider:  provider,
		Retryable: retryable,
	}
}

// IsContextWindowExceeded reports whether err indicates the request
// overflowed the model's context window. Falls back to message
// sniffing for backends that return untyped errors.
func IsContextWindowExceeded(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeContextWindowExceeded
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range []string{
		"context window",
		"context length exceeded",
		"maximum context length",
		"token limit exceeded",
		"too many tokens",
	} {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

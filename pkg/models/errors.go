package models

import (
	"errors"
	"fmt"
)

// ErrKind enumerates the provider-level error taxonomy surfaced to callers
// (§4.3, §7). Tool and hook failures never carry this type — they are
// reified into conversation history instead.
type ErrKind string

const (
	ErrAuthentication       ErrKind = "authentication"
	ErrRateLimited          ErrKind = "rate_limited"
	ErrModelNotFound        ErrKind = "model_not_found"
	ErrContextLengthExceeded ErrKind = "context_length_exceeded"
	ErrProvider             ErrKind = "provider_error"
	ErrTimeout              ErrKind = "timeout"
	ErrConnection           ErrKind = "connection"
)

// ProviderError is the structured form of every error a Provider
// implementation returns from Complete/Stream.
type ProviderError struct {
	Kind     ErrKind
	Provider string
	Message  string

	RetryAfterSeconds float64 // ErrRateLimited
	MaxTokens         int     // ErrContextLengthExceeded
	UsedTokens        int     // ErrContextLengthExceeded
	StatusCode        int     // ErrProvider

	Cause error
}

func (e *ProviderError) Error() string {
	prefix := fmt.Sprintf("[%s", e.Kind)
	if e.Provider != "" {
		prefix += ":" + e.Provider
	}
	prefix += "]"
	if e.Message != "" {
		return prefix + " " + e.Message
	}
	if e.Cause != nil {
		return prefix + " " + e.Cause.Error()
	}
	return prefix
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// IsRetryable reports whether a caller might reasonably retry the request
// that produced this error.
func (e *ProviderError) IsRetryable() bool {
	switch e.Kind {
	case ErrRateLimited, ErrTimeout, ErrConnection:
		return true
	case ErrProvider:
		return e.StatusCode >= 500
	default:
		return false
	}
}

func NewAuthenticationError(provider, message string) *ProviderError {
	return &ProviderError{Kind: ErrAuthentication, Provider: provider, Message: message}
}

func NewRateLimitedError(provider string, retryAfter float64) *ProviderError {
	return &ProviderError{Kind: ErrRateLimited, Provider: provider, RetryAfterSeconds: retryAfter}
}

func NewModelNotFoundError(provider, model string) *ProviderError {
	return &ProviderError{Kind: ErrModelNotFound, Provider: provider, Message: fmt.Sprintf("model %q not found", model)}
}

func NewContextLengthExceededError(provider string, max, used int) *ProviderError {
	return &ProviderError{Kind: ErrContextLengthExceeded, Provider: provider, MaxTokens: max, UsedTokens: used}
}

func NewProviderStatusError(provider string, statusCode int, cause error) *ProviderError {
	return &ProviderError{Kind: ErrProvider, Provider: provider, StatusCode: statusCode, Cause: cause}
}

func NewTimeoutError(provider string, cause error) *ProviderError {
	return &ProviderError{Kind: ErrTimeout, Provider: provider, Cause: cause}
}

func NewConnectionError(provider string, cause error) *ProviderError {
	return &ProviderError{Kind: ErrConnection, Provider: provider, Cause: cause}
}

// AsProviderError extracts a *ProviderError from an error chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestProviderErrorIsRetryable(t *testing.T) {
	cases := []struct {
		err       *ProviderError
		retryable bool
	}{
		{NewRateLimitedError("openai", 1), true},
		{NewTimeoutError("openai", nil), true},
		{NewConnectionError("openai", nil), true},
		{NewProviderStatusError("openai", 500, nil), true},
		{NewProviderStatusError("openai", 400, nil), false},
		{NewAuthenticationError("openai", "bad key"), false},
		{NewModelNotFoundError("openai", "gpt-9"), false},
	}
	for _, c := range cases {
		if got := c.err.IsRetryable(); got != c.retryable {
			t.Errorf("%s.IsRetryable() = %v, want %v", c.err.Kind, got, c.retryable)
		}
	}
}

func TestAsProviderErrorUnwrapsChain(t *testing.T) {
	inner := NewAuthenticationError("anthropic", "bad key")
	wrapped := fmt.Errorf("request failed: %w", inner)

	if got, ok := AsProviderError(wrapped); !ok || got != inner {
		t.Fatal("expected AsProviderError to find the *ProviderError inside a wrapped chain")
	}

	pe, ok := AsProviderError(inner)
	if !ok {
		t.Fatal("expected AsProviderError to succeed on a bare *ProviderError")
	}
	if pe.Kind != ErrAuthentication {
		t.Errorf("Kind = %v, want %v", pe.Kind, ErrAuthentication)
	}

	if _, ok := AsProviderError(errors.New("unrelated")); ok {
		t.Error("expected AsProviderError to fail for an unrelated error")
	}
}

func TestProviderErrorUnwrapReturnsCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	pe := NewConnectionError("openai", cause)
	if errors.Unwrap(pe) != cause {
		t.Error("expected Unwrap to return the wrapped cause")
	}
}

package resilience

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient_ExplicitWrap(t *testing.T) {
	base := errors.New("too many requests")
	err := fmt.Errorf("fetch comments: %w", NewTransientError(base, 429))
	if !IsTransient(err) {
		t.Error("wrapped TransientError should be transient")
	}
}

func TestIsTransient_Nil(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil should not be transient")
	}
}

func TestIsTransient_PlainError(t *testing.T) {
	if IsTransient(errors.New("invalid credentials")) {
		t.Error("plain error should not be transient")
	}
}

func TestIsTransient_NetworkPattern(t *testing.T) {
	if !IsTransient(errors.New("read tcp: connection reset by peer")) {
		t.Error("connection reset should be transient")
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504, 529} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("status %d should be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("status %d should not be transient", code)
		}
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	base := errors.New("boom")
	te := NewTransientError(base, 503)
	if !errors.Is(te, base) {
		t.Error("Unwrap should expose the base error")
	}
	if te.Error() != "boom" {
		t.Errorf("Error() = %q, want boom", te.Error())
	}
}

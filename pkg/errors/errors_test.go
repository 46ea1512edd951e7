package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeMissingShape, "partition %d: no shape for %q", 2, "x")

	if err.Code != ErrCodeMissingShape {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeMissingShape)
	}

	if err.Message != `partition 2: no shape for "x"` {
		t.Errorf("Message = %v", err.Message)
	}

	expected := `MISSING_SHAPE: partition 2: no shape for "x"`
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("builder exploded")
	err := Wrap(ErrCodeConversion, cause, "partition %d", 0)

	if err.Code != ErrCodeConversion {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeConversion)
	}
	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if errors.Unwrap(err) != cause {
		t.Errorf("Unwrap() = %v, want %v", errors.Unwrap(err), cause)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	if got, want := err.Error(), "CONVERSION_FAILED: partition 0: builder exploded"; got != want {
		t.Errorf("Error() = %v, want %v", got, want)
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     Code
		expected bool
	}{
		{"matching code", New(ErrCodeInvalidGraph, "test"), ErrCodeInvalidGraph, true},
		{"non-matching code", New(ErrCodeInvalidGraph, "test"), ErrCodeConversion, false},
		{"outer code wins", Wrap(ErrCodeConversion, New(ErrCodeTypeMismatch, "inner"), "outer"), ErrCodeConversion, true},
		{"fmt wrapped", fmt.Errorf("rewrite: %w", New(ErrCodePruneInconsistent, "w")), ErrCodePruneInconsistent, true},
		{"non-Error type", errors.New("plain error"), ErrCodeInvalidInput, false},
		{"nil error", nil, ErrCodeInvalidInput, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.expected {
				t.Errorf("Is() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
	}{
		{"Error type", New(ErrCodeDanglingReference, "test"), ErrCodeDanglingReference},
		{"plain error", errors.New("plain"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"Error type", New(ErrCodeInvalidInput, "friendly message"), "friendly message"},
		{"plain error", errors.New("plain error"), "plain error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.expected {
				t.Errorf("UserMessage() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{ErrCodeInvalidGraph, 400},
		{ErrCodeMissingShape, 400},
		{ErrCodeFileNotFound, 404},
		{ErrCodeConversion, 422},
		{ErrCodePruneInconsistent, 422},
		{ErrCodeUnsupported, 501},
		{ErrCodeInternal, 500},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := HTTPStatus(New(tt.code, "x")); got != tt.want {
				t.Errorf("HTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}

	if got := HTTPStatus(errors.New("plain")); got != 500 {
		t.Errorf("HTTPStatus(plain) = %d, want 500", got)
	}
}

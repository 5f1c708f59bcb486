// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := New(CodeLLMError, "sensor call failed", cause)

	want := "[LLM_ERROR] sensor call failed: connection refused"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	err = New(CodeDegradedTurn, "quorum not met", nil)
	want = "[DEGRADED_TURN] quorum not met"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("deadline exceeded")
	err := New(CodeCallTimeout, "agent call timed out", cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestContextChaining(t *testing.T) {
	err := New(CodeSchemaViolation, "urgency out of range", nil).
		WithContext("agent", "inner-critic").
		WithContext("field", "urgency").
		WithRecoverable(true)

	if err.Context["agent"] != "inner-critic" {
		t.Errorf("context agent = %v", err.Context["agent"])
	}
	if !err.Recoverable {
		t.Error("expected recoverable")
	}
	if err.RecoverableString() != "true" {
		t.Errorf("RecoverableString() = %q", err.RecoverableString())
	}
}

func TestAsChorusError(t *testing.T) {
	plain := fmt.Errorf("plain error")
	wrapped := AsChorusError(plain)
	if wrapped.Code != CodeInternal {
		t.Errorf("wrapped code = %s, want %s", wrapped.Code, CodeInternal)
	}

	typed := New(CodeCriticExhausted, "revision cap reached", nil)
	if AsChorusError(typed) != typed {
		t.Error("AsChorusError should return the same instance for typed errors")
	}

	if AsChorusError(nil) != nil {
		t.Error("AsChorusError(nil) should be nil")
	}
}

func TestIsCode(t *testing.T) {
	err := New(CodeMalformedOutput, "not json", nil)
	if !IsCode(err, CodeMalformedOutput) {
		t.Error("IsCode should match")
	}
	if IsCode(err, CodeCallTimeout) {
		t.Error("IsCode should not match a different code")
	}
	if IsCode(nil, CodeInternal) {
		t.Error("IsCode(nil) should be false")
	}
}

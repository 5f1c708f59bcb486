// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed error handling with rich context for chorus.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies chorus errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeCallTimeout indicates an agent, sensor, or critic call exceeded its budget.
	CodeCallTimeout ErrorCode = "CALL_TIMEOUT"

	// CodeMalformedOutput indicates a model returned output that does not
	// satisfy the declared schema even after the corrective retry.
	CodeMalformedOutput ErrorCode = "MALFORMED_OUTPUT"

	// CodeSchemaViolation indicates a numeric field was outside its declared
	// range. The value is clamped, not rejected; the error is informational.
	CodeSchemaViolation ErrorCode = "SCHEMA_VIOLATION"

	// CodeDegradedTurn indicates the council quorum was not met within budget.
	CodeDegradedTurn ErrorCode = "DEGRADED_TURN"

	// CodeCriticExhausted indicates the revision cap was reached and the
	// fallback template was emitted.
	CodeCriticExhausted ErrorCode = "CRITIC_EXHAUSTED"

	// CodeConfigError indicates configuration or registry loading failed.
	CodeConfigError ErrorCode = "CONFIG_ERROR"

	// CodeMemoryError indicates a memory store error.
	CodeMemoryError ErrorCode = "MEMORY_ERROR"

	// CodeLLMError indicates an LLM provider error.
	CodeLLMError ErrorCode = "LLM_ERROR"
)

// ChorusError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type ChorusError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
}

// Error implements the error interface.
func (e *ChorusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *ChorusError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *ChorusError) MarshalJSON() ([]byte, error) {
	type Alias ChorusError
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         fmt.Sprintf("%v", e.Err),
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new ChorusError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *ChorusError {
	return &ChorusError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *ChorusError) WithContext(key string, value interface{}) *ChorusError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *ChorusError) WithAttribute(key, value string) *ChorusError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *ChorusError) WithRecoverable(recoverable bool) *ChorusError {
	e.Recoverable = recoverable
	return e
}

// AsChorusError attempts to convert an error to a ChorusError.
// Returns the error as ChorusError if it is one, or wraps it otherwise.
func AsChorusError(err error) *ChorusError {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*ChorusError); ok {
		return ce
	}
	// Wrap unknown error as internal
	return New(CodeInternal, "wrapped error", err)
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *ChorusError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// IsCode reports whether err is a ChorusError carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	ce, ok := err.(*ChorusError)
	return ok && ce.Code == code
}

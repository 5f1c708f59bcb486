// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"

	"github.com/mindsoc/chorus/pkg/errors"
)

// FallbackStrategy defines a fallback behavior when a primary operation fails.
type FallbackStrategy interface {
	// Execute runs the fallback operation.
	Execute(ctx context.Context, primaryErr error) (interface{}, error)
}

// FallbackFunc wraps a function as a FallbackStrategy.
type FallbackFunc func(ctx context.Context, primaryErr error) (interface{}, error)

// Execute implements FallbackStrategy.
func (f FallbackFunc) Execute(ctx context.Context, err error) (interface{}, error) {
	return f(ctx, err)
}

// StaticFallback returns a static value on failure. The critic gate uses this
// for the safe template response once the revision cap is reached.
type StaticFallback struct {
	Value interface{}
}

// Execute implements FallbackStrategy.
func (s *StaticFallback) Execute(ctx context.Context, primaryErr error) (interface{}, error) {
	return s.Value, nil
}

// ErrorFallback returns an error with additional context.
type ErrorFallback struct {
	Message string
}

// Execute implements FallbackStrategy.
func (e *ErrorFallback) Execute(ctx context.Context, primaryErr error) (interface{}, error) {
	return nil, errors.New(errors.CodeInternal, e.Message, primaryErr).
		WithContext("fallback", "error").
		WithRecoverable(false)
}

// WithFallback executes fn, and on error, uses the fallback strategy.
func WithFallback(ctx context.Context, fn func() (interface{}, error), fallback FallbackStrategy) (interface{}, error) {
	value, err := fn()
	if err == nil {
		return value, nil
	}

	return fallback.Execute(ctx, err)
}

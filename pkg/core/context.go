// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package core holds the small shared primitives of the orchestrator:
// context scoping for sessions and turns, and semantic stage events.
package core

import (
	"context"

	"github.com/google/uuid"
)

type sessionIDKey struct{}
type turnIDKey struct{}

// WithSessionID attaches a session id to the context.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// SessionID returns the session id if present.
func SessionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey{}).(string)
	return id, ok
}

// WithTurnID attaches a turn id to the context.
func WithTurnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, turnIDKey{}, id)
}

// TurnID returns the turn id if present.
func TurnID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(turnIDKey{}).(string)
	return id, ok
}

// EnsureTurnID ensures a turn id exists in the context.
func EnsureTurnID(ctx context.Context) (context.Context, string) {
	if id, ok := TurnID(ctx); ok {
		return ctx, id
	}
	id := uuid.NewString()
	return WithTurnID(ctx, id), id
}

// NewSessionID generates a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

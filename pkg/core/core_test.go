// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"testing"
)

func TestTurnIDScoping(t *testing.T) {
	ctx := context.Background()

	if _, ok := TurnID(ctx); ok {
		t.Error("fresh context should not carry a turn id")
	}

	ctx, id := EnsureTurnID(ctx)
	if id == "" {
		t.Fatal("EnsureTurnID returned empty id")
	}

	got, ok := TurnID(ctx)
	if !ok || got != id {
		t.Errorf("TurnID = %q, %v; want %q, true", got, ok, id)
	}

	// Ensure is idempotent once an id exists.
	_, again := EnsureTurnID(ctx)
	if again != id {
		t.Errorf("EnsureTurnID changed id: %q != %q", again, id)
	}
}

func TestSessionIDScoping(t *testing.T) {
	ctx := WithSessionID(context.Background(), "s-1")
	got, ok := SessionID(ctx)
	if !ok || got != "s-1" {
		t.Errorf("SessionID = %q, %v", got, ok)
	}

	if NewSessionID() == NewSessionID() {
		t.Error("session ids should be unique")
	}
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent(EventGoalSelected, "s-1", "t-1", map[string]any{"goal": "WITNESS"})
	if ev.Type != EventGoalSelected || ev.SessionID != "s-1" || ev.TurnID != "t-1" {
		t.Errorf("event fields: %+v", ev)
	}
	if ev.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
	if ev.Payload["goal"] != "WITNESS" {
		t.Errorf("payload = %v", ev.Payload)
	}

	// NoopEventEmitter must accept any event.
	NoopEventEmitter{}.Emit(context.Background(), ev)
}

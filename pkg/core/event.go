// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"time"
)

// EventType identifies a semantic event emitted by the turn controller.
type EventType string

const (
	EventTurnStarted      EventType = "turn.started"
	EventSensorsCompleted EventType = "turn.sensors.completed"
	EventCouncilCompleted EventType = "turn.council.completed"
	EventStanceUpdated    EventType = "turn.stance.updated"
	EventGoalSelected     EventType = "turn.goal.selected"
	EventDraftRejected    EventType = "turn.draft.rejected"
	EventTurnCompleted    EventType = "turn.completed"
	EventTurnDegraded     EventType = "turn.degraded"
)

// Event captures a semantic streaming/logging event.
type Event struct {
	Type      EventType
	SessionID string
	TurnID    string
	Timestamp time.Time
	Payload   map[string]any
}

// EventEmitter receives semantic events.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEventEmitter is a default no-op implementation.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(_ context.Context, _ Event) {}

// NewEvent builds a default event with timestamp.
func NewEvent(eventType EventType, sessionID, turnID string, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		SessionID: sessionID,
		TurnID:    turnID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

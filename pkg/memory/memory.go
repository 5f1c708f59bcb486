// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory persists what outlives a turn: accepted memory candidates,
// per-turn provenance records, and the rolling conversation history handed
// back to agents as context.
package memory

import (
	"context"
	"time"
)

// Candidate is one agent-proposed fact accepted for long-term storage.
type Candidate struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	TurnID     string    `json:"turn_id"`
	Agent      string    `json:"agent"`
	Text       string    `json:"text"`
	Importance float64   `json:"importance"`
	CreatedAt  time.Time `json:"created_at"`
}

// TurnRecord is the provenance trail of one completed turn.
type TurnRecord struct {
	TurnID      string    `json:"turn_id"`
	SessionID   string    `json:"session_id"`
	UserText    string    `json:"user_text"`
	Goal        string    `json:"goal"`
	Constraints []string  `json:"constraints"`
	Response    string    `json:"response"`
	Degraded    bool      `json:"degraded"`
	Fallback    bool      `json:"fallback"`
	DurationMS  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// CandidateStore persists accepted memory candidates.
type CandidateStore interface {
	// Append stores one candidate.
	Append(ctx context.Context, c Candidate) error

	// List returns a session's candidates, newest first. limit <= 0 means
	// no limit.
	List(ctx context.Context, sessionID string, limit int) ([]Candidate, error)
}

// TurnStore persists per-turn provenance.
type TurnStore interface {
	// SaveTurn stores one completed turn's record.
	SaveTurn(ctx context.Context, rec TurnRecord) error

	// Turns returns a session's records, oldest first. limit <= 0 means
	// no limit.
	Turns(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error)
}

// Store combines the two persistence concerns; both backends implement it.
type Store interface {
	CandidateStore
	TurnStore

	Close() error
}

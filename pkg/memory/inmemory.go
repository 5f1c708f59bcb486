// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sync"
)

// InMemoryStore keeps candidates and turn records in process memory. Used in
// tests and when persistence is disabled.
type InMemoryStore struct {
	mu         sync.RWMutex
	candidates map[string][]Candidate
	turns      map[string][]TurnRecord
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		candidates: make(map[string][]Candidate),
		turns:      make(map[string][]TurnRecord),
	}
}

func (s *InMemoryStore) Append(_ context.Context, c Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates[c.SessionID] = append(s.candidates[c.SessionID], c)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, sessionID string, limit int) ([]Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.candidates[sessionID]
	out := make([]Candidate, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, stored[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) SaveTurn(_ context.Context, rec TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[rec.SessionID] = append(s.turns[rec.SessionID], rec)
	return nil
}

func (s *InMemoryStore) Turns(_ context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.turns[sessionID]
	if limit > 0 && len(stored) > limit {
		stored = stored[:limit]
	}
	out := make([]TurnRecord, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

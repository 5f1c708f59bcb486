// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"sync"
	"time"

	"github.com/mindsoc/chorus/pkg/llm"
)

// HistoryMessage is one stored exchange half.
type HistoryMessage struct {
	Role      llm.Role
	Content   string
	CreatedAt time.Time
}

// History keeps per-session conversation context. It is a bounded window:
// appends past the cap evict the oldest messages, so agent and drafter
// prompts stay a fixed size no matter how long the session runs.
type History struct {
	mu       sync.RWMutex
	window   int
	sessions map[string][]HistoryMessage
}

// NewHistory creates a history keeping at most window messages per session.
// window <= 0 falls back to 20.
func NewHistory(window int) *History {
	if window <= 0 {
		window = 20
	}
	return &History{
		window:   window,
		sessions: make(map[string][]HistoryMessage),
	}
}

// Append records one message for the session, evicting past the window.
func (h *History) Append(sessionID string, role llm.Role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := append(h.sessions[sessionID], HistoryMessage{
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	if len(msgs) > h.window {
		msgs = msgs[len(msgs)-h.window:]
	}
	h.sessions[sessionID] = msgs
}

// Messages returns the session's window as prompt-ready messages, oldest
// first.
func (h *History) Messages(sessionID string) []llm.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	stored := h.sessions[sessionID]
	out := make([]llm.Message, len(stored))
	for i, m := range stored {
		out[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

// Clear drops the session's history.
func (h *History) Clear(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sessionID)
}

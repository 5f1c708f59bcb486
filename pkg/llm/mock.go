// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"fmt"
)

// quietTurnJSON carries every field the orchestrator's output contracts look
// for, so one canned body parses as an agent result (quiet), a sensor reading
// (p=0), or a critic verdict (passed). A mock-backed session therefore runs
// end to end without degrading.
const quietTurnJSON = `{"observation":"","urgency":0,"confidence":0,"claims":[],"stance_delta":{},"memory_candidates":[],"p":0,"evidence":[],"counterevidence":[],"note":"","critic":"mock","passed":true,"severity":0,"reason":"","quote":""}`

// MockProvider is a canned-response Provider for tests and the `mock`
// provider mode of chorusd. The zero value answers every role with a quiet,
// contract-valid body.
type MockProvider struct {
	Response string
	Err      error
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	content := m.Response
	if content == "" {
		content = quietTurnJSON
	}
	return &ChatResponse{
		Content: content,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 10,
			TotalTokens:      20,
		},
	}, nil
}

// FailingMockProvider always fails.
type FailingMockProvider struct {
	Err error
}

func (f *FailingMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if f.Err == nil {
		return nil, fmt.Errorf("mock error")
	}
	return nil, f.Err
}

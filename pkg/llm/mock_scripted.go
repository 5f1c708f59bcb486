// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ScriptedMockProvider is a mock provider that returns a pre-defined sequence of responses.
// Useful for testing multi-step interactions (e.g. the critic revision loop).
type ScriptedMockProvider struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	// CallCount tracks how many times Chat has been called
	CallCount int
}

// NewScriptedMockProvider creates a new ScriptedMockProvider.
func NewScriptedMockProvider(responses ...string) *ScriptedMockProvider {
	return &ScriptedMockProvider{
		Responses: responses,
	}
}

// Chat pops the next scripted response or returns the configured error.
func (s *ScriptedMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++

	if s.Err != nil {
		return nil, s.Err
	}

	if len(s.Responses) == 0 {
		return nil, errors.New("scripted mock: no more responses available")
	}

	// Pop the first response
	content := s.Responses[0]
	s.Responses = s.Responses[1:]

	return &ChatResponse{
		Content: content,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 10,
			TotalTokens:      20,
		},
	}, nil
}

// AddResponse appends a response to the queue.
func (s *ScriptedMockProvider) AddResponse(response string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Responses = append(s.Responses, response)
}

// RoleScriptedProvider routes scripted responses by role marker. The invoker
// always places the role definition in the first system message, so tests
// register responses against a substring of that definition (typically the
// role name) and the provider dispatches on it. Concurrency-safe, which
// matters because the pool and council stages call Chat in parallel.
type RoleScriptedProvider struct {
	mu        sync.Mutex
	responses map[string][]string
	errs      map[string]error
	delays    map[string]time.Duration
	calls     map[string]int
	// Default is returned when no role marker matches.
	Default string
}

// NewRoleScriptedProvider creates an empty role-keyed provider.
func NewRoleScriptedProvider() *RoleScriptedProvider {
	return &RoleScriptedProvider{
		responses: make(map[string][]string),
		errs:      make(map[string]error),
		delays:    make(map[string]time.Duration),
		calls:     make(map[string]int),
	}
}

// Script queues responses for calls whose system message contains marker.
func (p *RoleScriptedProvider) Script(marker string, responses ...string) *RoleScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses[marker] = append(p.responses[marker], responses...)
	return p
}

// FailWith makes calls matching marker return err.
func (p *RoleScriptedProvider) FailWith(marker string, err error) *RoleScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[marker] = err
	return p
}

// DelayFor makes calls matching marker block for d (or until ctx cancel),
// simulating a slow backend for timeout tests.
func (p *RoleScriptedProvider) DelayFor(marker string, d time.Duration) *RoleScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delays[marker] = d
	return p
}

// Calls returns how many Chat calls matched marker.
func (p *RoleScriptedProvider) Calls(marker string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[marker]
}

// Chat implements Provider.
func (p *RoleScriptedProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	system := ""
	for _, msg := range req.Messages {
		if msg.Role == RoleSystem {
			system = msg.Content
			break
		}
	}

	p.mu.Lock()
	marker := ""
	for m := range p.responses {
		if strings.Contains(system, m) {
			marker = m
			break
		}
	}
	if marker == "" {
		for m := range p.errs {
			if strings.Contains(system, m) {
				marker = m
				break
			}
		}
	}
	if marker == "" {
		for m := range p.delays {
			if strings.Contains(system, m) {
				marker = m
				break
			}
		}
	}
	p.calls[marker]++
	delay := p.delays[marker]
	err := p.errs[marker]
	var content string
	popped := false
	if queue := p.responses[marker]; len(queue) > 0 {
		content = queue[0]
		p.responses[marker] = queue[1:]
		popped = true
	}
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}
	if !popped {
		if p.Default == "" {
			return nil, errors.New("role scripted mock: no response for request")
		}
		content = p.Default
	}

	return &ChatResponse{
		Content: content,
		Usage:   Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}, nil
}

var (
	_ Provider = (*ScriptedMockProvider)(nil)
	_ Provider = (*RoleScriptedProvider)(nil)
)

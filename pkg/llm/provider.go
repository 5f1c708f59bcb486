// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm abstracts the inference capability consumed by the orchestrator.
// Every agent, sensor, critic, and drafter call goes through a Provider; the
// orchestrator treats it as an opaque "prompt in, structured text out" function.
package llm

import "context"

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single unit of communication.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest encapsulates the input for the LLM.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`

	// JSONOnly asks the backend to constrain output to a single JSON object.
	// Providers that cannot enforce this ignore it; callers must still
	// validate at the schema boundary.
	JSONOnly bool `json:"-"`

	// MaxTokens caps the completion length, 0 means provider default.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// ChatResponse encapsulates the output from the LLM.
type ChatResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Provider defines the interface for interacting with LLM backends.
type Provider interface {
	// Chat sends a chat request to the LLM and returns the response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

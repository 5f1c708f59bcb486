// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mindsoc/chorus/pkg/schema"
)

func TestMockProvider(t *testing.T) {
	mock := &MockProvider{Response: `{"urgency": 2}`}
	resp, err := mock.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != `{"urgency": 2}` {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 20 {
		t.Errorf("total tokens = %d", resp.Usage.TotalTokens)
	}
}

func TestMockProviderZeroValueIsQuietTurn(t *testing.T) {
	mock := &MockProvider{}
	resp, err := mock.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The default body must satisfy all three output contracts at once.
	if _, _, err := schema.ParseAgentResult("mock", resp.Content); err != nil {
		t.Errorf("default body rejected as agent result: %v", err)
	}
	if _, _, err := schema.ParseSensorResult("mock", resp.Content); err != nil {
		t.Errorf("default body rejected as sensor result: %v", err)
	}
	verdict, _, err := schema.ParseCriticVerdict("mock", resp.Content)
	if err != nil {
		t.Errorf("default body rejected as critic verdict: %v", err)
	}
	if !verdict.Passed {
		t.Error("default verdict should pass")
	}
}

func TestFailingMockProvider(t *testing.T) {
	mock := &FailingMockProvider{}
	if _, err := mock.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Error("expected error")
	}

	custom := fmt.Errorf("backend down")
	mock = &FailingMockProvider{Err: custom}
	if _, err := mock.Chat(context.Background(), ChatRequest{}); err != custom {
		t.Errorf("err = %v, want %v", err, custom)
	}
}

func TestScriptedMockProvider(t *testing.T) {
	mock := NewScriptedMockProvider("first", "second")

	resp, err := mock.Chat(context.Background(), ChatRequest{})
	if err != nil || resp.Content != "first" {
		t.Fatalf("resp=%v err=%v", resp, err)
	}
	resp, err = mock.Chat(context.Background(), ChatRequest{})
	if err != nil || resp.Content != "second" {
		t.Fatalf("resp=%v err=%v", resp, err)
	}
	if _, err := mock.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Error("expected exhaustion error")
	}
	if mock.CallCount != 3 {
		t.Errorf("call count = %d, want 3", mock.CallCount)
	}
}

func TestRoleScriptedProviderDispatch(t *testing.T) {
	p := NewRoleScriptedProvider().
		Script("safety_risk", `{"p": 0.6}`).
		Script("ambiguity", `{"p": 0.1}`)

	req := func(system string) ChatRequest {
		return ChatRequest{Messages: []Message{
			{Role: RoleSystem, Content: system},
		}}
	}

	resp, err := p.Chat(context.Background(), req("You are the safety_risk sensor."))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != `{"p": 0.6}` {
		t.Errorf("content = %q", resp.Content)
	}
	if p.Calls("safety_risk") != 1 {
		t.Errorf("calls = %d", p.Calls("safety_risk"))
	}
}

func TestRoleScriptedProviderDelayHonorsContext(t *testing.T) {
	p := NewRoleScriptedProvider().
		Script("slow-agent", `{}`).
		DelayFor("slow-agent", time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Chat(ctx, ChatRequest{Messages: []Message{
		{Role: RoleSystem, Content: "slow-agent role definition"},
	}})
	if err == nil {
		t.Fatal("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Error("delay did not respect context cancellation")
	}
}

func TestRoleScriptedProviderDefault(t *testing.T) {
	p := NewRoleScriptedProvider()
	p.Default = `{"urgency": 0, "confidence": 0}`

	resp, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{
		{Role: RoleSystem, Content: "unregistered role"},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != p.Default {
		t.Errorf("content = %q", resp.Content)
	}
}

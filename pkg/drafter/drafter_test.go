// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package drafter

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mindsoc/chorus/pkg/council"
	"github.com/mindsoc/chorus/pkg/llm"
	"github.com/mindsoc/chorus/pkg/schema"
	"github.com/mindsoc/chorus/pkg/workspace"
)

type capturingProvider struct {
	lastReq llm.ChatRequest
	reply   string
}

func (c *capturingProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	c.lastReq = req
	return &llm.ChatResponse{Content: c.reply}, nil
}

func TestDraftCarriesGoalAndConstraints(t *testing.T) {
	p := &capturingProvider{reply: "that sounds really hard."}
	d := New(p, "test-model", 200*time.Millisecond)

	ws := workspace.Workspace{
		Goal:        workspace.GoalWitness,
		Constraints: []workspace.Constraint{workspace.ConstraintNoPrematureAdvice},
	}
	text, err := d.Draft(context.Background(), Context{UserText: "rough week"}, ws)
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if text != "that sounds really hard." {
		t.Errorf("text = %q", text)
	}

	sys := p.lastReq.Messages[0].Content
	if !strings.Contains(sys, goalInstructions[workspace.GoalWitness]) {
		t.Error("system prompt missing goal instruction")
	}
	if !strings.Contains(sys, constraintInstructions[workspace.ConstraintNoPrematureAdvice]) {
		t.Error("system prompt missing constraint instruction")
	}
}

func TestDraftIncludesTopClaimsOnly(t *testing.T) {
	p := &capturingProvider{reply: "ok"}
	d := New(p, "test-model", 200*time.Millisecond)

	ws := workspace.Workspace{Goal: workspace.GoalWitness}
	for _, text := range []string{"first", "second", "third", "fourth"} {
		ws.TopClaims = append(ws.TopClaims, council.RankedClaim{Claim: schema.Claim{Text: text}})
	}
	if _, err := d.Draft(context.Background(), Context{UserText: "hi"}, ws); err != nil {
		t.Fatalf("Draft: %v", err)
	}
	sys := p.lastReq.Messages[0].Content
	if !strings.Contains(sys, "third") || strings.Contains(sys, "fourth") {
		t.Error("want exactly the top three claims in the prompt")
	}
}

func TestReviseCarriesFeedbackVerbatim(t *testing.T) {
	p := &capturingProvider{reply: "revised reply"}
	d := New(p, "test-model", 200*time.Millisecond)

	feedback := []schema.CriticVerdict{
		{Critic: "advice_reflex", Reason: "gives unsolicited advice", Severity: 0.8, Quote: "you should"},
	}
	ws := workspace.Workspace{Goal: workspace.GoalWitness}
	text, err := d.Revise(context.Background(), Context{UserText: "hi"}, ws, "you should quit", feedback)
	if err != nil {
		t.Fatalf("Revise: %v", err)
	}
	if text != "revised reply" {
		t.Errorf("text = %q", text)
	}

	last := p.lastReq.Messages[len(p.lastReq.Messages)-1].Content
	for _, want := range []string{"you should quit", "advice_reflex", "gives unsolicited advice", `"you should"`} {
		if !strings.Contains(last, want) {
			t.Errorf("revision prompt missing %q", want)
		}
	}
}

func TestDraftEmptyCompletionIsError(t *testing.T) {
	p := &capturingProvider{reply: "   "}
	d := New(p, "test-model", 200*time.Millisecond)
	if _, err := d.Draft(context.Background(), Context{UserText: "hi"}, workspace.Workspace{Goal: workspace.GoalWitness}); err == nil {
		t.Fatal("want error for empty completion")
	}
}

// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package drafter produces the candidate reply for a turn. It is the only
// component that writes user-facing prose; everything upstream decides what
// the reply should accomplish, and the critic gate decides whether this
// draft is allowed out.
package drafter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mindsoc/chorus/pkg/errors"
	"github.com/mindsoc/chorus/pkg/llm"
	"github.com/mindsoc/chorus/pkg/resilience"
	"github.com/mindsoc/chorus/pkg/schema"
	"github.com/mindsoc/chorus/pkg/workspace"
)

// goalInstructions maps each response goal to drafter guidance.
var goalInstructions = map[workspace.Goal]string{
	workspace.GoalWitness:  "Reflect what the user expressed and validate it. Do not steer, fix, or advise.",
	workspace.GoalInvite:   "Ask exactly one open clarifying question about the part that is unclear.",
	workspace.GoalOptions:  "Lay out two or three concrete options the user could take. Present them as choices, never as directives.",
	workspace.GoalBoundary: "Hold a clear safety boundary. Name your concern plainly, point to immediate professional or crisis resources, and do not problem-solve around the risk.",
	workspace.GoalMeta:     "Step out of the topic and address the conversation itself: name the friction you perceive and check whether the user shares that read.",
}

// constraintInstructions renders each named constraint for the prompt.
var constraintInstructions = map[workspace.Constraint]string{
	workspace.ConstraintNoPrematureAdvice: "Give no advice or suggestions unless the user explicitly asked.",
	workspace.ConstraintEscalate:          "Include a concrete pointer to professional or crisis support.",
	workspace.ConstraintNameTheRupture:    "Acknowledge the strain in this conversation directly.",
	workspace.ConstraintAskOneQuestion:    "End with a single question; do not stack questions.",
	workspace.ConstraintOptionsNotOrders:  "Phrase every option as a possibility, never an instruction.",
}

// Drafter turns a workspace into prose via the inference capability.
type Drafter struct {
	provider  llm.Provider
	model     string
	timeout   time.Duration
	maxTokens int
}

// New creates a drafter.
func New(provider llm.Provider, model string, timeout time.Duration) *Drafter {
	return &Drafter{provider: provider, model: model, timeout: timeout}
}

// WithMaxTokens caps completion length; 0 keeps the provider default.
func (d *Drafter) WithMaxTokens(n int) *Drafter {
	d.maxTokens = n
	return d
}

// Draft produces a reply consistent with the workspace goal and constraints.
func (d *Drafter) Draft(ctx context.Context, tc Context, ws workspace.Workspace) (string, error) {
	return d.generate(ctx, tc, ws, "", nil)
}

// Revise produces one bounded revision of a rejected draft, carrying the
// ranked critic feedback verbatim.
func (d *Drafter) Revise(ctx context.Context, tc Context, ws workspace.Workspace, draft string, feedback []schema.CriticVerdict) (string, error) {
	return d.generate(ctx, tc, ws, draft, feedback)
}

// Context is the conversational input the drafter writes against.
type Context struct {
	UserText string
	History  []llm.Message
}

func (d *Drafter) generate(ctx context.Context, tc Context, ws workspace.Workspace, rejected string, feedback []schema.CriticVerdict) (string, error) {
	var sys strings.Builder
	sys.WriteString("You write the assistant's reply for this turn.\n\n")
	sys.WriteString("Goal: ")
	sys.WriteString(goalInstructions[ws.Goal])
	sys.WriteString("\n")
	for _, c := range ws.Constraints {
		if instr, ok := constraintInstructions[c]; ok {
			sys.WriteString("Constraint: ")
			sys.WriteString(instr)
			sys.WriteString("\n")
		}
	}
	if len(ws.TopClaims) > 0 {
		sys.WriteString("\nWhat the turn surfaced, most salient first:\n")
		for i, rc := range ws.TopClaims {
			if i == 3 {
				break
			}
			fmt.Fprintf(&sys, "- %s\n", rc.Claim.Text)
		}
	}
	sys.WriteString("\nRespond with the reply text only, no preamble and no JSON.")

	messages := make([]llm.Message, 0, len(tc.History)+3)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: sys.String()})
	messages = append(messages, tc.History...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: tc.UserText})

	if rejected != "" {
		var rev strings.Builder
		rev.WriteString("Your previous draft was rejected:\n\n")
		rev.WriteString(rejected)
		rev.WriteString("\n\nFix these specific problems and change nothing else:\n")
		for _, v := range feedback {
			fmt.Fprintf(&rev, "- %s: %s", v.Critic, v.Reason)
			if v.Quote != "" {
				fmt.Fprintf(&rev, " (offending text: %q)", v.Quote)
			}
			rev.WriteString("\n")
		}
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: rev.String()})
	}

	value, err := resilience.WithTimeoutResult(ctx, resilience.TimeoutConfig{Duration: d.timeout},
		func(ctx context.Context) (interface{}, error) {
			return d.provider.Chat(ctx, llm.ChatRequest{
				Model:       d.model,
				Messages:    messages,
				Temperature: 0.7,
				MaxTokens:   d.maxTokens,
			})
		})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(value.(*llm.ChatResponse).Content)
	if text == "" {
		return "", errors.New(errors.CodeLLMError, "drafter returned empty text", nil)
	}
	return text, nil
}

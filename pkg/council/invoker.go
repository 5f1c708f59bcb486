// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package council runs the full agent set for one conversational turn and
// merges their structured outputs into a single TurnSummary. One agent's
// failure never blocks the turn: failures are absorbed here and become data.
package council

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mindsoc/chorus/pkg/errors"
	"github.com/mindsoc/chorus/pkg/llm"
	"github.com/mindsoc/chorus/pkg/registry"
	"github.com/mindsoc/chorus/pkg/resilience"
	"github.com/mindsoc/chorus/pkg/schema"
	"github.com/mindsoc/chorus/pkg/stance"
	"github.com/mindsoc/chorus/pkg/telemetry"
)

// FailureKind classifies an absorbed agent call failure.
type FailureKind string

const (
	FailureTimeout        FailureKind = "timeout"
	FailureMalformed      FailureKind = "malformed_output"
	FailureRefusalOrEmpty FailureKind = "refusal_or_empty"
)

// InvokeFailure records one absorbed failure for telemetry. It is data, not
// an error: it never propagates to the turn controller.
type InvokeFailure struct {
	Agent string
	Kind  FailureKind
	Err   error
}

// TurnContext is the per-turn input shared by every agent invocation.
type TurnContext struct {
	UserText string
	History  []llm.Message
	Stance   stance.Vector

	// VerifyEvidence is set when the injection sensor fires: agent claims
	// that quote material absent from the raw user turn are discarded
	// instead of trusted verbatim.
	VerifyEvidence bool
}

// Invoker runs one agent's role against the current turn within a per-call
// budget, enforcing the output schema. On malformed output it retries once
// with a corrective instruction, then degrades to a null result.
type Invoker struct {
	provider llm.Provider
	model    string
	timeout  time.Duration
	metrics  *telemetry.TurnMetrics
	logger   *slog.Logger
}

// NewInvoker creates an invoker. metrics may be nil.
func NewInvoker(provider llm.Provider, model string, timeout time.Duration, metrics *telemetry.TurnMetrics) *Invoker {
	return &Invoker{
		provider: provider,
		model:    model,
		timeout:  timeout,
		metrics:  metrics,
		logger:   slog.Default(),
	}
}

const agentOutputContract = `Respond with a single JSON object and nothing else:
{
  "observation": "<one sentence, what you notice this turn>",
  "urgency": <0-3>,
  "confidence": <0-3>,
  "claims": [{"text": "<claim>", "type": "observation|recommendation|concern"}],
  "stance_delta": {"<dimension>": <-1.0 to 1.0>},
  "memory_candidates": [{"text": "<fact>", "importance": <0.0-1.0>}]
}
If you have nothing to contribute this turn, return urgency 0 and confidence 0 with no claims.`

// Invoke runs one agent. The returned result is always usable: on failure it
// is the null result and the failure is reported alongside for telemetry.
func (inv *Invoker) Invoke(ctx context.Context, spec registry.AgentSpec, tc TurnContext) (schema.AgentResult, *InvokeFailure) {
	raw, err := inv.call(ctx, spec, tc, "")
	if err != nil {
		return schema.NullAgentResult(spec.Name), inv.failure(ctx, spec.Name, err)
	}

	result, clamps, perr := schema.ParseAgentResult(spec.Name, raw)
	if perr != nil {
		// One corrective retry, then degrade to the null result.
		corrective := fmt.Sprintf("Your previous reply was not valid: %v. %s", perr, agentOutputContract)
		raw, err = inv.call(ctx, spec, tc, corrective)
		if err != nil {
			return schema.NullAgentResult(spec.Name), inv.failure(ctx, spec.Name, err)
		}
		result, clamps, perr = schema.ParseAgentResult(spec.Name, raw)
		if perr != nil {
			inv.metrics.RecordError(ctx, perr, "council")
			inv.logger.WarnContext(ctx, "agent output malformed after corrective retry",
				"agent", spec.Name, "err", perr)
			return schema.NullAgentResult(spec.Name), &InvokeFailure{
				Agent: spec.Name, Kind: FailureMalformed, Err: perr,
			}
		}
	}

	inv.recordClamps(ctx, clamps)
	return result, nil
}

func (inv *Invoker) call(ctx context.Context, spec registry.AgentSpec, tc TurnContext, corrective string) (string, error) {
	messages := make([]llm.Message, 0, len(tc.History)+3)
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: spec.Role + "\n\n" + agentOutputContract,
	})
	messages = append(messages, tc.History...)

	var sb strings.Builder
	if len(tc.Stance) > 0 {
		sb.WriteString("Current stance: ")
		sb.WriteString(formatStance(tc.Stance))
		sb.WriteString("\n")
	}
	sb.WriteString("User turn: ")
	sb.WriteString(tc.UserText)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: sb.String()})

	if corrective != "" {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: corrective})
	}

	value, err := resilience.WithTimeoutResult(ctx, resilience.TimeoutConfig{Duration: inv.timeout},
		func(ctx context.Context) (interface{}, error) {
			return inv.provider.Chat(ctx, llm.ChatRequest{
				Model:    inv.model,
				Messages: messages,
				JSONOnly: true,
			})
		})
	if err != nil {
		return "", err
	}

	resp := value.(*llm.ChatResponse)
	if strings.TrimSpace(resp.Content) == "" {
		return "", errors.New(errors.CodeLLMError, "empty completion", nil).
			WithContext("agent", spec.Name)
	}
	return resp.Content, nil
}

func (inv *Invoker) failure(ctx context.Context, agent string, err error) *InvokeFailure {
	kind := FailureRefusalOrEmpty
	if errors.IsCode(err, errors.CodeCallTimeout) {
		kind = FailureTimeout
	}
	inv.metrics.RecordError(ctx, err, "council")
	inv.logger.WarnContext(ctx, "agent call failed", "agent", agent, "kind", string(kind), "err", err)
	return &InvokeFailure{Agent: agent, Kind: kind, Err: err}
}

func (inv *Invoker) recordClamps(ctx context.Context, clamps []schema.ClampEvent) {
	for _, c := range clamps {
		inv.metrics.RecordClamp(ctx, c.Source, c.Field)
		inv.metrics.RecordError(ctx, c.Err(), "council")
		inv.logger.InfoContext(ctx, "clamped out-of-range field",
			"source", c.Source, "field", c.Field, "raw", c.Raw, "clamped", c.Clamped)
	}
}

func formatStance(v stance.Vector) string {
	parts := make([]string, 0, len(v))
	for _, dim := range []string{stance.Valence, stance.Arousal, stance.Strain, stance.Closeness, stance.SocialRisk, stance.TimePressure, stance.Control, stance.Attention, stance.Safety} {
		if val, ok := v[dim]; ok {
			parts = append(parts, fmt.Sprintf("%s=%.2f", dim, val))
		}
	}
	return strings.Join(parts, " ")
}

// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package critic validates drafted replies against the active goal and
// constraints. The gate's contract is cap-and-fallback: it never emits an
// unvalidated draft and never loops forever on an unsatisfiable critic set.
package critic

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mindsoc/chorus/pkg/errors"
	"github.com/mindsoc/chorus/pkg/llm"
	"github.com/mindsoc/chorus/pkg/registry"
	"github.com/mindsoc/chorus/pkg/resilience"
	"github.com/mindsoc/chorus/pkg/schema"
	"github.com/mindsoc/chorus/pkg/telemetry"
	"github.com/mindsoc/chorus/pkg/workspace"
)

// FallbackText is the minimal safe reply used when the revision cap is
// exhausted: pure acknowledgment, no advice, no clichés.
const FallbackText = "I hear you. I want to get this right rather than rush a reply, so tell me more about what matters most here."

// Reviser requests one bounded revision of a rejected draft. The response
// drafter implements it; the gate stays decoupled from how prose is made.
type Reviser interface {
	Revise(ctx context.Context, draft string, feedback []schema.CriticVerdict) (string, error)
}

// ReviserFunc adapts a function to the Reviser interface.
type ReviserFunc func(ctx context.Context, draft string, feedback []schema.CriticVerdict) (string, error)

func (f ReviserFunc) Revise(ctx context.Context, draft string, feedback []schema.CriticVerdict) (string, error) {
	return f(ctx, draft, feedback)
}

// Outcome is the gate's final word on a turn's reply.
type Outcome struct {
	Text string

	// Accepted means every critic passed the emitted text. When false the
	// text is the safe fallback, never a failing draft.
	Accepted bool
	Fallback bool

	// Rounds counts validation passes, including the first.
	Rounds int

	// Rejections holds the failing verdicts from every round, for
	// provenance.
	Rejections []schema.CriticVerdict
}

// Gate runs the configured critic set in parallel against each draft.
type Gate struct {
	provider      llm.Provider
	model         string
	timeout       time.Duration
	specs         []registry.CriticSpec
	revisionCap   int
	topK          int
	maxConcurrent int
	fallback      resilience.FallbackStrategy
	metrics       *telemetry.TurnMetrics
	logger        *slog.Logger
}

// NewGate builds a gate. revisionCap bounds the revise loop and topK bounds
// how many ranked failure reasons each revision request carries. metrics may
// be nil.
func NewGate(provider llm.Provider, model string, timeout time.Duration, specs []registry.CriticSpec, revisionCap, topK, maxConcurrent int, metrics *telemetry.TurnMetrics) *Gate {
	if topK <= 0 {
		topK = 2
	}
	if maxConcurrent <= 0 {
		maxConcurrent = len(specs)
	}
	return &Gate{
		provider:      provider,
		model:         model,
		timeout:       timeout,
		specs:         specs,
		revisionCap:   revisionCap,
		topK:          topK,
		maxConcurrent: maxConcurrent,
		fallback:      &resilience.StaticFallback{Value: FallbackText},
		metrics:       metrics,
		logger:        slog.Default(),
	}
}

// Review validates the draft and drives the bounded revision loop. The
// returned outcome always carries emittable text.
func (g *Gate) Review(ctx context.Context, ws workspace.Workspace, userText, draft string, reviser Reviser) Outcome {
	outcome := Outcome{Text: draft}

	for round := 0; ; round++ {
		outcome.Rounds = round + 1
		failing := g.validate(ctx, ws, userText, outcome.Text)
		if len(failing) == 0 {
			outcome.Accepted = true
			return outcome
		}
		outcome.Rejections = append(outcome.Rejections, failing...)
		for _, v := range failing {
			g.metrics.RecordCriticRejection(ctx, v.Critic, v.Severity)
		}

		if round >= g.revisionCap {
			cause := errors.New(errors.CodeCriticExhausted, "revision cap reached with failing critics", nil).
				WithContext("rounds", outcome.Rounds).
				WithRecoverable(true)
			g.logger.WarnContext(ctx, "revision cap exhausted, emitting safe fallback",
				"rounds", outcome.Rounds, "failing", len(failing))
			g.metrics.RecordRevision(ctx, round, true)
			outcome.Text = g.safeText(ctx, cause)
			outcome.Fallback = true
			return outcome
		}

		feedback := topFailures(failing, g.topK)
		revised, err := reviser.Revise(ctx, outcome.Text, feedback)
		if err != nil || strings.TrimSpace(revised) == "" {
			if err == nil {
				err = errors.New(errors.CodeLLMError, "reviser returned empty text", nil)
			}
			g.logger.WarnContext(ctx, "revision failed, emitting safe fallback", "err", err)
			g.metrics.RecordRevision(ctx, round, true)
			outcome.Text = g.safeText(ctx, err)
			outcome.Fallback = true
			return outcome
		}
		g.metrics.RecordRevision(ctx, round, false)
		outcome.Text = revised
	}
}

// safeText resolves the configured fallback strategy. The gate must always be
// able to emit something, so a misconfigured strategy degrades to the template.
func (g *Gate) safeText(ctx context.Context, cause error) string {
	value, _ := g.fallback.Execute(ctx, cause)
	if text, ok := value.(string); ok && text != "" {
		return text
	}
	return FallbackText
}

// validate fans the draft out to every critic and returns the failing
// verdicts. A critic that errors, times out, or stays malformed after one
// corrective retry abstains: the draft is judged by the critics that
// answered.
func (g *Gate) validate(ctx context.Context, ws workspace.Workspace, userText, draft string) []schema.CriticVerdict {
	var mu sync.Mutex
	var failing []schema.CriticVerdict

	g2, gctx := errgroup.WithContext(ctx)
	g2.SetLimit(g.maxConcurrent)
	for _, spec := range g.specs {
		spec := spec
		g2.Go(func() error {
			verdict, ok := g.judge(gctx, spec, ws, userText, draft)
			if ok && !verdict.Passed {
				mu.Lock()
				failing = append(failing, verdict)
				mu.Unlock()
			}
			return nil
		})
	}
	g2.Wait()

	// Deterministic order regardless of completion order.
	sort.Slice(failing, func(i, j int) bool {
		if failing[i].Severity != failing[j].Severity {
			return failing[i].Severity > failing[j].Severity
		}
		return failing[i].Critic < failing[j].Critic
	})
	return failing
}

const criticOutputContract = `Respond with a single JSON object and nothing else:
{
  "critic": "<your name>",
  "passed": <true|false>,
  "reason": "<at most 20 words, required when passed is false>",
  "severity": <0.0-1.0>,
  "quote": "<the offending span of the draft, verbatim, or empty>"
}`

func (g *Gate) judge(ctx context.Context, spec registry.CriticSpec, ws workspace.Workspace, userText, draft string) (schema.CriticVerdict, bool) {
	raw, err := g.call(ctx, spec, ws, userText, draft, "")
	if err != nil {
		return g.abstain(ctx, spec.Name, err)
	}
	verdict, clamps, perr := schema.ParseCriticVerdict(spec.Name, raw)
	if perr != nil {
		corrective := fmt.Sprintf("Your previous reply was not valid: %v. %s", perr, criticOutputContract)
		raw, err = g.call(ctx, spec, ws, userText, draft, corrective)
		if err != nil {
			return g.abstain(ctx, spec.Name, err)
		}
		verdict, clamps, perr = schema.ParseCriticVerdict(spec.Name, raw)
		if perr != nil {
			return g.abstain(ctx, spec.Name, perr)
		}
	}
	for _, c := range clamps {
		g.metrics.RecordClamp(ctx, c.Source, c.Field)
		g.metrics.RecordError(ctx, c.Err(), "critic")
	}
	return verdict, true
}

func (g *Gate) call(ctx context.Context, spec registry.CriticSpec, ws workspace.Workspace, userText, draft, corrective string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Response goal: %s\n", ws.Goal)
	for _, c := range ws.Constraints {
		fmt.Fprintf(&sb, "Active constraint: %s\n", c)
	}
	fmt.Fprintf(&sb, "\nUser turn:\n%s\n\nDraft reply to judge:\n%s", userText, draft)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: spec.Role + "\n\n" + criticOutputContract},
		{Role: llm.RoleUser, Content: sb.String()},
	}
	if corrective != "" {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: corrective})
	}

	value, err := resilience.WithTimeoutResult(ctx, resilience.TimeoutConfig{Duration: g.timeout},
		func(ctx context.Context) (interface{}, error) {
			return g.provider.Chat(ctx, llm.ChatRequest{
				Model:    g.model,
				Messages: messages,
				JSONOnly: true,
			})
		})
	if err != nil {
		return "", err
	}
	return value.(*llm.ChatResponse).Content, nil
}

func (g *Gate) abstain(ctx context.Context, name string, err error) (schema.CriticVerdict, bool) {
	g.metrics.RecordError(ctx, err, "critic")
	g.logger.WarnContext(ctx, "critic abstained", "critic", name, "err", err)
	return schema.CriticVerdict{}, false
}

// topFailures returns the k highest-severity verdicts. Input is already
// severity-sorted by validate.
func topFailures(failing []schema.CriticVerdict, k int) []schema.CriticVerdict {
	if len(failing) <= k {
		return failing
	}
	return failing[:k]
}

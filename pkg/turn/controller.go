// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package turn sequences one conversational turn through the pipeline:
// sensors, council, stance update, goal selection, drafting, critic gate,
// then persistence. Stages are strictly ordered; all fan-out happens inside
// the stage packages. The stance vector is written exactly once per turn,
// between council merge and goal selection.
package turn

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mindsoc/chorus/pkg/core"
	"github.com/mindsoc/chorus/pkg/council"
	"github.com/mindsoc/chorus/pkg/critic"
	"github.com/mindsoc/chorus/pkg/drafter"
	"github.com/mindsoc/chorus/pkg/errors"
	"github.com/mindsoc/chorus/pkg/llm"
	"github.com/mindsoc/chorus/pkg/memory"
	"github.com/mindsoc/chorus/pkg/schema"
	"github.com/mindsoc/chorus/pkg/sensors"
	"github.com/mindsoc/chorus/pkg/stance"
	"github.com/mindsoc/chorus/pkg/telemetry"
	"github.com/mindsoc/chorus/pkg/workspace"
)

// Output is what the conversation transport receives for one turn: the
// final text plus the metadata observability needs.
type Output struct {
	TurnID      string
	Text        string
	Goal        workspace.Goal
	Constraints []workspace.Constraint

	// Degraded marks a turn where the council fell below quorum.
	Degraded bool

	// Fallback marks a reply that is the critic gate's safe template
	// rather than an accepted draft.
	Fallback bool
}

// Dependencies wires the pipeline stages. Store, Indexer, History, Events,
// and Metrics may be nil; the controller degrades to not persisting,
// not indexing, running without history, and staying silent.
type Dependencies struct {
	Sensors  *sensors.Pool
	Council  *council.Aggregator
	Selector *workspace.Selector
	Drafter  *drafter.Drafter
	Gate     *critic.Gate
	Store    memory.Store
	Indexer  *memory.Indexer
	History  *memory.History
	Events   core.EventEmitter
	Metrics  *telemetry.TurnMetrics
}

// Options are the controller's tunables.
type Options struct {
	// TurnBudget bounds one whole turn; in-flight stage calls are
	// cancelled when it expires.
	TurnBudget time.Duration

	// InjectionThreshold switches agent claim verification on when the
	// injection sensor reads at or above it.
	InjectionThreshold float64

	// HistoryWindow caps how many stored messages feed agent and drafter
	// prompts.
	HistoryWindow int
}

// Controller owns the per-turn stage sequencing for all sessions.
type Controller struct {
	deps   Dependencies
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
}

// NewController wires a controller.
func NewController(deps Dependencies, opts Options) *Controller {
	if deps.Events == nil {
		deps.Events = core.NoopEventEmitter{}
	}
	if opts.TurnBudget <= 0 {
		opts.TurnBudget = 45 * time.Second
	}
	return &Controller{
		deps:   deps,
		opts:   opts,
		logger: slog.Default(),
		tracer: otel.Tracer("chorus/turn"),
	}
}

// Session is one conversation: a stance vector evolving across turns plus a
// session id. Turns within a session are processed sequentially; distinct
// sessions are independent and may run in parallel.
type Session struct {
	ID      string
	tracker *stance.Tracker
}

// NewSession starts a session with a fresh stance vector.
func (c *Controller) NewSession(cfg stance.Config) *Session {
	return &Session{
		ID:      core.NewSessionID(),
		tracker: stance.NewTracker(cfg),
	}
}

// Stance returns the session's current stance snapshot.
func (s *Session) Stance() stance.Vector {
	return s.tracker.Snapshot()
}

// Turn runs one user turn through the pipeline and always returns emittable
// output; errors are reserved for the drafter path failing outright, where
// no validated text exists at all.
func (c *Controller) Turn(ctx context.Context, session *Session, userText string) (Output, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.opts.TurnBudget)
	defer cancel()

	ctx = core.WithSessionID(ctx, session.ID)
	ctx, turnID := core.EnsureTurnID(ctx)

	ctx, span := c.tracer.Start(ctx, "turn",
		trace.WithAttributes(telemetry.TurnAttributes(session.ID, turnID)...))
	defer span.End()

	c.emit(ctx, core.EventTurnStarted, session.ID, turnID, map[string]any{"user_chars": len(userText)})

	history := c.historyFor(session.ID)

	// Stage 1: sensors gate everything downstream.
	report := c.deps.Sensors.Read(ctx, userText)
	verify := report.P(sensors.InjectionSensorName) >= c.opts.InjectionThreshold
	c.emit(ctx, core.EventSensorsCompleted, session.ID, turnID, map[string]any{
		"sensors": len(report), "verify_evidence": verify,
	})

	// Stage 2: council, reading the turn-start stance snapshot.
	tc := council.TurnContext{
		UserText:       userText,
		History:        history,
		Stance:         session.tracker.Snapshot(),
		VerifyEvidence: verify,
	}
	summary := c.deps.Council.Collect(ctx, tc, report)
	c.emit(ctx, core.EventCouncilCompleted, session.ID, turnID, map[string]any{
		"responded": summary.Responded, "total": summary.Total, "claims": len(summary.Claims),
	})

	// Stage 3: the single stance write of this turn.
	snapshot := session.tracker.Apply(summary.StanceDelta)
	c.emit(ctx, core.EventStanceUpdated, session.ID, turnID, map[string]any{"stance": snapshot})

	// Stage 4: goal selection from the updated stance.
	ws := c.deps.Selector.Select(summary, snapshot)
	span.SetAttributes(
		attribute.String(telemetry.AttrTurnGoal, string(ws.Goal)),
		attribute.Bool(telemetry.AttrDegraded, summary.Degraded),
	)
	c.emit(ctx, core.EventGoalSelected, session.ID, turnID, map[string]any{
		"goal": string(ws.Goal), "constraints": len(ws.Constraints),
	})
	if summary.Degraded {
		c.deps.Metrics.RecordDegradedTurn(ctx, "council_below_quorum")
		c.emit(ctx, core.EventTurnDegraded, session.ID, turnID, map[string]any{
			"responded": summary.Responded, "total": summary.Total,
		})
	}

	// Stages 5–6: draft, then gate.
	out, err := c.produceReply(ctx, session, ws, userText, history)
	out.TurnID = turnID
	out.Goal = ws.Goal
	out.Constraints = ws.Constraints
	out.Degraded = summary.Degraded
	if err != nil {
		span.SetStatus(codes.Error, "turn failed")
		span.RecordError(err)
		c.deps.Metrics.RecordError(ctx, err, "turn")
		return out, err
	}

	c.finishTurn(ctx, session, turnID, userText, out, summary, start)
	return out, nil
}

func (c *Controller) produceReply(ctx context.Context, session *Session, ws workspace.Workspace, userText string, history []llm.Message) (Output, error) {
	dc := drafter.Context{UserText: userText, History: history}

	draft, err := c.deps.Drafter.Draft(ctx, dc, ws)
	if err != nil {
		// No draft exists; the gate's fallback is still safe to emit.
		c.logger.ErrorContext(ctx, "drafting failed, emitting safe fallback", "err", err)
		return Output{Text: critic.FallbackText, Fallback: true},
			errors.New(errors.CodeDegradedTurn, "drafter unavailable", err).WithRecoverable(true)
	}

	reviser := critic.ReviserFunc(func(ctx context.Context, rejected string, feedback []schema.CriticVerdict) (string, error) {
		turnID, _ := core.TurnID(ctx)
		c.emit(ctx, core.EventDraftRejected, session.ID, turnID, map[string]any{
			"failures": len(feedback),
		})
		return c.deps.Drafter.Revise(ctx, dc, ws, rejected, feedback)
	})
	outcome := c.deps.Gate.Review(ctx, ws, userText, draft, reviser)
	return Output{Text: outcome.Text, Fallback: outcome.Fallback}, nil
}

func (c *Controller) finishTurn(ctx context.Context, session *Session, turnID, userText string, out Output, summary *council.TurnSummary, start time.Time) {
	if c.deps.History != nil {
		c.deps.History.Append(session.ID, llm.RoleUser, userText)
		c.deps.History.Append(session.ID, llm.RoleAssistant, out.Text)
	}
	c.commitMemory(ctx, session.ID, turnID, summary.MemoryCandidates)

	durationMS := time.Since(start).Milliseconds()
	if c.deps.Store != nil {
		constraints := make([]string, len(out.Constraints))
		for i, con := range out.Constraints {
			constraints[i] = string(con)
		}
		rec := memory.TurnRecord{
			TurnID:      turnID,
			SessionID:   session.ID,
			UserText:    userText,
			Goal:        string(out.Goal),
			Constraints: constraints,
			Response:    out.Text,
			Degraded:    out.Degraded,
			Fallback:    out.Fallback,
			DurationMS:  durationMS,
		}
		if err := c.deps.Store.SaveTurn(ctx, rec); err != nil {
			c.logger.WarnContext(ctx, "turn record not persisted", "err", err)
		}
	}

	c.deps.Metrics.RecordTurnDuration(ctx, float64(durationMS), out.Degraded)
	c.emit(ctx, core.EventTurnCompleted, session.ID, turnID, map[string]any{
		"goal": string(out.Goal), "degraded": out.Degraded, "fallback": out.Fallback,
		"duration_ms": durationMS,
	})
}

// commitMemory persists the turn's proposed memories. Persistence and
// indexing are best-effort; the reply has already been produced.
func (c *Controller) commitMemory(ctx context.Context, sessionID, turnID string, proposed []council.AgentMemoryCandidate) {
	if c.deps.Store == nil || len(proposed) == 0 {
		return
	}
	for _, mc := range proposed {
		candidate := memory.Candidate{
			ID:         uuid.NewString(),
			SessionID:  sessionID,
			TurnID:     turnID,
			Agent:      mc.Agent,
			Text:       mc.Text,
			Importance: mc.Importance,
		}
		if err := c.deps.Store.Append(ctx, candidate); err != nil {
			c.logger.WarnContext(ctx, "memory candidate not persisted", "agent", mc.Agent, "err", err)
			continue
		}
		if c.deps.Indexer != nil {
			if err := c.deps.Indexer.Index(ctx, candidate); err != nil {
				c.logger.WarnContext(ctx, "memory candidate not indexed", "agent", mc.Agent, "err", err)
			}
		}
	}
}

func (c *Controller) historyFor(sessionID string) []llm.Message {
	if c.deps.History == nil {
		return nil
	}
	msgs := c.deps.History.Messages(sessionID)
	if c.opts.HistoryWindow > 0 && len(msgs) > c.opts.HistoryWindow {
		msgs = msgs[len(msgs)-c.opts.HistoryWindow:]
	}
	return msgs
}

func (c *Controller) emit(ctx context.Context, t core.EventType, sessionID, turnID string, payload map[string]any) {
	c.deps.Events.Emit(ctx, core.NewEvent(t, sessionID, turnID, payload))
}

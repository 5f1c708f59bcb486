// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package sensors runs the binary/probability detectors that fire before the
// agent council. Sensors are cheap, parallel, and fail-open: a sensor that
// errors or times out reads as p=0 with a degraded mark rather than blocking
// the turn.
package sensors

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mindsoc/chorus/pkg/llm"
	"github.com/mindsoc/chorus/pkg/registry"
	"github.com/mindsoc/chorus/pkg/resilience"
	"github.com/mindsoc/chorus/pkg/schema"
	"github.com/mindsoc/chorus/pkg/telemetry"
)

// Report holds one turn's sensor readings keyed by sensor name.
type Report map[string]schema.SensorResult

// P returns the named sensor's probability, zero if it never ran.
func (r Report) P(name string) float64 {
	return r[name].P
}

// Heuristic is a local, non-LLM detector merged into the report alongside
// the model-backed sensors.
type Heuristic interface {
	Name() string
	Read(ctx context.Context, userText string) schema.SensorResult
}

const sensorOutputContract = `Respond with a single JSON object and nothing else:
{
  "p": <0.0-1.0, probability the condition holds in this turn>,
  "evidence": [{"quote": "<verbatim substring of the user turn>", "offset": <character offset>}],
  "counterevidence": [{"quote": "...", "offset": 0}],
  "notes": "<optional, one short sentence>"
}
Quote only text that appears verbatim in the user turn.`

// Pool fans one user turn out to every configured sensor in parallel.
type Pool struct {
	provider   llm.Provider
	model      string
	timeout    time.Duration
	specs      []registry.SensorSpec
	heuristics []Heuristic
	metrics    *telemetry.TurnMetrics
	logger     *slog.Logger
}

// NewPool builds a sensor pool from the registry's sensor specs. metrics may
// be nil.
func NewPool(provider llm.Provider, model string, timeout time.Duration, specs []registry.SensorSpec, metrics *telemetry.TurnMetrics) *Pool {
	return &Pool{
		provider: provider,
		model:    model,
		timeout:  timeout,
		specs:    specs,
		metrics:  metrics,
		logger:   slog.Default(),
	}
}

// AddHeuristic registers a local detector. When a heuristic shares a name
// with an LLM sensor the two readings merge at max(p), so a regex hit can
// never be argued down by the model.
func (p *Pool) AddHeuristic(h Heuristic) {
	p.heuristics = append(p.heuristics, h)
}

// Read runs all sensors against the user turn and returns the merged report.
// The report always contains an entry for every configured sensor.
func (p *Pool) Read(ctx context.Context, userText string) Report {
	report := make(Report, len(p.specs)+len(p.heuristics))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, spec := range p.specs {
		spec := spec
		g.Go(func() error {
			result := p.readOne(gctx, spec, userText)
			mu.Lock()
			report[spec.Name] = mergeReadings(report[spec.Name], result)
			mu.Unlock()
			return nil
		})
	}
	for _, h := range p.heuristics {
		h := h
		g.Go(func() error {
			result := h.Read(gctx, userText)
			result.Sensor = h.Name()
			mu.Lock()
			report[h.Name()] = mergeReadings(report[h.Name()], result)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	for name, r := range report {
		if r.Sensor == "" {
			r.Sensor = name
			report[name] = r
		}
	}
	return report
}

func (p *Pool) readOne(ctx context.Context, spec registry.SensorSpec, userText string) schema.SensorResult {
	raw, err := p.call(ctx, spec, userText, "")
	if err != nil {
		return p.degraded(ctx, spec.Name, err)
	}
	result, clamps, perr := schema.ParseSensorResult(spec.Name, raw)
	if perr != nil {
		corrective := fmt.Sprintf("Your previous reply was not valid: %v. %s", perr, sensorOutputContract)
		raw, err = p.call(ctx, spec, userText, corrective)
		if err != nil {
			return p.degraded(ctx, spec.Name, err)
		}
		result, clamps, perr = schema.ParseSensorResult(spec.Name, raw)
		if perr != nil {
			return p.degraded(ctx, spec.Name, perr)
		}
	}
	for _, c := range clamps {
		p.metrics.RecordClamp(ctx, c.Source, c.Field)
		p.metrics.RecordError(ctx, c.Err(), "sensors")
	}
	return verifySpans(result, userText)
}

func (p *Pool) call(ctx context.Context, spec registry.SensorSpec, userText, corrective string) (string, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: spec.Role + "\n\n" + sensorOutputContract},
		{Role: llm.RoleUser, Content: userText},
	}
	if corrective != "" {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: corrective})
	}
	value, err := resilience.WithTimeoutResult(ctx, resilience.TimeoutConfig{Duration: p.timeout},
		func(ctx context.Context) (interface{}, error) {
			return p.provider.Chat(ctx, llm.ChatRequest{
				Model:    p.model,
				Messages: messages,
				JSONOnly: true,
			})
		})
	if err != nil {
		return "", err
	}
	return value.(*llm.ChatResponse).Content, nil
}

// verifySpans drops evidence spans whose quotes do not appear verbatim in
// the user turn and fixes up offsets the model got wrong. Dropping all
// evidence does not zero p: the probability stands on its own.
func verifySpans(result schema.SensorResult, userText string) schema.SensorResult {
	result.Evidence = verifiedSpans(result.Evidence, userText)
	result.CounterEvidence = verifiedSpans(result.CounterEvidence, userText)
	return result
}

func verifiedSpans(spans []schema.Span, userText string) []schema.Span {
	out := spans[:0]
	for _, s := range spans {
		if s.Quote == "" {
			continue
		}
		idx := strings.Index(userText, s.Quote)
		if idx < 0 {
			continue
		}
		s.Offset = idx
		out = append(out, s)
	}
	return out
}

func (p *Pool) degraded(ctx context.Context, name string, err error) schema.SensorResult {
	p.metrics.RecordSensorFailure(ctx, name)
	p.logger.WarnContext(ctx, "sensor degraded", "sensor", name, "err", err)
	return schema.SensorResult{Sensor: name, Degraded: true}
}

// mergeReadings combines two readings for the same sensor name at max(p),
// keeping the union of evidence.
func mergeReadings(a, b schema.SensorResult) schema.SensorResult {
	if a.Sensor == "" && len(a.Evidence) == 0 && a.P == 0 && !a.Degraded {
		return b
	}
	merged := a
	if b.P > merged.P {
		merged.P = b.P
		merged.Notes = b.Notes
	}
	merged.Evidence = append(merged.Evidence, b.Evidence...)
	merged.CounterEvidence = append(merged.CounterEvidence, b.CounterEvidence...)
	merged.Degraded = a.Degraded && b.Degraded
	if merged.Sensor == "" {
		merged.Sensor = b.Sensor
	}
	return merged
}

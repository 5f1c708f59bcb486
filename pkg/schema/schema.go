// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the JSON shapes exchanged with the inference
// capability and validates them strictly at the boundary. Out-of-range
// numeric fields are clamped, never rejected; each clamp is surfaced as a
// ClampEvent so the orchestrator can record it. Structural violations
// (not JSON, wrong types, unknown claim kinds) are MALFORMED_OUTPUT and
// trigger the invoker's single corrective retry.
package schema

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/mindsoc/chorus/pkg/errors"
)

// ClaimType categorizes a single agent claim.
type ClaimType string

const (
	ClaimObservation    ClaimType = "observation"
	ClaimRecommendation ClaimType = "recommendation"
	ClaimConcern        ClaimType = "concern"
)

// Claim is one assertion an agent makes about the current turn.
type Claim struct {
	Text string    `json:"text"`
	Type ClaimType `json:"type"`
}

// MemoryCandidate is a fact an agent proposes for long-term storage.
type MemoryCandidate struct {
	Text       string  `json:"text"`
	Importance float64 `json:"importance"`
}

// AgentResult is the structured output of one agent for one turn.
// Urgency and confidence are 0-3; a result with both at zero is the agent's
// explicit "quiet" contract.
type AgentResult struct {
	Agent            string             `json:"-"`
	Observation      string             `json:"observation"`
	Urgency          int                `json:"urgency"`
	Confidence       int                `json:"confidence"`
	Claims           []Claim            `json:"claims"`
	StanceDelta      map[string]float64 `json:"stance_delta"`
	MemoryCandidates []MemoryCandidate  `json:"memory_candidates"`
}

// Quiet reports whether the agent declined to weigh in this turn.
func (r AgentResult) Quiet() bool {
	return r.Urgency == 0 && r.Confidence == 0
}

// NullAgentResult is the degraded stand-in for a failed agent call.
func NullAgentResult(agent string) AgentResult {
	return AgentResult{Agent: agent, Claims: []Claim{}, StanceDelta: map[string]float64{}}
}

// Span is a quoted substring with its character offset in the source text.
type Span struct {
	Quote  string `json:"quote"`
	Offset int    `json:"offset"`
}

// SensorResult is the structured output of one sensor for one turn.
type SensorResult struct {
	Sensor          string  `json:"-"`
	P               float64 `json:"p"`
	Evidence        []Span  `json:"evidence"`
	CounterEvidence []Span  `json:"counterevidence"`
	Notes           string  `json:"notes"`

	// Degraded marks a sensor that failed to return a parseable result and
	// was folded in as p=0.
	Degraded bool `json:"-"`
}

// CriticVerdict is one critic's judgment of a drafted response.
type CriticVerdict struct {
	Critic   string  `json:"critic"`
	Passed   bool    `json:"passed"`
	Reason   string  `json:"reason"`
	Severity float64 `json:"severity"`
	Quote    string  `json:"quote"`
}

// ClampEvent records one numeric field forced back into its declared range.
type ClampEvent struct {
	Source  string
	Field   string
	Raw     float64
	Clamped float64
}

// Err renders the clamp as a SCHEMA_VIOLATION error for the observability
// path. Clamping is non-fatal, so the error is recoverable and is recorded,
// never returned.
func (c ClampEvent) Err() *errors.ChorusError {
	return errors.New(errors.CodeSchemaViolation, "field clamped into declared range", nil).
		WithContext("source", c.Source).
		WithContext("field", c.Field).
		WithContext("raw", c.Raw).
		WithContext("clamped", c.Clamped).
		WithRecoverable(true)
}

// maxReasonWords bounds critic reasons per the verdict contract.
const maxReasonWords = 20

// rawAgentResult decodes numerics as float so out-of-range and fractional
// values can be clamped rather than failing the unmarshal.
type rawAgentResult struct {
	Observation      string             `json:"observation"`
	Urgency          *float64           `json:"urgency"`
	Confidence       *float64           `json:"confidence"`
	Claims           []Claim            `json:"claims"`
	StanceDelta      map[string]float64 `json:"stance_delta"`
	MemoryCandidates []MemoryCandidate  `json:"memory_candidates"`
}

// ParseAgentResult validates one agent's raw model output.
func ParseAgentResult(agent, raw string) (AgentResult, []ClampEvent, error) {
	payload, err := ExtractJSON(raw)
	if err != nil {
		return AgentResult{}, nil, malformed(agent, err)
	}

	var decoded rawAgentResult
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return AgentResult{}, nil, malformed(agent, err)
	}
	if decoded.Urgency == nil || decoded.Confidence == nil {
		return AgentResult{}, nil, malformed(agent, nil).
			WithContext("missing", "urgency/confidence")
	}

	var clamps []ClampEvent
	source := "agent:" + agent

	result := AgentResult{
		Agent:       agent,
		Observation: decoded.Observation,
		Urgency:     int(clampRound(*decoded.Urgency, 0, 3, source, "urgency", &clamps)),
		Confidence:  int(clampRound(*decoded.Confidence, 0, 3, source, "confidence", &clamps)),
		StanceDelta: map[string]float64{},
	}

	for _, claim := range decoded.Claims {
		switch claim.Type {
		case ClaimObservation, ClaimRecommendation, ClaimConcern:
		default:
			return AgentResult{}, nil, malformed(agent, nil).
				WithContext("claim_type", string(claim.Type))
		}
		if strings.TrimSpace(claim.Text) == "" {
			continue
		}
		result.Claims = append(result.Claims, claim)
	}

	for dim, delta := range decoded.StanceDelta {
		result.StanceDelta[dim] = clamp(delta, -1, 1, source, "stance_delta."+dim, &clamps)
	}

	for _, cand := range decoded.MemoryCandidates {
		if strings.TrimSpace(cand.Text) == "" {
			continue
		}
		cand.Importance = clamp(cand.Importance, 0, 1, source, "memory_candidates.importance", &clamps)
		result.MemoryCandidates = append(result.MemoryCandidates, cand)
	}

	return result, clamps, nil
}

type rawSensorResult struct {
	P               *float64 `json:"p"`
	Evidence        []Span   `json:"evidence"`
	CounterEvidence []Span   `json:"counterevidence"`
	Notes           string   `json:"notes"`
}

// ParseSensorResult validates one sensor's raw model output.
func ParseSensorResult(sensor, raw string) (SensorResult, []ClampEvent, error) {
	payload, err := ExtractJSON(raw)
	if err != nil {
		return SensorResult{}, nil, malformed(sensor, err)
	}

	var decoded rawSensorResult
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return SensorResult{}, nil, malformed(sensor, err)
	}
	if decoded.P == nil {
		return SensorResult{}, nil, malformed(sensor, nil).WithContext("missing", "p")
	}

	var clamps []ClampEvent
	return SensorResult{
		Sensor:          sensor,
		P:               clamp(*decoded.P, 0, 1, "sensor:"+sensor, "p", &clamps),
		Evidence:        decoded.Evidence,
		CounterEvidence: decoded.CounterEvidence,
		Notes:           decoded.Notes,
	}, clamps, nil
}

type rawCriticVerdict struct {
	Critic   string   `json:"critic"`
	Passed   *bool    `json:"passed"`
	Reason   string   `json:"reason"`
	Severity *float64 `json:"severity"`
	Quote    string   `json:"quote"`
}

// ParseCriticVerdict validates one critic's raw model output.
func ParseCriticVerdict(critic, raw string) (CriticVerdict, []ClampEvent, error) {
	payload, err := ExtractJSON(raw)
	if err != nil {
		return CriticVerdict{}, nil, malformed(critic, err)
	}

	var decoded rawCriticVerdict
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return CriticVerdict{}, nil, malformed(critic, err)
	}
	if decoded.Passed == nil {
		return CriticVerdict{}, nil, malformed(critic, nil).WithContext("missing", "passed")
	}

	var clamps []ClampEvent
	severity := 0.0
	if decoded.Severity != nil {
		severity = clamp(*decoded.Severity, 0, 1, "critic:"+critic, "severity", &clamps)
	}

	return CriticVerdict{
		Critic:   critic,
		Passed:   *decoded.Passed,
		Reason:   truncateWords(decoded.Reason, maxReasonWords),
		Severity: severity,
		Quote:    decoded.Quote,
	}, clamps, nil
}

// ExtractJSON strips code fences and surrounding prose, returning the first
// top-level JSON object in the text. Models wrap structured output in
// markdown often enough that this is part of the boundary contract.
func ExtractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errors.New(errors.CodeMalformedOutput, "empty output", nil)
	}

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.Index(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", errors.New(errors.CodeMalformedOutput, "no JSON object in output", nil)
	}
	return s[start : end+1], nil
}

func malformed(source string, cause error) *errors.ChorusError {
	return errors.New(errors.CodeMalformedOutput, "output does not satisfy schema", cause).
		WithContext("source", source).
		WithRecoverable(true)
}

func clamp(v, lo, hi float64, source, field string, clamps *[]ClampEvent) float64 {
	if v >= lo && v <= hi {
		return v
	}
	clamped := math.Min(math.Max(v, lo), hi)
	*clamps = append(*clamps, ClampEvent{Source: source, Field: field, Raw: v, Clamped: clamped})
	return clamped
}

func clampRound(v, lo, hi float64, source, field string, clamps *[]ClampEvent) float64 {
	rounded := math.Round(v)
	if rounded < lo || rounded > hi {
		clamped := math.Min(math.Max(rounded, lo), hi)
		*clamps = append(*clamps, ClampEvent{Source: source, Field: field, Raw: v, Clamped: clamped})
		return clamped
	}
	return rounded
}

func truncateWords(s string, limit int) string {
	words := strings.Fields(s)
	if len(words) <= limit {
		return strings.TrimSpace(s)
	}
	return strings.Join(words[:limit], " ")
}

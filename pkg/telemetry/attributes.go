// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for chorus orchestration telemetry.
// These follow OpenTelemetry naming conventions where applicable.
const (
	// Session/turn attributes
	AttrSessionID = "chorus.session.id"
	AttrTurnID    = "chorus.turn.id"
	AttrTurnGoal  = "chorus.turn.goal"
	AttrDegraded  = "chorus.turn.degraded"

	// Agent attributes
	AttrAgentName     = "chorus.agent.name"
	AttrAgentCategory = "chorus.agent.category"
	AttrAgentQuiet    = "chorus.agent.quiet"

	// Sensor attributes
	AttrSensorName     = "chorus.sensor.name"
	AttrSensorP        = "chorus.sensor.p"
	AttrSensorDegraded = "chorus.sensor.degraded"

	// Critic attributes
	AttrCriticName     = "chorus.critic.name"
	AttrCriticPassed   = "chorus.critic.passed"
	AttrCriticSeverity = "chorus.critic.severity"
	AttrRevisionRound  = "chorus.critic.revision_round"

	// LLM attributes (standard gen_ai conventions)
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMTokensTotal  = "gen_ai.usage.total_tokens"
	AttrLLMDurationMs   = "gen_ai.duration_ms"
)

// TurnAttributes returns common attributes for turn spans.
func TurnAttributes(sessionID, turnID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSessionID, sessionID),
		attribute.String(AttrTurnID, turnID),
	}
}

// AgentAttributes returns attributes for a single agent invocation span.
func AgentAttributes(name, category string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAgentName, name),
	}
	if category != "" {
		attrs = append(attrs, attribute.String(AttrAgentCategory, category))
	}
	return attrs
}

// SensorAttributes returns attributes for a sensor invocation span.
func SensorAttributes(name string, p float64, degraded bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSensorName, name),
		attribute.Float64(AttrSensorP, p),
		attribute.Bool(AttrSensorDegraded, degraded),
	}
}

// CriticAttributes returns attributes for a critic verdict span.
func CriticAttributes(name string, passed bool, severity float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCriticName, name),
		attribute.Bool(AttrCriticPassed, passed),
		attribute.Float64(AttrCriticSeverity, severity),
	}
}

// UsageAttributes returns attributes describing token consumption.
func UsageAttributes(model string, promptTokens, completionTokens int, durationMs float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrLLMModel, model),
		attribute.Int(AttrLLMTokensInput, promptTokens),
		attribute.Int(AttrLLMTokensOutput, completionTokens),
		attribute.Int(AttrLLMTokensTotal, promptTokens+completionTokens),
		attribute.Float64(AttrLLMDurationMs, durationMs),
	}
}

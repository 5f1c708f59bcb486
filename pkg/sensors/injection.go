// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package sensors

import (
	"context"
	"regexp"
	"strings"

	"github.com/mindsoc/chorus/pkg/schema"
)

// InjectionSensorName is the report key shared by the regex heuristic and
// the model-backed injection sensor; the pool merges the two at max(p).
const InjectionSensorName = "prompt_injection"

// Known injection phrasings. A regex hit is cheap ground truth the LLM
// sensor cannot argue down.
var injectionPatterns = []string{
	// Instruction override
	`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`,
	`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`,
	`(?i)forget\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`,
	`(?i)override\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`,

	// Persona manipulation
	`(?i)you\s+are\s+now\s+(a|an)\s+`,
	`(?i)pretend\s+(you\s+are|to\s+be)\s+`,
	`(?i)roleplay\s+as\s+`,

	// System prompt extraction
	`(?i)(what\s+(is|are)|show\s+me|reveal|print|display)\s+your\s+(system\s+)?(prompt|instructions?)`,

	// Jailbreak markers
	`(?i)do\s+anything\s+now`,
	`(?i)jailbreak`,
	`(?i)bypass\s+(safety|content|filter)`,
	`(?i)(developer|debug|sudo|admin|maintenance)\s+mode`,

	// Delimiter smuggling
	`(?i)\]\]\s*system\s*:`,
	`(?i)<\|.*\|>`,
	`(?i)\[INST\]`,
	`(?i)<<SYS>>`,
}

// InjectionHeuristic is a local regex detector for prompt injection. It runs
// without an LLM call, so it still fires on degraded turns.
type InjectionHeuristic struct {
	patterns []*regexp.Regexp
}

// NewInjectionHeuristic compiles the built-in pattern set plus any extras.
func NewInjectionHeuristic(extra ...string) *InjectionHeuristic {
	h := &InjectionHeuristic{}
	for _, pattern := range append(append([]string{}, injectionPatterns...), extra...) {
		if re, err := regexp.Compile(pattern); err == nil {
			h.patterns = append(h.patterns, re)
		}
	}
	return h
}

func (h *InjectionHeuristic) Name() string { return InjectionSensorName }

// Read scores the turn: 0.7 for a single pattern hit, +0.1 per additional
// hit, capped at 1.0. Each hit contributes its matched text as evidence.
func (h *InjectionHeuristic) Read(ctx context.Context, userText string) schema.SensorResult {
	result := schema.SensorResult{Sensor: InjectionSensorName}
	if strings.TrimSpace(userText) == "" {
		return result
	}

	matches := 0
	for _, pattern := range h.patterns {
		select {
		case <-ctx.Done():
			return result
		default:
		}
		loc := pattern.FindStringIndex(userText)
		if loc == nil {
			continue
		}
		matches++
		result.Evidence = append(result.Evidence, schema.Span{
			Quote:  userText[loc[0]:loc[1]],
			Offset: loc[0],
		})
	}
	if matches > 0 {
		p := 0.7 + float64(matches-1)*0.1
		if p > 1.0 {
			p = 1.0
		}
		result.P = p
		result.Notes = "matched known injection phrasing"
	}
	return result
}

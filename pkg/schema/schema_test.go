// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"strings"
	"testing"

	"github.com/mindsoc/chorus/pkg/errors"
)

func TestParseAgentResult(t *testing.T) {
	raw := `{
		"observation": "user sounds stretched thin",
		"urgency": 2,
		"confidence": 3,
		"claims": [
			{"text": "deadline pressure is the main stressor", "type": "observation"},
			{"text": "do not offer fixes yet", "type": "recommendation"}
		],
		"stance_delta": {"strain": 0.4, "valence": -0.2},
		"memory_candidates": [{"text": "project ships friday", "importance": 0.6}]
	}`

	result, clamps, err := ParseAgentResult("witness", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clamps) != 0 {
		t.Errorf("unexpected clamps: %v", clamps)
	}
	if result.Agent != "witness" || result.Urgency != 2 || result.Confidence != 3 {
		t.Errorf("result = %+v", result)
	}
	if len(result.Claims) != 2 || result.Claims[1].Type != ClaimRecommendation {
		t.Errorf("claims = %+v", result.Claims)
	}
	if result.StanceDelta["strain"] != 0.4 {
		t.Errorf("stance delta = %v", result.StanceDelta)
	}
	if result.Quiet() {
		t.Error("non-zero urgency should not be quiet")
	}
}

func TestParseAgentResultClampsOutOfRange(t *testing.T) {
	raw := `{
		"urgency": 7,
		"confidence": -2,
		"claims": [],
		"stance_delta": {"arousal": 3.5},
		"memory_candidates": [{"text": "x", "importance": 1.4}]
	}`

	result, clamps, err := ParseAgentResult("spark", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Urgency != 3 {
		t.Errorf("urgency = %d, want clamped 3", result.Urgency)
	}
	if result.Confidence != 0 {
		t.Errorf("confidence = %d, want clamped 0", result.Confidence)
	}
	if result.StanceDelta["arousal"] != 1 {
		t.Errorf("arousal = %v, want clamped 1", result.StanceDelta["arousal"])
	}
	if result.MemoryCandidates[0].Importance != 1 {
		t.Errorf("importance = %v, want clamped 1", result.MemoryCandidates[0].Importance)
	}
	if len(clamps) != 4 {
		t.Errorf("clamp events = %d, want 4: %v", len(clamps), clamps)
	}
	for _, c := range clamps {
		if c.Source != "agent:spark" {
			t.Errorf("clamp source = %q", c.Source)
		}
	}
}

func TestClampEventErr(t *testing.T) {
	c := ClampEvent{Source: "agent:spark", Field: "urgency", Raw: 7, Clamped: 3}
	err := c.Err()
	if !errors.IsCode(err, errors.CodeSchemaViolation) {
		t.Errorf("code = %s, want %s", err.Code, errors.CodeSchemaViolation)
	}
	if !err.Recoverable {
		t.Error("clamp errors are informational and must be recoverable")
	}
	if err.Context["field"] != "urgency" || err.Context["source"] != "agent:spark" {
		t.Errorf("context = %v", err.Context)
	}
}

func TestParseAgentResultRejectsStructuralViolations(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", "I cannot comply with that."},
		{"empty", "   "},
		{"missing urgency", `{"confidence": 1, "claims": []}`},
		{"unknown claim type", `{"urgency": 1, "confidence": 1, "claims": [{"text": "x", "type": "prophecy"}]}`},
		{"wrong types", `{"urgency": "high", "confidence": 1}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ParseAgentResult("observer", tc.raw)
			if !errors.IsCode(err, errors.CodeMalformedOutput) {
				t.Errorf("err = %v, want MALFORMED_OUTPUT", err)
			}
		})
	}
}

func TestParseAgentResultQuiet(t *testing.T) {
	result, _, err := ParseAgentResult("sage", `{"urgency": 0, "confidence": 0, "claims": [], "stance_delta": {}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Quiet() {
		t.Error("zero urgency and confidence should be quiet")
	}
}

func TestParseAgentResultFencedOutput(t *testing.T) {
	raw := "Here is my assessment:\n```json\n{\"urgency\": 1, \"confidence\": 2, \"claims\": []}\n```"
	result, _, err := ParseAgentResult("coach", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Urgency != 1 || result.Confidence != 2 {
		t.Errorf("result = %+v", result)
	}
}

func TestParseSensorResult(t *testing.T) {
	raw := `{
		"p": 0.72,
		"evidence": [{"quote": "i want to disappear", "offset": 14}],
		"counterevidence": [],
		"notes": "figurative reading possible"
	}`

	result, clamps, err := ParseSensorResult("safety_risk", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.P != 0.72 || result.Sensor != "safety_risk" {
		t.Errorf("result = %+v", result)
	}
	if len(result.Evidence) != 1 || result.Evidence[0].Offset != 14 {
		t.Errorf("evidence = %+v", result.Evidence)
	}
	if len(clamps) != 0 || result.Degraded {
		t.Errorf("clamps=%v degraded=%v", clamps, result.Degraded)
	}
}

func TestParseSensorResultClampsP(t *testing.T) {
	result, clamps, err := ParseSensorResult("ambiguity", `{"p": 1.8}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.P != 1 {
		t.Errorf("p = %v, want 1", result.P)
	}
	if len(clamps) != 1 || clamps[0].Field != "p" {
		t.Errorf("clamps = %v", clamps)
	}

	if _, _, err := ParseSensorResult("ambiguity", `{"notes": "no p"}`); !errors.IsCode(err, errors.CodeMalformedOutput) {
		t.Errorf("missing p should be malformed, got %v", err)
	}
}

func TestParseCriticVerdict(t *testing.T) {
	raw := `{"critic": "cliche", "passed": false, "reason": "opens with a canned empathy phrase", "severity": 0.6, "quote": "I hear you, that sounds hard"}`

	verdict, clamps, err := ParseCriticVerdict("cliche", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Passed || verdict.Severity != 0.6 || verdict.Quote == "" {
		t.Errorf("verdict = %+v", verdict)
	}
	if len(clamps) != 0 {
		t.Errorf("clamps = %v", clamps)
	}
}

func TestParseCriticVerdictTruncatesReason(t *testing.T) {
	long := `{"passed": false, "reason": "one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen sixteen seventeen eighteen nineteen twenty twentyone twentytwo", "severity": 2.0}`
	verdict, clamps, err := ParseCriticVerdict("coherence", long)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(strings.Fields(verdict.Reason)); got != 20 {
		t.Errorf("reason words = %d, want 20", got)
	}
	if verdict.Severity != 1 {
		t.Errorf("severity = %v, want clamped 1", verdict.Severity)
	}
	if len(clamps) != 1 {
		t.Errorf("clamps = %v", clamps)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"bare object", `{"p": 0.1}`, `{"p": 0.1}`, false},
		{"prose wrapped", `Sure! {"p": 0.1} Hope that helps.`, `{"p": 0.1}`, false},
		{"fenced", "```json\n{\"p\": 0.1}\n```", `{"p": 0.1}`, false},
		{"no object", "I refuse.", "", true},
		{"empty", "", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Errorf("expected error, got %q", got)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Errorf("got %q, %v; want %q", got, err, tc.want)
			}
		})
	}
}

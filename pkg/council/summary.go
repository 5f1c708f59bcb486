// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package council

import (
	"sort"
	"strings"

	"github.com/mindsoc/chorus/pkg/schema"
)

// RankedClaim is one agent claim scored for the workspace.
type RankedClaim struct {
	Agent      string
	Claim      schema.Claim
	Urgency    int
	Confidence int
	Score      float64

	order      int
	claimIndex int
}

// AgentMemoryCandidate pairs a proposed memory with the agent that raised it.
type AgentMemoryCandidate struct {
	schema.MemoryCandidate
	Agent string
}

// TurnSummary is the merged view of one turn's agent and sensor activity
// that the workspace selects a goal from.
type TurnSummary struct {
	// Claims is ranked by urgency*confidence descending. Ties break by the
	// agent's registry declaration order, then claim position, so the
	// ranking is deterministic across runs. Registry weights do not enter
	// the score; they arbitrate later, in the selector's conflict discount.
	Claims []RankedClaim

	// StanceDelta is the damped merge of all contributing agent deltas,
	// ready to be applied to the stance tracker exactly once.
	StanceDelta map[string]float64

	MemoryCandidates []AgentMemoryCandidate

	// Sensors holds this turn's sensor readings keyed by sensor name.
	Sensors map[string]schema.SensorResult

	Responded int
	Total     int
	Failures  []InvokeFailure

	// Degraded is set when fewer than the quorum fraction of agents
	// responded within the turn budget.
	Degraded bool
}

// TopAgents returns the names of the agents behind the n highest-ranked
// claims, deduplicated, in rank order.
func (s *TurnSummary) TopAgents(n int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, rc := range s.Claims {
		if seen[rc.Agent] {
			continue
		}
		seen[rc.Agent] = true
		out = append(out, rc.Agent)
		if len(out) == n {
			break
		}
	}
	return out
}

// contribution is one responding agent's result, carried in declaration
// order.
type contribution struct {
	result schema.AgentResult
	order  int
}

// merge folds per-agent results into a summary. gamma damps the summed
// stance deltas so no single turn can whipsaw the stance vector.
func merge(contribs []contribution, failures []InvokeFailure, gamma, quorum float64, total int, verify bool, userText string) *TurnSummary {
	s := &TurnSummary{
		StanceDelta: make(map[string]float64),
		Responded:   len(contribs),
		Total:       total,
		Failures:    failures,
	}

	for _, contrib := range contribs {
		r := contrib.result
		// Every responder's delta and memory proposals fold in, even when
		// the agent had nothing to say. Quiet is a ranking concept only.
		for dim, d := range r.StanceDelta {
			s.StanceDelta[dim] += gamma * d
		}
		for _, mc := range r.MemoryCandidates {
			s.MemoryCandidates = append(s.MemoryCandidates, AgentMemoryCandidate{MemoryCandidate: mc, Agent: r.Agent})
		}
		if r.Quiet() {
			continue
		}
		score := float64(r.Urgency * r.Confidence)
		for i, c := range r.Claims {
			if verify && !quotesVerified(c.Text, userText) {
				continue
			}
			s.Claims = append(s.Claims, RankedClaim{
				Agent:      r.Agent,
				Claim:      c,
				Urgency:    r.Urgency,
				Confidence: r.Confidence,
				Score:      score,
				order:      contrib.order,
				claimIndex: i,
			})
		}
	}

	sort.Slice(s.Claims, func(i, j int) bool {
		a, b := s.Claims[i], s.Claims[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.order != b.order {
			return a.order < b.order
		}
		return a.claimIndex < b.claimIndex
	})

	if total > 0 && float64(s.Responded)/float64(total) < quorum {
		s.Degraded = true
	}
	return s
}

// quotesVerified checks that every double-quoted segment in a claim is
// actually present in the raw user turn. Claims without quotes pass; a claim
// quoting fabricated material does not.
func quotesVerified(claim, userText string) bool {
	rest := claim
	for {
		start := strings.IndexByte(rest, '"')
		if start < 0 {
			return true
		}
		rest = rest[start+1:]
		end := strings.IndexByte(rest, '"')
		if end < 0 {
			return true
		}
		quoted := rest[:end]
		if quoted != "" && !strings.Contains(userText, quoted) {
			return false
		}
		rest = rest[end+1:]
	}
}

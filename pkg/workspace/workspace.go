// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package workspace derives the turn's response goal and constraints from
// the merged council summary, the sensor report, and the current stance.
// Selection is a fixed-order priority cascade: given the same summary,
// stance, and thresholds it always produces the same workspace, which is
// what makes turn behavior reproducible under test.
package workspace

import (
	"sort"

	"github.com/mindsoc/chorus/pkg/config"
	"github.com/mindsoc/chorus/pkg/council"
	"github.com/mindsoc/chorus/pkg/registry"
	"github.com/mindsoc/chorus/pkg/stance"
)

// Goal is the selected high-level response strategy for one turn.
type Goal string

const (
	// GoalWitness reflects and validates without steering. It is both the
	// default and the conservative fallback for degraded turns.
	GoalWitness Goal = "WITNESS"
	// GoalInvite asks one clarifying question.
	GoalInvite Goal = "INVITE"
	// GoalOptions offers choices because advice was explicitly requested.
	GoalOptions Goal = "OPTIONS"
	// GoalBoundary holds a safety boundary and routes to escalation.
	GoalBoundary Goal = "BOUNDARY"
	// GoalMeta addresses the conversation itself to repair a rupture.
	GoalMeta Goal = "META"
)

// Constraint is a named restriction the drafter must honor and the critic
// gate re-checks.
type Constraint string

const (
	ConstraintNoPrematureAdvice Constraint = "no_premature_advice"
	ConstraintEscalate          Constraint = "escalate"
	ConstraintNameTheRupture    Constraint = "name_the_rupture"
	ConstraintAskOneQuestion    Constraint = "ask_one_question"
	ConstraintOptionsNotOrders  Constraint = "options_not_directives"
)

// Workspace is the turn-scoped derived state handed to the drafter.
type Workspace struct {
	Goal        Goal
	Constraints []Constraint

	// Stance is the snapshot the goal was derived from.
	Stance stance.Vector

	// TopClaims is the summary's ranking after the conflict-graph
	// discount, for the drafter's context.
	TopClaims []council.RankedClaim

	// Vulnerability is the stance-derived signal used at cascade step 4,
	// kept for observability.
	Vulnerability float64

	Degraded bool
}

// Has reports whether the workspace carries the named constraint.
func (w Workspace) Has(c Constraint) bool {
	for _, got := range w.Constraints {
		if got == c {
			return true
		}
	}
	return false
}

// Selector turns a summary plus stance snapshot into a workspace.
type Selector struct {
	thresholds config.ThresholdsConfig
	reg        *registry.Registry
}

// NewSelector builds a selector. The registry supplies agent weights and the
// declared conflict graph for claim discounting.
func NewSelector(thresholds config.ThresholdsConfig, reg *registry.Registry) *Selector {
	return &Selector{thresholds: thresholds, reg: reg}
}

// Select runs the priority cascade, first match wins:
//
//  1. safety_risk over threshold       -> BOUNDARY (overrides everything)
//  2. degraded council                  -> WITNESS (conservative fallback)
//  3. rupture over threshold            -> META
//  4. ambiguity over threshold          -> INVITE
//  5. vulnerable and no advice request  -> WITNESS + no_premature_advice
//  6. advice requested                  -> OPTIONS
//  7. default                           -> WITNESS
func (s *Selector) Select(summary *council.TurnSummary, snapshot stance.Vector) Workspace {
	w := Workspace{
		Stance:    snapshot,
		TopClaims: s.discountConflicts(summary.Claims),
		Degraded:  summary.Degraded,
	}
	w.Vulnerability = Vulnerability(snapshot)
	adviceRequested := summary.Sensors["advice_requested"].P >= s.thresholds.AdviceRequested

	switch {
	case summary.Sensors["safety_risk"].P >= s.thresholds.SafetyRisk:
		w.Goal = GoalBoundary
		w.Constraints = append(w.Constraints, ConstraintEscalate, ConstraintNoPrematureAdvice)
	case summary.Degraded:
		w.Goal = GoalWitness
		w.Constraints = append(w.Constraints, ConstraintNoPrematureAdvice)
	case summary.Sensors["rupture"].P >= s.thresholds.Rupture:
		w.Goal = GoalMeta
		w.Constraints = append(w.Constraints, ConstraintNameTheRupture)
	case summary.Sensors["ambiguity"].P >= s.thresholds.Ambiguity:
		w.Goal = GoalInvite
		w.Constraints = append(w.Constraints, ConstraintAskOneQuestion)
	case w.Vulnerability > s.thresholds.Vulnerability && !adviceRequested:
		w.Goal = GoalWitness
		w.Constraints = append(w.Constraints, ConstraintNoPrematureAdvice)
	case adviceRequested:
		w.Goal = GoalOptions
		w.Constraints = append(w.Constraints, ConstraintOptionsNotOrders)
	default:
		w.Goal = GoalWitness
	}
	return w
}

// Vulnerability derives a [0,1] signal from the stance snapshot: strain and
// negative valence each contribute half.
func Vulnerability(v stance.Vector) float64 {
	strain := v[stance.Strain]
	if strain < 0 {
		strain = 0
	}
	negValence := -v[stance.Valence]
	if negValence < 0 {
		negValence = 0
	}
	score := 0.5*strain + 0.5*negValence
	if score > 1 {
		score = 1
	}
	return score
}

// discountConflicts halves the effective score of any claim whose agent is
// opposed or challenged by a strictly higher-weighted agent that also fired
// this turn, then re-ranks. The conflict graph is static registry
// configuration; agents never reference each other at runtime.
func (s *Selector) discountConflicts(claims []council.RankedClaim) []council.RankedClaim {
	if len(claims) == 0 {
		return nil
	}

	fired := make(map[string]float64)
	for _, c := range claims {
		if _, ok := fired[c.Agent]; !ok {
			fired[c.Agent] = s.reg.Weight(c.Agent)
		}
	}

	out := make([]council.RankedClaim, len(claims))
	copy(out, claims)
	for i, c := range out {
		myWeight := fired[c.Agent]
		for other, otherWeight := range fired {
			if other == c.Agent || otherWeight <= myWeight {
				continue
			}
			if s.reg.Opposes(c.Agent, other) {
				out[i].Score *= 0.5
				break
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

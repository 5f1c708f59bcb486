// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package council

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mindsoc/chorus/pkg/registry"
	"github.com/mindsoc/chorus/pkg/schema"
)

// Aggregator fans the turn out to every registered agent in parallel and
// merges whatever came back. It never fails a turn: a thin or empty council
// is reported through TurnSummary.Degraded instead of an error.
type Aggregator struct {
	invoker       *Invoker
	reg           *registry.Registry
	gamma         float64
	quorum        float64
	maxConcurrent int
	logger        *slog.Logger
}

// NewAggregator wires an aggregator over a registry. gamma damps stance
// deltas, quorum is the minimum responding fraction below which the turn is
// marked degraded, and maxConcurrent bounds in-flight agent calls.
func NewAggregator(inv *Invoker, reg *registry.Registry, gamma, quorum float64, maxConcurrent int) *Aggregator {
	if maxConcurrent <= 0 {
		maxConcurrent = len(reg.Agents)
	}
	return &Aggregator{
		invoker:       inv,
		reg:           reg,
		gamma:         gamma,
		quorum:        quorum,
		maxConcurrent: maxConcurrent,
		logger:        slog.Default(),
	}
}

// Collect runs every agent against the turn and returns the merged summary.
// sensors is this turn's sensor report, included verbatim in the summary.
// The ctx deadline is the turn budget: agents still in flight when it fires
// simply do not contribute.
func (a *Aggregator) Collect(ctx context.Context, tc TurnContext, sensors map[string]schema.SensorResult) *TurnSummary {
	total := len(a.reg.Agents)

	var mu sync.Mutex
	contribs := make([]contribution, 0, total)
	var failures []InvokeFailure

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.maxConcurrent)
	for _, spec := range a.reg.Agents {
		spec := spec
		g.Go(func() error {
			result, failure := a.invoker.Invoke(gctx, spec, tc)
			mu.Lock()
			defer mu.Unlock()
			if failure != nil {
				failures = append(failures, *failure)
				if failure.Kind != FailureMalformed {
					// Timeouts and refusals contributed nothing; a
					// malformed result still counts as responding,
					// degraded to null.
					return nil
				}
			}
			contribs = append(contribs, contribution{
				result: result,
				order:  spec.Order(),
			})
			return nil
		})
	}
	g.Wait() // workers never return errors; failures are data

	summary := merge(contribs, failures, a.gamma, a.quorum, total, tc.VerifyEvidence, tc.UserText)
	summary.Sensors = sensors

	a.logger.InfoContext(ctx, "council merged",
		"responded", summary.Responded,
		"total", summary.Total,
		"claims", len(summary.Claims),
		"failures", len(summary.Failures),
		"degraded", summary.Degraded)
	return summary
}

// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mindsoc/chorus/pkg/errors"
)

// TurnMetrics tracks orchestration health for production monitoring: clamping
// at the schema boundary, degraded turns, sensor failures, and the critic
// revision loop.
type TurnMetrics struct {
	// turnDuration records end-to-end turn latency in milliseconds.
	turnDuration metric.Float64Histogram

	// clampCounter counts out-of-range numeric fields clamped at the boundary.
	clampCounter metric.Int64Counter

	// degradedCounter counts turns flagged degraded (quorum miss or budget cut).
	degradedCounter metric.Int64Counter

	// sensorFailureCounter counts sensors that returned no parseable result.
	sensorFailureCounter metric.Int64Counter

	// criticRejectionCounter counts failing critic verdicts per critic name.
	criticRejectionCounter metric.Int64Counter

	// revisionCounter counts revision rounds, including the fallback round.
	revisionCounter metric.Int64Counter

	// errorCounter tracks absorbed per-call failures by code and component.
	errorCounter metric.Int64Counter
}

// NewTurnMetrics creates the orchestration metrics set on the global meter.
func NewTurnMetrics(ctx context.Context) (*TurnMetrics, error) {
	meter := otel.Meter("chorus/turn")

	turnDuration, err := meter.Float64Histogram(
		"chorus.turn.duration_ms",
		metric.WithDescription("End-to-end turn processing latency"),
	)
	if err != nil {
		return nil, err
	}

	clampCounter, err := meter.Int64Counter(
		"chorus.schema.clamped",
		metric.WithDescription("Numeric fields clamped at the schema boundary"),
	)
	if err != nil {
		return nil, err
	}

	degradedCounter, err := meter.Int64Counter(
		"chorus.turn.degraded",
		metric.WithDescription("Turns flagged degraded"),
	)
	if err != nil {
		return nil, err
	}

	sensorFailureCounter, err := meter.Int64Counter(
		"chorus.sensor.failures",
		metric.WithDescription("Sensors that failed to return a parseable result"),
	)
	if err != nil {
		return nil, err
	}

	criticRejectionCounter, err := meter.Int64Counter(
		"chorus.critic.rejections",
		metric.WithDescription("Failing critic verdicts by critic name"),
	)
	if err != nil {
		return nil, err
	}

	revisionCounter, err := meter.Int64Counter(
		"chorus.critic.revisions",
		metric.WithDescription("Revision rounds requested from the drafter"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"chorus.errors.total",
		metric.WithDescription("Absorbed per-call failures by code and component"),
	)
	if err != nil {
		return nil, err
	}

	return &TurnMetrics{
		turnDuration:           turnDuration,
		clampCounter:           clampCounter,
		degradedCounter:        degradedCounter,
		sensorFailureCounter:   sensorFailureCounter,
		criticRejectionCounter: criticRejectionCounter,
		revisionCounter:        revisionCounter,
		errorCounter:           errorCounter,
	}, nil
}

// RecordTurnDuration records end-to-end turn latency.
func (tm *TurnMetrics) RecordTurnDuration(ctx context.Context, ms float64, degraded bool) {
	if tm == nil {
		return
	}
	tm.turnDuration.Record(ctx, ms,
		metric.WithAttributes(attribute.Bool("degraded", degraded)))
}

// RecordClamp counts one clamped field for the given source and field name.
func (tm *TurnMetrics) RecordClamp(ctx context.Context, source, field string) {
	if tm == nil {
		return
	}
	tm.clampCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("field", field),
		))
}

// RecordDegradedTurn counts a degraded turn with its cause.
func (tm *TurnMetrics) RecordDegradedTurn(ctx context.Context, cause string) {
	if tm == nil {
		return
	}
	tm.degradedCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("cause", cause)))
}

// RecordSensorFailure counts a sensor that degraded to p=0.
func (tm *TurnMetrics) RecordSensorFailure(ctx context.Context, sensor string) {
	if tm == nil {
		return
	}
	tm.sensorFailureCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("sensor", sensor)))
}

// RecordCriticRejection counts a failing verdict for the named critic.
func (tm *TurnMetrics) RecordCriticRejection(ctx context.Context, critic string, severity float64) {
	if tm == nil {
		return
	}
	tm.criticRejectionCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("critic", critic),
			attribute.Float64("severity", severity),
		))
}

// RecordRevision counts one revision round; fallback marks the template path.
func (tm *TurnMetrics) RecordRevision(ctx context.Context, round int, fallback bool) {
	if tm == nil {
		return
	}
	tm.revisionCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.Int("round", round),
			attribute.Bool("fallback", fallback),
		))
}

// RecordError tracks an absorbed per-call failure.
func (tm *TurnMetrics) RecordError(ctx context.Context, err error, component string) {
	if tm == nil || err == nil {
		return
	}
	if ce, ok := err.(*errors.ChorusError); ok {
		tm.errorCounter.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("error.code", string(ce.Code)),
				attribute.String("component", component),
				attribute.String("recoverable", ce.RecoverableString()),
			))
		return
	}
	tm.errorCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("error.code", "UNKNOWN"),
			attribute.String("component", component),
		))
}

// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mindsoc/chorus/pkg/core"
	"github.com/mindsoc/chorus/pkg/errors"
)

func TestInit(t *testing.T) {
	shutdown, err := Init("chorus-test", "v0.0.1")
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if shutdown == nil {
		t.Fatal("Shutdown function should not be nil")
	}

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestInitWithConfigRejectsUnknownExporter(t *testing.T) {
	if _, err := InitWithConfig("chorus-test", "v0.0.1", Config{Exporter: "bogus"}); err == nil {
		t.Error("expected error for unknown exporter")
	}
	if _, err := InitWithConfig("chorus-test", "v0.0.1", Config{Exporter: "otlp"}); err == nil {
		t.Error("expected error for otlp without endpoint")
	}
}

func TestConfigureSlogFormats(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "debug", "json")
	logger.Debug("turn started", "turn_id", "t-1")

	if !strings.Contains(buf.String(), `"turn_id":"t-1"`) {
		t.Errorf("json log output missing attribute: %s", buf.String())
	}

	buf.Reset()
	logger = ConfigureSlog(&buf, "info", "text")
	logger.Debug("should be filtered")
	if buf.Len() != 0 {
		t.Errorf("debug record should be filtered at info level: %s", buf.String())
	}
}

func TestConfigureSlogInjectsCorrelationIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "info", "json")

	ctx := core.WithSessionID(context.Background(), "s-9")
	ctx = core.WithTurnID(ctx, "t-9")
	logger.InfoContext(ctx, "sensors completed")

	out := buf.String()
	if !strings.Contains(out, `"session_id":"s-9"`) || !strings.Contains(out, `"turn_id":"t-9"`) {
		t.Errorf("log record missing correlation ids: %s", out)
	}

	// An explicit attribute on the record is not overwritten.
	buf.Reset()
	logger.InfoContext(ctx, "override", "turn_id", "explicit")
	if !strings.Contains(buf.String(), `"turn_id":"explicit"`) {
		t.Errorf("explicit turn_id lost: %s", buf.String())
	}
	if strings.Count(buf.String(), `"turn_id"`) != 1 {
		t.Errorf("turn_id duplicated: %s", buf.String())
	}
}

func TestTurnMetricsRecording(t *testing.T) {
	tm, err := NewTurnMetrics(context.Background())
	if err != nil {
		t.Fatalf("NewTurnMetrics failed: %v", err)
	}

	ctx := context.Background()
	// Recording must not panic, including on nil receivers and plain errors.
	tm.RecordTurnDuration(ctx, 123.4, false)
	tm.RecordClamp(ctx, "agent:inner-critic", "urgency")
	tm.RecordDegradedTurn(ctx, "quorum")
	tm.RecordSensorFailure(ctx, "safety_risk")
	tm.RecordCriticRejection(ctx, "cliche", 0.7)
	tm.RecordRevision(ctx, 1, false)
	tm.RecordError(ctx, errors.New(errors.CodeCallTimeout, "slow", nil), "council")
	tm.RecordError(ctx, fmt.Errorf("plain"), "council")

	var nilMetrics *TurnMetrics
	nilMetrics.RecordClamp(ctx, "x", "y")
	nilMetrics.RecordError(ctx, nil, "x")
}

func TestAttributeHelpers(t *testing.T) {
	attrs := SensorAttributes("safety_risk", 0.6, false)
	found := false
	for _, kv := range attrs {
		if kv.Key == attribute.Key(AttrSensorP) && kv.Value.AsFloat64() == 0.6 {
			found = true
		}
	}
	if !found {
		t.Error("sensor p attribute missing")
	}

	usage := UsageAttributes("qwen", 100, 50, 12.5)
	for _, kv := range usage {
		if kv.Key == attribute.Key(AttrLLMTokensTotal) && kv.Value.AsInt64() != 150 {
			t.Errorf("total tokens = %d", kv.Value.AsInt64())
		}
	}
}

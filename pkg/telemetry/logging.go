// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/mindsoc/chorus/pkg/core"
)

// ConfigureSlog installs the global slog logger. Records are enriched with the
// active trace/span ids and the session/turn ids carried on the context, so a
// single grep over the logs reconstructs one turn end to end.
func ConfigureSlog(output io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	var base slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		base = slog.NewJSONHandler(output, opts)
	default:
		base = slog.NewTextHandler(output, opts)
	}
	logger := slog.New(&correlationHandler{next: base})
	slog.SetDefault(logger)
	return logger
}

// correlationHandler injects the turn's correlation ids into every record.
// Explicit attributes on the record win over context-derived ones.
type correlationHandler struct {
	next slog.Handler
}

func (h *correlationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *correlationHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, attr := range correlationAttrs(ctx) {
		if !recordHasAttr(record, attr.Key) {
			record.AddAttrs(attr)
		}
	}
	return h.next.Handle(ctx, record)
}

func (h *correlationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &correlationHandler{next: h.next.WithAttrs(attrs)}
}

func (h *correlationHandler) WithGroup(name string) slog.Handler {
	return &correlationHandler{next: h.next.WithGroup(name)}
}

// correlationAttrs collects everything on the context worth stamping on a log
// line: otel span identity plus the orchestrator's own session/turn scoping.
func correlationAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var attrs []slog.Attr
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if id, ok := core.SessionID(ctx); ok {
		attrs = append(attrs, slog.String("session_id", id))
	}
	if id, ok := core.TurnID(ctx); ok {
		attrs = append(attrs, slog.String("turn_id", id))
	}
	return attrs
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func recordHasAttr(record slog.Record, key string) bool {
	found := false
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == key {
			found = true
			return false
		}
		return true
	})
	return found
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for AST parsing.
var (
	tracer = otel.Tracer("astvalidation.ast")
	meter  = otel.Meter("astvalidation.ast")
)

// Metrics for AST parsing operations.
var (
	parseLatency metric.Float64Histogram
	parseTotal   metric.Int64Counter
	parseErrors  metric.Int64Counter
	syntaxErrors metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		parseLatency, err = meter.Float64Histogram(
			"astvalidation_parse_duration_seconds",
			metric.WithDescription("Duration of AST parsing operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseTotal, err = meter.Int64Counter(
			"astvalidation_parse_total",
			metric.WithDescription("Total number of parse operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseErrors, err = meter.Int64Counter(
			"astvalidation_parse_errors_total",
			metric.WithDescription("Total number of failed parse operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		syntaxErrors, err = meter.Int64Counter(
			"astvalidation_parse_syntax_errors_total",
			metric.WithDescription("Parses that succeeded with recovered syntax errors"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordParseMetrics records metrics for a parse operation.
//
// Parameters:
//   - ctx: Context for metric recording
//   - language: Language being parsed
//   - duration: How long the parse took
//   - hasSyntaxErrors: Whether the recovered tree contains ERROR/MISSING nodes
//   - success: Whether the parse produced a tree
func recordParseMetrics(ctx context.Context, language string, duration time.Duration, hasSyntaxErrors bool, success bool) {
	if err := initMetrics(); err != nil {
		return // Silently skip if metrics init failed
	}

	attrs := metric.WithAttributes(
		attribute.String("language", language),
		attribute.Bool("success", success),
	)

	parseLatency.Record(ctx, duration.Seconds(), attrs)
	parseTotal.Add(ctx, 1, attrs)

	lang := metric.WithAttributes(attribute.String("language", language))
	if !success {
		parseErrors.Add(ctx, 1, lang)
		return
	}
	if hasSyntaxErrors {
		syntaxErrors.Add(ctx, 1, lang)
	}
}

// startParseSpan creates a span for a parse operation.
//
// Returns:
//   - ctx: Context with span
//   - span: The created span (caller must call span.End())
func startParseSpan(ctx context.Context, language, filePath string, contentSize int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "JavaParser.Parse",
		trace.WithAttributes(
			attribute.String("ast.language", language),
			attribute.String("ast.file", filePath),
			attribute.Int("ast.content_size", contentSize),
		),
	)
}

// setParseSpanResult sets the result attributes on a parse span.
func setParseSpanResult(span trace.Span, nodeCount int, hasErrors bool) {
	span.SetAttributes(
		attribute.Int("ast.node_count", nodeCount),
		attribute.Bool("ast.has_errors", hasErrors),
	)
}

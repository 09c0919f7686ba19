// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("astvalidation.engine")
	meter  = otel.Meter("astvalidation.engine")
)

// Unit outcomes used as the "outcome" metric attribute.
const (
	outcomeValidated   = "validated"
	outcomeSkipped     = "skipped"
	outcomeFailed      = "failed"
	outcomeInterrupted = "interrupted"
)

// initMetrics lazily initializes metrics.
// Logs errors if metric creation fails but continues execution (graceful degradation).
func (e *Engine) initMetrics() {
	e.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		e.unitsTotal, err = meter.Int64Counter("astvalidation_units_total",
			metric.WithDescription("Units processed, by outcome"),
		)
		if err != nil {
			initErrors = append(initErrors, "units_total: "+err.Error())
		}

		e.ruleRuns, err = meter.Int64Counter("astvalidation_rule_runs_total",
			metric.WithDescription("Rule executions"),
		)
		if err != nil {
			initErrors = append(initErrors, "rule_runs: "+err.Error())
		}

		e.ruleFailures, err = meter.Int64Counter("astvalidation_rule_failures_total",
			metric.WithDescription("Rule executions that returned an error or panicked"),
		)
		if err != nil {
			initErrors = append(initErrors, "rule_failures: "+err.Error())
		}

		e.markersCreated, err = meter.Int64Counter("astvalidation_markers_created_total",
			metric.WithDescription("Markers written to the store"),
		)
		if err != nil {
			initErrors = append(initErrors, "markers_created: "+err.Error())
		}

		e.unitLatency, err = meter.Float64Histogram("astvalidation_unit_duration_seconds",
			metric.WithDescription("Time spent validating one unit"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "unit_latency: "+err.Error())
		}

		if len(initErrors) > 0 {
			e.logger.Error("failed to initialize some engine metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

func (e *Engine) recordUnit(ctx context.Context, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if e.unitsTotal != nil {
		e.unitsTotal.Add(ctx, 1, attrs)
	}
	if e.unitLatency != nil && outcome != outcomeSkipped {
		e.unitLatency.Record(ctx, d.Seconds(), attrs)
	}
}

func (e *Engine) recordRule(ctx context.Context, ruleID string, failed bool) {
	attrs := metric.WithAttributes(attribute.String("rule_id", ruleID))
	if e.ruleRuns != nil {
		e.ruleRuns.Add(ctx, 1, attrs)
	}
	if failed && e.ruleFailures != nil {
		e.ruleFailures.Add(ctx, 1, attrs)
	}
}

func (e *Engine) recordMarkers(ctx context.Context, markerType string, n int) {
	if e.markersCreated != nil && n > 0 {
		e.markersCreated.Add(ctx, int64(n), metric.WithAttributes(attribute.String("marker_type", markerType)))
	}
}

func startExecuteSpan(ctx context.Context, runID string, units, workers int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Engine.Execute",
		trace.WithAttributes(
			attribute.String("validation.run_id", runID),
			attribute.Int("validation.units", units),
			attribute.Int("validation.workers", workers),
		),
	)
}

func startUnitSpan(ctx context.Context, resource string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Engine.validateUnit",
		trace.WithAttributes(attribute.String("validation.resource", resource)),
	)
}

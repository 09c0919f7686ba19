// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine runs rule repositories over source units and persists the
// problems they report as markers.
//
// # Description
//
// One Execute call fans out one task per unit over a bounded worker pool.
// Within a unit, work is strictly sequential:
//
//  1. Skip the unit if it is nil or no longer exists.
//  2. For each enabled repository, delete the repository's markers on the
//     unit, then run each applicable rule and write its problems as markers.
//  3. The unit is parsed at most once, on first use, and the tree is shared
//     by every rule of every repository.
//
// A rule that fails or panics is logged and counted; the remaining rules,
// repositories and units still run. Marker store failures are the only
// errors Execute returns.
//
// # Thread Safety
//
// Execute may be called repeatedly on one Engine, but not concurrently with
// WithSession.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/astvalidation/services/validation/ast"
	"github.com/AleutianAI/astvalidation/services/validation/markers"
	"github.com/AleutianAI/astvalidation/services/validation/problem"
	"github.com/AleutianAI/astvalidation/services/validation/rules"
	"github.com/AleutianAI/astvalidation/services/validation/telemetry"
	"github.com/AleutianAI/astvalidation/services/validation/units"
)

// Parser turns unit content into a parse tree. *ast.JavaParser implements it.
type Parser interface {
	Parse(ctx context.Context, content []byte, filePath string) (*ast.ParseTree, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithWorkers sets the worker pool size. n <= 0 keeps runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// Engine validates a fixed set of units against the enabled repositories.
type Engine struct {
	units     []units.SourceUnit
	repoNames []string
	source    rules.Source
	parser    Parser
	store     markers.Store
	session   *rules.Session
	logger    *slog.Logger
	workers   int

	// Metrics (initialized lazily)
	metricsOnce    sync.Once
	unitsTotal     metric.Int64Counter
	ruleRuns       metric.Int64Counter
	ruleFailures   metric.Int64Counter
	markersCreated metric.Int64Counter
	unitLatency    metric.Float64Histogram
}

// New creates an Engine.
//
// Description:
//
//	The unit list and repository names are copied; later changes to the
//	caller's slices do not affect the engine. An empty repositoryNames
//	enables every repository of source.
//
// Inputs:
//
//	unitList - Units to validate. Nil entries are allowed and skipped.
//	repositoryNames - Enabled repositories, in run order.
//	source - Resolves repositories. Must not be nil.
//	parser - Parses unit content. Must not be nil.
//	store - Marker persistence. Must not be nil.
//	opts - WithLogger, WithWorkers.
//
// Outputs:
//
//	*Engine - The engine, with an empty session.
//	error - ErrNilSource, ErrNilParser or ErrNilStore.
func New(unitList []units.SourceUnit, repositoryNames []string, source rules.Source, parser Parser, store markers.Store, opts ...Option) (*Engine, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	if parser == nil {
		return nil, ErrNilParser
	}
	if store == nil {
		return nil, ErrNilStore
	}

	e := &Engine{
		units:     append([]units.SourceUnit(nil), unitList...),
		repoNames: append([]string(nil), repositoryNames...),
		source:    source,
		parser:    parser,
		store:     store,
		session:   rules.NewSession(),
		logger:    slog.Default(),
		workers:   runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// WithSession replaces the session contents with values and returns e.
//
// The session object itself is kept, so rules always see the one instance
// the engine hands out; only its contents change.
func (e *Engine) WithSession(values map[string]any) *Engine {
	e.session.Replace(values)
	return e
}

// Session returns the session shared by every rule of every execution.
func (e *Engine) Session() *rules.Session {
	return e.session
}

// Workers returns the worker pool size.
func (e *Engine) Workers() int {
	return e.workers
}

// Execute validates every unit.
//
// Description:
//
//	Runs one task per unit on at most Workers() goroutines and waits for all
//	of them. Rule failures are logged and listed in the report. Parse
//	failures mark the unit failed. If ctx is cancelled, tasks stop at the
//	next unit or rule boundary, in-flight tasks are drained, the
//	interruption is logged and Report.Interrupted is set; the error stays
//	nil.
//
// Inputs:
//
//	ctx - Cancellation and tracing.
//	progress - Receives "<unit>: <rule description>" per rule. Nil is allowed.
//
// Outputs:
//
//	*Report - Always non-nil.
//	error - Joined marker store failures, one per affected unit.
func (e *Engine) Execute(ctx context.Context, progress Progress) (*Report, error) {
	if progress == nil {
		progress = NopProgress{}
	}
	e.initMetrics()

	runID := uuid.NewString()
	ctx, span := startExecuteSpan(ctx, runID, len(e.units), e.workers)
	defer span.End()

	logger := e.logger.With(slog.String("run_id", runID))
	logger.Info("validation started",
		slog.Int("units", len(e.units)),
		slog.Int("workers", e.workers),
		slog.Any("repositories", e.repoNames))

	start := time.Now()
	var (
		t         tally
		errMu     sync.Mutex
		storeErrs []error
	)

	// A plain Group rather than WithContext: one unit's store failure must
	// not cancel the other units.
	var g errgroup.Group
	g.SetLimit(e.workers)
	for _, unit := range e.units {
		unit := unit
		g.Go(func() error {
			if err := e.validateUnit(ctx, logger, unit, progress, &t); err != nil {
				errMu.Lock()
				storeErrs = append(storeErrs, err)
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	report := t.report(runID, len(e.units), time.Since(start))
	if err := ctx.Err(); err != nil {
		report.Interrupted = true
		logger.Warn("validation interrupted, results are partial",
			slog.String("error", err.Error()),
			slog.Int("units_validated", report.UnitsValidated),
			slog.Int("units_total", report.UnitsTotal))
	}

	span.SetAttributes(
		attribute.Int("validation.units_validated", report.UnitsValidated),
		attribute.Int("validation.rule_failures", report.RuleFailures),
		attribute.Int("validation.markers_created", report.MarkersCreated),
		attribute.Bool("validation.interrupted", report.Interrupted),
	)

	err := errors.Join(storeErrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marker store failure")
		logger.Error("validation finished with store errors",
			slog.Int("failed_units", len(storeErrs)),
			slog.String("error", err.Error()))
	}

	logger.Info("validation finished",
		slog.Int("units_validated", report.UnitsValidated),
		slog.Int("units_skipped", report.UnitsSkipped),
		slog.Int("units_failed", report.UnitsFailed),
		slog.Int("rules_run", report.RulesRun),
		slog.Int("rule_failures", report.RuleFailures),
		slog.Int("markers_created", report.MarkersCreated),
		slog.Duration("duration", report.Duration))

	return report, err
}

// validateUnit runs every enabled repository over one unit.
//
// Returns only marker store errors. Parse failures and interruption are
// recorded in t and logged.
func (e *Engine) validateUnit(ctx context.Context, logger *slog.Logger, unit units.SourceUnit, progress Progress, t *tally) error {
	if ctx.Err() != nil {
		e.recordUnit(ctx, outcomeInterrupted, 0)
		return nil
	}
	if unit == nil || !unit.Exists() {
		t.skipped.Add(1)
		e.recordUnit(ctx, outcomeSkipped, 0)
		return nil
	}

	start := time.Now()
	resource := unit.Resource()
	ctx, span := startUnitSpan(ctx, resource)
	defer span.End()

	tree := newMemo(func() (*ast.ParseTree, error) {
		t.parses.Add(1)
		content, err := unit.Content()
		if err != nil {
			return nil, err
		}
		return e.parser.Parse(ctx, content, resource)
	})
	defer func() {
		if pt, ok := tree.Peek(); ok && pt != nil {
			pt.Close()
		}
	}()

	outcome, err := e.runRepositories(ctx, logger, unit, tree, progress, t)
	switch outcome {
	case outcomeValidated:
		t.validated.Add(1)
	case outcomeFailed:
		t.failed.Add(1)
	}
	e.recordUnit(ctx, outcome, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// runRepositories clears every repository's markers on unit, then runs each
// repository's rules over the shared parse tree.
//
// Store calls use a context detached from cancellation: once a rule has
// run, its markers are written, and a cleared repository is never left
// half-cleared. Cancellation is observed between rules.
func (e *Engine) runRepositories(ctx context.Context, logger *slog.Logger, unit units.SourceUnit, tree *memo[*ast.ParseTree], progress Progress, t *tally) (string, error) {
	resource := unit.Resource()
	storeCtx := context.WithoutCancel(ctx)
	repos := e.source.Repositories(e.repoNames...)

	for _, repo := range repos {
		if err := e.store.DeleteMarkers(storeCtx, resource, repo.MarkerType, markers.DepthZero); err != nil {
			return outcomeFailed, fmt.Errorf("clear %s markers on %s: %w", repo.Name, resource, err)
		}
	}

	for _, repo := range repos {
		for _, d := range repo.RulesFor(unit) {
			if ctx.Err() != nil {
				return outcomeInterrupted, nil
			}
			progress.SubTask(fmt.Sprintf("%s: %s", unit.Name(), d.Description))

			pt, err := tree.Get()
			if err != nil {
				if ctx.Err() != nil {
					return outcomeInterrupted, nil
				}
				telemetry.LoggerWithTrace(ctx, logger).Error("parse failed, skipping unit",
					slog.String("unit", unit.Name()),
					slog.String("resource", resource),
					slog.String("error", err.Error()))
				return outcomeFailed, nil
			}

			problems, ruleErr := e.runRule(ctx, d, unit, pt)
			t.rulesRun.Add(1)
			if ruleErr != nil {
				// A rule stopping on the cancelled context is not a failure.
				if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ruleErr.Err, ctxErr) {
					e.recordRule(ctx, d.ID, false)
					return outcomeInterrupted, nil
				}
				e.recordRule(ctx, d.ID, true)
				t.addFailure(ruleErr)
				telemetry.LoggerWithTrace(ctx, logger).Error("rule failed",
					slog.String("rule_id", ruleErr.RuleID),
					slog.String("rule_type", ruleErr.RuleType),
					slog.String("unit", ruleErr.Unit),
					slog.Bool("panicked", ruleErr.Panicked),
					slog.String("error", ruleErr.Err.Error()))
				continue
			}
			e.recordRule(ctx, d.ID, false)

			created := 0
			for _, p := range problems {
				if _, err := e.store.CreateMarker(storeCtx, resource, p.ToMarker(repo.MarkerType, resource)); err != nil {
					t.markers.Add(int64(created))
					e.recordMarkers(ctx, repo.MarkerType, created)
					return outcomeFailed, fmt.Errorf("write %s marker on %s: %w", repo.Name, resource, err)
				}
				created++
			}
			t.markers.Add(int64(created))
			e.recordMarkers(ctx, repo.MarkerType, created)
		}
	}
	return outcomeValidated, nil
}

// runRule instantiates and runs one rule, converting errors and panics
// into a RuleError.
func (e *Engine) runRule(ctx context.Context, d *rules.Descriptor, unit units.SourceUnit, tree *ast.ParseTree) (problems []problem.Problem, ruleErr *RuleError) {
	var rule rules.Rule
	fail := func(err error, panicked bool) *RuleError {
		ruleType := d.Kind
		if rule != nil {
			ruleType = fmt.Sprintf("%T", rule)
		}
		return &RuleError{
			RuleID:   d.ID,
			RuleType: ruleType,
			Unit:     unit.Name(),
			Resource: unit.Resource(),
			Panicked: panicked,
			Err:      err,
		}
	}

	defer func() {
		if r := recover(); r != nil {
			problems = nil
			ruleErr = fail(fmt.Errorf("panic: %v", r), true)
		}
	}()

	rule, err := d.NewRule()
	if err != nil {
		return nil, fail(err, false)
	}
	if rule == nil {
		return nil, fail(errors.New("factory returned nil rule"), false)
	}

	rule.SetSession(e.session)
	if err := rule.Check(ctx, tree); err != nil {
		return nil, fail(err, false)
	}
	return rule.Problems(), nil
}

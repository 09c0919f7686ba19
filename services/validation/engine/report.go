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
	"sync"
	"sync/atomic"
	"time"
)

// Report summarizes one Execute call.
type Report struct {
	// RunID identifies the execution in logs and traces.
	RunID string `json:"run_id"`

	// UnitsTotal is the number of units the engine holds.
	UnitsTotal int `json:"units_total"`

	// UnitsValidated counts units whose rules all ran.
	UnitsValidated int `json:"units_validated"`

	// UnitsSkipped counts nil or missing units.
	UnitsSkipped int `json:"units_skipped"`

	// UnitsFailed counts units that could not be parsed or whose markers
	// could not be written.
	UnitsFailed int `json:"units_failed"`

	// RulesRun counts rule executions, failed ones included.
	RulesRun int `json:"rules_run"`

	// RuleFailures counts isolated rule failures.
	RuleFailures int `json:"rule_failures"`

	// MarkersCreated counts markers written.
	MarkersCreated int `json:"markers_created"`

	// Parses counts parser invocations.
	Parses int `json:"parses"`

	// Duration is the wall time of the execution.
	Duration time.Duration `json:"duration_ns"`

	// Interrupted is true when the context was cancelled before every unit
	// was processed. Execute still returns a nil error in that case.
	Interrupted bool `json:"interrupted"`

	// Failures lists the isolated rule failures.
	Failures []*RuleError `json:"failures,omitempty"`
}

// tally collects counters from concurrent unit tasks.
type tally struct {
	validated atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	rulesRun  atomic.Int64
	markers   atomic.Int64
	parses    atomic.Int64

	mu       sync.Mutex
	failures []*RuleError
}

func (t *tally) addFailure(e *RuleError) {
	t.mu.Lock()
	t.failures = append(t.failures, e)
	t.mu.Unlock()
}

func (t *tally) report(runID string, total int, d time.Duration) *Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &Report{
		RunID:          runID,
		UnitsTotal:     total,
		UnitsValidated: int(t.validated.Load()),
		UnitsSkipped:   int(t.skipped.Load()),
		UnitsFailed:    int(t.failed.Load()),
		RulesRun:       int(t.rulesRun.Load()),
		RuleFailures:   len(t.failures),
		MarkersCreated: int(t.markers.Load()),
		Parses:         int(t.parses.Load()),
		Duration:       d,
		Failures:       append([]*RuleError(nil), t.failures...),
	}
}
